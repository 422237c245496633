package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of an Operation.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions can happen.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Func performs an operation's work. It reports whether the work succeeded
// and returns the continuation to run once the terminal state is recorded.
// The continuation is dropped if the operation was cancelled meanwhile.
type Func func(ctx context.Context) (ok bool, dispatch func())

// Operation is one unit of work tracked by a Queue.
type Operation struct {
	method string
	url    string
	fn     Func

	state atomic.Int32
	owner atomic.Pointer[Queue]

	mu     sync.Mutex
	cancel context.CancelFunc

	enqueuedAt time.Time
	startedAt  time.Time

	done     chan struct{}
	doneOnce sync.Once
}

// NewOperation creates a pending operation identified by method and url.
func NewOperation(method, url string, fn Func) *Operation {
	return &Operation{
		method: method,
		url:    url,
		fn:     fn,
		done:   make(chan struct{}),
	}
}

// Method returns the HTTP method used for cancellation lookup.
func (o *Operation) Method() string {
	return o.method
}

// URL returns the resolved URL used for cancellation lookup.
func (o *Operation) URL() string {
	return o.url
}

// State returns the current state.
func (o *Operation) State() State {
	return State(o.state.Load())
}

// IsFinished reports whether the operation reached a terminal state.
func (o *Operation) IsFinished() bool {
	return o.State().IsTerminal()
}

// Done is closed once the operation is terminal and its continuation, if
// any, has returned.
func (o *Operation) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until Done is closed or ctx ends.
func (o *Operation) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel moves a pending or running operation to Cancelled. A running
// operation has its context cancelled; whatever result it still produces is
// discarded. It returns false if the operation had already finished.
func (o *Operation) Cancel() bool {
	if o.transition(StatePending, StateCancelled) {
		o.cancelled()
		return true
	}

	if o.transition(StateRunning, StateCancelled) {
		o.mu.Lock()
		cancel := o.cancel
		o.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		o.cancelled()
		return true
	}

	return false
}

func (o *Operation) cancelled() {
	if q := o.owner.Load(); q != nil {
		q.onCancelled(o)
	}
	o.finish()
}

func (o *Operation) transition(from, to State) bool {
	return o.state.CompareAndSwap(int32(from), int32(to))
}

func (o *Operation) finish() {
	o.doneOnce.Do(func() {
		close(o.done)
	})
}
