package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrClosed is returned when adding to a closed queue.
	ErrClosed = errors.New("queue: closed")
	// ErrAlreadyQueued is returned when an operation is added twice.
	ErrAlreadyQueued = errors.New("queue: operation already queued")
	// ErrNotPending is returned when adding an operation that already ran or was cancelled.
	ErrNotPending = errors.New("queue: operation is not pending")
)

// CompletionMode selects where continuations run.
type CompletionMode int

const (
	// CompletionWorker runs a continuation on the goroutine that executed
	// the operation.
	CompletionWorker CompletionMode = iota
	// CompletionSerial runs continuations one at a time on a dedicated
	// goroutine, in the order operations reached their terminal state.
	CompletionSerial
)

// Queue admits operations in insertion order up to a concurrency bound and
// tracks them until they finish.
type Queue struct {
	maxConcurrent int
	limiter       *rate.Limiter
	completion    CompletionMode
	logger        *zap.Logger
	metrics       *Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	ops       []*Operation // pending and running, insertion order
	pending   []*Operation // FIFO awaiting admission
	running   int
	suspended bool
	closed    bool
	idle      chan struct{}
	idleOpen  bool

	serial *serialDispatcher
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxConcurrent bounds the number of operations running at once.
// n <= 0 means unbounded.
func WithMaxConcurrent(n int) Option {
	return func(q *Queue) {
		if n < 0 {
			n = 0
		}
		q.maxConcurrent = n
	}
}

// WithRateLimit limits how fast admitted operations start their work.
// rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(q *Queue) {
		if rps <= 0 {
			q.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		q.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCompletion selects where continuations run.
func WithCompletion(mode CompletionMode) Option {
	return func(q *Queue) {
		q.completion = mode
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithMetrics records counters and latencies into m.
func WithMetrics(m *Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

// New creates a running queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		logger: zap.NewNop(),
		idle:   make(chan struct{}),
	}
	close(q.idle)

	for _, opt := range opts {
		opt(q)
	}

	q.ctx, q.cancel = context.WithCancel(context.Background())

	if q.completion == CompletionSerial {
		q.serial = newSerialDispatcher()
		go q.serial.run()
	}

	return q
}

// Add submits op. It never blocks; op starts once it reaches the head of the
// queue and a slot is free.
func (q *Queue) Add(op *Operation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if op.owner.Load() != nil {
		return ErrAlreadyQueued
	}
	if op.State() != StatePending {
		return ErrNotPending
	}
	if !op.owner.CompareAndSwap(nil, q) {
		return ErrAlreadyQueued
	}
	if op.State() != StatePending {
		op.owner.Store(nil)
		return ErrNotPending
	}

	op.enqueuedAt = time.Now()
	q.ops = append(q.ops, op)
	q.pending = append(q.pending, op)
	q.markBusyLocked()

	if q.metrics != nil {
		q.metrics.recordSubmitted()
	}
	q.logger.Debug("operation enqueued",
		zap.String("method", op.method),
		zap.String("url", op.url),
		zap.Int("queued", len(q.ops)),
	)

	q.admitLocked()
	return nil
}

// admitLocked starts pending operations in FIFO order while slots are free.
// It never waits.
func (q *Queue) admitLocked() {
	for !q.suspended && !q.closed && len(q.pending) > 0 {
		if q.maxConcurrent > 0 && q.running >= q.maxConcurrent {
			return
		}

		op := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		if op.State() != StatePending {
			continue
		}

		q.running++
		if q.metrics != nil {
			q.metrics.recordStarted()
		}
		go q.execute(op)
	}
}

func (q *Queue) execute(op *Operation) {
	defer q.workerDone()

	ctx, cancel := context.WithCancel(q.ctx)
	defer cancel()

	op.mu.Lock()
	op.cancel = cancel
	op.mu.Unlock()

	if !op.transition(StatePending, StateRunning) {
		return
	}
	op.startedAt = time.Now()

	q.logger.Debug("operation started",
		zap.String("method", op.method),
		zap.String("url", op.url),
		zap.Duration("waited", op.startedAt.Sub(op.enqueuedAt)),
	)

	if q.limiter != nil {
		if err := q.limiter.Wait(ctx); err != nil {
			op.Cancel()
			return
		}
	}

	ok, dispatch := op.fn(ctx)

	terminal := StateFailed
	if ok {
		terminal = StateSucceeded
	}
	if !op.transition(StateRunning, terminal) {
		q.logger.Debug("discarding result of cancelled operation",
			zap.String("method", op.method),
			zap.String("url", op.url),
		)
		return
	}

	elapsed := time.Since(op.startedAt)
	if q.metrics != nil {
		q.metrics.recordFinished(terminal, elapsed)
	}
	q.logger.Debug("operation finished",
		zap.String("method", op.method),
		zap.String("url", op.url),
		zap.String("state", terminal.String()),
		zap.Duration("duration", elapsed),
	)

	complete := func() {
		q.runContinuation(op, dispatch)
		q.forget(op)
		op.finish()
	}

	if q.serial != nil {
		q.serial.submit(complete)
		return
	}
	complete()
}

func (q *Queue) runContinuation(op *Operation, dispatch func()) {
	if dispatch == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("operation continuation panicked",
				zap.String("method", op.method),
				zap.String("url", op.url),
				zap.Any("panic", r),
			)
		}
	}()
	dispatch()
}

func (q *Queue) workerDone() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.running--
	if q.metrics != nil {
		q.metrics.recordStopped()
	}
	q.admitLocked()
	q.checkIdleLocked()
}

func (q *Queue) onCancelled(op *Operation) {
	if q.metrics != nil {
		q.metrics.recordFinished(StateCancelled, 0)
	}
	q.logger.Debug("operation cancelled",
		zap.String("method", op.method),
		zap.String("url", op.url),
	)
	q.forget(op)
}

func (q *Queue) forget(op *Operation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, tracked := range q.ops {
		if tracked == op {
			copy(q.ops[i:], q.ops[i+1:])
			q.ops[len(q.ops)-1] = nil
			q.ops = q.ops[:len(q.ops)-1]
			break
		}
	}
	q.checkIdleLocked()
}

func (q *Queue) markBusyLocked() {
	if !q.idleOpen {
		q.idle = make(chan struct{})
		q.idleOpen = true
	}
}

func (q *Queue) checkIdleLocked() {
	if q.idleOpen && len(q.ops) == 0 && q.running == 0 {
		close(q.idle)
		q.idleOpen = false
	}
}

// CancelOperations cancels every tracked operation whose method and URL
// both match exactly, and returns how many were cancelled.
func (q *Queue) CancelOperations(method, url string) int {
	var matched []*Operation
	q.mu.Lock()
	for _, op := range q.ops {
		if op.method == method && op.url == url {
			matched = append(matched, op)
		}
	}
	q.mu.Unlock()

	cancelled := 0
	for _, op := range matched {
		if op.Cancel() {
			cancelled++
		}
	}
	return cancelled
}

// CancelAll cancels every tracked operation.
func (q *Queue) CancelAll() int {
	cancelled := 0
	for _, op := range q.Operations() {
		if op.Cancel() {
			cancelled++
		}
	}
	return cancelled
}

// Operations returns the tracked operations in insertion order.
func (q *Queue) Operations() []*Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops := make([]*Operation, len(q.ops))
	copy(ops, q.ops)
	return ops
}

// Len returns the number of pending and running operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Running returns the number of operations currently holding a slot.
func (q *Queue) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// MaxConcurrent returns the concurrency bound, 0 meaning unbounded.
func (q *Queue) MaxConcurrent() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxConcurrent
}

// SetMaxConcurrent changes the concurrency bound. Raising it admits waiting
// operations immediately; lowering it never interrupts running ones.
func (q *Queue) SetMaxConcurrent(n int) {
	if n < 0 {
		n = 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxConcurrent = n
	q.admitLocked()
}

// SetSuspended pauses or resumes admission. Running operations continue.
func (q *Queue) SetSuspended(suspended bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.suspended = suspended
	q.admitLocked()
}

// IsSuspended reports whether admission is paused.
func (q *Queue) IsSuspended() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.suspended
}

// Metrics returns the collector configured with WithMetrics, or nil.
func (q *Queue) Metrics() *Metrics {
	return q.metrics
}

// Wait blocks until no operations are tracked or running, or ctx ends.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels all operations and rejects further submissions.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.CancelAll()
	q.cancel()

	if q.serial != nil {
		q.serial.stop()
	}
}

// serialDispatcher runs submitted functions one at a time in submission order.
type serialDispatcher struct {
	mu      sync.Mutex
	pending []func()
	stopped bool
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

func newSerialDispatcher() *serialDispatcher {
	return &serialDispatcher{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (d *serialDispatcher) submit(fn func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		fn()
		return
	}
	d.pending = append(d.pending, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *serialDispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.pending
		d.pending = nil
		d.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-d.wake:
		case <-d.quit:
			d.drain()
			return
		}
	}
}

func (d *serialDispatcher) drain() {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	d.stopped = true
	d.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
}

func (d *serialDispatcher) stop() {
	close(d.quit)
	<-d.done
}
