package http

import (
	"context"
	"sync/atomic"

	"github.com/abdul-hamid-achik/hitclient/packages/queue"
)

// SuccessFunc receives the decoded response value.
type SuccessFunc func(op *Operation, value any)

// FailureFunc receives the failure cause. resp is nil when the transport
// produced no response.
type FailureFunc func(op *Operation, resp *Response, err error)

// Operation is one queued request. Exactly one of its continuations runs,
// unless it is cancelled, in which case neither does.
type Operation struct {
	request  *Request
	op       *queue.Operation
	response atomic.Pointer[Response]
	err      atomic.Pointer[error]
}

// Request returns the request this operation sends.
func (o *Operation) Request() *Request {
	return o.request
}

// Response returns the received response. It is set just before the
// continuation runs, and stays nil after a transport error or cancellation.
func (o *Operation) Response() *Response {
	return o.response.Load()
}

// Err returns the failure cause once the operation failed.
func (o *Operation) Err() error {
	if p := o.err.Load(); p != nil {
		return *p
	}
	return nil
}

func (o *Operation) record(resp *Response, err error) {
	if resp != nil {
		o.response.Store(resp)
	}
	if err != nil {
		o.err.Store(&err)
	}
}

func (o *Operation) State() queue.State {
	return o.op.State()
}

func (o *Operation) IsFinished() bool {
	return o.op.IsFinished()
}

// Cancel stops the operation. It reports false if it had already finished.
func (o *Operation) Cancel() bool {
	return o.op.Cancel()
}

// Done is closed once the operation finished and its continuation returned.
func (o *Operation) Done() <-chan struct{} {
	return o.op.Done()
}

func (o *Operation) Wait(ctx context.Context) error {
	return o.op.Wait(ctx)
}
