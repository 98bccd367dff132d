package marshal

import (
	"context"

	"github.com/wippyai/world-wasm/errors"
	"github.com/wippyai/world-wasm/wasi/preview1"
)

// Call is the state of one export invocation.
type Call struct {
	Slots   *Context
	Files   *preview1.Table
	ptrs    []uint32
	err     error
	growths int
}

// NewCall returns a call over slots and files. Either may be nil.
func NewCall(slots *Context, files *preview1.Table) *Call {
	if slots == nil {
		slots = NewContext()
	}
	return &Call{Slots: slots, Files: files}
}

// Notify records a heap pointer the host must release with _destruct.
func (c *Call) Notify(ptr uint32) {
	c.ptrs = append(c.ptrs, ptr)
}

// Pointers returns the recorded pointers in registration order.
func (c *Call) Pointers() []uint32 {
	return c.ptrs
}

// Release hands every recorded pointer to destruct and clears the list. It
// returns the first destructor error.
func (c *Call) Release(destruct func(ptr uint32) error) error {
	var first error
	for _, ptr := range c.ptrs {
		if err := destruct(ptr); err != nil && first == nil {
			first = err
		}
	}
	c.ptrs = nil
	return first
}

// Fail records err unless an earlier failure is already recorded.
func (c *Call) Fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Err returns the first boundary failure of the call.
func (c *Call) Err() error {
	return c.err
}

// Grew records a memory growth event and returns the total so far.
func (c *Call) Grew() int {
	c.growths++
	return c.growths
}

// Growths returns how many times memory grew during the call.
func (c *Call) Growths() int {
	return c.growths
}

type callKey struct{}

// WithCall returns a context carrying call and its descriptor table.
func WithCall(ctx context.Context, call *Call) context.Context {
	ctx = context.WithValue(ctx, callKey{}, call)
	return preview1.WithTable(ctx, call.Files)
}

// CallFrom returns the call carried by ctx, or nil.
func CallFrom(ctx context.Context) *Call {
	c, _ := ctx.Value(callKey{}).(*Call)
	return c
}

// Abort records err on the call in ctx and panics with it. Host imports use
// it to stop the guest; the export call observes the recorded error.
func Abort(ctx context.Context, err error) {
	if c := CallFrom(ctx); c != nil {
		c.Fail(err)
	}
	panic(err)
}

func activeCall(ctx context.Context) (*Call, error) {
	c := CallFrom(ctx)
	if c == nil {
		return nil, errors.New(errors.PhaseMarshal, errors.KindInvalidInput).
			Detail("host import called outside an engine call").
			Build()
	}
	return c, nil
}
