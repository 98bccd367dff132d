package marshal

import (
	"github.com/wippyai/world-wasm/errors"
	"github.com/wippyai/world-wasm/ndarray"
)

// Context is the slot table of one call. Bind declares a handle the engine
// may pull; Expect declares a handle it may push.
type Context struct {
	slots [numHandles]Slot
	pull  [numHandles]bool
	push  [numHandles]bool
}

func NewContext() *Context {
	return &Context{}
}

// Bind stores s at h and allows the engine to read it.
func (c *Context) Bind(h Handle, s Slot) *Context {
	if h.Valid() {
		c.slots[h] = s
		c.pull[h] = true
	}
	return c
}

// Expect allows the engine to write the given handles.
func (c *Context) Expect(hs ...Handle) *Context {
	for _, h := range hs {
		if h.Valid() {
			c.push[h] = true
		}
	}
	return c
}

// Pull returns the slot at h for an engine read.
func (c *Context) Pull(h Handle) (Slot, error) {
	if !h.Valid() {
		return Slot{}, errors.InvalidSlot(uint32(h), "unknown handle")
	}
	if !c.pull[h] {
		return Slot{}, errors.InvalidSlot(uint32(h), "%s is not readable in this call", h)
	}
	s := c.slots[h]
	if s.kind == SlotEmpty {
		return Slot{}, errors.InvalidSlot(uint32(h), "%s is empty", h)
	}
	return s, nil
}

// Store records an engine write to h.
func (c *Context) Store(h Handle, s Slot) error {
	if !h.Valid() {
		return errors.InvalidSlot(uint32(h), "unknown handle")
	}
	if !c.push[h] {
		return errors.InvalidSlot(uint32(h), "%s is not writable in this call", h)
	}
	c.slots[h] = s
	return nil
}

// Slot returns the current contents of h without direction checks.
func (c *Context) Slot(h Handle) Slot {
	if !h.Valid() {
		return Slot{}
	}
	return c.slots[h]
}

// Float64s returns the vector at h as float64 values.
func (c *Context) Float64s(h Handle) ([]float64, error) {
	s := c.Slot(h)
	if s.kind != SlotVector {
		return nil, errors.InvalidSlot(uint32(h), "%s holds %s, want vector", h, s.kind)
	}
	return ndarray.ToFloat64(s.vec)
}

// Matrix returns the matrix at h.
func (c *Context) Matrix(h Handle) (*ndarray.View[float64], error) {
	s := c.Slot(h)
	if s.kind != SlotMatrix {
		return nil, errors.InvalidSlot(uint32(h), "%s holds %s, want matrix", h, s.kind)
	}
	return s.mat, nil
}
