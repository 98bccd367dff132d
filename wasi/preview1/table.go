package preview1

import (
	"context"
	"sync"
)

// Fixed descriptor indices used by the engine.
const (
	FDDiagnostic uint32 = 1 // stdout, error and info text
	FDData       uint32 = 3 // sample.wav, the container being decoded or encoded
)

// Table maps small integer descriptors to files. Absent entries are bad
// descriptors.
type Table struct {
	mu    sync.RWMutex
	files map[uint32]*File
}

// NewTable returns a table holding files.
func NewTable(files map[uint32]*File) *Table {
	t := &Table{files: make(map[uint32]*File, len(files))}
	for fd, f := range files {
		if f != nil {
			t.files[fd] = f
		}
	}
	return t
}

// Set installs f at fd, or removes the entry when f is nil.
func (t *Table) Set(fd uint32, f *File) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.files == nil {
		t.files = make(map[uint32]*File)
	}
	if f == nil {
		delete(t.files, fd)
		return
	}
	t.files[fd] = f
}

// Get returns the file at fd. A nil table has no files.
func (t *Table) Get(fd uint32) (*File, bool) {
	if t == nil {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.files[fd]
	return f, ok
}

// Len returns the number of open descriptors.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.files)
}

type tableKey struct{}

// WithTable returns a context whose fd_* calls resolve against t.
func WithTable(ctx context.Context, t *Table) context.Context {
	return context.WithValue(ctx, tableKey{}, t)
}

// TableFrom returns the table carried by ctx, or nil.
func TableFrom(ctx context.Context) *Table {
	t, _ := ctx.Value(tableKey{}).(*Table)
	return t
}
