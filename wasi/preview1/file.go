package preview1

import (
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/wippyai/world-wasm/errors"
)

// Whence values accepted by Seek, matching WASI and io.Seek*.
const (
	WhenceSet = io.SeekStart
	WhenceCur = io.SeekCurrent
	WhenceEnd = io.SeekEnd
)

const (
	minGrowth = 8
	maxGrowth = 64 << 10
)

// File is a growable in-memory byte store with a read/write position.
// The backing buffer never shrinks.
type File struct {
	buf  []byte
	pos  int64
	size int64
}

// NewFile returns an empty file with the given initial capacity.
func NewFile(capacity int) *File {
	return &File{buf: make([]byte, capacity)}
}

// OpenFile wraps data as a file positioned at 0. The file owns data.
func OpenFile(data []byte) *File {
	return &File{buf: data, size: int64(len(data))}
}

func (f *File) Pos() int64  { return f.pos }
func (f *File) Size() int64 { return f.size }
func (f *File) Cap() int    { return len(f.buf) }

// grow doubles capacity up to 64 KiB per step, then grows linearly.
func (f *File) grow(need int64) {
	n := int64(len(f.buf))
	if need <= n {
		return
	}
	if n < 1 {
		n = minGrowth
	}
	for {
		n += min(n, maxGrowth)
		if n >= need {
			break
		}
	}
	buf := make([]byte, n)
	copy(buf, f.buf)
	f.buf = buf
}

// ReadV fills regions in order from the current position. It stops with a
// short count at the first region that crosses the end of the data.
func (f *File) ReadV(regions [][]byte) int {
	total := 0
	for _, r := range regions {
		avail := f.size - f.pos
		if avail <= 0 {
			break
		}
		n := copy(r, f.buf[f.pos:f.size])
		f.pos += int64(n)
		total += n
		if int64(len(r)) > avail {
			break
		}
	}
	return total
}

// WriteV writes regions in order at the current position, growing the
// buffer as needed and extending size.
func (f *File) WriteV(regions [][]byte) int {
	total := 0
	for _, r := range regions {
		end := f.pos + int64(len(r))
		f.grow(end)
		copy(f.buf[f.pos:end], r)
		f.pos = end
		if end > f.size {
			f.size = end
		}
		total += len(r)
	}
	return total
}

func (f *File) Read(p []byte) (int, error) {
	if f.pos >= f.size {
		return 0, io.EOF
	}
	return f.ReadV([][]byte{p}), nil
}

func (f *File) Write(p []byte) (int, error) {
	return f.WriteV([][]byte{p}), nil
}

// Seek moves the position. A negative result or unknown whence is rejected
// and leaves the position unchanged.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case WhenceSet:
		next = offset
	case WhenceCur:
		next = f.pos + offset
	case WhenceEnd:
		next = f.size + offset
	default:
		return f.pos, errors.InvalidArgument("unknown whence %d", whence)
	}
	if next < 0 {
		return f.pos, errors.InvalidArgument("seek to negative offset %d", next)
	}
	f.pos = next
	return next, nil
}

// Data returns the written bytes [0, size). The slice aliases the file.
func (f *File) Data() []byte {
	return f.buf[:f.size:f.size]
}

// Text decodes Data as UTF-8, replacing invalid sequences with U+FFFD.
func (f *File) Text() string {
	dec := unicode.UTF8.NewDecoder()
	out, _, err := transform.Bytes(dec, f.Data())
	if err != nil {
		return string(f.Data())
	}
	return string(out)
}

var (
	_ io.Reader = (*File)(nil)
	_ io.Writer = (*File)(nil)
	_ io.Seeker = (*File)(nil)
)
