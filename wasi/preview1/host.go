package preview1

import (
	"context"

	worldwasm "github.com/wippyai/world-wasm"
	"github.com/wippyai/world-wasm/errors"
)

// ModuleName is the import module the engine's fd calls resolve against.
const ModuleName = "wasi_snapshot_preview1"

// Errno values. Host calls return them negated, as the engine expects.
const (
	ErrnoSuccess int32 = 0
	ErrnoBadf    int32 = 8
	ErrnoInval   int32 = 28
	ErrnoFault   int32 = 21
)

// FiletypeRegularFile is the fdstat filetype byte for a regular file.
const FiletypeRegularFile uint8 = 4

// iovecs loads iovsLen {ptr, len} pairs from memory at iovs and resolves
// each to a slice of linear memory.
func iovecs(mem worldwasm.Memory, iovs, iovsLen uint32) ([][]byte, error) {
	regions := make([][]byte, 0, iovsLen)
	for i := uint32(0); i < iovsLen; i++ {
		base := iovs + i*8
		ptr, err := mem.ReadU32(base)
		if err != nil {
			return nil, err
		}
		n, err := mem.ReadU32(base + 4)
		if err != nil {
			return nil, err
		}
		r, err := mem.Read(ptr, n)
		if err != nil {
			return nil, err
		}
		regions = append(regions, r)
	}
	return regions, nil
}

// FdRead implements fd_read(fd, iovs, iovs_len, nread_ptr).
func FdRead(ctx context.Context, mem worldwasm.Memory, fd, iovs, iovsLen, nreadPtr uint32) int32 {
	f, ok := TableFrom(ctx).Get(fd)
	if !ok {
		return -ErrnoBadf
	}
	regions, err := iovecs(mem, iovs, iovsLen)
	if err != nil {
		return -ErrnoFault
	}
	n := f.ReadV(regions)
	if err := mem.WriteU32(nreadPtr, uint32(n)); err != nil {
		return -ErrnoFault
	}
	return ErrnoSuccess
}

// FdWrite implements fd_write(fd, iovs, iovs_len, nwritten_ptr).
func FdWrite(ctx context.Context, mem worldwasm.Memory, fd, iovs, iovsLen, nwrittenPtr uint32) int32 {
	f, ok := TableFrom(ctx).Get(fd)
	if !ok {
		return -ErrnoBadf
	}
	regions, err := iovecs(mem, iovs, iovsLen)
	if err != nil {
		return -ErrnoFault
	}
	n := f.WriteV(regions)
	if err := mem.WriteU32(nwrittenPtr, uint32(n)); err != nil {
		return -ErrnoFault
	}
	return ErrnoSuccess
}

// FdSeek implements fd_seek(fd, offset, whence, newoffset_ptr).
func FdSeek(ctx context.Context, mem worldwasm.Memory, fd uint32, offset int64, whence, outPtr uint32) int32 {
	f, ok := TableFrom(ctx).Get(fd)
	if !ok {
		return -ErrnoBadf
	}
	pos, err := f.Seek(offset, int(whence))
	if err != nil {
		return -ErrnoInval
	}
	if err := mem.WriteU64(outPtr, uint64(pos)); err != nil {
		return -ErrnoFault
	}
	return ErrnoSuccess
}

// FdClose implements fd_close. The file stays in the table, rewound to 0,
// so the host can still collect its contents.
func FdClose(ctx context.Context, fd uint32) int32 {
	f, ok := TableFrom(ctx).Get(fd)
	if !ok {
		return -ErrnoBadf
	}
	_, _ = f.Seek(0, WhenceSet)
	return ErrnoSuccess
}

// FdFdstatGet implements fd_fdstat_get. Every descriptor reports a regular
// file; only the filetype byte is written.
func FdFdstatGet(_ context.Context, mem worldwasm.Memory, _ uint32, statPtr uint32) int32 {
	if err := mem.WriteU8(statPtr, FiletypeRegularFile); err != nil {
		return -ErrnoFault
	}
	return ErrnoSuccess
}

// FdFdstatSetFlags implements fd_fdstat_set_flags as a no-op.
func FdFdstatSetFlags(context.Context, uint32, uint32) int32 {
	return ErrnoSuccess
}

// ProcExit returns the fatal error for proc_exit. The caller must abort the
// guest with it.
func ProcExit(code uint32) error {
	return errors.Exit(code)
}
