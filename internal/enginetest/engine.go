// Package enginetest provides a scripted stand-in for the compiled WORLD
// engine. It honours the engine ABI: every export moves data through the
// real env and wasi_snapshot_preview1 host imports over an in-process
// linear memory, so the host side is exercised exactly as with wazero.
package enginetest

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	worldwasm "github.com/wippyai/world-wasm"
	"github.com/wippyai/world-wasm/errors"
	"github.com/wippyai/world-wasm/internal/memtest"
	"github.com/wippyai/world-wasm/marshal"
	"github.com/wippyai/world-wasm/wasi/preview1"
)

const (
	defaultF0Floor = 71.0
	dioF0          = 100.0
	harvestF0      = 120.0
	wavHeaderSize  = 44
)

// Info is the text _get_info prints.
const Info = "WORLD 0.3.2 (scripted)\nfs: any\n"

// Engine is a worldwasm.Source producing scripted guests.
type Engine struct {
	// Missing names exports the guests do not provide.
	Missing []string
	// Panic makes the named export panic with PanicValue.
	Panic      string
	PanicValue any
	// Hold makes the named export block until Release is closed.
	Hold    string
	Release chan struct{}
	// Scribble makes _wavread overwrite the start of descriptor 3 once decoded.
	Scribble bool

	instances atomic.Int64
	closed    atomic.Int64
	mu        sync.Mutex
	guests    []*Guest
}

// Instantiate returns a guest with its own memory.
func (e *Engine) Instantiate(context.Context) (worldwasm.Guest, error) {
	e.instances.Add(1)
	g := &Guest{engine: e, mem: memtest.New(1), missing: make(map[string]bool)}
	for _, name := range e.Missing {
		g.missing[name] = true
	}
	e.mu.Lock()
	e.guests = append(e.guests, g)
	e.mu.Unlock()
	return g, nil
}

// Instances returns how many guests were created.
func (e *Engine) Instances() int { return int(e.instances.Load()) }

// Closed returns how many guests were closed.
func (e *Engine) Closed() int { return int(e.closed.Load()) }

// Guests returns every guest created so far.
func (e *Engine) Guests() []*Guest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Guest(nil), e.guests...)
}

// Guest is one scripted engine instance.
type Guest struct {
	engine  *Engine
	mem     *memtest.Memory
	missing map[string]bool

	mu         sync.Mutex
	calls      []string
	destructed []uint32
	closed     bool

	fs      int
	f0Floor float64
	f0Ceil  float64
}

// Calls returns the exports invoked so far, in order.
func (g *Guest) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

// Destructed returns the pointers released through _destruct.
func (g *Guest) Destructed() []uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]uint32(nil), g.destructed...)
}

// F0Range returns the bounds passed to the last _init_world.
func (g *Guest) F0Range() (float64, float64) {
	return g.f0Floor, g.f0Ceil
}

func (g *Guest) HasExport(name string) bool {
	if g.missing[name] {
		return false
	}
	_, ok := exports[name]
	return ok
}

func (g *Guest) Memory() worldwasm.Memory { return g.mem }

func (g *Guest) Close(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		g.engine.closed.Add(1)
	}
	return nil
}

// Call runs a scripted export. A failing host import is recorded on the
// call, as the wazero binding does.
func (g *Guest) Call(ctx context.Context, name string, args ...float64) (float64, error) {
	g.mu.Lock()
	closed := g.closed
	g.calls = append(g.calls, name)
	g.mu.Unlock()
	if closed {
		return 0, errors.Closed("instance")
	}

	fn, ok := exports[name]
	if !ok || g.missing[name] {
		return 0, errors.NotFound(errors.PhaseEngine, "export", name)
	}
	if g.engine.Panic == name {
		panic(g.engine.PanicValue)
	}
	if g.engine.Hold == name {
		<-g.engine.Release
	}
	for len(args) < 4 {
		args = append(args, 0)
	}
	ret, err := fn(g, ctx, args)
	if err != nil {
		if call := marshal.CallFrom(ctx); call != nil {
			call.Fail(err)
			return 0, call.Err()
		}
		return 0, err
	}
	return ret, nil
}

type export func(g *Guest, ctx context.Context, args []float64) (float64, error)

var exports map[string]export

func init() {
	exports = map[string]export{
		"_initialize":    (*Guest).initialize,
		"_init_world":    (*Guest).initWorld,
		"_dio":           func(g *Guest, ctx context.Context, a []float64) (float64, error) { return g.pitch(ctx, a, dioF0) },
		"_harvest":       func(g *Guest, ctx context.Context, a []float64) (float64, error) { return g.pitch(ctx, a, harvestF0) },
		"_stonemask":     (*Guest).stoneMask,
		"_cheaptrick":    (*Guest).cheapTrick,
		"_d4c":           (*Guest).d4c,
		"_synthesis":     (*Guest).synthesis,
		"_wavreadlength": (*Guest).wavReadLength,
		"_wavread":       (*Guest).wavRead,
		"_wavwrite":      (*Guest).wavWrite,
		"_get_info":      (*Guest).getInfo,
		"_destruct":      (*Guest).destruct,
	}
}

// newArray allocates n doubles and registers the block for release.
func (g *Guest) newArray(ctx context.Context, n int) (uint32, error) {
	ptr := g.mem.Alloc(uint32(n * 8))
	return ptr, marshal.ConstructNotify(ctx, ptr)
}

func (g *Guest) pull(ctx context.Context, h marshal.Handle, n int) ([]float64, error) {
	ptr, err := g.newArray(ctx, n)
	if err != nil {
		return nil, err
	}
	if err := marshal.ReadFloat64Array(ctx, g.mem, uint32(h), ptr, uint32(n)); err != nil {
		return nil, err
	}
	return g.mem.Float64s(ptr, n)
}

func (g *Guest) push(ctx context.Context, h marshal.Handle, xs []float64) error {
	ptr, err := g.newArray(ctx, len(xs))
	if err != nil {
		return err
	}
	if err := g.mem.PutFloat64s(ptr, xs); err != nil {
		return err
	}
	return marshal.WriteFloat64Array(ctx, g.mem, uint32(h), ptr, uint32(len(xs)))
}

// table lays out rows of cols doubles behind a row pointer table.
func (g *Guest) table(rows, cols int) (uint32, []uint32) {
	tbl := g.mem.Alloc(uint32(rows * 4))
	ptrs := make([]uint32, rows)
	for i := range ptrs {
		ptrs[i] = g.mem.Alloc(uint32(cols * 8))
		_ = g.mem.WriteU32(tbl+uint32(i)*4, ptrs[i])
	}
	return tbl, ptrs
}

func (g *Guest) push2D(ctx context.Context, h marshal.Handle, rows, cols int, at func(i, j int) float64) error {
	tbl, ptrs := g.table(rows, cols)
	for i, p := range ptrs {
		row := make([]float64, cols)
		for j := range row {
			row[j] = at(i, j)
		}
		if err := g.mem.PutFloat64s(p, row); err != nil {
			return err
		}
	}
	return marshal.WriteFloat64Array2D(ctx, g.mem, uint32(h), tbl, uint32(rows), uint32(cols))
}

func (g *Guest) pull2D(ctx context.Context, h marshal.Handle, rows, cols int) ([][]float64, error) {
	tbl, ptrs := g.table(rows, cols)
	if err := marshal.ReadFloat64Array2D(ctx, g.mem, uint32(h), tbl, uint32(rows), uint32(cols)); err != nil {
		return nil, err
	}
	out := make([][]float64, rows)
	for i, p := range ptrs {
		row, err := g.mem.Float64s(p, cols)
		if err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}

func (g *Guest) initialize(ctx context.Context, _ []float64) (float64, error) {
	return 0, marshal.ConstructNotify(ctx, g.mem.Alloc(16))
}

// FFTSize mirrors CheapTrick's choice: the smallest power of two covering
// three periods of the lowest F0.
func FFTSize(fs int, f0Floor float64) int {
	if f0Floor <= 0 {
		f0Floor = defaultF0Floor
	}
	return 2 << int(math.Floor(math.Log2(3*float64(fs)/f0Floor+1)))
}

func (g *Guest) initWorld(_ context.Context, a []float64) (float64, error) {
	g.fs, g.f0Floor, g.f0Ceil = int(a[0]), a[1], a[2]
	return float64(FFTSize(g.fs, g.f0Floor)), nil
}

// Frames returns the frame count the pitch estimators produce.
func Frames(xLen, fs int, framePeriod float64) int {
	return int(1000*float64(xLen)/float64(fs)/framePeriod) + 1
}

func (g *Guest) pitch(ctx context.Context, a []float64, f0 float64) (float64, error) {
	xLen, fs, fp, refine := int(a[0]), int(a[1]), a[2], a[3] != 0
	if xLen <= 0 || fs <= 0 {
		return -1, nil
	}
	if _, err := g.pull(ctx, marshal.HandleSignal, xLen); err != nil {
		return 0, err
	}
	n := Frames(xLen, fs, fp)
	t := make([]float64, n)
	track := make([]float64, n)
	for i := range t {
		t[i] = float64(i) * fp / 1000
		track[i] = f0
		if refine {
			track[i] = refined(f0)
		}
	}
	if err := g.push(ctx, marshal.HandleTimeAxis, t); err != nil {
		return 0, err
	}
	return 0, g.push(ctx, marshal.HandleF0, track)
}

func refined(f0 float64) float64 { return f0 + 1 }

func (g *Guest) stoneMask(ctx context.Context, a []float64) (float64, error) {
	xLen, f0Len := int(a[0]), int(a[2])
	if _, err := g.pull(ctx, marshal.HandleSignal, xLen); err != nil {
		return 0, err
	}
	if _, err := g.pull(ctx, marshal.HandleTimeAxis, f0Len); err != nil {
		return 0, err
	}
	f0, err := g.pull(ctx, marshal.HandleF0, f0Len)
	if err != nil {
		return 0, err
	}
	for i := range f0 {
		f0[i] = refined(f0[i])
	}
	return 0, g.push(ctx, marshal.HandleF0, f0)
}

func (g *Guest) pullTrack(ctx context.Context, a []float64) ([]float64, error) {
	xLen, f0Len := int(a[0]), int(a[2])
	if _, err := g.pull(ctx, marshal.HandleSignal, xLen); err != nil {
		return nil, err
	}
	if _, err := g.pull(ctx, marshal.HandleTimeAxis, f0Len); err != nil {
		return nil, err
	}
	return g.pull(ctx, marshal.HandleF0, f0Len)
}

func (g *Guest) cheapTrick(ctx context.Context, a []float64) (float64, error) {
	f0, err := g.pullTrack(ctx, a)
	if err != nil {
		return 0, err
	}
	// Growing mid-call invalidates any cached view of memory.
	g.mem.Grow(1)
	marshal.NotifyMemoryGrowth(ctx, 0)

	fft := FFTSize(int(a[1]), g.f0Floor)
	bins := fft/2 + 1
	err = g.push2D(ctx, marshal.HandleSpectrogram, len(f0), bins, func(i, j int) float64 {
		return f0[i] / float64(j+1)
	})
	return float64(fft), err
}

func (g *Guest) d4c(ctx context.Context, a []float64) (float64, error) {
	f0, err := g.pullTrack(ctx, a)
	if err != nil {
		return 0, err
	}
	fft := int(a[3])
	if fft <= 0 {
		fft = FFTSize(int(a[1]), g.f0Floor)
	}
	bins := fft/2 + 1
	return 0, g.push2D(ctx, marshal.HandleAperiodicity, len(f0), bins, func(i, j int) float64 {
		return float64(j) / float64(bins)
	})
}

func (g *Guest) synthesis(ctx context.Context, a []float64) (float64, error) {
	f0Len, fft, fs, fp := int(a[0]), int(a[1]), int(a[2]), float64(int(a[3]))
	bins := fft/2 + 1
	f0, err := g.pull(ctx, marshal.HandleF0, f0Len)
	if err != nil {
		return 0, err
	}
	if _, err := g.pull2D(ctx, marshal.HandleSpectrogram, f0Len, bins); err != nil {
		return 0, err
	}
	if _, err := g.pull2D(ctx, marshal.HandleAperiodicity, f0Len, bins); err != nil {
		return 0, err
	}
	yLen := int(float64(f0Len-1)*fp/1000*float64(fs)) + 1
	y := make([]float64, yLen)
	for i := range y {
		frame := min(int(float64(i)/float64(fs)*1000/fp), f0Len-1)
		y[i] = 0.1 * math.Sin(2*math.Pi*f0[frame]*float64(i)/float64(fs))
	}
	return 0, g.push(ctx, marshal.HandleSignal, y)
}

// fdWrite writes data to fd through fd_write.
func (g *Guest) fdWrite(ctx context.Context, fd uint32, data []byte) int32 {
	buf := g.mem.Alloc(uint32(len(data)))
	_ = g.mem.Write(buf, data)
	iov := g.mem.Alloc(8)
	_ = g.mem.PutIovecs(iov, [2]uint32{buf, uint32(len(data))})
	return preview1.FdWrite(ctx, g.mem, fd, iov, 1, g.mem.Alloc(4))
}

// fdRead reads up to n bytes from fd through fd_read.
func (g *Guest) fdRead(ctx context.Context, fd uint32, n int) ([]byte, int32) {
	buf := g.mem.Alloc(uint32(n))
	iov := g.mem.Alloc(8)
	_ = g.mem.PutIovecs(iov, [2]uint32{buf, uint32(n)})
	nread := g.mem.Alloc(4)
	if rc := preview1.FdRead(ctx, g.mem, fd, iov, 1, nread); rc != preview1.ErrnoSuccess {
		return nil, rc
	}
	got, _ := g.mem.ReadU32(nread)
	out, _ := g.mem.Read(buf, got)
	return append([]byte(nil), out...), preview1.ErrnoSuccess
}

func (g *Guest) fdSeek(ctx context.Context, fd uint32, offset int64) int32 {
	return preview1.FdSeek(ctx, g.mem, fd, offset, uint32(preview1.WhenceSet), g.mem.Alloc(8))
}

func (g *Guest) header(ctx context.Context) ([]byte, bool) {
	var stat [1]byte
	statPtr := g.mem.Alloc(24)
	if preview1.FdFdstatGet(ctx, g.mem, preview1.FDData, statPtr) == preview1.ErrnoSuccess {
		stat[0], _ = g.mem.ReadU8(statPtr)
	}
	if stat[0] != preview1.FiletypeRegularFile || g.fdSeek(ctx, preview1.FDData, 0) != preview1.ErrnoSuccess {
		return nil, false
	}
	h, rc := g.fdRead(ctx, preview1.FDData, wavHeaderSize)
	if rc != preview1.ErrnoSuccess || len(h) < wavHeaderSize ||
		string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" {
		return nil, false
	}
	return h, true
}

func (g *Guest) wavReadLength(ctx context.Context, _ []float64) (float64, error) {
	h, ok := g.header(ctx)
	if !ok {
		g.fdWrite(ctx, preview1.FDDiagnostic, []byte("error: sample.wav is not a RIFF/WAVE file\n"))
		return 0, nil
	}
	bits := binary.LittleEndian.Uint16(h[34:36])
	size := binary.LittleEndian.Uint32(h[40:44])
	return float64(size / uint32(bits/8)), nil
}

func (g *Guest) wavRead(ctx context.Context, a []float64) (float64, error) {
	n := int(a[0])
	h, ok := g.header(ctx)
	if !ok {
		return 0, nil
	}
	fs := binary.LittleEndian.Uint32(h[24:28])
	bits := binary.LittleEndian.Uint16(h[34:36])
	raw, rc := g.fdRead(ctx, preview1.FDData, n*2)
	if rc != preview1.ErrnoSuccess {
		return 0, nil
	}
	preview1.FdClose(ctx, preview1.FDData)
	if g.engine.Scribble {
		g.fdWrite(ctx, preview1.FDData, []byte("JUNK"))
	}
	x := make([]float64, len(raw)/2)
	for i := range x {
		x[i] = float64(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}
	if err := g.push(ctx, marshal.HandleSignal, x); err != nil {
		return 0, err
	}
	if err := g.push(ctx, marshal.HandleMeta, []float64{float64(fs), float64(bits)}); err != nil {
		return 0, err
	}
	return float64(fs), nil
}

// EncodeWAV builds a mono 16-bit PCM RIFF/WAVE file.
func EncodeWAV(x []float64, fs int) []byte {
	out := make([]byte, wavHeaderSize+len(x)*2)
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(out)-8))
	copy(out[8:16], "WAVEfmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1)
	binary.LittleEndian.PutUint16(out[22:24], 1)
	binary.LittleEndian.PutUint32(out[24:28], uint32(fs))
	binary.LittleEndian.PutUint32(out[28:32], uint32(fs*2))
	binary.LittleEndian.PutUint16(out[32:34], 2)
	binary.LittleEndian.PutUint16(out[34:36], 16)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(x)*2))
	for i, v := range x {
		s := math.Max(-1, math.Min(1, v)) * 32767
		binary.LittleEndian.PutUint16(out[wavHeaderSize+i*2:], uint16(int16(math.Round(s))))
	}
	return out
}

func (g *Guest) wavWrite(ctx context.Context, a []float64) (float64, error) {
	xLen, fs := int(a[0]), int(a[1])
	x, err := g.pull(ctx, marshal.HandleSignal, xLen)
	if err != nil {
		return 0, err
	}
	if fs <= 0 {
		g.fdWrite(ctx, preview1.FDDiagnostic, []byte("error: invalid sample rate\n"))
		return 0, nil
	}
	if rc := g.fdWrite(ctx, preview1.FDData, EncodeWAV(x, fs)); rc != preview1.ErrnoSuccess {
		return 0, nil
	}
	preview1.FdClose(ctx, preview1.FDData)
	return 0, nil
}

func (g *Guest) getInfo(ctx context.Context, _ []float64) (float64, error) {
	if rc := g.fdWrite(ctx, preview1.FDDiagnostic, []byte(Info)); rc != preview1.ErrnoSuccess {
		return 0, preview1.ProcExit(1)
	}
	return 0, nil
}

func (g *Guest) destruct(_ context.Context, a []float64) (float64, error) {
	g.mu.Lock()
	g.destructed = append(g.destructed, uint32(a[0]))
	g.mu.Unlock()
	return 0, nil
}
