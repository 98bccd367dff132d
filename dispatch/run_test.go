package dispatch

import (
	"context"
	stderrors "errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/world-wasm/errors"
	"github.com/wippyai/world-wasm/internal/enginetest"
	"github.com/wippyai/world-wasm/ndarray"
	"github.com/wippyai/world-wasm/world"
)

const testRate = 16000

func sine(n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = 0.5 * math.Sin(2*math.Pi*220*float64(i)/testRate)
	}
	return x
}

func dioRequest(n int) *Request {
	return NewRequest(OpDio, Args{SampleRate: testRate}).Set(ArraySignal, ndarray.FromSlice(sine(n)))
}

type codecError struct{ msg string }

func (e *codecError) Error() string { return e.msg }

func TestNewRequest(t *testing.T) {
	req := NewRequest(OpDescribe, Args{})
	assert.EqualValues(t, 7, req.ID.Version())
	assert.NotEqual(t, req.ID, NewRequest(OpDescribe, Args{}).ID)
}

func TestOpValid(t *testing.T) {
	for _, op := range Ops {
		assert.True(t, op.Valid(), op)
	}
	assert.False(t, Op("eval").Valid())
}

func TestRun_Dio(t *testing.T) {
	eng := &enginetest.Engine{}
	req := dioRequest(testRate)

	resp, err := Run(context.Background(), eng, req)
	require.NoError(t, err)
	assert.Equal(t, req.ID, resp.ID)
	assert.ElementsMatch(t, []string{ArrayF0, ArrayTimeAxis}, resp.Transfer)

	f0, err := resp.Result.Float64s(ArrayF0)
	require.NoError(t, err)
	assert.Len(t, f0, enginetest.Frames(testRate, testRate, world.DefaultFramePeriod))

	assert.Equal(t, 1, eng.Instances())
	assert.Equal(t, 1, eng.Closed(), "the worker closes its instance")
}

func TestRun_ResultTakenOnce(t *testing.T) {
	resp, err := Run(context.Background(), &enginetest.Engine{}, dioRequest(800))
	require.NoError(t, err)

	_, err = resp.Result.View(ArrayF0)
	require.NoError(t, err)
	_, err = resp.Result.View(ArrayF0)
	assert.Error(t, err, "adopting a moved array twice should fail")

	_, err = resp.Result.View("nope")
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseDispatch, Kind: errors.KindNotFound}))
}

func TestRun_TransferDetachesSender(t *testing.T) {
	req := dioRequest(800).Move(ArraySignal)
	_, err := Run(context.Background(), &enginetest.Engine{}, req)
	require.NoError(t, err)

	p := req.Args.Arrays[ArraySignal]
	assert.True(t, p.Detached())
}

func TestRun_CloneKeepsSender(t *testing.T) {
	x := sine(800)
	req := NewRequest(OpDio, Args{SampleRate: testRate}).Set(ArraySignal, ndarray.FromSlice(x))

	_, err := Run(context.Background(), &enginetest.Engine{}, req)
	require.NoError(t, err)

	p := req.Args.Arrays[ArraySignal]
	assert.False(t, p.Detached())
	assert.Equal(t, sine(800), x)
}

func TestRun_RejectedBeforeStart(t *testing.T) {
	bad := ndarray.Packed{DType: ndarray.Float64, Shape: []int{4}, Data: make([]byte, 8)}

	tests := []struct {
		name string
		req  func() *Request
	}{
		{"unknown op", func() *Request { return NewRequest("eval", Args{}) }},
		{"transfer of unset argument", func() *Request { return dioRequest(10).Move(ArrayF0) }},
		{"malformed array", func() *Request {
			r := dioRequest(10).Move(ArraySignal)
			r.Args.Arrays[ArrayF0] = bad
			return r
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &enginetest.Engine{}
			req := tt.req()
			_, err := Run(context.Background(), eng, req)
			require.Error(t, err)
			assert.Equal(t, 0, eng.Instances())
			if p, ok := req.Args.Arrays[ArraySignal]; ok {
				assert.False(t, p.Detached(), "nothing is moved when the request is rejected")
			}
		})
	}
}

func TestRun_NilArguments(t *testing.T) {
	_, err := Run(context.Background(), nil, dioRequest(10))
	assert.Error(t, err)
	_, err = Run(context.Background(), &enginetest.Engine{}, nil)
	assert.Error(t, err)
}

func TestRun_Failures(t *testing.T) {
	structured := errors.InvalidParameter(world.ExportGetInfo, -3)

	tests := []struct {
		name   string
		panic  any
		form   FailureForm
		verify func(t *testing.T, err error)
	}{
		{
			name:  "string panic keeps its message",
			panic: "engine exploded",
			form:  FormString,
			verify: func(t *testing.T, err error) {
				assert.Equal(t, "engine exploded", err.Error())
			},
		},
		{
			name:  "structured error keeps phase and kind",
			panic: structured,
			form:  FormError,
			verify: func(t *testing.T, err error) {
				assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseEngine, Kind: errors.KindInvalidParameter}))
				assert.Equal(t, structured.Error(), err.Error())
			},
		},
		{
			name:  "other error keeps name and message",
			panic: &codecError{msg: "bad chunk"},
			form:  FormRemote,
			verify: func(t *testing.T, err error) {
				var remote *RemoteError
				require.ErrorAs(t, err, &remote)
				assert.Equal(t, "codecError", remote.Name)
				assert.Equal(t, "bad chunk", remote.Message)
				assert.Contains(t, remote.Stack, "goroutine")
			},
		},
		{
			name:  "json value is forwarded",
			panic: map[string]int{"code": 7},
			form:  FormValue,
			verify: func(t *testing.T, err error) {
				var remote *RemoteError
				require.ErrorAs(t, err, &remote)
				assert.JSONEq(t, `{"code":7}`, string(remote.Value))
			},
		},
		{
			name:  "opaque value becomes a generic error",
			panic: make(chan int),
			form:  FormOpaque,
			verify: func(t *testing.T, err error) {
				assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseDispatch, Kind: errors.KindTransport}))
				assert.Contains(t, err.Error(), opaqueMessage)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &enginetest.Engine{Panic: world.ExportGetInfo, PanicValue: tt.panic}
			resp, err := Run(context.Background(), eng, NewRequest(OpDescribe, Args{}))
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.form, resp.Err.Form)
			assert.Empty(t, resp.Transfer)
			tt.verify(t, err)
			assert.Equal(t, 1, eng.Closed(), "the instance is closed after a panic")
		})
	}
}

func TestRun_ReturnedErrors(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		req := NewRequest(OpDio, Args{}).Set(ArraySignal, ndarray.FromSlice(sine(10)))
		_, err := Run(context.Background(), &enginetest.Engine{}, req)
		assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseValidate, Kind: errors.KindInvalidInput}), "err = %v", err)
	})

	t.Run("missing exports", func(t *testing.T) {
		eng := &enginetest.Engine{Missing: []string{world.ExportD4C}}
		resp, err := Run(context.Background(), eng, NewRequest(OpDescribe, Args{}))
		require.Error(t, err)
		assert.Equal(t, FormRemote, resp.Err.Form)
		assert.Equal(t, "MissingExportsError", resp.Err.Name)
		assert.Contains(t, err.Error(), world.ExportD4C)
	})

	t.Run("missing argument", func(t *testing.T) {
		_, err := Run(context.Background(), &enginetest.Engine{}, NewRequest(OpStoneMask, Args{SampleRate: testRate}))
		assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseDispatch, Kind: errors.KindInvalidInput}), "err = %v", err)
	})
}

func TestRun_Abandoned(t *testing.T) {
	eng := &enginetest.Engine{Hold: world.ExportGetInfo, Release: make(chan struct{})}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	resp, err := Run(ctx, eng, NewRequest(OpDescribe, Args{}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, resp)

	close(eng.Release)
	assert.Eventually(t, func() bool { return eng.Closed() == 1 }, time.Second, 5*time.Millisecond,
		"the abandoned task still finishes and closes its instance")
}

func TestRunAll(t *testing.T) {
	eng := &enginetest.Engine{}
	reqs := []*Request{
		dioRequest(1600),
		NewRequest(OpHarvest, Args{SampleRate: testRate}).Set(ArraySignal, ndarray.FromSlice(sine(1600))),
		NewRequest(OpDescribe, Args{}),
	}

	resps, err := RunAll(context.Background(), eng, reqs)
	require.NoError(t, err)
	require.Len(t, resps, 3)
	for i, resp := range resps {
		assert.Equal(t, reqs[i].ID, resp.ID)
		assert.Equal(t, reqs[i].Op, resp.Op)
	}
	f0, err := resps[1].Result.Float64s(ArrayF0)
	require.NoError(t, err)
	assert.Equal(t, 120.0, f0[0])
	assert.Equal(t, enginetest.Info[:len(enginetest.Info)-1], resps[2].Result.Text)
	assert.Equal(t, 3, eng.Instances())
	assert.Equal(t, 3, eng.Closed())
}

func TestRunAll_IndependentFailures(t *testing.T) {
	reqs := []*Request{
		dioRequest(800),
		NewRequest(OpDio, Args{}).Set(ArraySignal, ndarray.FromSlice(sine(800))),
	}
	resps, err := RunAll(context.Background(), &enginetest.Engine{}, reqs)
	require.Error(t, err)
	require.NotNil(t, resps[0])
	assert.Nil(t, resps[0].Err)
	require.NotNil(t, resps[1])
	assert.NotNil(t, resps[1].Err)
}
