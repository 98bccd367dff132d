package engine

import (
	"math"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/world-wasm/errors"
)

const two32 = 1 << 32

// toInt32 converts x the way ECMAScript ToInt32 does: NaN and infinities
// become 0, everything else is truncated and wrapped modulo 2^32.
func toInt32(x float64) int32 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	t := math.Mod(math.Trunc(x), two32)
	if t < 0 {
		t += two32
	}
	return int32(uint32(t))
}

// toInt64 truncates x, saturating at the int64 range. NaN becomes 0.
func toInt64(x float64) int64 {
	switch {
	case math.IsNaN(x):
		return 0
	case x >= math.MaxInt64:
		return math.MaxInt64
	case x <= math.MinInt64:
		return math.MinInt64
	}
	return int64(x)
}

// coerceParams encodes args for the given parameter types. Missing
// arguments are NaN, extra arguments are ignored.
func coerceParams(types []api.ValueType, args []float64) ([]uint64, error) {
	params := make([]uint64, len(types))
	for i, vt := range types {
		x := math.NaN()
		if i < len(args) {
			x = args[i]
		}
		switch vt {
		case api.ValueTypeI32:
			params[i] = api.EncodeI32(toInt32(x))
		case api.ValueTypeI64:
			params[i] = api.EncodeI64(toInt64(x))
		case api.ValueTypeF32:
			params[i] = api.EncodeF32(float32(x))
		case api.ValueTypeF64:
			params[i] = api.EncodeF64(x)
		default:
			return nil, errors.Unsupported(errors.PhaseEngine, "parameter type "+api.ValueTypeName(vt))
		}
	}
	return params, nil
}

func decodeResult(vt api.ValueType, v uint64) float64 {
	switch vt {
	case api.ValueTypeI32:
		return float64(api.DecodeI32(v))
	case api.ValueTypeI64:
		return float64(int64(v))
	case api.ValueTypeF32:
		return float64(api.DecodeF32(v))
	case api.ValueTypeF64:
		return api.DecodeF64(v)
	}
	return 0
}
