// Package errors provides structured error types for the world-wasm library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, dtype name, offending value and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseValidate, errors.KindShapeMismatch).
//		Path("spectrogram").
//		DType("float64").
//		Detail("spectral width %d does not match aperiodicity %d", 513, 257).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidSlot(3, "push not declared")
//	err := errors.OutOfBounds(errors.PhaseMarshal, path, 70000, 65536)
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on phase and kind, so a bare &Error{Phase: p, Kind: k} works as
// a target.
package errors
