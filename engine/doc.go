// Package engine runs the WORLD engine module on wazero.
//
// It provides three main types:
//
//	Engine   - owns a wazero runtime and the env / wasi_snapshot_preview1 host modules
//	Module   - a compiled engine binary; every Instantiate yields a fresh instance
//	Instance - a running instance whose exports are called with float64 arguments
//
// Host modules are instantiated once per runtime and shared by every
// instance. They hold no state of their own: each import looks up the
// marshal.Call carried by the context passed to Instance.Call, which
// wazero forwards into host functions.
//
// # Argument coercion
//
// Export arguments are plain numbers, coerced to the declared parameter
// types the way a JavaScript host would: i32 parameters follow ToInt32
// (truncate, wrap modulo 2^32, NaN to 0), f32 rounds, f64 passes through.
// Void exports return 0.
//
// # Failures inside imports
//
// When an import rejects an access (unknown slot, undeclared direction,
// out-of-bounds memory, proc_exit) it records the error on the call and
// aborts the guest. Instance.Call then returns the recorded error rather
// than wazero's trap.
package engine
