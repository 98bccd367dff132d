// Package preview1 emulates the subset of WASI preview1 the WORLD engine
// uses for I/O: a handful of fd_* calls against in-memory files.
//
// Files are looked up in a Table that travels in the call's context.Context,
// so one set of host functions serves every instance in a runtime. The
// engine writes diagnostics to FDDiagnostic and reads or writes container
// bytes through FDData.
package preview1
