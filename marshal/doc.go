// Package marshal moves arrays between Go and the engine's linear memory.
//
// Each export call gets a fresh Call holding a slot table (Context), the
// call's descriptor table and the heap pointers the engine registered for
// release. The Call travels in the context.Context handed to the export;
// wazero passes that context into every host import, which is how the env
// functions find it. Nothing per-call is stored on the instance.
//
// Slots are addressed by small integer handles with a fixed meaning:
//
//	0  signal (input samples, output waveform, decoded samples)
//	1  time axis, or WAV metadata [fs, nbit] after _wavread
//	2  f0
//	3  spectrogram (2-D)
//	4  aperiodicity (2-D)
//
// A call declares which handles the engine may pull from and push to; any
// other access is a boundary violation that aborts the guest.
package marshal
