// Package ndarray provides shaped, zero-copy views over flat typed buffers
// and the packed wire form used to move them across isolation boundaries.
//
// A View[T] is {buffer, shape, offset}. Reshape, Subarray and At never copy;
// every derived view shares the source buffer:
//
//	v, _ := ndarray.Create(buf, []int{frames, bins}, 0)
//	row := v.Row(3)          // []float64 window into buf
//	head := v.Subarray(0, 10) // first 10 frames, same buffer
//
// Slice, Clone and Unpack copy. Pack produces a Packed {dtype, shape, data}
// whose data aliases the view; Adopt rebuilds a view that takes ownership of
// packed bytes, which is how transferred results avoid a copy.
package ndarray
