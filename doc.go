// Package hexa provides a heterogeneous execution runtime for dense integer
// matrix multiplication across a CPU, a GPU and a (reserved) neural
// accelerator.
//
// The runtime partitions one N x N multiplication into two-dimensional tiles,
// distributes them across per-device work queues, and lets idle devices steal
// tiles from busy ones, subdividing large tiles as they move. A background
// monitor rebalances the queues and recovers from stalled workers so that a
// multiplication always terminates, even under badly skewed device speeds.
//
// Matrices live in shared buffers with an explicit access-state machine that
// tracks which device currently holds a read or write role and synchronizes
// the device-visible mirror at role boundaries.
//
// Example usage:
//
//	c := hexa.NewCoordinator()
//	c.Initialize()
//	defer c.Close()
//
//	a, _ := hexa.NewMatrixBuffer(n)
//	b, _ := hexa.NewMatrixBuffer(n)
//	r, _ := hexa.NewMatrixBuffer(n)
//	// ... fill a and b ...
//	err := c.ExecuteMatrixMultiplication(a, b, r)
//
// The cmd/compiler and cmd/runtime binaries wrap the package in the bytecode
// front end: the compiler lowers a source program to a JSON Lines instruction
// stream, and the runtime interprets that stream against this package.
package hexa
