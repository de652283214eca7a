package hexa

import (
	"math/rand"
	"testing"
)

// naiveMultiply is the reference kernel: plain triple loop over int32 with
// two's-complement wrap, the semantics every device path must match.
func naiveMultiply(a, b []int32, n int) []int32 {
	r := make([]int32, n*n)
	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			aVal := a[i*n+k]
			if aVal == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				r[i*n+j] += aVal * b[k*n+j]
			}
		}
	}
	return r
}

// fillRandom fills data with values in [-1000, 1000].
func fillRandom(data []int32, rng *rand.Rand) {
	for i := range data {
		data[i] = int32(rng.Intn(2001) - 1000)
	}
}

// newFilledBuffer allocates an n x n buffer and fills it through the CPU
// write role.
func newFilledBuffer(t testing.TB, n int, rng *rand.Rand) *MatrixBuffer {
	t.Helper()
	m, err := NewMatrixBuffer(n)
	if err != nil {
		t.Fatalf("NewMatrixBuffer(%d) failed: %v", n, err)
	}
	data := m.CPUWrite()
	fillRandom(data, rng)
	m.ReleaseCPUAccess()
	return m
}

// newBufferFrom allocates an n x n buffer holding the given values.
func newBufferFrom(t testing.TB, n int, values []int32) *MatrixBuffer {
	t.Helper()
	m, err := NewMatrixBuffer(n)
	if err != nil {
		t.Fatalf("NewMatrixBuffer(%d) failed: %v", n, err)
	}
	data := m.CPUWrite()
	copy(data, values)
	m.ReleaseCPUAccess()
	return m
}

// checkResult compares a result buffer against the reference product.
func checkResult(t testing.TB, r *MatrixBuffer, want []int32) {
	t.Helper()
	got := r.CPURead()
	defer r.ReleaseCPUAccess()
	n := r.Size
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if got[i*n+j] != want[i*n+j] {
				t.Fatalf("result mismatch at (%d,%d): got %d, want %d", i, j, got[i*n+j], want[i*n+j])
			}
		}
	}
}

// multiplyWithCoordinator runs one full heterogeneous multiplication and
// verifies the result against the reference kernel.
func multiplyWithCoordinator(t testing.TB, n int, seed int64) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	a := newFilledBuffer(t, n, rng)
	b := newFilledBuffer(t, n, rng)
	r, err := NewMatrixBuffer(n)
	if err != nil {
		t.Fatalf("NewMatrixBuffer(%d) failed: %v", n, err)
	}

	c := NewCoordinator()
	c.Initialize()
	defer c.Close()
	if err := c.ExecuteMatrixMultiplication(a, b, r); err != nil {
		t.Fatalf("ExecuteMatrixMultiplication failed: %v", err)
	}

	want := naiveMultiply(a.CPURead(), b.CPURead(), n)
	a.ReleaseCPUAccess()
	b.ReleaseCPUAccess()
	checkResult(t, r, want)

	// The scheduler must have drained completely.
	for d := Device(0); d < numDevices; d++ {
		if size := c.Scheduler().QueueSize(d); size != 0 {
			t.Errorf("%s queue not empty after completion: %d chunks", d, size)
		}
		if workers := c.Scheduler().ActiveWorkers(d); workers != 0 {
			t.Errorf("%s has %d active workers after completion", d, workers)
		}
	}
}
