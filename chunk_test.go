package hexa

import (
	"testing"
)

// checkTiling verifies that chunks exactly cover [0,n) x [0,n) with no
// overlap and no gap.
func checkTiling(t *testing.T, chunks []WorkChunk, n int) {
	t.Helper()
	covered := make([]bool, n*n)
	for _, c := range chunks {
		if c.StartRow < 0 || c.EndRow > n || c.StartCol < 0 || c.EndCol > n {
			t.Fatalf("chunk %v outside %dx%d matrix", c, n, n)
		}
		if c.Rows() <= 0 || c.Cols() <= 0 {
			t.Fatalf("degenerate chunk %v", c)
		}
		for i := c.StartRow; i < c.EndRow; i++ {
			for j := c.StartCol; j < c.EndCol; j++ {
				if covered[i*n+j] {
					t.Fatalf("cell (%d,%d) covered twice", i, j)
				}
				covered[i*n+j] = true
			}
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if !covered[i*n+j] {
				t.Fatalf("cell (%d,%d) not covered", i, j)
			}
		}
	}
}

func TestCreateWorkChunksCoverage(t *testing.T) {
	sizes := []int{1, 2, 7, 16, 64, 128, 513, 1024}
	for _, n := range sizes {
		chunks := CreateWorkChunks(n, 64)
		if len(chunks) == 0 {
			t.Fatalf("CreateWorkChunks(%d, 64) returned no chunks", n)
		}
		checkTiling(t, chunks, n)
	}
}

func TestMultiplyBlockSizeCoverage(t *testing.T) {
	sizes := []int{1, 2, 7, 16, 64, 100, 128, 256, 513, 1024, 2048}
	for _, n := range sizes {
		bs := multiplyBlockSize(n)
		if bs <= 0 {
			t.Fatalf("multiplyBlockSize(%d) = %d", n, bs)
		}
		checkTiling(t, tileMatrix(n, bs), n)
	}
}

func TestMultiplyBlockSizeTable(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{256, 64},
		{500, 64},
		{512, 96},
		{1000, 96},
		{1024, 128},
		{2048, 128},
		{4096, 128},
		{128, 32}, // 128 % 32 == 0, no shrink needed
	}
	for _, tc := range cases {
		if got := multiplyBlockSize(tc.n); got != tc.want {
			t.Errorf("multiplyBlockSize(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}
}

func TestSmallBlockSizeDivides(t *testing.T) {
	// When a candidate divides n, the tiling must be exact.
	for _, n := range []int{16, 32, 64, 96, 128} {
		bs := smallBlockSize(n)
		if n%bs != 0 {
			t.Errorf("smallBlockSize(%d) = %d does not divide", n, bs)
		}
		if bs > n/4 && n >= 16 {
			t.Errorf("smallBlockSize(%d) = %d exceeds n/4", n, bs)
		}
	}
}

func TestCreateWorkChunksHint(t *testing.T) {
	// More chunks requested means smaller blocks for large matrices.
	coarse := CreateWorkChunks(512, 4)
	fine := CreateWorkChunks(512, 256)
	if len(fine) <= len(coarse) {
		t.Errorf("hint had no effect: %d chunks with hint 4, %d with hint 256", len(coarse), len(fine))
	}
}

func TestChunkGeometry(t *testing.T) {
	c := WorkChunk{StartRow: 2, EndRow: 10, StartCol: 4, EndCol: 7}
	if c.Rows() != 8 || c.Cols() != 3 || c.Area() != 24 {
		t.Errorf("geometry wrong: rows=%d cols=%d area=%d", c.Rows(), c.Cols(), c.Area())
	}
}

func TestSubdivide(t *testing.T) {
	t.Run("small chunk moves whole", func(t *testing.T) {
		c := WorkChunk{0, 4, 0, 4}
		stolen, kept := subdivide(c)
		if stolen != c || len(kept) != 0 {
			t.Errorf("small chunk was split: stolen=%v kept=%v", stolen, kept)
		}
	})

	t.Run("large chunk halves along longer axis", func(t *testing.T) {
		c := WorkChunk{0, 64, 0, 32}
		stolen, kept := subdivide(c)
		if len(kept) != 1 {
			t.Fatalf("expected 1 kept half, got %d", len(kept))
		}
		if stolen.Area()+kept[0].Area() != c.Area() {
			t.Errorf("area not conserved: %d + %d != %d", stolen.Area(), kept[0].Area(), c.Area())
		}
		if stolen.Rows() != 32 || kept[0].Rows() != 32 {
			t.Errorf("split not along rows: stolen=%v kept=%v", stolen, kept[0])
		}
	})

	t.Run("mid chunk quarters", func(t *testing.T) {
		c := WorkChunk{0, 16, 0, 16}
		stolen, kept := subdivide(c)
		if len(kept) != 3 {
			t.Fatalf("expected 3 kept quadrants, got %d", len(kept))
		}
		total := stolen.Area()
		for _, q := range kept {
			total += q.Area()
		}
		if total != c.Area() {
			t.Errorf("area not conserved: %d != %d", total, c.Area())
		}
		if stolen != (WorkChunk{0, 8, 0, 8}) {
			t.Errorf("thief did not get top-left quadrant: %v", stolen)
		}
	})
}
