package hexa

import (
	"golang.org/x/sys/cpu"
)

// CPUFeatures tracks the instruction-set extensions that matter for the CPU
// kernel's inner loop.
type CPUFeatures struct {
	HasSSE4   bool
	HasAVX2   bool
	HasAVX512 bool
	HasNEON   bool
}

// Global CPU feature detection
var cpuFeatures CPUFeatures

func init() {
	detectCPUFeatures()
}

// detectCPUFeatures populates the global cpuFeatures struct
func detectCPUFeatures() {
	cpuFeatures = CPUFeatures{
		HasSSE4:   cpu.X86.HasSSE41 || cpu.X86.HasSSE42,
		HasAVX2:   cpu.X86.HasAVX2 && cpu.X86.HasFMA,
		HasAVX512: cpu.X86.HasAVX512F,
		HasNEON:   cpu.ARM64.HasASIMD,
	}
}

// kernelUnrollFactor returns the inner-loop unroll width for the CPU kernel.
// Wide-vector hosts get the 8-wide body, everything else the 4-wide one.
func kernelUnrollFactor() int {
	if cpuFeatures.HasAVX512 || cpuFeatures.HasAVX2 || cpuFeatures.HasNEON {
		return 8
	}
	return 4
}
