package hexa

import (
	"runtime"
	"sync"
	"time"
)

// GPUExecutor is the simulated GPU device: a single driver goroutine pulls
// chunks from the scheduler's GPU queue and executes each one as a command
// batch, a two-dimensional dispatch grid of 16x16 threadgroups run against
// the device mirrors between PrepareForGPUAccess and ReleaseGPUAccess.
//
// The GPU path computes exactly its own chunks; it never writes output
// cells outside the chunk it was handed.
type GPUExecutor struct {
	// Threadgroups dispatched concurrently per command batch.
	parallelism int
}

// NewGPUExecutor creates an uninitialized GPU executor.
func NewGPUExecutor() *GPUExecutor {
	return &GPUExecutor{}
}

// Initialize sizes the device's internal dispatch width.
func (e *GPUExecutor) Initialize() {
	e.parallelism = runtime.NumCPU()
	debugf("GPU executor initialized with dispatch width %d", e.parallelism)
}

// Execute drains the GPU queue with the single driver worker.
func (e *GPUExecutor) Execute(a, b, r *MatrixBuffer, scheduler *Scheduler, profiler *Profiler) {
	if e.parallelism == 0 {
		e.Initialize()
	}
	for {
		chunk := scheduler.GetWork(DeviceGPU)
		if chunk == nil {
			break
		}
		start := time.Now()
		e.executeChunk(a, b, r, *chunk)
		seconds := time.Since(start).Seconds()
		if profiler != nil {
			profiler.RecordChunkExecution(DeviceGPU.String(), chunk.Area())
		}
		scheduler.RecordChunkProcessingTime(DeviceGPU, seconds)
	}
	scheduler.ResetActiveWorkers(DeviceGPU)
	debugf("GPU executor finished")
}

// executeChunk runs one command batch: claim GPU roles on the three buffers,
// dispatch the threadgroup grid over the chunk, release.
func (e *GPUExecutor) executeChunk(a, b, r *MatrixBuffer, chunk WorkChunk) {
	a.PrepareForGPUAccess(true)
	b.PrepareForGPUAccess(true)
	r.PrepareForGPUAccess(false)
	defer r.ReleaseGPUAccess()
	defer b.ReleaseGPUAccess()
	defer a.ReleaseGPUAccess()

	aDev := a.DeviceData()
	bDev := b.DeviceData()
	rDev := r.DeviceData()
	n := a.Size

	gridRows := (chunk.Rows() + GPUTileSize - 1) / GPUTileSize
	gridCols := (chunk.Cols() + GPUTileSize - 1) / GPUTileSize
	tiles := gridRows * gridCols

	workers := min(e.parallelism, tiles)
	if workers <= 1 {
		for t := 0; t < tiles; t++ {
			gpuTileKernel(aDev, bDev, rDev, n, chunk, t/gridCols, t%gridCols)
		}
		return
	}

	// Contiguous tile ranges per worker, the batch joining before release.
	tilesPerWorker := (tiles + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		startTile := w * tilesPerWorker
		endTile := min(startTile+tilesPerWorker, tiles)
		if startTile >= endTile {
			break
		}
		wg.Add(1)
		go func(startTile, endTile int) {
			defer wg.Done()
			for t := startTile; t < endTile; t++ {
				gpuTileKernel(aDev, bDev, rDev, n, chunk, t/gridCols, t%gridCols)
			}
		}(startTile, endTile)
	}
	wg.Wait()
}
