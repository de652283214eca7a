package hexa

import (
	"runtime"
	"sync"
	"time"
)

// CPUExecutor runs a pool of worker goroutines that pull chunks from the
// scheduler's CPU queue and apply the blocked integer kernel. Before the
// pool starts it opportunistically steals a share of the GPU's initial
// allocation so both devices ramp up together.
type CPUExecutor struct {
	numWorkers int
}

// NewCPUExecutor creates an uninitialized CPU executor.
func NewCPUExecutor() *CPUExecutor {
	return &CPUExecutor{}
}

// Initialize sizes the worker pool from the host's core count, leaving a
// reserve for the GPU driver and the monitor. Heterogeneous-core arm64
// hosts are capped so the pool stays on the performance cores.
func (e *CPUExecutor) Initialize() {
	n := runtime.NumCPU()
	if runtime.GOARCH == "arm64" {
		switch {
		case n >= 8:
			n = 5
		case n >= 6:
			n = 4
		default:
			n = max(1, n-1)
		}
	} else {
		n = max(1, n-2)
	}
	e.numWorkers = n
	debugf("CPU executor initialized with %d workers", n)
}

// NumWorkers returns the configured pool size.
func (e *CPUExecutor) NumWorkers() int {
	return e.numWorkers
}

// Execute drains the CPU queue with the worker pool and returns once every
// worker has stopped pulling.
func (e *CPUExecutor) Execute(a, b, r *MatrixBuffer, scheduler *Scheduler, profiler *Profiler) {
	if e.numWorkers == 0 {
		e.Initialize()
	}
	if !GPUOnly() {
		e.startupSteal(scheduler, profiler)
	}

	var wg sync.WaitGroup
	for i := 0; i < e.numWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				chunk := scheduler.GetWork(DeviceCPU)
				if chunk == nil {
					debugf("CPU worker %d exiting", id)
					return
				}
				start := time.Now()
				multiplyChunkCPU(a, b, r, *chunk)
				seconds := time.Since(start).Seconds()
				if profiler != nil {
					profiler.RecordChunkExecution(DeviceCPU.String(), chunk.Area())
				}
				scheduler.RecordChunkProcessingTime(DeviceCPU, seconds)
			}
		}(i)
	}
	wg.Wait()

	// A worker that timed out between increment and decrement would wedge
	// WaitForCompletion; the pool is gone, so the count must be zero.
	scheduler.ResetActiveWorkers(DeviceCPU)
	debugf("CPU executor finished")
}

// startupSteal pulls an early share of chunks off the GPU queue, sized by
// how much the GPU was given. The coordinator enqueues all work before any
// executor starts, so the GPU queue is fully populated here.
func (e *CPUExecutor) startupSteal(scheduler *Scheduler, profiler *Profiler) {
	gpuQueueSize := scheduler.QueueSize(DeviceGPU)
	var target int
	switch {
	case gpuQueueSize < 20:
		target = 2
	case gpuQueueSize < 100:
		target = 10
	case gpuQueueSize < 500:
		target = 30
	default:
		target = 100
	}

	steals := 0
	for attempt := 0; attempt < StartupStealAttempts && steals < target; attempt++ {
		if stolen := scheduler.Steal(DeviceGPU, DeviceCPU); stolen != nil {
			if profiler != nil {
				profiler.RecordStealEvent(DeviceGPU.String(), DeviceCPU.String())
			}
			scheduler.AddWork([]WorkChunk{*stolen}, DeviceCPU)
			steals++
		}
		time.Sleep(StartupStealInterval)
	}
	debugf("CPU stole %d chunks from GPU at startup", steals)
}
