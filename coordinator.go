package hexa

import (
	"fmt"
)

// Executor is the per-device execution interface the coordinator drives.
// Execute blocks until the device stops pulling work.
type Executor interface {
	Initialize()
	Execute(a, b, r *MatrixBuffer, scheduler *Scheduler, profiler *Profiler)
}

// Coordinator orchestrates one matrix multiplication across the devices: it
// tiles the output, partitions the tiles across the device queues, launches
// one executor per device, and joins on scheduler completion. It owns the
// scheduler, the profiler and the executors; they hold each other only as
// non-owning handles.
type Coordinator struct {
	cpuExecutor *CPUExecutor
	gpuExecutor *GPUExecutor
	naExecutor  *NAExecutor
	scheduler   *Scheduler
	profiler    *Profiler
}

// NewCoordinator wires a coordinator with fresh executors, scheduler and
// profiler. Call Initialize before the first multiplication and Close when
// done.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		cpuExecutor: NewCPUExecutor(),
		gpuExecutor: NewGPUExecutor(),
		naExecutor:  NewNAExecutor(),
		scheduler:   NewScheduler(),
		profiler:    NewProfiler(),
	}
}

// Initialize prepares the executors and starts the scheduler's monitor.
func (c *Coordinator) Initialize() {
	c.cpuExecutor.Initialize()
	c.gpuExecutor.Initialize()
	c.naExecutor.Initialize()
	c.scheduler.SetProfiler(c.profiler)
	c.scheduler.Initialize()
}

// Close shuts the scheduler down.
func (c *Coordinator) Close() {
	c.scheduler.Close()
}

// Scheduler returns the coordinator's scheduler.
func (c *Coordinator) Scheduler() *Scheduler {
	return c.scheduler
}

// Profiler returns the coordinator's profiler.
func (c *Coordinator) Profiler() *Profiler {
	return c.profiler
}

// ExecuteMatrixMultiplication computes r = a x b across the devices and
// blocks until the scheduler reports completion.
func (c *Coordinator) ExecuteMatrixMultiplication(a, b, r *MatrixBuffer) error {
	if a == nil || b == nil || r == nil {
		return NewInvalidOperandsError("ExecuteMatrixMultiplication", "nil matrix buffer")
	}
	if a.Size != b.Size || a.Size != r.Size {
		return NewInvalidOperandsError("ExecuteMatrixMultiplication",
			fmt.Sprintf("matrix sizes disagree: A=%d B=%d R=%d", a.Size, b.Size, r.Size))
	}

	c.profiler.StartTimer("total_execution")
	defer c.profiler.StopTimer("total_execution")

	n := a.Size
	debugf("starting matrix multiplication, size %dx%d", n, n)
	if n >= 1024 {
		c.sampleInputs(a, b)
	}

	blockSize := multiplyBlockSize(n)
	chunks := tileMatrix(n, blockSize)
	debugf("using block size %d, created %d work chunks", blockSize, len(chunks))

	cpuWork, gpuWork, naWork := c.partitionWork(chunks)
	debugf("work distribution - CPU: %d, GPU: %d, NA: %d", len(cpuWork), len(gpuWork), len(naWork))

	c.scheduler.RecordInitialAllocation(DeviceCPU, len(cpuWork))
	c.scheduler.RecordInitialAllocation(DeviceGPU, len(gpuWork))
	c.scheduler.RecordInitialAllocation(DeviceNA, len(naWork))
	c.scheduler.AddWork(cpuWork, DeviceCPU)
	c.scheduler.AddWork(gpuWork, DeviceGPU)
	c.scheduler.AddWork(naWork, DeviceNA)

	orchestrators := []struct {
		device   Device
		executor Executor
		timer    string
	}{
		{DeviceCPU, c.cpuExecutor, "cpu_execution"},
		{DeviceGPU, c.gpuExecutor, "gpu_execution"},
		{DeviceNA, c.naExecutor, "na_execution"},
	}

	done := make([]chan struct{}, len(orchestrators))
	for i, o := range orchestrators {
		done[i] = make(chan struct{})
		finished := done[i]
		o := o
		go func() {
			defer close(finished)
			debugf("starting %s execution thread", o.device)
			if c.scheduler.HasWork(o.device) {
				c.profiler.StartTimer(o.timer)
				o.executor.Execute(a, b, r, c.scheduler, c.profiler)
				c.profiler.StopTimer(o.timer)
			} else {
				o.executor.Execute(a, b, r, c.scheduler, c.profiler)
				c.profiler.RecordZeroTime(o.timer)
			}
		}()
	}

	// Join in device order, arming the stall detector as each orchestrator
	// finishes.
	for i, o := range orchestrators {
		<-done[i]
		c.scheduler.SetDeviceExited(o.device)
	}

	debugf("all execution threads joined, waiting for completion")
	c.scheduler.WaitForCompletion()
	debugf("matrix multiplication completed")
	return nil
}

// partitionWork splits the tile list across the devices in list order: the
// CPU takes the first chunks, the GPU the rest, the NA none. Under GPU_ONLY
// everything goes to the GPU and stealing is disabled for the run.
func (c *Coordinator) partitionWork(chunks []WorkChunk) (cpuWork, gpuWork, naWork []WorkChunk) {
	total := len(chunks)
	if GPUOnly() {
		debugf("GPU_ONLY mode: 100%% GPU execution, work stealing disabled")
		c.profiler.DisableWorkStealing()
		c.profiler.RecordInitialAllocation(DeviceCPU.String(), 0, total)
		c.profiler.RecordInitialAllocation(DeviceGPU.String(), total, total)
		c.profiler.RecordInitialAllocation(DeviceNA.String(), 0, total)
		return nil, chunks, nil
	}

	gpuPercent := GPUPercent()
	gpuCount := total * gpuPercent / 100
	cpuCount := total - gpuCount
	debugf("using %d/%d GPU/CPU distribution", gpuPercent, 100-gpuPercent)

	c.profiler.RecordInitialAllocation(DeviceCPU.String(), cpuCount, total)
	c.profiler.RecordInitialAllocation(DeviceGPU.String(), gpuCount, total)
	c.profiler.RecordInitialAllocation(DeviceNA.String(), 0, total)

	cpuWork = chunks[:cpuCount]
	gpuWork = chunks[cpuCount:]
	return cpuWork, gpuWork, nil
}

// sampleInputs logs the leading elements of the operands, a cheap telemetry
// probe for large runs.
func (c *Coordinator) sampleInputs(a, b *MatrixBuffer) {
	if !debugEnabled {
		return
	}
	aData := a.CPURead()
	bData := b.CPURead()
	sample := min(5, a.Size)
	debugf("matrix A leading elements: %v", aData[:sample])
	debugf("matrix B leading elements: %v", bData[:sample])
	a.ReleaseCPUAccess()
	b.ReleaseCPUAccess()
}
