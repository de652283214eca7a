package hexa

// NAExecutor is the reserved neural-accelerator device. It performs no
// computation: its queue is permanently empty (GetWork refuses NA pulls and
// WaitForCompletion rebalances anything that lands there), so Execute only
// clears any stray worker accounting and records an idle measurement.
type NAExecutor struct{}

// NewNAExecutor creates the no-op NA executor.
func NewNAExecutor() *NAExecutor {
	return &NAExecutor{}
}

// Initialize reports the device as unavailable.
func (e *NAExecutor) Initialize() {
	debugf("NA executor initialized (disabled)")
}

// Execute clears the NA worker count so termination never waits on the
// disabled device.
func (e *NAExecutor) Execute(a, b, r *MatrixBuffer, scheduler *Scheduler, profiler *Profiler) {
	scheduler.ResetActiveWorkers(DeviceNA)
	if profiler != nil {
		profiler.RecordZeroTime("na_execution")
	}
	debugf("NA executor finished (no-op)")
}
