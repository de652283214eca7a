package hexa

import (
	"sort"
	"sync/atomic"
	"time"
)

// Scheduler owns the three per-device work queues and drives the
// work-stealing machinery: handing tiles to device workers, migrating tiles
// between queues (with subdivision), and terminating cleanly once every
// queue is empty and every worker has stopped.
//
// The scheduler, the profiler and the executors reference one another as
// non-owning handles; the Coordinator owns all of them and outlives them.
type Scheduler struct {
	queues [numDevices]deviceQueue

	totalWork         atomic.Int64
	shutdownRequested atomic.Bool
	monitorActive     atomic.Bool

	deviceExited  [numDevices]atomic.Bool
	lastWorkMilli [numDevices]atomic.Int64

	profiler *Profiler
}

// NewScheduler creates a scheduler with empty queues. Call Initialize to
// start the balance monitor and Close to stop it.
func NewScheduler() *Scheduler {
	s := &Scheduler{}
	for i := range s.queues {
		s.queues[i].init()
	}
	return s
}

// SetProfiler attaches the profiler that records steal events. The scheduler
// does not own it.
func (s *Scheduler) SetProfiler(p *Profiler) {
	s.profiler = p
}

// Initialize starts the background balance monitor.
func (s *Scheduler) Initialize() {
	debugf("starting work stealing monitor")
	s.monitorActive.Store(true)
	go s.monitor()
}

// Close requests shutdown and waits briefly for the monitor to exit.
func (s *Scheduler) Close() {
	s.shutdownRequested.Store(true)
	deadline := time.Now().Add(MonitorDrainTimeout)
	for s.monitorActive.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.monitorActive.Load() {
		warnf("monitor did not exit cleanly")
	}
}

// AddWork enqueues chunks on a device's queue and wakes its workers.
func (s *Scheduler) AddWork(chunks []WorkChunk, device Device) {
	if !device.valid() || len(chunks) == 0 {
		return
	}
	q := &s.queues[device]
	q.push(chunks...)
	s.totalWork.Add(int64(len(chunks)))
	q.notify()
}

// GetWork blocks until a chunk is available on the device's queue, a steal
// fills it, or the wait budget runs out. It returns nil when the device
// should stop pulling: the NA device always, otherwise when the system has
// no work left or the caller waited out GetWorkMaxWait. The returned chunk
// is the caller's copy.
func (s *Scheduler) GetWork(device Device) *WorkChunk {
	if device == DeviceNA {
		debugf("NA is disabled, skipping GetWork")
		return nil
	}
	gpuOnly := GPUOnly()
	q := &s.queues[device]

	q.mu.Lock()
	if len(q.chunks) == 0 && s.totalWork.Load() == 0 {
		q.mu.Unlock()
		debugf("%s has no work and no work remains in system", device)
		return nil
	}
	q.activeWorkers.Add(1)

	var waited, sinceSteal time.Duration
	for len(q.chunks) == 0 && s.totalWork.Load() > 0 && waited < GetWorkMaxWait {
		q.mu.Unlock()
		select {
		case <-q.signal:
		case <-time.After(GetWorkPollInterval):
		}
		waited += GetWorkPollInterval
		sinceSteal += GetWorkPollInterval
		if !gpuOnly && sinceSteal >= DirectStealInterval {
			sinceSteal = 0
			if busy := s.SelectDeviceToStealFrom(device); busy != device {
				debugf("%s attempting to directly steal work from %s", device, busy)
				if stolen := s.Steal(busy, device); stolen != nil {
					if s.profiler != nil {
						s.profiler.RecordStealEvent(busy.String(), device.String())
					}
					s.AddWork([]WorkChunk{*stolen}, device)
				}
			}
		}
		q.mu.Lock()
	}

	if len(q.chunks) == 0 {
		if q.activeWorkers.Load() > 0 {
			q.activeWorkers.Add(-1)
		} else {
			warnf("%s worker count already at 0", device)
		}
		q.mu.Unlock()
		return nil
	}

	chunk := q.chunks[0]
	q.chunks = q.chunks[1:]
	q.lastWorkTime = time.Now()
	s.totalWork.Add(-1)
	q.mu.Unlock()

	s.lastWorkMilli[device].Store(time.Now().UnixMilli())
	debugf("%s got work chunk %v, remaining: %d", device, chunk, s.totalWork.Load())
	return &chunk
}

// HasWork reports whether the device's queue holds any chunks.
func (s *Scheduler) HasWork(device Device) bool {
	return s.queues[device].size() > 0
}

// QueueSize returns the current length of a device's queue.
func (s *Scheduler) QueueSize(device Device) int {
	return s.queues[device].size()
}

// ActiveWorkers returns the number of workers currently pulling on a device.
func (s *Scheduler) ActiveWorkers(device Device) int {
	return int(s.queues[device].activeWorkers.Load())
}

// TotalWork returns the scheduler's (eventually consistent) work counter.
func (s *Scheduler) TotalWork() int {
	return int(s.totalWork.Load())
}

// RecordInitialAllocation notes the coordinator's initial chunk allocation
// for a device. The reporting counter and the steal-accounting counter start
// equal and diverge as chunks migrate.
func (s *Scheduler) RecordInitialAllocation(device Device, count int) {
	q := &s.queues[device]
	q.mu.Lock()
	q.initialChunks = count
	q.allocatedChunks = count
	q.mu.Unlock()
}

// AllocatedChunks returns the steal-adjusted allocation counter. It may go
// negative for a device that lost more chunks than it was assigned.
func (s *Scheduler) AllocatedChunks(device Device) int {
	q := &s.queues[device]
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.allocatedChunks
}

// InitialChunks returns the reporting counter: the coordinator's initial
// allocation, untouched by steals.
func (s *Scheduler) InitialChunks(device Device) int {
	q := &s.queues[device]
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.initialChunks
}

// SetDeviceExited marks a device's orchestrator goroutine as finished, which
// arms the stall detector for its remaining workers.
func (s *Scheduler) SetDeviceExited(device Device) {
	s.deviceExited[device].Store(true)
}

// ResetActiveWorkers zeroes a device's worker count. Executors call this on
// the way out so a miscounted worker cannot block termination.
func (s *Scheduler) ResetActiveWorkers(device Device) {
	q := &s.queues[device]
	if n := q.activeWorkers.Load(); n > 0 {
		debugf("%s executor resetting %d active workers to 0", device, n)
	}
	q.activeWorkers.Store(0)
}

// RecordChunkProcessingTime folds one processing-time sample into the
// device's moving average and bumps its processed counter. The first sample
// replaces the zero value outright.
func (s *Scheduler) RecordChunkProcessingTime(device Device, seconds float64) {
	q := &s.queues[device]
	q.mu.Lock()
	if q.chunksProcessed == 0 {
		q.avgProcessingTime = seconds
	} else {
		q.avgProcessingTime = q.avgProcessingTime*(1-ProcessingTimeEMAWeight) + seconds*ProcessingTimeEMAWeight
	}
	q.chunksProcessed++
	q.lastWorkTime = time.Now()
	q.mu.Unlock()
	s.lastWorkMilli[device].Store(time.Now().UnixMilli())
}

// AvgProcessingTime returns the device's moving-average seconds per chunk.
func (s *Scheduler) AvgProcessingTime(device Device) float64 {
	q := &s.queues[device]
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.avgProcessingTime
}

// ChunksProcessed returns the device's monotonic processed-chunk counter.
func (s *Scheduler) ChunksProcessed(device Device) int {
	q := &s.queues[device]
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.chunksProcessed
}

// Steal migrates one chunk from one device's queue to another's, subdividing
// large chunks so the victim keeps part of the work. It returns nil when
// stealing is disabled, either side is the NA device, the victim's lock is
// contended, or the victim holds at most one chunk. The caller is
// responsible for AddWork-ing the returned chunk onto the thief's queue.
func (s *Scheduler) Steal(from, to Device) *WorkChunk {
	if GPUOnly() {
		debugf("stealing disabled in GPU_ONLY mode")
		return nil
	}
	if from == DeviceNA || to == DeviceNA {
		debugf("NA is disabled, skipping work stealing involving NA")
		return nil
	}
	fromQ := &s.queues[from]
	if !fromQ.mu.TryLock() {
		debugf("cannot steal from %s: queue is locked", from)
		return nil
	}
	if len(fromQ.chunks) <= 1 {
		n := len(fromQ.chunks)
		fromQ.mu.Unlock()
		debugf("cannot steal from %s: only %d chunks (need > 1)", from, n)
		return nil
	}

	// Take the largest chunk; the rest go back in area-descending order
	// (the sort is stable, so equal-area chunks keep their FIFO order).
	chunks := make([]WorkChunk, len(fromQ.chunks))
	copy(chunks, fromQ.chunks)
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Area() > chunks[j].Area()
	})
	chunk := chunks[0]
	fromQ.chunks = fromQ.chunks[:0]
	fromQ.chunks = append(fromQ.chunks, chunks[1:]...)
	fromQ.allocatedChunks--

	stolen, pushedBack := subdivide(chunk)
	fromQ.chunks = append(fromQ.chunks, pushedBack...)
	fromQ.mu.Unlock()

	// The victim's queue swapped one chunk for len(pushedBack) pieces; the
	// stolen piece is counted when the caller re-enqueues it.
	if delta := int64(len(pushedBack)) - 1; delta != 0 {
		s.totalWork.Add(delta)
	}

	toQ := &s.queues[to]
	toQ.mu.Lock()
	toQ.allocatedChunks++
	toQ.mu.Unlock()

	debugf("stole chunk %v (%d cells) from %s to %s", stolen, stolen.Area(), from, to)
	return &stolen
}

// subdivide splits a stolen chunk: small chunks move whole, large ones are
// halved along the longer axis, and mid-size ones are quartered with the
// thief taking the top-left quadrant. The second return value is what the
// victim keeps.
func subdivide(c WorkChunk) (WorkChunk, []WorkChunk) {
	rows, cols := c.Rows(), c.Cols()
	if rows <= StealMinSplitEdge && cols <= StealMinSplitEdge {
		return c, nil
	}
	midRow := c.StartRow + rows/2
	midCol := c.StartCol + cols/2
	if rows >= StealHalveEdge || cols >= StealHalveEdge {
		if rows > cols {
			top := WorkChunk{c.StartRow, midRow, c.StartCol, c.EndCol}
			bottom := WorkChunk{midRow, c.EndRow, c.StartCol, c.EndCol}
			return bottom, []WorkChunk{top}
		}
		left := WorkChunk{c.StartRow, c.EndRow, c.StartCol, midCol}
		right := WorkChunk{c.StartRow, c.EndRow, midCol, c.EndCol}
		return right, []WorkChunk{left}
	}
	q1 := WorkChunk{c.StartRow, midRow, c.StartCol, midCol}
	q2 := WorkChunk{c.StartRow, midRow, midCol, c.EndCol}
	q3 := WorkChunk{midRow, c.EndRow, c.StartCol, midCol}
	q4 := WorkChunk{midRow, c.EndRow, midCol, c.EndCol}
	return q1, []WorkChunk{q2, q3, q4}
}

// SelectDeviceToStealFrom scores the other pull-capable devices by expected
// remaining latency (queue length times average chunk time, divided by the
// workers draining it) and returns the busiest. It returns idleDevice itself
// when no candidate holds more than one chunk.
func (s *Scheduler) SelectDeviceToStealFrom(idleDevice Device) Device {
	if GPUOnly() || idleDevice == DeviceNA {
		return idleDevice
	}
	best := idleDevice
	maxScore := 0.0
	for d := Device(0); d < numDevices; d++ {
		if d == idleDevice || d == DeviceNA {
			continue
		}
		q := &s.queues[d]
		q.mu.Lock()
		queueSize := len(q.chunks)
		avg := q.avgProcessingTime
		q.mu.Unlock()
		if queueSize <= 1 {
			continue
		}
		if avg < StealScoreMinAvgTime.Seconds() {
			avg = StealScoreMinAvgTime.Seconds()
		}
		workers := int(q.activeWorkers.Load())
		if workers < 1 {
			workers = 1
		}
		score := float64(queueSize) * avg / float64(workers)
		if score > maxScore {
			maxScore = score
			best = d
		}
	}
	return best
}

// monitor is the background balance loop: it steals on behalf of idle
// devices and proactively tops up under-filled queues while a
// multiplication is in flight, idling in between. It runs until Close.
func (s *Scheduler) monitor() {
	defer s.monitorActive.Store(false)
	debugf("monitor started")
	gpuOnly := GPUOnly()
	// Let the initial partition settle before balancing.
	time.Sleep(200 * time.Millisecond)

	cooldown := 0
	for !s.shutdownRequested.Load() {
		if gpuOnly {
			time.Sleep(MonitorIntervalGPUOnly)
			continue
		}
		time.Sleep(MonitorInterval)
		if s.totalWork.Load() <= 0 && !s.anyActiveWorkers() {
			continue
		}
		if cooldown > 0 {
			cooldown--
		}

		for d := Device(0); d < numDevices; d++ {
			if s.shutdownRequested.Load() {
				break
			}
			if d == DeviceNA {
				continue
			}
			if !s.HasWork(d) && s.totalWork.Load() > 0 && s.queues[d].activeWorkers.Load() > 0 {
				if s.stealFor(d) {
					cooldown = StealCooldownCycles
				}
			}
		}
		if cooldown > 0 {
			continue
		}

		for d := Device(0); d < numDevices; d++ {
			if s.shutdownRequested.Load() {
				break
			}
			if d == DeviceNA {
				continue
			}
			queueSize := s.queues[d].size()
			workers := s.queues[d].activeWorkers.Load()
			if workers > 0 && float64(s.totalWork.Load()) > ProactiveStealFactor*float64(queueSize) {
				debugf("proactive stealing for %s with queue size %d and %d workers", d, queueSize, workers)
				if s.stealFor(d) {
					cooldown = StealCooldownCycles
				}
			}
		}
	}
	debugf("monitor exiting")
}

// stealFor picks a victim for the given device and performs one steal,
// recording the event and re-enqueueing the stolen chunk on success.
func (s *Scheduler) stealFor(d Device) bool {
	busy := s.SelectDeviceToStealFrom(d)
	if busy == d {
		return false
	}
	stolen := s.Steal(busy, d)
	if stolen == nil {
		return false
	}
	if s.profiler != nil {
		s.profiler.RecordStealEvent(busy.String(), d.String())
	}
	s.AddWork([]WorkChunk{*stolen}, d)
	return true
}

func (s *Scheduler) anyActiveWorkers() bool {
	for i := range s.queues {
		if s.queues[i].activeWorkers.Load() > 0 {
			return true
		}
	}
	return false
}

// WaitForCompletion blocks until every queue is empty and every worker has
// stopped. Along the way it rebalances queues abandoned by a finished
// executor, reconciles the work counter against the queues, spins up an
// emergency CPU hand-off for orphaned work, and force-clears worker counts
// for devices that stalled past the threshold.
func (s *Scheduler) WaitForCompletion() {
	debugf("waiting for completion, total work remaining: %d", s.totalWork.Load())
	checkCounter := 0
	for s.totalWork.Load() > 0 {
		time.Sleep(CompletionPollInterval)

		workRebalanced := false
		for from := Device(0); from < numDevices; from++ {
			fq := &s.queues[from]
			if fq.activeWorkers.Load() != 0 || fq.size() == 0 {
				continue
			}
			moved := false
			for to := Device(0); to < numDevices; to++ {
				if to == from || s.queues[to].activeWorkers.Load() == 0 {
					continue
				}
				remaining := fq.drain()
				if len(remaining) > 0 {
					debugf("%s executor finished but left %d chunks, moving to %s", from, len(remaining), to)
					s.queues[to].push(remaining...)
					s.queues[to].notify()
				}
				workRebalanced = true
				moved = true
				break
			}
			if !moved {
				debugf("all executors inactive but work remains, resetting work counter")
				s.totalWork.Store(0)
				return
			}
		}
		if workRebalanced {
			continue
		}

		checkCounter++
		if checkCounter < ReconcileEveryPolls {
			continue
		}
		checkCounter = 0

		if !s.anyActiveWorkers() {
			remaining := s.queuedChunks()
			switch {
			case remaining == 0:
				s.totalWork.Store(0)
			case int64(remaining) != s.totalWork.Load():
				warnf("work count mismatch: counter says %d but queues contain %d, reconciling", s.totalWork.Load(), remaining)
				s.totalWork.Store(int64(remaining))
				s.startEmergencyWorker()
			default:
				warnf("timeout waiting for completion, force resetting work counter from %d to 0", s.totalWork.Load())
				s.totalWork.Store(0)
			}
			break
		}
		if actual := s.queuedChunks(); int64(actual) != s.totalWork.Load() {
			warnf("work counter drift: counter says %d but queues contain %d, correcting", s.totalWork.Load(), actual)
			s.totalWork.Store(int64(actual))
		}
	}

	debugf("all work processed, draining active workers")
	for d := Device(0); d < numDevices; d++ {
		q := &s.queues[d]
		checks := 0
		for q.activeWorkers.Load() > 0 {
			time.Sleep(CompletionPollInterval)
			checks++
			if checks < WorkerDrainChecks {
				continue
			}
			force := s.deviceExited[d].Load()
			if last := s.lastWorkMilli[d].Load(); last > 0 &&
				time.Now().UnixMilli()-last > WorkerStallThreshold.Milliseconds() {
				warnf("%s worker appears stalled, last work was %dms ago", d, time.Now().UnixMilli()-last)
				force = true
			}
			if force {
				warnf("%s thread exited or stalled with worker count %d, resetting to 0", d, q.activeWorkers.Load())
				q.activeWorkers.Store(0)
				break
			}
			checks = 0
		}
	}
	debugf("all workers finished, completion successful")
}

// queuedChunks sums the queue lengths.
func (s *Scheduler) queuedChunks() int {
	total := 0
	for i := range s.queues {
		total += s.queues[i].size()
	}
	return total
}

// startEmergencyWorker moves every orphaned chunk onto the CPU queue so a
// late CPU worker (or the stall detector) can finish the accounting. This is
// a last-resort reconciliation path, not a primary mechanism.
func (s *Scheduler) startEmergencyWorker() {
	warnf("activating emergency CPU hand-off for orphaned work")
	go func() {
		time.Sleep(200 * time.Millisecond)
		var all []WorkChunk
		for i := range s.queues {
			all = append(all, s.queues[i].drain()...)
		}
		if len(all) == 0 {
			return
		}
		cpu := &s.queues[DeviceCPU]
		cpu.push(all...)
		cpu.activeWorkers.Store(1)
		cpu.notify()
	}()
}
