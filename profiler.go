package hexa

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Profiler aggregates timing and counter data across the coordinator, the
// monitor and the executors. It is shared by non-owning reference; all
// counters are guarded by the profiler's own lock, so callbacks may fire
// from any goroutine.
type Profiler struct {
	mu sync.Mutex

	timers      map[string]*timerData
	deviceStats map[string]*deviceStats
	stealStats  map[string]int

	workStealingDisabled bool
}

type timerData struct {
	start   time.Time
	running bool
	total   time.Duration
	count   int
}

type deviceStats struct {
	chunksProcessed int
	totalElements   int
	initialChunks   int
	percentOfTotal  float64
}

// NewProfiler creates an empty profiler.
func NewProfiler() *Profiler {
	return &Profiler{
		timers:      make(map[string]*timerData),
		deviceStats: make(map[string]*deviceStats),
		stealStats:  make(map[string]int),
	}
}

// StartTimer begins (or restarts) the named timer.
func (p *Profiler) StartTimer(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.timer(name)
	t.start = time.Now()
	t.running = true
}

// StopTimer folds the elapsed time since the matching StartTimer into the
// named timer's total.
func (p *Profiler) StopTimer(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.timer(name)
	if !t.running {
		return
	}
	t.total += time.Since(t.start)
	t.running = false
	t.count++
}

// RecordZeroTime records a zero-duration measurement for a timer that never
// ran, so the report distinguishes "idle" from "unmeasured".
func (p *Profiler) RecordZeroTime(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.timers[name]; !ok {
		p.timers[name] = &timerData{count: 1}
	}
}

// TotalTime returns the accumulated duration of the named timer.
func (p *Profiler) TotalTime(name string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.timers[name]; ok {
		return t.total
	}
	return 0
}

// RecordChunkExecution counts one processed chunk of the given cell count
// against a device.
func (p *Profiler) RecordChunkExecution(device string, chunkSize int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.device(device)
	s.chunksProcessed++
	s.totalElements += chunkSize
}

// RecordInitialAllocation resets a device's counters for a new multiplication
// and notes its share of the initial partition.
func (p *Profiler) RecordInitialAllocation(device string, chunkCount, totalChunks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.device(device)
	s.chunksProcessed = 0
	s.totalElements = 0
	s.initialChunks = chunkCount
	if totalChunks > 0 {
		s.percentOfTotal = 100 * float64(chunkCount) / float64(totalChunks)
	}
}

// RecordStealEvent counts one chunk migration, keyed "FROM->TO". Events are
// dropped while work stealing is disabled.
func (p *Profiler) RecordStealEvent(fromDevice, toDevice string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.workStealingDisabled {
		return
	}
	p.stealStats[fromDevice+"->"+toDevice]++
}

// DisableWorkStealing marks stealing as disabled for this run and clears any
// previously recorded events.
func (p *Profiler) DisableWorkStealing() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workStealingDisabled = true
	p.stealStats = make(map[string]int)
}

// StealCount returns the total number of recorded steal events.
func (p *Profiler) StealCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, n := range p.stealStats {
		total += n
	}
	return total
}

// ChunksProcessed returns the processed-chunk count recorded for a device.
func (p *Profiler) ChunksProcessed(device string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.deviceStats[device]; ok {
		return s.chunksProcessed
	}
	return 0
}

// InitialAllocation returns the chunk count recorded for a device's initial
// partition.
func (p *Profiler) InitialAllocation(device string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.deviceStats[device]; ok {
		return s.initialChunks
	}
	return 0
}

func (p *Profiler) timer(name string) *timerData {
	t, ok := p.timers[name]
	if !ok {
		t = &timerData{}
		p.timers[name] = t
	}
	return t
}

func (p *Profiler) device(name string) *deviceStats {
	s, ok := p.deviceStats[name]
	if !ok {
		s = &deviceStats{}
		p.deviceStats[name] = s
	}
	return s
}

// WriteReport writes the textual performance summary.
func (p *Profiler) WriteReport(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(w, "\n=== HETEROGENEOUS EXECUTION PERFORMANCE SUMMARY ===\n")

	totalAllocated, totalProcessed := 0, 0
	for _, name := range deviceNames() {
		if s, ok := p.deviceStats[name]; ok {
			totalAllocated += s.initialChunks
			totalProcessed += s.chunksProcessed
		}
	}

	fmt.Fprintf(w, "\nCHUNK ALLOCATION & EXECUTION:\n")
	fmt.Fprintf(w, "-----------------------------\n")
	if totalProcessed == 0 {
		fmt.Fprintf(w, "   No chunks were processed.\n")
	} else {
		for _, name := range deviceNames() {
			s, ok := p.deviceStats[name]
			if !ok || (s.initialChunks == 0 && s.chunksProcessed == 0) {
				continue
			}
			delta := s.chunksProcessed - s.initialChunks
			fmt.Fprintf(w, "   %-4s initial %d chunks (%.1f%%), processed %d chunks (%.1f%%), delta %+d\n",
				name, s.initialChunks, pct(s.initialChunks, totalAllocated),
				s.chunksProcessed, pct(s.chunksProcessed, totalProcessed), delta)
		}
	}

	if p.workStealingDisabled {
		fmt.Fprintf(w, "\nWORK STEALING: disabled (GPU_ONLY)\n")
	} else if len(p.stealStats) > 0 {
		fmt.Fprintf(w, "\nWORK STEALING EVENTS:\n")
		fmt.Fprintf(w, "---------------------\n")
		totalSteals := 0
		for _, key := range sortedKeys(p.stealStats) {
			fmt.Fprintf(w, "   %s: %d chunks\n", key, p.stealStats[key])
			totalSteals += p.stealStats[key]
		}
		fmt.Fprintf(w, "   Total: %d chunks stolen\n", totalSteals)
	}

	fmt.Fprintf(w, "\nTIMING MEASUREMENTS:\n")
	fmt.Fprintf(w, "--------------------\n")
	names := make([]string, 0, len(p.timers))
	for name := range p.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := p.timers[name]
		count := t.count
		if count < 1 {
			count = 1
		}
		avg := t.total / time.Duration(count)
		fmt.Fprintf(w, "   %-22s %12s (avg: %s, count: %d)\n", name, formatDuration(t.total), formatDuration(avg), t.count)
	}
	fmt.Fprintf(w, "\n===================================\n")
}

// profileSnapshot is the JSON shape of WriteJSON.
type profileSnapshot struct {
	Timers  map[string]timerSnapshot  `json:"timers"`
	Devices map[string]deviceSnapshot `json:"devices"`
	Steals  map[string]int            `json:"steals"`
}

type timerSnapshot struct {
	TotalNs int64 `json:"total_ns"`
	Count   int   `json:"count"`
}

type deviceSnapshot struct {
	ChunksProcessed int     `json:"chunks_processed"`
	TotalElements   int     `json:"total_elements"`
	InitialChunks   int     `json:"initial_chunks"`
	PercentOfTotal  float64 `json:"percent_of_total"`
}

// WriteJSON exports the profiler's counters as a JSON document.
func (p *Profiler) WriteJSON(w io.Writer) error {
	p.mu.Lock()
	snap := profileSnapshot{
		Timers:  make(map[string]timerSnapshot, len(p.timers)),
		Devices: make(map[string]deviceSnapshot, len(p.deviceStats)),
		Steals:  make(map[string]int, len(p.stealStats)),
	}
	for name, t := range p.timers {
		snap.Timers[name] = timerSnapshot{TotalNs: t.total.Nanoseconds(), Count: t.count}
	}
	for name, s := range p.deviceStats {
		snap.Devices[name] = deviceSnapshot{
			ChunksProcessed: s.chunksProcessed,
			TotalElements:   s.totalElements,
			InitialChunks:   s.initialChunks,
			PercentOfTotal:  s.percentOfTotal,
		}
	}
	for key, n := range p.stealStats {
		snap.Steals[key] = n
	}
	p.mu.Unlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func deviceNames() []string {
	return []string{DeviceCPU.String(), DeviceGPU.String(), DeviceNA.String()}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func pct(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%d µs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%d ms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.3f s", d.Seconds())
	}
}
