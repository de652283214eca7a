package hexa

import (
	"fmt"
	"math"
	"sync"
)

// AccessState is the single-value discriminant of a matrix buffer's current
// legal reader/writer role. A buffer is either Shared or held in exactly one
// device role; two devices never hold writing roles at the same time.
type AccessState int32

const (
	StateShared AccessState = iota
	StateCPUReading
	StateCPUWriting
	StateGPUReading
	StateGPUWriting
	StateNAReading
	StateNAWriting
)

// String returns the access state name used in logs.
func (s AccessState) String() string {
	switch s {
	case StateShared:
		return "SHARED"
	case StateCPUReading:
		return "CPU_READING"
	case StateCPUWriting:
		return "CPU_WRITING"
	case StateGPUReading:
		return "GPU_READING"
	case StateGPUWriting:
		return "GPU_WRITING"
	case StateNAReading:
		return "NA_READING"
	case StateNAWriting:
		return "NA_WRITING"
	default:
		return "UNKNOWN"
	}
}

// MatrixBuffer is a shared N x N row-major int32 matrix with an access-state
// machine coordinating CPU, GPU and NA roles. The device-visible mirror
// aliases the host storage when unified memory is on (the default); in the
// discrete configuration the buffer tracks host/device dirtiness and copies
// at role boundaries so neither side observes stale stores.
//
// Accessor slices are borrowed: a slice returned by CPURead or CPUWrite is
// valid until the matching ReleaseCPUAccess, and DeviceData is valid between
// PrepareFor*Access and the matching release.
type MatrixBuffer struct {
	Size int

	mu          sync.Mutex
	state       AccessState
	data        []int32 // owning storage, host-visible
	mirror      []int32 // device-visible view
	unified     bool
	hostDirty   bool
	deviceDirty bool
}

// NewMatrixBuffer allocates a zeroed n x n buffer in the unified-memory
// configuration: the device mirror is a view of the same storage.
func NewMatrixBuffer(n int) (*MatrixBuffer, error) {
	return newMatrixBuffer(n, true)
}

// NewDiscreteMatrixBuffer allocates a zeroed n x n buffer whose device
// mirror is a separate region, for platforms without unified memory.
func NewDiscreteMatrixBuffer(n int) (*MatrixBuffer, error) {
	return newMatrixBuffer(n, false)
}

func newMatrixBuffer(n int, unified bool) (*MatrixBuffer, error) {
	if n <= 0 {
		return nil, NewAllocationError("NewMatrixBuffer", fmt.Sprintf("matrix size must be positive, got %d", n), nil)
	}
	if n > int(math.Sqrt(float64(math.MaxInt32))) {
		return nil, NewAllocationError("NewMatrixBuffer", fmt.Sprintf("matrix size %d overflows element addressing", n), nil)
	}
	m := &MatrixBuffer{
		Size:    n,
		state:   StateShared,
		data:    make([]int32, n*n),
		unified: unified,
	}
	if unified {
		m.mirror = m.data
	} else {
		m.mirror = make([]int32, n*n)
	}
	return m, nil
}

// State returns the buffer's current access state.
func (m *MatrixBuffer) State() AccessState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CPURead transitions the buffer into the CPU reading role and returns the
// host storage, downloading pending device stores first when a device held a
// writing role.
func (m *MatrixBuffer) CPURead() []int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateGPUWriting || m.state == StateNAWriting {
		m.syncFromDevice()
	}
	m.state = StateCPUReading
	return m.data
}

// CPUWrite transitions the buffer into the CPU writing role and returns the
// host storage.
func (m *MatrixBuffer) CPUWrite() []int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateGPUWriting || m.state == StateNAWriting {
		m.syncFromDevice()
	}
	m.state = StateCPUWriting
	m.hostDirty = true
	return m.data
}

// ReleaseCPUAccess returns the buffer to Shared if the CPU holds a role;
// otherwise it is a no-op.
func (m *MatrixBuffer) ReleaseCPUAccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateCPUReading || m.state == StateCPUWriting {
		m.state = StateShared
	}
}

// PrepareForGPUAccess transitions the buffer into a GPU role, uploading
// pending host stores first.
func (m *MatrixBuffer) PrepareForGPUAccess(readOnly bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateCPUWriting || m.hostDirty {
		m.syncToDevice()
	}
	if readOnly {
		m.state = StateGPUReading
	} else {
		m.state = StateGPUWriting
		m.deviceDirty = true
	}
}

// ReleaseGPUAccess returns the buffer to Shared. Leaving the writing role
// publishes the device stores for subsequent CPU reads.
func (m *MatrixBuffer) ReleaseGPUAccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateGPUReading || m.state == StateGPUWriting {
		if m.state == StateGPUWriting {
			m.syncFromDevice()
		}
		m.state = StateShared
	}
}

// PrepareForNAAccess transitions the buffer into an NA role, uploading
// pending host stores first.
func (m *MatrixBuffer) PrepareForNAAccess(readOnly bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateCPUWriting || m.hostDirty {
		m.syncToDevice()
	}
	if readOnly {
		m.state = StateNAReading
	} else {
		m.state = StateNAWriting
		m.deviceDirty = true
	}
}

// ReleaseNAAccess returns the buffer to Shared, publishing device stores
// when the NA held the writing role.
func (m *MatrixBuffer) ReleaseNAAccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateNAReading || m.state == StateNAWriting {
		if m.state == StateNAWriting {
			m.syncFromDevice()
		}
		m.state = StateShared
	}
}

// DeviceData returns the device-visible mirror. Only valid between a
// PrepareFor*Access call and the matching release.
func (m *MatrixBuffer) DeviceData() []int32 {
	return m.mirror
}

// syncToDevice publishes host stores to the device mirror. Caller holds mu.
func (m *MatrixBuffer) syncToDevice() {
	if !m.unified && m.hostDirty {
		copy(m.mirror, m.data)
	}
	m.hostDirty = false
}

// syncFromDevice publishes device stores to the host storage. Caller holds mu.
func (m *MatrixBuffer) syncFromDevice() {
	if !m.unified && m.deviceDirty {
		copy(m.data, m.mirror)
	}
	m.deviceDirty = false
}

// At returns element (row, col) with bounds checking.
func (m *MatrixBuffer) At(row, col int) (int32, error) {
	if row < 0 || row >= m.Size || col < 0 || col >= m.Size {
		return 0, NewOutOfBoundsError("At", fmt.Sprintf("index (%d,%d) outside %dx%d matrix", row, col, m.Size, m.Size))
	}
	return m.data[row*m.Size+col], nil
}

// Set stores v at element (row, col) with bounds checking.
func (m *MatrixBuffer) Set(row, col int, v int32) error {
	if row < 0 || row >= m.Size || col < 0 || col >= m.Size {
		return NewOutOfBoundsError("Set", fmt.Sprintf("index (%d,%d) outside %dx%d matrix", row, col, m.Size, m.Size))
	}
	m.data[row*m.Size+col] = v
	m.hostDirty = true
	return nil
}

// Destroy drops the buffer's storage. Further use of borrowed slices is
// invalid.
func (m *MatrixBuffer) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	m.mirror = nil
	m.state = StateShared
}
