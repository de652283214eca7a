package hexa

import (
	"bufio"
	"fmt"
	"io"

	"github.com/hexa-compute/hexa/bytecode"
)

// Matrix binding names fixed by the bytecode contract.
const (
	bindingSize    = "n"
	bindingMatrix1 = "matrix1"
	bindingMatrix2 = "matrix2"
	bindingResult  = "result"
)

// Runtime interprets a bytecode program against the heterogeneous
// coordinator: it reads matrices from its input stream, dispatches
// MATRIX_MULTIPLY across the devices, and writes results to its output
// stream. One Runtime serves one program invocation.
type Runtime struct {
	coordinator *Coordinator
	profiler    *Profiler
	matrices    map[string]*MatrixBuffer
	variables   map[string]int
	in          *bufio.Reader
	out         io.Writer
}

// NewRuntime creates a runtime bound to the given program input and output
// streams and initializes its coordinator.
func NewRuntime(in io.Reader, out io.Writer) *Runtime {
	c := NewCoordinator()
	c.Initialize()
	return &Runtime{
		coordinator: c,
		profiler:    c.Profiler(),
		matrices:    make(map[string]*MatrixBuffer),
		variables:   make(map[string]int),
		in:          bufio.NewReader(in),
		out:         out,
	}
}

// Close destroys any live buffers and stops the coordinator.
func (rt *Runtime) Close() {
	rt.destroyMatrices()
	rt.coordinator.Close()
}

// Coordinator returns the runtime's coordinator.
func (rt *Runtime) Coordinator() *Coordinator {
	return rt.coordinator
}

// Execute runs the program's instructions in order, stopping at the first
// failure.
func (rt *Runtime) Execute(program *bytecode.Program) error {
	debugf("executing program with %d instructions", len(program.Instructions))
	for i := range program.Instructions {
		instr := &program.Instructions[i]
		name := instr.Operation.String()
		debugf("executing instruction %d: %s", i, name)
		rt.profiler.StartTimer(name)
		err := rt.executeInstruction(instr)
		rt.profiler.StopTimer(name)
		if err != nil {
			return err
		}
	}
	debugf("program execution complete")
	return nil
}

func (rt *Runtime) executeInstruction(instr *bytecode.Instruction) error {
	switch instr.Operation {
	case bytecode.OpReadInteger:
		var v int
		if _, err := fmt.Fscan(rt.in, &v); err != nil {
			return NewIOError("READ_INTEGER", "failed to read integer", err)
		}
		rt.variables[bindingSize] = v
		return nil

	case bytecode.OpReadMatrix:
		n := rt.variables[bindingSize]
		if n <= 0 {
			return NewInvalidOperandsError("READ_MATRIX", fmt.Sprintf("invalid matrix size %d", n))
		}
		return rt.readMatrix(n, instr.Label)

	case bytecode.OpAllocMatrix:
		n := rt.variables[bindingSize]
		if n <= 0 {
			return NewInvalidOperandsError("ALLOC_MATRIX", fmt.Sprintf("invalid matrix size %d", n))
		}
		if _, ok := rt.matrices[instr.Label]; !ok {
			m, err := NewMatrixBuffer(n)
			if err != nil {
				return err
			}
			rt.matrices[instr.Label] = m
		}
		return nil

	case bytecode.OpMatrixMultiply:
		return rt.executeMatrixMultiply(instr)

	case bytecode.OpWriteMatrix:
		return rt.writeMatrix(bindingResult)

	case bytecode.OpTerminate:
		rt.destroyMatrices()
		return nil

	default:
		// ADD, SUB, JUMP, JUMP_IF_ZERO, LOOP_BEGIN, LOOP_END, STORE, LOAD
		// are reserved: they serialize but do not execute.
		return NewInvalidOperandsError("Execute",
			fmt.Sprintf("instruction %s is reserved and not executable", instr.Operation))
	}
}

func (rt *Runtime) executeMatrixMultiply(instr *bytecode.Instruction) error {
	if len(instr.Operands) < 3 {
		return NewInvalidOperandsError("MATRIX_MULTIPLY",
			fmt.Sprintf("need 3 operands, got %d", len(instr.Operands)))
	}
	a, ok := rt.matrices[bindingMatrix1]
	if !ok {
		return NewInvalidOperandsError("MATRIX_MULTIPLY", "matrix1 not found")
	}
	b, ok := rt.matrices[bindingMatrix2]
	if !ok {
		return NewInvalidOperandsError("MATRIX_MULTIPLY", "matrix2 not found")
	}
	r, ok := rt.matrices[bindingResult]
	if !ok {
		return NewInvalidOperandsError("MATRIX_MULTIPLY", "result not found")
	}
	rt.profiler.StartTimer("matrix_multiplication")
	err := rt.coordinator.ExecuteMatrixMultiplication(a, b, r)
	rt.profiler.StopTimer("matrix_multiplication")
	return err
}

// readMatrix fills the named buffer from the input stream, row-major. On a
// short read the partial write claim is released before the error
// propagates.
func (rt *Runtime) readMatrix(n int, name string) error {
	m, ok := rt.matrices[name]
	if !ok {
		var err error
		m, err = NewMatrixBuffer(n)
		if err != nil {
			return err
		}
		rt.matrices[name] = m
	}
	data := m.CPUWrite()
	for i := 0; i < n*n; i++ {
		if _, err := fmt.Fscan(rt.in, &data[i]); err != nil {
			m.ReleaseCPUAccess()
			return NewIOError("READ_MATRIX",
				fmt.Sprintf("failed to read element %d of %q", i, name), err)
		}
	}
	m.ReleaseCPUAccess()
	return nil
}

// writeMatrix prints the named buffer as rows of space-separated integers.
func (rt *Runtime) writeMatrix(name string) error {
	m, ok := rt.matrices[name]
	if !ok {
		return NewInvalidOperandsError("WRITE_MATRIX", fmt.Sprintf("matrix %q not found", name))
	}
	data := m.CPURead()
	defer m.ReleaseCPUAccess()

	bw := bufio.NewWriter(rt.out)
	for i := 0; i < m.Size; i++ {
		for j := 0; j < m.Size; j++ {
			if j > 0 {
				if err := bw.WriteByte(' '); err != nil {
					return NewIOError("WRITE_MATRIX", "write failed", err)
				}
			}
			if _, err := fmt.Fprintf(bw, "%d", data[i*m.Size+j]); err != nil {
				return NewIOError("WRITE_MATRIX", "write failed", err)
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return NewIOError("WRITE_MATRIX", "write failed", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return NewIOError("WRITE_MATRIX", "write failed", err)
	}
	return nil
}

func (rt *Runtime) destroyMatrices() {
	for name, m := range rt.matrices {
		m.Destroy()
		delete(rt.matrices, name)
	}
}

// WriteReport writes the profiler's performance summary.
func (rt *Runtime) WriteReport(w io.Writer) {
	rt.profiler.WriteReport(w)
}
