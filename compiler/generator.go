package compiler

import (
	"github.com/hexa-compute/hexa/bytecode"
)

// Generate lowers a detected operation sequence to the canonical program:
// read the size, read both operand matrices, allocate the result, multiply,
// write, terminate. The matrix descriptors carry size 0 — the size binding
// is read at run time.
func Generate(an *Analysis) *bytecode.Program {
	p := &bytecode.Program{
		Instructions: []bytecode.Instruction{
			{Operation: bytecode.OpReadInteger, Operands: []int{}, Label: ""},
			{Operation: bytecode.OpReadMatrix, Operands: []int{0}, Label: "matrix1"},
			{Operation: bytecode.OpReadMatrix, Operands: []int{1}, Label: "matrix2"},
			{Operation: bytecode.OpAllocMatrix, Operands: []int{2}, Label: "result"},
			{Operation: bytecode.OpMatrixMultiply, Operands: []int{0, 1, 2}, Label: ""},
			{Operation: bytecode.OpWriteMatrix, Operands: []int{2}, Label: "result"},
			{Operation: bytecode.OpTerminate, Operands: []int{}, Label: ""},
		},
		Matrices: []bytecode.Matrix{
			{Size: 0, Name: "matrix1", IsOutput: false},
			{Size: 0, Name: "matrix2", IsOutput: false},
			{Size: 0, Name: "result", IsOutput: true},
		},
	}
	return p
}

// Optimize elides duplicate ALLOC_MATRIX instructions with the same label,
// keeping the first. Running it twice produces the same program as running
// it once.
func Optimize(p *bytecode.Program) {
	allocated := make(map[string]bool)
	kept := p.Instructions[:0]
	for _, instr := range p.Instructions {
		if instr.Operation == bytecode.OpAllocMatrix {
			if allocated[instr.Label] {
				continue
			}
			allocated[instr.Label] = true
		}
		kept = append(kept, instr)
	}
	p.Instructions = kept
}

// Compile analyzes a source program and produces its optimized bytecode.
func Compile(src string) (*bytecode.Program, error) {
	an, err := AnalyzeSource(src)
	if err != nil {
		return nil, err
	}
	p := Generate(an)
	Optimize(p)
	return p, nil
}
