package compiler

import (
	"reflect"
	"testing"

	"github.com/hexa-compute/hexa/bytecode"
)

// sampleSource is the shape of program the front end exists for: read a
// size, read two matrices, triple-loop multiply, print the result.
const sampleSource = `#include <iostream>
#include <vector>

int main() {
    int n;
    std::cin >> n;
    std::vector matrix1(n, std::vector<int>(n));
    for (int i = 0; i < n; i++) {
        for (int j = 0; j < n; j++) {
            std::cin >> matrix1[i][j];
        }
    }
    std::vector matrix2(n, std::vector<int>(n));
    for (int i = 0; i < n; i++) {
        for (int j = 0; j < n; j++) {
            std::cin >> matrix2[i][j];
        }
    }
    std::vector result(n, std::vector(n, 0));
    for (int i = 0; i < n; i++) {
        for (int j = 0; j < n; j++) {
            for (int k = 0; k < n; k++) {
                result[i][j] += matrix1[i][k] * matrix2[k][j];
            }
        }
    }
    for (int i = 0; i < n; i++) {
        for (int j = 0; j < n; j++) {
            std::cout << result[i][j];
            if (j < n - 1) std::cout << " ";
        }
        std::cout << std::endl;
    }
    return 0;
}
`

const goSampleSource = `package main

import "fmt"

func main() {
	var n int
	fmt.Scan(&n)
	a := make([][]int32, n)
	b := make([][]int32, n)
	r := make([][]int32, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			fmt.Scan(&a[i][j])
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			fmt.Scan(&b[i][j])
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				r[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	for i := 0; i < n; i++ {
		fmt.Println(r[i])
	}
}
`

func TestAnalyzeSampleSource(t *testing.T) {
	an, err := AnalyzeSource(sampleSource)
	if err != nil {
		t.Fatalf("AnalyzeSource failed: %v", err)
	}
	counts := map[Operation]int{}
	for _, op := range an.Operations {
		counts[op]++
	}
	if counts[OpMatrixMultiply] != 1 {
		t.Errorf("multiply detected %d times, want 1", counts[OpMatrixMultiply])
	}
	if counts[OpInputInt] == 0 {
		t.Error("integer input not detected")
	}
	if counts[OpInputMatrix] == 0 {
		t.Error("matrix input not detected")
	}
	if counts[OpMatrixAlloc] < 3 {
		t.Errorf("matrix allocations detected %d times, want >= 3", counts[OpMatrixAlloc])
	}
	if counts[OpOutput] == 0 {
		t.Error("output not detected")
	}
}

func TestAnalyzeGoSource(t *testing.T) {
	an, err := AnalyzeSource(goSampleSource)
	if err != nil {
		t.Fatalf("AnalyzeSource failed: %v", err)
	}
	found := false
	for _, op := range an.Operations {
		if op == OpMatrixMultiply {
			found = true
		}
	}
	if !found {
		t.Error("multiply not detected in Go source")
	}
}

func TestAnalyzeRejectsNonMultiplication(t *testing.T) {
	src := `int main() {
    int n;
    std::cin >> n;
    std::cout << n * 2 << std::endl;
    return 0;
}
`
	if _, err := AnalyzeSource(src); err != ErrNoMultiplication {
		t.Errorf("error = %v, want ErrNoMultiplication", err)
	}
}

func TestAnalyzeRejectsNoInput(t *testing.T) {
	src := `int main() {
    for (int i = 0; i < 4; i++) {
        for (int j = 0; j < 4; j++) {
            for (int k = 0; k < 4; k++) {
                r[i][j] += a[i][k] * b[k][j];
            }
        }
    }
    return 0;
}
`
	if _, err := AnalyzeSource(src); err != ErrNoInput {
		t.Errorf("error = %v, want ErrNoInput", err)
	}
}

func TestGenerateCanonicalProgram(t *testing.T) {
	an, err := AnalyzeSource(sampleSource)
	if err != nil {
		t.Fatalf("AnalyzeSource failed: %v", err)
	}
	p := Generate(an)

	wantOps := []bytecode.Op{
		bytecode.OpReadInteger,
		bytecode.OpReadMatrix,
		bytecode.OpReadMatrix,
		bytecode.OpAllocMatrix,
		bytecode.OpMatrixMultiply,
		bytecode.OpWriteMatrix,
		bytecode.OpTerminate,
	}
	if len(p.Instructions) != len(wantOps) {
		t.Fatalf("generated %d instructions, want %d", len(p.Instructions), len(wantOps))
	}
	for i, want := range wantOps {
		if p.Instructions[i].Operation != want {
			t.Errorf("instruction %d = %v, want %v", i, p.Instructions[i].Operation, want)
		}
	}
	if p.Instructions[1].Label != "matrix1" || p.Instructions[2].Label != "matrix2" {
		t.Error("operand matrix labels wrong")
	}
	if !reflect.DeepEqual(p.Instructions[4].Operands, []int{0, 1, 2}) {
		t.Errorf("multiply operands = %v, want [0 1 2]", p.Instructions[4].Operands)
	}
	if len(p.Matrices) != 3 || !p.Matrices[2].IsOutput {
		t.Errorf("matrix descriptors wrong: %+v", p.Matrices)
	}
}

func TestOptimizeElidesDuplicateAllocs(t *testing.T) {
	p := &bytecode.Program{Instructions: []bytecode.Instruction{
		{Operation: bytecode.OpAllocMatrix, Operands: []int{0}, Label: "result"},
		{Operation: bytecode.OpAllocMatrix, Operands: []int{0}, Label: "result"},
		{Operation: bytecode.OpAllocMatrix, Operands: []int{1}, Label: "scratch"},
		{Operation: bytecode.OpAllocMatrix, Operands: []int{1}, Label: "scratch"},
		{Operation: bytecode.OpTerminate, Operands: []int{}},
	}}
	Optimize(p)
	if len(p.Instructions) != 3 {
		t.Fatalf("optimized to %d instructions, want 3", len(p.Instructions))
	}
	if p.Instructions[0].Label != "result" || p.Instructions[1].Label != "scratch" {
		t.Errorf("wrong instructions kept: %+v", p.Instructions)
	}
}

func TestOptimizeIdempotent(t *testing.T) {
	p := &bytecode.Program{Instructions: []bytecode.Instruction{
		{Operation: bytecode.OpReadInteger, Operands: []int{}},
		{Operation: bytecode.OpAllocMatrix, Operands: []int{0}, Label: "result"},
		{Operation: bytecode.OpAllocMatrix, Operands: []int{0}, Label: "result"},
		{Operation: bytecode.OpTerminate, Operands: []int{}},
	}}
	Optimize(p)
	once := make([]bytecode.Instruction, len(p.Instructions))
	copy(once, p.Instructions)
	Optimize(p)
	if !reflect.DeepEqual(p.Instructions, once) {
		t.Errorf("second Optimize changed the program:\nonce  %+v\ntwice %+v", once, p.Instructions)
	}
}

func TestCompileEndToEnd(t *testing.T) {
	p, err := Compile(sampleSource)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(p.Instructions) != 7 {
		t.Errorf("compiled to %d instructions, want 7", len(p.Instructions))
	}
	if p.Instructions[len(p.Instructions)-1].Operation != bytecode.OpTerminate {
		t.Error("program does not end with TERMINATE")
	}
}
