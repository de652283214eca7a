// Package bytecode defines the instruction set shared by the compiler and
// the runtime, and the JSON Lines wire format programs travel in.
package bytecode

import (
	"encoding/json"
)

// Op is a bytecode operation. Only the matrix I/O operations plus TERMINATE
// are consumed by the runtime; the arithmetic and control-flow operations
// are reserved and rejected by the interpreter.
type Op int

const (
	OpReadInteger Op = iota
	OpReadMatrix
	OpAllocMatrix
	OpWriteMatrix
	OpMatrixMultiply
	OpAdd
	OpSub
	OpJump
	OpJumpIfZero
	OpLoopBegin
	OpLoopEnd
	OpStore
	OpLoad
	OpTerminate
)

var opNames = map[Op]string{
	OpReadInteger:    "READ_INTEGER",
	OpReadMatrix:     "READ_MATRIX",
	OpAllocMatrix:    "ALLOC_MATRIX",
	OpWriteMatrix:    "WRITE_MATRIX",
	OpMatrixMultiply: "MATRIX_MULTIPLY",
	OpAdd:            "ADD",
	OpSub:            "SUB",
	OpJump:           "JUMP",
	OpJumpIfZero:     "JUMP_IF_ZERO",
	OpLoopBegin:      "LOOP_BEGIN",
	OpLoopEnd:        "LOOP_END",
	OpStore:          "STORE",
	OpLoad:           "LOAD",
	OpTerminate:      "TERMINATE",
}

var opValues = func() map[string]Op {
	m := make(map[string]Op, len(opNames))
	for op, name := range opNames {
		m[name] = op
	}
	return m
}()

// String returns the operation's wire name.
func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseOp maps a wire name to its operation. Unknown names deserialize to
// TERMINATE.
func ParseOp(s string) Op {
	if op, ok := opValues[s]; ok {
		return op
	}
	return OpTerminate
}

// MarshalJSON encodes the operation as its wire name.
func (op Op) MarshalJSON() ([]byte, error) {
	return json.Marshal(op.String())
}

// UnmarshalJSON decodes an operation from its wire name.
func (op *Op) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*op = ParseOp(s)
	return nil
}
