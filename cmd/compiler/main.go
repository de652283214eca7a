// Command compiler lowers a source program to the runtime's JSON Lines
// bytecode. Usage:
//
//	compiler <input-source-file>
//
// The output is written next to the input as <input>.jsonl. Any failure
// exits with status 1.
package main

import (
	"fmt"
	"os"

	"github.com/hexa-compute/hexa/compiler"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <input-source-file>\n", os.Args[0])
		os.Exit(1)
	}
	inputFile := os.Args[1]
	outputFile := inputFile + ".jsonl"

	src, err := os.ReadFile(inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read source file: %v\n", err)
		os.Exit(1)
	}

	program, err := compiler.Compile(string(src))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to compile %s: %v\n", inputFile, err)
		os.Exit(1)
	}
	fmt.Printf("Generated %d instructions\n", len(program.Instructions))

	out, err := os.Create(outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open output file: %v\n", err)
		os.Exit(1)
	}
	if err := program.WriteJSONL(out); err != nil {
		out.Close()
		fmt.Fprintf(os.Stderr, "Failed to write bytecode: %v\n", err)
		os.Exit(1)
	}
	if err := out.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close output file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Compiled successfully to %s\n", outputFile)
}
