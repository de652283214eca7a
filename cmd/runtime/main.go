// Command runtime interprets a JSON Lines bytecode program, reading program
// input from stdin and writing matrices to stdout. Usage:
//
//	runtime <bytecode.jsonl> [options]
//
// The --use-gpu-for-large and --use-ane-for-large flags are accepted for
// compatibility but have no effect; device placement is controlled by the
// GPU_ONLY and DISTRIBUTION environment variables.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hexa-compute/hexa"
	"github.com/hexa-compute/hexa/bytecode"
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flags.Bool("use-gpu-for-large", false, "accepted for compatibility; no effect")
	flags.Bool("use-ane-for-large", false, "accepted for compatibility; no effect")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s <bytecode.jsonl> [options]\n", os.Args[0])
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])
	if flags.NArg() < 1 {
		flags.Usage()
		return 1
	}
	path := flags.Arg(0)
	// Options may also follow the file name.
	_ = flags.Parse(flags.Args()[1:])
	if flags.NArg() != 0 {
		flags.Usage()
		return 1
	}

	file, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open bytecode file: %v\n", err)
		return 1
	}
	program, err := bytecode.ReadJSONL(file)
	file.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing bytecode: %v\n", err)
		return 1
	}

	rt := hexa.NewRuntime(os.Stdin, os.Stdout)
	defer rt.Close()
	if err := rt.Execute(program); err != nil {
		fmt.Fprintf(os.Stderr, "Runtime error: %v\n", err)
		return 1
	}
	rt.WriteReport(os.Stderr)
	return 0
}
