package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"ilex/runtime"
	"ilex/value"
)

// runCmd executes a source file to completion and exits, mirroring the
// teacher's own runCmd (informatter-nilan/cmd_run.go) but fronting
// runtime.Context instead of interpreter.Interpreter.
type runCmd struct{}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "Execute ilex code from a source file" }
func (*runCmd) Usage() string {
	return `run <file>:
  Execute ilex code.
`
}
func (r *runCmd) SetFlags(f *flag.FlagSet) {}

func (r *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "💥 File not provided\n")
		return subcommands.ExitUsageError
	}
	filename := args[0]

	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 Failed to read file: %v\n", err)
		return subcommands.ExitFailure
	}

	rt := runtime.NewContext()
	result, err := rt.EvalString(string(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 %v\n", err)
		return subcommands.ExitFailure
	}
	if _, isUndef := result.(value.Unspecified); !isUndef && result != nil {
		fmt.Println(value.Write(result))
	}
	return subcommands.ExitSuccess
}
