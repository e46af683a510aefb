package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"ilex/compiler"
	"ilex/reader"
	"ilex/runtime"
)

// emitBytecodeCmd compiles a source file and writes its disassembly,
// following the shape of the teacher's own emitBytecodeCmd
// (informatter-nilan/cmd_emit_bytecode.go): a -disassemble flag guarding
// a side-effecting dump step, reusing the command's own file-path
// argument rather than introducing a second positional parameter.
type emitBytecodeCmd struct {
	disassemble bool
	outPath     string
}

func (*emitBytecodeCmd) Name() string { return "emit" }
func (*emitBytecodeCmd) Synopsis() string {
	return "Emit the bytecode disassembly of a source file"
}
func (*emitBytecodeCmd) Usage() string {
	return `ilex emit <file>`
}

func (cmd *emitBytecodeCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.disassemble, "disassemble", true, "print the disassembled bytecode")
	f.StringVar(&cmd.outPath, "out", "", "file to write the disassembly to instead of stdout")
}

func (cmd *emitBytecodeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "💥 File not provided\n")
		return subcommands.ExitUsageError
	}
	sourceFile := args[0]

	data, err := os.ReadFile(sourceFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 Failed to read file:\n\t%v\n", err)
		return subcommands.ExitFailure
	}

	datums, err := reader.ReadAll(string(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 Parsing error:\n\t%v\n", err)
		return subcommands.ExitFailure
	}

	rt := runtime.NewContext()
	var out strings.Builder
	for i, datum := range datums {
		code, cErr := rt.Compile(datum)
		if cErr != nil {
			fmt.Fprintf(os.Stderr, "💥 Compilation error:\n\t%v\n", cErr)
			return subcommands.ExitFailure
		}
		fmt.Fprintf(&out, "; form %d\n", i)
		out.WriteString(compiler.Disassemble(compiler.Instructions(code.Instructions)))
		out.WriteString("\n")
	}

	if !cmd.disassemble {
		return subcommands.ExitSuccess
	}

	if cmd.outPath == "" {
		fmt.Print(out.String())
		return subcommands.ExitSuccess
	}
	if err := os.WriteFile(cmd.outPath, []byte(out.String()), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "💥 Failed to write disassembly:\n\t%v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
