package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"ilex/reader"
	"ilex/runtime"
	"ilex/value"
)

// replCmd implements the REPL command. Its shape follows the teacher's
// own replCmd (informatter-nilan/cmd_repl.go): a subcommands.Command
// with an Execute that loops reading one line at a time. Where the
// teacher used bufio.Scanner, ilex's REPL needs to accumulate lines
// until a complete datum has been read (an open paren can span many
// lines), so it reaches for github.com/chzyer/readline instead — a
// dependency the teacher's go.mod already declares.
type replCmd struct {
	debug bool
}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "Start REPL session" }
func (*replCmd) Usage() string {
	return `repl:
  Start interactive REPL session.
`
}
func (r *replCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.debug, "debug", false, "log each executed instruction to stderr")
}

func (r *replCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fmt.Println("\n\nWelcome to ilex!")

	rl, err := readline.New(">>> ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 Failed to start REPL: %v\n", err)
		return subcommands.ExitFailure
	}
	defer rl.Close()

	rt := runtime.NewContext()
	if r.debug {
		rt.Log.SetLevel(logrus.DebugLevel)
		rt.VM.Debug = true
	}

	var pending strings.Builder
	for {
		prompt := ">>> "
		if pending.Len() > 0 {
			prompt = "... "
		}
		rl.SetPrompt(prompt)

		line, err := rl.Readline()
		if err != nil { // io.EOF (Ctrl-D) or readline.ErrInterrupt (Ctrl-C)
			return subcommands.ExitSuccess
		}
		if pending.Len() == 0 && strings.TrimSpace(line) == "exit" {
			return subcommands.ExitSuccess
		}

		pending.WriteString(line)
		pending.WriteString("\n")

		datums, err := reader.ReadAll(pending.String())
		if err != nil {
			if errors.Is(err, reader.ErrIncompleteInput) {
				// An unterminated list/string/quote: keep accumulating lines.
				continue
			}
			fmt.Fprintf(os.Stderr, "💥 %v\n", err)
			pending.Reset()
			continue
		}
		pending.Reset()

		for _, datum := range datums {
			result, err := rt.Eval(datum)
			if err != nil {
				fmt.Fprintf(os.Stderr, "💥 %v\n", err)
				continue
			}
			if _, isUndef := result.(value.Unspecified); !isUndef {
				fmt.Println(value.Write(result))
			}
		}
	}
}
