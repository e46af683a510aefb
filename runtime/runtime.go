// Package runtime is the embedding surface spec.md's DOMAIN STACK calls
// for: NewContext/Compile/Eval/Apply/MakeStandardEnv, wiring together
// package reader, analyzer, freevars, compiler and vm the way the
// teacher's own interpreter.Make() wired its tree-walking pieces
// together (informatter-nilan/interpreter/interpreter.go), but fronting
// a bytecode pipeline instead of a direct AST walk.
package runtime

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"ilex/analyzer"
	"ilex/compiler"
	"ilex/env"
	"ilex/freevars"
	"ilex/reader"
	"ilex/value"
	"ilex/vm"
)

// Context is one embeddable ilex instance: a global environment, a VM,
// and the standard I/O ports bound into it. A cmd_*.go REPL/run/emit
// verb, or a host Go program embedding ilex, creates exactly one of
// these per session.
type Context struct {
	Global *env.Frame
	VM     *vm.VM
	Log    *logrus.Logger
}

// NewContext builds a fresh global environment with every core form and
// primitive procedure bound, and a VM wired to stdio.
func NewContext() *Context {
	return NewContextWithIO(stdoutPort(), stdinPort())
}

// NewContextWithIO is NewContext with explicit ports, used by tests and
// by any host embedding ilex against in-memory streams. current-error-port
// always falls back to the process's own stderr — tests that only care
// about stdout/stdin don't need to supply a third port.
func NewContextWithIO(out, in *value.Port) *Context {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	global := env.New()
	analyzer.Bootstrap(global)
	MakeStandardEnv(global)

	machine := vm.New(log)
	machine.Out = out
	machine.In = in
	machine.Err = stderrPort()

	return &Context{Global: global, VM: machine, Log: log}
}

// MakeStandardEnv binds every compiler.Primitives entry into global as
// a global cell whose value is the *value.Opcode itself — calling it
// dispatches through vm's generic OP_CALL path exactly like a call to a
// user-defined closure (spec's simplification over compile-time
// opcode-specialised call sites, recorded in DESIGN.md).
func MakeStandardEnv(global *env.Frame) {
	for _, op := range compiler.Primitives {
		env.Define(global, value.Intern(op.Name), op)
	}
}

// Compile reads nothing itself; it analyzes an already-read datum
// against ctx's global environment, runs the free-variable pass, and
// compiles the result, returning a zero-argument value.Bytecode ready
// for Eval/VM.Run.
func (ctx *Context) Compile(datum any) (*value.Bytecode, error) {
	node, err := analyzer.Analyze(datum, ctx.Global)
	if err != nil {
		return nil, err
	}
	freevars.Compute(node)
	return compiler.Compile(node)
}

// Eval analyzes, compiles and runs a single already-read top-level form.
func (ctx *Context) Eval(datum any) (any, error) {
	code, err := ctx.Compile(datum)
	if err != nil {
		return nil, err
	}
	proc := &value.Procedure{Code: code, Name: "program"}
	return ctx.VM.Run(proc, nil)
}

// EvalString reads and evaluates every top-level form in src in order,
// returning the last form's result — the shape the `run` verb needs.
func (ctx *Context) EvalString(src string) (any, error) {
	datums, err := reader.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read error: %w", err)
	}
	var result any = value.Undef
	for _, d := range datums {
		if result, err = ctx.Eval(d); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Apply invokes proc with args from outside any running bytecode — the
// host-embedding half of spec's external interfaces.
func (ctx *Context) Apply(proc any, args []any) (any, error) {
	return ctx.VM.Apply(proc, args)
}

// RegisterForeign binds a host Go function into global as a primitive
// procedure, giving an embedding program a way to extend ilex beyond
// compiler.Primitives (spec's "foreign function" opcode class).
func (ctx *Context) RegisterForeign(name string, minArgs int, variadic bool, fn func([]any) (any, error)) {
	op := &value.Opcode{Name: name, Class: value.ClassForeign, MinArgs: minArgs, Variadic: variadic, Foreign: fn}
	env.Define(ctx.Global, value.Intern(name), op)
}

func stdoutPort() *value.Port {
	return &value.Port{
		Direction: value.OutputPort,
		Name:      "stdout",
		WriteString: func(s string) (int, error) {
			return fmt.Fprint(os.Stdout, s)
		},
		Flush: func() error { return nil },
	}
}

func stderrPort() *value.Port {
	return &value.Port{
		Direction: value.OutputPort,
		Name:      "stderr",
		WriteString: func(s string) (int, error) {
			return fmt.Fprint(os.Stderr, s)
		},
		Flush: func() error { return nil },
	}
}

func stdinPort() *value.Port {
	return &value.Port{
		Direction: value.InputPort,
		Name:      "stdin",
		ReadRune: func() (rune, error) {
			var r rune
			_, err := fmt.Fscanf(os.Stdin, "%c", &r)
			return r, err
		},
	}
}
