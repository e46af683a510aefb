// Package vm implements the stack-based bytecode interpreter described
// in spec.md §4.7. Its shape — a fetch/decode/execute loop over a
// compiler.Instructions stream, driven by an explicit Stack — is the
// teacher's own vm/vm.go (informatter-nilan), extended from a single
// flat instruction stream to an explicit call-frame stack so that
// OP_CALL/OP_TAIL_CALL/OP_RETURN can thread control between closures,
// and so that OP_CALL's continuation-capturing sibling can snapshot
// that frame stack (spec §4.7 "first-class continuations").
package vm

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"ilex/compiler"
	"ilex/ierr"
	"ilex/value"
)

// maxCallDepth bounds the VM's own frame stack (not Go's), so that a
// runaway non-tail recursion raises a catchable resource-error (spec
// §7's "stack overflow is still an exception ... giving the handler
// one chance to report before the VM exits") instead of exhausting a
// real OS thread stack and crashing the host process. Proper tail
// calls (see TestEvalRecursionWithProperTailCalls) never grow m.frames
// at all, so this only fires for genuine unbounded non-tail recursion.
const maxCallDepth = 10000

// Frame is one call's activation record: its code, instruction pointer,
// local-slot array (parameters plus internal defines) and the captured
// vector of the closure it belongs to.
type Frame struct {
	Code     *value.Bytecode
	IP       int
	Locals   []any
	Captured *value.Vector
}

// continuationState is the opaque snapshot stored in a captured
// continuation's value.Procedure.Continuation field. Only this package
// ever constructs or inspects one.
type continuationState struct {
	stack  Stack
	frames []*Frame
}

// VM is one instance of the bytecode interpreter. It is not safe for
// concurrent use from multiple goroutines (spec §5 "Concurrency &
// resource model": one VM serves one REPL/script evaluation).
type VM struct {
	stack    Stack
	frames   []*Frame
	handlers []any // stack of installed exception-handler procedures, innermost last
	Out      *value.Port
	In       *value.Port
	Err      *value.Port
	Debug    bool
	log      *logrus.Logger
}

// PushHandler installs handler for the dynamic extent the caller is
// about to enter; Scheme-level `with-exception-handler` uses this.
func (m *VM) PushHandler(handler any) { m.handlers = append(m.handlers, handler) }

// PopHandler removes the innermost installed handler.
func (m *VM) PopHandler() { m.handlers = m.handlers[:len(m.handlers)-1] }

// New creates a VM. log may be nil, in which case a logger discarding
// everything below Warn is installed (the teacher's own cmd_*.go files
// wire up a verbose logrus.Logger only when --debug is passed).
func New(log *logrus.Logger) *VM {
	if log == nil {
		log = logrus.New()
		log.SetLevel(logrus.WarnLevel)
	}
	return &VM{log: log}
}

// Run executes proc with args to completion from a clean frame stack and
// returns its result. This is the entry point runtime.Eval uses for a
// top-level form.
func (m *VM) Run(proc *value.Procedure, args []any) (any, error) {
	m.frames = m.frames[:0]
	if err := m.dispatchCall(proc, args, false); err != nil {
		return nil, err
	}
	for len(m.frames) > 0 {
		if err := m.step(); err != nil {
			return nil, err
		}
	}
	result, _ := m.stack.Pop()
	return result, nil
}

// Apply invokes callee synchronously and returns its result, without
// disturbing frames the caller already has running. Scheme-level
// `apply`, `call-with-values`, `dynamic-wind`, `with-exception-handler`,
// and this package's own error-handler dispatch all go through Apply to
// re-enter the interpreter from within a primitive's Go implementation.
func (m *VM) Apply(callee any, args []any) (any, error) {
	base := len(m.frames)
	if err := m.dispatchCall(callee, args, false); err != nil {
		return nil, err
	}
	for len(m.frames) > base {
		if err := m.step(); err != nil {
			return nil, err
		}
	}
	result, _ := m.stack.Pop()
	return result, nil
}

func (m *VM) push(v any) { m.stack.Push(v) }

func (m *VM) pop() any {
	v, ok := m.stack.Pop()
	if !ok {
		return value.Undef
	}
	return v
}

// step executes exactly one instruction of the top frame.
func (m *VM) step() error {
	frame := m.frames[len(m.frames)-1]
	if frame.IP >= len(frame.Code.Instructions) {
		return ierr.RuntimeError{Kind: "bytecode", Message: "instruction pointer ran past the end of the bytecode"}
	}
	ins := compiler.Instructions(frame.Code.Instructions)
	op := compiler.Opcode(ins[frame.IP])

	if m.Debug {
		line, _, _ := compiler.DisassembleInstruction(ins, frame.IP)
		m.log.WithField("frame", frame.Code.Name).Debug(line)
	}

	switch op {
	case compiler.OP_CONSTANT:
		idx := compiler.ReadUint32(ins, frame.IP+1)
		m.push(frame.Code.Constants[idx])
		frame.IP += 5

	case compiler.OP_POP:
		m.pop()
		frame.IP++

	case compiler.OP_LOCAL_GET:
		idx := compiler.ReadUint32(ins, frame.IP+1)
		m.push(frame.Locals[idx])
		frame.IP += 5

	case compiler.OP_LOCAL_SET:
		idx := compiler.ReadUint32(ins, frame.IP+1)
		frame.Locals[idx] = m.pop()
		m.push(value.Undef)
		frame.IP += 5

	case compiler.OP_FREE_GET:
		idx := compiler.ReadUint32(ins, frame.IP+1)
		m.push(frame.Captured.Items[idx])
		frame.IP += 5

	case compiler.OP_FREE_SET:
		idx := compiler.ReadUint32(ins, frame.IP+1)
		frame.Captured.Items[idx] = m.pop()
		m.push(value.Undef)
		frame.IP += 5

	case compiler.OP_GLOBAL_GET:
		idx := compiler.ReadUint32(ins, frame.IP+1)
		cell := frame.Code.Constants[idx].(*value.Pair)
		if _, unbound := cell.Cdr.(value.Unassigned); unbound {
			name, _ := cell.Car.(*value.Symbol)
			result, err := m.raise(&value.Exception{
				Kind:      value.KindValueError,
				Message:   "unbound variable",
				Irritants: []any{name},
			})
			if err != nil {
				return err
			}
			m.push(result)
			frame.IP += 5
			break
		}
		m.push(cell.Cdr)
		frame.IP += 5

	case compiler.OP_GLOBAL_SET:
		idx := compiler.ReadUint32(ins, frame.IP+1)
		cell := frame.Code.Constants[idx].(*value.Pair)
		cell.Cdr = m.pop()
		m.push(value.Undef)
		frame.IP += 5

	case compiler.OP_JUMP:
		target := compiler.ReadUint32(ins, frame.IP+1)
		frame.IP = int(target)

	case compiler.OP_JUMP_IF_FALSE:
		target := compiler.ReadUint32(ins, frame.IP+1)
		cond := m.pop()
		if !value.IsTruthy(cond) {
			frame.IP = int(target)
		} else {
			frame.IP += 5
		}

	case compiler.OP_MAKE_CLOSURE:
		codeIdx := compiler.ReadUint32(ins, frame.IP+1)
		nCaptures := int(compiler.ReadUint32(ins, frame.IP+5))
		code := frame.Code.Constants[codeIdx].(*value.Bytecode)
		captured := make([]any, nCaptures)
		for i := nCaptures - 1; i >= 0; i-- {
			captured[i] = m.pop()
		}
		minArgs := code.NumParams
		if code.Variadic {
			minArgs--
		}
		flags := byte(0)
		if code.Variadic {
			flags |= value.ProcFlagVariadic
		}
		proc := &value.Procedure{
			Flags:    flags,
			MinArgs:  minArgs,
			Code:     code,
			Captured: &value.Vector{Items: captured},
			Name:     code.Name,
		}
		m.push(proc)
		frame.IP += 9

	case compiler.OP_CALL, compiler.OP_TAIL_CALL:
		argc := int(compiler.ReadUint32(ins, frame.IP+1))
		args := make([]any, argc)
		for i := argc - 1; i >= 0; i-- {
			args[i] = m.pop()
		}
		callee := m.pop()
		frame.IP += 5
		if err := m.dispatchCall(callee, args, op == compiler.OP_TAIL_CALL); err != nil {
			return err
		}

	case compiler.OP_RETURN:
		result := m.pop()
		m.frames = m.frames[:len(m.frames)-1]
		m.push(result)

	default:
		return ierr.DeveloperError{Message: fmt.Sprintf("unknown opcode %d at ip %d", op, frame.IP)}
	}
	return nil
}

// dispatchCall invokes callee with args. For a *value.Opcode it runs the
// primitive immediately and pushes its result; for a *value.Procedure
// captured as a continuation it restores that continuation's snapshot;
// for an ordinary *value.Procedure it pushes (or, if tail, replaces the
// current frame with) a new Frame.
func (m *VM) dispatchCall(callee any, args []any, tail bool) error {
	switch c := callee.(type) {
	case *value.Opcode:
		if isCallCC(c) {
			return m.callCC(args, tail)
		}
		result, err := m.applyPrimitive(c, args)
		if err != nil {
			return err
		}
		m.push(result)
		return nil

	case *value.Procedure:
		if c.Continuation != nil {
			return m.resumeContinuation(c, args)
		}
		frame, err := m.makeFrame(c, args)
		if err != nil {
			// makeFrame's only failure mode is an arity Exception; route it
			// through the handler stack exactly like a primitive's arity
			// check (checkArity/applyPrimitive), so a user-defined
			// procedure called with the wrong number of arguments is just
			// as catchable by with-exception-handler as (cons 1).
			result, raiseErr := m.raise(err.(*value.Exception))
			if raiseErr != nil {
				return raiseErr
			}
			m.push(result)
			return nil
		}
		if tail && len(m.frames) > 0 {
			m.frames[len(m.frames)-1] = frame
		} else {
			if len(m.frames) >= maxCallDepth {
				result, raiseErr := m.raise(&value.Exception{
					Kind:    value.KindResourceError,
					Message: fmt.Sprintf("call stack exceeded depth %d", maxCallDepth),
				})
				if raiseErr != nil {
					return raiseErr
				}
				m.push(result)
				return nil
			}
			m.frames = append(m.frames, frame)
		}
		return nil

	default:
		result, err := m.raise(&value.Exception{
			Kind:      value.KindTypeError,
			Message:   "called value is not a procedure",
			Irritants: []any{callee},
		})
		if err != nil {
			return err
		}
		m.push(result)
		return nil
	}
}

func (m *VM) makeFrame(proc *value.Procedure, args []any) (*Frame, error) {
	code := proc.Code
	locals := make([]any, code.NumLocals)
	fixed := code.NumParams
	if code.Variadic {
		fixed--
	}
	if len(args) < fixed || (!code.Variadic && len(args) != fixed) {
		return nil, &value.Exception{Kind: value.KindArityError, Message: fmt.Sprintf(
			"%s: expected %d arguments, got %d", displayName(proc), fixed, len(args)), Irritants: args}
	}
	for i := 0; i < fixed; i++ {
		locals[i] = args[i]
	}
	if code.Variadic {
		locals[fixed] = value.List(args[fixed:]...)
	}
	for i := code.NumParams; i < code.NumLocals; i++ {
		locals[i] = value.Uninitialized
	}
	return &Frame{Code: code, Locals: locals, Captured: proc.Captured}, nil
}

func displayName(proc *value.Procedure) string {
	if proc.Name != "" {
		return proc.Name
	}
	return "#<procedure>"
}

// raise routes exc through the innermost installed exception handler
// (spec §7 "Error handling design"). With no handler installed,
// evaluation aborts and exc is returned as a Go error to the Eval
// caller. The handler itself runs with that handler popped, so that an
// exception it raises does not recurse into itself.
func (m *VM) raise(exc *value.Exception) (any, error) {
	if len(m.handlers) == 0 {
		return nil, exc
	}
	handler := m.handlers[len(m.handlers)-1]
	m.PopHandler()
	result, err := m.Apply(handler, []any{exc})
	m.PushHandler(handler)
	return result, err
}
