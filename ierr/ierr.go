// Package ierr defines the Go-level error types raised by the analyzer,
// compiler and VM (spec.md §7 "Error handling design"). These wrap the
// same error-kind symbols carried by value.Exception at runtime, so a
// compile-time CompileError and a runtime Exception of kind
// "compile-error" always agree on vocabulary.
//
// The naming and the emoji-prefixed Error() string follow the teacher's
// own per-subsystem error types (compiler.SemanticError,
// compiler.DeveloperError, vm.RuntimeError in informatter-nilan).
package ierr

import "fmt"

// CompileError is returned by the analyzer when a program is malformed:
// a core form of the wrong shape, a bad parameter list, an improper
// application, or a sub-expression that itself failed to analyze (spec
// §4.2 "Error contract").
type CompileError struct {
	Kind    string // value.KindCompileError, unless narrowed (e.g. arity)
	Message string
}

func (e CompileError) Error() string {
	return fmt.Sprintf("💥 CompileError: %s", e.Message)
}

// RuntimeError is returned by the VM for failures that are not carried
// as a value.Exception to the error-handler — i.e. conditions severe
// enough that execution cannot continue at all (a malformed bytecode
// stream, an internal invariant violation). Ordinary Scheme-visible
// errors (type errors, division by zero, user `error` calls) are raised
// as value.Exception and routed to the error-handler cell instead; see
// vm.VM.raise.
type RuntimeError struct {
	Kind    string
	Message string
}

func (e RuntimeError) Error() string {
	return fmt.Sprintf("💥 RuntimeError: %s", e.Message)
}

// DeveloperError marks a condition that should only be reachable by a
// bug in ilex itself (e.g. an opcode with no definition), never by a
// malformed user program.
type DeveloperError struct {
	Message string
}

func (e DeveloperError) Error() string {
	return fmt.Sprintf("🤖 DeveloperError: %s", e.Message)
}
