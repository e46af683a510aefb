package vm

import "ilex/value"

// isCallCC reports whether op is one of the two call/cc aliases (spec's
// SUPPLEMENTED FEATURES: chibi-scheme binds both names to the same
// primitive). Capturing a continuation needs direct access to the VM's
// stack and frame list, which an ordinary value.Opcode.Foreign func
// cannot reach, so call/cc is special-cased here rather than dispatched
// through applyPrimitive like every other primitive.
func isCallCC(op *value.Opcode) bool {
	return op.Name == "call/cc" || op.Name == "call-with-current-continuation"
}

// callCC captures the current continuation as a value.Procedure and
// invokes args[0] with it as the sole argument. Capture is full-stack,
// not escape-only: the continuation can be invoked again after its
// call/cc has returned, and even from a different dynamic extent,
// because the capture is a value copy of the stack and frame list, not a
// reference to them.
func (m *VM) callCC(args []any, tail bool) error {
	if len(args) != 1 {
		result, err := m.raise(&value.Exception{Kind: value.KindArityError, Message: "call/cc takes exactly one argument"})
		if err != nil {
			return err
		}
		m.push(result)
		return nil
	}
	k := &value.Procedure{Name: "continuation", Continuation: m.captureContinuation()}
	return m.dispatchCall(args[0], []any{k}, tail)
}

// captureContinuation snapshots the evaluation stack and the frame
// stack. Each Frame struct is copied (so its IP evolves independently
// after capture) but Code, Captured and the backing array of Locals are
// shared: variables are genuinely shared, mutable storage in Scheme, and
// sharing them here is what makes `set!` on a local or on a variable
// closed over by a continuation visible across every invocation of that
// continuation.
func (m *VM) captureContinuation() *continuationState {
	stackCopy := make(Stack, len(m.stack))
	copy(stackCopy, m.stack)

	framesCopy := make([]*Frame, len(m.frames))
	for i, f := range m.frames {
		copied := *f
		framesCopy[i] = &copied
	}
	return &continuationState{stack: stackCopy, frames: framesCopy}
}

// resumeContinuation replaces the VM's entire stack and frame list with
// proc's captured snapshot, then pushes args[0] (or value.Undef) as the
// result of the call/cc invocation the snapshot was taken at — resuming
// execution exactly where capture happened.
func (m *VM) resumeContinuation(proc *value.Procedure, args []any) error {
	snap := proc.Continuation.(*continuationState)

	stackCopy := make(Stack, len(snap.stack))
	copy(stackCopy, snap.stack)
	framesCopy := make([]*Frame, len(snap.frames))
	for i, f := range snap.frames {
		copied := *f
		framesCopy[i] = &copied
	}
	m.stack = stackCopy
	m.frames = framesCopy

	var result any = value.Undef
	if len(args) == 1 {
		result = args[0]
	} else if len(args) > 1 {
		result = value.List(args...)
	}
	m.push(result)
	return nil
}
