package compiler

// This file implements the AST-to-bytecode compiler: a visitor that
// walks the ast.Node tree produced by package analyzer (already
// free-variable-annotated by package freevars) and emits a
// value.Bytecode. The shape — a Context tracking local-slot
// assignments plus an emit/addConstant pair building up an
// Instructions stream — follows the teacher's own ASTCompiler
// (informatter-nilan's compiler/ast_compiler.go), adapted from
// scope-depth/local-stack tracking for an imperative language to
// slot tracking for Scheme's fixed-arity lambda frames.

import (
	"ilex/ast"
	"ilex/ierr"
	"ilex/value"
)

type localSlot struct {
	name *value.Symbol
	idx  int
}

// Context accumulates one value.Bytecode. lambda is nil while compiling
// the top-level program, and the owning *ast.Lambda while compiling a
// lambda body.
type Context struct {
	lambda *ast.Lambda
	locals []localSlot
	code   *value.Bytecode
	err    error
}

func newContext(lambda *ast.Lambda, name string) *Context {
	return &Context{
		lambda: lambda,
		code:   &value.Bytecode{Name: name},
	}
}

func (c *Context) emit(op Opcode, operands ...int) {
	c.code.Instructions = append(c.code.Instructions, MakeInstruction(op, operands...)...)
}

func (c *Context) addConstant(v any) int {
	c.code.Constants = append(c.code.Constants, v)
	return len(c.code.Constants) - 1
}

func (c *Context) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// currentOffset is the byte offset the next emitted instruction will
// start at — used as the jump target operand for backpatching.
func (c *Context) currentOffset() int { return len(c.code.Instructions) }

// patchJump overwrites the 4-byte operand of the jump instruction that
// starts at offset with the current instruction offset.
func (c *Context) patchJump(offset int) {
	target := uint32(c.currentOffset())
	ins := c.code.Instructions
	ins[offset+1] = byte(target >> 24)
	ins[offset+2] = byte(target >> 16)
	ins[offset+3] = byte(target >> 8)
	ins[offset+4] = byte(target)
}

// Compile compiles a fully analyzed, free-variable-annotated program
// into a value.Bytecode runnable by the VM. The program is compiled as
// the body of an implicit, argument-less top-level procedure, so the VM
// never needs a special "top of the world" execution mode distinct from
// an ordinary call frame (spec §4.6 "a program is itself a
// zero-argument closure").
func Compile(node ast.Node) (*value.Bytecode, error) {
	ctx := newContext(nil, "program")
	compileNode(ctx, node, true)
	if ctx.err != nil {
		return nil, ctx.err
	}
	ctx.emit(OP_RETURN)
	ctx.code.NumParams = 0
	ctx.code.NumLocals = 0
	return ctx.code, nil
}

func compileNode(ctx *Context, node ast.Node, tail bool) {
	v := &nodeCompiler{ctx: ctx, tail: tail}
	node.Accept(v)
}

// nodeCompiler adapts Context to ast.Visitor; `tail` records whether the
// node being visited sits in tail position, which only ast.App consults
// (spec §4.7 "proper tail calls").
type nodeCompiler struct {
	ctx  *Context
	tail bool
}

func (n *nodeCompiler) sub(tail bool) *nodeCompiler { return &nodeCompiler{ctx: n.ctx, tail: tail} }

func (n *nodeCompiler) VisitLit(l *ast.Lit) any {
	idx := n.ctx.addConstant(l.Value)
	n.ctx.emit(OP_CONSTANT, idx)
	return nil
}

func (n *nodeCompiler) VisitRef(r *ast.Ref) any {
	compileRef(n.ctx, r)
	return nil
}

func (n *nodeCompiler) VisitSet(s *ast.Set) any {
	s.Value.Accept(n.sub(false))
	compileSet(n.ctx, s.Target)
	return nil
}

func (n *nodeCompiler) VisitCnd(c *ast.Cnd) any {
	c.Test.Accept(n.sub(false))
	jumpIfFalseAt := n.ctx.currentOffset()
	n.ctx.emit(OP_JUMP_IF_FALSE, 0)

	c.Pass.Accept(n.sub(n.tail))
	jumpOverFailAt := n.ctx.currentOffset()
	n.ctx.emit(OP_JUMP, 0)

	n.ctx.patchJump(jumpIfFalseAt)
	c.Fail.Accept(n.sub(n.tail))
	n.ctx.patchJump(jumpOverFailAt)
	return nil
}

func (n *nodeCompiler) VisitSeq(s *ast.Seq) any {
	for i, e := range s.Exprs {
		last := i == len(s.Exprs)-1
		e.Accept(n.sub(last && n.tail))
		if !last {
			n.ctx.emit(OP_POP)
		}
	}
	return nil
}

func (n *nodeCompiler) VisitApp(a *ast.App) any {
	a.Proc.Accept(n.sub(false))
	for _, arg := range a.Args {
		arg.Accept(n.sub(false))
	}
	if n.tail {
		n.ctx.emit(OP_TAIL_CALL, len(a.Args))
	} else {
		n.ctx.emit(OP_CALL, len(a.Args))
	}
	return nil
}

func (n *nodeCompiler) VisitLambda(l *ast.Lambda) any {
	child := newContext(l, l.Name)
	slots := append(append([]*value.Symbol{}, l.AllParams()...), l.Locals...)
	for i, s := range slots {
		child.locals = append(child.locals, localSlot{name: s, idx: i})
	}
	// Slots past the parameters (one per internal define) are initialised
	// to value.Uninitialized by the VM when it builds the frame,
	// consulting NumParams vs NumLocals.
	compileNode(child, l.Body, true)
	if child.err != nil {
		n.ctx.fail(child.err)
		return nil
	}
	child.emit(OP_RETURN)
	child.code.NumParams = len(l.AllParams())
	child.code.NumLocals = len(slots)
	child.code.Variadic = l.RestParam != nil

	for _, fv := range l.FreeVars {
		if err := compileCaptureSource(n.ctx, fv); err != nil {
			n.ctx.fail(err)
			return nil
		}
	}
	codeIdx := n.ctx.addConstant(child.code)
	n.ctx.emit(OP_MAKE_CLOSURE, codeIdx, len(l.FreeVars))
	return nil
}

func compileRef(ctx *Context, ref *ast.Ref) {
	if ref.IsGlobal() {
		cell := ref.Loc.(*value.Pair)
		ctx.emit(OP_GLOBAL_GET, ctx.addConstant(cell))
		return
	}
	owner := ref.Loc.(*ast.Lambda)
	if ctx.lambda != nil && owner == ctx.lambda {
		if slot, ok := localSlotIndex(ctx, ref.Name); ok {
			ctx.emit(OP_LOCAL_GET, slot)
			return
		}
	}
	if ctx.lambda == nil {
		ctx.fail(ierr.DeveloperError{Message: "free variable '" + ref.Name.Name + "' referenced outside any lambda"})
		return
	}
	if idx, ok := freeVarIndex(ctx.lambda, ref); ok {
		ctx.emit(OP_FREE_GET, idx)
		return
	}
	ctx.fail(ierr.DeveloperError{Message: "reference to '" + ref.Name.Name + "' is neither local, free, nor global"})
}

func compileSet(ctx *Context, ref *ast.Ref) {
	if ref.IsGlobal() {
		cell := ref.Loc.(*value.Pair)
		ctx.emit(OP_GLOBAL_SET, ctx.addConstant(cell))
		return
	}
	owner := ref.Loc.(*ast.Lambda)
	if ctx.lambda != nil && owner == ctx.lambda {
		if slot, ok := localSlotIndex(ctx, ref.Name); ok {
			ctx.emit(OP_LOCAL_SET, slot)
			return
		}
	}
	if ctx.lambda != nil {
		if idx, ok := freeVarIndex(ctx.lambda, ref); ok {
			ctx.emit(OP_FREE_SET, idx)
			return
		}
	}
	ctx.fail(ierr.DeveloperError{Message: "assignment to '" + ref.Name.Name + "' is neither local, free, nor global"})
}

// compileCaptureSource emits the instruction that pushes the current
// value a child closure should capture for the free variable fv, as
// seen from the enclosing Context ctx (spec §4.3's propagation: a
// variable free in a nested lambda is resolved either to one of ctx's
// own locals, or — if it is free in ctx too — to one of ctx's own
// captures).
func compileCaptureSource(ctx *Context, fv *ast.Ref) error {
	owner, _ := fv.Loc.(*ast.Lambda)
	if ctx.lambda != nil && owner == ctx.lambda {
		if slot, ok := localSlotIndex(ctx, fv.Name); ok {
			ctx.emit(OP_LOCAL_GET, slot)
			return nil
		}
	}
	if ctx.lambda != nil {
		if idx, ok := freeVarIndex(ctx.lambda, fv); ok {
			ctx.emit(OP_FREE_GET, idx)
			return nil
		}
	}
	return ierr.DeveloperError{Message: "cannot resolve capture source for '" + fv.Name.Name + "'"}
}

func localSlotIndex(ctx *Context, sym *value.Symbol) (int, bool) {
	for _, l := range ctx.locals {
		if l.name == sym {
			return l.idx, true
		}
	}
	return 0, false
}

func freeVarIndex(lambda *ast.Lambda, ref *ast.Ref) (int, bool) {
	for i, fv := range lambda.FreeVars {
		if fv.Name == ref.Name && fv.Loc == ref.Loc {
			return i, true
		}
	}
	return 0, false
}
