// Package analyzer turns a raw s-expression (as produced by the reader)
// into the typed syntax tree defined by package ast (spec.md §4.2
// "Analyzer"). It follows the teacher's recursive-descent/visitor split:
// where informatter-nilan's parser builds ast.Expression nodes token by
// token, this analyzer builds ast.Node values form by form, dispatching
// on the operator position exactly the way chibi-scheme's `analyze`
// dispatches on `core_code`: by looking the head symbol up in the
// environment and checking whether it is bound to a syntactic keyword,
// not by a fixed string switch. That lookup is what lets a local
// binding shadow a keyword such as `if` or `lambda`.
package analyzer

import (
	"fmt"

	"ilex/ast"
	"ilex/env"
	"ilex/ierr"
	"ilex/value"
)

var coreFormNames = []string{"quote", "if", "lambda", "define", "set!", "begin", "and", "or"}

// Bootstrap binds every core syntactic keyword into root so that Analyze
// can discover them via ordinary environment lookup. Callers building a
// fresh top-level environment call this once before analyzing anything.
func Bootstrap(root *env.Frame) {
	for _, name := range coreFormNames {
		sym := value.Intern(name)
		if _, ok := env.Lookup(root, sym); ok {
			continue
		}
		env.Define(root, sym, &ast.CoreForm{Name: name})
	}
}

var gensymCounter int

func gensym(tag string) *value.Symbol {
	gensymCounter++
	return value.Intern(fmt.Sprintf(" %s-%d", tag, gensymCounter))
}

// Analyze compiles one raw datum into an ast.Node under frame.
func Analyze(expr any, frame *env.Frame) (ast.Node, error) {
	switch x := expr.(type) {
	case *value.Symbol:
		return analyzeVarRef(x, frame)
	case *value.Pair:
		return analyzePair(x, frame)
	case nil:
		return nil, ierr.CompileError{Kind: value.KindCompileError, Message: "cannot analyze a nil datum"}
	default:
		// self-evaluating: numbers, strings, booleans, chars, vectors, ().
		return &ast.Lit{Value: expr}, nil
	}
}

func analyzePair(x *value.Pair, frame *env.Frame) (ast.Node, error) {
	if sym, ok := x.Car.(*value.Symbol); ok {
		if _, cell, ok := env.Find(frame, sym); ok {
			if form, ok := cell.Cdr.(*ast.CoreForm); ok {
				return analyzeCoreForm(form, x, frame)
			}
		}
	}
	return analyzeApp(x, frame)
}

func analyzeCoreForm(form *ast.CoreForm, x *value.Pair, frame *env.Frame) (ast.Node, error) {
	switch form.Name {
	case "quote":
		return analyzeQuote(x)
	case "if":
		return analyzeIf(x, frame)
	case "lambda":
		return analyzeLambda(x, frame, "")
	case "define":
		return analyzeDefine(x, frame)
	case "set!":
		return analyzeSet(x, frame)
	case "begin":
		return analyzeBegin(x, frame)
	case "and":
		exprs, _ := value.ListToSlice(x.Cdr)
		return analyzeAnd(exprs, frame)
	case "or":
		exprs, _ := value.ListToSlice(x.Cdr)
		return analyzeOr(exprs, frame)
	default:
		return nil, ierr.DeveloperError{Message: "unhandled core form: " + form.Name}
	}
}

func analyzeVarRef(sym *value.Symbol, frame *env.Frame) (*ast.Ref, error) {
	owner, _ := env.FindOrCreate(frame, sym, value.Uninitialized)
	if owner == env.Root(frame) {
		_, cell, _ := env.Find(frame, sym)
		return &ast.Ref{Name: sym, Loc: cell}, nil
	}
	lambda, _ := owner.Owner.(*ast.Lambda)
	return &ast.Ref{Name: sym, Loc: lambda}, nil
}

func analyzeQuote(x *value.Pair) (ast.Node, error) {
	args, ok := value.ListToSlice(x.Cdr)
	if !ok || len(args) != 1 {
		return nil, ierr.CompileError{Kind: value.KindCompileError, Message: "quote takes exactly one argument"}
	}
	return &ast.Lit{Value: args[0]}, nil
}

func analyzeIf(x *value.Pair, frame *env.Frame) (ast.Node, error) {
	args, ok := value.ListToSlice(x.Cdr)
	if !ok || (len(args) != 2 && len(args) != 3) {
		return nil, ierr.CompileError{Kind: value.KindCompileError, Message: "if takes 2 or 3 arguments"}
	}
	test, err := Analyze(args[0], frame)
	if err != nil {
		return nil, err
	}
	pass, err := Analyze(args[1], frame)
	if err != nil {
		return nil, err
	}
	var fail ast.Node = &ast.Lit{Value: value.Undef}
	if len(args) == 3 {
		if fail, err = Analyze(args[2], frame); err != nil {
			return nil, err
		}
	}
	return &ast.Cnd{Test: test, Pass: pass, Fail: fail}, nil
}

// analyzeLambda implements spec §4.2's `lambda` rule. name is a
// best-effort label for diagnostics, taken from an enclosing `define`.
func analyzeLambda(x *value.Pair, frame *env.Frame, name string) (ast.Node, error) {
	rest, ok := x.Cdr.(*value.Pair)
	if !ok {
		return nil, ierr.CompileError{Kind: value.KindCompileError, Message: "lambda requires a parameter list and body"}
	}
	params, restParam, err := flattenParams(rest.Car)
	if err != nil {
		return nil, err
	}
	body, ok := value.ListToSlice(rest.Cdr)
	if !ok || len(body) == 0 {
		return nil, ierr.CompileError{Kind: value.KindCompileError, Message: "lambda body must be a non-empty proper list"}
	}

	lambda := &ast.Lambda{Params: params, RestParam: restParam, Name: name, SetVars: map[*value.Symbol]bool{}}
	child := env.Extend(frame, lambda.AllParams(), lambda, lambda)

	seq, err := analyzeBodySeq(body, child)
	if err != nil {
		return nil, err
	}
	lambda.Body = seq
	return lambda, nil
}

func analyzeBodySeq(body []any, frame *env.Frame) (ast.Node, error) {
	nodes := make([]ast.Node, 0, len(body))
	for _, form := range body {
		node, err := Analyze(form, frame)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return &ast.Seq{Exprs: nodes}, nil
}

func flattenParams(formals any) (params []*value.Symbol, rest *value.Symbol, err error) {
	for {
		switch t := formals.(type) {
		case value.Null:
			return params, rest, nil
		case *value.Pair:
			sym, ok := t.Car.(*value.Symbol)
			if !ok {
				return nil, nil, ierr.CompileError{Kind: value.KindCompileError, Message: "lambda parameter must be a symbol"}
			}
			params = append(params, sym)
			formals = t.Cdr
		case *value.Symbol:
			return params, t, nil
		default:
			return nil, nil, ierr.CompileError{Kind: value.KindCompileError, Message: "malformed lambda parameter list"}
		}
	}
}

// analyzeDefine implements spec §4.2's `define` rule, following
// chibi-scheme's analyze_define: it always resolves the name through the
// same lookup-or-create path a plain reference would. analyzeLambda
// extends its frame with the parameters only, so an internal define of a
// name that is not a parameter resolves to a cell in the root frame, the
// same as a top-level define; the name is also appended to the enclosing
// lambda's Locals.
func analyzeDefine(x *value.Pair, frame *env.Frame) (ast.Node, error) {
	rest, ok := x.Cdr.(*value.Pair)
	if !ok {
		return nil, ierr.CompileError{Kind: value.KindCompileError, Message: "define requires a target and value"}
	}
	var name *value.Symbol
	var valueNode ast.Node
	var err error

	switch target := rest.Car.(type) {
	case *value.Symbol:
		name = target
		body, ok := value.ListToSlice(rest.Cdr)
		if !ok || len(body) > 1 {
			return nil, ierr.CompileError{Kind: value.KindCompileError, Message: "define takes at most one value expression"}
		}
		if len(body) == 0 {
			valueNode = &ast.Lit{Value: value.Undef}
		} else if valueNode, err = Analyze(body[0], frame); err != nil {
			return nil, err
		}
	case *value.Pair:
		// (define (f . formals) body...) => (define f (lambda formals body...))
		sym, ok := target.Car.(*value.Symbol)
		if !ok {
			return nil, ierr.CompileError{Kind: value.KindCompileError, Message: "define target must name a procedure"}
		}
		name = sym
		lambdaForm := &value.Pair{Car: value.Undef, Cdr: &value.Pair{Car: target.Cdr, Cdr: rest.Cdr}}
		if valueNode, err = analyzeLambda(lambdaForm, frame, sym.Name); err != nil {
			return nil, err
		}
	default:
		return nil, ierr.CompileError{Kind: value.KindCompileError, Message: "define target must be a symbol or procedure header"}
	}

	if lambda, ok := frame.Owner.(*ast.Lambda); ok {
		lambda.Locals = append(lambda.Locals, name)
	}
	if l, ok := valueNode.(*ast.Lambda); ok && l.Name == "" {
		l.Name = name.Name
	}

	ref, err := analyzeVarRef(name, frame)
	if err != nil {
		return nil, err
	}
	// Ensure the binding cell exists (top-level define of a never-referenced
	// name still needs a cell to assign into).
	env.FindOrCreate(frame, name, value.Uninitialized)
	return &ast.Set{Target: ref, Value: valueNode}, nil
}

func analyzeSet(x *value.Pair, frame *env.Frame) (ast.Node, error) {
	args, ok := value.ListToSlice(x.Cdr)
	if !ok || len(args) != 2 {
		return nil, ierr.CompileError{Kind: value.KindCompileError, Message: "set! takes exactly two arguments"}
	}
	name, ok := args[0].(*value.Symbol)
	if !ok {
		return nil, ierr.CompileError{Kind: value.KindCompileError, Message: "set! target must be a symbol"}
	}
	ref, err := analyzeVarRef(name, frame)
	if err != nil {
		return nil, err
	}
	if lambda, ok := ref.Loc.(*ast.Lambda); ok {
		if lambda.SetVars == nil {
			lambda.SetVars = map[*value.Symbol]bool{}
		}
		lambda.SetVars[name] = true
	}
	valueNode, err := Analyze(args[1], frame)
	if err != nil {
		return nil, err
	}
	return &ast.Set{Target: ref, Value: valueNode}, nil
}

func analyzeBegin(x *value.Pair, frame *env.Frame) (ast.Node, error) {
	exprs, ok := value.ListToSlice(x.Cdr)
	if !ok || len(exprs) == 0 {
		return nil, ierr.CompileError{Kind: value.KindCompileError, Message: "begin requires at least one expression"}
	}
	return analyzeBodySeq(exprs, frame)
}

func analyzeApp(x *value.Pair, frame *env.Frame) (ast.Node, error) {
	proc, err := Analyze(x.Car, frame)
	if err != nil {
		return nil, err
	}
	argExprs, ok := value.ListToSlice(x.Cdr)
	if !ok {
		return nil, ierr.CompileError{Kind: value.KindCompileError, Message: "improper application form"}
	}
	args := make([]ast.Node, len(argExprs))
	for i, a := range argExprs {
		if args[i], err = Analyze(a, frame); err != nil {
			return nil, err
		}
	}
	return &ast.App{Proc: proc, Args: args}, nil
}

// analyzeAnd and analyzeOr desugar into single-parameter lambda
// applications so that the shared test expression is evaluated exactly
// once, matching R7RS's left-to-right, evaluate-once semantics.
func analyzeAnd(exprs []any, frame *env.Frame) (ast.Node, error) {
	if len(exprs) == 0 {
		return &ast.Lit{Value: true}, nil
	}
	if len(exprs) == 1 {
		return Analyze(exprs[0], frame)
	}
	return bindAndBranch(exprs[0], exprs[1:], frame, true)
}

func analyzeOr(exprs []any, frame *env.Frame) (ast.Node, error) {
	if len(exprs) == 0 {
		return &ast.Lit{Value: false}, nil
	}
	if len(exprs) == 1 {
		return Analyze(exprs[0], frame)
	}
	return bindAndBranch(exprs[0], exprs[1:], frame, false)
}

// bindAndBranch builds ((lambda (t) (if t <rest-on-truthy> t)) head) for
// `and`, or ((lambda (t) (if t t <rest-on-falsy>)) head) for `or`.
func bindAndBranch(head any, rest []any, frame *env.Frame, isAnd bool) (ast.Node, error) {
	headNode, err := Analyze(head, frame)
	if err != nil {
		return nil, err
	}
	tempName := gensym("and-or")
	lambda := &ast.Lambda{Params: []*value.Symbol{tempName}, SetVars: map[*value.Symbol]bool{}}
	child := env.Extend(frame, lambda.AllParams(), lambda, lambda)

	tempRef, err := analyzeVarRef(tempName, child)
	if err != nil {
		return nil, err
	}
	var restNode ast.Node
	if isAnd {
		restNode, err = analyzeAnd(rest, child)
	} else {
		restNode, err = analyzeOr(rest, child)
	}
	if err != nil {
		return nil, err
	}
	tempRef2, err := analyzeVarRef(tempName, child)
	if err != nil {
		return nil, err
	}
	var cnd *ast.Cnd
	if isAnd {
		cnd = &ast.Cnd{Test: tempRef, Pass: restNode, Fail: tempRef2}
	} else {
		cnd = &ast.Cnd{Test: tempRef, Pass: tempRef2, Fail: restNode}
	}
	lambda.Body = cnd
	return &ast.App{Proc: lambda, Args: []ast.Node{headNode}}, nil
}
