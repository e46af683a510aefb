// Package ast defines the typed syntax tree produced by the analyzer
// (spec.md §3 "AST nodes", §4.2). It follows the same visitor-pattern
// layout the teacher repo uses for its own (unrelated) expression
// grammar: each node implements Accept, dispatching to one method of a
// Visitor. AST nodes are a separate type family from value.Value; the
// two are never confused because they live in disjoint Go types (spec
// invariant: "AST variants are disjoint from runtime variants").
package ast

import "ilex/value"

// Visitor is implemented by anything that walks the AST: the
// free-variable pass and the bytecode compiler both implement it.
type Visitor interface {
	VisitRef(*Ref) any
	VisitSet(*Set) any
	VisitLambda(*Lambda) any
	VisitCnd(*Cnd) any
	VisitSeq(*Seq) any
	VisitLit(*Lit) any
	VisitApp(*App) any
}

// Node is the common interface for every AST variant.
type Node interface {
	Accept(v Visitor) any
}

// Ref is a variable reference. Loc is either the *Lambda that owns the
// binding (for a local or closure-captured variable) or a *value.Pair
// global binding cell (spec §3 "Invariants" and §4.1's
// lookup-or-create). It is never nil once the analyzer has run.
type Ref struct {
	Name *value.Symbol
	Loc  any
}

func (r *Ref) Accept(v Visitor) any { return v.VisitRef(r) }

// IsGlobal reports whether this Ref resolves to a global cell rather
// than a lexical Lambda binding.
func (r *Ref) IsGlobal() bool {
	_, isGlobalCell := r.Loc.(*value.Pair)
	return isGlobalCell
}

// Set is an assignment (`set!`, and the `define` core form once
// lowered). Target identifies which Ref is being mutated so the
// compiler can distinguish local/closure slots from global cells
// without re-resolving the name.
type Set struct {
	Target *Ref
	Value  Node
}

func (s *Set) Accept(v Visitor) any { return v.VisitSet(s) }

// Lambda is a closure template. Params holds the fixed parameters;
// RestParam is non-nil when the parameter list was improper (dotted),
// i.e. the procedure is variadic. Locals lists names internally defined
// with `define` inside the body (spec §4.2's `define` core-form rule).
// FreeVars and SetVars are populated by later passes (freevars, and the
// analyzer itself for SetVars) rather than at construction time.
type Lambda struct {
	Params    []*value.Symbol
	RestParam *value.Symbol
	Body      Node
	Locals    []*value.Symbol
	FreeVars  []*Ref
	SetVars   map[*value.Symbol]bool
	Name      string // best-effort, for diagnostics/disassembly only
}

func (l *Lambda) Accept(v Visitor) any { return v.VisitLambda(l) }

// AllParams returns the fixed parameters followed by the rest parameter,
// if any — the flattened parameter list spec §3 refers to.
func (l *Lambda) AllParams() []*value.Symbol {
	if l.RestParam == nil {
		return l.Params
	}
	return append(append([]*value.Symbol{}, l.Params...), l.RestParam)
}

// IsSet reports whether name is ever the target of a `set!` inside this
// lambda's body, meaning it must be box-allocated (spec §3 "Set
// variable").
func (l *Lambda) IsSet(name *value.Symbol) bool {
	return l.SetVars != nil && l.SetVars[name]
}

// Cnd is `if`. Fail defaults to a Lit holding value.Undef when no
// else-branch was written (spec §4.2 `if` rule).
type Cnd struct {
	Test, Pass, Fail Node
}

func (c *Cnd) Accept(v Visitor) any { return v.VisitCnd(c) }

// Seq is `begin`: a sequence of expressions evaluated for effect, with
// the last one evaluated for value.
type Seq struct {
	Exprs []Node
}

func (s *Seq) Accept(v Visitor) any { return v.VisitSeq(s) }

// Lit is a quoted literal datum, or a self-evaluating constant (number,
// string, boolean, character).
type Lit struct {
	Value any
}

func (l *Lit) Accept(v Visitor) any { return v.VisitLit(l) }

// App is a procedure application: the analyzer makes no distinction
// between a primitive call and a general call (spec §4.2 "Application");
// that distinction is made later, by the compiler, once it knows whether
// Proc resolves to an Opcode.
type App struct {
	Proc Node
	Args []Node
}

func (a *App) Accept(v Visitor) any { return v.VisitApp(a) }

// CoreForm is bound into the global environment under each syntactic
// keyword (if, lambda, define, set!, quote, begin, and, or) so that the
// analyzer discovers keyword-ness the same way it discovers a variable
// binding: by looking the symbol up in the environment it was given,
// rather than by a hardcoded string comparison. This also means a local
// binding can shadow a keyword, same as chibi-scheme's core_code lookup.
type CoreForm struct {
	Name string
}
