// Package freevars implements the free-variable pass described in
// spec.md §4.3: a post-order walk of the AST that, for every ast.Lambda,
// computes the set of variables it references but does not itself bind,
// so the compiler can later emit closure-capture instructions. It
// mirrors the teacher's visitor-based traversal (ast.Visitor) used
// elsewhere in this module, rather than a bespoke recursive walk.
package freevars

import "ilex/ast"

// Compute walks node and populates FreeVars on every ast.Lambda reached
// from it, innermost first. It is idempotent: calling it twice on the
// same tree recomputes (and overwrites) the same sets.
func Compute(node ast.Node) {
	w := &walker{}
	node.Accept(w)
}

// walker implements ast.Visitor. Each Visit* method returns the set of
// free references found in that subtree (a map keyed by *ast.Ref
// identity; Refs to the same (name, loc) binding are coalesced
// afterwards by dedupe).
type walker struct{}

type refSet map[*ast.Ref]bool

func (w *walker) VisitLit(*ast.Lit) any { return refSet{} }

func (w *walker) VisitRef(r *ast.Ref) any {
	if r.IsGlobal() {
		return refSet{}
	}
	return refSet{r: true}
}

func (w *walker) VisitSet(s *ast.Set) any {
	out := w.merge(s.Value.Accept(w))
	if !s.Target.IsGlobal() {
		out[s.Target] = true
	}
	return out
}

func (w *walker) VisitCnd(c *ast.Cnd) any {
	out := w.merge(c.Test.Accept(w))
	for k := range w.merge(c.Pass.Accept(w)) {
		out[k] = true
	}
	for k := range w.merge(c.Fail.Accept(w)) {
		out[k] = true
	}
	return out
}

func (w *walker) VisitSeq(s *ast.Seq) any {
	out := refSet{}
	for _, e := range s.Exprs {
		for k := range w.merge(e.Accept(w)) {
			out[k] = true
		}
	}
	return out
}

func (w *walker) VisitApp(a *ast.App) any {
	out := w.merge(a.Proc.Accept(w))
	for _, arg := range a.Args {
		for k := range w.merge(arg.Accept(w)) {
			out[k] = true
		}
	}
	return out
}

// VisitLambda computes the body's free references, removes anything
// that resolves to this lambda itself (its own parameters/locals, which
// are bound here, not captured), records the remainder as the lambda's
// FreeVars, and returns that remainder to the enclosing scope — a
// variable free in a nested lambda is free in its parent too, unless the
// parent itself binds it (spec §4.3 "propagation").
func (w *walker) VisitLambda(l *ast.Lambda) any {
	inner := w.merge(l.Body.Accept(w))
	own := refSet{}
	free := make([]*ast.Ref, 0, len(inner))
	for ref := range inner {
		if ref.Loc == l {
			own[ref] = true
			continue
		}
		free = append(free, ref)
	}
	l.FreeVars = dedupe(free)
	out := refSet{}
	for _, ref := range free {
		out[ref] = true
	}
	return out
}

func (w *walker) merge(v any) refSet {
	if v == nil {
		return refSet{}
	}
	return v.(refSet)
}

// dedupe collapses multiple Ref occurrences of the same (name, loc) pair
// into one representative, since the compiler allocates one capture slot
// per distinct binding, not per occurrence.
func dedupe(refs []*ast.Ref) []*ast.Ref {
	type key struct {
		name any
		loc  any
	}
	seen := map[key]bool{}
	out := make([]*ast.Ref, 0, len(refs))
	for _, r := range refs {
		k := key{r.Name, r.Loc}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}
