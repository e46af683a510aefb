// Package env implements the lexical environment chain described in
// spec.md §3 ("Environments") and §4.1: a linked chain of frames, each
// holding an ordered list of binding cells. A binding cell is, per spec,
// literally a pair whose car is the symbol and whose cdr is the mutable
// storage location — so cells are represented as *value.Pair, which also
// lets user code that captures a cell (e.g. via a future `environment`
// primitive) see it as an ordinary Scheme pair.
package env

import "ilex/value"

// Frame is one link in the environment chain. The global frame has a nil
// Parent. Owner is the ast.Lambda that this (non-global) frame was
// created for; it is stored as `any` to avoid a dependency cycle between
// env and ast — callers type-assert it back to *ast.Lambda.
type Frame struct {
	Parent   *Frame
	Bindings []*value.Pair // each Car is *value.Symbol, each Cdr is the bound value
	Owner    any
}

// New creates the root (global) frame.
func New() *Frame {
	return &Frame{}
}

// Root walks to the outermost (global) frame of the chain f belongs to.
func Root(f *Frame) *Frame {
	for f.Parent != nil {
		f = f.Parent
	}
	return f
}

// Lookup walks the parent chain from f outward, returning the first cell
// bound to key. It never creates a binding.
func Lookup(f *Frame, key *value.Symbol) (*value.Pair, bool) {
	for frame := f; frame != nil; frame = frame.Parent {
		for _, cell := range frame.Bindings {
			if cell.Car.(*value.Symbol) == key {
				return cell, true
			}
		}
	}
	return nil, false
}

// LookupOrCreate behaves like Lookup, but if key is unbound anywhere on
// the chain it allocates a new cell holding def in the *root* frame and
// returns that. This is the mechanism by which a reference to a
// not-yet-defined global becomes a live forward reference: any later
// `define` for the same name mutates the very same cell (see Define).
func LookupOrCreate(f *Frame, key *value.Symbol, def any) *value.Pair {
	if cell, ok := Lookup(f, key); ok {
		return cell
	}
	root := Root(f)
	cell := &value.Pair{Car: key, Cdr: def}
	root.Bindings = append(root.Bindings, cell)
	return cell
}

// Define binds key to val in the innermost frame f. If a cell for key
// already exists in f (not in an outer frame), its storage is updated in
// place; otherwise a new cell is prepended.
func Define(f *Frame, key *value.Symbol, val any) {
	for _, cell := range f.Bindings {
		if cell.Car.(*value.Symbol) == key {
			cell.Cdr = val
			return
		}
	}
	f.Bindings = append([]*value.Pair{{Car: key, Cdr: val}}, f.Bindings...)
}

// Extend builds a new child frame of f containing one cell per variable
// in vars, each initialised to def, owned by owner (normally an
// *ast.Lambda). Cells are stored in reverse declaration order, so that
// iterating Bindings front-to-back visits the *last* declared variable
// first — this matches the teacher's `Local` stack convention where the
// most recently declared binding is always nearest the top.
func Extend(f *Frame, vars []*value.Symbol, def any, owner any) *Frame {
	bindings := make([]*value.Pair, len(vars))
	for i, v := range vars {
		bindings[len(vars)-1-i] = &value.Pair{Car: v, Cdr: def}
	}
	return &Frame{Parent: f, Bindings: bindings, Owner: owner}
}

// IsGlobal reports whether key, if bound at all on f's chain, is bound
// only in the root frame (i.e. there is no intervening lexical binding).
func IsGlobal(f *Frame, key *value.Symbol) bool {
	root := Root(f)
	for frame := f; frame != nil; frame = frame.Parent {
		for _, cell := range frame.Bindings {
			if cell.Car.(*value.Symbol) == key {
				return frame == root
			}
		}
	}
	return true
}

// Find walks the chain from f outward and returns both the cell bound to
// key and the frame that owns it. The analyzer uses the owning frame
// (rather than the cell's current value, as chibi-scheme does) to decide
// whether a Ref is lexical or global: see ast.Ref.Loc.
func Find(f *Frame, key *value.Symbol) (owner *Frame, cell *value.Pair, ok bool) {
	for frame := f; frame != nil; frame = frame.Parent {
		for _, c := range frame.Bindings {
			if c.Car.(*value.Symbol) == key {
				return frame, c, true
			}
		}
	}
	return nil, nil, false
}

// FindOrCreate behaves like Find, but allocates a fresh cell in the root
// frame (as LookupOrCreate does) when key is unbound anywhere.
func FindOrCreate(f *Frame, key *value.Symbol, def any) (owner *Frame, cell *value.Pair) {
	if owner, cell, ok := Find(f, key); ok {
		return owner, cell
	}
	root := Root(f)
	cell = &value.Pair{Car: key, Cdr: def}
	root.Bindings = append(root.Bindings, cell)
	return root, cell
}
