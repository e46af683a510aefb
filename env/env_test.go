package env

import (
	"testing"

	"ilex/value"
)

func TestDefineAndLookup(t *testing.T) {
	root := New()
	x := value.Intern("x")
	Define(root, x, int64(1))

	cell, ok := Lookup(root, x)
	if !ok || cell.Cdr != int64(1) {
		t.Fatalf("Lookup after Define = %v, %v", cell, ok)
	}

	Define(root, x, int64(2))
	cell2, _ := Lookup(root, x)
	if cell2 != cell {
		t.Fatalf("redefining an existing name should update the same cell in place")
	}
	if cell2.Cdr != int64(2) {
		t.Fatalf("cell value not updated: %v", cell2.Cdr)
	}
}

func TestLookupOrCreateForwardReference(t *testing.T) {
	root := New()
	x := value.Intern("forward")

	cell := LookupOrCreate(root, x, value.Uninitialized)
	if cell.Cdr != value.Uninitialized {
		t.Fatalf("forward reference should start Uninitialized")
	}

	Define(root, x, int64(42))
	cell2, ok := Lookup(root, x)
	if !ok || cell2 != cell || cell2.Cdr != int64(42) {
		t.Fatalf("define after forward reference should mutate the same cell: %v %v", cell2, ok)
	}
}

func TestExtendAndShadowing(t *testing.T) {
	root := New()
	x := value.Intern("x")
	Define(root, x, "global")

	child := Extend(root, []*value.Symbol{x}, value.Uninitialized, nil)
	cell, ok := Lookup(child, x)
	if !ok || cell.Cdr != value.Uninitialized {
		t.Fatalf("local binding should shadow the global: %v %v", cell, ok)
	}

	rootCell, _ := Lookup(root, x)
	if rootCell.Cdr != "global" {
		t.Fatalf("extending a child frame must not disturb the parent's binding")
	}
}

func TestIsGlobal(t *testing.T) {
	root := New()
	x := value.Intern("x")
	y := value.Intern("y")
	Define(root, x, int64(1))
	child := Extend(root, []*value.Symbol{y}, value.Uninitialized, nil)

	if !IsGlobal(child, x) {
		t.Fatalf("x is only bound at the root, should be global")
	}
	if IsGlobal(child, y) {
		t.Fatalf("y is bound in the child frame, should not be global")
	}
	if !IsGlobal(child, value.Intern("never-bound")) {
		t.Fatalf("an unbound name should be treated as global (it will land in the root)")
	}
}

func TestFindReturnsOwningFrame(t *testing.T) {
	root := New()
	y := value.Intern("y")
	child := Extend(root, []*value.Symbol{y}, value.Uninitialized, "owner")

	owner, cell, ok := Find(child, y)
	if !ok || owner != child || cell.Cdr != value.Uninitialized {
		t.Fatalf("Find should report the child frame as owner: %v %v %v", owner, cell, ok)
	}

	rootOwner, _, ok := Find(child, value.Intern("undefined-anywhere"))
	_ = rootOwner
	if ok {
		t.Fatalf("Find should report false for a name bound nowhere")
	}
}

func TestExtendPreservesLastDeclaredOrder(t *testing.T) {
	root := New()
	a, b := value.Intern("a"), value.Intern("b")
	child := Extend(root, []*value.Symbol{a, b}, value.Uninitialized, nil)

	if child.Bindings[0].Car.(*value.Symbol) != b {
		t.Fatalf("Extend should store bindings with the last-declared variable first")
	}
	if child.Bindings[1].Car.(*value.Symbol) != a {
		t.Fatalf("Extend should store bindings with the first-declared variable last")
	}
}
