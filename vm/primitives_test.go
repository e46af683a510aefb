package vm

import (
	"errors"
	"testing"

	"ilex/value"
)

func newTestVM() *VM { return New(nil) }

func call(t *testing.T, name string, args ...any) any {
	t.Helper()
	m := newTestVM()
	op := findPrimitive(t, name)
	result, err := m.applyPrimitive(op, args)
	if err != nil {
		t.Fatalf("applyPrimitive(%s, %v) error: %v", name, args, err)
	}
	return result
}

func findPrimitive(t *testing.T, name string) *value.Opcode {
	t.Helper()
	for _, op := range testPrimitives() {
		if op.Name == name {
			return op
		}
	}
	t.Fatalf("no test primitive named %q", name)
	return nil
}

// testPrimitives mirrors the subset of compiler.Primitives this file
// exercises, redeclared locally to keep package vm's tests free of an
// import of package compiler's whole table (vm imports compiler already
// for Instructions/Opcode, this just keeps arity metadata colocated
// with the assertions that need it).
func testPrimitives() []*value.Opcode {
	return []*value.Opcode{
		{Name: "cons", MinArgs: 2},
		{Name: "car", MinArgs: 1},
		{Name: "cdr", MinArgs: 1},
		{Name: "+", MinArgs: 0, Variadic: true},
		{Name: "-", MinArgs: 1, Variadic: true},
		{Name: "*", MinArgs: 0, Variadic: true},
		{Name: "/", MinArgs: 1, Variadic: true},
		{Name: "=", MinArgs: 2, Variadic: true},
		{Name: "<", MinArgs: 2, Variadic: true},
		{Name: "equal?", MinArgs: 2},
		{Name: "eq?", MinArgs: 2},
		{Name: "vector-ref", MinArgs: 2},
		{Name: "string-append", MinArgs: 0, Variadic: true},
		{Name: "apply", MinArgs: 2, Variadic: true},
		{Name: "error", MinArgs: 1, Variadic: true},
		{Name: "display", MinArgs: 1, Variadic: true},
	}
}

func TestConsCarCdr(t *testing.T) {
	p := call(t, "cons", int64(1), int64(2))
	pair, ok := p.(*value.Pair)
	if !ok || pair.Car != int64(1) || pair.Cdr != int64(2) {
		t.Fatalf("cons result wrong: %#v", p)
	}
	if got := call(t, "car", pair); got != int64(1) {
		t.Fatalf("car = %v, want 1", got)
	}
	if got := call(t, "cdr", pair); got != int64(2) {
		t.Fatalf("cdr = %v, want 2", got)
	}
}

func TestArithmeticVariadic(t *testing.T) {
	if got := call(t, "+", int64(1), int64(2), int64(3)); got != int64(6) {
		t.Fatalf("+ = %v, want 6", got)
	}
	if got := call(t, "*", int64(2), int64(3), int64(4)); got != int64(24) {
		t.Fatalf("* = %v, want 24", got)
	}
	if got := call(t, "-", int64(10), int64(3), int64(2)); got != int64(5) {
		t.Fatalf("- = %v, want 5", got)
	}
}

func TestUnaryMinusNegates(t *testing.T) {
	if got := call(t, "-", int64(5)); got != int64(-5) {
		t.Fatalf("(- 5) = %v, want -5", got)
	}
}

func TestUnaryDivideReciprocates(t *testing.T) {
	if got := call(t, "/", int64(4)); got != 0.25 {
		t.Fatalf("(/ 4) = %v, want 0.25", got)
	}
}

func TestExactDivisionStaysExact(t *testing.T) {
	if got := call(t, "/", int64(10), int64(2)); got != int64(5) {
		t.Fatalf("(/ 10 2) = %v, want exact 5", got)
	}
}

func TestInexactDivisionFallsBackToFloat(t *testing.T) {
	if got := call(t, "/", int64(1), int64(3)); got != float64(1)/float64(3) {
		t.Fatalf("(/ 1 3) = %v, want 1/3 as a float", got)
	}
}

func TestComparisonChain(t *testing.T) {
	if got := call(t, "<", int64(1), int64(2), int64(3)); got != true {
		t.Fatalf("(< 1 2 3) = %v, want #t", got)
	}
	if got := call(t, "<", int64(1), int64(3), int64(2)); got != false {
		t.Fatalf("(< 1 3 2) = %v, want #f", got)
	}
}

func TestEqualVsEq(t *testing.T) {
	a := value.NewString("hi")
	b := value.NewString("hi")
	if call(t, "eq?", a, b) != false {
		t.Fatalf("two distinct string objects must not be eq?")
	}
	if call(t, "equal?", a, b) != true {
		t.Fatalf("two strings with the same contents must be equal?")
	}
}

func TestDivisionByZeroRaises(t *testing.T) {
	m := newTestVM()
	op := findPrimitive(t, "/")
	_, err := m.applyPrimitive(op, []any{int64(1), int64(0)})
	exc := requireException(t, err)
	if exc.Kind != value.KindValueError {
		t.Fatalf("got Kind %q, want %q", exc.Kind, value.KindValueError)
	}
	if len(exc.Irritants) != 2 || exc.Irritants[0] != int64(1) || exc.Irritants[1] != int64(0) {
		t.Fatalf("got Irritants %v, want both operands [1 0]", exc.Irritants)
	}
}

func TestArityCheckRejectsTooFewArgs(t *testing.T) {
	m := newTestVM()
	op := findPrimitive(t, "cons")
	_, err := m.applyPrimitive(op, []any{int64(1)})
	exc := requireException(t, err)
	if exc.Kind != value.KindArityError {
		t.Fatalf("got Kind %q, want %q", exc.Kind, value.KindArityError)
	}
}

func TestVectorRefBoundsError(t *testing.T) {
	m := newTestVM()
	op := findPrimitive(t, "vector-ref")
	v := &value.Vector{Items: []any{int64(1), int64(2)}}
	_, err := m.applyPrimitive(op, []any{v, int64(5)})
	exc := requireException(t, err)
	if exc.Kind != value.KindBoundsError {
		t.Fatalf("got Kind %q, want %q", exc.Kind, value.KindBoundsError)
	}
	if len(exc.Irritants) != 2 || exc.Irritants[0] != v || exc.Irritants[1] != int64(5) {
		t.Fatalf("got Irritants %v, want [vector 5]", exc.Irritants)
	}
}

func TestCarOfEmptyListRaisesWithIrritant(t *testing.T) {
	m := newTestVM()
	op := findPrimitive(t, "car")
	_, err := m.applyPrimitive(op, []any{value.Null{}})
	exc := requireException(t, err)
	if exc.Kind != value.KindTypeError {
		t.Fatalf("got Kind %q, want %q", exc.Kind, value.KindTypeError)
	}
	if len(exc.Irritants) != 1 || exc.Irritants[0] != (value.Null{}) {
		t.Fatalf("got Irritants %v, want the empty list itself", exc.Irritants)
	}
}

func TestDisplayWrapsPortFailureAsResourceError(t *testing.T) {
	// A Port.WriteString failure (full disk, closed pipe) must surface as
	// a catchable resource-error, not a bare Go error that aborts the
	// whole Run/Apply loop.
	m := newTestVM()
	m.Out = &value.Port{
		Direction: value.OutputPort,
		Name:      "broken",
		WriteString: func(string) (int, error) {
			return 0, errors.New("write: broken pipe")
		},
	}
	op := findPrimitive(t, "display")
	_, err := m.applyPrimitive(op, []any{int64(1)})
	exc := requireException(t, err)
	if exc.Kind != value.KindResourceError {
		t.Fatalf("got Kind %q, want %q", exc.Kind, value.KindResourceError)
	}
}

func requireException(t *testing.T, err error) *value.Exception {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error")
	}
	exc, ok := err.(*value.Exception)
	if !ok {
		t.Fatalf("expected a catchable *value.Exception, got %T: %v", err, err)
	}
	return exc
}

func TestDynamicWindRunsBeforeAndAfter(t *testing.T) {
	var order []string
	m := newTestVM()
	before := &value.Opcode{Name: "before", Foreign: func([]any) (any, error) {
		order = append(order, "before")
		return value.Undef, nil
	}}
	thunk := &value.Opcode{Name: "thunk", Foreign: func([]any) (any, error) {
		order = append(order, "thunk")
		return int64(1), nil
	}}
	after := &value.Opcode{Name: "after", Foreign: func([]any) (any, error) {
		order = append(order, "after")
		return value.Undef, nil
	}}
	result, err := m.dynamicWind(before, thunk, after)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != int64(1) {
		t.Fatalf("dynamic-wind should return the thunk's result, got %v", result)
	}
	want := []string{"before", "thunk", "after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestWithExceptionHandlerCatchesRaise(t *testing.T) {
	m := newTestVM()
	var caught *value.Exception
	handler := &value.Opcode{Name: "handler", MinArgs: 1, Foreign: func(args []any) (any, error) {
		caught = args[0].(*value.Exception)
		return int64(-1), nil
	}}
	thunk := &value.Opcode{Name: "thunk", Foreign: func([]any) (any, error) {
		return m.raise(&value.Exception{Kind: value.KindUserError, Message: "boom"})
	}}
	result, err := m.withExceptionHandler(handler, thunk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != int64(-1) {
		t.Fatalf("with-exception-handler should return the handler's result, got %v", result)
	}
	if caught == nil || caught.Message != "boom" {
		t.Fatalf("handler did not receive the raised exception: %#v", caught)
	}
}

func TestRaiseWithNoHandlerReturnsGoError(t *testing.T) {
	m := newTestVM()
	_, err := m.raise(&value.Exception{Kind: value.KindUserError, Message: "uncaught"})
	if err == nil {
		t.Fatalf("raising with no installed handler should surface as a Go error")
	}
}
