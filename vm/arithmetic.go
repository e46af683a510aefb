package vm

import (
	"ilex/compiler"
	"ilex/value"
)

// arithFold left-folds args through combine, starting from seed unless
// an explicit initial value is supplied (for `-` with 2+ args, where
// the first argument seeds the fold instead of the identity).
func (m *VM) arithFold(args []any, seed int64, combine func(a, b any) (any, error), initial ...any) (any, error) {
	var acc any = int64(seed)
	rest := args
	if len(initial) == 1 {
		acc = initial[0]
		rest = args[1:]
	}
	for _, a := range rest {
		if !value.IsNumber(a) {
			return m.typeError("arithmetic", "number", a, acc)
		}
		var err error
		if acc, err = combine(acc, a); err != nil {
			return m.raise(&value.Exception{Kind: value.KindTypeError, Message: err.Error(), Irritants: []any{acc, a}})
		}
	}
	return acc, nil
}

func addOp(a, b any) (any, error) { return numOp(a, b, func(x, y int64) int64 { return x + y }, func(x, y float64) float64 { return x + y }) }
func mulOp(a, b any) (any, error) { return numOp(a, b, func(x, y int64) int64 { return x * y }, func(x, y float64) float64 { return x * y }) }
func subOp(a, b any) (any, error) { return numOp(a, b, func(x, y int64) int64 { return x - y }, func(x, y float64) float64 { return x - y }) }

func numOp(a, b any, intOp func(x, y int64) int64, floatOp func(x, y float64) float64) (any, error) {
	ai, aIsInt := compiler.IntOf(a)
	bi, bIsInt := compiler.IntOf(b)
	if aIsInt && bIsInt {
		return intOp(ai, bi), nil
	}
	af, _ := compiler.FloatOf(a)
	bf, _ := compiler.FloatOf(b)
	return floatOp(af, bf), nil
}

func negate(v any) (any, error) {
	switch t := v.(type) {
	case int64:
		return -t, nil
	case float64:
		return -t, nil
	default:
		return nil, errNotANumber
	}
}

func reciprocal(v any) (any, error) {
	if compiler.IsExactZero(v) {
		return nil, errDivByZero
	}
	switch t := v.(type) {
	case int64:
		return 1 / float64(t), nil
	case float64:
		return 1 / t, nil
	default:
		return nil, errNotANumber
	}
}

// arithDivFold implements `/` with 2+ arguments: exact division of
// exact-zero-free integers stays exact when it divides evenly, and
// falls back to float division otherwise (spec §4.5 "exact/inexact
// contagion").
func (m *VM) arithDivFold(args []any) (any, error) {
	acc := args[0]
	for _, b := range args[1:] {
		if compiler.IsExactZero(b) {
			return m.raise(&value.Exception{Kind: value.KindValueError, Message: "division by zero", Irritants: []any{acc, b}})
		}
		ai, aIsInt := compiler.IntOf(acc)
		bi, bIsInt := compiler.IntOf(b)
		if aIsInt && bIsInt && bi != 0 && ai%bi == 0 {
			acc = ai / bi
			continue
		}
		af, _ := compiler.FloatOf(acc)
		bf, _ := compiler.FloatOf(b)
		acc = af / bf
	}
	return acc, nil
}

func (m *VM) compareChain(name string, args []any) (any, error) {
	for i := 0; i+1 < len(args); i++ {
		af, aOk := compiler.FloatOf(args[i])
		bf, bOk := compiler.FloatOf(args[i+1])
		if !aOk || !bOk {
			return m.typeError(name, "number", args[i], args[i+1])
		}
		var ok bool
		switch name {
		case "=":
			ok = af == bf
		case "<":
			ok = af < bf
		case ">":
			ok = af > bf
		case "<=":
			ok = af <= bf
		case ">=":
			ok = af >= bf
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

type arithError string

func (e arithError) Error() string { return string(e) }

const (
	errNotANumber = arithError("not a number")
	errDivByZero  = arithError("division by zero")
)

// applyApply implements Scheme `apply`: (apply proc a b (c d)) calls
// proc with arguments a, b, c, d.
func (m *VM) applyApply(args []any) (any, error) {
	proc := args[0]
	spread := args[1 : len(args)-1]
	tail, ok := value.ListToSlice(args[len(args)-1])
	if !ok {
		return m.typeError("apply", "proper list as final argument", args[len(args)-1])
	}
	callArgs := append(append([]any{}, spread...), tail...)
	return m.Apply(proc, callArgs)
}

func (m *VM) callWithValues(producer, consumer any) (any, error) {
	produced, err := m.Apply(producer, nil)
	if err != nil {
		return nil, err
	}
	args, ok := value.ListToSlice(produced)
	if !ok {
		args = []any{produced}
	}
	return m.Apply(consumer, args)
}

func (m *VM) dynamicWind(before, thunk, after any) (any, error) {
	if _, err := m.Apply(before, nil); err != nil {
		return nil, err
	}
	result, thunkErr := m.Apply(thunk, nil)
	if _, err := m.Apply(after, nil); err != nil {
		return nil, err
	}
	return result, thunkErr
}

// withExceptionHandler installs handler for the dynamic extent of
// thunk's call (spec §7's error handler is dynamically, not lexically,
// scoped).
func (m *VM) withExceptionHandler(handler, thunk any) (any, error) {
	m.PushHandler(handler)
	result, err := m.Apply(thunk, nil)
	m.PopHandler()
	return result, err
}
