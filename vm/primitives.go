package vm

// applyPrimitive executes every opcode-backed procedure listed in
// compiler.Primitives except call/cc (handled in continuation.go). The
// big switch on op.Name mirrors how chibi-scheme's VM dispatches
// OP_ADD/OP_CAR/etc: a flat table of names rather than one Go type per
// primitive, which keeps adding a primitive a one-line, one-case change.

import (
	"fmt"
	"strconv"
	"strings"

	"ilex/reader"
	"ilex/value"
)

func (m *VM) applyPrimitive(op *value.Opcode, args []any) (any, error) {
	if err := checkArity(op, len(args)); err != nil {
		return m.raise(err.(*value.Exception))
	}

	switch op.Name {
	case "+":
		return m.arithFold(args, 0, addOp)
	case "*":
		return m.arithFold(args, 1, mulOp)
	case "-", "negate":
		if len(args) == 1 {
			result, err := negate(args[0])
			if err != nil {
				return m.typeError(op.Name, "number", args[0])
			}
			return result, nil
		}
		return m.arithFold(args, 0, subOp, args[0])
	case "/", "reciprocal":
		if len(args) == 1 {
			result, err := reciprocal(args[0])
			if err != nil {
				if err == errDivByZero {
					return m.raise(&value.Exception{Kind: value.KindValueError, Message: op.Name + ": division by zero", Irritants: []any{args[0]}})
				}
				return m.typeError(op.Name, "number", args[0])
			}
			return result, nil
		}
		return m.arithDivFold(args)

	case "=", "<", ">", "<=", ">=":
		return m.compareChain(op.Name, args)

	case "cons":
		return &value.Pair{Car: args[0], Cdr: args[1]}, nil
	case "car":
		p, ok := args[0].(*value.Pair)
		if !ok {
			return m.typeError("car", "pair", args[0])
		}
		return p.Car, nil
	case "cdr":
		p, ok := args[0].(*value.Pair)
		if !ok {
			return m.typeError("cdr", "pair", args[0])
		}
		return p.Cdr, nil
	case "set-car!":
		p, ok := args[0].(*value.Pair)
		if !ok {
			return m.typeError("set-car!", "pair", args[0])
		}
		p.Car = args[1]
		return value.Undef, nil
	case "set-cdr!":
		p, ok := args[0].(*value.Pair)
		if !ok {
			return m.typeError("set-cdr!", "pair", args[0])
		}
		p.Cdr = args[1]
		return value.Undef, nil

	case "vector":
		return &value.Vector{Items: append([]any{}, args...)}, nil
	case "make-vector":
		size := int(args[0].(int64))
		fill := any(value.Undef)
		if len(args) == 2 {
			fill = args[1]
		}
		items := make([]any, size)
		for i := range items {
			items[i] = fill
		}
		return &value.Vector{Items: items}, nil
	case "vector-ref":
		v, idx, err := m.vectorIndex(args[0], args[1], "vector-ref")
		if err != nil {
			return nil, err
		}
		return v.Items[idx], nil
	case "vector-set!":
		v, idx, err := m.vectorIndex(args[0], args[1], "vector-set!")
		if err != nil {
			return nil, err
		}
		v.Items[idx] = args[2]
		return value.Undef, nil
	case "vector-length":
		v, ok := args[0].(*value.Vector)
		if !ok {
			return m.typeError("vector-length", "vector", args[0])
		}
		return int64(len(v.Items)), nil
	case "vector-fill!":
		v, ok := args[0].(*value.Vector)
		if !ok {
			return m.typeError("vector-fill!", "vector", args[0])
		}
		for i := range v.Items {
			v.Items[i] = args[1]
		}
		return value.Undef, nil

	case "string-length":
		s, ok := args[0].(*value.SString)
		if !ok {
			return m.typeError("string-length", "string", args[0])
		}
		return int64(len(s.Chars)), nil
	case "string-ref":
		s, ok := args[0].(*value.SString)
		if !ok {
			return m.typeError("string-ref", "string", args[0])
		}
		idx := int(args[1].(int64))
		if idx < 0 || idx >= len(s.Chars) {
			return m.boundsError("string-ref", idx, len(s.Chars), s, int64(idx))
		}
		return value.Char(s.Chars[idx]), nil
	case "string-set!":
		s, ok := args[0].(*value.SString)
		if !ok {
			return m.typeError("string-set!", "string", args[0])
		}
		idx := int(args[1].(int64))
		if idx < 0 || idx >= len(s.Chars) {
			return m.boundsError("string-set!", idx, len(s.Chars), s, int64(idx))
		}
		s.Chars[idx] = rune(args[2].(value.Char))
		return value.Undef, nil
	case "string-append":
		var b strings.Builder
		for _, a := range args {
			s, ok := a.(*value.SString)
			if !ok {
				return m.typeError("string-append", "string", a)
			}
			b.WriteString(string(s.Chars))
		}
		return value.NewString(b.String()), nil
	case "substring":
		s := args[0].(*value.SString)
		start, end := int(args[1].(int64)), int(args[2].(int64))
		if start < 0 || end > len(s.Chars) || start > end {
			return m.boundsError("substring", start, len(s.Chars), s, int64(start), int64(end))
		}
		return value.NewString(string(s.Chars[start:end])), nil
	case "string->symbol":
		return value.Intern(string(args[0].(*value.SString).Chars)), nil
	case "symbol->string":
		return value.NewString(args[0].(*value.Symbol).Name), nil
	case "number->string":
		return value.NewString(value.Display(args[0])), nil
	case "string->number":
		return parseNumber(string(args[0].(*value.SString).Chars)), nil

	case "eq?":
		return identical(args[0], args[1]), nil
	case "eqv?":
		return identical(args[0], args[1]) || equalValue(args[0], args[1]) && value.IsNumber(args[0]), nil
	case "equal?":
		return equalValue(args[0], args[1]), nil
	case "null?":
		return value.IsNull(args[0]), nil
	case "pair?":
		return value.IsPair(args[0]), nil
	case "symbol?":
		return value.IsSymbol(args[0]), nil
	case "string?":
		return value.IsString(args[0]), nil
	case "vector?":
		return value.IsVector(args[0]), nil
	case "procedure?":
		return value.IsProcedure(args[0]), nil
	case "number?":
		return value.IsNumber(args[0]), nil
	case "boolean?":
		return value.IsBoolean(args[0]), nil
	case "char?":
		return value.IsChar(args[0]), nil
	case "not":
		return !value.IsTruthy(args[0]), nil
	case "eof-object?":
		return value.IsEOF(args[0]), nil

	case "display":
		if err := m.writePort(args, false); err != nil {
			return m.raise(ioError("display", err))
		}
		return value.Undef, nil
	case "write":
		if err := m.writePort(args, true); err != nil {
			return m.raise(ioError("write", err))
		}
		return value.Undef, nil
	case "newline":
		port := m.Out
		if len(args) == 1 {
			port = args[0].(*value.Port)
		}
		if _, err := port.WriteString("\n"); err != nil {
			return m.raise(ioError("newline", err))
		}
		return value.Undef, nil
	case "read":
		port := m.In
		if len(args) == 1 {
			port = args[0].(*value.Port)
		}
		return readDatum(port)
	case "read-char":
		port := m.In
		if len(args) == 1 {
			port = args[0].(*value.Port)
		}
		r, err := port.ReadRune()
		if err != nil {
			return value.EOF, nil
		}
		return value.Char(r), nil
	case "current-output-port":
		return m.Out, nil
	case "current-input-port":
		return m.In, nil
	case "current-error-port":
		return m.Err, nil

	case "apply":
		return m.applyApply(args)
	case "values":
		if len(args) == 1 {
			return args[0], nil
		}
		return value.List(args...), nil
	case "call-with-values":
		return m.callWithValues(args[0], args[1])
	case "dynamic-wind":
		return m.dynamicWind(args[0], args[1], args[2])
	case "error":
		return m.raise(userError(args))
	case "raise", "raise-continuable":
		if exc, ok := args[0].(*value.Exception); ok {
			return m.raise(exc)
		}
		return m.raise(&value.Exception{Kind: value.KindUserError, Message: value.Display(args[0])})
	case "with-exception-handler":
		return m.withExceptionHandler(args[0], args[1])

	default:
		if op.Foreign != nil {
			return op.Foreign(args)
		}
		return nil, fmt.Errorf("primitive %q has no implementation", op.Name)
	}
}

func checkArity(op *value.Opcode, n int) error {
	if n < op.MinArgs || (!op.Variadic && n != op.MinArgs) {
		return &value.Exception{Kind: value.KindArityError, Message: fmt.Sprintf(
			"%s: expected %s%d arguments, got %d", op.Name, variadicPrefix(op), op.MinArgs, n)}
	}
	return nil
}

func variadicPrefix(op *value.Opcode) string {
	if op.Variadic {
		return "at least "
	}
	return ""
}

// typeError raises a type-error Exception whose Irritants carry the
// offending operand(s) (spec §8 Scenario 7 wants `(car '())`'s irritant
// to be the `'()` itself; spec §4.7 wants arithmetic type errors to
// carry both operands). Callers pass every value involved in the check
// as irritants; got is always included first since it's what Message
// describes.
func (m *VM) typeError(proc, want string, got any, irritants ...any) (any, error) {
	return m.raise(&value.Exception{Kind: value.KindTypeError, Message: fmt.Sprintf(
		"%s: expected %s, got %s", proc, want, value.Write(got)), Irritants: append([]any{got}, irritants...)})
}

func (m *VM) boundsError(proc string, idx, size int, irritants ...any) (any, error) {
	if len(irritants) == 0 {
		irritants = []any{int64(idx), int64(size)}
	}
	return m.raise(&value.Exception{Kind: value.KindBoundsError, Message: fmt.Sprintf(
		"%s: index %d out of bounds for length %d", proc, idx, size), Irritants: irritants})
}

func (m *VM) vectorIndex(vArg, idxArg any, proc string) (*value.Vector, int, error) {
	v, ok := vArg.(*value.Vector)
	if !ok {
		_, err := m.typeError(proc, "vector", vArg)
		return nil, 0, err
	}
	idx := int(idxArg.(int64))
	if idx < 0 || idx >= len(v.Items) {
		_, err := m.boundsError(proc, idx, len(v.Items), v, int64(idx))
		return nil, 0, err
	}
	return v, idx, nil
}

func (m *VM) writePort(args []any, write bool) error {
	val := args[0]
	port := m.Out
	if len(args) == 2 {
		port = args[1].(*value.Port)
	}
	var s string
	if write {
		s = value.Write(val)
	} else {
		s = value.Display(val)
	}
	_, err := port.WriteString(s)
	return err
}

// readDatum accumulates runes from port, one at a time, until a complete
// datum parses — the same incremental strategy the REPL uses for
// multi-line input, needed here because a Port exposes only ReadRune.
func readDatum(port *value.Port) (any, error) {
	var src strings.Builder
	for {
		r, err := port.ReadRune()
		if err != nil {
			if src.Len() == 0 {
				return value.EOF, nil
			}
			break
		}
		src.WriteRune(r)
		if datum, err := reader.New(src.String()).Read(); err == nil && datum != nil {
			return datum, nil
		}
	}
	datum, err := reader.New(src.String()).Read()
	if err != nil || datum == nil {
		return value.EOF, nil
	}
	return datum, nil
}

// ioError wraps a port-operation failure (a full disk, a closed pipe, a
// broken network writer) as a catchable resource-error (spec §7's error
// kind table lists "I/O failure" under resource-error), instead of
// letting the underlying Go error abort the VM's step loop outright.
func ioError(proc string, err error) *value.Exception {
	return &value.Exception{Kind: value.KindResourceError, Message: fmt.Sprintf("%s: %v", proc, err), Irritants: []any{err.Error()}}
}

func userError(args []any) *value.Exception {
	msg := ""
	if len(args) > 0 {
		msg = value.Display(args[0])
	}
	return &value.Exception{Kind: value.KindUserError, Message: msg, Irritants: args[1:]}
}

func identical(a, b any) bool {
	switch x := a.(type) {
	case int64:
		y, ok := b.(int64)
		return ok && x == y
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case value.Char:
		y, ok := b.(value.Char)
		return ok && x == y
	case value.Null:
		_, ok := b.(value.Null)
		return ok
	default:
		return a == b
	}
}

func equalValue(a, b any) bool {
	switch x := a.(type) {
	case *value.Pair:
		y, ok := b.(*value.Pair)
		return ok && equalValue(x.Car, y.Car) && equalValue(x.Cdr, y.Cdr)
	case *value.SString:
		y, ok := b.(*value.SString)
		return ok && string(x.Chars) == string(y.Chars)
	case *value.Vector:
		y, ok := b.(*value.Vector)
		if !ok || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if !equalValue(x.Items[i], y.Items[i]) {
				return false
			}
		}
		return true
	default:
		return identical(a, b)
	}
}

func parseNumber(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return false
}
