package compiler

import "ilex/value"

// Primitives lists every opcode-backed procedure bound into a fresh
// global environment (spec.md §4.5 "Primitive procedures", §6 "Opcode
// metadata"). Classification follows spec §4.5's opcode classes. The VM
// (vm.applyPrimitive) dispatches on Name and does not read Class or
// Inverse: `(- a b c)` folds left by subtraction, while bare `(- a)`
// negates, the same operation the Inverse entry `negate` performs.
//
// Grounded on the teacher's own primitive tables being data, not code:
// informatter-nilan's compiler/code.go builds its opcode set the same
// way, as a map literal consulted by both the compiler and the
// disassembler.
var Primitives = buildPrimitives()

func buildPrimitives() []*value.Opcode {
	add := &value.Opcode{Name: "+", Class: value.ClassArithmetic, MinArgs: 0, Variadic: true}
	sub := &value.Opcode{Name: "-", Class: value.ClassArithmetic, MinArgs: 1, Variadic: true}
	mul := &value.Opcode{Name: "*", Class: value.ClassArithmetic, MinArgs: 0, Variadic: true}
	div := &value.Opcode{Name: "/", Class: value.ClassArithmetic, MinArgs: 1, Variadic: true}

	neg := &value.Opcode{Name: "negate", Class: value.ClassArithmeticInverse, MinArgs: 1}
	recip := &value.Opcode{Name: "reciprocal", Class: value.ClassArithmeticInverse, MinArgs: 1}
	sub.Inverse, div.Inverse = neg, recip

	ops := []*value.Opcode{
		add, sub, mul, div,

		{Name: "=", Class: value.ClassArithmeticCompare, MinArgs: 2, Variadic: true},
		{Name: "<", Class: value.ClassArithmeticCompare, MinArgs: 2, Variadic: true},
		{Name: ">", Class: value.ClassArithmeticCompare, MinArgs: 2, Variadic: true},
		{Name: "<=", Class: value.ClassArithmeticCompare, MinArgs: 2, Variadic: true},
		{Name: ">=", Class: value.ClassArithmeticCompare, MinArgs: 2, Variadic: true},

		{Name: "cons", Class: value.ClassConstructor, MinArgs: 2},
		{Name: "car", Class: value.ClassAccessor, MinArgs: 1},
		{Name: "cdr", Class: value.ClassAccessor, MinArgs: 1},
		{Name: "set-car!", Class: value.ClassAccessor, MinArgs: 2},
		{Name: "set-cdr!", Class: value.ClassAccessor, MinArgs: 2},

		{Name: "vector", Class: value.ClassConstructor, MinArgs: 0, Variadic: true},
		{Name: "make-vector", Class: value.ClassConstructor, MinArgs: 1, Variadic: true, DefaultVal: value.Undef, HasDefault: true},
		{Name: "vector-ref", Class: value.ClassAccessor, MinArgs: 2},
		{Name: "vector-set!", Class: value.ClassAccessor, MinArgs: 3},
		{Name: "vector-length", Class: value.ClassAccessor, MinArgs: 1},
		{Name: "vector-fill!", Class: value.ClassAccessor, MinArgs: 2},

		{Name: "string-length", Class: value.ClassAccessor, MinArgs: 1},
		{Name: "string-ref", Class: value.ClassAccessor, MinArgs: 2},
		{Name: "string-set!", Class: value.ClassAccessor, MinArgs: 3},
		{Name: "string-append", Class: value.ClassConstructor, MinArgs: 0, Variadic: true},
		{Name: "substring", Class: value.ClassAccessor, MinArgs: 3},
		{Name: "string->symbol", Class: value.ClassConstructor, MinArgs: 1},
		{Name: "symbol->string", Class: value.ClassConstructor, MinArgs: 1},
		{Name: "number->string", Class: value.ClassConstructor, MinArgs: 1},
		{Name: "string->number", Class: value.ClassConstructor, MinArgs: 1},

		{Name: "eq?", Class: value.ClassTypePredicate, MinArgs: 2},
		{Name: "eqv?", Class: value.ClassTypePredicate, MinArgs: 2},
		{Name: "equal?", Class: value.ClassTypePredicate, MinArgs: 2},
		{Name: "null?", Class: value.ClassTypePredicate, MinArgs: 1},
		{Name: "pair?", Class: value.ClassTypePredicate, MinArgs: 1},
		{Name: "symbol?", Class: value.ClassTypePredicate, MinArgs: 1},
		{Name: "string?", Class: value.ClassTypePredicate, MinArgs: 1},
		{Name: "vector?", Class: value.ClassTypePredicate, MinArgs: 1},
		{Name: "procedure?", Class: value.ClassTypePredicate, MinArgs: 1},
		{Name: "number?", Class: value.ClassTypePredicate, MinArgs: 1},
		{Name: "boolean?", Class: value.ClassTypePredicate, MinArgs: 1},
		{Name: "char?", Class: value.ClassTypePredicate, MinArgs: 1},
		{Name: "not", Class: value.ClassTypePredicate, MinArgs: 1},

		{Name: "display", Class: value.ClassIO, MinArgs: 1, Variadic: true},
		{Name: "write", Class: value.ClassIO, MinArgs: 1, Variadic: true},
		{Name: "newline", Class: value.ClassIO, MinArgs: 0, Variadic: true},
		{Name: "read", Class: value.ClassIO, MinArgs: 0, Variadic: true},
		{Name: "read-char", Class: value.ClassIO, MinArgs: 0, Variadic: true},
		{Name: "eof-object?", Class: value.ClassTypePredicate, MinArgs: 1},
		{Name: "current-output-port", Class: value.ClassParameter, MinArgs: 0},
		{Name: "current-input-port", Class: value.ClassParameter, MinArgs: 0},
		{Name: "current-error-port", Class: value.ClassParameter, MinArgs: 0},

		{Name: "apply", Class: value.ClassGeneric, MinArgs: 2, Variadic: true},
		{Name: "call/cc", Class: value.ClassGeneric, MinArgs: 1},
		{Name: "call-with-current-continuation", Class: value.ClassGeneric, MinArgs: 1},
		{Name: "values", Class: value.ClassGeneric, MinArgs: 0, Variadic: true},
		{Name: "call-with-values", Class: value.ClassGeneric, MinArgs: 2},
		{Name: "dynamic-wind", Class: value.ClassGeneric, MinArgs: 3},
		{Name: "error", Class: value.ClassGeneric, MinArgs: 1, Variadic: true},
		{Name: "with-exception-handler", Class: value.ClassGeneric, MinArgs: 2},
		{Name: "raise", Class: value.ClassGeneric, MinArgs: 1},
		{Name: "raise-continuable", Class: value.ClassGeneric, MinArgs: 1},

		neg, recip,
	}
	return ops
}

// FloatOf coerces any Scheme number to float64, used by the VM's
// arithmetic dispatch when either operand is already a float (spec §4.5
// "numeric tower: exact/inexact contagion").
func FloatOf(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// IntOf reports whether v is representable as an exact integer.
func IntOf(v any) (int64, bool) {
	i, ok := v.(int64)
	return i, ok
}

// IsExactZero reports whether v is the exact integer 0, used to reject
// `(/ n 0)` with a value-error rather than producing +Inf.
func IsExactZero(v any) bool {
	i, ok := v.(int64)
	return ok && i == 0
}
