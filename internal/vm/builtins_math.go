package vm

import (
	"math"
	"math/rand"
)

func init() {
	registerBuiltins([]Builtin{
		{Name: "sin", Arity: 1, Fn: mathUnary(math.Sin)},
		{Name: "cos", Arity: 1, Fn: mathUnary(math.Cos)},
		{Name: "tan", Arity: 1, Fn: mathUnary(math.Tan)},
		{Name: "asin", Arity: 1, Fn: mathUnary(math.Asin)},
		{Name: "acos", Arity: 1, Fn: mathUnary(math.Acos)},
		{Name: "atan", Arity: 1, Fn: mathUnary(math.Atan)},
		{Name: "atan2", Arity: 2, Fn: mathBinary(math.Atan2)},
		{Name: "sqrt", Arity: 1, Fn: mathUnary(math.Sqrt)},
		{Name: "pow", Arity: 2, Fn: mathBinary(math.Pow)},
		{Name: "exp", Arity: 1, Fn: mathUnary(math.Exp)},
		{Name: "log", Arity: 1, Fn: mathUnary(math.Log)},
		{Name: "log10", Arity: 1, Fn: mathUnary(math.Log10)},
		{Name: "log2", Arity: 1, Fn: mathUnary(math.Log2)},
		{Name: "floor", Arity: 1, Fn: mathUnary(math.Floor)},
		{Name: "ceil", Arity: 1, Fn: mathUnary(math.Ceil)},
		{Name: "round", Arity: 1, Fn: mathUnary(math.Round)},
		{Name: "trunc", Arity: 1, Fn: mathUnary(math.Trunc)},
		{Name: "abs", Arity: 1, Fn: builtinAbs},
		{Name: "min", Arity: -1, Fn: builtinMin},
		{Name: "max", Arity: -1, Fn: builtinMax},
		{Name: "clamp", Arity: 3, Fn: builtinClamp},
		{Name: "rand", Arity: 0, Fn: builtinRand},
		{Name: "rand_range", Arity: 2, Fn: builtinRandRange},
		{Name: "seed", Arity: 1, Fn: builtinSeed},
		{Name: "floori", Arity: 1, Fn: mathToInt(math.Floor)},
		{Name: "ceili", Arity: 1, Fn: mathToInt(math.Ceil)},
		{Name: "roundi", Arity: 1, Fn: mathToInt(math.Round)},
		{Name: "trunci", Arity: 1, Fn: mathToInt(math.Trunc)},
		{Name: "div", Arity: 2, Fn: builtinFDiv},
		{Name: "divi", Arity: 2, Fn: builtinDivi},
		{Name: "modi", Arity: 2, Fn: builtinModi},
	})
}

func wantNumber(name string, v Value) (float64, error) {
	if !v.IsNumeric() && v.Kind != ValRune {
		return 0, Throw("%s expects a number, got %s", name, v.TypeName())
	}
	return v.AsFloat(), nil
}

func mathUnary(fn func(float64) float64) BuiltinFn {
	return func(vm *VM, args []Value) (Value, error) {
		x, err := wantNumber("math builtin", args[0])
		if err != nil {
			return NullVal(), err
		}
		return F64Val(fn(x)), nil
	}
}

func mathBinary(fn func(float64, float64) float64) BuiltinFn {
	return func(vm *VM, args []Value) (Value, error) {
		x, err := wantNumber("math builtin", args[0])
		if err != nil {
			return NullVal(), err
		}
		y, err := wantNumber("math builtin", args[1])
		if err != nil {
			return NullVal(), err
		}
		return F64Val(fn(x, y)), nil
	}
}

func mathToInt(fn func(float64) float64) BuiltinFn {
	return func(vm *VM, args []Value) (Value, error) {
		x, err := wantNumber("math builtin", args[0])
		if err != nil {
			return NullVal(), err
		}
		return I64Val(int64(fn(x))), nil
	}
}

func builtinAbs(vm *VM, args []Value) (Value, error) {
	v := args[0]
	switch {
	case v.IsFloatKind():
		return F64Val(math.Abs(v.AsFloat())), nil
	case v.IsInt():
		n := v.AsInt()
		if n < 0 {
			n = -n
		}
		return IntVal(v.Kind, n), nil
	default:
		return NullVal(), Throw("abs expects a number, got %s", v.TypeName())
	}
}

func builtinMin(vm *VM, args []Value) (Value, error) {
	return minMax(args, "min", func(a, b float64) bool { return a < b })
}

func builtinMax(vm *VM, args []Value) (Value, error) {
	return minMax(args, "max", func(a, b float64) bool { return a > b })
}

func minMax(args []Value, name string, better func(a, b float64) bool) (Value, error) {
	if len(args) < 2 {
		return NullVal(), Throw("%s expects at least 2 arguments", name)
	}
	best := args[0]
	bestF, err := wantNumber(name, best)
	if err != nil {
		return NullVal(), err
	}
	for _, v := range args[1:] {
		f, err := wantNumber(name, v)
		if err != nil {
			return NullVal(), err
		}
		if better(f, bestF) {
			best, bestF = v, f
		}
	}
	return best, nil
}

func builtinClamp(vm *VM, args []Value) (Value, error) {
	x, err := wantNumber("clamp", args[0])
	if err != nil {
		return NullVal(), err
	}
	lo, err := wantNumber("clamp", args[1])
	if err != nil {
		return NullVal(), err
	}
	hi, err := wantNumber("clamp", args[2])
	if err != nil {
		return NullVal(), err
	}
	return F64Val(math.Min(math.Max(x, lo), hi)), nil
}

func builtinRand(vm *VM, args []Value) (Value, error) {
	return F64Val(vm.rng.Float64()), nil
}

func builtinRandRange(vm *VM, args []Value) (Value, error) {
	lo := args[0].AsInt()
	hi := args[1].AsInt()
	if hi <= lo {
		return NullVal(), Throw("rand_range expects min < max")
	}
	return I64Val(lo + vm.rng.Int63n(hi-lo)), nil
}

func builtinSeed(vm *VM, args []Value) (Value, error) {
	vm.rng = rand.New(rand.NewSource(args[0].AsInt()))
	return NullVal(), nil
}

// div is float division like the / operator; divi is the only integer
// division entry point. modi takes an integer modulo, as % does on
// integer operands.
func builtinFDiv(vm *VM, args []Value) (Value, error) {
	x, err := wantNumber("div", args[0])
	if err != nil {
		return NullVal(), err
	}
	y, err := wantNumber("div", args[1])
	if err != nil {
		return NullVal(), err
	}
	if y == 0 {
		return NullVal(), Throw("Division by zero")
	}
	return F64Val(x / y), nil
}

func builtinDivi(vm *VM, args []Value) (Value, error) {
	if !args[0].IsNumeric() || !args[1].IsNumeric() {
		return NullVal(), Throw("divi expects numbers")
	}
	d := args[1].AsInt()
	if d == 0 {
		return NullVal(), Throw("Division by zero")
	}
	return I64Val(args[0].AsInt() / d), nil
}

func builtinModi(vm *VM, args []Value) (Value, error) {
	if !args[0].IsNumeric() || !args[1].IsNumeric() {
		return NullVal(), Throw("modi expects numbers")
	}
	d := args[1].AsInt()
	if d == 0 {
		return NullVal(), Throw("Modulo by zero")
	}
	return I64Val(args[0].AsInt() % d), nil
}
