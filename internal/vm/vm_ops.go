package vm

import "math"

// intWidth returns the byte width of an integer kind.
func intWidth(k ValueKind) int {
	switch k {
	case ValI8, ValU8:
		return 1
	case ValI16, ValU16:
		return 2
	case ValI32, ValU32:
		return 4
	default:
		return 8
	}
}

func signedKind(width int) ValueKind {
	switch width {
	case 1:
		return ValI8
	case 2:
		return ValI16
	case 4:
		return ValI32
	default:
		return ValI64
	}
}

func unsignedKind(width int) ValueKind {
	switch width {
	case 1:
		return ValU8
	case 2:
		return ValU16
	case 4:
		return ValU32
	default:
		return ValU64
	}
}

// asArith widens runes to u32 so they participate in arithmetic.
func asArith(v Value) Value {
	if v.Kind == ValRune {
		return Value{Kind: ValU32, num: v.num}
	}
	return v
}

// promoteIntKinds applies C-style promotion: the result takes the wider
// width; mixed signedness goes unsigned when the unsigned operand is at
// least as wide.
func promoteIntKinds(a, b ValueKind) ValueKind {
	wa, wb := intWidth(a), intWidth(b)
	w := wa
	if wb > w {
		w = wb
	}
	sa := a >= ValI8 && a <= ValI64
	sb := b >= ValI8 && b <= ValI64
	switch {
	case sa && sb:
		return signedKind(w)
	case !sa && !sb:
		return unsignedKind(w)
	case sa: // a signed, b unsigned
		if wb >= wa {
			return unsignedKind(w)
		}
		return signedKind(w)
	default: // a unsigned, b signed
		if wa >= wb {
			return unsignedKind(w)
		}
		return signedKind(w)
	}
}

// binaryOp implements the generic arithmetic, comparison and bitwise
// operators with numeric promotion. OP_DIV always yields f64.
func (vm *VM) binaryOp(op Opcode) error {
	b := vm.pop()
	a := vm.pop()

	// String operations
	if a.Kind == ValString && b.Kind == ValString {
		switch op {
		case OP_ADD:
			vm.push(StrVal(a.AsString().Str() + b.AsString().Str()))
			return nil
		case OP_LT, OP_LE, OP_GT, OP_GE:
			vm.push(BoolVal(compareStrings(op, a.AsString().Str(), b.AsString().Str())))
			return nil
		}
	}

	a, b = asArith(a), asArith(b)
	if !a.IsNumeric() || !b.IsNumeric() {
		return Throw("Cannot %s %s and %s", opVerb(op), a.TypeName(), b.TypeName())
	}

	if op == OP_DIV {
		if b.AsFloat() == 0 {
			return Throw("Division by zero")
		}
		vm.push(F64Val(a.AsFloat() / b.AsFloat()))
		return nil
	}

	if a.IsFloatKind() || b.IsFloatKind() {
		return vm.floatBinary(op, a, b)
	}
	return vm.intBinary(op, a, b)
}

func (vm *VM) floatBinary(op Opcode, a, b Value) error {
	x, y := a.AsFloat(), b.AsFloat()
	kind := ValF64
	if a.Kind != ValF64 && b.Kind != ValF64 {
		kind = ValF32
	}
	pushF := func(f float64) {
		if kind == ValF32 {
			vm.push(F32Val(float32(f)))
		} else {
			vm.push(F64Val(f))
		}
	}
	switch op {
	case OP_ADD:
		pushF(x + y)
	case OP_SUB:
		pushF(x - y)
	case OP_MUL:
		pushF(x * y)
	case OP_MOD:
		if y == 0 {
			return Throw("Modulo by zero")
		}
		pushF(math.Mod(x, y))
	case OP_LT:
		vm.push(BoolVal(x < y))
	case OP_LE:
		vm.push(BoolVal(x <= y))
	case OP_GT:
		vm.push(BoolVal(x > y))
	case OP_GE:
		vm.push(BoolVal(x >= y))
	default:
		return Throw("Cannot %s %s and %s", opVerb(op), a.TypeName(), b.TypeName())
	}
	return nil
}

func (vm *VM) intBinary(op Opcode, a, b Value) error {
	kind := promoteIntKinds(a.Kind, b.Kind)
	signed := kind >= ValI8 && kind <= ValI64

	if signed {
		x, y := a.AsInt(), b.AsInt()
		switch op {
		case OP_ADD:
			vm.push(IntVal(kind, x+y))
		case OP_SUB:
			vm.push(IntVal(kind, x-y))
		case OP_MUL:
			vm.push(IntVal(kind, x*y))
		case OP_MOD:
			if y == 0 {
				return Throw("Modulo by zero")
			}
			vm.push(IntVal(kind, x%y))
		case OP_LT:
			vm.push(BoolVal(x < y))
		case OP_LE:
			vm.push(BoolVal(x <= y))
		case OP_GT:
			vm.push(BoolVal(x > y))
		case OP_GE:
			vm.push(BoolVal(x >= y))
		case OP_BIT_AND:
			vm.push(IntVal(kind, x&y))
		case OP_BIT_OR:
			vm.push(IntVal(kind, x|y))
		case OP_BIT_XOR:
			vm.push(IntVal(kind, x^y))
		case OP_LSHIFT:
			vm.push(IntVal(a.Kind, x<<uint(y&63)))
		case OP_RSHIFT:
			vm.push(IntVal(a.Kind, x>>uint(y&63)))
		default:
			return Throw("Cannot %s %s and %s", opVerb(op), a.TypeName(), b.TypeName())
		}
		return nil
	}

	x, y := a.AsUint(), b.AsUint()
	switch op {
	case OP_ADD:
		vm.push(IntVal(kind, int64(x+y)))
	case OP_SUB:
		vm.push(IntVal(kind, int64(x-y)))
	case OP_MUL:
		vm.push(IntVal(kind, int64(x*y)))
	case OP_MOD:
		if y == 0 {
			return Throw("Modulo by zero")
		}
		vm.push(IntVal(kind, int64(x%y)))
	case OP_LT:
		vm.push(BoolVal(x < y))
	case OP_LE:
		vm.push(BoolVal(x <= y))
	case OP_GT:
		vm.push(BoolVal(x > y))
	case OP_GE:
		vm.push(BoolVal(x >= y))
	case OP_BIT_AND:
		vm.push(IntVal(kind, int64(x&y)))
	case OP_BIT_OR:
		vm.push(IntVal(kind, int64(x|y)))
	case OP_BIT_XOR:
		vm.push(IntVal(kind, int64(x^y)))
	case OP_LSHIFT:
		vm.push(IntVal(a.Kind, int64(x<<uint(y&63))))
	case OP_RSHIFT:
		vm.push(IntVal(a.Kind, int64(x>>uint(y&63))))
	default:
		return Throw("Cannot %s %s and %s", opVerb(op), a.TypeName(), b.TypeName())
	}
	return nil
}

func compareStrings(op Opcode, a, b string) bool {
	switch op {
	case OP_LT:
		return a < b
	case OP_LE:
		return a <= b
	case OP_GT:
		return a > b
	default:
		return a >= b
	}
}

func (vm *VM) negateOp() error {
	v := vm.pop()
	switch {
	case v.IsFloatKind():
		if v.Kind == ValF32 {
			vm.push(F32Val(-v.AsF32()))
		} else {
			vm.push(F64Val(-v.AsF64()))
		}
	case v.IsSigned():
		vm.push(IntVal(v.Kind, -v.AsInt()))
	case v.IsInt():
		// Negating an unsigned value yields the signed kind of the same
		// width.
		vm.push(IntVal(signedKind(intWidth(v.Kind)), -v.AsInt()))
	default:
		return Throw("Cannot negate %s", v.TypeName())
	}
	return nil
}

func (vm *VM) bitNotOp() error {
	v := vm.pop()
	if !v.IsInt() {
		return Throw("Cannot apply ~ to %s", v.TypeName())
	}
	vm.push(IntVal(v.Kind, ^v.AsInt()))
	return nil
}

// fastI32Op runs the i32 fast paths, deferring to the generic operators
// when either operand is not an i32.
func (vm *VM) fastI32Op(op Opcode) error {
	b := vm.peek(0)
	a := vm.peek(1)
	if a.Kind == ValI32 && b.Kind == ValI32 {
		vm.sp -= 2
		x := int32(a.AsInt())
		y := int32(b.AsInt())
		switch op {
		case OP_ADD_I32:
			vm.push(I32Val(x + y))
		case OP_SUB_I32:
			vm.push(I32Val(x - y))
		case OP_MUL_I32:
			vm.push(I32Val(x * y))
		case OP_EQ_I32:
			vm.push(BoolVal(x == y))
		case OP_LT_I32:
			vm.push(BoolVal(x < y))
		}
		return nil
	}

	switch op {
	case OP_ADD_I32:
		return vm.binaryOp(OP_ADD)
	case OP_SUB_I32:
		return vm.binaryOp(OP_SUB)
	case OP_MUL_I32:
		return vm.binaryOp(OP_MUL)
	case OP_EQ_I32:
		y := vm.pop()
		x := vm.pop()
		vm.push(BoolVal(x.Equals(y)))
		return nil
	default:
		return vm.binaryOp(OP_LT)
	}
}

func opVerb(op Opcode) string {
	switch op {
	case OP_ADD, OP_ADD_I32:
		return "add"
	case OP_SUB, OP_SUB_I32:
		return "subtract"
	case OP_MUL, OP_MUL_I32:
		return "multiply"
	case OP_DIV:
		return "divide"
	case OP_MOD:
		return "take modulo of"
	case OP_LT, OP_LE, OP_GT, OP_GE, OP_LT_I32:
		return "compare"
	case OP_BIT_AND, OP_BIT_OR, OP_BIT_XOR:
		return "bitwise-combine"
	case OP_LSHIFT, OP_RSHIFT:
		return "shift"
	default:
		return "operate on"
	}
}

// castValue implements OP_CAST. Numeric casts truncate to the target
// width; casting to a custom object type checks the value is an object.
func castValue(v Value, tid TypeID) (Value, error) {
	// An uninitialised declaration carries null; annotated numerics start
	// at the type's zero.
	if v.IsNull() {
		switch tid {
		case TypeIDF32:
			return F32Val(0), nil
		case TypeIDF64:
			return F64Val(0), nil
		case TypeIDBool:
			return FalseVal(), nil
		case TypeIDRune:
			return RuneVal(0), nil
		case TypeIDString, TypeIDObject, TypeIDNull:
			return v, nil
		default:
			if kind, ok := intKindForTypeID(tid); ok {
				return IntVal(kind, 0), nil
			}
		}
	}

	if kind, ok := intKindForTypeID(tid); ok {
		switch {
		case v.IsNumeric(), v.Kind == ValRune, v.Kind == ValBool:
			if v.IsFloatKind() {
				return IntVal(kind, int64(v.AsFloat())), nil
			}
			return IntVal(kind, v.AsInt()), nil
		}
		return NullVal(), Throw("Cannot cast %s to %s", v.TypeName(), tid)
	}

	switch tid {
	case TypeIDF32:
		if v.IsNumeric() || v.Kind == ValRune {
			return F32Val(float32(v.AsFloat())), nil
		}
	case TypeIDF64:
		if v.IsNumeric() || v.Kind == ValRune {
			return F64Val(v.AsFloat()), nil
		}
	case TypeIDBool:
		return BoolVal(v.IsTruthy()), nil
	case TypeIDRune:
		if v.IsInt() || v.Kind == ValRune {
			return RuneVal(rune(v.AsInt())), nil
		}
	case TypeIDString:
		return StrVal(v.Format()), nil
	case TypeIDObject:
		if v.Kind == ValObject || v.IsNull() {
			return v, nil
		}
	case TypeIDNull:
		return v, nil
	}
	return NullVal(), Throw("Cannot cast %s to %s", v.TypeName(), tid)
}
