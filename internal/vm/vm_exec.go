package vm

import (
	"errors"
	"fmt"
	"strings"
)

// readByte reads one operand byte and advances the instruction pointer.
func (vm *VM) readByte(f *CallFrame) byte {
	b := f.chunk.Code[f.ip]
	f.ip++
	return b
}

// readShort reads a big-endian u16 operand.
func (vm *VM) readShort(f *CallFrame) int {
	v := int(f.chunk.Code[f.ip])<<8 | int(f.chunk.Code[f.ip+1])
	f.ip += 2
	return v
}

// readConstant reads a u16 pool index and returns the constant.
func (vm *VM) readConstant(f *CallFrame) Value {
	return f.chunk.Constants[vm.readShort(f)]
}

// readName reads a u16 pool index holding an identifier string.
func (vm *VM) readName(f *CallFrame) string {
	return vm.readConstant(f).AsString().Str()
}

// raise routes err: catchable errors unwind to the topmost unconsumed
// handler owned by a frame above base; everything else propagates out of
// this execute call.
func (vm *VM) raise(base int, err error) (bool, error) {
	var re *RuntimeError
	if !errors.As(err, &re) {
		return false, err
	}

	// Handlers form a stack parallel to (never deeper than) the frame
	// stack; anything above the live frame count is unreachable.
	idx := -1
	for i := len(vm.handlers) - 1; i >= 0; i-- {
		if vm.handlers[i].frameIndex > vm.frameCount {
			continue
		}
		if !vm.handlers[i].caught {
			idx = i
			break
		}
	}
	if idx < 0 || vm.handlers[idx].frameIndex-1 < base {
		return false, err
	}

	h := &vm.handlers[idx]
	h.caught = true
	vm.handlers = vm.handlers[:idx+1]

	// Close upvalues over the region being discarded, then restore the
	// self stack for every unwound method frame.
	vm.closeUpvalues(h.stackTop)
	for i := vm.frameCount - 1; i >= h.frameIndex; i-- {
		if vm.frames[i].popSelf {
			vm.selfStack = vm.selfStack[:len(vm.selfStack)-1]
		}
	}
	// Deferred closures of unwound frames go with their frames.
	for len(vm.defers) > 0 && vm.defers[len(vm.defers)-1].frameIndex >= h.frameIndex {
		vm.defers = vm.defers[:len(vm.defers)-1]
	}

	vm.frameCount = h.frameIndex
	vm.sp = h.stackTop
	vm.push(re.Value)
	vm.frames[vm.frameCount-1].ip = h.catchIP
	return true, nil
}

// execute runs the dispatch loop until the frame count drops back to
// base via OP_RETURN. It is re-entered for deferred closures, intrinsic
// callbacks and task entry.
func (vm *VM) execute(base int) (Value, error) {
	for {
		if vm.pendingErr != nil {
			err := vm.pendingErr
			vm.pendingErr = nil
			handled, out := vm.raise(base, err)
			if !handled {
				return NullVal(), out
			}
		}

		frame := &vm.frames[vm.frameCount-1]
		if frame.ip >= len(frame.chunk.Code) {
			return NullVal(), &FatalError{Msg: "instruction pointer ran off the end of the chunk"}
		}

		if vm.trace {
			var sb strings.Builder
			disassembleInstruction(&sb, frame.chunk, frame.ip)
			fmt.Fprintf(vm.errOut, "%-40s sp=%d fp=%d\n",
				strings.TrimRight(sb.String(), "\n"), vm.sp, vm.frameCount)
		}

		op := Opcode(vm.readByte(frame))
		var err error

		switch op {
		case OP_CONST:
			vm.push(vm.readConstant(frame))
		case OP_CONST_BYTE:
			vm.push(I32Val(int32(vm.readByte(frame))))
		case OP_NULL:
			vm.push(NullVal())
		case OP_TRUE:
			vm.push(TrueVal())
		case OP_FALSE:
			vm.push(FalseVal())

		case OP_ARRAY:
			n := vm.readShort(frame)
			items := make([]Value, n)
			copy(items, vm.stack[vm.sp-n:vm.sp])
			vm.sp -= n
			vm.push(ArrayVal(NewArray(items)))

		case OP_OBJECT:
			n := vm.readShort(frame)
			obj := NewObject(make([]Field, 0, n))
			baseIdx := vm.sp - 2*n
			for i := 0; i < n; i++ {
				key := vm.stack[baseIdx+2*i]
				val := vm.stack[baseIdx+2*i+1]
				if key.Kind != ValString {
					err = Throw("Object key must be a string, got %s", key.TypeName())
					break
				}
				obj.Set(key.AsString().Str(), val)
			}
			if err == nil {
				vm.sp -= 2 * n
				vm.push(ObjectVal(obj))
			}

		case OP_CLOSURE:
			proto := vm.readConstant(frame).asProto()
			upc := int(vm.readByte(frame))
			closure := &Closure{Chunk: proto, Upvalues: make([]*Upvalue, 0, upc)}
			for i := 0; i < upc; i++ {
				isLocal := vm.readByte(frame) == 1
				index := int(vm.readByte(frame))
				if isLocal {
					closure.Upvalues = append(closure.Upvalues, vm.captureUpvalue(frame.base+index))
				} else {
					closure.Upvalues = append(closure.Upvalues, frame.closure.Upvalues[index])
				}
			}
			vm.push(ClosureVal(closure))

		case OP_STRING_INTERP:
			n := vm.readShort(frame)
			var sb strings.Builder
			for i := vm.sp - n; i < vm.sp; i++ {
				sb.WriteString(vm.stack[i].Format())
			}
			vm.sp -= n
			vm.push(StrVal(sb.String()))

		case OP_GET_LOCAL:
			slot := int(vm.readByte(frame))
			vm.push(vm.stack[frame.base+slot])
		case OP_SET_LOCAL:
			slot := int(vm.readByte(frame))
			vm.stack[frame.base+slot] = vm.peek(0)
		case OP_GET_UPVALUE:
			idx := int(vm.readByte(frame))
			vm.push(frame.closure.Upvalues[idx].Get())
		case OP_SET_UPVALUE:
			idx := int(vm.readByte(frame))
			frame.closure.Upvalues[idx].Set(vm.peek(0))

		case OP_GET_GLOBAL:
			name := vm.readName(frame)
			if v, ok := vm.globals.Get(name); ok {
				vm.push(v)
			} else {
				err = errUndefinedVariable(name)
			}
		case OP_SET_GLOBAL:
			name := vm.readName(frame)
			err = vm.globals.Set(name, vm.peek(0))
		case OP_DEFINE_GLOBAL:
			name := vm.readName(frame)
			isConst := vm.readByte(frame) == 1
			err = vm.globals.Define(name, vm.pop(), isConst)

		case OP_GET_PROPERTY:
			name := vm.readName(frame)
			obj := vm.pop()
			var v Value
			v, err = vm.getProperty(obj, name)
			if err == nil {
				vm.push(v)
			}
		case OP_SET_PROPERTY:
			name := vm.readName(frame)
			val := vm.pop()
			obj := vm.pop()
			if obj.Kind != ValObject {
				err = Throw("Cannot set property '%s' on %s", name, obj.TypeName())
				break
			}
			if err = checkLive(obj); err != nil {
				break
			}
			obj.AsObject().Set(name, val)
			vm.push(val)

		case OP_GET_INDEX:
			idx := vm.pop()
			obj := vm.pop()
			var v Value
			v, err = vm.getIndex(obj, idx)
			if err == nil {
				vm.push(v)
			}
		case OP_SET_INDEX:
			val := vm.pop()
			idx := vm.pop()
			obj := vm.pop()
			err = vm.setIndex(obj, idx, val)
			if err == nil {
				vm.push(val)
			}

		case OP_GET_SELF:
			vm.push(vm.currentSelf())
		case OP_SET_SELF:
			v := vm.pop()
			if n := len(vm.selfStack); n > 0 {
				vm.selfStack[n-1] = v
			}

		case OP_GET_KEY:
			idx := vm.pop()
			obj := vm.pop()
			switch obj.Kind {
			case ValArray:
				vm.push(I32Val(int32(idx.AsInt())))
			case ValObject:
				if f, ok := obj.AsObject().At(int(idx.AsInt())); ok {
					vm.push(StrVal(f.Name))
				} else {
					vm.push(NullVal())
				}
			case ValString:
				vm.push(I32Val(int32(idx.AsInt())))
			default:
				err = Throw("for-in requires an iterable, got %s", obj.TypeName())
			}

		case OP_SET_OBJ_TYPE:
			name := vm.readName(frame)
			if top := vm.peek(0); top.Kind == ValObject {
				top.AsObject().SetTypeName(name)
			}

		case OP_ADD, OP_SUB, OP_MUL, OP_DIV, OP_MOD,
			OP_LT, OP_LE, OP_GT, OP_GE,
			OP_BIT_AND, OP_BIT_OR, OP_BIT_XOR, OP_LSHIFT, OP_RSHIFT:
			err = vm.binaryOp(op)

		case OP_EQ:
			b := vm.pop()
			a := vm.pop()
			vm.push(BoolVal(a.Equals(b)))
		case OP_NE:
			b := vm.pop()
			a := vm.pop()
			vm.push(BoolVal(!a.Equals(b)))

		case OP_NOT:
			vm.push(BoolVal(!vm.pop().IsTruthy()))

		case OP_NEGATE:
			err = vm.negateOp()
		case OP_BIT_NOT:
			err = vm.bitNotOp()

		case OP_ADD_I32, OP_SUB_I32, OP_MUL_I32, OP_EQ_I32, OP_LT_I32:
			err = vm.fastI32Op(op)

		case OP_POP:
			vm.pop()
		case OP_POPN:
			n := int(vm.readByte(frame))
			vm.sp -= n
		case OP_DUP:
			vm.push(vm.peek(0))
		case OP_DUP2:
			a := vm.peek(1)
			b := vm.peek(0)
			vm.push(a)
			vm.push(b)
		case OP_SWAP:
			vm.stack[vm.sp-1], vm.stack[vm.sp-2] = vm.stack[vm.sp-2], vm.stack[vm.sp-1]
		case OP_BURY3:
			c := vm.stack[vm.sp-1]
			vm.stack[vm.sp-1] = vm.stack[vm.sp-2]
			vm.stack[vm.sp-2] = vm.stack[vm.sp-3]
			vm.stack[vm.sp-3] = c
		case OP_ROT3:
			a := vm.stack[vm.sp-3]
			vm.stack[vm.sp-3] = vm.stack[vm.sp-2]
			vm.stack[vm.sp-2] = vm.stack[vm.sp-1]
			vm.stack[vm.sp-1] = a

		case OP_JUMP:
			off := vm.readShort(frame)
			frame.ip += off
		case OP_JUMP_IF_FALSE:
			off := vm.readShort(frame)
			if !vm.peek(0).IsTruthy() {
				frame.ip += off
			}
		case OP_JUMP_IF_TRUE:
			off := vm.readShort(frame)
			if vm.peek(0).IsTruthy() {
				frame.ip += off
			}
		case OP_LOOP:
			off := vm.readShort(frame)
			frame.ip -= off
		case OP_COALESCE:
			off := vm.readShort(frame)
			if !vm.peek(0).IsNull() {
				frame.ip += off
			}
		case OP_OPTIONAL_CHAIN:
			off := vm.readShort(frame)
			if vm.peek(0).IsNull() {
				frame.ip += off
			}

		case OP_CALL:
			argc := int(vm.readByte(frame))
			err = vm.callValue(vm.peek(argc), argc)
		case OP_CALL_BUILTIN:
			id := vm.readShort(frame)
			argc := int(vm.readByte(frame))
			err = vm.callBuiltin(id, argc, false)
		case OP_CALL_METHOD:
			name := vm.readName(frame)
			argc := int(vm.readByte(frame))
			err = vm.callMethod(name, argc)
		case OP_PRINT:
			argc := int(vm.readByte(frame))
			parts := make([]string, argc)
			for i := 0; i < argc; i++ {
				parts[i] = vm.stack[vm.sp-argc+i].Format()
			}
			vm.sp -= argc
			fmt.Fprintln(vm.out, strings.Join(parts, " "))
			vm.push(NullVal())

		case OP_RETURN:
			result := vm.pop()
			fi := vm.frameCount - 1
			frameBase := frame.base
			framePopSelf := frame.popSelf

			// Deferred closures for the exiting frame run LIFO; their
			// results are discarded, their errors propagate. Running them
			// re-enters execute, which can grow vm.frames, so the frame
			// pointer is not reused below.
			for err == nil && len(vm.defers) > 0 && vm.defers[len(vm.defers)-1].frameIndex == fi {
				d := vm.defers[len(vm.defers)-1]
				vm.defers = vm.defers[:len(vm.defers)-1]
				_, derr := vm.CallClosure(d.closure, nil)
				err = derr
			}
			if err != nil {
				break
			}

			// Handlers registered by the exiting frame die with it (a
			// return can fire before OP_END_TRY); otherwise a later throw
			// would unwind into the popped frame. Mirrors the defer drop
			// in raise.
			for len(vm.handlers) > 0 && vm.handlers[len(vm.handlers)-1].frameIndex > fi {
				vm.handlers = vm.handlers[:len(vm.handlers)-1]
			}

			vm.closeUpvalues(frameBase)
			if framePopSelf {
				vm.selfStack = vm.selfStack[:len(vm.selfStack)-1]
			}
			vm.frameCount--
			vm.sp = frameBase
			if vm.frameCount == base {
				return result, nil
			}
			vm.push(result)

		case OP_TRY:
			catchOff := vm.readShort(frame)
			catchIP := frame.ip + catchOff
			finallyOff := vm.readShort(frame)
			finallyIP := frame.ip + finallyOff
			vm.handlers = append(vm.handlers, handler{
				catchIP:    catchIP,
				finallyIP:  finallyIP,
				frameIndex: vm.frameCount,
				stackTop:   vm.sp,
			})

		case OP_THROW:
			err = ThrowValue(vm.pop())

		case OP_CATCH, OP_FINALLY, OP_NOP:
			// markers

		case OP_END_TRY:
			if n := len(vm.handlers); n > 0 {
				vm.handlers = vm.handlers[:n-1]
			}

		case OP_DEFER:
			fn := vm.pop()
			if fn.Kind != ValFunction {
				err = &FatalError{Msg: "defer expects a closure"}
				break
			}
			vm.defers = append(vm.defers, deferEntry{
				frameIndex: vm.frameCount - 1,
				closure:    fn.AsClosure(),
			})

		case OP_AWAIT:
			v := vm.pop()
			if v.Kind != ValTask {
				err = Throw("Cannot await %s", v.TypeName())
				break
			}
			var result Value
			result, err = vm.joinTask(v.AsTask())
			if err == nil {
				vm.push(result)
			}

		case OP_CAST:
			tid := TypeID(vm.readByte(frame))
			v := vm.pop()
			var casted Value
			casted, err = castValue(v, tid)
			if err == nil {
				vm.push(casted)
			}

		case OP_TYPEOF:
			vm.push(StrVal(vm.pop().TypeName()))

		case OP_CLOSE_UPVALUE:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		case OP_HALT:
			vm.frameCount = base
			if vm.sp > 0 {
				return vm.pop(), nil
			}
			return NullVal(), nil

		default:
			err = &FatalError{Msg: fmt.Sprintf("unknown opcode %d", op)}
		}

		if err != nil {
			handled, out := vm.raise(base, err)
			if !handled {
				return NullVal(), out
			}
		}
	}
}

// getProperty implements OP_GET_PROPERTY across receiver kinds. Missing
// object fields read as null; length is intrinsic on the sequence kinds.
func (vm *VM) getProperty(obj Value, name string) (Value, error) {
	switch obj.Kind {
	case ValObject:
		if err := checkLive(obj); err != nil {
			return NullVal(), err
		}
		o := obj.AsObject()
		if v, ok := o.Get(name); ok {
			return v, nil
		}
		if name == "length" {
			return I32Val(int32(o.Len())), nil
		}
		return NullVal(), nil
	case ValArray:
		if err := checkLive(obj); err != nil {
			return NullVal(), err
		}
		if name == "length" {
			return I32Val(int32(obj.AsArray().Len())), nil
		}
		return NullVal(), Throw("Array has no property '%s'", name)
	case ValString:
		if name == "length" {
			return I32Val(int32(obj.AsString().RuneCount())), nil
		}
		return NullVal(), Throw("String has no property '%s'", name)
	case ValBuffer:
		if err := checkLive(obj); err != nil {
			return NullVal(), err
		}
		if name == "length" {
			return I32Val(int32(len(obj.AsBuffer().Data()))), nil
		}
		return NullVal(), Throw("Buffer has no property '%s'", name)
	case ValTask:
		if name == "id" {
			return I64Val(int64(obj.AsTask().ID)), nil
		}
		return NullVal(), Throw("Task has no property '%s'", name)
	default:
		return NullVal(), Throw("Cannot get property '%s' on %s", name, obj.TypeName())
	}
}

// getIndex implements OP_GET_INDEX. String indexing yields the i-th
// codepoint as a rune; array reads out of range yield null.
func (vm *VM) getIndex(obj, idx Value) (Value, error) {
	switch obj.Kind {
	case ValArray:
		if err := checkLive(obj); err != nil {
			return NullVal(), err
		}
		if !idx.IsInt() {
			return NullVal(), Throw("Array index must be an integer, got %s", idx.TypeName())
		}
		return obj.AsArray().Get(int(idx.AsInt())), nil
	case ValObject:
		if err := checkLive(obj); err != nil {
			return NullVal(), err
		}
		o := obj.AsObject()
		if idx.Kind == ValString {
			if v, ok := o.Get(idx.AsString().Str()); ok {
				return v, nil
			}
			return NullVal(), nil
		}
		if idx.IsInt() {
			if f, ok := o.At(int(idx.AsInt())); ok {
				return f.Value, nil
			}
			return NullVal(), nil
		}
		return NullVal(), Throw("Object key must be a string, got %s", idx.TypeName())
	case ValString:
		if !idx.IsInt() {
			return NullVal(), Throw("String index must be an integer, got %s", idx.TypeName())
		}
		if r, ok := obj.AsString().RuneAt(int(idx.AsInt())); ok {
			return RuneVal(r), nil
		}
		return NullVal(), nil
	case ValBuffer:
		if err := checkLive(obj); err != nil {
			return NullVal(), err
		}
		data := obj.AsBuffer().Data()
		i := int(idx.AsInt())
		if i < 0 || i >= len(data) {
			return NullVal(), Throw("Buffer index %d out of bounds (length %d)", i, len(data))
		}
		return IntVal(ValU8, int64(data[i])), nil
	default:
		return NullVal(), Throw("Cannot index %s", obj.TypeName())
	}
}

// setIndex implements OP_SET_INDEX. Array writes past the end grow the
// array, null-filling the gap.
func (vm *VM) setIndex(obj, idx, val Value) error {
	switch obj.Kind {
	case ValArray:
		if err := checkLive(obj); err != nil {
			return err
		}
		if !idx.IsInt() {
			return Throw("Array index must be an integer, got %s", idx.TypeName())
		}
		if !obj.AsArray().Set(int(idx.AsInt()), val) {
			return Throw("Array index %d out of bounds", idx.AsInt())
		}
		return nil
	case ValObject:
		if err := checkLive(obj); err != nil {
			return err
		}
		if idx.Kind != ValString {
			return Throw("Object key must be a string, got %s", idx.TypeName())
		}
		obj.AsObject().Set(idx.AsString().Str(), val)
		return nil
	case ValBuffer:
		if err := checkLive(obj); err != nil {
			return err
		}
		data := obj.AsBuffer().Data()
		i := int(idx.AsInt())
		if i < 0 || i >= len(data) {
			return Throw("Buffer index %d out of bounds (length %d)", i, len(data))
		}
		data[i] = byte(val.AsInt())
		return nil
	default:
		return Throw("Cannot index %s", obj.TypeName())
	}
}
