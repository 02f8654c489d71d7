package vm

import (
	"encoding/binary"
	"math"
)

func init() {
	registerBuiltins([]Builtin{
		{Name: "alloc", Arity: 1, Fn: builtinAlloc},
		{Name: "talloc", Arity: 2, Fn: builtinTalloc},
		{Name: "realloc", Arity: 2, Fn: builtinRealloc},
		{Name: "free", Arity: 1, Fn: builtinFree},
		{Name: "memset", Arity: 3, Fn: builtinMemset},
		{Name: "memcpy", Arity: 3, Fn: builtinMemcpy},
		{Name: "sizeof", Arity: 1, Fn: builtinSizeof},
		{Name: "buffer", Arity: 1, Fn: builtinBuffer},
		{Name: "buffer_ptr", Arity: 1, Fn: builtinBufferPtr},
		{Name: "ptr_null", Arity: 0, Fn: builtinPtrNull},
		{Name: "ptr_to_buffer", Arity: 2, Fn: builtinPtrToBuffer},
		{Name: "ptr_offset", Arity: 2, Fn: builtinPtrOffset},
		{Name: "ptr_deref_i32", Arity: 1, Fn: ptrRead(4, func(b []byte) Value { return I32Val(int32(binary.LittleEndian.Uint32(b))) })},

		{Name: "ptr_read_i8", Arity: 1, Fn: ptrRead(1, func(b []byte) Value { return IntVal(ValI8, int64(int8(b[0]))) })},
		{Name: "ptr_read_i16", Arity: 1, Fn: ptrRead(2, func(b []byte) Value { return IntVal(ValI16, int64(int16(binary.LittleEndian.Uint16(b)))) })},
		{Name: "ptr_read_i32", Arity: 1, Fn: ptrRead(4, func(b []byte) Value { return I32Val(int32(binary.LittleEndian.Uint32(b))) })},
		{Name: "ptr_read_i64", Arity: 1, Fn: ptrRead(8, func(b []byte) Value { return I64Val(int64(binary.LittleEndian.Uint64(b))) })},
		{Name: "ptr_read_u8", Arity: 1, Fn: ptrRead(1, func(b []byte) Value { return IntVal(ValU8, int64(b[0])) })},
		{Name: "ptr_read_u16", Arity: 1, Fn: ptrRead(2, func(b []byte) Value { return IntVal(ValU16, int64(binary.LittleEndian.Uint16(b))) })},
		{Name: "ptr_read_u32", Arity: 1, Fn: ptrRead(4, func(b []byte) Value { return IntVal(ValU32, int64(binary.LittleEndian.Uint32(b))) })},
		{Name: "ptr_read_u64", Arity: 1, Fn: ptrRead(8, func(b []byte) Value { return U64Val(binary.LittleEndian.Uint64(b)) })},
		{Name: "ptr_read_f32", Arity: 1, Fn: ptrRead(4, func(b []byte) Value { return F32Val(math.Float32frombits(binary.LittleEndian.Uint32(b))) })},
		{Name: "ptr_read_f64", Arity: 1, Fn: ptrRead(8, func(b []byte) Value { return F64Val(math.Float64frombits(binary.LittleEndian.Uint64(b))) })},
		{Name: "ptr_read_ptr", Arity: 1, Fn: ptrRead(8, func(b []byte) Value { return U64Val(binary.LittleEndian.Uint64(b)) })},

		{Name: "ptr_write_i8", Arity: 2, Fn: ptrWrite(1, func(b []byte, v Value) { b[0] = byte(v.AsInt()) })},
		{Name: "ptr_write_i16", Arity: 2, Fn: ptrWrite(2, func(b []byte, v Value) { binary.LittleEndian.PutUint16(b, uint16(v.AsInt())) })},
		{Name: "ptr_write_i32", Arity: 2, Fn: ptrWrite(4, func(b []byte, v Value) { binary.LittleEndian.PutUint32(b, uint32(v.AsInt())) })},
		{Name: "ptr_write_i64", Arity: 2, Fn: ptrWrite(8, func(b []byte, v Value) { binary.LittleEndian.PutUint64(b, uint64(v.AsInt())) })},
		{Name: "ptr_write_u8", Arity: 2, Fn: ptrWrite(1, func(b []byte, v Value) { b[0] = byte(v.AsUint()) })},
		{Name: "ptr_write_u16", Arity: 2, Fn: ptrWrite(2, func(b []byte, v Value) { binary.LittleEndian.PutUint16(b, uint16(v.AsUint())) })},
		{Name: "ptr_write_u32", Arity: 2, Fn: ptrWrite(4, func(b []byte, v Value) { binary.LittleEndian.PutUint32(b, uint32(v.AsUint())) })},
		{Name: "ptr_write_u64", Arity: 2, Fn: ptrWrite(8, func(b []byte, v Value) { binary.LittleEndian.PutUint64(b, v.AsUint()) })},
		{Name: "ptr_write_f32", Arity: 2, Fn: ptrWrite(4, func(b []byte, v Value) { binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v.AsFloat()))) })},
		{Name: "ptr_write_f64", Arity: 2, Fn: ptrWrite(8, func(b []byte, v Value) { binary.LittleEndian.PutUint64(b, math.Float64bits(v.AsFloat())) })},
		{Name: "ptr_write_ptr", Arity: 2, Fn: ptrWrite(8, func(b []byte, v Value) { binary.LittleEndian.PutUint64(b, v.AsUint()) })},

		{Name: "atomic_load_i32", Arity: 1, Fn: atomicLoad(4)},
		{Name: "atomic_load_i64", Arity: 1, Fn: atomicLoad(8)},
		{Name: "atomic_store_i32", Arity: 2, Fn: atomicStore(4)},
		{Name: "atomic_store_i64", Arity: 2, Fn: atomicStore(8)},
		{Name: "atomic_add_i32", Arity: 2, Fn: atomicRMW(4, func(a, b int64) int64 { return a + b })},
		{Name: "atomic_add_i64", Arity: 2, Fn: atomicRMW(8, func(a, b int64) int64 { return a + b })},
		{Name: "atomic_sub_i32", Arity: 2, Fn: atomicRMW(4, func(a, b int64) int64 { return a - b })},
		{Name: "atomic_sub_i64", Arity: 2, Fn: atomicRMW(8, func(a, b int64) int64 { return a - b })},
		{Name: "atomic_and_i32", Arity: 2, Fn: atomicRMW(4, func(a, b int64) int64 { return a & b })},
		{Name: "atomic_and_i64", Arity: 2, Fn: atomicRMW(8, func(a, b int64) int64 { return a & b })},
		{Name: "atomic_or_i32", Arity: 2, Fn: atomicRMW(4, func(a, b int64) int64 { return a | b })},
		{Name: "atomic_or_i64", Arity: 2, Fn: atomicRMW(8, func(a, b int64) int64 { return a | b })},
		{Name: "atomic_xor_i32", Arity: 2, Fn: atomicRMW(4, func(a, b int64) int64 { return a ^ b })},
		{Name: "atomic_xor_i64", Arity: 2, Fn: atomicRMW(8, func(a, b int64) int64 { return a ^ b })},
		{Name: "atomic_cas_i32", Arity: 3, Fn: atomicCas(4)},
		{Name: "atomic_cas_i64", Arity: 3, Fn: atomicCas(8)},
		{Name: "atomic_exchange_i32", Arity: 2, Fn: atomicExchange(4)},
		{Name: "atomic_exchange_i64", Arity: 2, Fn: atomicExchange(8)},
		{Name: "atomic_fence", Arity: 0, Fn: builtinAtomicFence},
	})
}

func wantPointer(name string, v Value) (Pointer, error) {
	if v.Kind != ValPointer {
		return Pointer{}, Throw("%s expects a pointer, got %s", name, v.TypeName())
	}
	return v.AsPointer(), nil
}

// derefRange checks a pointer for null, use-after-free and bounds, and
// returns the addressed byte window.
func derefRange(p Pointer, size int) ([]byte, error) {
	if p.IsNull() {
		return nil, Throw("Null pointer dereference")
	}
	if p.Buf.Freed() {
		return nil, Throw("use after free: buffer")
	}
	data := p.Buf.Data()
	if p.Off < 0 || p.Off+int64(size) > int64(len(data)) {
		return nil, Throw("Pointer access out of bounds (offset %d, size %d, buffer %d)",
			p.Off, size, len(data))
	}
	return data[p.Off : p.Off+int64(size)], nil
}

func ptrRead(size int, decode func([]byte) Value) BuiltinFn {
	return func(vm *VM, args []Value) (Value, error) {
		p, err := wantPointer("ptr_read", args[0])
		if err != nil {
			return NullVal(), err
		}
		b, err := derefRange(p, size)
		if err != nil {
			return NullVal(), err
		}
		return decode(b), nil
	}
}

func ptrWrite(size int, encode func([]byte, Value)) BuiltinFn {
	return func(vm *VM, args []Value) (Value, error) {
		p, err := wantPointer("ptr_write", args[0])
		if err != nil {
			return NullVal(), err
		}
		b, err := derefRange(p, size)
		if err != nil {
			return NullVal(), err
		}
		encode(b, args[1])
		return NullVal(), nil
	}
}

func builtinAlloc(vm *VM, args []Value) (Value, error) {
	n := args[0].AsInt()
	if n < 0 {
		return NullVal(), Throw("alloc expects a non-negative size")
	}
	return PointerVal(Pointer{Buf: NewBuffer(int(n))}), nil
}

// talloc(count, elem_size) allocates a zeroed region of count*elem_size.
func builtinTalloc(vm *VM, args []Value) (Value, error) {
	count := args[0].AsInt()
	size := args[1].AsInt()
	if count < 0 || size < 0 {
		return NullVal(), Throw("talloc expects non-negative sizes")
	}
	return PointerVal(Pointer{Buf: NewBuffer(int(count * size))}), nil
}

func builtinRealloc(vm *VM, args []Value) (Value, error) {
	p, err := wantPointer("realloc", args[0])
	if err != nil {
		return NullVal(), err
	}
	if p.IsNull() {
		return builtinAlloc(vm, args[1:])
	}
	if p.Buf.Freed() {
		return NullVal(), Throw("use after free: buffer")
	}
	n := args[1].AsInt()
	if n < 0 {
		return NullVal(), Throw("realloc expects a non-negative size")
	}
	p.Buf.Resize(int(n))
	return PointerVal(Pointer{Buf: p.Buf}), nil
}

// free releases an array, object, buffer or pointer target; a second
// free of the same object is a catchable error.
func builtinFree(vm *VM, args []Value) (Value, error) {
	switch v := args[0]; v.Kind {
	case ValArray:
		if !v.AsArray().Free() {
			return NullVal(), Throw("Double free of array")
		}
	case ValObject:
		if !v.AsObject().Free() {
			return NullVal(), Throw("Double free of object")
		}
	case ValBuffer:
		if !v.AsBuffer().Free() {
			return NullVal(), Throw("Double free of buffer")
		}
	case ValPointer:
		p := v.AsPointer()
		if p.IsNull() {
			return NullVal(), Throw("Null pointer dereference")
		}
		if !p.Buf.Free() {
			return NullVal(), Throw("Double free of buffer")
		}
	default:
		return NullVal(), Throw("free expects an array, object, buffer or pointer, got %s", v.TypeName())
	}
	return NullVal(), nil
}

func builtinMemset(vm *VM, args []Value) (Value, error) {
	p, err := wantPointer("memset", args[0])
	if err != nil {
		return NullVal(), err
	}
	n := int(args[2].AsInt())
	b, err := derefRange(p, n)
	if err != nil {
		return NullVal(), err
	}
	fill := byte(args[1].AsInt())
	for i := range b {
		b[i] = fill
	}
	return NullVal(), nil
}

func builtinMemcpy(vm *VM, args []Value) (Value, error) {
	dst, err := wantPointer("memcpy", args[0])
	if err != nil {
		return NullVal(), err
	}
	src, err := wantPointer("memcpy", args[1])
	if err != nil {
		return NullVal(), err
	}
	n := int(args[2].AsInt())
	db, err := derefRange(dst, n)
	if err != nil {
		return NullVal(), err
	}
	sb, err := derefRange(src, n)
	if err != nil {
		return NullVal(), err
	}
	copy(db, sb)
	return NullVal(), nil
}

// sizeof reports the byte size of a value's payload.
func builtinSizeof(vm *VM, args []Value) (Value, error) {
	v := args[0]
	switch {
	case v.Kind == ValF32:
		return I32Val(4), nil
	case v.Kind == ValF64, v.Kind == ValPointer:
		return I32Val(8), nil
	case v.IsInt():
		return I32Val(int32(intWidth(v.Kind))), nil
	case v.Kind == ValRune:
		return I32Val(4), nil
	case v.Kind == ValBool:
		return I32Val(1), nil
	case v.Kind == ValString:
		return I32Val(int32(v.AsString().ByteLen())), nil
	case v.Kind == ValBuffer:
		return I32Val(int32(len(v.AsBuffer().Data()))), nil
	default:
		return NullVal(), Throw("sizeof is not defined for %s", v.TypeName())
	}
}

func builtinBuffer(vm *VM, args []Value) (Value, error) {
	n := args[0].AsInt()
	if n < 0 {
		return NullVal(), Throw("buffer expects a non-negative size")
	}
	return BufferVal(NewBuffer(int(n))), nil
}

func builtinBufferPtr(vm *VM, args []Value) (Value, error) {
	if args[0].Kind != ValBuffer {
		return NullVal(), Throw("buffer_ptr expects a buffer, got %s", args[0].TypeName())
	}
	if args[0].AsBuffer().Freed() {
		return NullVal(), Throw("use after free: buffer")
	}
	return PointerVal(Pointer{Buf: args[0].AsBuffer()}), nil
}

func builtinPtrNull(vm *VM, args []Value) (Value, error) {
	return PointerVal(Pointer{}), nil
}

// ptr_to_buffer(ptr, len) views the addressed region as a buffer sharing
// the underlying bytes.
func builtinPtrToBuffer(vm *VM, args []Value) (Value, error) {
	p, err := wantPointer("ptr_to_buffer", args[0])
	if err != nil {
		return NullVal(), err
	}
	n := int(args[1].AsInt())
	b, err := derefRange(p, n)
	if err != nil {
		return NullVal(), err
	}
	view := &Buffer{data: b}
	return BufferVal(view), nil
}

func builtinPtrOffset(vm *VM, args []Value) (Value, error) {
	p, err := wantPointer("ptr_offset", args[0])
	if err != nil {
		return NullVal(), err
	}
	if p.IsNull() {
		return NullVal(), Throw("Null pointer dereference")
	}
	return PointerVal(Pointer{Buf: p.Buf, Off: p.Off + args[1].AsInt()}), nil
}

// Atomics take the buffer lock; operations are sequentially consistent.

func atomicLoad(size int) BuiltinFn {
	return func(vm *VM, args []Value) (Value, error) {
		p, err := wantPointer("atomic_load", args[0])
		if err != nil {
			return NullVal(), err
		}
		b, err := derefRange(p, size)
		if err != nil {
			return NullVal(), err
		}
		p.Buf.Lock()
		defer p.Buf.Unlock()
		return readAtomicInt(b, size), nil
	}
}

func atomicStore(size int) BuiltinFn {
	return func(vm *VM, args []Value) (Value, error) {
		p, err := wantPointer("atomic_store", args[0])
		if err != nil {
			return NullVal(), err
		}
		b, err := derefRange(p, size)
		if err != nil {
			return NullVal(), err
		}
		p.Buf.Lock()
		defer p.Buf.Unlock()
		writeAtomicInt(b, size, args[1].AsInt())
		return NullVal(), nil
	}
}

func atomicRMW(size int, apply func(a, b int64) int64) BuiltinFn {
	return func(vm *VM, args []Value) (Value, error) {
		p, err := wantPointer("atomic op", args[0])
		if err != nil {
			return NullVal(), err
		}
		b, err := derefRange(p, size)
		if err != nil {
			return NullVal(), err
		}
		p.Buf.Lock()
		defer p.Buf.Unlock()
		old := readAtomicInt(b, size)
		writeAtomicInt(b, size, apply(old.AsInt(), args[1].AsInt()))
		return old, nil
	}
}

func atomicCas(size int) BuiltinFn {
	return func(vm *VM, args []Value) (Value, error) {
		p, err := wantPointer("atomic_cas", args[0])
		if err != nil {
			return NullVal(), err
		}
		b, err := derefRange(p, size)
		if err != nil {
			return NullVal(), err
		}
		p.Buf.Lock()
		defer p.Buf.Unlock()
		old := readAtomicInt(b, size)
		if old.AsInt() == args[1].AsInt() {
			writeAtomicInt(b, size, args[2].AsInt())
			return TrueVal(), nil
		}
		return FalseVal(), nil
	}
}

func atomicExchange(size int) BuiltinFn {
	return func(vm *VM, args []Value) (Value, error) {
		p, err := wantPointer("atomic_exchange", args[0])
		if err != nil {
			return NullVal(), err
		}
		b, err := derefRange(p, size)
		if err != nil {
			return NullVal(), err
		}
		p.Buf.Lock()
		defer p.Buf.Unlock()
		old := readAtomicInt(b, size)
		writeAtomicInt(b, size, args[1].AsInt())
		return old, nil
	}
}

func builtinAtomicFence(vm *VM, args []Value) (Value, error) {
	// Buffer-lock atomics already order all accesses; the fence keeps the
	// surface complete.
	return NullVal(), nil
}

func readAtomicInt(b []byte, size int) Value {
	if size == 4 {
		return I32Val(int32(binary.LittleEndian.Uint32(b)))
	}
	return I64Val(int64(binary.LittleEndian.Uint64(b)))
}

func writeAtomicInt(b []byte, size int, v int64) {
	if size == 4 {
		binary.LittleEndian.PutUint32(b, uint32(v))
		return
	}
	binary.LittleEndian.PutUint64(b, uint64(v))
}
