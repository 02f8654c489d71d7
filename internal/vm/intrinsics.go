package vm

import (
	"strings"
)

// intrinsicFn is a method dispatched directly on the receiver's runtime
// kind, bypassing user-defined fields.
type intrinsicFn func(vm *VM, recv Value, args []Value) (Value, error)

var arrayIntrinsics map[string]intrinsicFn
var stringIntrinsics map[string]intrinsicFn
var objectIntrinsics map[string]intrinsicFn
var fileIntrinsics map[string]intrinsicFn
var channelIntrinsics map[string]intrinsicFn

func init() {
	arrayIntrinsics = map[string]intrinsicFn{
		"push":     arrayPush,
		"pop":      arrayPop,
		"shift":    arrayShift,
		"unshift":  arrayUnshift,
		"join":     arrayJoin,
		"map":      arrayMap,
		"filter":   arrayFilter,
		"reduce":   arrayReduce,
		"slice":    arraySlice,
		"concat":   arrayConcat,
		"find":     arrayFind,
		"contains": arrayContains,
		"first":    arrayFirst,
		"last":     arrayLast,
		"clear":    arrayClear,
		"reverse":  arrayReverse,
		"insert":   arrayInsert,
		"remove":   arrayRemove,
	}
	stringIntrinsics = map[string]intrinsicFn{
		"split":       stringSplit,
		"contains":    stringContains,
		"length":      stringLength,
		"substr":      stringSubstr,
		"slice":       stringSlice,
		"find":        stringFind,
		"trim":        stringTrim,
		"to_upper":    stringToUpper,
		"to_lower":    stringToLower,
		"starts_with": stringStartsWith,
		"ends_with":   stringEndsWith,
		"replace":     stringReplace,
		"replace_all": stringReplaceAll,
		"repeat":      stringRepeat,
		"char_at":     stringCharAt,
		"byte_at":     stringByteAt,
		"chars":       stringChars,
		"bytes":       stringBytes,
		"to_bytes":    stringToBytes,
		"deserialize": stringDeserialize,
	}
	objectIntrinsics = map[string]intrinsicFn{
		"keys":      objectKeys,
		"has":       objectHas,
		"serialize": objectSerialize,
	}
	fileIntrinsics = map[string]intrinsicFn{
		"read":      fileRead,
		"read_line": fileReadLine,
		"write":     fileWrite,
		"seek":      fileSeek,
		"close":     fileClose,
	}
	channelIntrinsics = map[string]intrinsicFn{
		"send":  channelSend,
		"recv":  channelRecv,
		"close": channelClose,
		"len":   channelLen,
	}
}

// lookupIntrinsic resolves a method on the receiver's runtime kind.
func lookupIntrinsic(kind ValueKind, name string) (intrinsicFn, bool) {
	var table map[string]intrinsicFn
	switch kind {
	case ValArray:
		table = arrayIntrinsics
	case ValString:
		table = stringIntrinsics
	case ValObject:
		table = objectIntrinsics
	case ValFile:
		table = fileIntrinsics
	case ValChannel:
		table = channelIntrinsics
	default:
		return nil, false
	}
	fn, ok := table[name]
	return fn, ok
}

// callCallback invokes a user-supplied callback value (closure or
// builtin) used by map/filter/reduce.
func (vm *VM) callCallback(fn Value, args []Value) (Value, error) {
	switch fn.Kind {
	case ValFunction:
		return vm.CallClosure(fn.AsClosure(), args)
	case ValBuiltin:
		b := &builtinTable[fn.AsBuiltinID()]
		if b.Arity >= 0 && len(args) != b.Arity {
			return NullVal(), Throw("%s expects %d arguments, got %d", b.Name, b.Arity, len(args))
		}
		return b.Fn(vm, args)
	default:
		return NullVal(), Throw("callback must be a function, got %s", fn.TypeName())
	}
}

func wantArgs(name string, args []Value, n int) error {
	if len(args) != n {
		return Throw("%s expects %d arguments, got %d", name, n, len(args))
	}
	return nil
}

// ---- array intrinsics ----

func liveArray(recv Value) (*Array, error) {
	if err := checkLive(recv); err != nil {
		return nil, err
	}
	return recv.AsArray(), nil
}

func arrayPush(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	for _, v := range args {
		a.Push(v)
	}
	return I32Val(int32(a.Len())), nil
}

func arrayPop(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	if a.Len() == 0 {
		return NullVal(), nil
	}
	v := a.items[a.Len()-1]
	a.items = a.items[:a.Len()-1]
	return v, nil
}

func arrayShift(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	if a.Len() == 0 {
		return NullVal(), nil
	}
	v := a.items[0]
	a.items = append(a.items[:0], a.items[1:]...)
	return v, nil
}

func arrayUnshift(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	a.items = append(append(make([]Value, 0, len(args)+a.Len()), args...), a.items...)
	return I32Val(int32(a.Len())), nil
}

func arrayJoin(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	sep := ","
	if len(args) > 0 {
		if args[0].Kind != ValString {
			return NullVal(), Throw("join separator must be a string")
		}
		sep = args[0].AsString().Str()
	}
	parts := make([]string, a.Len())
	for i, v := range a.items {
		parts[i] = v.Format()
	}
	return StrVal(strings.Join(parts, sep)), nil
}

func arrayMap(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	if err := wantArgs("map", args, 1); err != nil {
		return NullVal(), err
	}
	if args[0].Kind != ValFunction && args[0].Kind != ValBuiltin {
		return NullVal(), Throw("map requires a function")
	}
	out := make([]Value, a.Len())
	for i, v := range a.items {
		r, err := vm.callCallback(args[0], []Value{v})
		if err != nil {
			return NullVal(), err
		}
		out[i] = r
	}
	return ArrayVal(NewArray(out)), nil
}

func arrayFilter(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	if err := wantArgs("filter", args, 1); err != nil {
		return NullVal(), err
	}
	if args[0].Kind != ValFunction && args[0].Kind != ValBuiltin {
		return NullVal(), Throw("filter requires a function")
	}
	out := make([]Value, 0, a.Len())
	for _, v := range a.items {
		r, err := vm.callCallback(args[0], []Value{v})
		if err != nil {
			return NullVal(), err
		}
		if r.IsTruthy() {
			out = append(out, v)
		}
	}
	return ArrayVal(NewArray(out)), nil
}

func arrayReduce(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	if len(args) < 1 || len(args) > 2 {
		return NullVal(), Throw("reduce expects a function and an optional initial value")
	}
	if args[0].Kind != ValFunction && args[0].Kind != ValBuiltin {
		return NullVal(), Throw("reduce requires a function")
	}
	items := a.items
	var acc Value
	switch {
	case len(args) == 2:
		acc = args[1]
	case len(items) == 0:
		return NullVal(), Throw("reduce of empty array with no initial value")
	default:
		acc = items[0]
		items = items[1:]
	}
	for _, v := range items {
		r, err := vm.callCallback(args[0], []Value{acc, v})
		if err != nil {
			return NullVal(), err
		}
		acc = r
	}
	return acc, nil
}

// sliceBounds clamps [start, end) indices, resolving negatives from the
// end.
func sliceBounds(start, end, length int) (int, int) {
	if start < 0 {
		start += length
	}
	if end < 0 {
		end += length
	}
	if start < 0 {
		start = 0
	}
	if end > length {
		end = length
	}
	if start > end {
		start = end
	}
	return start, end
}

func arraySlice(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	start, end := 0, a.Len()
	if len(args) > 0 {
		start = int(args[0].AsInt())
	}
	if len(args) > 1 {
		end = int(args[1].AsInt())
	}
	start, end = sliceBounds(start, end, a.Len())
	out := make([]Value, end-start)
	copy(out, a.items[start:end])
	return ArrayVal(NewArray(out)), nil
}

func arrayConcat(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	out := make([]Value, a.Len())
	copy(out, a.items)
	for _, arg := range args {
		if arg.Kind != ValArray {
			return NullVal(), Throw("concat expects arrays, got %s", arg.TypeName())
		}
		out = append(out, arg.AsArray().items...)
	}
	return ArrayVal(NewArray(out)), nil
}

func arrayFind(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	if err := wantArgs("find", args, 1); err != nil {
		return NullVal(), err
	}
	for i, v := range a.items {
		if v.Equals(args[0]) {
			return I32Val(int32(i)), nil
		}
	}
	return I32Val(-1), nil
}

func arrayContains(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	if err := wantArgs("contains", args, 1); err != nil {
		return NullVal(), err
	}
	for _, v := range a.items {
		if v.Equals(args[0]) {
			return TrueVal(), nil
		}
	}
	return FalseVal(), nil
}

func arrayFirst(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	return a.Get(0), nil
}

func arrayLast(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	return a.Get(a.Len() - 1), nil
}

func arrayClear(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	a.items = a.items[:0]
	return NullVal(), nil
}

func arrayReverse(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	for i, j := 0, a.Len()-1; i < j; i, j = i+1, j-1 {
		a.items[i], a.items[j] = a.items[j], a.items[i]
	}
	return recv, nil
}

func arrayInsert(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	if err := wantArgs("insert", args, 2); err != nil {
		return NullVal(), err
	}
	i := int(args[0].AsInt())
	if i < 0 || i > a.Len() {
		return NullVal(), Throw("insert index %d out of range (length %d)", i, a.Len())
	}
	a.items = append(a.items, NullVal())
	copy(a.items[i+1:], a.items[i:])
	a.items[i] = args[1]
	return NullVal(), nil
}

func arrayRemove(vm *VM, recv Value, args []Value) (Value, error) {
	a, err := liveArray(recv)
	if err != nil {
		return NullVal(), err
	}
	if err := wantArgs("remove", args, 1); err != nil {
		return NullVal(), err
	}
	i := int(args[0].AsInt())
	if i < 0 || i >= a.Len() {
		return NullVal(), Throw("remove index %d out of range (length %d)", i, a.Len())
	}
	v := a.items[i]
	a.items = append(a.items[:i], a.items[i+1:]...)
	return v, nil
}

// ---- string intrinsics ----

func stringSplit(vm *VM, recv Value, args []Value) (Value, error) {
	if err := wantArgs("split", args, 1); err != nil {
		return NullVal(), err
	}
	if args[0].Kind != ValString {
		return NullVal(), Throw("split separator must be a string")
	}
	parts := strings.Split(recv.AsString().Str(), args[0].AsString().Str())
	out := make([]Value, len(parts))
	for i, p := range parts {
		out[i] = StrVal(p)
	}
	return ArrayVal(NewArray(out)), nil
}

func stringContains(vm *VM, recv Value, args []Value) (Value, error) {
	if err := wantArgs("contains", args, 1); err != nil {
		return NullVal(), err
	}
	if args[0].Kind != ValString {
		return NullVal(), Throw("contains expects a string")
	}
	return BoolVal(strings.Contains(recv.AsString().Str(), args[0].AsString().Str())), nil
}

func stringLength(vm *VM, recv Value, args []Value) (Value, error) {
	return I32Val(int32(recv.AsString().RuneCount())), nil
}

// substr takes (start, length) in codepoints.
func stringSubstr(vm *VM, recv Value, args []Value) (Value, error) {
	if err := wantArgs("substr", args, 2); err != nil {
		return NullVal(), err
	}
	runes := []rune(recv.AsString().Str())
	start := int(args[0].AsInt())
	length := int(args[1].AsInt())
	if start < 0 {
		start += len(runes)
	}
	if start < 0 || start > len(runes) || length < 0 {
		return StrVal(""), nil
	}
	end := start + length
	if end > len(runes) {
		end = len(runes)
	}
	return StrVal(string(runes[start:end])), nil
}

// slice takes [start, end) in codepoints, negatives counting from the end.
func stringSlice(vm *VM, recv Value, args []Value) (Value, error) {
	runes := []rune(recv.AsString().Str())
	start, end := 0, len(runes)
	if len(args) > 0 {
		start = int(args[0].AsInt())
	}
	if len(args) > 1 {
		end = int(args[1].AsInt())
	}
	start, end = sliceBounds(start, end, len(runes))
	return StrVal(string(runes[start:end])), nil
}

// find returns the codepoint index of the first occurrence, or -1.
func stringFind(vm *VM, recv Value, args []Value) (Value, error) {
	if err := wantArgs("find", args, 1); err != nil {
		return NullVal(), err
	}
	if args[0].Kind != ValString {
		return NullVal(), Throw("find expects a string")
	}
	s := recv.AsString().Str()
	byteIdx := strings.Index(s, args[0].AsString().Str())
	if byteIdx < 0 {
		return I32Val(-1), nil
	}
	return I32Val(int32(len([]rune(s[:byteIdx])))), nil
}

func stringTrim(vm *VM, recv Value, args []Value) (Value, error) {
	return StrVal(strings.TrimSpace(recv.AsString().Str())), nil
}

func stringToUpper(vm *VM, recv Value, args []Value) (Value, error) {
	return StrVal(strings.ToUpper(recv.AsString().Str())), nil
}

func stringToLower(vm *VM, recv Value, args []Value) (Value, error) {
	return StrVal(strings.ToLower(recv.AsString().Str())), nil
}

func stringStartsWith(vm *VM, recv Value, args []Value) (Value, error) {
	if err := wantArgs("starts_with", args, 1); err != nil {
		return NullVal(), err
	}
	if args[0].Kind != ValString {
		return NullVal(), Throw("starts_with expects a string")
	}
	return BoolVal(strings.HasPrefix(recv.AsString().Str(), args[0].AsString().Str())), nil
}

func stringEndsWith(vm *VM, recv Value, args []Value) (Value, error) {
	if err := wantArgs("ends_with", args, 1); err != nil {
		return NullVal(), err
	}
	if args[0].Kind != ValString {
		return NullVal(), Throw("ends_with expects a string")
	}
	return BoolVal(strings.HasSuffix(recv.AsString().Str(), args[0].AsString().Str())), nil
}

func stringReplace(vm *VM, recv Value, args []Value) (Value, error) {
	if err := wantArgs("replace", args, 2); err != nil {
		return NullVal(), err
	}
	if args[0].Kind != ValString || args[1].Kind != ValString {
		return NullVal(), Throw("replace expects strings")
	}
	return StrVal(strings.Replace(recv.AsString().Str(),
		args[0].AsString().Str(), args[1].AsString().Str(), 1)), nil
}

func stringReplaceAll(vm *VM, recv Value, args []Value) (Value, error) {
	if err := wantArgs("replace_all", args, 2); err != nil {
		return NullVal(), err
	}
	if args[0].Kind != ValString || args[1].Kind != ValString {
		return NullVal(), Throw("replace_all expects strings")
	}
	return StrVal(strings.ReplaceAll(recv.AsString().Str(),
		args[0].AsString().Str(), args[1].AsString().Str())), nil
}

func stringRepeat(vm *VM, recv Value, args []Value) (Value, error) {
	if err := wantArgs("repeat", args, 1); err != nil {
		return NullVal(), err
	}
	n := int(args[0].AsInt())
	if n < 0 {
		return NullVal(), Throw("repeat count must not be negative")
	}
	return StrVal(strings.Repeat(recv.AsString().Str(), n)), nil
}

// char_at indexes by codepoint, byte_at by raw UTF-8 byte.
func stringCharAt(vm *VM, recv Value, args []Value) (Value, error) {
	if err := wantArgs("char_at", args, 1); err != nil {
		return NullVal(), err
	}
	if r, ok := recv.AsString().RuneAt(int(args[0].AsInt())); ok {
		return RuneVal(r), nil
	}
	return NullVal(), nil
}

func stringByteAt(vm *VM, recv Value, args []Value) (Value, error) {
	if err := wantArgs("byte_at", args, 1); err != nil {
		return NullVal(), err
	}
	s := recv.AsString().Str()
	i := int(args[0].AsInt())
	if i < 0 || i >= len(s) {
		return NullVal(), nil
	}
	return IntVal(ValU8, int64(s[i])), nil
}

func stringChars(vm *VM, recv Value, args []Value) (Value, error) {
	s := recv.AsString().Str()
	out := make([]Value, 0, len(s))
	for _, r := range s {
		out = append(out, RuneVal(r))
	}
	return ArrayVal(NewArray(out)), nil
}

func stringBytes(vm *VM, recv Value, args []Value) (Value, error) {
	s := recv.AsString().Str()
	out := make([]Value, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = IntVal(ValU8, int64(s[i]))
	}
	return ArrayVal(NewArray(out)), nil
}

func stringToBytes(vm *VM, recv Value, args []Value) (Value, error) {
	s := recv.AsString().Str()
	buf := NewBuffer(len(s))
	copy(buf.Data(), s)
	return BufferVal(buf), nil
}

func stringDeserialize(vm *VM, recv Value, args []Value) (Value, error) {
	return deserializeJSON(recv.AsString().Str())
}

// ---- object intrinsics ----

func objectKeys(vm *VM, recv Value, args []Value) (Value, error) {
	if err := checkLive(recv); err != nil {
		return NullVal(), err
	}
	o := recv.AsObject()
	out := make([]Value, 0, o.Len())
	for _, f := range o.Fields() {
		out = append(out, StrVal(f.Name))
	}
	return ArrayVal(NewArray(out)), nil
}

func objectHas(vm *VM, recv Value, args []Value) (Value, error) {
	if err := checkLive(recv); err != nil {
		return NullVal(), err
	}
	if err := wantArgs("has", args, 1); err != nil {
		return NullVal(), err
	}
	if args[0].Kind != ValString {
		return NullVal(), Throw("has expects a string key")
	}
	_, ok := recv.AsObject().Get(args[0].AsString().Str())
	return BoolVal(ok), nil
}

func objectSerialize(vm *VM, recv Value, args []Value) (Value, error) {
	if err := checkLive(recv); err != nil {
		return NullVal(), err
	}
	s, err := serializeValue(recv)
	if err != nil {
		return NullVal(), err
	}
	return StrVal(s), nil
}

// ---- file intrinsics ----

func fileRead(vm *VM, recv Value, args []Value) (Value, error) {
	h := recv.AsFile()
	f := h.File()
	if f == nil {
		return NullVal(), Throw("Cannot read from closed file")
	}
	if len(args) == 1 {
		n := int(args[0].AsInt())
		buf := make([]byte, n)
		read, err := f.Read(buf)
		if err != nil && read == 0 {
			return NullVal(), nil
		}
		return StrVal(string(buf[:read])), nil
	}
	info, err := f.Stat()
	if err != nil {
		return NullVal(), Throw("read failed: %s", err)
	}
	buf := make([]byte, info.Size())
	read, _ := f.Read(buf)
	return StrVal(string(buf[:read])), nil
}

func fileReadLine(vm *VM, recv Value, args []Value) (Value, error) {
	h := recv.AsFile()
	f := h.File()
	if f == nil {
		return NullVal(), Throw("Cannot read from closed file")
	}
	var sb strings.Builder
	one := make([]byte, 1)
	for {
		n, err := f.Read(one)
		if n == 0 || err != nil {
			if sb.Len() == 0 {
				return NullVal(), nil
			}
			break
		}
		if one[0] == '\n' {
			break
		}
		sb.WriteByte(one[0])
	}
	return StrVal(sb.String()), nil
}

func fileWrite(vm *VM, recv Value, args []Value) (Value, error) {
	if err := wantArgs("write", args, 1); err != nil {
		return NullVal(), err
	}
	h := recv.AsFile()
	f := h.File()
	if f == nil {
		return NullVal(), Throw("Cannot write to closed file")
	}
	n, err := f.WriteString(args[0].Format())
	if err != nil {
		return NullVal(), Throw("write failed: %s", err)
	}
	return I32Val(int32(n)), nil
}

func fileSeek(vm *VM, recv Value, args []Value) (Value, error) {
	if err := wantArgs("seek", args, 1); err != nil {
		return NullVal(), err
	}
	h := recv.AsFile()
	f := h.File()
	if f == nil {
		return NullVal(), Throw("Cannot seek on closed file")
	}
	pos, err := f.Seek(args[0].AsInt(), 0)
	if err != nil {
		return NullVal(), Throw("seek failed: %s", err)
	}
	return I64Val(pos), nil
}

func fileClose(vm *VM, recv Value, args []Value) (Value, error) {
	if err := recv.AsFile().Close(); err != nil {
		return NullVal(), Throw("File already closed")
	}
	return NullVal(), nil
}

// ---- channel intrinsics ----

func channelSend(vm *VM, recv Value, args []Value) (Value, error) {
	if err := wantArgs("send", args, 1); err != nil {
		return NullVal(), err
	}
	if err := recv.AsChannel().Send(args[0]); err != nil {
		return NullVal(), err
	}
	return NullVal(), nil
}

func channelRecv(vm *VM, recv Value, args []Value) (Value, error) {
	return recv.AsChannel().Recv()
}

func channelClose(vm *VM, recv Value, args []Value) (Value, error) {
	recv.AsChannel().Close()
	return NullVal(), nil
}

func channelLen(vm *VM, recv Value, args []Value) (Value, error) {
	return I32Val(int32(recv.AsChannel().Len())), nil
}
