package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind identifies the runtime type of a Value.
type ValueKind uint8

const (
	ValNull ValueKind = iota
	ValBool
	ValI8
	ValI16
	ValI32
	ValI64
	ValU8
	ValU16
	ValU32
	ValU64
	ValF32
	ValF64
	ValRune
	ValString
	ValArray
	ValObject
	ValBuffer
	ValFile
	ValPointer
	ValFunction
	ValTask
	ValChannel
	ValBuiltin
	ValType

	// valProto is a compiler-internal kind: a nested function chunk living
	// in a constant pool. It never appears on the operand stack.
	valProto
)

// Value is a tagged union. Numerics, bools and runes live in num; heap
// kinds keep a pointer in obj. Values are shallow-copied: copies share
// heap references.
type Value struct {
	Kind ValueKind
	num  uint64
	obj  any
}

// Constructors

func NullVal() Value           { return Value{Kind: ValNull} }
func TrueVal() Value           { return Value{Kind: ValBool, num: 1} }
func FalseVal() Value          { return Value{Kind: ValBool} }
func RuneVal(r rune) Value     { return Value{Kind: ValRune, num: uint64(uint32(r))} }
func I32Val(v int32) Value     { return Value{Kind: ValI32, num: uint64(uint32(v))} }
func I64Val(v int64) Value     { return Value{Kind: ValI64, num: uint64(v)} }
func U64Val(v uint64) Value    { return Value{Kind: ValU64, num: v} }
func F32Val(v float32) Value   { return Value{Kind: ValF32, num: uint64(math.Float32bits(v))} }
func F64Val(v float64) Value   { return Value{Kind: ValF64, num: math.Float64bits(v)} }
func TypeVal(id TypeID) Value  { return Value{Kind: ValType, num: uint64(id)} }
func BuiltinVal(id int) Value  { return Value{Kind: ValBuiltin, num: uint64(id)} }

func BoolVal(b bool) Value {
	if b {
		return TrueVal()
	}
	return FalseVal()
}

// IntVal builds an integer Value of the given kind, truncating v to the
// kind's width.
func IntVal(kind ValueKind, v int64) Value {
	switch kind {
	case ValI8:
		return Value{Kind: ValI8, num: uint64(uint8(int8(v)))}
	case ValI16:
		return Value{Kind: ValI16, num: uint64(uint16(int16(v)))}
	case ValI32:
		return Value{Kind: ValI32, num: uint64(uint32(int32(v)))}
	case ValI64:
		return Value{Kind: ValI64, num: uint64(v)}
	case ValU8:
		return Value{Kind: ValU8, num: uint64(uint8(v))}
	case ValU16:
		return Value{Kind: ValU16, num: uint64(uint16(v))}
	case ValU32:
		return Value{Kind: ValU32, num: uint64(uint32(v))}
	case ValU64:
		return Value{Kind: ValU64, num: uint64(v)}
	default:
		return Value{Kind: ValI64, num: uint64(v)}
	}
}

func StringVal(s *String) Value     { return Value{Kind: ValString, obj: s} }
func StrVal(s string) Value         { return Value{Kind: ValString, obj: NewString(s)} }
func ArrayVal(a *Array) Value       { return Value{Kind: ValArray, obj: a} }
func ObjectVal(o *Object) Value     { return Value{Kind: ValObject, obj: o} }
func BufferVal(b *Buffer) Value     { return Value{Kind: ValBuffer, obj: b} }
func FileVal(f *FileHandle) Value   { return Value{Kind: ValFile, obj: f} }
func PointerVal(p Pointer) Value    { return Value{Kind: ValPointer, obj: p} }
func ClosureVal(c *Closure) Value   { return Value{Kind: ValFunction, obj: c} }
func TaskVal(t *Task) Value         { return Value{Kind: ValTask, obj: t} }
func ChannelVal(ch *Channel) Value  { return Value{Kind: ValChannel, obj: ch} }
func protoVal(chunk *Chunk) Value   { return Value{Kind: valProto, obj: chunk} }

// Accessors. Callers must have checked Kind.

func (v Value) AsBool() bool         { return v.num != 0 }
func (v Value) AsRune() rune         { return rune(uint32(v.num)) }
func (v Value) AsF32() float32       { return math.Float32frombits(uint32(v.num)) }
func (v Value) AsF64() float64       { return math.Float64frombits(v.num) }
func (v Value) AsString() *String    { return v.obj.(*String) }
func (v Value) AsArray() *Array      { return v.obj.(*Array) }
func (v Value) AsObject() *Object    { return v.obj.(*Object) }
func (v Value) AsBuffer() *Buffer    { return v.obj.(*Buffer) }
func (v Value) AsFile() *FileHandle  { return v.obj.(*FileHandle) }
func (v Value) AsPointer() Pointer   { return v.obj.(Pointer) }
func (v Value) AsClosure() *Closure  { return v.obj.(*Closure) }
func (v Value) AsTask() *Task        { return v.obj.(*Task) }
func (v Value) AsChannel() *Channel  { return v.obj.(*Channel) }
func (v Value) AsTypeID() TypeID     { return TypeID(v.num) }
func (v Value) AsBuiltinID() int     { return int(v.num) }
func (v Value) asProto() *Chunk      { return v.obj.(*Chunk) }

// AsInt returns the signed integer interpretation of a numeric Value.
func (v Value) AsInt() int64 {
	switch v.Kind {
	case ValI8:
		return int64(int8(v.num))
	case ValI16:
		return int64(int16(v.num))
	case ValI32:
		return int64(int32(v.num))
	case ValI64:
		return int64(v.num)
	case ValU8, ValU16, ValU32, ValU64:
		return int64(v.num)
	case ValRune:
		return int64(uint32(v.num))
	case ValF32:
		return int64(v.AsF32())
	case ValF64:
		return int64(v.AsF64())
	case ValBool:
		return int64(v.num)
	default:
		return 0
	}
}

// AsUint returns the unsigned interpretation of a numeric Value.
func (v Value) AsUint() uint64 {
	switch v.Kind {
	case ValI8:
		return uint64(int64(int8(v.num)))
	case ValI16:
		return uint64(int64(int16(v.num)))
	case ValI32:
		return uint64(int64(int32(v.num)))
	default:
		return v.num
	}
}

// AsFloat returns the float interpretation of a numeric Value.
func (v Value) AsFloat() float64 {
	switch v.Kind {
	case ValF32:
		return float64(v.AsF32())
	case ValF64:
		return v.AsF64()
	case ValU8, ValU16, ValU32, ValU64:
		return float64(v.num)
	default:
		return float64(v.AsInt())
	}
}

func (v Value) IsNull() bool { return v.Kind == ValNull }

// IsInt reports whether v is any integer kind (rune excluded).
func (v Value) IsInt() bool {
	return v.Kind >= ValI8 && v.Kind <= ValU64
}

// IsSigned reports whether v is a signed integer kind.
func (v Value) IsSigned() bool {
	return v.Kind >= ValI8 && v.Kind <= ValI64
}

// IsFloatKind reports whether v is f32 or f64.
func (v Value) IsFloatKind() bool {
	return v.Kind == ValF32 || v.Kind == ValF64
}

// IsNumeric reports whether v participates in arithmetic promotion.
func (v Value) IsNumeric() bool {
	return v.IsInt() || v.IsFloatKind()
}

// IsTruthy: null and false are falsy; numeric and rune zero are falsy;
// everything else is truthy.
func (v Value) IsTruthy() bool {
	switch v.Kind {
	case ValNull:
		return false
	case ValBool:
		return v.num != 0
	case ValRune:
		return v.num != 0
	case ValF32:
		return v.AsF32() != 0
	case ValF64:
		return v.AsF64() != 0
	default:
		if v.IsInt() {
			return v.num != 0
		}
		return true
	}
}

// TypeName returns the typeof name for v. Objects report their tagged
// type name when one was set.
func (v Value) TypeName() string {
	switch v.Kind {
	case ValNull:
		return "null"
	case ValBool:
		return "bool"
	case ValI8:
		return "i8"
	case ValI16:
		return "i16"
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValU8:
		return "u8"
	case ValU16:
		return "u16"
	case ValU32:
		return "u32"
	case ValU64:
		return "u64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValRune:
		return "rune"
	case ValString:
		return "string"
	case ValArray:
		return "array"
	case ValObject:
		if tn := v.AsObject().TypeName(); tn != "" {
			return tn
		}
		return "object"
	case ValBuffer:
		return "buffer"
	case ValFile:
		return "file"
	case ValPointer:
		return "pointer"
	case ValFunction:
		return "function"
	case ValTask:
		return "task"
	case ValChannel:
		return "channel"
	case ValBuiltin:
		return "function"
	case ValType:
		return "type"
	default:
		return "unknown"
	}
}

// Equals implements the == operator. Numerics compare by value across
// kinds; strings by content; heap kinds by identity.
func (v Value) Equals(other Value) bool {
	if v.IsNumeric() && other.IsNumeric() {
		if v.IsFloatKind() || other.IsFloatKind() {
			return v.AsFloat() == other.AsFloat()
		}
		if v.IsSigned() == other.IsSigned() {
			if v.IsSigned() {
				return v.AsInt() == other.AsInt()
			}
			return v.AsUint() == other.AsUint()
		}
		// Mixed signedness: negative signed never equals unsigned
		if v.IsSigned() {
			return v.AsInt() >= 0 && uint64(v.AsInt()) == other.AsUint()
		}
		return other.AsInt() >= 0 && v.AsUint() == uint64(other.AsInt())
	}
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValNull:
		return true
	case ValBool, ValRune, ValType, ValBuiltin:
		return v.num == other.num
	case ValString:
		return v.AsString().Str() == other.AsString().Str()
	case ValPointer:
		return v.AsPointer() == other.AsPointer()
	default:
		return v.obj == other.obj
	}
}

// Format returns the print-style representation used by print, string
// interpolation and error messages.
func (v Value) Format() string {
	switch v.Kind {
	case ValNull:
		return "null"
	case ValBool:
		return strconv.FormatBool(v.AsBool())
	case ValRune:
		return string(v.AsRune())
	case ValF32, ValF64:
		return formatFloat(v.AsFloat())
	case ValString:
		return v.AsString().Str()
	case ValArray:
		return v.AsArray().format()
	case ValObject:
		return v.AsObject().format()
	case ValBuffer:
		return fmt.Sprintf("<buffer %d>", len(v.AsBuffer().Data()))
	case ValFile:
		return fmt.Sprintf("<file %s>", v.AsFile().Path())
	case ValPointer:
		p := v.AsPointer()
		if p.IsNull() {
			return "<ptr null>"
		}
		return fmt.Sprintf("<ptr +%d>", p.Off)
	case ValFunction:
		c := v.AsClosure()
		if c.Chunk.Name != "" {
			return fmt.Sprintf("<fn %s>", c.Chunk.Name)
		}
		return "<fn>"
	case ValTask:
		return fmt.Sprintf("<task %d>", v.AsTask().ID)
	case ValChannel:
		return fmt.Sprintf("<channel %d>", v.AsChannel().Capacity())
	case ValBuiltin:
		return fmt.Sprintf("<builtin %s>", builtinName(int(v.num)))
	case ValType:
		return TypeID(v.num).String()
	default:
		if v.IsSigned() {
			return strconv.FormatInt(v.AsInt(), 10)
		}
		if v.IsInt() {
			return strconv.FormatUint(v.AsUint(), 10)
		}
		return "<?>"
	}
}

func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	// Keep a trailing ".0" on integral floats so they don't read as ints
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// TypeID identifies a cast target or type tag literal.
type TypeID uint8

const (
	TypeIDNull TypeID = iota
	TypeIDBool
	TypeIDI8
	TypeIDI16
	TypeIDI32
	TypeIDI64
	TypeIDU8
	TypeIDU16
	TypeIDU32
	TypeIDU64
	TypeIDF32
	TypeIDF64
	TypeIDRune
	TypeIDString
	TypeIDObject // custom object type; name attached via OP_SET_OBJ_TYPE
)

var typeIDNames = [...]string{
	"null", "bool", "i8", "i16", "i32", "i64",
	"u8", "u16", "u32", "u64", "f32", "f64", "rune", "string", "object",
}

func (t TypeID) String() string {
	if int(t) < len(typeIDNames) {
		return typeIDNames[t]
	}
	return "type"
}

// LookupTypeID maps an annotation name to a TypeID; custom object type
// names map to TypeIDObject.
func LookupTypeID(name string) TypeID {
	switch name {
	case "bool":
		return TypeIDBool
	case "i8":
		return TypeIDI8
	case "i16":
		return TypeIDI16
	case "i32":
		return TypeIDI32
	case "i64":
		return TypeIDI64
	case "u8":
		return TypeIDU8
	case "u16":
		return TypeIDU16
	case "u32":
		return TypeIDU32
	case "u64":
		return TypeIDU64
	case "f32":
		return TypeIDF32
	case "f64":
		return TypeIDF64
	case "rune":
		return TypeIDRune
	case "string":
		return TypeIDString
	default:
		return TypeIDObject
	}
}

// intKindForTypeID returns the ValueKind for an integer TypeID.
func intKindForTypeID(t TypeID) (ValueKind, bool) {
	switch t {
	case TypeIDI8:
		return ValI8, true
	case TypeIDI16:
		return ValI16, true
	case TypeIDI32:
		return ValI32, true
	case TypeIDI64:
		return ValI64, true
	case TypeIDU8:
		return ValU8, true
	case TypeIDU16:
		return ValU16, true
	case TypeIDU32:
		return ValU32, true
	case TypeIDU64:
		return ValU64, true
	}
	return ValNull, false
}
