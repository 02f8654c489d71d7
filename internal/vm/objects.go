package vm

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"
)

// String is an immutable heap string. The codepoint count is computed
// lazily; -1 means unknown.
type String struct {
	s         string
	runeCount int32
}

// NewString wraps s as a heap string.
func NewString(s string) *String {
	return &String{s: s, runeCount: -1}
}

// Str returns the raw byte content.
func (s *String) Str() string { return s.s }

// ByteLen returns the length in bytes.
func (s *String) ByteLen() int { return len(s.s) }

// RuneCount returns the number of Unicode codepoints, computing and
// caching it on first use.
func (s *String) RuneCount() int {
	if n := atomic.LoadInt32(&s.runeCount); n >= 0 {
		return int(n)
	}
	n := int32(utf8.RuneCountInString(s.s))
	atomic.StoreInt32(&s.runeCount, n)
	return int(n)
}

// RuneAt returns the i-th codepoint, or false when out of range.
func (s *String) RuneAt(i int) (rune, bool) {
	if i < 0 {
		return 0, false
	}
	n := 0
	for _, r := range s.s {
		if n == i {
			return r, true
		}
		n++
	}
	return 0, false
}

// Array is a growable sequence of Values.
type Array struct {
	items []Value
	freed atomic.Bool
}

// NewArray builds an array owning items.
func NewArray(items []Value) *Array {
	return &Array{items: items}
}

// Items returns the backing slice.
func (a *Array) Items() []Value { return a.items }

// Len returns the element count.
func (a *Array) Len() int { return len(a.items) }

// Get returns the element at i, or null when out of range (negative
// indices included).
func (a *Array) Get(i int) Value {
	if i < 0 || i >= len(a.items) {
		return NullVal()
	}
	return a.items[i]
}

// Set stores v at i, growing the array null-filled when i >= len.
func (a *Array) Set(i int, v Value) bool {
	if i < 0 {
		return false
	}
	for i >= len(a.items) {
		a.items = append(a.items, NullVal())
	}
	a.items[i] = v
	return true
}

// Push appends v.
func (a *Array) Push(v Value) { a.items = append(a.items, v) }

// Free marks the array freed; a second call reports failure.
func (a *Array) Free() bool { return a.freed.CompareAndSwap(false, true) }

// Freed reports whether Free has run.
func (a *Array) Freed() bool { return a.freed.Load() }

func (a *Array) format() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range a.items {
		if i > 0 {
			sb.WriteString(", ")
		}
		if v.Kind == ValString {
			sb.WriteByte('"')
			sb.WriteString(v.AsString().Str())
			sb.WriteByte('"')
		} else {
			sb.WriteString(v.Format())
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

// Field is one object entry. Objects keep insertion order.
type Field struct {
	Name  string
	Value Value
}

// Object is an ordered field list with an optional nominal type name.
type Object struct {
	fields   []Field
	typeName string
	freed    atomic.Bool
}

// NewObject builds an object from ordered fields.
func NewObject(fields []Field) *Object {
	return &Object{fields: fields}
}

// Fields returns the ordered field list.
func (o *Object) Fields() []Field { return o.fields }

// Len returns the field count.
func (o *Object) Len() int { return len(o.fields) }

// TypeName returns the nominal type tag, or "".
func (o *Object) TypeName() string { return o.typeName }

// SetTypeName tags the object with a nominal type.
func (o *Object) SetTypeName(name string) { o.typeName = name }

// Get looks up a field by name.
func (o *Object) Get(name string) (Value, bool) {
	for i := range o.fields {
		if o.fields[i].Name == name {
			return o.fields[i].Value, true
		}
	}
	return NullVal(), false
}

// Set updates an existing field or appends a new one, preserving order.
func (o *Object) Set(name string, v Value) {
	for i := range o.fields {
		if o.fields[i].Name == name {
			o.fields[i].Value = v
			return
		}
	}
	o.fields = append(o.fields, Field{Name: name, Value: v})
}

// At returns the i-th field in insertion order.
func (o *Object) At(i int) (Field, bool) {
	if i < 0 || i >= len(o.fields) {
		return Field{}, false
	}
	return o.fields[i], true
}

// Free marks the object freed; a second call reports failure.
func (o *Object) Free() bool { return o.freed.CompareAndSwap(false, true) }

// Freed reports whether Free has run.
func (o *Object) Freed() bool { return o.freed.Load() }

func (o *Object) format() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, f := range o.fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		if f.Value.Kind == ValString {
			sb.WriteByte('"')
			sb.WriteString(f.Value.AsString().Str())
			sb.WriteByte('"')
		} else {
			sb.WriteString(f.Value.Format())
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

// Buffer is a fixed-size byte region. Its mutex also serialises the
// atomic_* builtins, which are specified as sequentially consistent.
type Buffer struct {
	data  []byte
	mu    sync.Mutex
	freed atomic.Bool
}

// NewBuffer allocates a zeroed buffer of size bytes.
func NewBuffer(size int) *Buffer {
	return &Buffer{data: make([]byte, size)}
}

// Data returns the backing bytes.
func (b *Buffer) Data() []byte { return b.data }

// Lock/Unlock expose the buffer mutex for atomic builtins.
func (b *Buffer) Lock()   { b.mu.Lock() }
func (b *Buffer) Unlock() { b.mu.Unlock() }

// Resize grows or shrinks the buffer in place, preserving a prefix.
func (b *Buffer) Resize(size int) {
	if size <= len(b.data) {
		b.data = b.data[:size]
		return
	}
	grown := make([]byte, size)
	copy(grown, b.data)
	b.data = grown
}

// Free marks the buffer freed; a second call reports failure.
func (b *Buffer) Free() bool { return b.freed.CompareAndSwap(false, true) }

// Freed reports whether Free has run.
func (b *Buffer) Freed() bool { return b.freed.Load() }

// Pointer addresses a byte offset inside a VM-managed buffer. The null
// pointer has a nil Buf. Pointers are plain values: copying one never
// copies the buffer.
type Pointer struct {
	Buf *Buffer
	Off int64
}

// IsNull reports the null pointer.
func (p Pointer) IsNull() bool { return p.Buf == nil }

// FileHandle wraps an open file. Handles are single-owner; operations
// after Close raise catchable errors.
type FileHandle struct {
	f      *os.File
	path   string
	closed bool
}

// NewFileHandle wraps f.
func NewFileHandle(f *os.File, path string) *FileHandle {
	return &FileHandle{f: f, path: path}
}

// Path returns the path the handle was opened with.
func (h *FileHandle) Path() string { return h.path }

// File returns the underlying descriptor, or nil after Close.
func (h *FileHandle) File() *os.File {
	if h.closed {
		return nil
	}
	return h.f
}

// Closed reports whether Close has run.
func (h *FileHandle) Closed() bool { return h.closed }

// Close closes the handle; a second call reports failure.
func (h *FileHandle) Close() error {
	if h.closed {
		return errFileClosed
	}
	h.closed = true
	return h.f.Close()
}

// Closure pairs a function chunk with its captured upvalues.
type Closure struct {
	Chunk    *Chunk
	Upvalues []*Upvalue
}

// Upvalue mediates a captured variable. Open: Location indexes a live
// stack slot of the owning VM (owner). Closed: Location is -1 and Closed
// holds the value. The transition is one-way. Closures can cross task
// boundaries, so reads and writes go through owner even from another
// task's interpreter.
type Upvalue struct {
	Location int
	Closed   Value
	owner    *VM

	// Next links the VM's open-upvalue list, sorted by Location
	// descending.
	Next *Upvalue
}

// Get reads through the upvalue regardless of its state.
func (uv *Upvalue) Get() Value {
	if uv.Location >= 0 {
		return uv.owner.stack[uv.Location]
	}
	return uv.Closed
}

// Set writes through the upvalue regardless of its state.
func (uv *Upvalue) Set(v Value) {
	if uv.Location >= 0 {
		uv.owner.stack[uv.Location] = v
		return
	}
	uv.Closed = v
}

// deepCopyValue copies arrays, objects, strings and buffers for
// cross-task isolation. Channels, tasks, closures, pointers and
// primitives pass through by reference/value.
func deepCopyValue(v Value) Value {
	switch v.Kind {
	case ValArray:
		src := v.AsArray()
		items := make([]Value, len(src.Items()))
		for i, it := range src.Items() {
			items[i] = deepCopyValue(it)
		}
		return ArrayVal(NewArray(items))
	case ValObject:
		src := v.AsObject()
		fields := make([]Field, len(src.Fields()))
		for i, f := range src.Fields() {
			fields[i] = Field{Name: f.Name, Value: deepCopyValue(f.Value)}
		}
		dst := NewObject(fields)
		dst.SetTypeName(src.TypeName())
		return ObjectVal(dst)
	case ValString:
		return StrVal(v.AsString().Str())
	case ValBuffer:
		src := v.AsBuffer()
		dst := NewBuffer(len(src.Data()))
		copy(dst.Data(), src.Data())
		return BufferVal(dst)
	default:
		return v
	}
}
