package vm

import (
	"strings"
	"testing"
)

// findOps collects the opcodes of a chunk in order, skipping operands.
func findOps(chunk *Chunk) []Opcode {
	var ops []Opcode
	offset := 0
	for offset < len(chunk.Code) {
		op := Opcode(chunk.Code[offset])
		ops = append(ops, op)
		offset += 1 + operandWidth(chunk, op, offset)
	}
	return ops
}

func operandWidth(chunk *Chunk, op Opcode, offset int) int {
	switch op {
	case OP_CONST_BYTE, OP_GET_LOCAL, OP_SET_LOCAL, OP_GET_UPVALUE,
		OP_SET_UPVALUE, OP_POPN, OP_CALL, OP_PRINT, OP_CAST:
		return 1
	case OP_CONST, OP_GET_GLOBAL, OP_SET_GLOBAL, OP_GET_PROPERTY,
		OP_SET_PROPERTY, OP_SET_OBJ_TYPE, OP_ARRAY, OP_OBJECT,
		OP_STRING_INTERP, OP_JUMP, OP_JUMP_IF_FALSE, OP_JUMP_IF_TRUE,
		OP_LOOP, OP_COALESCE, OP_OPTIONAL_CHAIN:
		return 2
	case OP_DEFINE_GLOBAL, OP_CALL_BUILTIN, OP_CALL_METHOD:
		return 3
	case OP_TRY:
		return 4
	case OP_CLOSURE:
		return 3 + 2*int(chunk.Code[offset+3])
	default:
		return 0
	}
}

func TestNumericConstantPolicy(t *testing.T) {
	// 0..255 inline
	chunk := compile(t, "200;")
	ops := findOps(chunk)
	if ops[0] != OP_CONST_BYTE {
		t.Errorf("small ints should use CONST_BYTE, got %s", OpcodeNames[ops[0]])
	}

	// fits i32 -> pooled i32
	chunk = compile(t, "70000;")
	if Opcode(chunk.Code[0]) != OP_CONST {
		t.Fatalf("expected CONST for 70000")
	}
	if c := chunk.Constants[chunk.ReadShort(1)]; c.Kind != ValI32 {
		t.Errorf("70000 should pool as i32, got %s", c.TypeName())
	}

	// beyond i32 -> i64
	chunk = compile(t, "5000000000;")
	if c := chunk.Constants[chunk.ReadShort(1)]; c.Kind != ValI64 {
		t.Errorf("5000000000 should pool as i64, got %s", c.TypeName())
	}

	// non-integer -> f64
	chunk = compile(t, "1.25;")
	if c := chunk.Constants[chunk.ReadShort(1)]; c.Kind != ValF64 {
		t.Errorf("1.25 should pool as f64, got %s", c.TypeName())
	}
}

func TestNoUnpatchedJumps(t *testing.T) {
	srcs := []string{
		"if (true) { 1; } else { 2; }",
		"let i = 0; while (i < 3) { i = i + 1; if (i == 2) { continue; } }",
		"for (let i = 0; i < 3; i = i + 1) { if (i == 1) { break; } }",
		"let x = 1; switch (x) { case 1: 1; break; default: 2; }",
		"try { 1; } catch (e) { 2; } finally { 3; }",
		"null ?? 1;",
		"let o = {a: 1}; o?.a;",
	}
	for _, src := range srcs {
		chunk := compile(t, src)
		checkJumps(t, chunk, src)
	}
}

func checkJumps(t *testing.T, chunk *Chunk, src string) {
	t.Helper()
	offset := 0
	for offset < len(chunk.Code) {
		op := Opcode(chunk.Code[offset])
		switch op {
		case OP_JUMP, OP_JUMP_IF_FALSE, OP_JUMP_IF_TRUE, OP_COALESCE, OP_OPTIONAL_CHAIN:
			target := offset + 3 + chunk.ReadShort(offset+1)
			if chunk.ReadShort(offset+1) == 0xffff {
				t.Errorf("%q: unpatched jump at %d", src, offset)
			}
			if target > len(chunk.Code) {
				t.Errorf("%q: jump at %d lands past the end (%d > %d)", src, offset, target, len(chunk.Code))
			}
		case OP_LOOP:
			target := offset + 3 - chunk.ReadShort(offset+1)
			if target < 0 {
				t.Errorf("%q: loop at %d lands before the start", src, offset)
			}
		}
		offset += 1 + operandWidth(chunk, op, offset)
	}
	for _, c := range chunk.Constants {
		if c.Kind == valProto {
			checkJumps(t, c.asProto(), src)
		}
	}
}

func TestLocalSlotsWithinLocalCount(t *testing.T) {
	chunk := compile(t, `
		let f = fn(a, b) {
			let c = a + b;
			{ let d = c * 2; c = d; }
			return c;
		};
		f(1, 2);
	`)
	checkLocals(t, chunk)
}

func checkLocals(t *testing.T, chunk *Chunk) {
	t.Helper()
	offset := 0
	for offset < len(chunk.Code) {
		op := Opcode(chunk.Code[offset])
		if op == OP_GET_LOCAL || op == OP_SET_LOCAL {
			slot := int(chunk.Code[offset+1])
			if slot >= chunk.LocalCount {
				t.Errorf("local slot %d out of range (LocalCount %d)", slot, chunk.LocalCount)
			}
		}
		if op == OP_GET_UPVALUE || op == OP_SET_UPVALUE {
			idx := int(chunk.Code[offset+1])
			if idx >= len(chunk.Upvalues) {
				t.Errorf("upvalue index %d out of range (%d descriptors)", idx, len(chunk.Upvalues))
			}
		}
		offset += 1 + operandWidth(chunk, op, offset)
	}
	for _, c := range chunk.Constants {
		if c.Kind == valProto {
			checkLocals(t, c.asProto())
		}
	}
}

func TestUpvalueDescriptors(t *testing.T) {
	chunk := compile(t, `
		let outer = fn() {
			let x = 1;
			let mid = fn() {
				let inner = fn() { return x; };
				return inner;
			};
			return mid;
		};
	`)

	var outer *Chunk
	for _, c := range chunk.Constants {
		if c.Kind == valProto {
			outer = c.asProto()
		}
	}
	if outer == nil {
		t.Fatalf("outer chunk not found")
	}
	var mid *Chunk
	for _, c := range outer.Constants {
		if c.Kind == valProto {
			mid = c.asProto()
		}
	}
	if mid == nil {
		t.Fatalf("mid chunk not found")
	}
	var inner *Chunk
	for _, c := range mid.Constants {
		if c.Kind == valProto {
			inner = c.asProto()
		}
	}
	if inner == nil {
		t.Fatalf("inner chunk not found")
	}

	// mid captures x from outer as a local; inner captures mid's upvalue.
	if len(mid.Upvalues) != 1 || !mid.Upvalues[0].IsLocal {
		t.Errorf("mid should capture one local upvalue, got %+v", mid.Upvalues)
	}
	if len(inner.Upvalues) != 1 || inner.Upvalues[0].IsLocal {
		t.Errorf("inner should capture one non-local upvalue, got %+v", inner.Upvalues)
	}
}

func TestIdentifierDeduplication(t *testing.T) {
	chunk := NewChunk("test")
	a := chunk.AddIdentifier("foo")
	b := chunk.AddIdentifier("foo")
	c := chunk.AddIdentifier("bar")
	if a != b {
		t.Errorf("identifiers should deduplicate: %d != %d", a, b)
	}
	if a == c {
		t.Errorf("distinct identifiers should get distinct slots")
	}
	// Plain strings are not required to deduplicate.
	s1 := chunk.AddString("foo")
	if s1 == a {
		t.Errorf("AddString should append a fresh constant")
	}
}

func TestPatchJumpRange(t *testing.T) {
	chunk := NewChunk("test")
	site := chunk.WriteJump(OP_JUMP, 1)
	for i := 0; i < 10; i++ {
		chunk.WriteOp(OP_NOP, 1)
	}
	if err := chunk.PatchJump(site); err != nil {
		t.Fatalf("patch failed: %s", err)
	}
	if got := chunk.ReadShort(site); got != 10 {
		t.Errorf("patched offset = %d, want 10", got)
	}
}

func TestLineTable(t *testing.T) {
	chunk := compile(t, "1;\n2;\n3;")
	if len(chunk.Lines) != len(chunk.Code) {
		t.Fatalf("line table must parallel code: %d lines, %d bytes", len(chunk.Lines), len(chunk.Code))
	}
	if chunk.GetLine(0) != 1 {
		t.Errorf("first instruction should be on line 1, got %d", chunk.GetLine(0))
	}
}

func TestDisassembleSmoke(t *testing.T) {
	chunk := compile(t, `
		let f = fn(x) { return x + 1; };
		print(f(41));
	`)
	listing := Disassemble(chunk, "smoke")
	for _, want := range []string{"== smoke ==", "CLOSURE", "RETURN", "PRINT"} {
		if !strings.Contains(listing, want) {
			t.Errorf("disassembly missing %q:\n%s", want, listing)
		}
	}
}

func TestCompileErrorsReported(t *testing.T) {
	cases := []string{
		"break;",
		"continue;",
		"let x = 1; let x = 2;",
		"const c = 1; c = 2;",
	}
	for _, src := range cases {
		if _, errs := CompileProgram(parse(t, src)); len(errs) == 0 {
			t.Errorf("%q: expected a compile error", src)
		}
	}
}

func TestFastPathOpsEmitted(t *testing.T) {
	chunk := compile(t, "let i = 0; i++;")
	found := false
	for _, op := range findOps(chunk) {
		if op == OP_ADD_I32 {
			found = true
		}
	}
	if !found {
		t.Errorf("postfix increment should use the ADD_I32 fast path")
	}
}
