package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of a chunk, recursing into
// nested function chunks.
func Disassemble(chunk *Chunk, name string) string {
	var sb strings.Builder
	disassembleChunk(&sb, chunk, name)
	return sb.String()
}

func disassembleChunk(sb *strings.Builder, chunk *Chunk, name string) {
	sb.WriteString(fmt.Sprintf("== %s ==\n", name))

	offset := 0
	for offset < len(chunk.Code) {
		offset = disassembleInstruction(sb, chunk, offset)
	}

	for _, c := range chunk.Constants {
		if c.Kind == valProto {
			child := c.asProto()
			sb.WriteByte('\n')
			disassembleChunk(sb, child, child.Name)
		}
	}
}

func disassembleInstruction(sb *strings.Builder, chunk *Chunk, offset int) int {
	sb.WriteString(fmt.Sprintf("%04d ", offset))

	if offset > 0 && chunk.Lines[offset] == chunk.Lines[offset-1] {
		sb.WriteString("   | ")
	} else {
		sb.WriteString(fmt.Sprintf("%4d ", chunk.Lines[offset]))
	}

	op := Opcode(chunk.Code[offset])
	name, known := OpcodeNames[op]
	if !known {
		sb.WriteString(fmt.Sprintf("UNKNOWN %d\n", op))
		return offset + 1
	}

	switch op {
	case OP_CONST:
		return constantInstruction(sb, name, chunk, offset)

	case OP_CONST_BYTE, OP_GET_LOCAL, OP_SET_LOCAL, OP_GET_UPVALUE,
		OP_SET_UPVALUE, OP_POPN, OP_CALL, OP_PRINT, OP_CAST:
		return byteInstruction(sb, name, chunk, offset)

	case OP_GET_GLOBAL, OP_SET_GLOBAL, OP_GET_PROPERTY, OP_SET_PROPERTY,
		OP_SET_OBJ_TYPE:
		return constantInstruction(sb, name, chunk, offset)

	case OP_DEFINE_GLOBAL:
		idx := chunk.ReadShort(offset + 1)
		isConst := chunk.Code[offset+3]
		sb.WriteString(fmt.Sprintf("%-16s %4d '%s' const=%d\n",
			name, idx, chunk.Constants[idx].Format(), isConst))
		return offset + 4

	case OP_ARRAY, OP_OBJECT, OP_STRING_INTERP:
		n := chunk.ReadShort(offset + 1)
		sb.WriteString(fmt.Sprintf("%-16s %4d\n", name, n))
		return offset + 3

	case OP_JUMP, OP_JUMP_IF_FALSE, OP_JUMP_IF_TRUE, OP_COALESCE, OP_OPTIONAL_CHAIN:
		return jumpInstruction(sb, name, 1, chunk, offset)
	case OP_LOOP:
		return jumpInstruction(sb, name, -1, chunk, offset)

	case OP_TRY:
		catchOff := chunk.ReadShort(offset + 1)
		finallyOff := chunk.ReadShort(offset + 3)
		sb.WriteString(fmt.Sprintf("%-16s catch->%04d finally->%04d\n",
			name, offset+3+catchOff, offset+5+finallyOff))
		return offset + 5

	case OP_CALL_BUILTIN:
		id := chunk.ReadShort(offset + 1)
		argc := chunk.Code[offset+3]
		sb.WriteString(fmt.Sprintf("%-16s %4d '%s' (%d args)\n", name, id, builtinName(id), argc))
		return offset + 4

	case OP_CALL_METHOD:
		idx := chunk.ReadShort(offset + 1)
		argc := chunk.Code[offset+3]
		sb.WriteString(fmt.Sprintf("%-16s %4d '%s' (%d args)\n",
			name, idx, chunk.Constants[idx].Format(), argc))
		return offset + 4

	case OP_CLOSURE:
		idx := chunk.ReadShort(offset + 1)
		upc := int(chunk.Code[offset+3])
		child := chunk.Constants[idx].asProto()
		sb.WriteString(fmt.Sprintf("%-16s %4d <fn %s> (%d upvalues)\n", name, idx, child.Name, upc))
		next := offset + 4
		for i := 0; i < upc; i++ {
			isLocal := chunk.Code[next]
			index := chunk.Code[next+1]
			kind := "upvalue"
			if isLocal == 1 {
				kind = "local"
			}
			sb.WriteString(fmt.Sprintf("%04d    |   %s %d\n", next, kind, index))
			next += 2
		}
		return next

	default:
		sb.WriteString(name)
		sb.WriteByte('\n')
		return offset + 1
	}
}

func constantInstruction(sb *strings.Builder, name string, chunk *Chunk, offset int) int {
	idx := chunk.ReadShort(offset + 1)
	c := chunk.Constants[idx]
	repr := c.Format()
	if c.Kind == ValString {
		repr = "\"" + repr + "\""
	}
	sb.WriteString(fmt.Sprintf("%-16s %4d %s\n", name, idx, repr))
	return offset + 3
}

func byteInstruction(sb *strings.Builder, name string, chunk *Chunk, offset int) int {
	sb.WriteString(fmt.Sprintf("%-16s %4d\n", name, chunk.Code[offset+1]))
	return offset + 2
}

func jumpInstruction(sb *strings.Builder, name string, sign int, chunk *Chunk, offset int) int {
	jump := chunk.ReadShort(offset + 1)
	sb.WriteString(fmt.Sprintf("%-16s %4d -> %d\n", name, offset, offset+3+sign*jump))
	return offset + 3
}
