// Package vm implements the Hemlock bytecode compiler and virtual machine.
package vm

// Opcode represents a single VM instruction.
//
// Encoding: one opcode byte followed by 0-4 inline operand bytes, plus two
// bytes per captured upvalue after OP_CLOSURE. Short
// operands are big-endian. Jump operands are forward-positive offsets from
// the position just after the offset bytes; OP_LOOP is backward-positive.
type Opcode byte

const (
	// Loads
	OP_CONST         Opcode = iota // u16 pool index
	OP_CONST_BYTE                  // u8 inline integer 0..255
	OP_NULL                        // push null
	OP_TRUE                        // push true
	OP_FALSE                       // push false
	OP_ARRAY                       // u16 n: pop n elements, push array
	OP_OBJECT                      // u16 n: pop 2n key/value pairs, push object
	OP_CLOSURE                     // u16 chunk idx, u8 upvalue count, then (isLocal, index) pairs
	OP_STRING_INTERP               // u16 n: pop n parts, coerce + concat

	// Variables
	OP_GET_LOCAL     // u8 slot
	OP_SET_LOCAL     // u8 slot (peeks, does not pop)
	OP_GET_UPVALUE   // u8 index
	OP_SET_UPVALUE   // u8 index (peeks)
	OP_GET_GLOBAL    // u16 name idx
	OP_SET_GLOBAL    // u16 name idx (peeks)
	OP_DEFINE_GLOBAL // u16 name idx (pops)
	OP_GET_PROPERTY  // u16 name idx
	OP_SET_PROPERTY  // u16 name idx: pops value+object, pushes value
	OP_GET_INDEX     // pops index+object, pushes element
	OP_SET_INDEX     // pops value+index+object, pushes value
	OP_GET_SELF      // push current self
	OP_SET_SELF      // pop into current self slot
	OP_GET_KEY       // pops index+iterable, pushes field name (object) or index (array)
	OP_SET_OBJ_TYPE  // u16 name idx: tag object on top with a type name

	// Arithmetic / comparison
	OP_ADD
	OP_SUB
	OP_MUL
	OP_DIV // always yields f64
	OP_MOD
	OP_NEGATE
	OP_EQ
	OP_NE
	OP_LT
	OP_LE
	OP_GT
	OP_GE
	OP_NOT
	OP_BIT_AND
	OP_BIT_OR
	OP_BIT_XOR
	OP_BIT_NOT
	OP_LSHIFT
	OP_RSHIFT

	// i32 fast paths; fall back to the generic op on other operand kinds
	OP_ADD_I32
	OP_SUB_I32
	OP_MUL_I32
	OP_EQ_I32
	OP_LT_I32

	// Stack ops
	OP_POP
	OP_POPN // u8 n
	OP_DUP
	OP_DUP2
	OP_SWAP
	OP_BURY3 // [a b c] -> [c a b]
	OP_ROT3  // [a b c] -> [b c a]

	// Control flow
	OP_JUMP           // u16 forward
	OP_JUMP_IF_FALSE  // u16 forward (peeks)
	OP_JUMP_IF_TRUE   // u16 forward (peeks)
	OP_LOOP           // u16 backward
	OP_COALESCE       // u16: skip when top is NOT null
	OP_OPTIONAL_CHAIN // u16: skip when top IS null (null stays)

	// Calls
	OP_CALL         // u8 argc
	OP_CALL_BUILTIN // u16 builtin id, u8 argc
	OP_CALL_METHOD  // u16 name idx, u8 argc
	OP_PRINT        // u8 argc
	OP_RETURN

	// Exceptions / defer
	OP_TRY // u16 catch offset, u16 finally offset
	OP_THROW
	OP_CATCH
	OP_FINALLY
	OP_END_TRY
	OP_DEFER
	OP_AWAIT

	// Misc
	OP_CAST // u8 type id
	OP_TYPEOF
	OP_CLOSE_UPVALUE
	OP_HALT
	OP_NOP
)

// OpcodeNames maps opcodes to their string names (for the disassembler).
var OpcodeNames = map[Opcode]string{
	OP_CONST:         "CONST",
	OP_CONST_BYTE:    "CONST_BYTE",
	OP_NULL:          "NULL",
	OP_TRUE:          "TRUE",
	OP_FALSE:         "FALSE",
	OP_ARRAY:         "ARRAY",
	OP_OBJECT:        "OBJECT",
	OP_CLOSURE:       "CLOSURE",
	OP_STRING_INTERP: "STRING_INTERP",

	OP_GET_LOCAL:     "GET_LOCAL",
	OP_SET_LOCAL:     "SET_LOCAL",
	OP_GET_UPVALUE:   "GET_UPVALUE",
	OP_SET_UPVALUE:   "SET_UPVALUE",
	OP_GET_GLOBAL:    "GET_GLOBAL",
	OP_SET_GLOBAL:    "SET_GLOBAL",
	OP_DEFINE_GLOBAL: "DEFINE_GLOBAL",
	OP_GET_PROPERTY:  "GET_PROPERTY",
	OP_SET_PROPERTY:  "SET_PROPERTY",
	OP_GET_INDEX:     "GET_INDEX",
	OP_SET_INDEX:     "SET_INDEX",
	OP_GET_SELF:      "GET_SELF",
	OP_SET_SELF:      "SET_SELF",
	OP_GET_KEY:       "GET_KEY",
	OP_SET_OBJ_TYPE:  "SET_OBJ_TYPE",

	OP_ADD:     "ADD",
	OP_SUB:     "SUB",
	OP_MUL:     "MUL",
	OP_DIV:     "DIV",
	OP_MOD:     "MOD",
	OP_NEGATE:  "NEGATE",
	OP_EQ:      "EQ",
	OP_NE:      "NE",
	OP_LT:      "LT",
	OP_LE:      "LE",
	OP_GT:      "GT",
	OP_GE:      "GE",
	OP_NOT:     "NOT",
	OP_BIT_AND: "BIT_AND",
	OP_BIT_OR:  "BIT_OR",
	OP_BIT_XOR: "BIT_XOR",
	OP_BIT_NOT: "BIT_NOT",
	OP_LSHIFT:  "LSHIFT",
	OP_RSHIFT:  "RSHIFT",

	OP_ADD_I32: "ADD_I32",
	OP_SUB_I32: "SUB_I32",
	OP_MUL_I32: "MUL_I32",
	OP_EQ_I32:  "EQ_I32",
	OP_LT_I32:  "LT_I32",

	OP_POP:   "POP",
	OP_POPN:  "POPN",
	OP_DUP:   "DUP",
	OP_DUP2:  "DUP2",
	OP_SWAP:  "SWAP",
	OP_BURY3: "BURY3",
	OP_ROT3:  "ROT3",

	OP_JUMP:           "JUMP",
	OP_JUMP_IF_FALSE:  "JUMP_IF_FALSE",
	OP_JUMP_IF_TRUE:   "JUMP_IF_TRUE",
	OP_LOOP:           "LOOP",
	OP_COALESCE:       "COALESCE",
	OP_OPTIONAL_CHAIN: "OPTIONAL_CHAIN",

	OP_CALL:         "CALL",
	OP_CALL_BUILTIN: "CALL_BUILTIN",
	OP_CALL_METHOD:  "CALL_METHOD",
	OP_PRINT:        "PRINT",
	OP_RETURN:       "RETURN",

	OP_TRY:     "TRY",
	OP_THROW:   "THROW",
	OP_CATCH:   "CATCH",
	OP_FINALLY: "FINALLY",
	OP_END_TRY: "END_TRY",
	OP_DEFER:   "DEFER",
	OP_AWAIT:   "AWAIT",

	OP_CAST:          "CAST",
	OP_TYPEOF:        "TYPEOF",
	OP_CLOSE_UPVALUE: "CLOSE_UPVALUE",
	OP_HALT:          "HALT",
	OP_NOP:           "NOP",
}
