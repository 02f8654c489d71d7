package vm

import "github.com/google/uuid"

func init() {
	registerBuiltins([]Builtin{
		{Name: "uuid", Arity: 0, Fn: builtinUUID},
		{Name: "uuid_v7", Arity: 0, Fn: builtinUUIDv7},
	})
}

func builtinUUID(vm *VM, args []Value) (Value, error) {
	return StrVal(uuid.NewString()), nil
}

func builtinUUIDv7(vm *VM, args []Value) (Value, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return NullVal(), Throw("uuid_v7 failed: %s", err)
	}
	return StrVal(id.String()), nil
}
