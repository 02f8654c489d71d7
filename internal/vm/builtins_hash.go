package vm

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
)

func init() {
	registerBuiltins([]Builtin{
		{Name: "sha256", Arity: 1, Fn: hashBuiltin(func(b []byte) []byte { h := sha256.Sum256(b); return h[:] })},
		{Name: "sha512", Arity: 1, Fn: hashBuiltin(func(b []byte) []byte { h := sha512.Sum512(b); return h[:] })},
		{Name: "md5", Arity: 1, Fn: hashBuiltin(func(b []byte) []byte { h := md5.Sum(b); return h[:] })},
	})
}

// hashBuiltin digests a string or buffer and returns the hex digest.
func hashBuiltin(sum func([]byte) []byte) BuiltinFn {
	return func(vm *VM, args []Value) (Value, error) {
		var data []byte
		switch v := args[0]; v.Kind {
		case ValString:
			data = []byte(v.AsString().Str())
		case ValBuffer:
			if v.AsBuffer().Freed() {
				return NullVal(), Throw("use after free: buffer")
			}
			data = v.AsBuffer().Data()
		default:
			return NullVal(), Throw("hash builtins expect a string or buffer, got %s", v.TypeName())
		}
		return StrVal(hex.EncodeToString(sum(data))), nil
	}
}
