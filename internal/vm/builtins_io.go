package vm

import (
	"os"
)

func init() {
	registerBuiltins([]Builtin{
		{Name: "open", Arity: -1, Fn: builtinOpen},
		{Name: "read_file", Arity: 1, Fn: builtinReadFile},
		{Name: "write_file", Arity: 2, Fn: builtinWriteFile},
		{Name: "append_file", Arity: 2, Fn: builtinAppendFile},
		{Name: "remove_file", Arity: 1, Fn: builtinRemoveFile},
		{Name: "cwd", Arity: 0, Fn: builtinCwd},
		{Name: "chdir", Arity: 1, Fn: builtinChdir},
		{Name: "rename", Arity: 2, Fn: builtinRename},
		{Name: "make_dir", Arity: 1, Fn: builtinMakeDir},
		{Name: "remove_dir", Arity: 1, Fn: builtinRemoveDir},
		{Name: "list_dir", Arity: 1, Fn: builtinListDir},
		{Name: "exists", Arity: 1, Fn: builtinExists},
		{Name: "is_file", Arity: 1, Fn: builtinIsFile},
		{Name: "is_dir", Arity: 1, Fn: builtinIsDir},
	})
}

func wantString(name string, v Value) (string, error) {
	if v.Kind != ValString {
		return "", Throw("%s expects a string, got %s", name, v.TypeName())
	}
	return v.AsString().Str(), nil
}

// open(path, mode="r") returns a file handle. Modes: r, w, a, r+.
func builtinOpen(vm *VM, args []Value) (Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return NullVal(), Throw("open expects a path and an optional mode")
	}
	path, err := wantString("open", args[0])
	if err != nil {
		return NullVal(), err
	}
	mode := "r"
	if len(args) == 2 {
		mode, err = wantString("open", args[1])
		if err != nil {
			return NullVal(), err
		}
	}

	var flag int
	switch mode {
	case "r":
		flag = os.O_RDONLY
	case "w":
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case "a":
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case "r+":
		flag = os.O_RDWR
	default:
		return NullVal(), Throw("open: unknown mode %q", mode)
	}

	f, ferr := os.OpenFile(path, flag, 0o644)
	if ferr != nil {
		return NullVal(), Throw("Cannot open file '%s': %s", path, ferr)
	}
	return FileVal(NewFileHandle(f, path)), nil
}

func builtinReadFile(vm *VM, args []Value) (Value, error) {
	path, err := wantString("read_file", args[0])
	if err != nil {
		return NullVal(), err
	}
	data, ferr := os.ReadFile(path)
	if ferr != nil {
		return NullVal(), Throw("Cannot read file '%s': %s", path, ferr)
	}
	return StrVal(string(data)), nil
}

func builtinWriteFile(vm *VM, args []Value) (Value, error) {
	path, err := wantString("write_file", args[0])
	if err != nil {
		return NullVal(), err
	}
	if ferr := os.WriteFile(path, []byte(args[1].Format()), 0o644); ferr != nil {
		return NullVal(), Throw("Cannot write file '%s': %s", path, ferr)
	}
	return NullVal(), nil
}

func builtinAppendFile(vm *VM, args []Value) (Value, error) {
	path, err := wantString("append_file", args[0])
	if err != nil {
		return NullVal(), err
	}
	f, ferr := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if ferr != nil {
		return NullVal(), Throw("Cannot open file '%s': %s", path, ferr)
	}
	defer f.Close()
	if _, ferr := f.WriteString(args[1].Format()); ferr != nil {
		return NullVal(), Throw("Cannot write file '%s': %s", path, ferr)
	}
	return NullVal(), nil
}

func builtinRemoveFile(vm *VM, args []Value) (Value, error) {
	path, err := wantString("remove_file", args[0])
	if err != nil {
		return NullVal(), err
	}
	if ferr := os.Remove(path); ferr != nil {
		return NullVal(), Throw("Cannot remove '%s': %s", path, ferr)
	}
	return NullVal(), nil
}

func builtinCwd(vm *VM, args []Value) (Value, error) {
	dir, err := os.Getwd()
	if err != nil {
		return NullVal(), Throw("cwd failed: %s", err)
	}
	return StrVal(dir), nil
}

func builtinChdir(vm *VM, args []Value) (Value, error) {
	path, err := wantString("chdir", args[0])
	if err != nil {
		return NullVal(), err
	}
	if ferr := os.Chdir(path); ferr != nil {
		return NullVal(), Throw("Cannot chdir to '%s': %s", path, ferr)
	}
	return NullVal(), nil
}

func builtinRename(vm *VM, args []Value) (Value, error) {
	from, err := wantString("rename", args[0])
	if err != nil {
		return NullVal(), err
	}
	to, err := wantString("rename", args[1])
	if err != nil {
		return NullVal(), err
	}
	if ferr := os.Rename(from, to); ferr != nil {
		return NullVal(), Throw("Cannot rename '%s': %s", from, ferr)
	}
	return NullVal(), nil
}

func builtinMakeDir(vm *VM, args []Value) (Value, error) {
	path, err := wantString("make_dir", args[0])
	if err != nil {
		return NullVal(), err
	}
	if ferr := os.MkdirAll(path, 0o755); ferr != nil {
		return NullVal(), Throw("Cannot create directory '%s': %s", path, ferr)
	}
	return NullVal(), nil
}

func builtinRemoveDir(vm *VM, args []Value) (Value, error) {
	path, err := wantString("remove_dir", args[0])
	if err != nil {
		return NullVal(), err
	}
	if ferr := os.Remove(path); ferr != nil {
		return NullVal(), Throw("Cannot remove directory '%s': %s", path, ferr)
	}
	return NullVal(), nil
}

func builtinListDir(vm *VM, args []Value) (Value, error) {
	path, err := wantString("list_dir", args[0])
	if err != nil {
		return NullVal(), err
	}
	entries, ferr := os.ReadDir(path)
	if ferr != nil {
		return NullVal(), Throw("Cannot list directory '%s': %s", path, ferr)
	}
	out := make([]Value, len(entries))
	for i, e := range entries {
		out[i] = StrVal(e.Name())
	}
	return ArrayVal(NewArray(out)), nil
}

func builtinExists(vm *VM, args []Value) (Value, error) {
	path, err := wantString("exists", args[0])
	if err != nil {
		return NullVal(), err
	}
	_, ferr := os.Stat(path)
	return BoolVal(ferr == nil), nil
}

func builtinIsFile(vm *VM, args []Value) (Value, error) {
	path, err := wantString("is_file", args[0])
	if err != nil {
		return NullVal(), err
	}
	info, ferr := os.Stat(path)
	return BoolVal(ferr == nil && info.Mode().IsRegular()), nil
}

func builtinIsDir(vm *VM, args []Value) (Value, error) {
	path, err := wantString("is_dir", args[0])
	if err != nil {
		return NullVal(), err
	}
	info, ferr := os.Stat(path)
	return BoolVal(ferr == nil && info.IsDir()), nil
}
