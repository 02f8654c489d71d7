package vm

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

func init() {
	registerBuiltins([]Builtin{
		{Name: "print", Arity: -1, Fn: builtinPrint},
		{Name: "eprint", Arity: -1, Fn: builtinEprint},
		{Name: "assert", Arity: -1, Fn: builtinAssert},
		{Name: "panic", Arity: 1, Fn: builtinPanic},
		{Name: "typeof", Arity: 1, Fn: builtinTypeof},
		{Name: "exit", Arity: 1, Fn: builtinExit},
		{Name: "apply", Arity: 2, Fn: builtinApplyStub},
		{Name: "read_line", Arity: 0, Fn: builtinReadLine},
		{Name: "string_concat_many", Arity: -1, Fn: builtinStringConcatMany},
		{Name: "is_tty", Arity: 0, Fn: builtinIsTTY},
	})
}

func builtinPrint(vm *VM, args []Value) (Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Format()
	}
	fmt.Fprintln(vm.out, strings.Join(parts, " "))
	return NullVal(), nil
}

func builtinEprint(vm *VM, args []Value) (Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Format()
	}
	fmt.Fprintln(vm.errOut, strings.Join(parts, " "))
	return NullVal(), nil
}

func builtinAssert(vm *VM, args []Value) (Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return NullVal(), Throw("assert expects a condition and an optional message")
	}
	if args[0].IsTruthy() {
		return NullVal(), nil
	}
	msg := "assertion failed"
	if len(args) == 2 {
		msg = "assertion failed: " + args[1].Format()
	}
	return NullVal(), Throw("%s", msg)
}

// panic terminates the program; it is not catchable.
func builtinPanic(vm *VM, args []Value) (Value, error) {
	return NullVal(), &FatalError{Msg: args[0].Format()}
}

func builtinTypeof(vm *VM, args []Value) (Value, error) {
	return StrVal(args[0].TypeName()), nil
}

func builtinExit(vm *VM, args []Value) (Value, error) {
	return NullVal(), &ExitError{Code: int(args[0].AsInt())}
}

// builtinApplyStub is not reached by CALL or CALL_BUILTIN: callBuiltin
// intercepts apply so the frame it reconstructs is sequenced correctly.
// callCallback invokes table entries directly, so apply passed as a
// callback reaches this stub and raises a fatal error.
func builtinApplyStub(vm *VM, args []Value) (Value, error) {
	return NullVal(), &FatalError{Msg: "apply must be dispatched by the interpreter loop"}
}

func builtinReadLine(vm *VM, args []Value) (Value, error) {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return NullVal(), nil
	}
	return StrVal(strings.TrimRight(line, "\n")), nil
}

func builtinStringConcatMany(vm *VM, args []Value) (Value, error) {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(a.Format())
	}
	return StrVal(sb.String()), nil
}

func builtinIsTTY(vm *VM, args []Value) (Value, error) {
	return BoolVal(isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())), nil
}
