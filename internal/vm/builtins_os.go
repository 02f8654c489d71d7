package vm

import (
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"
)

func init() {
	registerBuiltins([]Builtin{
		{Name: "get_pid", Arity: 0, Fn: builtinGetPid},
		{Name: "getppid", Arity: 0, Fn: builtinGetPpid},
		{Name: "getuid", Arity: 0, Fn: builtinGetUid},
		{Name: "geteuid", Arity: 0, Fn: builtinGetEuid},
		{Name: "getenv", Arity: 1, Fn: builtinGetenv},
		{Name: "setenv", Arity: 2, Fn: builtinSetenv},
		{Name: "unsetenv", Arity: 1, Fn: builtinUnsetenv},
		{Name: "platform", Arity: 0, Fn: builtinPlatform},
		{Name: "arch", Arity: 0, Fn: builtinArch},
		{Name: "exec", Arity: 1, Fn: builtinExec},
		{Name: "exec_argv", Arity: 1, Fn: builtinExecArgv},
		{Name: "raise", Arity: 1, Fn: builtinRaise},
		{Name: "signal", Arity: 2, Fn: builtinSignal},
		{Name: "now", Arity: 0, Fn: builtinNow},
		{Name: "time_ms", Arity: 0, Fn: builtinTimeMs},
		{Name: "sleep", Arity: 1, Fn: builtinSleep},
		{Name: "clock", Arity: 0, Fn: builtinClock},
	})
}

func builtinGetPid(vm *VM, args []Value) (Value, error) {
	return I32Val(int32(os.Getpid())), nil
}

func builtinGetPpid(vm *VM, args []Value) (Value, error) {
	return I32Val(int32(os.Getppid())), nil
}

func builtinGetUid(vm *VM, args []Value) (Value, error) {
	return I32Val(int32(os.Getuid())), nil
}

func builtinGetEuid(vm *VM, args []Value) (Value, error) {
	return I32Val(int32(os.Geteuid())), nil
}

func builtinGetenv(vm *VM, args []Value) (Value, error) {
	name, err := wantString("getenv", args[0])
	if err != nil {
		return NullVal(), err
	}
	if v, ok := os.LookupEnv(name); ok {
		return StrVal(v), nil
	}
	return NullVal(), nil
}

func builtinSetenv(vm *VM, args []Value) (Value, error) {
	name, err := wantString("setenv", args[0])
	if err != nil {
		return NullVal(), err
	}
	if serr := os.Setenv(name, args[1].Format()); serr != nil {
		return NullVal(), Throw("setenv failed: %s", serr)
	}
	return NullVal(), nil
}

func builtinUnsetenv(vm *VM, args []Value) (Value, error) {
	name, err := wantString("unsetenv", args[0])
	if err != nil {
		return NullVal(), err
	}
	os.Unsetenv(name)
	return NullVal(), nil
}

func builtinPlatform(vm *VM, args []Value) (Value, error) {
	return StrVal(runtime.GOOS), nil
}

func builtinArch(vm *VM, args []Value) (Value, error) {
	return StrVal(runtime.GOARCH), nil
}

// execResult wraps a finished command as {code, stdout, stderr}.
func execResult(cmd *exec.Cmd) (Value, error) {
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	code := 0
	if err := cmd.Run(); err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return NullVal(), Throw("exec failed: %s", err)
		}
		code = exitErr.ExitCode()
	}
	obj := NewObject([]Field{
		{Name: "code", Value: I32Val(int32(code))},
		{Name: "stdout", Value: StrVal(stdout.String())},
		{Name: "stderr", Value: StrVal(stderr.String())},
	})
	return ObjectVal(obj), nil
}

// exec runs a command line through the shell.
func builtinExec(vm *VM, args []Value) (Value, error) {
	line, err := wantString("exec", args[0])
	if err != nil {
		return NullVal(), err
	}
	return execResult(exec.Command("/bin/sh", "-c", line))
}

// exec_argv runs an argv array without a shell.
func builtinExecArgv(vm *VM, args []Value) (Value, error) {
	if args[0].Kind != ValArray {
		return NullVal(), Throw("exec_argv expects an array of strings")
	}
	items := args[0].AsArray().Items()
	if len(items) == 0 {
		return NullVal(), Throw("exec_argv expects a non-empty argv")
	}
	argv := make([]string, len(items))
	for i, it := range items {
		s, err := wantString("exec_argv", it)
		if err != nil {
			return NullVal(), err
		}
		argv[i] = s
	}
	return execResult(exec.Command(argv[0], argv[1:]...))
}

func builtinRaise(vm *VM, args []Value) (Value, error) {
	sig := syscall.Signal(args[0].AsInt())
	if err := syscall.Kill(os.Getpid(), sig); err != nil {
		return NullVal(), Throw("raise failed: %s", err)
	}
	return NullVal(), nil
}

// signal(sig, handler) registers an async-function handler for a signal;
// the handler runs as a detached task when the signal arrives.
func builtinSignal(vm *VM, args []Value) (Value, error) {
	if args[1].Kind != ValFunction {
		return NullVal(), Throw("signal expects a function handler")
	}
	closure := args[1].AsClosure()
	if !closure.Chunk.IsAsync {
		return NullVal(), Throw("signal handler must be an async function")
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.Signal(args[0].AsInt()))
	go func() {
		for range ch {
			t, err := vm.spawnTask(closure, nil)
			if err != nil {
				continue
			}
			t.mu.Lock()
			t.detached = true
			t.mu.Unlock()
		}
	}()
	return NullVal(), nil
}

func builtinNow(vm *VM, args []Value) (Value, error) {
	return I64Val(time.Now().Unix()), nil
}

func builtinTimeMs(vm *VM, args []Value) (Value, error) {
	return I64Val(time.Now().UnixMilli()), nil
}

func builtinSleep(vm *VM, args []Value) (Value, error) {
	ms := args[0].AsFloat()
	if ms < 0 {
		return NullVal(), Throw("sleep expects a non-negative duration")
	}
	time.Sleep(time.Duration(ms * float64(time.Millisecond)))
	return NullVal(), nil
}

var processStart = time.Now()

func builtinClock(vm *VM, args []Value) (Value, error) {
	return F64Val(time.Since(processStart).Seconds()), nil
}
