package vm

import "fmt"

func init() {
	registerBuiltins([]Builtin{
		{Name: "spawn", Arity: -1, Fn: builtinSpawn},
		{Name: "join", Arity: 1, Fn: builtinJoin},
		{Name: "detach", Arity: -1, Fn: builtinDetach},
		{Name: "await", Arity: 1, Fn: builtinAwait},
		{Name: "channel", Arity: -1, Fn: builtinChannel},
		{Name: "select", Arity: -1, Fn: builtinSelect},
		{Name: "task_debug_info", Arity: 1, Fn: builtinTaskDebugInfo},
	})
}

func builtinSpawn(vm *VM, args []Value) (Value, error) {
	if len(args) < 1 {
		return NullVal(), Throw("spawn expects a function")
	}
	if args[0].Kind != ValFunction {
		return NullVal(), Throw("spawn expects a function, got %s", args[0].TypeName())
	}
	t, err := vm.spawnTask(args[0].AsClosure(), args[1:])
	if err != nil {
		return NullVal(), err
	}
	return TaskVal(t), nil
}

func builtinJoin(vm *VM, args []Value) (Value, error) {
	if args[0].Kind != ValTask {
		return NullVal(), Throw("join expects a task, got %s", args[0].TypeName())
	}
	return vm.joinTask(args[0].AsTask())
}

// detach(task) releases an existing task; detach(async_fn, ...) spawns
// first and then detaches.
func builtinDetach(vm *VM, args []Value) (Value, error) {
	if len(args) < 1 {
		return NullVal(), Throw("detach expects a task or a function")
	}
	switch args[0].Kind {
	case ValTask:
		if len(args) != 1 {
			return NullVal(), Throw("detach expects exactly one task")
		}
		return NullVal(), vm.detachTask(args[0].AsTask())
	case ValFunction:
		t, err := vm.spawnTask(args[0].AsClosure(), args[1:])
		if err != nil {
			return NullVal(), err
		}
		if err := vm.detachTask(t); err != nil {
			return NullVal(), err
		}
		return NullVal(), nil
	default:
		return NullVal(), Throw("detach expects a task or a function, got %s", args[0].TypeName())
	}
}

func builtinAwait(vm *VM, args []Value) (Value, error) {
	if args[0].Kind != ValTask {
		return NullVal(), Throw("Cannot await %s", args[0].TypeName())
	}
	return vm.joinTask(args[0].AsTask())
}

func builtinChannel(vm *VM, args []Value) (Value, error) {
	capacity := 0
	if len(args) > 1 {
		return NullVal(), Throw("channel expects an optional capacity")
	}
	if len(args) == 1 {
		if !args[0].IsInt() {
			return NullVal(), Throw("channel capacity must be an integer")
		}
		capacity = int(args[0].AsInt())
		if capacity < 0 {
			return NullVal(), Throw("channel capacity must not be negative")
		}
	}
	return ChannelVal(NewChannel(capacity)), nil
}

// select([ch1, ch2, ...], timeout_ms?) polls for the first ready channel
// and receives from it; null on timeout.
func builtinSelect(vm *VM, args []Value) (Value, error) {
	if len(args) < 1 || len(args) > 2 {
		return NullVal(), Throw("select expects a channel array and an optional timeout")
	}
	if args[0].Kind != ValArray {
		return NullVal(), Throw("select expects an array of channels")
	}
	items := args[0].AsArray().Items()
	channels := make([]*Channel, len(items))
	for i, it := range items {
		if it.Kind != ValChannel {
			return NullVal(), Throw("select expects channels, got %s", it.TypeName())
		}
		channels[i] = it.AsChannel()
	}
	timeout := int64(-1)
	if len(args) == 2 {
		timeout = args[1].AsInt()
	}
	return selectChannels(channels, timeout)
}

func builtinTaskDebugInfo(vm *VM, args []Value) (Value, error) {
	if args[0].Kind != ValTask {
		return NullVal(), Throw("task_debug_info expects a task")
	}
	t := args[0].AsTask()
	t.mu.Lock()
	defer t.mu.Unlock()
	obj := NewObject([]Field{
		{Name: "id", Value: I64Val(int64(t.ID))},
		{Name: "state", Value: StrVal(t.State().String())},
		{Name: "joined", Value: BoolVal(t.joined)},
		{Name: "detached", Value: BoolVal(t.detached)},
		{Name: "has_exception", Value: BoolVal(t.hasExc)},
		{Name: "name", Value: StrVal(fmt.Sprintf("task-%d", t.ID))},
	})
	return ObjectVal(obj), nil
}
