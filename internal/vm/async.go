package vm

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var taskIDCounter atomic.Uint64

// TaskState tracks a task through its lifecycle.
type TaskState int32

const (
	TaskReady TaskState = iota
	TaskRunning
	TaskCompleted
)

func (s TaskState) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	default:
		return "completed"
	}
}

// Task wraps one worker goroutine running a closure on its own VM.
// joined and detached are mutually exclusive and each set at most once.
type Task struct {
	ID      uint64
	state   atomic.Int32
	closure *Closure

	mu       sync.Mutex
	result   Value
	exc      Value
	hasExc   bool
	joined   bool
	detached bool
	done     chan struct{}
}

// State returns the task's current lifecycle state.
func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

// spawnTask starts closure on a new worker goroutine with its own VM.
// Arguments are deep-copied for cross-task isolation (channels, tasks and
// primitives pass through).
func (vm *VM) spawnTask(closure *Closure, args []Value) (*Task, error) {
	if !closure.Chunk.IsAsync {
		return nil, Throw("spawn requires an async function")
	}

	copied := make([]Value, len(args))
	for i, a := range args {
		copied[i] = deepCopyValue(a)
	}

	t := &Task{
		ID:      taskIDCounter.Add(1),
		closure: closure,
		done:    make(chan struct{}),
	}

	go func() {
		t.state.Store(int32(TaskRunning))

		// Each task owns a fresh VM: its own stack, frames, handler and
		// defer stacks, and its own globals seeded from the stdlib.
		worker := New()
		worker.out = vm.out
		worker.errOut = vm.errOut

		result, err := worker.CallClosure(closure, copied)

		t.mu.Lock()
		switch {
		case err == nil:
			t.result = result
		default:
			var re *RuntimeError
			if errors.As(err, &re) {
				t.exc = re.Value
				t.hasExc = true
			} else {
				var exit *ExitError
				if errors.As(err, &exit) {
					os.Exit(exit.Code)
				}
				fmt.Fprintf(worker.errOut, "panic: %s\n", err)
				os.Exit(1)
			}
		}
		t.state.Store(int32(TaskCompleted))
		t.mu.Unlock()
		close(t.done)
	}()

	return t, nil
}

// joinTask blocks until t completes, then returns its result or re-throws
// its stored exception in the calling VM.
func (vm *VM) joinTask(t *Task) (Value, error) {
	t.mu.Lock()
	if t.joined {
		t.mu.Unlock()
		return NullVal(), Throw("Task already joined")
	}
	if t.detached {
		t.mu.Unlock()
		return NullVal(), Throw("Cannot await detached task")
	}
	t.joined = true
	t.mu.Unlock()

	<-t.done

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hasExc {
		return NullVal(), ThrowValue(t.exc)
	}
	return t.result, nil
}

// detachTask releases the join capability. The worker keeps running; its
// result or exception is discarded.
func (vm *VM) detachTask(t *Task) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.joined {
		return Throw("Cannot detach joined task")
	}
	if t.detached {
		return Throw("Task already detached")
	}
	t.detached = true
	return nil
}

// Channel is a synchronised FIFO. Capacity 0 is an unbuffered rendezvous:
// the sender parks a value in a shared slot and blocks until a receiver
// takes it.
type Channel struct {
	mu         sync.Mutex
	notEmpty   *sync.Cond
	notFull    *sync.Cond
	rendezvous *sync.Cond

	buf      []Value
	head     int
	tail     int
	count    int
	capacity int
	closed   bool

	slot          Value
	senderWaiting bool
}

// NewChannel creates a channel; capacity 0 means unbuffered.
func NewChannel(capacity int) *Channel {
	ch := &Channel{capacity: capacity}
	if capacity > 0 {
		ch.buf = make([]Value, capacity)
	}
	ch.notEmpty = sync.NewCond(&ch.mu)
	ch.notFull = sync.NewCond(&ch.mu)
	ch.rendezvous = sync.NewCond(&ch.mu)
	return ch
}

// Capacity returns the buffer capacity (0 = unbuffered).
func (ch *Channel) Capacity() int { return ch.capacity }

// Send delivers v, blocking while the channel is full (or, unbuffered,
// until a receiver completes the rendezvous). Sending on a closed channel
// is a catchable error.
func (ch *Channel) Send(v Value) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return Throw("Cannot send on closed channel")
	}

	if ch.capacity == 0 {
		for ch.senderWaiting && !ch.closed {
			ch.notFull.Wait()
		}
		if ch.closed {
			return Throw("Cannot send on closed channel")
		}
		ch.slot = v
		ch.senderWaiting = true
		ch.notEmpty.Signal()
		for ch.senderWaiting && !ch.closed {
			ch.rendezvous.Wait()
		}
		if ch.senderWaiting {
			// Closed before any receiver arrived.
			ch.senderWaiting = false
			return Throw("Cannot send on closed channel")
		}
		ch.notFull.Signal()
		return nil
	}

	for ch.count == ch.capacity && !ch.closed {
		ch.notFull.Wait()
	}
	if ch.closed {
		return Throw("Cannot send on closed channel")
	}
	ch.buf[ch.tail] = v
	ch.tail = (ch.tail + 1) % ch.capacity
	ch.count++
	ch.notEmpty.Signal()
	return nil
}

// Recv takes the next value in send order. Receiving from an empty closed
// channel returns null.
func (ch *Channel) Recv() (Value, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.capacity == 0 {
		for !ch.senderWaiting && !ch.closed {
			ch.notEmpty.Wait()
		}
		if !ch.senderWaiting {
			return NullVal(), nil // closed, nothing in flight
		}
		v := ch.slot
		ch.slot = NullVal()
		ch.senderWaiting = false
		ch.rendezvous.Signal()
		return v, nil
	}

	for ch.count == 0 && !ch.closed {
		ch.notEmpty.Wait()
	}
	if ch.count == 0 {
		return NullVal(), nil // closed and drained
	}
	v := ch.buf[ch.head]
	ch.buf[ch.head] = NullVal()
	ch.head = (ch.head + 1) % ch.capacity
	ch.count--
	ch.notFull.Signal()
	return v, nil
}

// Close marks the channel closed and wakes every waiter.
func (ch *Channel) Close() {
	ch.mu.Lock()
	ch.closed = true
	ch.notEmpty.Broadcast()
	ch.notFull.Broadcast()
	ch.rendezvous.Broadcast()
	ch.mu.Unlock()
}

// ready reports whether a Recv would complete without blocking.
func (ch *Channel) ready() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.count > 0 || ch.senderWaiting || ch.closed
}

// Len returns the number of buffered values, plus one while a sender is
// parked waiting to hand over its value.
func (ch *Channel) Len() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	n := ch.count
	if ch.senderWaiting {
		n++
	}
	return n
}

// selectChannels polls the given channels until one is ready, receiving
// its value, or until the timeout elapses (timeoutMs < 0 waits forever).
// Returns null on timeout.
func selectChannels(channels []*Channel, timeoutMs int64) (Value, error) {
	deadline := time.Time{}
	if timeoutMs >= 0 {
		deadline = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	}
	for {
		for _, ch := range channels {
			if ch.ready() {
				v, err := ch.Recv()
				if err != nil {
					return NullVal(), err
				}
				result := NewObject([]Field{
					{Name: "channel", Value: ChannelVal(ch)},
					{Name: "value", Value: v},
				})
				return ObjectVal(result), nil
			}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return NullVal(), nil
		}
		time.Sleep(time.Millisecond)
	}
}
