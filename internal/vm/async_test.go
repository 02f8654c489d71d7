package vm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelRendezvousAcrossTasks(t *testing.T) {
	expectOutput(t, `
		let ch = channel();
		let t = spawn(async fn() { ch.send(42); });
		print(ch.recv());
		join(t);
	`, "42\n")
}

func TestBufferedChannelFIFO(t *testing.T) {
	ch := NewChannel(3)
	require.NoError(t, ch.Send(I32Val(1)))
	require.NoError(t, ch.Send(I32Val(2)))
	require.NoError(t, ch.Send(I32Val(3)))

	for want := int64(1); want <= 3; want++ {
		v, err := ch.Recv()
		require.NoError(t, err)
		assert.Equal(t, want, v.AsInt())
	}
}

func TestChannelSendRecvRoundTrip(t *testing.T) {
	expectOutput(t, `
		let ch = channel(1);
		ch.send("ping");
		print(ch.recv());
	`, "ping\n")
}

func TestClosedChannelSemantics(t *testing.T) {
	ch := NewChannel(2)
	require.NoError(t, ch.Send(I32Val(7)))
	ch.Close()

	// Buffered values drain first, then recv yields null.
	v, err := ch.Recv()
	require.NoError(t, err)
	assert.Equal(t, int64(7), v.AsInt())

	v, err = ch.Recv()
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	// Sending on a closed channel is a catchable error.
	err = ch.Send(I32Val(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed channel")
}

func TestClosedChannelInScript(t *testing.T) {
	expectOutput(t, `
		let ch = channel(1);
		ch.close();
		try { ch.send(1); } catch (e) { print(e); }
		print(ch.recv());
	`, "Cannot send on closed channel\nnull\n")
}

func TestUnbufferedRendezvousBlocksSender(t *testing.T) {
	ch := NewChannel(0)
	sent := make(chan struct{})
	go func() {
		_ = ch.Send(I32Val(99))
		close(sent)
	}()

	select {
	case <-sent:
		t.Fatalf("unbuffered send completed without a receiver")
	case <-time.After(20 * time.Millisecond):
	}

	v, err := ch.Recv()
	require.NoError(t, err)
	assert.Equal(t, int64(99), v.AsInt())

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatalf("sender never woke after rendezvous")
	}
}

func TestSelectReadyAndTimeout(t *testing.T) {
	a := NewChannel(1)
	b := NewChannel(1)
	require.NoError(t, b.Send(StrVal("from-b")))

	v, err := selectChannels([]*Channel{a, b}, 1000)
	require.NoError(t, err)
	require.Equal(t, ValObject, v.Kind)
	val, ok := v.AsObject().Get("value")
	require.True(t, ok)
	assert.Equal(t, "from-b", val.AsString().Str())
	chv, ok := v.AsObject().Get("channel")
	require.True(t, ok)
	assert.Same(t, b, chv.AsChannel())

	// Nothing ready: timeout yields null.
	v, err = selectChannels([]*Channel{a}, 10)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestSelectBuiltinInScript(t *testing.T) {
	expectOutput(t, `
		let a = channel(1);
		let b = channel(1);
		b.send(5);
		let r = select([a, b], 1000);
		print(r.value);
		print(select([a], 5));
	`, "5\nnull\n")
}

func TestTaskJoinReturnsResult(t *testing.T) {
	expectOutput(t, `
		let t = spawn(async fn(a, b) { return a + b; }, 20, 22);
		print(join(t));
	`, "42\n")
}

func TestAwaitTask(t *testing.T) {
	expectOutput(t, `
		let t = spawn(async fn() { return "done"; });
		print(await t);
	`, "done\n")
}

func TestTaskExceptionRethrownOnJoin(t *testing.T) {
	expectOutput(t, `
		let t = spawn(async fn() { throw "task failed"; });
		try { join(t); } catch (e) { print("caught:", e); }
	`, "caught: task failed\n")
}

func TestDoubleJoinErrors(t *testing.T) {
	expectOutput(t, `
		let t = spawn(async fn() { return 1; });
		join(t);
		try { join(t); } catch (e) { print(e); }
	`, "Task already joined\n")
}

func TestDetachExclusiveWithJoin(t *testing.T) {
	expectOutput(t, `
		let t = spawn(async fn() { return 1; });
		detach(t);
		try { join(t); } catch (e) { print(e); }
	`, "Cannot await detached task\n")
}

func TestSpawnRequiresAsyncFunction(t *testing.T) {
	expectOutput(t, `
		try { spawn(fn() { return 1; }); } catch (e) { print(e); }
	`, "spawn requires an async function\n")
}

func TestSpawnDeepCopiesArguments(t *testing.T) {
	expectOutput(t, `
		let data = [1, 2, 3];
		let t = spawn(async fn(xs) { xs.push(99); return xs.length; }, data);
		print(join(t));
		print(data.length);
	`, "4\n3\n")
}

func TestTaskIDsAreUnique(t *testing.T) {
	machine := New()
	chunk := compile(t, `
		let a = spawn(async fn() { return 0; });
		let b = spawn(async fn() { return 0; });
		let distinct = a.id != b.id;
		join(a); join(b);
		distinct
	`)
	v, err := machine.Run(chunk)
	require.NoError(t, err)
	assert.True(t, v.AsBool())
}

func TestTaskDebugInfo(t *testing.T) {
	expectOutput(t, `
		let t = spawn(async fn() { return 1; });
		join(t);
		let info = task_debug_info(t);
		print(info.joined, info.detached, info.has_exception);
	`, "true false false\n")
}

func TestCapturedChannelSharedWithTask(t *testing.T) {
	// Arrays reach tasks only through deep-copied arguments; a captured
	// channel is the sanctioned shared path.
	expectOutput(t, `
		let ch = channel(4);
		let t = spawn(async fn() {
			ch.send(1);
			ch.send(2);
			ch.close();
		});
		join(t);
		let total = 0;
		let v = ch.recv();
		while (v != null) {
			total = total + v;
			v = ch.recv();
		}
		print(total);
	`, "3\n")
}
