package server

import (
	"testing"
	"time"

	"github.com/pixil98/go-testutil"

	"possync/protocol"
)

func startTestNats(t *testing.T) *NatsServer {
	t.Helper()
	if testing.Short() {
		t.Skip("embedded nats skipped in -short mode")
	}
	ns, err := NewNatsServer(WithNatsPort(-1), WithNatsStartTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("new nats: %v", err)
	}
	if err := ns.Start(); err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestNatsFanoutPreservesOrder(t *testing.T) {
	ns := startTestNats(t)
	f := NewNatsFanout(ns)
	defer f.Close()

	a := newFakePeer()
	if err := f.Add("a", a); err != nil {
		t.Fatalf("add: %v", err)
	}

	for i := 0; i < 50; i++ {
		if err := f.SendTo("a", []byte{byte(i)}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := ns.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	for i := 0; i < 50; i++ {
		select {
		case b := <-a.sendCh:
			testutil.AssertEqual(t, "frame", int(b[0]), i)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for frame %d", i)
		}
	}
}

func TestNatsFanoutBroadcastSkipsExcept(t *testing.T) {
	ns := startTestNats(t)
	f := NewNatsFanout(ns)
	defer f.Close()

	a, b := newFakePeer(), newFakePeer()
	_ = f.Add("a", a)
	_ = f.Add("b", b)

	failed := f.Broadcast([]byte("hello"), "a")
	testutil.AssertEqual(t, "failed", failed, 0)
	_ = ns.Flush()

	select {
	case got := <-b.sendCh:
		testutil.AssertEqual(t, "payload", string(got), "hello")
	case <-time.After(2 * time.Second):
		t.Fatalf("b did not receive broadcast")
	}
	a.expectNone(t)

	f.Remove("b")
	err := f.SendTo("b", []byte("late"))
	if err != ErrPeerClosed {
		t.Fatalf("expected ErrPeerClosed, got %v", err)
	}
}

func TestRoomOverNats(t *testing.T) {
	ns := startTestNats(t)
	r := newTestRoom(t, NewNatsFanout(ns))
	a, b := newFakePeer(), newFakePeer()

	r.join(t, "a", a)
	r.join(t, "b", b)

	testutil.AssertEqual(t, "a first", a.next(t).T, protocol.MsgInitialInfo)
	testutil.AssertEqual(t, "a second", a.next(t).T, protocol.MsgPlayerConnected)
	testutil.AssertEqual(t, "b first", b.next(t).T, protocol.MsgInitialInfo)
}
