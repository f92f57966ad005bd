package client

import (
	"errors"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"

	"possync/gamemap"
	"possync/protocol"
)

type fakeSender struct {
	moves []protocol.PlayerMove
	err   error
}

func (f *fakeSender) SendMove(mv protocol.PlayerMove) error {
	if f.err != nil {
		return f.err
	}
	f.moves = append(f.moves, mv)
	return nil
}

func testPlayer(id string, x, y float64) protocol.Player {
	return protocol.Player{ID: id, X: x, Y: y, Width: 50, Height: 50, Velocity: 5}
}

func joinedEngine(t *testing.T, opts ...Option) (*Engine, *fakeSender) {
	t.Helper()
	fs := &fakeSender{}
	e := NewEngine(fs, opts...)
	me := testPlayer("me", 200, 200)
	e.HandleInitialInfo(protocol.InitialInfo{
		Player:  me,
		Players: []protocol.Player{me, testPlayer("other", 100, 100)},
		Status:  protocol.StatusActive,
		Map:     gamemap.Generate(),
	})
	return e, fs
}

func local(t *testing.T, e *Engine) PlayerView {
	t.Helper()
	v, ok := e.Local()
	if !ok {
		t.Fatalf("no local player")
	}
	return v
}

func snapshot(players ...protocol.Player) protocol.GameState {
	return protocol.GameState{Status: protocol.StatusActive, Players: players}
}

func acked(p protocol.Player, ack int64) protocol.Player {
	p.LastProcessedEventID = ack
	return p
}

func TestInputEdges(t *testing.T) {
	var s InputState

	testutil.AssertEqual(t, "press", s.Press(protocol.DirUp), true)
	testutil.AssertEqual(t, "press again", s.Press(protocol.DirUp), false)
	testutil.AssertEqual(t, "held", s.Held(protocol.DirUp), true)
	testutil.AssertEqual(t, "release", s.Release(protocol.DirUp), true)
	testutil.AssertEqual(t, "release again", s.Release(protocol.DirUp), false)
	testutil.AssertEqual(t, "release never pressed", s.Release(protocol.DirLeft), false)
	testutil.AssertEqual(t, "unknown direction", s.Press("NORTH"), false)

	s.Press(protocol.DirRight)
	s.Press(protocol.DirUp)
	active := s.Active()
	testutil.AssertEqual(t, "active count", len(active), 2)
	testutil.AssertEqual(t, "fixed order first", active[0], protocol.DirUp)
	testutil.AssertEqual(t, "fixed order second", active[1], protocol.DirRight)
}

func TestSimTickBeforeInitialInfo(t *testing.T) {
	fs := &fakeSender{}
	e := NewEngine(fs)
	e.Press(protocol.DirUp)

	testutil.AssertEqual(t, "issued", e.SimTick(), 0)
	testutil.AssertEqual(t, "sent", len(fs.moves), 0)
	testutil.AssertEqual(t, "ready", e.Ready(), false)
}

func TestSimTickPredictsAndSends(t *testing.T) {
	e, fs := joinedEngine(t)
	e.Press(protocol.DirUp)

	testutil.AssertEqual(t, "issued", e.SimTick(), 1)

	me := local(t, e)
	testutil.AssertEqual(t, "display y", me.Display.Y, 195.0)
	testutil.AssertEqual(t, "server y untouched", me.Server.Y, 200.0)
	testutil.AssertEqual(t, "pending", len(e.Pending()), 1)
	testutil.AssertEqual(t, "pending entry", e.Pending()[0], PendingMove{EventID: 1, DX: 0, DY: -5})

	testutil.AssertEqual(t, "sent", len(fs.moves), 1)
	testutil.AssertEqual(t, "direction", fs.moves[0].Direction, protocol.DirUp)
	testutil.AssertEqual(t, "event id", *fs.moves[0].EventID, int64(1))
}

func TestSimTickEventPerHeldDirection(t *testing.T) {
	e, fs := joinedEngine(t)
	e.Press(protocol.DirRight)
	e.Press(protocol.DirUp)

	e.SimTick()
	e.SimTick()

	testutil.AssertEqual(t, "sent", len(fs.moves), 4)
	expDirs := []protocol.Direction{protocol.DirUp, protocol.DirRight, protocol.DirUp, protocol.DirRight}
	for i, mv := range fs.moves {
		testutil.AssertEqual(t, "direction", mv.Direction, expDirs[i])
		testutil.AssertEqual(t, "monotonic id", *mv.EventID, int64(i+1))
	}

	me := local(t, e)
	testutil.AssertEqual(t, "x", me.Display.X, 210.0)
	testutil.AssertEqual(t, "y", me.Display.Y, 190.0)

	// 松开后不再产生事件
	e.Release(protocol.DirUp)
	e.Release(protocol.DirRight)
	testutil.AssertEqual(t, "idle tick", e.SimTick(), 0)
}

func TestSendFailureKeepsPrediction(t *testing.T) {
	e, fs := joinedEngine(t)
	fs.err = errors.New("broken pipe")
	e.Press(protocol.DirLeft)

	e.SimTick()

	testutil.AssertEqual(t, "x", local(t, e).Display.X, 195.0)
	testutil.AssertEqual(t, "pending", len(e.Pending()), 1)
	testutil.AssertEqual(t, "send errors", e.Stats().SendErrors, int64(1))
}

func TestPredictionWithoutRubberBand(t *testing.T) {
	e, _ := joinedEngine(t)
	e.Press(protocol.DirUp)
	e.SimTick()
	e.SimTick()
	e.Release(protocol.DirUp)
	testutil.AssertEqual(t, "predicted", local(t, e).Display.Y, 190.0)

	// 服务端只处理了第一个事件
	e.HandleGameState(snapshot(acked(testPlayer("me", 200, 195), 1)))
	me := local(t, e)
	testutil.AssertEqual(t, "after ack 1", me.Display.Y, 190.0)
	testutil.AssertEqual(t, "server", me.Server.Y, 195.0)
	testutil.AssertEqual(t, "pending", len(e.Pending()), 1)
	testutil.AssertEqual(t, "remaining id", e.Pending()[0].EventID, int64(2))

	e.HandleGameState(snapshot(acked(testPlayer("me", 200, 190), 2)))
	me = local(t, e)
	testutil.AssertEqual(t, "after ack 2", me.Display.Y, 190.0)
	testutil.AssertEqual(t, "pending", len(e.Pending()), 0)
	testutil.AssertEqual(t, "last ack", e.LastAck(), int64(2))
	testutil.AssertEqual(t, "acked", e.Stats().Acked, int64(2))
}

func TestReconcileReplaysRemaining(t *testing.T) {
	e, _ := joinedEngine(t)
	e.Press(protocol.DirRight)
	for i := 0; i < 3; i++ {
		e.SimTick()
	}
	testutil.AssertEqual(t, "predicted", local(t, e).Display.X, 215.0)

	// 服务端把玩家推到别处（例如被拒绝的移动）：显示 = 服务端 + 剩余队列
	e.HandleGameState(snapshot(acked(testPlayer("me", 300, 200), 1)))
	testutil.AssertEqual(t, "replayed", local(t, e).Display.X, 310.0)
	testutil.AssertEqual(t, "pending", len(e.Pending()), 2)
}

func TestReconcileStaleAckDropsNothing(t *testing.T) {
	e, _ := joinedEngine(t)
	e.Press(protocol.DirDown)
	for i := 0; i < 3; i++ {
		e.SimTick()
	}
	e.HandleGameState(snapshot(acked(testPlayer("me", 200, 210), 2)))
	testutil.AssertEqual(t, "pending", len(e.Pending()), 1)

	// 旧的确认不会让 lastAck 倒退，也不会丢弃事件
	e.HandleGameState(snapshot(acked(testPlayer("me", 200, 210), 1)))
	testutil.AssertEqual(t, "pending after stale", len(e.Pending()), 1)
	testutil.AssertEqual(t, "last ack", e.LastAck(), int64(2))
	testutil.AssertEqual(t, "display", local(t, e).Display.Y, 215.0)

	e.HandleGameState(snapshot(acked(testPlayer("me", 200, 210), 0)))
	testutil.AssertEqual(t, "zero ack", e.LastAck(), int64(2))
}

func TestReconcileNonContiguousAck(t *testing.T) {
	e, _ := joinedEngine(t)
	e.lastIssued = 5
	e.pending.Push(PendingMove{EventID: 1, DX: 5})
	e.pending.Push(PendingMove{EventID: 3, DX: 5})
	e.pending.Push(PendingMove{EventID: 5, DX: 5})

	e.HandleGameState(snapshot(acked(testPlayer("me", 210, 200), 4)))

	pending := e.Pending()
	testutil.AssertEqual(t, "pending", len(pending), 1)
	testutil.AssertEqual(t, "kept", pending[0].EventID, int64(5))
	testutil.AssertEqual(t, "display", local(t, e).Display.X, 215.0)
	testutil.AssertEqual(t, "last ack", e.LastAck(), int64(4))
}

func TestReconcileHardResync(t *testing.T) {
	e, fs := joinedEngine(t)
	e.Press(protocol.DirUp)
	e.SimTick()
	e.SimTick()

	e.HandleGameState(snapshot(acked(testPlayer("me", 500, 500), 10)))

	me := local(t, e)
	testutil.AssertEqual(t, "snapped x", me.Display.X, 500.0)
	testutil.AssertEqual(t, "snapped y", me.Display.Y, 500.0)
	testutil.AssertEqual(t, "pending", len(e.Pending()), 0)
	testutil.AssertEqual(t, "resyncs", e.Stats().Resyncs, int64(1))

	// 计数器越过 ack，下一个事件不会与服务端已见过的 id 冲突
	e.SimTick()
	testutil.AssertEqual(t, "next id", *fs.moves[len(fs.moves)-1].EventID, int64(11))
}

func TestRemoteExponentialSmoothing(t *testing.T) {
	e, _ := joinedEngine(t)

	e.HandleGameState(snapshot(acked(testPlayer("me", 200, 200), 0), testPlayer("other", 110, 100)))

	other, _ := e.Player("other")
	testutil.AssertEqual(t, "server", other.Server.X, 110.0)
	testutil.AssertEqual(t, "display after receipt", other.Display.X, 102.0)
	testutil.AssertEqual(t, "display y", other.Display.Y, 100.0)

	e.RenderTick(16 * time.Millisecond)
	other, _ = e.Player("other")
	if d := other.Display.X - 103.6; d > 1e-9 || d < -1e-9 {
		t.Fatalf("display after render tick = %v, want 103.6", other.Display.X)
	}

	for i := 0; i < 200; i++ {
		e.RenderTick(16 * time.Millisecond)
	}
	other, _ = e.Player("other")
	if d := other.Display.X - 110; d > 1e-6 || d < -1e-6 {
		t.Fatalf("display did not converge: %v", other.Display.X)
	}
}

func TestRemoteTweenSmoothing(t *testing.T) {
	e, _ := joinedEngine(t, WithSmoother(TweenSmoother{Duration: 250 * time.Millisecond}))

	e.HandleGameState(snapshot(acked(testPlayer("me", 200, 200), 0), testPlayer("other", 110, 100)))
	other, _ := e.Player("other")
	testutil.AssertEqual(t, "display at receipt", other.Display.X, 100.0)

	e.RenderTick(125 * time.Millisecond)
	other, _ = e.Player("other")
	if d := other.Display.X - 105; d > 1e-3 || d < -1e-3 {
		t.Fatalf("halfway display = %v, want 105", other.Display.X)
	}

	e.RenderTick(125 * time.Millisecond)
	other, _ = e.Player("other")
	testutil.AssertEqual(t, "finished", other.Display.X, 110.0)
}

func TestRenderTickLeavesPredictionAlone(t *testing.T) {
	e, _ := joinedEngine(t)
	e.Press(protocol.DirUp)
	e.SimTick()
	before := local(t, e)

	for i := 0; i < 10; i++ {
		e.RenderTick(16 * time.Millisecond)
	}

	after := local(t, e)
	testutil.AssertEqual(t, "display", after.Display, before.Display)
	testutil.AssertEqual(t, "server", after.Server, before.Server)
	testutil.AssertEqual(t, "pending", len(e.Pending()), 1)
	testutil.AssertEqual(t, "issued", e.LastIssued(), int64(1))
}

func TestConnectDisconnect(t *testing.T) {
	e, _ := joinedEngine(t)
	testutil.AssertEqual(t, "initial players", e.NumPlayers(), 2)

	e.HandlePlayerConnected(testPlayer("third", 300, 300))
	e.HandlePlayerConnected(testPlayer("third", 999, 999))
	testutil.AssertEqual(t, "added once", e.NumPlayers(), 3)
	third, _ := e.Player("third")
	testutil.AssertEqual(t, "first record kept", third.Display.X, 300.0)

	e.HandlePlayerConnected(testPlayer("me", 0, 0))
	testutil.AssertEqual(t, "self ignored", local(t, e).Display.X, 200.0)

	e.HandlePlayerDisconnected(testPlayer("me", 0, 0))
	_, ok := e.Local()
	testutil.AssertEqual(t, "local never removed", ok, true)

	e.HandlePlayerDisconnected(testPlayer("third", 0, 0))
	e.HandlePlayerDisconnected(testPlayer("third", 0, 0))
	testutil.AssertEqual(t, "removed", e.NumPlayers(), 2)
}

func TestSnapshotIgnoredBeforeInitialInfo(t *testing.T) {
	e := NewEngine(&fakeSender{})
	e.HandleGameState(snapshot(testPlayer("me", 1, 1)))
	e.HandlePlayerConnected(testPlayer("x", 1, 1))

	testutil.AssertEqual(t, "players", e.NumPlayers(), 0)
	testutil.AssertEqual(t, "snapshots", e.Stats().Snapshots, int64(0))
}

func TestSnapshotSkipsUnknownPlayers(t *testing.T) {
	e, _ := joinedEngine(t)
	e.HandleGameState(snapshot(acked(testPlayer("me", 200, 200), 0), testPlayer("stranger", 5, 5)))

	_, ok := e.Player("stranger")
	testutil.AssertEqual(t, "not created", ok, false)
	testutil.AssertEqual(t, "players", e.NumPlayers(), 2)
}

func TestClientBoundsMirror(t *testing.T) {
	e, fs := joinedEngine(t, WithBoundsCheck(true))
	e.HandleGameState(snapshot(acked(testPlayer("me", 200, 25), 0)))
	e.Press(protocol.DirUp)

	testutil.AssertEqual(t, "issued", e.SimTick(), 0)
	testutil.AssertEqual(t, "sent", len(fs.moves), 0)
	testutil.AssertEqual(t, "blocked", e.Stats().Blocked, int64(1))
	testutil.AssertEqual(t, "y", local(t, e).Display.Y, 25.0)

	// 没有镜像检查时照常预测，交给服务端裁决
	e2, fs2 := joinedEngine(t)
	e2.HandleGameState(snapshot(acked(testPlayer("me", 200, 25), 0)))
	e2.Press(protocol.DirUp)
	testutil.AssertEqual(t, "issued without mirror", e2.SimTick(), 1)
	testutil.AssertEqual(t, "sent without mirror", len(fs2.moves), 1)
}

func TestHandleEnvelope(t *testing.T) {
	fs := &fakeSender{}
	e := NewEngine(fs)

	for _, c := range []protocol.Codec{protocol.JSON, protocol.Msgpack} {
		me := testPlayer("me", 200, 200)
		frame, err := protocol.Encode(c, protocol.MsgInitialInfo, protocol.InitialInfo{
			Player:  me,
			Players: []protocol.Player{me},
			Status:  protocol.StatusActive,
			Map:     gamemap.Generate(),
		})
		if err != nil {
			t.Fatalf("%s encode: %v", c.Name(), err)
		}
		env, err := protocol.DecodeEnvelope(c, frame)
		if err != nil {
			t.Fatalf("%s decode: %v", c.Name(), err)
		}
		if err := e.HandleEnvelope(c, env); err != nil {
			t.Fatalf("%s handle: %v", c.Name(), err)
		}
		testutil.AssertEqual(t, c.Name()+" local id", e.LocalID(), "me")
		testutil.AssertEqual(t, c.Name()+" map", e.Map().TilesX, 100)
	}

	err := e.HandleEnvelope(protocol.JSON, protocol.Envelope{V: protocol.Version, T: protocol.MsgPlayerMove})
	if !errors.Is(err, protocol.ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}
