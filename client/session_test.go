package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"

	"possync/config"
	"possync/protocol"
	"possync/server"
)

func startServer(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.Server.StaticDir = ""
	s, err := server.New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Room().Run(ctx)
		close(done)
	}()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

type observed struct {
	local   PlayerView
	pending int
	players int
	status  protocol.Status
}

func runSession(t *testing.T, url string, codec protocol.Codec) (*Session, <-chan observed, context.CancelFunc, func() error) {
	t.Helper()
	frames := make(chan observed, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	s, err := Dial(ctx, url, codec, OnRender(func(e *Engine) {
		if !e.Ready() {
			return
		}
		me, _ := e.Local()
		ob := observed{local: me, pending: len(e.Pending()), players: e.NumPlayers(), status: e.Status()}
		// 只保留最新一帧
		select {
		case <-frames:
		default:
		}
		frames <- ob
	}))
	if err != nil {
		cancel()
		t.Fatalf("dial: %v", err)
	}

	var runErr error
	done := make(chan struct{})
	go func() {
		runErr = s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	wait := func() error {
		<-done
		return runErr
	}
	return s, frames, cancel, wait
}

func waitFor(t *testing.T, frames <-chan observed, what string, cond func(observed) bool) observed {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ob := <-frames:
			if cond(ob) {
				return ob
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func TestSessionPredictsAndConverges(t *testing.T) {
	url := startServer(t)
	s, frames, _, _ := runSession(t, url, protocol.JSON)

	waitFor(t, frames, "initial-info", func(ob observed) bool { return ob.local.ID != "" })

	s.Press(protocol.DirUp)
	waitFor(t, frames, "movement", func(ob observed) bool { return ob.local.Display.Y < 200 })
	s.Release(protocol.DirUp)

	// 松开后队列清空，显示位置与服务端一致
	ob := waitFor(t, frames, "convergence", func(ob observed) bool {
		return ob.pending == 0 && ob.local.Display == ob.local.Server && ob.local.Server.Y < 200
	})
	testutil.AssertEqual(t, "x unchanged", ob.local.Display.X, 200.0)
	testutil.AssertEqual(t, "status", ob.status, protocol.StatusActive)
}

func TestSessionsSeeEachOther(t *testing.T) {
	url := startServer(t)
	_, framesA, _, _ := runSession(t, url, protocol.JSON)
	waitFor(t, framesA, "a joined", func(ob observed) bool { return ob.local.ID != "" })

	_, framesB, cancelB, waitB := runSession(t, url, protocol.Msgpack)
	waitFor(t, framesB, "b sees a", func(ob observed) bool { return ob.players == 2 })
	waitFor(t, framesA, "a sees b", func(ob observed) bool { return ob.players == 2 })

	cancelB()
	if err := waitB(); err != nil {
		t.Fatalf("session b: %v", err)
	}
	waitFor(t, framesA, "b gone", func(ob observed) bool { return ob.players == 1 })
}
