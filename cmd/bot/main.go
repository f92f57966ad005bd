package main

import (
	"context"
	"flag"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"possync/client"
	"possync/protocol"
)

// 无界面机器人：连接服务端，随机按住方向，定期打印预测与校正状态
func main() {
	var (
		url      string
		codec    string
		duration time.Duration
		hold     time.Duration
		tween    bool
		bounds   bool
	)
	flag.StringVar(&url, "url", "ws://localhost:4000/ws", "server websocket url")
	flag.StringVar(&codec, "codec", "json", "wire codec: json or msgpack")
	flag.DurationVar(&duration, "duration", 0, "stop after this long (0 = until interrupted)")
	flag.DurationVar(&hold, "hold", 400*time.Millisecond, "how long each direction is held")
	flag.BoolVar(&tween, "tween", false, "smooth remote players with a fixed-duration tween")
	flag.BoolVar(&bounds, "bounds", true, "mirror the server's bounds check locally")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	c, err := protocol.CodecByName(codec)
	if err != nil {
		log.Fatalf("codec: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	var smoother client.Smoother = client.ExponentialSmoother{Factor: client.DefaultSmoothingFactor}
	if tween {
		smoother = client.TweenSmoother{Duration: 250 * time.Millisecond}
	}

	lastReport := time.Now()
	s, err := client.Dial(ctx, url, c,
		client.WithSessionLogger(log),
		client.WithEngineOptions(client.WithSmoother(smoother), client.WithBoundsCheck(bounds)),
		client.OnRender(func(e *client.Engine) {
			if time.Since(lastReport) < time.Second || !e.Ready() {
				return
			}
			lastReport = time.Now()
			me, _ := e.Local()
			st := e.Stats()
			log.Infow("bot",
				"player", me.ID,
				"display", me.Display,
				"server", me.Server,
				"pending", len(e.Pending()),
				"ack", e.LastAck(),
				"players", e.NumPlayers(),
				"status", e.Status(),
				"sent", st.MovesSent,
				"resyncs", st.Resyncs)
		}),
	)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer func() { _ = s.Close() }()

	pick := func() protocol.Direction {
		return protocol.Directions[rand.IntN(len(protocol.Directions))]
	}
	if err := drive(ctx, s, hold, pick); err != nil {
		log.Errorf("session ended: %v", err)
		os.Exit(1)
	}
	log.Info("bot stopped")
}

// session 机器人用到的会话操作
type session interface {
	Run(ctx context.Context) error
	Press(d protocol.Direction)
	Release(d protocol.Direction)
}

// drive 运行会话，同时每隔 hold 换一个按住的方向；会话结束（包括正常关闭）时一并退出
func drive(ctx context.Context, s session, hold time.Duration, pick func() protocol.Direction) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return s.Run(gctx)
	})
	g.Go(func() error {
		t := time.NewTicker(hold)
		defer t.Stop()
		var cur protocol.Direction
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				if cur != "" {
					s.Release(cur)
				}
				cur = pick()
				s.Press(cur)
			}
		}
	})
	return g.Wait()
}
