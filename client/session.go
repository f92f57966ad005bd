package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"possync/protocol"
)

// wsSender 把 player-move 写到连接上；只在事件循环协程中调用
type wsSender struct {
	conn    *websocket.Conn
	codec   protocol.Codec
	timeout time.Duration
}

func (s *wsSender) SendMove(mv protocol.PlayerMove) error {
	frame, err := protocol.Encode(s.codec, protocol.MsgPlayerMove, mv)
	if err != nil {
		return err
	}
	typ := websocket.MessageText
	if s.codec.Binary() {
		typ = websocket.MessageBinary
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.conn.Write(ctx, typ, frame)
}

type inputEdge struct {
	dir  protocol.Direction
	down bool
}

// Session 一个客户端连接：服务端消息、模拟帧、渲染帧和输入都在同一个协程处理
type Session struct {
	conn   *websocket.Conn
	codec  protocol.Codec
	engine *Engine
	log    *zap.SugaredLogger

	simInterval    time.Duration
	renderInterval time.Duration
	writeTimeout   time.Duration
	engineOpts     []Option
	onRender       func(*Engine)

	edges chan inputEdge
	done  chan struct{}
}

type SessionOption func(*Session)

// WithSimRate 模拟帧频率，默认 60Hz
func WithSimRate(hz int) SessionOption {
	return func(s *Session) { s.simInterval = time.Second / time.Duration(hz) }
}

// WithRenderRate 渲染帧频率，默认 60Hz，与模拟帧独立
func WithRenderRate(hz int) SessionOption {
	return func(s *Session) { s.renderInterval = time.Second / time.Duration(hz) }
}

func WithEngineOptions(opts ...Option) SessionOption {
	return func(s *Session) { s.engineOpts = append(s.engineOpts, opts...) }
}

func WithSessionLogger(l *zap.SugaredLogger) SessionOption {
	return func(s *Session) { s.log = l }
}

// OnRender 每个渲染帧之后在事件循环中调用
func OnRender(fn func(*Engine)) SessionOption {
	return func(s *Session) { s.onRender = fn }
}

// Dial 连接服务端，codec 通过 ?codec= 协商
func Dial(ctx context.Context, rawURL string, codec protocol.Codec, opts ...SessionOption) (*Session, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	q := u.Query()
	q.Set("codec", codec.Name())
	u.RawQuery = q.Encode()

	s := &Session{
		codec:          codec,
		log:            zap.NewNop().Sugar(),
		simInterval:    time.Second / 60,
		renderInterval: time.Second / 60,
		writeTimeout:   5 * time.Second,
		edges:          make(chan inputEdge, 16),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", u.Redacted(), err)
	}
	conn.SetReadLimit(1 << 20)
	s.conn = conn

	engineOpts := append([]Option{WithLogger(s.log)}, s.engineOpts...)
	s.engine = NewEngine(&wsSender{conn: conn, codec: codec, timeout: s.writeTimeout}, engineOpts...)
	return s, nil
}

// Press 投递按下边沿；会话结束后忽略
func (s *Session) Press(d protocol.Direction) { s.edge(inputEdge{dir: d, down: true}) }

// Release 投递松开边沿
func (s *Session) Release(d protocol.Direction) { s.edge(inputEdge{dir: d, down: false}) }

func (s *Session) edge(e inputEdge) {
	select {
	case s.edges <- e:
	case <-s.done:
	}
}

// Engine Run 返回之后才可安全读取；运行中请使用 OnRender
func (s *Session) Engine() *Engine { return s.engine }

// Run 直到 ctx 结束或连接断开
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	inbound := make(chan protocol.Envelope, 64)
	g, gctx := errgroup.WithContext(ctx)

	// 读协程只负责解码和转发
	g.Go(func() error {
		for {
			_, frame, err := s.conn.Read(gctx)
			if err != nil {
				return err
			}
			env, err := protocol.DecodeEnvelope(s.codec, frame)
			if err != nil {
				s.log.Debugw("dropping malformed frame", "err", err)
				continue
			}
			select {
			case inbound <- env:
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		sim := time.NewTicker(s.simInterval)
		defer sim.Stop()
		render := time.NewTicker(s.renderInterval)
		defer render.Stop()
		last := time.Now()

		for {
			select {
			case <-gctx.Done():
				return nil
			case env := <-inbound:
				if err := s.engine.HandleEnvelope(s.codec, env); err != nil {
					s.log.Debugw("handle message failed", "type", env.T, "err", err)
				}
			case e := <-s.edges:
				if e.down {
					s.engine.Press(e.dir)
				} else {
					s.engine.Release(e.dir)
				}
			case <-sim.C:
				s.engine.SimTick()
			case now := <-render.C:
				s.engine.RenderTick(now.Sub(last))
				last = now
				if s.onRender != nil {
					s.onRender(s.engine)
				}
			}
		}
	})

	err := g.Wait()
	switch {
	case err == nil, ctx.Err() != nil:
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	}
	return fmt.Errorf("session: %w", err)
}

// Close 正常关闭连接
func (s *Session) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "bye")
}
