package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sasha-s/go-deadlock"
	"golang.org/x/sync/errgroup"

	"possync/config"
	"possync/gamemap"
	"possync/protocol"
)

// Server 持有唯一的房间、HTTP 接入和可选的内嵌 NATS
type Server struct {
	cfg      config.Config
	codec    protocol.Codec
	connOpts ConnOptions
	room     *Room
	nats     *NatsServer

	mu    deadlock.RWMutex
	conns map[PlayerID]*ClientConn
}

// New 根据配置组装服务；fanout=nats 时会启动内嵌 NATS
func New(cfg config.Config) (*Server, error) {
	world, err := loadMap(cfg.Map)
	if err != nil {
		return nil, err
	}
	codec, err := protocol.CodecByName(cfg.Transport.Codec)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:   cfg,
		codec: codec,
		connOpts: ConnOptions{
			SendQueue:    cfg.Transport.SendQueue,
			PingInterval: config.Duration(cfg.Transport.PingInterval),
			PongWait:     config.Duration(cfg.Transport.PongWait),
			WriteWait:    config.Duration(cfg.Transport.WriteWait),
			ReadLimit:    cfg.Transport.ReadLimit,
		},
		conns: make(map[PlayerID]*ClientConn),
	}

	var fanout Fanout
	switch cfg.Transport.Fanout {
	case "nats":
		ns, err := NewNatsServer(
			WithNatsHost(cfg.Nats.Host),
			WithNatsPort(cfg.Nats.Port),
			WithNatsStartTimeout(config.Duration(cfg.Nats.StartTimeout)),
		)
		if err != nil {
			return nil, err
		}
		if err := ns.Start(); err != nil {
			return nil, err
		}
		s.nats = ns
		fanout = NewNatsFanout(ns)
	default:
		fanout = NewDirectFanout()
	}

	sc := cfg.Simulation
	sim := NewSimulation(world, PlayerSpec{
		X:        sc.SpawnX,
		Y:        sc.SpawnY,
		Width:    sc.Width,
		Height:   sc.Height,
		Velocity: sc.Velocity,
	}, sc.TickInterval(), sc.BoundsCheck)
	s.room = NewRoom(sim, fanout, codec, &RoomMetrics{}, sc.InboxSize)

	Log.Infow("server configured",
		"codec", codec.Name(),
		"fanout", cfg.Transport.Fanout,
		"tick", sc.TickInterval(),
		"map", fmt.Sprintf("%dx%d", world.Width, world.Height),
		"boundsCheck", sc.BoundsCheck)
	return s, nil
}

func loadMap(mc config.MapConfig) (gamemap.Map, error) {
	if mc.File == "" {
		return gamemap.Generate(), nil
	}
	dir := mc.Dir
	if dir == "" {
		dir = "."
	}
	return gamemap.LoadTMX(os.DirFS(dir), mc.File)
}

func (s *Server) Room() *Room { return s.room }

// Handler 路由：/ws、静态资源、管理与监控接口
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWS)
	// 前后端分离：将 / 映射到静态资源目录
	if s.cfg.Server.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.Server.StaticDir)))
	}
	mux.HandleFunc("/admin/config", s.HandleAdminConfig)
	mux.HandleFunc("/metrics", s.HandleMetrics)
	mux.HandleFunc("/healthz", s.HandleHealthz)
	return mux
}

// Run 启动房间与 HTTP 服务，ctx 结束后优雅退出
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Server.Addr, Handler: s.Handler()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.room.Run(gctx)
	})
	g.Go(func() error {
		Log.Infof("possync listening on %s", s.cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		Log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(s.cfg.Server.ShutdownTimeout))
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.closeAll()
		if s.nats != nil {
			s.nats.Shutdown()
		}
		return err
	})
	return g.Wait()
}

func (s *Server) track(c *ClientConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.ID] = c
}

func (s *Server) untrack(id PlayerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

// Connections 当前打开的 WebSocket 数量
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// closeAll 关闭所有连接；写协程发出关闭帧后退出
func (s *Server) closeAll() {
	s.mu.RLock()
	conns := make([]*ClientConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
	// 给写协程一点时间发出关闭帧
	deadline := time.Now().Add(time.Second)
	for s.Connections() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}
