package server

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// NatsServer 内嵌 NATS，进程内 fan-out 用
type NatsServer struct {
	ns   *natsserver.Server
	conn *nats.Conn

	startupTimeout time.Duration
	host           string
	port           int
}

type NatsServerOpt func(*NatsServer)

func WithNatsStartTimeout(d time.Duration) NatsServerOpt {
	return func(n *NatsServer) { n.startupTimeout = d }
}

func WithNatsHost(host string) NatsServerOpt {
	return func(n *NatsServer) { n.host = host }
}

// WithNatsPort -1 表示随机端口
func WithNatsPort(port int) NatsServerOpt {
	return func(n *NatsServer) { n.port = port }
}

func NewNatsServer(opts ...NatsServerOpt) (*NatsServer, error) {
	s := &NatsServer{
		startupTimeout: 10 * time.Second,
		host:           "127.0.0.1",
		port:           -1,
	}
	for _, opt := range opts {
		opt(s)
	}

	ns, err := natsserver.NewServer(&natsserver.Options{
		Host:   s.host,
		Port:   s.port,
		NoSigs: true, // 信号由应用自己处理
		NoLog:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}
	s.ns = ns
	return s, nil
}

// Start 启动服务并建立内部客户端连接，返回时已可用
func (n *NatsServer) Start() error {
	n.ns.Start()
	if !n.ns.ReadyForConnections(n.startupTimeout) {
		return fmt.Errorf("nats server not ready for connections")
	}

	conn, err := nats.Connect(n.ns.ClientURL())
	if err != nil {
		n.ns.Shutdown()
		return fmt.Errorf("creating nats client connection: %w", err)
	}
	n.conn = conn

	Log.Infof("nats server listening on %s", n.ns.Addr())
	return nil
}

func (n *NatsServer) Shutdown() {
	if n.conn != nil {
		n.conn.Close()
	}
	n.ns.Shutdown()
	n.ns.WaitForShutdown()
}

// Subscribe 返回取消订阅函数
func (n *NatsServer) Subscribe(subject string, handler func(data []byte)) (func(), error) {
	if n.conn == nil {
		return nil, fmt.Errorf("nats server not started")
	}
	sub, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

func (n *NatsServer) Publish(subject string, data []byte) error {
	if n.conn == nil {
		return fmt.Errorf("nats server not started")
	}
	return n.conn.Publish(subject, data)
}

// Flush 等待已发布的消息到达服务端
func (n *NatsServer) Flush() error {
	if n.conn == nil {
		return fmt.Errorf("nats server not started")
	}
	return n.conn.Flush()
}

// natsFanout 每个玩家一个 subject，单订阅保证该连接内的顺序
type natsFanout struct {
	server *NatsServer
	unsubs map[PlayerID]func()
}

func NewNatsFanout(server *NatsServer) Fanout {
	return &natsFanout{server: server, unsubs: make(map[PlayerID]func())}
}

func playerSubject(id PlayerID) string {
	return fmt.Sprintf("possync.player.%s", id)
}

func (f *natsFanout) Add(id PlayerID, p Peer) error {
	if unsub, ok := f.unsubs[id]; ok {
		unsub()
	}
	unsub, err := f.server.Subscribe(playerSubject(id), func(data []byte) {
		if err := p.Send(data); err != nil {
			Log.Debugw("nats delivery dropped", "player", id, "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing %s: %w", id, err)
	}
	f.unsubs[id] = unsub
	return nil
}

func (f *natsFanout) Remove(id PlayerID) {
	if unsub, ok := f.unsubs[id]; ok {
		unsub()
		delete(f.unsubs, id)
	}
}

func (f *natsFanout) SendTo(id PlayerID, frame []byte) error {
	if _, ok := f.unsubs[id]; !ok {
		return ErrPeerClosed
	}
	return f.server.Publish(playerSubject(id), frame)
}

func (f *natsFanout) Broadcast(frame []byte, except PlayerID) int {
	failed := 0
	for id := range f.unsubs {
		if id == except {
			continue
		}
		if err := f.server.Publish(playerSubject(id), frame); err != nil {
			failed++
		}
	}
	return failed
}

func (f *natsFanout) Close() error {
	for id, unsub := range f.unsubs {
		unsub()
		delete(f.unsubs, id)
	}
	return nil
}
