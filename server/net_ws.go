package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sasha-s/go-deadlock"

	"possync/protocol"
)

// ConnOptions 连接级参数，来自 transport 配置
type ConnOptions struct {
	SendQueue    int
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	ReadLimit    int64
}

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ID    PlayerID
	ws    *websocket.Conn
	codec protocol.Codec
	opts  ConnOptions

	mu     deadlock.Mutex
	send   chan []byte
	closed bool
}

func NewClientConn(id PlayerID, ws *websocket.Conn, codec protocol.Codec, opts ConnOptions) *ClientConn {
	return &ClientConn{
		ID:    id,
		ws:    ws,
		codec: codec,
		opts:  opts,
		send:  make(chan []byte, opts.SendQueue),
	}
}

// Send 将要发送的帧压入队列（非阻塞，满则丢弃）
func (c *ClientConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrPeerClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		// 为了实时性丢弃，下一帧快照会补上
		return ErrQueueFull
	}
}

// Close 关闭发送队列，写协程随之发出关闭帧并退出；可重复调用
func (c *ClientConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *ClientConn) messageType() int {
	if c.codec.Binary() {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定时 ping
func (c *ClientConn) writePump() {
	ping := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ping.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(c.messageType(), msg); err != nil {
				Log.Debugw("write failed", "player", c.ID, "err", err)
				return
			}
		case <-ping.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端帧，解码为 player-move 注入房间
func (c *ClientConn) readPump(room *Room, metrics *RoomMetrics) {
	defer c.ws.Close()
	// 读泵退出时，通知房间在 actor 协程中移除该玩家
	defer room.Leave(c.ID)
	defer c.Close()

	c.ws.SetReadLimit(c.opts.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				Log.Debugw("read failed", "player", c.ID, "err", err)
			}
			return
		}
		// 任何入站帧都说明连接存活
		_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))

		env, err := protocol.DecodeEnvelope(c.codec, frame)
		if err != nil {
			metrics.IncMalformed()
			Log.Debugw("malformed frame", "player", c.ID, "err", err)
			continue
		}
		mv, err := protocol.DecodeMove(c.codec, env)
		if err != nil {
			metrics.IncMalformed()
			Log.Debugw("malformed player-move", "player", c.ID, "err", err)
			continue
		}
		room.Input(c.ID, mv)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS WebSocket 接入：/ws?codec=json|msgpack
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	codec := s.codec
	if name := r.URL.Query().Get("codec"); name != "" {
		c, err := protocol.CodecByName(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		codec = c
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnf("upgrade error: %v", err)
		return
	}

	id := PlayerID(uuid.NewString())
	client := NewClientConn(id, ws, codec, s.connOpts)
	s.track(client)
	go func() {
		client.writePump()
		s.untrack(id)
	}()

	ctx, cancel := context.WithTimeout(r.Context(), s.connOpts.WriteWait)
	defer cancel()
	if _, err := s.room.Join(ctx, id, client); err != nil {
		Log.Warnw("join failed", "player", id, "err", err)
		client.Close()
		s.room.Leave(id)
		return
	}
	go client.readPump(s.room, s.room.Metrics())
}
