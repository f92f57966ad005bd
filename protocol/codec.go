package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrEmptyFrame  = errors.New("empty frame")
	ErrVersion     = errors.New("unsupported protocol version")
	ErrUnknownType = errors.New("unknown message type")
)

// Envelope 线上帧：版本 + 消息名 + 原始载荷（载荷编码与外层一致）
type Envelope struct {
	V int
	T string
	P []byte
}

// Codec 负责帧与载荷的编解码；JSON 走文本帧，msgpack 走二进制帧
type Codec interface {
	Name() string
	Binary() bool
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error

	wrap(env Envelope) ([]byte, error)
	unwrap(b []byte) (Envelope, error)
}

// CodecByName 根据配置名选择编解码器（json / msgpack）
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return Msgpack, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// Encode 先编码载荷，再包进带版本的信封
func Encode(c Codec, t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("encode: empty message type")
	}
	if payload == nil {
		return nil, fmt.Errorf("encode %s: nil payload", t)
	}
	pb, err := c.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return c.wrap(Envelope{V: Version, T: t, P: pb})
}

// DecodeEnvelope 解析并校验信封：版本必须一致，消息名必须已知
func DecodeEnvelope(c Codec, b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, ErrEmptyFrame
	}
	env, err := c.unwrap(b)
	if err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.V != Version {
		return Envelope{}, fmt.Errorf("%w: got %d, want %d", ErrVersion, env.V, Version)
	}
	if !KnownType(env.T) {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownType, env.T)
	}
	return env, nil
}

// DecodePayload 把信封载荷解码成具体消息类型
func DecodePayload[T any](c Codec, env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, fmt.Errorf("empty payload for type %q", env.T)
	}
	if err := c.Unmarshal(env.P, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", env.T, err)
	}
	return out, nil
}

// DecodeMove 解码并校验客户端移动输入
func DecodeMove(c Codec, env Envelope) (PlayerMove, error) {
	if env.T != MsgPlayerMove {
		return PlayerMove{}, fmt.Errorf("%w: %q is not %s", ErrUnknownType, env.T, MsgPlayerMove)
	}
	mv, err := DecodePayload[PlayerMove](c, env)
	if err != nil {
		return PlayerMove{}, err
	}
	d, err := ParseDirection(string(mv.Direction))
	if err != nil {
		return PlayerMove{}, err
	}
	mv.Direction = d
	if mv.EventID != nil && *mv.EventID < 0 {
		return PlayerMove{}, fmt.Errorf("negative eventId %d", *mv.EventID)
	}
	return mv, nil
}

var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

type jsonCodec struct{}

type jsonEnvelope struct {
	V int             `json:"v"`
	T string          `json:"t"`
	P json.RawMessage `json:"p"`
}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Binary() bool                       { return false }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) wrap(env Envelope) ([]byte, error) {
	return json.Marshal(jsonEnvelope{V: env.V, T: env.T, P: env.P})
}

func (jsonCodec) unwrap(b []byte) (Envelope, error) {
	var e jsonEnvelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	return Envelope{V: e.V, T: e.T, P: e.P}, nil
}

// msgpack 复用 json 标签，两种编码字段名一致
type msgpackCodec struct{}

type msgpackEnvelope struct {
	V int                `json:"v"`
	T string             `json:"t"`
	P msgpack.RawMessage `json:"p"`
}

func (msgpackCodec) Name() string { return "msgpack" }
func (msgpackCodec) Binary() bool { return true }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

func (c msgpackCodec) wrap(env Envelope) ([]byte, error) {
	return c.Marshal(msgpackEnvelope{V: env.V, T: env.T, P: env.P})
}

func (c msgpackCodec) unwrap(b []byte) (Envelope, error) {
	var e msgpackEnvelope
	if err := c.Unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	return Envelope{V: e.V, T: e.T, P: e.P}, nil
}
