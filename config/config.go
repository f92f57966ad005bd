package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	goerrors "github.com/pixil98/go-errors"
)

// Config 服务端全部配置，JSON 文件 → .env → 环境变量 逐层覆盖
type Config struct {
	Server     ServerConfig     `json:"server"`
	Log        LogConfig        `json:"log"`
	Simulation SimulationConfig `json:"simulation"`
	Map        MapConfig        `json:"map"`
	Transport  TransportConfig  `json:"transport"`
	Nats       NatsConfig       `json:"nats"`
}

type ServerConfig struct {
	Addr            string `json:"addr"`
	StaticDir       string `json:"static_dir"`
	ShutdownTimeout string `json:"shutdown_timeout"`
}

type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Console    bool   `json:"console"`
}

type SimulationConfig struct {
	TickHz      int     `json:"tick_hz"`
	BoundsCheck bool    `json:"bounds_check"`
	SpawnX      float64 `json:"spawn_x"`
	SpawnY      float64 `json:"spawn_y"`
	Width       float64 `json:"player_width"`
	Height      float64 `json:"player_height"`
	Velocity    float64 `json:"player_velocity"`
	InboxSize   int     `json:"inbox_size"`
}

type MapConfig struct {
	// File 为空时使用内置生成器；否则从 Dir 下读取 TMX
	File string `json:"file"`
	Dir  string `json:"dir"`
}

type TransportConfig struct {
	Codec        string `json:"codec"`
	Fanout       string `json:"fanout"`
	SendQueue    int    `json:"send_queue"`
	PingInterval string `json:"ping_interval"`
	PongWait     string `json:"pong_wait"`
	WriteWait    string `json:"write_wait"`
	ReadLimit    int64  `json:"read_limit"`
}

type NatsConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	StartTimeout string `json:"start_timeout"`
}

// Default 与原版一致的默认值：60Hz、出生点 (200,200)、50x50、速度 5
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":4000",
			StaticDir:       "web",
			ShutdownTimeout: "5s",
		},
		Log: LogConfig{
			File:       "app.log",
			Level:      "debug",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Simulation: SimulationConfig{
			TickHz:      60,
			BoundsCheck: true,
			SpawnX:      200,
			SpawnY:      200,
			Width:       50,
			Height:      50,
			Velocity:    5,
			InboxSize:   256,
		},
		Transport: TransportConfig{
			Codec:        "json",
			Fanout:       "direct",
			SendQueue:    64,
			PingInterval: "2s",
			PongWait:     "5s",
			WriteWait:    "5s",
			ReadLimit:    1 << 20,
		},
		Nats: NatsConfig{
			Host:         "127.0.0.1",
			Port:         -1,
			StartTimeout: "10s",
		},
	}
}

// Load 读取配置；path 为空时只用默认值 + 环境变量
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %q: %w", path, err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
		}
	}

	// .env 可选，不存在不算错误
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	el := goerrors.NewErrorList()

	if v := getenv("POSSYNC_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := getenv("POSSYNC_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := getenv("POSSYNC_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("POSSYNC_CODEC"); v != "" {
		c.Transport.Codec = v
	}
	if v := getenv("POSSYNC_FANOUT"); v != "" {
		c.Transport.Fanout = v
	}
	if v := getenv("POSSYNC_MAP_FILE"); v != "" {
		c.Map.File = v
	}
	if v := getenv("POSSYNC_TICK_HZ"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			el.Add(fmt.Errorf("parsing POSSYNC_TICK_HZ: %w", err))
		} else {
			c.Simulation.TickHz = n
		}
	}
	if v := getenv("POSSYNC_BOUNDS_CHECK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			el.Add(fmt.Errorf("parsing POSSYNC_BOUNDS_CHECK: %w", err))
		} else {
			c.Simulation.BoundsCheck = b
		}
	}

	return el.Err()
}

func (c *Config) Validate() error {
	el := goerrors.NewErrorList()

	el.Add(c.Server.validate())
	el.Add(c.Log.validate())
	el.Add(c.Simulation.validate())
	el.Add(c.Transport.validate())
	if c.Transport.Fanout == "nats" {
		el.Add(c.Nats.validate())
	}

	return el.Err()
}

func (c *ServerConfig) validate() error {
	el := goerrors.NewErrorList()

	if c.Addr == "" {
		el.Add(fmt.Errorf("server.addr is required"))
	}
	el.Add(validDuration("server.shutdown_timeout", c.ShutdownTimeout))

	return el.Err()
}

func (c *LogConfig) validate() error {
	el := goerrors.NewErrorList()

	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error":
	default:
		el.Add(fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Level))
	}
	if c.File == "" && !c.Console {
		el.Add(fmt.Errorf("log.file is required unless log.console is set"))
	}

	return el.Err()
}

func (c *SimulationConfig) validate() error {
	el := goerrors.NewErrorList()

	if c.TickHz <= 0 || c.TickHz > 1000 {
		el.Add(fmt.Errorf("simulation.tick_hz must be in (0, 1000], got %d", c.TickHz))
	}
	if c.Width <= 0 || c.Height <= 0 {
		el.Add(fmt.Errorf("simulation player size must be positive"))
	}
	if c.Velocity <= 0 {
		el.Add(fmt.Errorf("simulation.player_velocity must be positive"))
	}
	if c.InboxSize <= 0 {
		el.Add(fmt.Errorf("simulation.inbox_size must be positive"))
	}

	return el.Err()
}

func (c *TransportConfig) validate() error {
	el := goerrors.NewErrorList()

	switch strings.ToLower(c.Codec) {
	case "json", "msgpack":
	default:
		el.Add(fmt.Errorf("transport.codec %q must be json or msgpack", c.Codec))
	}
	switch c.Fanout {
	case "direct", "nats":
	default:
		el.Add(fmt.Errorf("transport.fanout %q must be direct or nats", c.Fanout))
	}
	if c.SendQueue <= 0 {
		el.Add(fmt.Errorf("transport.send_queue must be positive"))
	}
	el.Add(validDuration("transport.ping_interval", c.PingInterval))
	el.Add(validDuration("transport.pong_wait", c.PongWait))
	el.Add(validDuration("transport.write_wait", c.WriteWait))

	ping, perr := time.ParseDuration(c.PingInterval)
	pong, werr := time.ParseDuration(c.PongWait)
	if perr == nil && werr == nil && ping >= pong {
		el.Add(fmt.Errorf("transport.ping_interval must be shorter than transport.pong_wait"))
	}

	return el.Err()
}

func (c *NatsConfig) validate() error {
	el := goerrors.NewErrorList()

	if c.Host == "" {
		el.Add(fmt.Errorf("nats.host is required"))
	}
	el.Add(validDuration("nats.start_timeout", c.StartTimeout))

	return el.Err()
}

func validDuration(name, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", name)
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}

// Duration 已通过校验的时长字段
func Duration(v string) time.Duration {
	d, _ := time.ParseDuration(v)
	return d
}

// TickInterval 由 TickHz 计算
func (c SimulationConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickHz)
}
