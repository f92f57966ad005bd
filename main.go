package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"possync/config"
	"possync/server"
)

// possync 入口：加载配置，启动 HTTP + WebSocket 服务与唯一的权威房间
func main() {
	var addr, cfgPath string
	flag.StringVar(&addr, "addr", "", "server listen address, e.g. :4000 (overrides config)")
	flag.StringVar(&cfgPath, "config", "", "path to a JSON config file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	// 使用 zap 日志写入滚动文件
	if err := server.InitLogger(cfg.Log); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	srv, err := server.New(cfg)
	if err != nil {
		server.Log.Fatalf("init: %v", err)
	}

	// 优雅退出（Ctrl+C）
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server.Log.Infof("possync starting; open http://localhost%v/", cfg.Server.Addr)
	if err := srv.Run(ctx); err != nil {
		server.Log.Errorf("server: %v", err)
	}
	server.Log.Info("stopped")
}
