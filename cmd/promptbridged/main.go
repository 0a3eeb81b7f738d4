package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"PromptBridge/internal/api"
	"PromptBridge/internal/bootstrap"
	"PromptBridge/internal/config"
	"PromptBridge/pkg/logger"
)

// main 是 PromptBridge HTTP 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("promptbridged 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runtime, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := runtime.Close(); err != nil {
			logger.L().Warn("关闭诊断输出失败", "error", err)
		}
		_ = logger.Sync()
	}()

	opts := []api.Option{api.WithShutdownTimeout(cfg.Server.ShutdownTimeout())}
	if runtime.Diagnostics.Store != nil {
		opts = append(opts, api.WithDiagnostics(runtime.Diagnostics.Store))
	}
	server := api.NewServer(cfg.Server.Address, runtime.Handler, opts...)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// defaultConfigNames 是未设置 PROMPTBRIDGE_CONFIG 时依次查找的文件。
var defaultConfigNames = []string{"promptbridge.yaml", "promptbridge.yml", "promptbridge.json"}

// loadConfig 优先读取 PROMPTBRIDGE_CONFIG；未设置且默认文件都不存在时只使用环境变量。
func loadConfig() (*config.Config, error) {
	if path := os.Getenv("PROMPTBRIDGE_CONFIG"); path != "" {
		return config.Load(path)
	}
	if path := findConfig("configs"); path != "" {
		return config.Load(path)
	}
	return config.FromEnv()
}

func findConfig(dir string) string {
	for _, name := range defaultConfigNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
