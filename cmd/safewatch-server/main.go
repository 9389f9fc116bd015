package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/alexlav17/SafeWatch-ReceiveData/internal/config"
	"github.com/alexlav17/SafeWatch-ReceiveData/internal/service"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	logger, err := initLogger(cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer logger.Sync()

	// 3. 创建监控服务
	monitor, err := service.NewMonitor(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create monitor service",
			zap.Error(err),
		)
	}
	defer monitor.Stop()

	// 4. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. 启动服务（在 goroutine 中）
	serviceErrChan := make(chan error, 1)
	go func() {
		if err := monitor.Start(ctx); err != nil {
			serviceErrChan <- err
		}
	}()

	logger.Info("SafeWatch monitor started",
		zap.String("udp_host", cfg.UDP.Host),
		zap.Int("udp_port", cfg.UDP.Port),
		zap.String("http_addr", cfg.HTTP.Addr),
	)

	// 6. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
		cancel()
	case err := <-serviceErrChan:
		logger.Fatal("Service error",
			zap.Error(err),
		)
	}

	logger.Info("SafeWatch monitor stopped")
}

// initLogger 初始化日志
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Log.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	zapCfg.Level = level

	return zapCfg.Build()
}
