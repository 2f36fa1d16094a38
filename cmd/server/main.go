package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/taoyao-code/pos-server/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/pos-server/internal/config"
	"github.com/taoyao-code/pos-server/internal/logging"
)

// @title POS Device Presence API
// @version 1.0
// @description POS 设备在线状态与心跳服务
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func main() {
	// 1) 加载配置
	cfg, err := cfgpkg.Load("")
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	// 3) 启动
	if err := bootstrap.Run(cfg, log); err != nil {
		log.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
}
