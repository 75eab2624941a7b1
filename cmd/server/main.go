package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rohenhonghyuan/7ma-web/internal/api/handlers"
	"github.com/rohenhonghyuan/7ma-web/internal/api/sevenmate"
	"github.com/rohenhonghyuan/7ma-web/internal/cache"
	"github.com/rohenhonghyuan/7ma-web/internal/config"
	"github.com/rohenhonghyuan/7ma-web/internal/repository"
	"github.com/rohenhonghyuan/7ma-web/internal/service"
	"github.com/rohenhonghyuan/7ma-web/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting 7ma-web", zap.String("port", cfg.ServerPort))

	// 装载周期任务存储
	store := repository.NewTaskStore(cfg.TasksFile)
	if err := store.Load(); err != nil {
		logger.Warn("Failed to load periodic tasks, starting empty", zap.Error(err))
	}

	// 客户端工厂：预约循环和周期扫描各自持有独立客户端
	factory := func(token string) (service.Client, error) {
		client := sevenmate.NewClient(cfg.APIBaseURL)
		if err := client.SetToken(token, ""); err != nil {
			return nil, err
		}
		return client, nil
	}

	// 预约任务注册表
	registry := service.NewRegistry(logger, cfg, factory)

	// 周期扫描调度器
	scheduler := service.NewScheduler(logger, cfg, store, registry, factory)
	scheduler.Start()

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run()

	// 订阅任务状态更新并广播到 WebSocket
	go func() {
		statusCh := registry.Subscribe()
		for status := range statusCh {
			wsHub.BroadcastTaskUpdate(status)
		}
	}()

	// 用户信息缓存
	userCache := cache.New(cfg.UserCacheTTL)

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(logger, cfg, registry, scheduler, userCache, wsHub)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// 注册路由
	handler.RegisterRoutes(router)

	// 静态前端（可选）
	if cfg.StaticDir != "" {
		router.Static("/static", cfg.StaticDir)
		router.NoRoute(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/api") {
				c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
				return
			}
			c.File(filepath.Join(cfg.StaticDir, "index.html"))
		})
	}

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 停止调度器和所有预约任务
	scheduler.Shutdown()
	registry.StopAll()

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
