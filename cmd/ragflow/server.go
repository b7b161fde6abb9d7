package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow"
	"github.com/BaSui01/ragflow/api/handlers"
	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/internal/server"
)

// =============================================================================
// Server 结构
// =============================================================================

// Server 是 RagFlow 的主服务器，管理 HTTP 与 Metrics 双端口。
type Server struct {
	cfg      *config.Config
	engine   *ragflow.Engine
	backends engineBackends
	logger   *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler *handlers.HealthHandler
	queryHandler  *handlers.QueryHandler

	// 限流器清扫与工作流清理共用的后台上下文
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// 过期工作流记录的清理周期
const workflowCleanupInterval = time.Hour

// NewServer 创建服务器实例
func NewServer(cfg *config.Config, engine *ragflow.Engine, backends engineBackends, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		engine:   engine,
		backends: backends,
		logger:   logger,
	}
}

// =============================================================================
// 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())
	s.initHandlers()

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	go s.runWorkflowCleanup()

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// initHandlers 初始化所有 handlers 与就绪检查
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.queryHandler = handlers.NewQueryHandler(s.engine, s.logger)

	// 就绪探针只覆盖已配置的后端
	if s.backends.qdrant != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("vector_store", s.backends.qdrant.Ping))
	}
}

// =============================================================================
// HTTP 服务器
// =============================================================================

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// API 路由
	mux.HandleFunc("/api/v1/query", s.queryHandler.HandleQuery)
	mux.HandleFunc("/api/v1/query/batch", s.queryHandler.HandleBatch)
	mux.HandleFunc("/api/v1/workflows/", s.queryHandler.HandleWorkflow)
	mux.HandleFunc("/api/v1/calibrate", s.queryHandler.HandleCalibrate)

	// 中间件链
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(s.bgCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.engine.Registry(), promhttp.HandlerOpts{}))

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 后台任务
// =============================================================================

// runWorkflowCleanup 周期清理超龄的已完成工作流记录
func (s *Server) runWorkflowCleanup() {
	ticker := time.NewTicker(workflowCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.bgCtx.Done():
			return
		case <-ticker.C:
			if err := s.engine.CleanupWorkflows(s.bgCtx); err != nil {
				s.logger.Warn("workflow cleanup failed", zap.Error(err))
			}
		}
	}
}

// =============================================================================
// 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	if s.bgCancel != nil {
		s.bgCancel()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
