// =============================================================================
// RagFlow 主入口
// =============================================================================
// 混合检索引擎的服务入口点，包含 HTTP 服务、健康检查、Prometheus 指标
//
// 使用方法:
//
//	ragflow serve                       # 启动服务
//	ragflow serve --config config.yaml  # 指定配置文件
//	ragflow query "what is RAG?"        # 一次性查询（直接输出 JSON）
//	ragflow version                     # 显示版本信息
//	ragflow health                      # 健康检查
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow"
	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/fallback"
	"github.com/BaSui01/ragflow/internal/logging"
	"github.com/BaSui01/ragflow/internal/telemetry"
	"github.com/BaSui01/ragflow/retrieval"
	"github.com/BaSui01/ragflow/store"
)

// =============================================================================
// 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "query":
		runQuery(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, logger := loadConfigAndLogger(*configPath)
	defer logger.Sync()

	logger.Info("Starting RagFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	backends := buildBackends(cfg, logger)

	engine, err := ragflow.New(cfg, backends.searcher, backends.webSearcher, logger)
	if err != nil {
		logger.Fatal("Failed to create engine", zap.Error(err))
	}
	defer engine.Close()

	server := NewServer(cfg, engine, backends, logger)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	server.WaitForShutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := otelProviders.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown error", zap.Error(err))
	}

	logger.Info("RagFlow stopped")
}

// =============================================================================
// query 命令（一次性查询）
// =============================================================================

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	timeout := fs.Duration("timeout", 60*time.Second, "Query timeout")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: ragflow query [options] <query text>")
		os.Exit(1)
	}
	queryText := fs.Arg(0)

	cfg, logger := loadConfigAndLogger(*configPath)
	defer logger.Sync()

	backends := buildBackends(cfg, logger)

	engine, err := ragflow.New(cfg, backends.searcher, backends.webSearcher, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := engine.ProcessQuery(ctx, queryText, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// =============================================================================
// 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 配置与日志初始化
// =============================================================================

func loadConfigAndLogger(configPath string) (*config.Config, *zap.Logger) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger
}

// =============================================================================
// 后端装配
// =============================================================================

// engineBackends 按配置装配的外部后端。未配置的后端为 nil，
// 引擎以降级模式运行（本地检索缺失时走回退，web 缺失时走应急响应）。
type engineBackends struct {
	searcher    retrieval.VectorSearcher
	webSearcher fallback.WebSearcher
	qdrant      *store.QdrantSearcher
}

func buildBackends(cfg *config.Config, logger *zap.Logger) engineBackends {
	var b engineBackends

	if cfg.Backends.QdrantURL != "" && cfg.Backends.EmbeddingURL != "" {
		embedder, err := store.NewOpenAIEmbedder(store.EmbedderConfig{
			BaseURL: cfg.Backends.EmbeddingURL,
			APIKey:  cfg.Backends.EmbeddingAPIKey,
			Model:   cfg.Backends.EmbeddingModel,
		})
		if err != nil {
			logger.Warn("Embedder not available, local retrieval disabled", zap.Error(err))
		} else {
			qdrant, err := store.NewQdrantSearcher(store.QdrantConfig{
				BaseURL:    cfg.Backends.QdrantURL,
				APIKey:     cfg.Backends.QdrantAPIKey,
				Collection: cfg.Retrieval.Collection,
			}, embedder, logger)
			if err != nil {
				logger.Warn("Qdrant not available, local retrieval disabled", zap.Error(err))
			} else {
				b.searcher = qdrant
				b.qdrant = qdrant
				logger.Info("Vector store configured", zap.String("url", cfg.Backends.QdrantURL))
			}
		}
	} else {
		logger.Info("Vector store not configured, local retrieval disabled")
	}

	if cfg.Backends.WebSearchAPIKey != "" {
		web, err := store.NewTavilySearcher(store.TavilyConfig{
			BaseURL: cfg.Backends.WebSearchURL,
			APIKey:  cfg.Backends.WebSearchAPIKey,
		})
		if err != nil {
			logger.Warn("Web search not available, fallback degraded", zap.Error(err))
		} else {
			b.webSearcher = web
			logger.Info("Web search configured")
		}
	} else {
		logger.Info("Web search not configured, fallback degraded to emergency responses")
	}

	return b
}

// =============================================================================
// 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("RagFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`RagFlow - Hybrid Retrieval Engine

Usage:
  ragflow <command> [options]

Commands:
  serve     Start the RagFlow server
  query     Run a single query and print the result as JSON
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Options for 'query':
  --config <path>   Path to configuration file (YAML)
  --timeout <dur>   Query timeout (default 60s)

Examples:
  ragflow serve
  ragflow serve --config /etc/ragflow/config.yaml
  ragflow query "what is hybrid retrieval?"
  ragflow health --addr http://localhost:8080
  ragflow version`)
}
