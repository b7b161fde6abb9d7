// =============================================================================
// 📦 RagFlow 配置结构
// =============================================================================
// 统一配置定义，覆盖编排器的全部可调参数：
// 置信度阈值、上下文预算、限流窗口、各阶段超时、重排序权重。
// 所有参数在 Orchestrator 层通过 UpdateConfig 热替换，无需重启。
// =============================================================================
package config

import "time"

// Config 是 RagFlow 引擎的完整配置结构
type Config struct {
	// Engine 编排器配置
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`

	// Retrieval 本地检索与上下文装配配置
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`

	// Confidence 置信度评估配置
	Confidence ConfidenceConfig `yaml:"confidence" env:"CONFIDENCE"`

	// Fallback Web 回退配置
	Fallback FallbackConfig `yaml:"fallback" env:"FALLBACK"`

	// Rerank 重排序配置
	Rerank RerankConfig `yaml:"rerank" env:"RERANK"`

	// Synthesis 结果合成配置
	Synthesis SynthesisConfig `yaml:"synthesis" env:"SYNTHESIS"`

	// Workflow 工作流跟踪配置
	Workflow WorkflowConfig `yaml:"workflow" env:"WORKFLOW"`

	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Backends 外部后端配置（向量库、嵌入服务、web 搜索）
	Backends BackendsConfig `yaml:"backends" env:"BACKENDS"`

	// Telemetry OpenTelemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`
}

// EngineConfig 编排器配置
type EngineConfig struct {
	// 回退触发阈值
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"CONFIDENCE_THRESHOLD"`
	// 是否启用 Web 回退
	EnableWebFallback bool `yaml:"enable_web_fallback" env:"ENABLE_WEB_FALLBACK"`
	// 单请求最大处理时间
	MaxProcessingTime time.Duration `yaml:"max_processing_time" env:"MAX_PROCESSING_TIME"`
	// 批处理并发 worker 数
	BatchWorkers int `yaml:"batch_workers" env:"BATCH_WORKERS"`
	// LLM 生成超时
	GenerationTimeout time.Duration `yaml:"generation_timeout" env:"GENERATION_TIMEOUT"`
}

// RetrievalConfig 本地检索配置
type RetrievalConfig struct {
	// 向量库集合名
	Collection string `yaml:"collection" env:"COLLECTION"`
	// 检索结果上限
	MaxResults int `yaml:"max_results" env:"MAX_RESULTS"`
	// 相似度下限
	ScoreThreshold float64 `yaml:"score_threshold" env:"SCORE_THRESHOLD"`
	// 向量检索超时
	SearchTimeout time.Duration `yaml:"search_timeout" env:"SEARCH_TIMEOUT"`
	// 默认上下文类型（focused / comprehensive / summary）
	ContextType string `yaml:"context_type" env:"CONTEXT_TYPE"`
	// 上下文预算（按类型）
	ContextBudgets map[string]ContextBudget `yaml:"context_budgets" env:"-"`
	// tiktoken 模型名，计数失败时回退到字符估算
	TokenizerModel string `yaml:"tokenizer_model" env:"TOKENIZER_MODEL"`
}

// ContextBudget 单个上下文类型的装配预算
type ContextBudget struct {
	MaxChunks int `yaml:"max_chunks"`
	MaxLength int `yaml:"max_length"`
}

// ConfidenceConfig 置信度评估配置
type ConfidenceConfig struct {
	// 回退阈值（低于此值建议回退）
	FallbackThreshold float64 `yaml:"fallback_threshold" env:"FALLBACK_THRESHOLD"`
	// 是否启用历史数据自动校准
	EnableCalibration bool `yaml:"enable_calibration" env:"ENABLE_CALIBRATION"`
	// 校准目标命中率
	CalibrationTarget float64 `yaml:"calibration_target" env:"CALIBRATION_TARGET"`
	// 校准所需最小样本数
	CalibrationMinSamples int `yaml:"calibration_min_samples" env:"CALIBRATION_MIN_SAMPLES"`
}

// FallbackConfig Web 回退配置
type FallbackConfig struct {
	// Web 搜索结果上限
	MaxResults int `yaml:"max_results" env:"MAX_RESULTS"`
	// Web 搜索超时
	SearchTimeout time.Duration `yaml:"search_timeout" env:"SEARCH_TIMEOUT"`
	// 结果缓存 TTL
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	// 限流：每分钟调用上限
	CallsPerMinute int `yaml:"calls_per_minute" env:"CALLS_PER_MINUTE"`
	// 限流：每小时调用上限
	CallsPerHour int `yaml:"calls_per_hour" env:"CALLS_PER_HOUR"`
	// 限流触发时等待（true）还是快速失败（false）
	WaitOnRateLimit bool `yaml:"wait_on_rate_limit" env:"WAIT_ON_RATE_LIMIT"`
	// 包含域名过滤
	IncludeDomains []string `yaml:"include_domains" env:"INCLUDE_DOMAINS"`
	// 排除域名过滤
	ExcludeDomains []string `yaml:"exclude_domains" env:"EXCLUDE_DOMAINS"`
}

// RerankConfig 重排序配置
type RerankConfig struct {
	// 各信号权重
	RelevanceWeight  float64 `yaml:"relevance_weight" env:"RELEVANCE_WEIGHT"`
	TextMatchWeight  float64 `yaml:"text_match_weight" env:"TEXT_MATCH_WEIGHT"`
	QualityWeight    float64 `yaml:"quality_weight" env:"QUALITY_WEIGHT"`
	FreshnessWeight  float64 `yaml:"freshness_weight" env:"FRESHNESS_WEIGHT"`
	AuthorityWeight  float64 `yaml:"authority_weight" env:"AUTHORITY_WEIGHT"`
	// 合并结果上限
	MaxResults int `yaml:"max_results" env:"MAX_RESULTS"`
	// 本地候选固定信任分
	LocalTrustScore float64 `yaml:"local_trust_score" env:"LOCAL_TRUST_SCORE"`
}

// SynthesisConfig 结果合成配置
type SynthesisConfig struct {
	// 每个来源提取的关键句上限
	MaxKeyPointsPerSource int `yaml:"max_key_points_per_source" env:"MAX_KEY_POINTS"`
	// 引用条目上限
	MaxCitations int `yaml:"max_citations" env:"MAX_CITATIONS"`
	// 合成文本长度上限
	MaxResponseLength int `yaml:"max_response_length" env:"MAX_RESPONSE_LENGTH"`
}

// WorkflowConfig 工作流跟踪配置
type WorkflowConfig struct {
	// 已完成工作流保留上限
	MaxCompleted int `yaml:"max_completed" env:"MAX_COMPLETED"`
	// 已完成工作流最大保留时长
	MaxAge time.Duration `yaml:"max_age" env:"MAX_AGE"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	// API 监听端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 指标监听端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// API Key 列表，为空时不启用认证
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 每 IP 限流速率（请求/秒）
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 每 IP 限流突发量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 允许的跨域来源，为空时拒绝跨域
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// BackendsConfig 外部后端配置。
// 任一后端留空时，serve 命令以降级模式启动（无对应能力）。
type BackendsConfig struct {
	// Qdrant 向量库地址，例如 http://localhost:6333
	QdrantURL string `yaml:"qdrant_url" env:"QDRANT_URL"`
	// Qdrant API Key，可为空
	QdrantAPIKey string `yaml:"qdrant_api_key" env:"QDRANT_API_KEY"`
	// 嵌入服务地址（OpenAI 兼容），例如 https://api.openai.com/v1
	EmbeddingURL string `yaml:"embedding_url" env:"EMBEDDING_URL"`
	// 嵌入服务 API Key
	EmbeddingAPIKey string `yaml:"embedding_api_key" env:"EMBEDDING_API_KEY"`
	// 嵌入模型名称
	EmbeddingModel string `yaml:"embedding_model" env:"EMBEDDING_MODEL"`
	// Web 搜索服务地址
	WebSearchURL string `yaml:"web_search_url" env:"WEB_SEARCH_URL"`
	// Web 搜索 API Key
	WebSearchAPIKey string `yaml:"web_search_api_key" env:"WEB_SEARCH_API_KEY"`
}

// TelemetryConfig OpenTelemetry 配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP gRPC 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率 [0,1]
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 级别: debug / info / warn / error
	Level string `yaml:"level" env:"LEVEL"`
	// 格式: json / console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 文件输出（设置后启用 lumberjack 滚动）
	File LogFileConfig `yaml:"file" env:"FILE"`
}

// LogFileConfig 日志文件滚动配置
type LogFileConfig struct {
	Path       string `yaml:"path" env:"PATH"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
}
