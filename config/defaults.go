// =============================================================================
// 📦 RagFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回完整默认配置
func DefaultConfig() *Config {
	return &Config{
		Engine:     DefaultEngineConfig(),
		Retrieval:  DefaultRetrievalConfig(),
		Confidence: DefaultConfidenceConfig(),
		Fallback:   DefaultFallbackConfig(),
		Rerank:     DefaultRerankConfig(),
		Synthesis:  DefaultSynthesisConfig(),
		Workflow:   DefaultWorkflowConfig(),
		Server:     DefaultServerConfig(),
		Backends:   DefaultBackendsConfig(),
		Telemetry:  DefaultTelemetryConfig(),
		Log:        DefaultLogConfig(),
	}
}

// DefaultEngineConfig 返回默认编排器配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ConfidenceThreshold: 0.7,
		EnableWebFallback:   true,
		MaxProcessingTime:   30 * time.Second,
		BatchWorkers:        8,
		GenerationTimeout:   30 * time.Second,
	}
}

// DefaultRetrievalConfig 返回默认检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		Collection:     "documents",
		MaxResults:     10,
		ScoreThreshold: 0.0,
		SearchTimeout:  10 * time.Second,
		ContextType:    "comprehensive",
		ContextBudgets: map[string]ContextBudget{
			"focused":       {MaxChunks: 3, MaxLength: 1500},
			"comprehensive": {MaxChunks: 10, MaxLength: 4000},
			"summary":       {MaxChunks: 5, MaxLength: 2000},
		},
		TokenizerModel: "gpt-4o",
	}
}

// DefaultConfidenceConfig 返回默认置信度配置
func DefaultConfidenceConfig() ConfidenceConfig {
	return ConfidenceConfig{
		FallbackThreshold:     0.7,
		EnableCalibration:     false,
		CalibrationTarget:     0.85,
		CalibrationMinSamples: 10,
	}
}

// DefaultFallbackConfig 返回默认回退配置
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		MaxResults:      10,
		SearchTimeout:   10 * time.Second,
		CacheTTL:        30 * time.Minute,
		CallsPerMinute:  50,
		CallsPerHour:    1000,
		WaitOnRateLimit: false,
	}
}

// DefaultRerankConfig 返回默认重排序配置
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		RelevanceWeight: 0.4,
		TextMatchWeight: 0.1,
		QualityWeight:   0.2,
		FreshnessWeight: 0.1,
		AuthorityWeight: 0.2,
		MaxResults:      20,
		LocalTrustScore: 0.9,
	}
}

// DefaultSynthesisConfig 返回默认合成配置
func DefaultSynthesisConfig() SynthesisConfig {
	return SynthesisConfig{
		MaxKeyPointsPerSource: 3,
		MaxCitations:          5,
		MaxResponseLength:     3000,
	}
}

// DefaultWorkflowConfig 返回默认工作流配置
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		MaxCompleted: 100,
		MaxAge:       24 * time.Hour,
	}
}

// DefaultServerConfig 返回默认服务配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9090,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// DefaultBackendsConfig 返回默认后端配置。地址默认留空，由部署方显式配置。
func DefaultBackendsConfig() BackendsConfig {
	return BackendsConfig{
		EmbeddingModel: "text-embedding-3-small",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置（默认禁用）
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "ragflow",
		SampleRate:   1.0,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}
