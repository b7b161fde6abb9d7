package types

import "time"

// SearchType 结果信封中记录的实际搜索路径
type SearchType string

const (
	SearchTypeLocal             SearchType = "local"
	SearchTypeWeb               SearchType = "web"
	SearchTypeHybrid            SearchType = "hybrid"
	SearchTypeFallbackWeb       SearchType = "fallback_web"
	SearchTypeEmergencyFallback SearchType = "emergency_fallback"
)

// RetrievalResult 检索阶段的完整产出
type RetrievalResult struct {
	QueryAnalysis    *QueryAnalysis    `json:"query_analysis"`
	SearchResults    []Candidate       `json:"search_results"`
	AssembledContext *AssembledContext `json:"assembled_context"`
	Confidence       float64           `json:"retrieval_confidence"`
	ProcessingTime   time.Duration     `json:"processing_time"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

// Citation 单条来源引用
type Citation struct {
	ID         string     `json:"id"`
	SourceKind SourceKind `json:"source_kind"`
	Title      string     `json:"title,omitempty"`
	Domain     string     `json:"domain,omitempty"`
	TrustScore float64    `json:"trust_score"`
}

// SourceQuality 来源质量评级
type SourceQuality string

const (
	SourceQualityHigh   SourceQuality = "high"
	SourceQualityMedium SourceQuality = "medium"
	SourceQualityLow    SourceQuality = "low"
)

// SynthesizedResponse 合成阶段的产出
type SynthesizedResponse struct {
	ResponseText       string         `json:"response_text"`
	Citations          []Citation     `json:"citations"`
	AttributionSummary string         `json:"attribution_summary"`
	SourceQuality      SourceQuality  `json:"source_quality"`
	Confidence         float64        `json:"confidence"`
	ProcessingTime     time.Duration  `json:"processing_time"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// RAGResult 返回给调用方的最终结果信封。
// 终态、不可变，每个请求返回一次；引擎本身不持有它。
type RAGResult struct {
	Query               string               `json:"query"`
	RetrievalResult     *RetrievalResult     `json:"retrieval_result"`
	SynthesizedResponse *SynthesizedResponse `json:"synthesized_response"`
	Confidence          float64              `json:"confidence"`
	ConfidenceMetrics   *ConfidenceMetrics   `json:"confidence_metrics,omitempty"`
	SearchType          SearchType           `json:"search_type"`
	FallbackUsed        bool                 `json:"fallback_used"`
	Timestamp           time.Time            `json:"timestamp"`
	ProcessingTime      time.Duration        `json:"total_processing_time"`
	Metadata            map[string]any       `json:"metadata,omitempty"`
}
