package types

// ConfidenceLevel 置信度等级
type ConfidenceLevel string

const (
	LevelVeryHigh ConfidenceLevel = "very_high" // ≥0.9
	LevelHigh     ConfidenceLevel = "high"      // ≥0.8
	LevelMedium   ConfidenceLevel = "medium"    // ≥0.6
	LevelLow      ConfidenceLevel = "low"       // ≥0.4
	LevelVeryLow  ConfidenceLevel = "very_low"
)

// 置信度分量名。权重见 confidence 包。
const (
	ComponentRetrievalQuality  = "retrieval_quality"
	ComponentContextRelevance  = "context_relevance"
	ComponentResponseQuality   = "response_quality"
	ComponentSourceDiversity   = "source_diversity"
	ComponentQueryClarity      = "query_clarity"
	ComponentSystemPerformance = "system_performance"
)

// ConfidenceMetrics 置信度评估结果。每个请求重新计算，不跨请求持久化。
type ConfidenceMetrics struct {
	Overall             float64            `json:"overall"`
	ComponentScores     map[string]float64 `json:"component_scores"`
	Level               ConfidenceLevel    `json:"level"`
	FallbackRecommended bool               `json:"fallback_recommended"`
	Adjustments         []string           `json:"adjustments,omitempty"`
}

// LevelFor 返回置信度对应的等级。
func LevelFor(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 0.9:
		return LevelVeryHigh
	case confidence >= 0.8:
		return LevelHigh
	case confidence >= 0.6:
		return LevelMedium
	case confidence >= 0.4:
		return LevelLow
	default:
		return LevelVeryLow
	}
}
