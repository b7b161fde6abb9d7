package query

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// ===== 检索策略选择器 =====

// StrategySelector 在任何检索发生之前决定检索路径。
// 规则是纯函数式的：相同输入总是产生相同决策。
type StrategySelector struct {
	logger *zap.Logger
}

// NewStrategySelector 创建策略选择器
func NewStrategySelector(logger *zap.Logger) *StrategySelector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StrategySelector{
		logger: logger.With(zap.String("component", "strategy_selector")),
	}
}

// 时效性指示词，命中即走纯 web 检索
var recencyIndicators = []string{
	"current", "latest", "recent", "now", "today", "2024", "2025",
	"news", "breaking", "update", "happening",
	"price", "stock", "weather", "score",
}

// 个人文档指示词，需会话中已有上传文档才生效
var personalDocIndicators = []string{
	"my document", "my file", "my upload", "uploaded",
	"in the document", "in my notes", "the file i",
}

// 各策略对应的置信度阈值（决定 fallback 触发的严格程度）
const (
	thresholdWeb     = 0.3
	thresholdFactual = 0.8
	thresholdOpinion = 0.5
	thresholdGeneral = 0.7
)

// Select 根据查询分析与会话上下文选择检索策略。
// session 可为 nil，视为无上传文档的新会话。
func (s *StrategySelector) Select(analysis *types.QueryAnalysis, session *types.SessionContext) *types.StrategyDecision {
	lower := strings.ToLower(analysis.NormalizedText)

	decision := &types.StrategyDecision{
		Strategy:            types.StrategyHybrid,
		Reason:              "default hybrid retrieval",
		ConfidenceThreshold: thresholdForType(analysis.QueryType),
		Timestamp:           time.Now(),
	}

	for _, ind := range recencyIndicators {
		if strings.Contains(lower, ind) {
			decision.Strategy = types.StrategyWebOnly
			decision.Reason = "recency indicator: " + ind
			decision.ConfidenceThreshold = thresholdWeb
			s.log(analysis, decision)
			return decision
		}
	}

	if session != nil && session.HasUploadedDocuments {
		for _, ind := range personalDocIndicators {
			if strings.Contains(lower, ind) {
				decision.Strategy = types.StrategyLocalOnly
				decision.Reason = "personal document reference with uploaded documents in session"
				s.log(analysis, decision)
				return decision
			}
		}
	}

	s.log(analysis, decision)
	return decision
}

func thresholdForType(qt types.QueryType) float64 {
	switch qt {
	case types.QueryTypeFactual:
		return thresholdFactual
	case types.QueryTypeComplex:
		return thresholdOpinion
	default:
		return thresholdGeneral
	}
}

func (s *StrategySelector) log(analysis *types.QueryAnalysis, d *types.StrategyDecision) {
	s.logger.Debug("strategy selected",
		zap.String("strategy", string(d.Strategy)),
		zap.String("reason", d.Reason),
		zap.Float64("threshold", d.ConfidenceThreshold),
		zap.String("query_type", string(analysis.QueryType)))
}
