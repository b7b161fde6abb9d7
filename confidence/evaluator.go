// 包 confidence 实现多分量置信度评估与阈值校准。
// 评估器把检索、上下文、响应等分量按固定权重聚合为总体置信度，
// 并给出是否建议回退的判断；校准器根据历史反馈滑动调整回退阈值。
package confidence

import (
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// ===== 置信度评估器 =====

// 各分量固定权重，总和为 1.0
const (
	weightRetrieval = 0.30
	weightContext   = 0.25
	weightResponse  = 0.20
	weightDiversity = 0.10
	weightClarity   = 0.10
	weightSystem    = 0.05
)

// 分量缺失时的中性默认值
const (
	neutralResponse  = 0.5
	neutralDiversity = 0.5
	neutralClarity   = 0.5
	defaultSystem    = 0.8
)

// Input 评估输入。Retrieval 之外的字段都可以缺省，
// 缺省分量取中性默认值。
type Input struct {
	Retrieval *types.RetrievalResult
	Response  *types.SynthesizedResponse
	// SystemScore 可选的系统健康分（0 表示未提供，使用默认 0.8）
	SystemScore float64
}

// Evaluator 置信度评估器。无跨请求状态，可并发使用。
type Evaluator struct {
	threshold float64
	logger    *zap.Logger
}

// NewEvaluator 创建评估器。threshold 是回退建议的置信度阈值。
func NewEvaluator(threshold float64, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		threshold: threshold,
		logger:    logger.With(zap.String("component", "confidence_evaluator")),
	}
}

// Evaluate 计算总体置信度与分量明细。
// threshold 覆盖构造时的阈值（<=0 时不覆盖）。
func (e *Evaluator) Evaluate(in Input, threshold float64) *types.ConfidenceMetrics {
	if threshold <= 0 {
		threshold = e.threshold
	}

	scores := map[string]float64{
		types.ComponentRetrievalQuality:  retrievalScore(in.Retrieval),
		types.ComponentContextRelevance:  contextScore(in.Retrieval),
		types.ComponentResponseQuality:   responseScore(in.Response),
		types.ComponentSourceDiversity:   diversityScore(in.Retrieval),
		types.ComponentQueryClarity:      clarityScore(in.Retrieval),
		types.ComponentSystemPerformance: systemScore(in.SystemScore),
	}

	overall := weightRetrieval*scores[types.ComponentRetrievalQuality] +
		weightContext*scores[types.ComponentContextRelevance] +
		weightResponse*scores[types.ComponentResponseQuality] +
		weightDiversity*scores[types.ComponentSourceDiversity] +
		weightClarity*scores[types.ComponentQueryClarity] +
		weightSystem*scores[types.ComponentSystemPerformance]

	overall, adjustments := applyAdjustments(overall, scores)
	overall = clamp01(overall)

	metrics := &types.ConfidenceMetrics{
		Overall:             overall,
		ComponentScores:     scores,
		Level:               types.LevelFor(overall),
		FallbackRecommended: overall < threshold,
		Adjustments:         adjustments,
	}

	e.logger.Debug("confidence evaluated",
		zap.Float64("overall", overall),
		zap.String("level", string(metrics.Level)),
		zap.Bool("fallback_recommended", metrics.FallbackRecommended),
		zap.Float64("threshold", threshold))

	return metrics
}

// applyAdjustments 在加权和之上做边界调整：
// 强分量小幅奖励，弱分量明显惩罚。
func applyAdjustments(overall float64, scores map[string]float64) (float64, []string) {
	var adjustments []string

	if scores[types.ComponentRetrievalQuality] >= 0.8 {
		overall += 0.05
		adjustments = append(adjustments, "strong_retrieval:+0.05")
	}
	if scores[types.ComponentContextRelevance] >= 0.8 {
		overall += 0.05
		adjustments = append(adjustments, "strong_context:+0.05")
	}
	if scores[types.ComponentRetrievalQuality] <= 0.3 {
		overall -= 0.1
		adjustments = append(adjustments, "weak_retrieval:-0.1")
	}
	if scores[types.ComponentContextRelevance] <= 0.3 {
		overall -= 0.1
		adjustments = append(adjustments, "weak_context:-0.1")
	}

	return overall, adjustments
}

func retrievalScore(r *types.RetrievalResult) float64 {
	if r == nil {
		return 0
	}
	return clamp01(r.Confidence)
}

func contextScore(r *types.RetrievalResult) float64 {
	if r == nil || r.AssembledContext == nil {
		return 0
	}
	return clamp01(r.AssembledContext.RelevanceScore)
}

func responseScore(resp *types.SynthesizedResponse) float64 {
	if resp == nil {
		return neutralResponse
	}
	return clamp01(resp.Confidence)
}

// diversityScore 按去重来源数饱和计分，3 个独立来源视为满分。
func diversityScore(r *types.RetrievalResult) float64 {
	if r == nil || r.AssembledContext == nil || len(r.AssembledContext.Sources) == 0 {
		return neutralDiversity
	}
	return min(1.0, float64(len(r.AssembledContext.Sources))/3.0)
}

func clarityScore(r *types.RetrievalResult) float64 {
	if r == nil || r.QueryAnalysis == nil {
		return neutralClarity
	}
	return clamp01(r.QueryAnalysis.Confidence)
}

func systemScore(s float64) float64 {
	if s <= 0 {
		return defaultSystem
	}
	return clamp01(s)
}

func clamp01(v float64) float64 {
	return min(1.0, max(0.0, v))
}
