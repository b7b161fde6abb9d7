package rerank

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/retrieval"
	"github.com/BaSui01/ragflow/types"
)

// ===== 重排序器 =====

// Variant 重排序策略
type Variant string

const (
	// VariantHybrid 多信号加权：相关度、词面匹配、质量、新鲜度、权威度
	VariantHybrid Variant = "hybrid"
	// VariantDiversity 贪心多样性选择，惩罚与已选结果的内容重复
	VariantDiversity Variant = "diversity"
	// VariantSimilarity 偏重与查询的文本相似度
	VariantSimilarity Variant = "similarity"
)

// Reranker 在合并后的候选上施加重排序。
// 所有策略都只附加 RerankScore 与 ScoreBreakdown，不修改原始分数。
type Reranker struct {
	cfg    config.RerankConfig
	logger *zap.Logger
}

// NewReranker 创建重排序器
func NewReranker(cfg config.RerankConfig, logger *zap.Logger) *Reranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reranker{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "reranker")),
	}
}

// Rerank 按指定策略重排序并截断到配置的结果上限。
// 未知策略按 hybrid 处理。
func (r *Reranker) Rerank(query string, candidates []types.Candidate, variant Variant) []types.Candidate {
	if len(candidates) == 0 {
		return candidates
	}

	var ranked []types.Candidate
	switch variant {
	case VariantDiversity:
		ranked = r.diversityRerank(candidates)
	case VariantSimilarity:
		ranked = r.similarityRerank(query, candidates)
	default:
		ranked = r.hybridRerank(query, candidates)
	}

	if len(ranked) > r.cfg.MaxResults {
		ranked = ranked[:r.cfg.MaxResults]
	}

	r.logger.Debug("candidates reranked",
		zap.String("variant", string(variant)),
		zap.Int("in", len(candidates)),
		zap.Int("out", len(ranked)))

	return ranked
}

// hybridRerank 多信号加权重排序
func (r *Reranker) hybridRerank(query string, candidates []types.Candidate) []types.Candidate {
	queryTokens := tokenSet(query)

	out := make([]types.Candidate, len(candidates))
	copy(out, candidates)

	for i := range out {
		relevance := out[i].RawScore
		textMatch := overlapRatio(queryTokens, tokenSet(out[i].Content))
		quality := retrieval.ContentQuality(out[i].Content)
		freshness := freshnessScore(out[i].Timestamp)
		authority := out[i].TrustScore

		out[i].ScoreBreakdown = map[string]float64{
			"relevance":  relevance,
			"text_match": textMatch,
			"quality":    quality,
			"freshness":  freshness,
			"authority":  authority,
		}
		out[i].RerankScore = r.cfg.RelevanceWeight*relevance +
			r.cfg.TextMatchWeight*textMatch +
			r.cfg.QualityWeight*quality +
			r.cfg.FreshnessWeight*freshness +
			r.cfg.AuthorityWeight*authority
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})
	return out
}

// diversityRerank 贪心选择：0.6*相关度 + 0.4*(1-与已选结果的最大 Jaccard)
func (r *Reranker) diversityRerank(candidates []types.Candidate) []types.Candidate {
	remaining := make([]types.Candidate, len(candidates))
	copy(remaining, candidates)

	tokens := make([]map[string]bool, len(remaining))
	for i := range remaining {
		tokens[i] = tokenSet(remaining[i].Content)
	}

	limit := min(len(remaining), 20)
	selected := make([]types.Candidate, 0, limit)
	selectedTokens := make([]map[string]bool, 0, limit)

	for len(selected) < limit && len(remaining) > 0 {
		bestIdx, bestScore := 0, -1.0
		for i := range remaining {
			maxSim := 0.0
			for _, st := range selectedTokens {
				if sim := jaccard(tokens[i], st); sim > maxSim {
					maxSim = sim
				}
			}
			score := 0.6*remaining[i].RawScore + 0.4*(1.0-maxSim)
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		chosen := remaining[bestIdx]
		chosen.RerankScore = bestScore
		selected = append(selected, chosen)
		selectedTokens = append(selectedTokens, tokens[bestIdx])

		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
		tokens = append(tokens[:bestIdx], tokens[bestIdx+1:]...)
	}

	return selected
}

// similarityRerank 偏重文本相似度：0.4*原始分 + 0.6*(0.6*Jaccard + 0.4*词面重叠)
func (r *Reranker) similarityRerank(query string, candidates []types.Candidate) []types.Candidate {
	queryTokens := tokenSet(query)

	out := make([]types.Candidate, len(candidates))
	copy(out, candidates)

	for i := range out {
		contentTokens := tokenSet(out[i].Content)
		sim := 0.6*jaccard(queryTokens, contentTokens) + 0.4*overlapRatio(queryTokens, contentTokens)
		out[i].RerankScore = 0.4*out[i].RawScore + 0.6*sim
		out[i].ScoreBreakdown = map[string]float64{
			"relevance":  out[i].RawScore,
			"similarity": sim,
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})
	return out
}

// freshnessScore 按时间衰减。无时间戳取中性值 0.5。
func freshnessScore(ts time.Time) float64 {
	if ts.IsZero() {
		return 0.5
	}
	age := time.Since(ts)
	switch {
	case age <= 24*time.Hour:
		return 1.0
	case age <= 7*24*time.Hour:
		return 0.8
	case age <= 30*24*time.Hour:
		return 0.6
	case age <= 365*24*time.Hour:
		return 0.4
	default:
		return 0.2
	}
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?-")
		if w != "" {
			set[w] = true
		}
	}
	return set
}

// overlapRatio 返回 a 中出现在 b 里的比例
func overlapRatio(a, b map[string]bool) float64 {
	if len(a) == 0 {
		return 0
	}
	hits := 0
	for tok := range a {
		if b[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
