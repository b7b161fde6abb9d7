package retrieval

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/types"
)

// ===== 本地检索器 =====

// Retriever 封装向量搜索：按查询类型自适应参数、带超时执行、
// 增强查询零结果时用原始查询重试一次，最后装配上下文并计算
// 检索置信度。
type Retriever struct {
	searcher  VectorSearcher
	assembler *ContextAssembler
	cfg       config.RetrievalConfig
	logger    *zap.Logger
}

// NewRetriever 创建本地检索器
func NewRetriever(searcher VectorSearcher, assembler *ContextAssembler, cfg config.RetrievalConfig, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		searcher:  searcher,
		assembler: assembler,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "retriever")),
	}
}

// Retrieve 执行本地检索全流程。
// 搜索失败返回带 ErrVectorSearch 码的错误；零结果不是错误，
// 返回空上下文与相应的低置信度。
func (r *Retriever) Retrieve(ctx context.Context, analysis *types.QueryAnalysis) (*types.RetrievalResult, error) {
	start := time.Now()

	contextType, maxResults := AdaptiveParams(analysis.QueryType)
	params := SearchParams{
		Query:          analysis.EnhancedText,
		Collection:     r.cfg.Collection,
		MaxResults:     maxResults,
		ScoreThreshold: r.cfg.ScoreThreshold,
	}

	candidates, err := r.search(ctx, params)
	if err != nil {
		return nil, types.NewError(types.ErrVectorSearch, "vector search failed").
			WithCause(err).WithRetryable(true)
	}

	// 增强查询可能偏离原意，零结果时用原始查询再试一次
	if len(candidates) == 0 && analysis.EnhancedText != analysis.NormalizedText {
		r.logger.Debug("enhanced query returned nothing, retrying with original query")
		params.Query = analysis.NormalizedText
		candidates, err = r.search(ctx, params)
		if err != nil {
			return nil, types.NewError(types.ErrVectorSearch, "vector search retry failed").
				WithCause(err).WithRetryable(true)
		}
	}

	assembled := r.assembler.Assemble(analysis.NormalizedText, candidates, contextType)
	confidence := retrievalConfidence(analysis.Confidence, candidates, assembled)

	result := &types.RetrievalResult{
		QueryAnalysis:    analysis,
		SearchResults:    candidates,
		AssembledContext: assembled,
		Confidence:       confidence,
		ProcessingTime:   time.Since(start),
		Metadata: map[string]any{
			"context_type": string(contextType),
			"max_results":  maxResults,
		},
	}

	r.logger.Info("local retrieval completed",
		zap.Int("results", len(candidates)),
		zap.Int("chunks", assembled.TotalChunks()),
		zap.Float64("confidence", confidence),
		zap.Duration("elapsed", result.ProcessingTime))

	return result, nil
}

func (r *Retriever) search(ctx context.Context, params SearchParams) ([]types.Candidate, error) {
	searchCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()
	return r.searcher.Search(searchCtx, params)
}

// retrievalConfidence 聚合检索阶段置信度：
// 查询置信度 0.2，搜索结果强度 0.4（平均分 0.7 + 数量饱和 0.3），
// 上下文强度 0.3（相关度 0.8 + 来源数饱和 0.2），token 充裕度 0.1。
func retrievalConfidence(queryConfidence float64, candidates []types.Candidate, ctx *types.AssembledContext) float64 {
	resultStrength := 0.0
	if len(candidates) > 0 {
		sum := 0.0
		for _, c := range candidates {
			sum += c.RawScore
		}
		avg := sum / float64(len(candidates))
		resultStrength = 0.7*avg + 0.3*min(1.0, float64(len(candidates))/5.0)
	}

	contextStrength := 0.0
	if !ctx.IsEmpty() {
		contextStrength = 0.8*ctx.RelevanceScore + 0.2*min(1.0, float64(len(ctx.Sources))/3.0)
	}

	tokenRichness := min(1.0, float64(ctx.TotalTokens)/2000.0)

	confidence := 0.2*queryConfidence + 0.4*resultStrength + 0.3*contextStrength + 0.1*tokenRichness
	return min(1.0, max(0.0, confidence))
}
