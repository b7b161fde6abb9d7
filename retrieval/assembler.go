package retrieval

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/types"
)

// ===== 上下文装配器 =====

// 内容过滤阈值
const (
	minChunkChars   = 10
	maxChunkChars   = 2000
	minRelevance    = 0.1
	minQueryOverlap = 0.3
	relevanceWeight = 0.6
	qualityWeight   = 0.4
)

// ContextAssembler 把检索候选装配成预算内的上下文。
// 装配是纯计算：过滤、质量打分、按综合分排序、在块数与
// 字符预算内贪心选取，最后拼接带来源标注的上下文文本。
type ContextAssembler struct {
	budgets map[string]config.ContextBudget
	counter TokenCounter
	logger  *zap.Logger
}

// NewContextAssembler 创建装配器。counter 为 nil 时使用 len/4 估算。
func NewContextAssembler(budgets map[string]config.ContextBudget, counter TokenCounter, logger *zap.Logger) *ContextAssembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if counter == nil {
		counter = EstimateCounter{}
	}
	return &ContextAssembler{
		budgets: budgets,
		counter: counter,
		logger:  logger.With(zap.String("component", "context_assembler")),
	}
}

// Assemble 在 contextType 对应的预算内装配上下文。
// 候选为空或全部被过滤时返回合法的空上下文，不返回错误。
func (a *ContextAssembler) Assemble(query string, candidates []types.Candidate, contextType types.ContextType) *types.AssembledContext {
	budget := a.budgetFor(contextType)

	filtered := a.filter(query, candidates)
	scored := make([]scoredChunk, 0, len(filtered))
	for _, c := range filtered {
		quality := ContentQuality(c.Content)
		combined := relevanceWeight*c.RawScore + qualityWeight*quality
		scored = append(scored, scoredChunk{candidate: c, quality: quality, combined: combined})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].combined > scored[j].combined
	})

	// 预算内贪心选取：块数与累计字符数同时受限
	selected := make([]types.Candidate, 0, budget.MaxChunks)
	totalChars := 0
	for _, sc := range scored {
		if len(selected) >= budget.MaxChunks {
			break
		}
		if totalChars+len(sc.candidate.Content) > budget.MaxLength {
			continue
		}
		selected = append(selected, sc.candidate)
		totalChars += len(sc.candidate.Content)
	}

	ctx := a.build(selected, contextType)

	a.logger.Debug("context assembled",
		zap.String("context_type", string(contextType)),
		zap.Int("candidates", len(candidates)),
		zap.Int("after_filter", len(filtered)),
		zap.Int("selected", len(selected)),
		zap.Int("total_tokens", ctx.TotalTokens),
		zap.Float64("relevance", ctx.RelevanceScore))

	return ctx
}

type scoredChunk struct {
	candidate types.Candidate
	quality   float64
	combined  float64
}

func (a *ContextAssembler) budgetFor(contextType types.ContextType) config.ContextBudget {
	if b, ok := a.budgets[string(contextType)]; ok {
		return b
	}
	if b, ok := a.budgets[string(types.ContextComprehensive)]; ok {
		return b
	}
	return config.ContextBudget{MaxChunks: 10, MaxLength: 4000}
}

// filter 丢弃过短、过长、低相关或与查询词面重叠不足的候选。
func (a *ContextAssembler) filter(query string, candidates []types.Candidate) []types.Candidate {
	queryTokens := tokenSet(query)

	kept := make([]types.Candidate, 0, len(candidates))
	for _, c := range candidates {
		content := strings.TrimSpace(c.Content)
		if len(content) < minChunkChars || len(content) > maxChunkChars {
			continue
		}
		if c.RawScore < minRelevance {
			continue
		}
		if len(queryTokens) > 0 && tokenOverlap(queryTokens, content) < minQueryOverlap {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// build 拼接上下文文本并计算长度加权的聚合相关度。
func (a *ContextAssembler) build(selected []types.Candidate, contextType types.ContextType) *types.AssembledContext {
	if len(selected) == 0 {
		return &types.AssembledContext{
			ContextText: "",
			Chunks:      []types.Candidate{},
			Sources:     []string{},
			Metadata:    map[string]any{"context_type": string(contextType)},
		}
	}

	var sb strings.Builder
	sources := make([]string, 0, len(selected))
	seenSources := make(map[string]bool)
	weightedSum := 0.0
	totalLen := 0

	for i, c := range selected {
		source := c.Title
		if source == "" {
			source = string(c.SourceKind)
		}
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[Source %d: %s]\n%s", i+1, source, c.Content)

		if !seenSources[source] {
			seenSources[source] = true
			sources = append(sources, source)
		}
		weightedSum += c.RawScore * float64(len(c.Content))
		totalLen += len(c.Content)
	}

	relevance := 0.0
	if totalLen > 0 {
		relevance = weightedSum / float64(totalLen)
	}

	text := sb.String()
	return &types.AssembledContext{
		ContextText:    text,
		Chunks:         selected,
		TotalTokens:    a.counter.CountTokens(text),
		RelevanceScore: relevance,
		Sources:        sources,
		Metadata:       map[string]any{"context_type": string(contextType)},
	}
}

// ContentQuality 用廉价的启发式给内容质量打分：
// 基础 0.5，长度落在理想区间加分，完整句式、首字母大写、
// 结尾标点各有小幅加分，上限 1.0。
func ContentQuality(content string) float64 {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0
	}

	quality := 0.5
	n := len(content)

	switch {
	case n >= 200 && n <= 800:
		quality += 0.2
	case (n >= 100 && n < 200) || (n > 800 && n <= 1200):
		quality += 0.1
	}

	if strings.Count(content, ".")+strings.Count(content, "!")+strings.Count(content, "?") >= 2 {
		quality += 0.1
	}

	runes := []rune(content)
	if unicode.IsUpper(runes[0]) {
		quality += 0.05
	}
	last := runes[len(runes)-1]
	if last == '.' || last == '!' || last == '?' {
		quality += 0.05
	}

	return min(1.0, quality)
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

// tokenOverlap 返回查询词在内容中出现的比例
func tokenOverlap(queryTokens map[string]bool, content string) float64 {
	contentTokens := tokenSet(content)
	hits := 0
	for tok := range queryTokens {
		if contentTokens[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}
