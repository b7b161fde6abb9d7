// 包 fallback 实现置信度驱动的 web 搜索回退。
// 管理器决定是否触发回退、带限流与缓存地执行外部搜索，
// 并在协作方失败时降级为应急响应而不是向上传播错误。
package fallback

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/types"
)

// WebResult 外部搜索的单条结果
type WebResult struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Score       float64   `json:"score"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// WebSearcher 外部搜索接口。实现方负责具体的搜索后端对接。
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]WebResult, error)
}

// 应急响应文本与置信度
const (
	emergencyConfidence = 0.1
	emergencyText       = "I'm sorry, I couldn't retrieve reliable information for your query right now. Please try rephrasing your question or ask again later."
)

// Result 回退执行结果。Emergency 为 true 时 Candidates 为空，
// 调用方应使用 EmergencyText 与 EmergencyConfidence 构造应急响应。
type Result struct {
	Candidates          []types.Candidate
	SearchType          types.SearchType
	FromCache           bool
	Emergency           bool
	EmergencyText       string
	EmergencyConfidence float64
}

// Manager 回退管理器。决策是纯函数，执行带限流、缓存与超时。
type Manager struct {
	searcher WebSearcher
	limiter  *RateLimiter
	cache    *gocache.Cache
	cfg      config.FallbackConfig
	logger   *zap.Logger
}

// NewManager 创建回退管理器。searcher 为 nil 时所有执行都走应急路径。
func NewManager(searcher WebSearcher, cfg config.FallbackConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		searcher: searcher,
		limiter:  NewRateLimiter(cfg.CallsPerMinute, cfg.CallsPerHour),
		cache:    gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "fallback_manager")),
	}
}

// ShouldFallback 判定是否触发 web 回退。
// 触发条件：策略本身是纯 web；混合策略且置信度低于阈值；
// 本地检索零块；聚合相关度过低。
func ShouldFallback(decision *types.StrategyDecision, retrieval *types.RetrievalResult, confidence float64) (bool, string) {
	if decision.Strategy == types.StrategyWebOnly {
		return true, "strategy requires web search"
	}
	if retrieval == nil || retrieval.AssembledContext == nil || retrieval.AssembledContext.IsEmpty() {
		return true, "no local context available"
	}
	if retrieval.AssembledContext.RelevanceScore < 0.3 {
		return true, "local context relevance too low"
	}
	if decision.Strategy == types.StrategyHybrid && confidence < decision.ConfidenceThreshold {
		return true, fmt.Sprintf("confidence %.2f below threshold %.2f", confidence, decision.ConfidenceThreshold)
	}
	return false, ""
}

// Execute 执行 web 回退搜索。外部搜索或限流失败不向上传播，
// 统一降级为应急结果；只有 ctx 取消会返回错误。
func (m *Manager) Execute(ctx context.Context, analysis *types.QueryAnalysis) (*Result, error) {
	query := analysis.EnhancedText
	if query == "" {
		query = analysis.NormalizedText
	}

	if cached, ok := m.cache.Get(cacheKey(query)); ok {
		m.logger.Debug("fallback cache hit", zap.String("query", truncate(query, 60)))
		return &Result{
			Candidates: cached.([]types.Candidate),
			SearchType: types.SearchTypeFallbackWeb,
			FromCache:  true,
		}, nil
	}

	if m.searcher == nil {
		return m.emergency("web searcher not configured"), nil
	}

	if err := m.acquire(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, types.NewError(types.ErrCancelled, "fallback cancelled").WithCause(ctx.Err())
		}
		m.logger.Warn("fallback rate limited", zap.Error(err))
		return m.emergency("rate limited"), nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, m.cfg.SearchTimeout)
	defer cancel()

	results, err := m.searcher.Search(searchCtx, query, m.cfg.MaxResults)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewError(types.ErrCancelled, "fallback cancelled").WithCause(ctx.Err())
		}
		m.logger.Warn("web search failed, degrading to emergency response", zap.Error(err))
		return m.emergency(err.Error()), nil
	}

	candidates := m.convert(results)
	if len(candidates) == 0 {
		return m.emergency("web search returned no usable results"), nil
	}

	m.cache.Set(cacheKey(query), candidates, gocache.DefaultExpiration)

	m.logger.Info("fallback web search completed",
		zap.Int("results", len(candidates)),
		zap.String("query", truncate(query, 60)))

	return &Result{
		Candidates: candidates,
		SearchType: types.SearchTypeFallbackWeb,
	}, nil
}

func (m *Manager) acquire(ctx context.Context) error {
	if m.cfg.WaitOnRateLimit {
		return m.limiter.Wait(ctx)
	}
	if !m.limiter.Allow() {
		return types.NewError(types.ErrRateLimited, "web search call budget exhausted")
	}
	return nil
}

// convert 过滤域名并把外部结果规范化为候选
func (m *Manager) convert(results []WebResult) []types.Candidate {
	candidates := make([]types.Candidate, 0, len(results))
	for _, r := range results {
		content := strings.TrimSpace(r.Content)
		if content == "" {
			continue
		}
		domain := domainOf(r.URL)
		if !m.domainAllowed(domain) {
			continue
		}
		candidates = append(candidates, types.Candidate{
			ID:         uuid.NewString(),
			SourceKind: types.SourceWeb,
			Title:      r.Title,
			Content:    content,
			URL:        r.URL,
			RawScore:   clamp01(r.Score),
			TrustScore: DomainTrust(domain),
			Timestamp:  r.PublishedAt,
			Metadata:   map[string]any{"domain": domain},
		})
	}
	return candidates
}

func (m *Manager) domainAllowed(domain string) bool {
	for _, d := range m.cfg.ExcludeDomains {
		if strings.HasSuffix(domain, d) {
			return false
		}
	}
	if len(m.cfg.IncludeDomains) == 0 {
		return true
	}
	for _, d := range m.cfg.IncludeDomains {
		if strings.HasSuffix(domain, d) {
			return true
		}
	}
	return false
}

func (m *Manager) emergency(reason string) *Result {
	m.logger.Info("using emergency response", zap.String("reason", reason))
	return &Result{
		SearchType:          types.SearchTypeEmergencyFallback,
		Emergency:           true,
		EmergencyText:       emergencyText,
		EmergencyConfidence: emergencyConfidence,
	}
}

// DomainTrust 按域名后缀给出权威度评分。
func DomainTrust(domain string) float64 {
	switch {
	case strings.HasSuffix(domain, ".edu"), strings.HasSuffix(domain, ".gov"),
		strings.Contains(domain, "wikipedia.org"):
		return 0.9
	case strings.HasSuffix(domain, ".org"), strings.HasSuffix(domain, ".com"):
		return 0.7
	default:
		return 0.5
	}
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return fmt.Sprintf("%x", sum[:16])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func clamp01(v float64) float64 {
	return min(1.0, max(0.0, v))
}
