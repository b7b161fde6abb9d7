package types

import "time"

// SourceKind 候选结果的来源类型
type SourceKind string

const (
	SourceLocal SourceKind = "local" // Local vector store
	SourceWeb   SourceKind = "web"   // External web search
)

// Candidate 检索候选结果。由本地检索器或回退管理器产生，
// 产生后内容不再变更，重排序阶段仅附加额外分数。
type Candidate struct {
	ID         string         `json:"id"`
	SourceKind SourceKind     `json:"source_kind"`
	Title      string         `json:"title,omitempty"`
	Content    string         `json:"content"`
	URL        string         `json:"url,omitempty"`
	RawScore   float64        `json:"raw_score"`
	TrustScore float64        `json:"trust_score"`
	Timestamp  time.Time      `json:"timestamp,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	// 重排序阶段附加的分数（不覆盖 RawScore）
	RerankScore    float64            `json:"rerank_score,omitempty"`
	ScoreBreakdown map[string]float64 `json:"score_breakdown,omitempty"`
}

// ContextType 上下文装配预算类型
type ContextType string

const (
	ContextFocused       ContextType = "focused"       // ≤3 chunks / 1500 chars
	ContextComprehensive ContextType = "comprehensive" // ≤10 chunks / 4000 chars
	ContextSummary       ContextType = "summary"       // ≤5 chunks / 2000 chars
)

// AssembledContext 装配完成的上下文。
// 不变量：Chunks 数量与总长度不超过 ContextType 对应的预算。
type AssembledContext struct {
	ContextText    string         `json:"context_text"`
	Chunks         []Candidate    `json:"chunks"`
	TotalTokens    int            `json:"total_tokens"`
	RelevanceScore float64        `json:"relevance_score"`
	Sources        []string       `json:"sources"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// TotalChunks 返回已选块数。
func (c *AssembledContext) TotalChunks() int {
	return len(c.Chunks)
}

// IsEmpty 报告上下文是否没有任何内容块。
func (c *AssembledContext) IsEmpty() bool {
	return len(c.Chunks) == 0
}
