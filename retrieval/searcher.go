// 包 retrieval 实现本地向量检索与上下文装配。
// Retriever 负责带超时与重试的向量搜索，ContextAssembler 负责
// 在预算约束下把搜索结果装配成可供生成使用的上下文。
package retrieval

import (
	"context"

	"github.com/BaSui01/ragflow/types"
)

// SearchParams 单次向量搜索的参数
type SearchParams struct {
	Query          string  `json:"query"`
	Collection     string  `json:"collection"`
	MaxResults     int     `json:"max_results"`
	ScoreThreshold float64 `json:"score_threshold"`
}

// VectorSearcher 向量存储的搜索接口。
// 实现方负责嵌入计算与相似度搜索，返回按相关度降序的候选。
type VectorSearcher interface {
	Search(ctx context.Context, params SearchParams) ([]types.Candidate, error)
}

// AdaptiveParams 根据查询类型调整检索参数：
// 复杂查询取更多结果和更宽的上下文，事实型查询收紧为聚焦模式。
func AdaptiveParams(queryType types.QueryType) (contextType types.ContextType, maxResults int) {
	switch queryType {
	case types.QueryTypeComplex:
		return types.ContextComprehensive, 15
	case types.QueryTypeFactual:
		return types.ContextFocused, 5
	default:
		return types.ContextComprehensive, 10
	}
}
