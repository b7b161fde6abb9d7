// 包 rerank 实现本地与 web 候选的合并去重与多策略重排序。
package rerank

import (
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// ===== 结果合并器 =====

// 合并排名权重：原始分与来源可信度
const (
	mergeScoreWeight = 0.6
	mergeTrustWeight = 0.4
)

// Merger 合并本地与 web 候选：web 候选按规范化 URL 去重，
// 全部候选再按规范化标题去重，最后按 0.6*分数+0.4*可信度排名。
type Merger struct {
	localTrust float64
	logger     *zap.Logger
}

// NewMerger 创建合并器。localTrust 是本地候选的固定可信度。
func NewMerger(localTrust float64, logger *zap.Logger) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{
		localTrust: localTrust,
		logger:     logger.With(zap.String("component", "result_merger")),
	}
}

// Merge 合并并排名。输入切片不被修改。
func (m *Merger) Merge(local, web []types.Candidate) []types.Candidate {
	merged := make([]types.Candidate, 0, len(local)+len(web))
	seenURL := make(map[string]bool)
	seenTitle := make(map[string]bool)

	for _, c := range local {
		c.TrustScore = m.localTrust
		if title := normalizeTitle(c.Title); title != "" {
			if seenTitle[title] {
				continue
			}
			seenTitle[title] = true
		}
		merged = append(merged, c)
	}

	dupes := 0
	for _, c := range web {
		if u := normalizeURL(c.URL); u != "" {
			if seenURL[u] {
				dupes++
				continue
			}
			seenURL[u] = true
		}
		if title := normalizeTitle(c.Title); title != "" {
			if seenTitle[title] {
				dupes++
				continue
			}
			seenTitle[title] = true
		}
		merged = append(merged, c)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return mergeRank(merged[i]) > mergeRank(merged[j])
	})

	m.logger.Debug("candidates merged",
		zap.Int("local", len(local)),
		zap.Int("web", len(web)),
		zap.Int("merged", len(merged)),
		zap.Int("duplicates", dupes))

	return merged
}

func mergeRank(c types.Candidate) float64 {
	return mergeScoreWeight*c.RawScore + mergeTrustWeight*c.TrustScore
}

// normalizeURL 去掉协议差异、www 前缀、末尾斜杠与查询片段
func normalizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimSuffix(u.Path, "/")
	return host + path
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
