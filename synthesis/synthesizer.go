// 包 synthesis 把重排序后的候选合成为带引用的回答文本。
// 合成是抽取式的：从各来源抽取与查询最相关的句子，按固定模板
// 组织成连贯回答，并附带来源引用与质量评级。
package synthesis

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/types"
)

// ===== 响应合成器 =====

// Synthesizer 抽取式响应合成器。无跨请求状态，可并发使用。
type Synthesizer struct {
	cfg    config.SynthesisConfig
	logger *zap.Logger
}

// NewSynthesizer 创建合成器
func NewSynthesizer(cfg config.SynthesisConfig, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "synthesizer")),
	}
}

type keyPoint struct {
	text   string
	source types.Candidate
	hits   int
}

// Synthesize 从候选合成回答。候选为空时返回置信度为 0 的空响应。
// 单个来源抽取失败只跳过该来源，不影响整体合成。
func (s *Synthesizer) Synthesize(query string, candidates []types.Candidate) *types.SynthesizedResponse {
	start := time.Now()

	keywords := queryKeywords(query)
	points := make([]keyPoint, 0, len(candidates))
	for _, c := range candidates {
		extracted := extractKeyPoints(c, keywords, s.cfg.MaxKeyPointsPerSource)
		if len(extracted) == 0 {
			s.logger.Debug("source yielded no key points, skipping",
				zap.String("candidate_id", c.ID))
			continue
		}
		points = append(points, extracted...)
	}

	if len(points) == 0 {
		return &types.SynthesizedResponse{
			ResponseText:   "",
			Citations:      []types.Citation{},
			SourceQuality:  types.SourceQualityLow,
			Confidence:     0,
			ProcessingTime: time.Since(start),
		}
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].hits > points[j].hits
	})

	text := composeNarrative(points)
	if len(text) > s.cfg.MaxResponseLength {
		text = text[:s.cfg.MaxResponseLength]
	}

	citations := buildCitations(points, s.cfg.MaxCitations)
	meanTrust := meanTrustOf(citations)

	resp := &types.SynthesizedResponse{
		ResponseText:       text,
		Citations:          citations,
		AttributionSummary: attributionSummary(citations),
		SourceQuality:      qualityFor(meanTrust),
		Confidence:         synthesisConfidence(meanTrust, len(points)),
		ProcessingTime:     time.Since(start),
		Metadata: map[string]any{
			"key_points": len(points),
		},
	}

	s.logger.Debug("response synthesized",
		zap.Int("key_points", len(points)),
		zap.Int("citations", len(citations)),
		zap.String("source_quality", string(resp.SourceQuality)),
		zap.Float64("confidence", resp.Confidence))

	return resp
}

// extractKeyPoints 从单个候选抽取与查询最相关的句子，
// 按关键词命中数排序后取前 limit 条。
func extractKeyPoints(c types.Candidate, keywords []string, limit int) []keyPoint {
	sentences := splitSentences(c.Content)
	if len(sentences) == 0 {
		return nil
	}

	points := make([]keyPoint, 0, len(sentences))
	for _, sent := range sentences {
		lower := strings.ToLower(sent)
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		points = append(points, keyPoint{text: sent, source: c, hits: hits})
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].hits > points[j].hits
	})

	if len(points) > limit {
		points = points[:limit]
	}
	return points
}

// composeNarrative 按要点数量选择组织方式：
// 单条直接输出，两三条顺序连接，更多时用引导语分段。
func composeNarrative(points []keyPoint) string {
	texts := make([]string, len(points))
	for i, p := range points {
		texts[i] = strings.TrimSpace(p.text)
	}

	switch {
	case len(texts) == 1:
		return texts[0]
	case len(texts) <= 3:
		return strings.Join(texts, " ")
	default:
		var sb strings.Builder
		sb.WriteString("Based on the available information, ")
		sb.WriteString(lowerFirst(texts[0]))
		sb.WriteString(" Additionally, ")
		sb.WriteString(lowerFirst(texts[1]))
		sb.WriteString(" Furthermore, ")
		sb.WriteString(lowerFirst(texts[2]))
		for _, t := range texts[3:] {
			sb.WriteString(" ")
			sb.WriteString(t)
		}
		return sb.String()
	}
}

// buildCitations 按出现顺序去重来源，至多 limit 条引用。
func buildCitations(points []keyPoint, limit int) []types.Citation {
	seen := make(map[string]bool)
	citations := make([]types.Citation, 0, limit)

	for _, p := range points {
		if len(citations) >= limit {
			break
		}
		if seen[p.source.ID] {
			continue
		}
		seen[p.source.ID] = true
		citations = append(citations, types.Citation{
			ID:         p.source.ID,
			SourceKind: p.source.SourceKind,
			Title:      p.source.Title,
			Domain:     domainOf(p.source.URL),
			TrustScore: p.source.TrustScore,
		})
	}
	return citations
}

func attributionSummary(citations []types.Citation) string {
	localCount, webCount := 0, 0
	for _, c := range citations {
		if c.SourceKind == types.SourceWeb {
			webCount++
		} else {
			localCount++
		}
	}

	switch {
	case localCount > 0 && webCount > 0:
		return fmt.Sprintf("Based on %d local document(s) and %d web source(s).", localCount, webCount)
	case webCount > 0:
		return fmt.Sprintf("Based on %d web source(s).", webCount)
	case localCount > 0:
		return fmt.Sprintf("Based on %d local document(s).", localCount)
	default:
		return ""
	}
}

func meanTrustOf(citations []types.Citation) float64 {
	if len(citations) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range citations {
		sum += c.TrustScore
	}
	return sum / float64(len(citations))
}

// qualityFor 按平均可信度映射来源质量等级
func qualityFor(meanTrust float64) types.SourceQuality {
	switch {
	case meanTrust >= 0.75:
		return types.SourceQualityHigh
	case meanTrust >= 0.5:
		return types.SourceQualityMedium
	default:
		return types.SourceQualityLow
	}
}

// synthesisConfidence 合成置信度：来源可信度为主，要点充裕度为辅。
func synthesisConfidence(meanTrust float64, points int) float64 {
	c := 0.6*meanTrust + 0.4*min(1.0, float64(points)/5.0)
	return min(1.0, max(0.0, c))
}

// splitSentences 按句末标点切句，丢弃过短的碎片
func splitSentences(text string) []string {
	var sentences []string
	var sb strings.Builder
	for _, r := range text {
		sb.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			s := strings.TrimSpace(sb.String())
			if len(s) >= 20 {
				sentences = append(sentences, s)
			}
			sb.Reset()
		}
	}
	if s := strings.TrimSpace(sb.String()); len(s) >= 20 {
		sentences = append(sentences, s)
	}
	return sentences
}

func queryKeywords(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	keywords := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,!?-")
		if len(w) > 2 {
			keywords = append(keywords, w)
		}
	}
	return keywords
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func domainOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}
