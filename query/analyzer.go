// 包 query 提供检索前的查询分析与策略选择。
// 分析器负责归一化、关键词/实体提取、意图与类型分类、查询置信度评分；
// 策略选择器在任何检索发生之前用廉价的规则决定检索路径。
package query

import (
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/types"
)

// ===== 查询分析器 =====

// Analyzer 查询分析器。无外部依赖，对任意输入（包括空串）
// 都返回合法的分析结果，从不返回错误。
type Analyzer struct {
	logger *zap.Logger
}

// NewAnalyzer 创建查询分析器
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		logger: logger.With(zap.String("component", "query_analyzer")),
	}
}

// 停用词表，关键词提取时过滤
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "have": true, "has": true, "had": true, "do": true,
	"does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "may": true, "might": true, "can": true, "this": true,
	"that": true, "these": true, "those": true,
}

var (
	specialCharsRe = regexp.MustCompile(`[^\w\s\?\!\.\,\-]`)
	dateRe         = regexp.MustCompile(`\b\d{1,2}[\/\-]\d{1,2}[\/\-]\d{2,4}\b`)
	numberRe       = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	capitalizedRe  = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
	acronymRe      = regexp.MustCompile(`\b[A-Z]{2,}\b`)
)

// 意图检测关键词，按优先级顺序匹配
var intentPatterns = []struct {
	intent   types.Intent
	keywords []string
}{
	{types.IntentSearch, []string{"find", "search", "look for", "locate"}},
	{types.IntentExplain, []string{"explain", "describe", "tell me about", "what is"}},
	{types.IntentCompare, []string{"compare", "difference", "vs", "versus"}},
	{types.IntentHelp, []string{"help", "assist", "guide", "how to"}},
	{types.IntentQuestion, []string{"?", "what", "when", "where", "why", "how", "who"}},
	{types.IntentAnalysis, []string{"analyze", "evaluate", "assess", "review"}},
}

// 查询类型的模式匹配规则
var queryTypePatterns = []struct {
	queryType types.QueryType
	patterns  []*regexp.Regexp
}{
	{types.QueryTypeQuestion, []*regexp.Regexp{
		regexp.MustCompile(`\?$`),
		regexp.MustCompile(`^(what|how|when|where|why|who|which)`),
		regexp.MustCompile(`(can you|could you|would you)`),
	}},
	{types.QueryTypeCommand, []*regexp.Regexp{
		regexp.MustCompile(`^(find|search|show|tell|explain|describe)`),
		regexp.MustCompile(`(help me|assist me)`),
	}},
	{types.QueryTypeFactual, []*regexp.Regexp{
		regexp.MustCompile(`(define|definition|meaning)`),
		regexp.MustCompile(`(is|are|was|were).*\?`),
	}},
	{types.QueryTypeComplex, []*regexp.Regexp{
		regexp.MustCompile(`(compare|contrast|analyze|evaluate)`),
		regexp.MustCompile(`(pros and cons|advantages)`),
	}},
}

// Analyze 分析原始查询文本。空输入返回 intent=unknown、confidence=0
// 的合法分析结果。
func (a *Analyzer) Analyze(raw string) *types.QueryAnalysis {
	start := time.Now()

	cleaned := cleanQuery(raw)
	if cleaned == "" {
		return &types.QueryAnalysis{
			OriginalText:   raw,
			NormalizedText: "",
			EnhancedText:   "",
			Intent:         types.IntentUnknown,
			QueryType:      types.QueryTypeGeneral,
			Keywords:       []string{},
			Entities:       []string{},
			Confidence:     0.0,
			Metadata:       map[string]any{"empty_query": true},
		}
	}

	// 实体提取在大小写折叠之前进行
	entities := extractEntities(raw)
	keywords := extractKeywords(cleaned)
	intent := detectIntent(cleaned)
	queryType := classifyQueryType(cleaned)
	enhanced := enhanceQuery(cleaned, keywords, entities)
	confidence := queryConfidence(cleaned, entities, keywords)

	analysis := &types.QueryAnalysis{
		OriginalText:   raw,
		NormalizedText: cleaned,
		EnhancedText:   enhanced,
		Intent:         intent,
		QueryType:      queryType,
		Keywords:       keywords,
		Entities:       entities,
		Confidence:     confidence,
		Metadata: map[string]any{
			"original_length": len(raw),
			"entity_count":    len(entities),
			"keyword_count":   len(keywords),
			"analysis_time":   time.Since(start),
		},
	}

	a.logger.Debug("query analyzed",
		zap.String("intent", string(intent)),
		zap.String("query_type", string(queryType)),
		zap.Float64("confidence", confidence),
		zap.Int("keywords", len(keywords)),
		zap.Int("entities", len(entities)))

	return analysis
}

// cleanQuery 归一化查询：压缩空白、去除特殊字符、小写。
func cleanQuery(raw string) string {
	q := strings.Join(strings.Fields(raw), " ")
	q = specialCharsRe.ReplaceAllString(q, "")
	return strings.ToLower(strings.TrimSpace(q))
}

// extractKeywords 提取关键词：过滤停用词和短词，保序去重。
func extractKeywords(cleaned string) []string {
	words := strings.Fields(cleaned)
	seen := make(map[string]bool)
	keywords := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.Trim(word, ".,!?-")
		if len(word) <= 2 || stopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
	}

	return keywords
}

// extractEntities 基于模式的实体提取：日期、数字、大写词组、全大写缩写。
func extractEntities(raw string) []string {
	seen := make(map[string]bool)
	entities := make([]string, 0, 4)

	for _, re := range []*regexp.Regexp{dateRe, numberRe, capitalizedRe, acronymRe} {
		for _, m := range re.FindAllString(raw, -1) {
			if !seen[m] {
				seen[m] = true
				entities = append(entities, m)
			}
		}
	}

	return entities
}

func detectIntent(cleaned string) types.Intent {
	for _, p := range intentPatterns {
		for _, kw := range p.keywords {
			if strings.Contains(cleaned, kw) {
				return p.intent
			}
		}
	}
	return types.IntentGeneral
}

func classifyQueryType(cleaned string) types.QueryType {
	for _, p := range queryTypePatterns {
		for _, re := range p.patterns {
			if re.MatchString(cleaned) {
				return p.queryType
			}
		}
	}
	return types.QueryTypeGeneral
}

// enhanceQuery 为检索增强查询：追加尚未出现的长关键词（≤3）与实体（≤2）。
func enhanceQuery(cleaned string, keywords, entities []string) string {
	enhanced := cleaned

	added := 0
	for _, kw := range keywords {
		if added >= 3 {
			break
		}
		if len(kw) > 4 && !strings.Contains(enhanced, kw) {
			enhanced += " " + kw
			added++
		}
	}

	added = 0
	for _, ent := range entities {
		if added >= 2 {
			break
		}
		lower := strings.ToLower(ent)
		if !strings.Contains(enhanced, lower) {
			enhanced += " " + lower
			added++
		}
	}

	return strings.TrimSpace(enhanced)
}

// queryConfidence 计算查询置信度：
// 基础 0.5，≥3 词 +0.1，实体数最多 +0.2，关键词数最多 +0.2，
// 含 ?/! +0.05，上限 1.0。
func queryConfidence(cleaned string, entities, keywords []string) float64 {
	confidence := 0.5

	if len(strings.Fields(cleaned)) >= 3 {
		confidence += 0.1
	}
	if n := len(entities); n > 0 {
		confidence += min(0.2, float64(n)*0.05)
	}
	if n := len(keywords); n > 0 {
		confidence += min(0.2, float64(n)*0.03)
	}
	if strings.ContainsAny(cleaned, "?!") {
		confidence += 0.05
	}

	return min(1.0, confidence)
}
