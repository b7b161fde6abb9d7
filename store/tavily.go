package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/ragflow/fallback"
)

// ===== Web 搜索客户端 =====

// TavilyConfig Tavily 风格搜索服务配置
type TavilyConfig struct {
	// BaseURL 默认 https://api.tavily.com
	BaseURL string
	// APIKey 随请求体发送
	APIKey string
	// SearchDepth basic（默认）或 advanced
	SearchDepth string
	// Timeout HTTP 超时，默认 30s
	Timeout time.Duration
}

// TavilySearcher 调用 Tavily 搜索 API，实现 fallback.WebSearcher。
type TavilySearcher struct {
	cfg    TavilyConfig
	client *http.Client
}

var _ fallback.WebSearcher = (*TavilySearcher)(nil)

// NewTavilySearcher 创建 web 搜索客户端
func NewTavilySearcher(cfg TavilyConfig) (*TavilySearcher, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("web search API key is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.tavily.com"
	}
	if cfg.SearchDepth == "" {
		cfg.SearchDepth = "basic"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &TavilySearcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Search 执行 web 搜索。maxResults 上限 20。
func (t *TavilySearcher) Search(ctx context.Context, query string, maxResults int) ([]fallback.WebResult, error) {
	if maxResults <= 0 {
		return []fallback.WebResult{}, nil
	}
	if maxResults > 20 {
		maxResults = 20
	}

	req := struct {
		APIKey      string `json:"api_key"`
		Query       string `json:"query"`
		MaxResults  int    `json:"max_results"`
		SearchDepth string `json:"search_depth"`
	}{
		APIKey:      t.cfg.APIKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: t.cfg.SearchDepth,
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(t.cfg.BaseURL, "/") + "/search"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("web search request failed: status=%d", resp.StatusCode)
	}

	var out struct {
		Results []struct {
			Title         string  `json:"title"`
			URL           string  `json:"url"`
			Content       string  `json:"content"`
			Score         float64 `json:"score"`
			PublishedDate string  `json:"published_date"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	results := make([]fallback.WebResult, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, fallback.WebResult{
			URL:         r.URL,
			Title:       r.Title,
			Content:     r.Content,
			Score:       r.Score,
			PublishedAt: parsePublished(r.PublishedDate),
		})
	}
	return results, nil
}

// parsePublished 解析发布时间，格式不识别时返回零值
func parsePublished(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}
