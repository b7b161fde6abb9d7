package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ===== 嵌入客户端 =====

// EmbedderConfig OpenAI 兼容嵌入服务配置
type EmbedderConfig struct {
	// BaseURL 例如 https://api.openai.com/v1
	BaseURL string
	// APIKey 以 Bearer 头发送
	APIKey string
	// Model 嵌入模型名称
	Model string
	// Timeout HTTP 超时，默认 30s
	Timeout time.Duration
}

// OpenAIEmbedder 调用 OpenAI 兼容的 POST {base}/embeddings 接口。
// 任何暴露该协议的服务（OpenAI、本地推理网关等）均可对接。
type OpenAIEmbedder struct {
	cfg    EmbedderConfig
	client *http.Client
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder 创建嵌入客户端
func NewOpenAIEmbedder(cfg EmbedderConfig) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("embedder base URL is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("embedder model is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OpenAIEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Embed 为单段文本生成嵌入向量
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	req := struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
	}{
		Model: e.cfg.Model,
		Input: []string{text},
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(e.cfg.BaseURL, "/") + "/embeddings"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(e.cfg.APIKey) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding request failed: status=%d", resp.StatusCode)
	}

	var out struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response contains no vector")
	}
	return out.Data[0].Embedding, nil
}
