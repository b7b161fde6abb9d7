package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/ragflow/retrieval"
	"github.com/BaSui01/ragflow/types"
)

// ===== Qdrant 向量搜索 =====

// Embedder 将文本转为向量。查询与文档共用同一实现，
// 保证两侧向量空间一致。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// QdrantConfig Qdrant 客户端配置。
//
// Qdrant 的 point ID 必须是 UUID，客户端从文档 ID 派生稳定 UUID，
// 原始 ID 与内容存入 payload。
type QdrantConfig struct {
	// BaseURL 完整地址，例如 http://localhost:6333
	BaseURL string
	// APIKey 可为空，非空时以 api-key 头发送（Qdrant 约定）
	APIKey string
	// Collection 默认集合名，搜索参数未指定集合时使用
	Collection string
	// Timeout HTTP 超时，默认 30s
	Timeout time.Duration

	// AutoCreateCollection 首次写入时按需创建集合
	AutoCreateCollection bool
	// Distance 距离度量：Cosine（默认）/ Dot / Euclid
	Distance string
	// VectorSize 向量维度，为 0 时取首批文档的嵌入维度
	VectorSize int
}

// Document 待索引文档。Embedding 为空时由 searcher 的 Embedder 生成。
type Document struct {
	ID        string         `json:"id"`
	Title     string         `json:"title,omitempty"`
	Content   string         `json:"content"`
	Embedding []float64      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// payload 字段名
const (
	payloadDocID   = "doc_id"
	payloadTitle   = "title"
	payloadContent = "content"
	payloadMeta    = "metadata"
)

// Upsert 批量嵌入的并发上限
const embedConcurrency = 4

// QdrantSearcher 通过 Qdrant REST API 实现向量搜索。
type QdrantSearcher struct {
	cfg      QdrantConfig
	embedder Embedder
	client   *http.Client
	logger   *zap.Logger

	ensureOnce sync.Once
	ensureErr  error
}

var _ retrieval.VectorSearcher = (*QdrantSearcher)(nil)

// NewQdrantSearcher 创建 Qdrant 搜索客户端。embedder 不可为空。
func NewQdrantSearcher(cfg QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantSearcher, error) {
	if embedder == nil {
		return nil, fmt.Errorf("qdrant searcher requires an embedder")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "http://localhost:6333"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QdrantSearcher{
		cfg:      cfg,
		embedder: embedder,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logger.With(zap.String("component", "qdrant_searcher")),
	}, nil
}

var qdrantNamespace = uuid.MustParse("d9bde6d4-4f3a-4e6b-8f7a-5d8d2f3b4c1a")

// pointID 从任意文档 ID 派生稳定 UUID
func pointID(docID string) string {
	return uuid.NewSHA1(qdrantNamespace, []byte(docID)).String()
}

func (s *QdrantSearcher) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(s.cfg.APIKey) != "" {
		req.Header.Set("api-key", s.cfg.APIKey)
	}
}

func (s *QdrantSearcher) doJSON(ctx context.Context, method, path string, in any, out any) error {
	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + path

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *QdrantSearcher) collection(override string) (string, error) {
	c := strings.TrimSpace(override)
	if c == "" {
		c = strings.TrimSpace(s.cfg.Collection)
	}
	if c == "" {
		return "", fmt.Errorf("qdrant collection is required")
	}
	return c, nil
}

// Search 将查询嵌入后做相似度搜索，返回按分数降序的候选。
func (s *QdrantSearcher) Search(ctx context.Context, params retrieval.SearchParams) ([]types.Candidate, error) {
	coll, err := s.collection(params.Collection)
	if err != nil {
		return nil, err
	}
	if params.MaxResults <= 0 {
		return []types.Candidate{}, nil
	}

	vector, err := s.embedder.Embed(ctx, params.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	req := struct {
		Vector         []float64 `json:"vector"`
		Limit          int       `json:"limit"`
		WithPayload    bool      `json:"with_payload"`
		WithVector     bool      `json:"with_vector"`
		ScoreThreshold float64   `json:"score_threshold,omitempty"`
	}{
		Vector:         vector,
		Limit:          params.MaxResults,
		WithPayload:    true,
		WithVector:     false,
		ScoreThreshold: params.ScoreThreshold,
	}

	type qdrantHit struct {
		ID      any            `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	}
	var resp struct {
		Result []qdrantHit `json:"result"`
		Status string      `json:"status"`
	}

	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(coll))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	out := make([]types.Candidate, 0, len(resp.Result))
	for _, hit := range resp.Result {
		c := types.Candidate{
			SourceKind: types.SourceLocal,
			RawScore:   hit.Score,
		}
		if hit.Payload != nil {
			if v, ok := hit.Payload[payloadDocID].(string); ok {
				c.ID = v
			}
			if v, ok := hit.Payload[payloadTitle].(string); ok {
				c.Title = v
			}
			if v, ok := hit.Payload[payloadContent].(string); ok {
				c.Content = v
			}
			if m, ok := hit.Payload[payloadMeta].(map[string]any); ok {
				c.Metadata = m
			}
		}
		if c.ID == "" {
			// payload 缺失 doc_id 时退回 point ID
			c.ID = fmt.Sprint(hit.ID)
		}
		out = append(out, c)
	}

	s.logger.Debug("qdrant search completed",
		zap.String("collection", coll),
		zap.Int("hits", len(out)))
	return out, nil
}

// Upsert 写入文档。缺少嵌入的文档先逐条生成嵌入。
func (s *QdrantSearcher) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	coll, err := s.collection("")
	if err != nil {
		return err
	}

	for i := range docs {
		if docs[i].ID == "" {
			return fmt.Errorf("document[%d] has empty id", i)
		}
	}

	// 缺向量的文档并发嵌入，结果写回各自下标
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i := range docs {
		if len(docs[i].Embedding) > 0 {
			continue
		}
		g.Go(func() error {
			emb, err := s.embedder.Embed(gctx, docs[i].Content)
			if err != nil {
				return fmt.Errorf("embed document %s: %w", docs[i].ID, err)
			}
			docs[i].Embedding = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	vectorSize := s.cfg.VectorSize
	for i := range docs {
		if vectorSize == 0 {
			vectorSize = len(docs[i].Embedding)
		}
		if len(docs[i].Embedding) != vectorSize {
			return fmt.Errorf("document[%d] embedding dimension mismatch: got=%d want=%d", i, len(docs[i].Embedding), vectorSize)
		}
	}

	if err := s.ensureCollection(ctx, coll, vectorSize); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float64      `json:"vector"`
		Payload map[string]any `json:"payload,omitempty"`
	}
	points := make([]point, 0, len(docs))
	for _, doc := range docs {
		points = append(points, point{
			ID:     pointID(doc.ID),
			Vector: doc.Embedding,
			Payload: map[string]any{
				payloadDocID:   doc.ID,
				payloadTitle:   doc.Title,
				payloadContent: doc.Content,
				payloadMeta:    doc.Metadata,
			},
		})
	}

	req := struct {
		Points []point `json:"points"`
	}{Points: points}

	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(coll))
	var resp any
	if err := s.doJSON(ctx, http.MethodPut, path, req, &resp); err != nil {
		return err
	}

	s.logger.Debug("qdrant upsert completed", zap.Int("count", len(docs)))
	return nil
}

// Delete 按原始文档 ID 删除，空白 ID 被忽略。
func (s *QdrantSearcher) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	coll, err := s.collection("")
	if err != nil {
		return err
	}

	points := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}
		points = append(points, pointID(id))
	}

	req := struct {
		Points []string `json:"points"`
	}{Points: points}

	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", url.PathEscape(coll))
	var resp any
	return s.doJSON(ctx, http.MethodPost, path, req, &resp)
}

// Count 返回集合内的精确点数
func (s *QdrantSearcher) Count(ctx context.Context) (int, error) {
	coll, err := s.collection("")
	if err != nil {
		return 0, err
	}

	req := struct {
		Exact bool `json:"exact"`
	}{Exact: true}

	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}

	path := fmt.Sprintf("/collections/%s/points/count", url.PathEscape(coll))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Ping 检查服务可达性，供就绪探针使用。
func (s *QdrantSearcher) Ping(ctx context.Context) error {
	return s.doJSON(ctx, http.MethodGet, "/collections", nil, nil)
}

func (s *QdrantSearcher) ensureCollection(ctx context.Context, coll string, vectorSize int) error {
	if !s.cfg.AutoCreateCollection {
		return nil
	}
	if vectorSize <= 0 {
		return fmt.Errorf("qdrant vector size must be > 0")
	}

	s.ensureOnce.Do(func() {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     vectorSize,
				"distance": s.cfg.Distance,
			},
		}

		endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/collections/" + url.PathEscape(coll)
		reqBody, _ := json.Marshal(body)
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(reqBody))
		if err != nil {
			s.ensureErr = err
			return
		}
		s.applyHeaders(req)

		resp, err := s.client.Do(req)
		if err != nil {
			s.ensureErr = err
			return
		}
		defer resp.Body.Close()

		// 集合已存在时 Qdrant 返回 409
		if resp.StatusCode == http.StatusConflict {
			return
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(resp.Body)
			s.ensureErr = fmt.Errorf("qdrant create collection failed: status=%d body=%s", resp.StatusCode, string(raw))
			return
		}
	})

	return s.ensureErr
}
