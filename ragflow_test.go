package ragflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/fallback"
	"github.com/BaSui01/ragflow/internal/pool"
	"github.com/BaSui01/ragflow/retrieval"
	"github.com/BaSui01/ragflow/types"
)

// memorySearcher 简单的词面匹配内存向量库
type memorySearcher struct {
	docs []types.Candidate
	err  error
}

func (m *memorySearcher) Search(_ context.Context, params retrieval.SearchParams) ([]types.Candidate, error) {
	if m.err != nil {
		return nil, m.err
	}
	queryWords := strings.Fields(strings.ToLower(params.Query))
	var out []types.Candidate
	for _, d := range m.docs {
		content := strings.ToLower(d.Content)
		hits := 0
		for _, w := range queryWords {
			if strings.Contains(content, w) {
				hits++
			}
		}
		if hits > 0 {
			c := d
			c.RawScore = float64(hits) / float64(len(queryWords))
			out = append(out, c)
		}
		if len(out) >= params.MaxResults {
			break
		}
	}
	return out, nil
}

type fakeWebSearcher struct {
	mu      sync.Mutex
	results []fallback.WebResult
	err     error
	calls   int
}

func (f *fakeWebSearcher) Search(_ context.Context, _ string, _ int) ([]fallback.WebResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.results, f.err
}

func (f *fakeWebSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func mlDocs() []types.Candidate {
	return []types.Candidate{
		{
			ID: "ml-1", SourceKind: types.SourceLocal, Title: "ML Handbook",
			Content: "Machine learning is a field of artificial intelligence. Machine learning systems build models that learn patterns from training data and improve with experience.",
		},
		{
			ID: "ml-2", SourceKind: types.SourceLocal, Title: "ML Practice",
			Content: "Machine learning workflows cover data preparation, model training and careful evaluation. Machine learning practitioners validate models on held-out data.",
		},
		{
			ID: "ml-3", SourceKind: types.SourceLocal, Title: "ML Theory",
			Content: "Machine learning theory studies generalization bounds. Learning machine theory links model capacity with the amount of training data required.",
		},
	}
}

func newsWebResults() []fallback.WebResult {
	return []fallback.WebResult{
		{
			URL:     "https://en.wikipedia.org/wiki/Quantum_computing",
			Title:   "Quantum computing",
			Content: "Quantum computing uses quantum bits to perform computation. Recent quantum computing research reports progress on error correction.",
			Score:   0.9,
		},
		{
			URL:     "https://research.example.com/quantum",
			Title:   "Quantum research news",
			Content: "The latest quantum computing experiments demonstrate logical qubits. Laboratories continue quantum computing scaling work this year.",
			Score:   0.8,
		},
	}
}

func newTestEngine(t *testing.T, searcher retrieval.VectorSearcher, web fallback.WebSearcher) *Engine {
	t.Helper()
	return newTestEngineCfg(t, config.DefaultConfig(), searcher, web)
}

func newTestEngineCfg(t *testing.T, cfg *config.Config, searcher retrieval.VectorSearcher, web fallback.WebSearcher) *Engine {
	t.Helper()
	e, err := New(cfg, searcher, web, nil)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestProcessQueryLocalPath(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.Engine.EnableWebFallback = false
	e := newTestEngineCfg(t, cfg, &memorySearcher{docs: mlDocs()}, nil)

	result, err := e.ProcessQuery(context.Background(), "What is machine learning?", nil)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.False(t, result.FallbackUsed)
	assert.Equal(t, types.SearchTypeLocal, result.SearchType)
	assert.NotEmpty(t, result.SynthesizedResponse.ResponseText)
	assert.NotEmpty(t, result.SynthesizedResponse.Citations)
	assert.Greater(t, result.Confidence, 0.0)
	require.NotNil(t, result.RetrievalResult)
	assert.NotEmpty(t, result.RetrievalResult.SearchResults)
}

func TestProcessQueryRecencyGoesWeb(t *testing.T) {
	t.Parallel()
	web := &fakeWebSearcher{results: newsWebResults()}
	e := newTestEngine(t, &memorySearcher{docs: mlDocs()}, web)

	result, err := e.ProcessQuery(context.Background(), "latest quantum computing news", nil)
	require.NoError(t, err)

	assert.True(t, result.FallbackUsed)
	assert.Equal(t, types.SearchTypeWeb, result.SearchType)
	assert.Equal(t, 1, web.callCount())
	assert.NotEmpty(t, result.SynthesizedResponse.Citations)
	// 纯 web 路径不做本地检索
	assert.Nil(t, result.RetrievalResult)
}

func TestProcessQueryEmptyQuery(t *testing.T) {
	t.Parallel()
	web := &fakeWebSearcher{results: newsWebResults()}
	e := newTestEngine(t, &memorySearcher{docs: mlDocs()}, web)

	for _, q := range []string{"", "   "} {
		result, err := e.ProcessQuery(context.Background(), q, nil)
		require.NoError(t, err)
		assert.Equal(t, 0.0, result.Confidence)
		assert.True(t, result.FallbackUsed)
		assert.Equal(t, types.SearchTypeEmergencyFallback, result.SearchType)
		assert.Equal(t, 0, web.callCount())
	}
}

func TestProcessQueryFallbackOnNoLocalResults(t *testing.T) {
	t.Parallel()
	web := &fakeWebSearcher{results: newsWebResults()}
	e := newTestEngine(t, &memorySearcher{}, web)

	result, err := e.ProcessQuery(context.Background(), "explain quantum computing hardware", nil)
	require.NoError(t, err)

	assert.True(t, result.FallbackUsed)
	assert.Equal(t, types.SearchTypeFallbackWeb, result.SearchType)
	assert.NotEmpty(t, result.SynthesizedResponse.ResponseText)
}

func TestProcessQueryEmergencyOnWebFailure(t *testing.T) {
	t.Parallel()
	web := &fakeWebSearcher{err: errors.New("search backend down")}
	e := newTestEngine(t, &memorySearcher{}, web)

	result, err := e.ProcessQuery(context.Background(), "explain quantum computing hardware", nil)
	require.NoError(t, err)

	assert.True(t, result.FallbackUsed)
	assert.Equal(t, types.SearchTypeEmergencyFallback, result.SearchType)
	assert.Equal(t, 0.1, result.SynthesizedResponse.Confidence)
	assert.NotEmpty(t, result.SynthesizedResponse.ResponseText)
	assert.Empty(t, result.SynthesizedResponse.Citations)
}

func TestProcessQueryNoSearcherDegrades(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, nil, nil)

	result, err := e.ProcessQuery(context.Background(), "What is machine learning?", nil)
	require.NoError(t, err)
	assert.True(t, result.FallbackUsed)
	assert.Equal(t, types.SearchTypeEmergencyFallback, result.SearchType)
}

func TestProcessQueryCancelled(t *testing.T) {
	t.Parallel()
	slow := retrievalFunc(func(ctx context.Context, _ retrieval.SearchParams) ([]types.Candidate, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e := newTestEngine(t, slow, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := e.ProcessQuery(ctx, "What is machine learning?", nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, types.ErrCancelled, types.GetErrorCode(err))
}

type retrievalFunc func(ctx context.Context, params retrieval.SearchParams) ([]types.Candidate, error)

func (f retrievalFunc) Search(ctx context.Context, params retrieval.SearchParams) ([]types.Candidate, error) {
	return f(ctx, params)
}

func TestProcessQueryWorkflowTracked(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, &memorySearcher{docs: mlDocs()}, nil)

	result, err := e.ProcessQuery(context.Background(), "What is machine learning?", nil)
	require.NoError(t, err)

	wfID, ok := result.Metadata["workflow_id"].(string)
	require.True(t, ok)

	state, found := e.WorkflowState(wfID)
	require.True(t, found)
	assert.Equal(t, types.WorkflowCompleted, state.Status)
	assert.Equal(t, types.PhaseCompleted, state.Phases[types.PhaseRetrieval].Status)
	assert.Equal(t, types.PhaseCompleted, state.Phases[types.PhaseSynthesis].Status)
}

func TestProcessQueryFinalConfidenceBonus(t *testing.T) {
	t.Parallel()
	web := &fakeWebSearcher{results: newsWebResults()}
	e := newTestEngine(t, &memorySearcher{}, web)

	result, err := e.ProcessQuery(context.Background(), "explain quantum computing hardware", nil)
	require.NoError(t, err)

	// 回退成功时在加权和上追加 +0.1 奖励
	require.NotNil(t, result.RetrievalResult)
	expected := min(1.0, finalRetrievalWeight*result.RetrievalResult.Confidence+
		finalSynthesisWeight*result.SynthesizedResponse.Confidence+fallbackSuccessBonus)
	assert.InDelta(t, expected, result.Confidence, 1e-9)
}

func TestProcessQueryConfidenceMetricsConsistent(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, &memorySearcher{docs: mlDocs()}, nil)

	result, err := e.ProcessQuery(context.Background(), "What is machine learning?", nil)
	require.NoError(t, err)
	require.NotNil(t, result.ConfidenceMetrics)

	// 评估器指标保持自洽：Level 对应的是评估器自己的 Overall
	m := result.ConfidenceMetrics
	assert.Equal(t, types.LevelFor(m.Overall), m.Level)

	// 最终置信度的等级单独放在元数据里
	assert.Equal(t, string(types.LevelFor(result.Confidence)), result.Metadata["confidence_level"])
}

func TestProcessBatchPreservesOrder(t *testing.T) {
	t.Parallel()
	web := &fakeWebSearcher{results: newsWebResults()}
	e := newTestEngine(t, &memorySearcher{docs: mlDocs()}, web)

	queries := []string{
		"What is machine learning?",
		"",
		"latest quantum computing news",
	}
	items := e.ProcessBatch(context.Background(), queries, nil)
	require.Len(t, items, 3)

	for i, item := range items {
		assert.Equal(t, queries[i], item.Query, "item %d", i)
		require.NoError(t, item.Err)
		require.NotNil(t, item.Result)
	}
	assert.Equal(t, 0.0, items[1].Result.Confidence)
	assert.Equal(t, types.SearchTypeWeb, items[2].Result.SearchType)
}

func TestProcessBatchMany(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, &memorySearcher{docs: mlDocs()}, nil)

	queries := make([]string, 25)
	for i := range queries {
		queries[i] = fmt.Sprintf("What is machine learning technique %d?", i)
	}
	items := e.ProcessBatch(context.Background(), queries, nil)
	require.Len(t, items, 25)
	for _, item := range items {
		require.NoError(t, item.Err)
	}
}

func TestProcessBatchAfterClose(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, &memorySearcher{docs: mlDocs()}, nil)
	e.Close()

	items := e.ProcessBatch(context.Background(), []string{"a", "b"}, nil)
	require.Len(t, items, 2)
	for _, item := range items {
		require.ErrorIs(t, item.Err, pool.ErrPoolClosed)
		assert.Nil(t, item.Result)
	}
}

func TestCleanupWorkflowsRemovesExpired(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.Workflow.MaxAge = time.Millisecond
	e := newTestEngineCfg(t, cfg, &memorySearcher{docs: mlDocs()}, nil)

	result, err := e.ProcessQuery(context.Background(), "What is machine learning?", nil)
	require.NoError(t, err)
	wfID := result.Metadata["workflow_id"].(string)

	_, ok := e.WorkflowState(wfID)
	require.True(t, ok)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, e.CleanupWorkflows(context.Background()))

	_, ok = e.WorkflowState(wfID)
	assert.False(t, ok)
}

func TestUpdateConfigHotSwap(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, &memorySearcher{docs: mlDocs()}, nil)

	cfg := e.Config()
	cfg.Synthesis.MaxCitations = 1
	require.NoError(t, e.UpdateConfig(cfg))

	result, err := e.ProcessQuery(context.Background(), "What is machine learning?", nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.SynthesizedResponse.Citations), 1)
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, &memorySearcher{docs: mlDocs()}, nil)

	cfg := e.Config()
	cfg.Confidence.FallbackThreshold = 1.5
	assert.Error(t, e.UpdateConfig(cfg))
}

func TestLocalOnlyWithUploadedDocs(t *testing.T) {
	t.Parallel()
	web := &fakeWebSearcher{results: newsWebResults()}
	docs := []types.Candidate{{
		ID: "up-1", SourceKind: types.SourceLocal, Title: "Uploaded report",
		Content: "The uploaded document describes quarterly revenue growth in detail. Revenue document figures show steady improvement across segments.",
	}}
	e := newTestEngine(t, &memorySearcher{docs: docs}, web)

	session := &types.SessionContext{HasUploadedDocuments: true}
	result, err := e.ProcessQuery(context.Background(), "summarize my document about revenue growth", session)
	require.NoError(t, err)
	assert.NotEmpty(t, result.SynthesizedResponse.ResponseText)
}
