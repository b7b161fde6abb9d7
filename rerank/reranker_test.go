package rerank

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/types"
)

func newTestReranker() *Reranker {
	return NewReranker(config.DefaultRerankConfig(), nil)
}

func candidateWith(id, content string, score, trust float64) types.Candidate {
	return types.Candidate{
		ID:         id,
		SourceKind: types.SourceWeb,
		Title:      "title " + id,
		Content:    content,
		RawScore:   score,
		TrustScore: trust,
	}
}

func TestHybridRerankPrefersRelevantTrustedContent(t *testing.T) {
	t.Parallel()
	r := newTestReranker()

	weak := candidateWith("weak", "unrelated short text", 0.3, 0.5)
	strong := candidateWith("strong",
		"Machine learning is a discipline of artificial intelligence. It builds models that learn patterns from training data and generalize to unseen examples in practice today.",
		0.9, 0.9)

	out := r.Rerank("machine learning models", []types.Candidate{weak, strong}, VariantHybrid)
	require.Len(t, out, 2)
	assert.Equal(t, "strong", out[0].ID)
	assert.Greater(t, out[0].RerankScore, out[1].RerankScore)
	assert.Contains(t, out[0].ScoreBreakdown, "relevance")
	assert.Contains(t, out[0].ScoreBreakdown, "authority")
}

func TestHybridRerankNeutralFreshnessWithoutTimestamp(t *testing.T) {
	t.Parallel()
	r := newTestReranker()

	c := candidateWith("c", "Some reasonable content about machine learning systems.", 0.5, 0.7)
	out := r.Rerank("machine learning", []types.Candidate{c}, VariantHybrid)
	require.Len(t, out, 1)
	assert.Equal(t, 0.5, out[0].ScoreBreakdown["freshness"])
}

func TestHybridRerankFreshContentScoresHigher(t *testing.T) {
	t.Parallel()
	r := newTestReranker()

	fresh := candidateWith("fresh", "Machine learning content body with sentences. More text here.", 0.5, 0.7)
	fresh.Timestamp = time.Now().Add(-time.Hour)
	stale := candidateWith("stale", "Machine learning content body with sentences. More text here.", 0.5, 0.7)
	stale.Timestamp = time.Now().Add(-2 * 365 * 24 * time.Hour)

	out := r.Rerank("machine learning", []types.Candidate{stale, fresh}, VariantHybrid)
	require.Len(t, out, 2)
	assert.Equal(t, "fresh", out[0].ID)
}

func TestRerankDoesNotMutateRawScore(t *testing.T) {
	t.Parallel()
	r := newTestReranker()

	in := []types.Candidate{candidateWith("a", "Machine learning content.", 0.42, 0.7)}
	out := r.Rerank("machine learning", in, VariantHybrid)
	assert.Equal(t, 0.42, out[0].RawScore)
	assert.Equal(t, 0.42, in[0].RawScore)
	assert.Nil(t, in[0].ScoreBreakdown)
}

func TestDiversityRerankPenalizesNearDuplicates(t *testing.T) {
	t.Parallel()
	r := newTestReranker()

	a := candidateWith("a", "golang concurrency channels goroutines select patterns", 0.9, 0.7)
	dup := candidateWith("dup", "golang concurrency channels goroutines select patterns", 0.85, 0.7)
	other := candidateWith("other", "database indexing btree storage layout", 0.5, 0.7)

	out := r.Rerank("golang", []types.Candidate{a, dup, other}, VariantDiversity)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].ID)
	// 与已选结果完全重复的内容被压到最后
	assert.Equal(t, "other", out[1].ID)
	assert.Equal(t, "dup", out[2].ID)
}

func TestDiversityRerankCap(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultRerankConfig()
	cfg.MaxResults = 100
	r := NewReranker(cfg, nil)

	candidates := make([]types.Candidate, 30)
	for i := range candidates {
		candidates[i] = candidateWith(
			fmt.Sprintf("c%d", i),
			fmt.Sprintf("unique content block number %d with distinct words w%d w%d", i, i*2, i*3),
			0.5, 0.7)
	}

	out := r.Rerank("query", candidates, VariantDiversity)
	assert.Len(t, out, 20)
}

func TestSimilarityRerankPrefersQueryOverlap(t *testing.T) {
	t.Parallel()
	r := newTestReranker()

	near := candidateWith("near", "machine learning models training", 0.5, 0.7)
	far := candidateWith("far", "cooking recipes with butter flour sugar", 0.9, 0.7)

	out := r.Rerank("machine learning models", []types.Candidate{far, near}, VariantSimilarity)
	require.Len(t, out, 2)
	assert.Equal(t, "near", out[0].ID)
}

func TestRerankTruncatesToMaxResults(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultRerankConfig()
	cfg.MaxResults = 3
	r := NewReranker(cfg, nil)

	candidates := make([]types.Candidate, 10)
	for i := range candidates {
		candidates[i] = candidateWith(fmt.Sprintf("c%d", i), "Machine learning content block.", 0.5, 0.7)
	}

	out := r.Rerank("machine learning", candidates, VariantHybrid)
	assert.Len(t, out, 3)
}

func TestRerankEmptyInput(t *testing.T) {
	t.Parallel()
	r := newTestReranker()
	assert.Empty(t, r.Rerank("query", nil, VariantHybrid))
}
