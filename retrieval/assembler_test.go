package retrieval

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/types"
)

func testBudgets() map[string]config.ContextBudget {
	return map[string]config.ContextBudget{
		"focused":       {MaxChunks: 3, MaxLength: 1500},
		"comprehensive": {MaxChunks: 10, MaxLength: 4000},
		"summary":       {MaxChunks: 5, MaxLength: 2000},
	}
}

func chunk(id string, content string, score float64) types.Candidate {
	return types.Candidate{
		ID:         id,
		SourceKind: types.SourceLocal,
		Title:      "doc-" + id,
		Content:    content,
		RawScore:   score,
		TrustScore: 0.9,
	}
}

func TestAssembleFiltersBadCandidates(t *testing.T) {
	t.Parallel()
	a := NewContextAssembler(testBudgets(), EstimateCounter{}, nil)

	query := "machine learning models"
	candidates := []types.Candidate{
		chunk("short", "tiny", 0.9),
		chunk("low-score", "Machine learning models require training data to generalize well.", 0.05),
		chunk("too-long", strings.Repeat("machine learning models ", 100), 0.9),
		chunk("no-overlap", "Completely unrelated cooking recipe with butter and flour.", 0.9),
		chunk("good", "Machine learning models learn patterns from examples. These models improve with data.", 0.8),
	}

	ctx := a.Assemble(query, candidates, types.ContextComprehensive)
	require.Equal(t, 1, ctx.TotalChunks())
	assert.Equal(t, "good", ctx.Chunks[0].ID)
}

func TestAssembleEmptyInput(t *testing.T) {
	t.Parallel()
	a := NewContextAssembler(testBudgets(), EstimateCounter{}, nil)

	ctx := a.Assemble("any query", nil, types.ContextFocused)
	require.NotNil(t, ctx)
	assert.True(t, ctx.IsEmpty())
	assert.Empty(t, ctx.ContextText)
	assert.Zero(t, ctx.TotalTokens)
	assert.Zero(t, ctx.RelevanceScore)
}

func TestAssembleContextTextFormat(t *testing.T) {
	t.Parallel()
	a := NewContextAssembler(testBudgets(), EstimateCounter{}, nil)

	query := "machine learning"
	candidates := []types.Candidate{
		chunk("1", "Machine learning is a field of study in artificial intelligence.", 0.9),
		chunk("2", "Deep machine learning uses neural networks with many layers.", 0.8),
	}

	ctx := a.Assemble(query, candidates, types.ContextComprehensive)
	require.Equal(t, 2, ctx.TotalChunks())
	assert.Contains(t, ctx.ContextText, "[Source 1: doc-1]\n")
	assert.Contains(t, ctx.ContextText, "[Source 2: doc-2]\n")
	assert.Equal(t, []string{"doc-1", "doc-2"}, ctx.Sources)
}

func TestAssembleOrdersByCombinedScore(t *testing.T) {
	t.Parallel()
	a := NewContextAssembler(testBudgets(), EstimateCounter{}, nil)

	query := "machine learning"
	low := chunk("low", "machine learning note", 0.4)
	high := chunk("high", "Machine learning is a rigorous field. It studies learning from data.", 0.9)

	ctx := a.Assemble(query, []types.Candidate{low, high}, types.ContextComprehensive)
	require.Equal(t, 2, ctx.TotalChunks())
	assert.Equal(t, "high", ctx.Chunks[0].ID)
}

func TestAssembleRelevanceIsLengthWeighted(t *testing.T) {
	t.Parallel()
	a := NewContextAssembler(testBudgets(), EstimateCounter{}, nil)

	query := "machine learning"
	longHigh := chunk("a", "Machine learning systems "+strings.Repeat("learn from machine data. ", 20), 1.0)
	shortLow := chunk("b", "machine learning intro", 0.2)

	ctx := a.Assemble(query, []types.Candidate{longHigh, shortLow}, types.ContextComprehensive)
	require.Equal(t, 2, ctx.TotalChunks())
	// 长块权重大，聚合相关度应靠近 1.0 而不是简单平均 0.6
	assert.Greater(t, ctx.RelevanceScore, 0.8)
}

func TestContentQuality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		min     float64
		max     float64
	}{
		{"empty", "", 0, 0},
		{"bare fragment", "some words here and more", 0.5, 0.55},
		{"well formed", "Machine learning is a field of artificial intelligence. It focuses on algorithms that improve with experience. Models are trained on data and evaluated on held-out sets for generalization quality measures.", 0.85, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := ContentQuality(tt.content)
			assert.GreaterOrEqual(t, q, tt.min)
			assert.LessOrEqual(t, q, tt.max)
		})
	}
}

// 预算不变量：任意输入下块数与总字符数都不超过预算
func TestAssembleBudgetInvariant(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		a := NewContextAssembler(testBudgets(), EstimateCounter{}, nil)

		contextType := rapid.SampledFrom([]types.ContextType{
			types.ContextFocused, types.ContextComprehensive, types.ContextSummary,
		}).Draw(rt, "context_type")

		n := rapid.IntRange(0, 40).Draw(rt, "n")
		candidates := make([]types.Candidate, 0, n)
		for i := 0; i < n; i++ {
			repeat := rapid.IntRange(1, 120).Draw(rt, fmt.Sprintf("repeat_%d", i))
			score := rapid.Float64Range(0, 1).Draw(rt, fmt.Sprintf("score_%d", i))
			candidates = append(candidates, chunk(
				fmt.Sprintf("c%d", i),
				strings.Repeat("machine learning data ", repeat),
				score,
			))
		}

		ctx := a.Assemble("machine learning data", candidates, contextType)
		budget := testBudgets()[string(contextType)]

		if ctx.TotalChunks() > budget.MaxChunks {
			rt.Fatalf("chunks %d exceed budget %d", ctx.TotalChunks(), budget.MaxChunks)
		}
		total := 0
		for _, c := range ctx.Chunks {
			total += len(c.Content)
		}
		if total > budget.MaxLength {
			rt.Fatalf("total chars %d exceed budget %d", total, budget.MaxLength)
		}
	})
}

func TestBudgetForUnknownTypeFallsBack(t *testing.T) {
	t.Parallel()
	a := NewContextAssembler(testBudgets(), EstimateCounter{}, nil)

	b := a.budgetFor(types.ContextType("nonexistent"))
	assert.Equal(t, 10, b.MaxChunks)
	assert.Equal(t, 4000, b.MaxLength)
}
