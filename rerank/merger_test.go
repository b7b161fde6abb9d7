package rerank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragflow/types"
)

func local(id, title string, score float64) types.Candidate {
	return types.Candidate{
		ID:         id,
		SourceKind: types.SourceLocal,
		Title:      title,
		Content:    "local content for " + id,
		RawScore:   score,
	}
}

func web(id, title, rawURL string, score, trust float64) types.Candidate {
	return types.Candidate{
		ID:         id,
		SourceKind: types.SourceWeb,
		Title:      title,
		Content:    "web content for " + id,
		URL:        rawURL,
		RawScore:   score,
		TrustScore: trust,
	}
}

func TestMergeDeduplicatesWebByURL(t *testing.T) {
	t.Parallel()
	m := NewMerger(0.9, nil)

	merged := m.Merge(nil, []types.Candidate{
		web("1", "Go history", "https://www.golang.org/doc/", 0.8, 0.7),
		web("2", "Go timeline", "http://golang.org/doc", 0.7, 0.7),
		web("3", "Other page", "https://golang.org/ref", 0.6, 0.7),
	})

	require.Len(t, merged, 2)
	assert.Equal(t, "1", merged[0].ID)
}

func TestMergeDeduplicatesByTitleAcrossSources(t *testing.T) {
	t.Parallel()
	m := NewMerger(0.9, nil)

	merged := m.Merge(
		[]types.Candidate{local("l1", "Machine  Learning Basics", 0.8)},
		[]types.Candidate{web("w1", "machine learning basics", "https://a.com/x", 0.9, 0.7)},
	)

	require.Len(t, merged, 1)
	assert.Equal(t, "l1", merged[0].ID)
}

func TestMergeAssignsLocalTrust(t *testing.T) {
	t.Parallel()
	m := NewMerger(0.9, nil)

	merged := m.Merge([]types.Candidate{local("l1", "Doc", 0.5)}, nil)
	require.Len(t, merged, 1)
	assert.Equal(t, 0.9, merged[0].TrustScore)
}

func TestMergeRanksByScoreAndTrust(t *testing.T) {
	t.Parallel()
	m := NewMerger(0.9, nil)

	merged := m.Merge(
		[]types.Candidate{local("l1", "Local doc", 0.6)},
		[]types.Candidate{web("w1", "Web doc", "https://x.xyz/a", 0.9, 0.5)},
	)

	require.Len(t, merged, 2)
	// local: 0.6*0.6+0.4*0.9=0.72, web: 0.6*0.9+0.4*0.5=0.74
	assert.Equal(t, "w1", merged[0].ID)
	assert.Equal(t, "l1", merged[1].ID)
}

func TestMergeUntitledLocalChunksNotDeduplicated(t *testing.T) {
	t.Parallel()
	m := NewMerger(0.9, nil)

	merged := m.Merge([]types.Candidate{
		local("l1", "", 0.8),
		local("l2", "", 0.7),
	}, nil)
	assert.Len(t, merged, 2)
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, normalizeURL("https://www.Example.com/path/"), normalizeURL("http://example.com/path"))
	assert.NotEqual(t, normalizeURL("https://example.com/a"), normalizeURL("https://example.com/b"))
	assert.Empty(t, normalizeURL(""))
}
