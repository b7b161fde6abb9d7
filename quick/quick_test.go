package quick

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/types"
)

func TestNewWithoutBackends(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	// 无后端时查询降级为应急响应而不是报错
	result, err := e.ProcessQuery(context.Background(), "what is hybrid retrieval?", nil)
	require.NoError(t, err)
	assert.True(t, result.FallbackUsed)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Confidence.FallbackThreshold = 2.0

	_, err := New(WithConfig(cfg))
	require.Error(t, err)
}

func TestAskEmptyQuery(t *testing.T) {
	result, err := Ask(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, types.SearchTypeEmergencyFallback, result.SearchType)
	assert.Zero(t, result.Confidence)
}
