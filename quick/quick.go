// =============================================================================
// Package quick — One-Line Engine Construction
// =============================================================================
// Provides a convenience entry point for creating a retrieval engine with
// minimal boilerplate. Delegates to ragflow.New internally.
//
// Usage:
//
//	import "github.com/BaSui01/ragflow/quick"
//
//	e, err := quick.New(quick.WithSearcher(mySearcher))
//	e, err := quick.New(quick.WithQdrant("http://localhost:6333", "docs", embedder))
//	e, err := quick.New(quick.WithTavily(os.Getenv("TAVILY_API_KEY")))
//
// =============================================================================
package quick

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/ragflow"
	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/fallback"
	"github.com/BaSui01/ragflow/retrieval"
	"github.com/BaSui01/ragflow/store"
	"github.com/BaSui01/ragflow/types"
)

// Option configures the engine created by New.
type Option func(*options) error

type options struct {
	cfg         *config.Config
	searcher    retrieval.VectorSearcher
	webSearcher fallback.WebSearcher
	logger      *zap.Logger
}

// WithConfig sets a full configuration. Defaults to config.DefaultConfig().
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		o.cfg = cfg
		return nil
	}
}

// WithSearcher sets a pre-built vector searcher.
func WithSearcher(s retrieval.VectorSearcher) Option {
	return func(o *options) error {
		o.searcher = s
		return nil
	}
}

// WithWebSearcher sets a pre-built web searcher for fallback.
func WithWebSearcher(w fallback.WebSearcher) Option {
	return func(o *options) error {
		o.webSearcher = w
		return nil
	}
}

// WithQdrant wires a Qdrant-backed vector searcher.
func WithQdrant(baseURL, collection string, embedder store.Embedder) Option {
	return func(o *options) error {
		s, err := store.NewQdrantSearcher(store.QdrantConfig{
			BaseURL:    baseURL,
			Collection: collection,
		}, embedder, o.logger)
		if err != nil {
			return fmt.Errorf("create qdrant searcher: %w", err)
		}
		o.searcher = s
		return nil
	}
}

// WithTavily wires a Tavily web searcher for fallback.
func WithTavily(apiKey string) Option {
	return func(o *options) error {
		w, err := store.NewTavilySearcher(store.TavilyConfig{APIKey: apiKey})
		if err != nil {
			return fmt.Errorf("create web searcher: %w", err)
		}
		o.webSearcher = w
		return nil
	}
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// New creates an Engine with minimal configuration. Backends are optional:
// without a vector searcher local retrieval is skipped, without a web
// searcher the fallback degrades to emergency responses.
func New(opts ...Option) (*ragflow.Engine, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.cfg == nil {
		o.cfg = config.DefaultConfig()
	}
	return ragflow.New(o.cfg, o.searcher, o.webSearcher, o.logger)
}

// Ask runs a single query against a throwaway engine and returns the result.
// Convenience for scripts and experiments; services should hold an Engine.
func Ask(ctx context.Context, query string, opts ...Option) (*types.RAGResult, error) {
	e, err := New(opts...)
	if err != nil {
		return nil, err
	}
	defer e.Close()
	return e.ProcessQuery(ctx, query, nil)
}
