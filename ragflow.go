// Package ragflow implements a hybrid retrieval pipeline with
// confidence-driven web fallback.
//
// Usage:
//
//	import "github.com/BaSui01/ragflow"
//
//	engine, err := ragflow.New(cfg, searcher, webSearcher, logger)
//	result, err := engine.ProcessQuery(ctx, "what is machine learning", nil)
//
// The engine analyzes the query, picks a retrieval strategy, searches the
// local vector store, evaluates confidence, and falls back to web search
// when local evidence is weak. Results from both sources are merged,
// reranked and synthesized into an attributed response.
package ragflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/confidence"
	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/fallback"
	"github.com/BaSui01/ragflow/internal/metrics"
	"github.com/BaSui01/ragflow/internal/pool"
	"github.com/BaSui01/ragflow/query"
	"github.com/BaSui01/ragflow/rerank"
	"github.com/BaSui01/ragflow/retrieval"
	"github.com/BaSui01/ragflow/synthesis"
	"github.com/BaSui01/ragflow/types"
	"github.com/BaSui01/ragflow/workflow"
)

// 最终置信度权重与回退成功奖励
const (
	finalRetrievalWeight = 0.6
	finalSynthesisWeight = 0.4
	fallbackSuccessBonus = 0.1
)

// core 持有可热替换的组件快照。配置更新时整体重建，
// 在途请求继续使用各自加载的旧快照。
type core struct {
	cfg        *config.Config
	analyzer   *query.Analyzer
	selector   *query.StrategySelector
	retriever  *retrieval.Retriever
	fbManager  *fallback.Manager
	evaluator  *confidence.Evaluator
	merger     *rerank.Merger
	reranker   *rerank.Reranker
	synth      *synthesis.Synthesizer
}

// Engine 查询处理编排器。
// 除限流器、校准器、工作流集合与指标外不持有跨请求状态，
// 可被任意并发调用。
type Engine struct {
	current atomic.Pointer[core]

	searcher    retrieval.VectorSearcher
	webSearcher fallback.WebSearcher

	coordinator *workflow.Coordinator
	calibrator  *confidence.Calibrator
	registry    *prometheus.Registry
	collector   *metrics.Collector
	workers     *pool.Pool
	tracer      trace.Tracer
	logger      *zap.Logger

	closeOnce sync.Once
}

// New 创建引擎。webSearcher 可为 nil，此时回退总是走应急响应。
func New(cfg *config.Config, searcher retrieval.VectorSearcher, webSearcher fallback.WebSearcher, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	workers, err := pool.New(cfg.Engine.BatchWorkers, logger)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		searcher:    searcher,
		webSearcher: webSearcher,
		coordinator: workflow.NewCoordinator(cfg.Workflow, logger),
		calibrator: confidence.NewCalibrator(
			cfg.Confidence.FallbackThreshold,
			cfg.Confidence.CalibrationTarget,
			logger),
		registry:  prometheus.NewRegistry(),
		workers:   workers,
		tracer:    otel.Tracer("github.com/BaSui01/ragflow"),
		logger:    logger.With(zap.String("component", "engine")),
	}
	e.collector = metrics.NewCollector("ragflow", e.registry, logger)
	e.current.Store(e.buildCore(cfg))
	return e, nil
}

// Registry 返回引擎私有的 Prometheus registry，供 HTTP 暴露端挂载。
func (e *Engine) Registry() *prometheus.Registry {
	return e.registry
}

func (e *Engine) buildCore(cfg *config.Config) *core {
	counter := retrieval.NewTiktokenCounter(cfg.Retrieval.TokenizerModel, e.logger)
	assembler := retrieval.NewContextAssembler(cfg.Retrieval.ContextBudgets, counter, e.logger)

	return &core{
		cfg:       cfg,
		analyzer:  query.NewAnalyzer(e.logger),
		selector:  query.NewStrategySelector(e.logger),
		retriever: retrieval.NewRetriever(e.searcher, assembler, cfg.Retrieval, e.logger),
		fbManager: fallback.NewManager(e.webSearcher, cfg.Fallback, e.logger),
		evaluator: confidence.NewEvaluator(cfg.Confidence.FallbackThreshold, e.logger),
		merger:    rerank.NewMerger(cfg.Rerank.LocalTrustScore, e.logger),
		reranker:  rerank.NewReranker(cfg.Rerank, e.logger),
		synth:     synthesis.NewSynthesizer(cfg.Synthesis, e.logger),
	}
}

// UpdateConfig 原子替换配置快照。在途请求不受影响。
func (e *Engine) UpdateConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.current.Store(e.buildCore(cfg.Clone()))
	e.logger.Info("configuration updated")
	return nil
}

// Config 返回当前配置的副本
func (e *Engine) Config() *config.Config {
	return e.current.Load().cfg.Clone()
}

// ProcessQuery 处理单个查询，返回终态结果信封。
// ctx 取消时工作流记为 cancelled 而不是 failed。
func (e *Engine) ProcessQuery(ctx context.Context, rawQuery string, session *types.SessionContext) (*types.RAGResult, error) {
	c := e.current.Load()
	start := time.Now()

	if c.cfg.Engine.MaxProcessingTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Engine.MaxProcessingTime)
		defer cancel()
	}

	ctx, span := e.tracer.Start(ctx, "ragflow.ProcessQuery")
	defer span.End()

	wfID := e.coordinator.Start(rawQuery)
	e.collector.SetActiveWorkflows(e.coordinator.ActiveCount())

	result, err := e.process(ctx, c, wfID, rawQuery, session, start)

	switch {
	case err != nil && ctx.Err() != nil:
		e.coordinator.Finish(wfID, types.WorkflowCancelled)
	case err != nil:
		e.coordinator.Finish(wfID, types.WorkflowFailed)
	default:
		e.coordinator.Finish(wfID, types.WorkflowCompleted)
	}
	e.collector.SetActiveWorkflows(e.coordinator.ActiveCount())

	if result != nil {
		span.SetAttributes(
			attribute.Float64("ragflow.confidence", result.Confidence),
			attribute.String("ragflow.search_type", string(result.SearchType)),
			attribute.Bool("ragflow.fallback_used", result.FallbackUsed),
		)
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.collector.RecordRequest(string(result.SearchType), status, result.ProcessingTime, result.Confidence)
		if c.cfg.Confidence.EnableCalibration && err == nil {
			e.calibrator.Record(result.Confidence, !result.FallbackUsed || result.SearchType != types.SearchTypeEmergencyFallback)
		}
	}

	return result, err
}

// process 执行各阶段。返回的 result 在部分失败时也尽量携带已有产物。
func (e *Engine) process(ctx context.Context, c *core, wfID, rawQuery string, session *types.SessionContext, start time.Time) (*types.RAGResult, error) {
	// ----- 初始化：查询分析与策略选择 -----
	e.coordinator.BeginPhase(wfID, types.PhaseInitialization)
	phaseStart := time.Now()

	analysis := c.analyzer.Analyze(rawQuery)
	decision := c.selector.Select(analysis, session)

	e.coordinator.CompletePhase(wfID, types.PhaseInitialization)
	e.collector.RecordPhase(types.PhaseInitialization, time.Since(phaseStart))

	// 空查询直接降级，置信度为 0
	if analysis.NormalizedText == "" {
		e.markSkipped(wfID, types.PhaseRetrieval, types.PhaseFallback, types.PhaseSynthesis, types.PhaseFinalization)
		e.collector.RecordEmergency()
		return e.emptyQueryResult(rawQuery, analysis, start), nil
	}

	// ----- 检索阶段 -----
	var localResult *types.RetrievalResult
	if decision.Strategy == types.StrategyWebOnly {
		e.coordinator.SkipPhase(wfID, types.PhaseRetrieval)
	} else {
		e.coordinator.BeginPhase(wfID, types.PhaseRetrieval)
		phaseStart = time.Now()

		var err error
		localResult, err = e.retrieveWithSpan(ctx, c, analysis)
		if err != nil {
			e.coordinator.FailPhase(wfID, types.PhaseRetrieval, err)
			e.collector.RecordPhaseFailure(types.PhaseRetrieval)
			if ctx.Err() != nil {
				return nil, types.NewError(types.ErrCancelled, "processing cancelled").WithCause(ctx.Err())
			}
			// 本地检索失败按零结果处理，交给回退
			localResult = nil
		} else {
			e.coordinator.CompletePhase(wfID, types.PhaseRetrieval)
			e.collector.RecordPhase(types.PhaseRetrieval, time.Since(phaseStart))
		}
	}

	// ----- 置信度评估与回退 -----
	retrievalConf := 0.0
	if localResult != nil {
		retrievalConf = localResult.Confidence
	}
	evalMetrics := c.evaluator.Evaluate(confidence.Input{Retrieval: localResult}, e.fallbackThreshold(c, decision))

	fallbackUsed := false
	fallbackSucceeded := false
	searchType := searchTypeFor(decision.Strategy)
	var webCandidates []types.Candidate
	var emergencyResp *types.SynthesizedResponse

	shouldFB, reason := fallback.ShouldFallback(decision, localResult, evalMetrics.Overall)
	if shouldFB && !c.cfg.Engine.EnableWebFallback && decision.Strategy != types.StrategyWebOnly {
		shouldFB = false
	}

	if shouldFB {
		e.coordinator.BeginPhase(wfID, types.PhaseFallback)
		phaseStart = time.Now()
		e.collector.RecordFallback(reason)

		fbCtx, fbSpan := e.tracer.Start(ctx, "ragflow.fallback")
		fbResult, err := c.fbManager.Execute(fbCtx, analysis)
		fbSpan.End()
		if err != nil {
			e.coordinator.FailPhase(wfID, types.PhaseFallback, err)
			e.collector.RecordPhaseFailure(types.PhaseFallback)
			return nil, err
		}

		fallbackUsed = true
		e.collector.RecordCache(fbResult.FromCache)
		if fbResult.Emergency {
			e.collector.RecordEmergency()
			searchType = types.SearchTypeEmergencyFallback
			emergencyResp = &types.SynthesizedResponse{
				ResponseText:  fbResult.EmergencyText,
				Citations:     []types.Citation{},
				SourceQuality: types.SourceQualityLow,
				Confidence:    fbResult.EmergencyConfidence,
			}
		} else {
			fallbackSucceeded = true
			webCandidates = fbResult.Candidates
			switch {
			case decision.Strategy == types.StrategyWebOnly:
				searchType = types.SearchTypeWeb
			case localResult != nil && !localResult.AssembledContext.IsEmpty():
				searchType = types.SearchTypeHybrid
			default:
				searchType = fbResult.SearchType
			}
		}
		e.coordinator.CompletePhase(wfID, types.PhaseFallback)
		e.collector.RecordPhase(types.PhaseFallback, time.Since(phaseStart))
	} else {
		e.coordinator.SkipPhase(wfID, types.PhaseFallback)
	}

	// ----- 合成阶段 -----
	e.coordinator.BeginPhase(wfID, types.PhaseSynthesis)
	phaseStart = time.Now()

	var resp *types.SynthesizedResponse
	if emergencyResp != nil {
		resp = emergencyResp
	} else {
		var localCandidates []types.Candidate
		if localResult != nil {
			localCandidates = localResult.AssembledContext.Chunks
		}
		merged := c.merger.Merge(localCandidates, webCandidates)
		reranked := c.reranker.Rerank(analysis.NormalizedText, merged, rerank.VariantHybrid)

		synthCtx := ctx
		if c.cfg.Engine.GenerationTimeout > 0 {
			var cancel context.CancelFunc
			synthCtx, cancel = context.WithTimeout(ctx, c.cfg.Engine.GenerationTimeout)
			defer cancel()
		}
		_, synthSpan := e.tracer.Start(synthCtx, "ragflow.synthesis")
		resp = c.synth.Synthesize(analysis.NormalizedText, reranked)
		synthSpan.End()
	}

	e.coordinator.CompletePhase(wfID, types.PhaseSynthesis)
	e.collector.RecordPhase(types.PhaseSynthesis, time.Since(phaseStart))

	// ----- 终结阶段 -----
	e.coordinator.BeginPhase(wfID, types.PhaseFinalization)

	finalConf := finalRetrievalWeight*retrievalConf + finalSynthesisWeight*resp.Confidence
	if fallbackUsed && fallbackSucceeded {
		finalConf = min(1.0, finalConf+fallbackSuccessBonus)
	}
	finalConf = min(1.0, max(0.0, finalConf))

	result := &types.RAGResult{
		Query:               rawQuery,
		RetrievalResult:     localResult,
		SynthesizedResponse: resp,
		Confidence:          finalConf,
		ConfidenceMetrics:   evalMetrics,
		SearchType:          searchType,
		FallbackUsed:        fallbackUsed,
		Timestamp:           time.Now(),
		ProcessingTime:      time.Since(start),
		Metadata: map[string]any{
			"workflow_id":      wfID,
			"strategy":         string(decision.Strategy),
			"strategy_reason":  decision.Reason,
			"confidence_level": string(types.LevelFor(finalConf)),
		},
	}

	e.coordinator.CompletePhase(wfID, types.PhaseFinalization)

	e.logger.Info("query processed",
		zap.String("workflow_id", wfID),
		zap.String("search_type", string(searchType)),
		zap.Float64("confidence", finalConf),
		zap.Bool("fallback_used", fallbackUsed),
		zap.Duration("elapsed", result.ProcessingTime))

	return result, nil
}

func (e *Engine) retrieveWithSpan(ctx context.Context, c *core, analysis *types.QueryAnalysis) (*types.RetrievalResult, error) {
	ctx, span := e.tracer.Start(ctx, "ragflow.retrieval")
	defer span.End()
	if e.searcher == nil {
		return nil, types.NewError(types.ErrVectorSearch, "vector searcher not configured")
	}
	return c.retriever.Retrieve(ctx, analysis)
}

// fallbackThreshold 取策略覆盖阈值。策略给出的是通用阈值
// 且校准开启时，用校准后的阈值替代。
func (e *Engine) fallbackThreshold(c *core, decision *types.StrategyDecision) float64 {
	t := decision.ConfidenceThreshold
	if t <= 0 {
		t = c.cfg.Confidence.FallbackThreshold
	}
	if c.cfg.Confidence.EnableCalibration && t == c.cfg.Confidence.FallbackThreshold {
		return e.calibrator.Threshold()
	}
	return t
}

func (e *Engine) emptyQueryResult(rawQuery string, analysis *types.QueryAnalysis, start time.Time) *types.RAGResult {
	return &types.RAGResult{
		Query: rawQuery,
		RetrievalResult: &types.RetrievalResult{
			QueryAnalysis:    analysis,
			SearchResults:    []types.Candidate{},
			AssembledContext: &types.AssembledContext{Chunks: []types.Candidate{}, Sources: []string{}},
			Confidence:       0,
		},
		SynthesizedResponse: &types.SynthesizedResponse{
			ResponseText:  "Please provide a question or topic to search for.",
			Citations:     []types.Citation{},
			SourceQuality: types.SourceQualityLow,
			Confidence:    0,
		},
		Confidence:     0,
		SearchType:     types.SearchTypeEmergencyFallback,
		FallbackUsed:   true,
		Timestamp:      time.Now(),
		ProcessingTime: time.Since(start),
		Metadata:       map[string]any{"empty_query": true},
	}
}

func (e *Engine) markSkipped(wfID string, phases ...string) {
	for _, p := range phases {
		e.coordinator.SkipPhase(wfID, p)
	}
}

// BatchItem 批处理单项结果
type BatchItem struct {
	Query  string
	Result *types.RAGResult
	Err    error
}

// ProcessBatch 并发处理一批查询，结果顺序与输入一致。
// 任务跑在引擎的有界工作池上，池满时提交阻塞；单项失败不中断整批。
func (e *Engine) ProcessBatch(ctx context.Context, queries []string, session *types.SessionContext) []BatchItem {
	items := make([]BatchItem, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		err := e.workers.Submit(ctx, func() {
			defer wg.Done()
			result, err := e.ProcessQuery(ctx, q, session)
			items[i] = BatchItem{Query: q, Result: result, Err: err}
		})
		if err != nil {
			wg.Done()
			items[i] = BatchItem{Query: q, Err: err}
		}
	}
	wg.Wait()

	return items
}

// WorkflowState 查询工作流进度，活跃与近期完成的都可查。
func (e *Engine) WorkflowState(id string) (*types.WorkflowState, bool) {
	return e.coordinator.Get(id)
}

// Calibrate 用累计反馈重算回退阈值，返回当前阈值。
func (e *Engine) Calibrate() float64 {
	return e.calibrator.Calibrate()
}

// CleanupWorkflows 清理超龄的已完成工作流记录。
// 清理任务跑在工作池上，返回前等待其完成。
func (e *Engine) CleanupWorkflows(ctx context.Context) error {
	done := make(chan struct{})
	if err := e.workers.Submit(ctx, func() {
		defer close(done)
		removed := e.coordinator.Cleanup()
		if removed > 0 {
			e.logger.Info("workflow records cleaned", zap.Int("removed", removed))
		}
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 释放工作池等资源。幂等。
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.workers.Release()
		_ = e.logger.Sync()
	})
}

// searchTypeFor 返回回退发生前的实际搜索路径
func searchTypeFor(s types.Strategy) types.SearchType {
	if s == types.StrategyWebOnly {
		return types.SearchTypeWeb
	}
	return types.SearchTypeLocal
}
