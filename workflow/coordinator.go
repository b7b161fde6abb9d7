// 包 workflow 跟踪单个请求的处理阶段状态。
// Coordinator 维护活跃工作流与有界的已完成集合：容量超限时
// 批量淘汰最旧记录，过期记录按时间清理。
package workflow

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow/config"
	"github.com/BaSui01/ragflow/types"
)

// 容量超限时一次淘汰的数量
const evictBatch = 50

// 标准阶段序列
var standardPhases = []string{
	types.PhaseInitialization,
	types.PhaseRetrieval,
	types.PhaseFallback,
	types.PhaseSynthesis,
	types.PhaseFinalization,
}

// Coordinator 工作流协调器。所有状态迁移都经它做，线程安全。
type Coordinator struct {
	mu        sync.RWMutex
	active    map[string]*types.WorkflowState
	completed map[string]*types.WorkflowState
	cfg       config.WorkflowConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewCoordinator 创建协调器
func NewCoordinator(cfg config.WorkflowConfig, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		active:    make(map[string]*types.WorkflowState),
		completed: make(map[string]*types.WorkflowState),
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "workflow_coordinator")),
		now:       time.Now,
	}
}

// Start 为一次请求创建新工作流，返回工作流 ID。
// 所有标准阶段初始为 not_started。
func (c *Coordinator) Start(query string) string {
	id := uuid.NewString()

	phases := make(map[string]*types.WorkflowPhase, len(standardPhases))
	for _, name := range standardPhases {
		phases[name] = &types.WorkflowPhase{Name: name, Status: types.PhaseNotStarted}
	}

	c.mu.Lock()
	c.active[id] = &types.WorkflowState{
		ID:        id,
		Query:     query,
		Status:    types.WorkflowInProgress,
		Phases:    phases,
		StartTime: c.now(),
	}
	c.mu.Unlock()

	c.logger.Debug("workflow started", zap.String("workflow_id", id))
	return id
}

// BeginPhase 标记阶段开始
func (c *Coordinator) BeginPhase(id, phase string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.phase(id, phase)
	if p == nil {
		return
	}
	p.Status = types.PhaseInProgress
	p.StartTime = c.now()
}

// CompletePhase 标记阶段成功结束
func (c *Coordinator) CompletePhase(id, phase string) {
	c.finishPhase(id, phase, types.PhaseCompleted, "")
}

// FailPhase 标记阶段失败并记录错误
func (c *Coordinator) FailPhase(id, phase string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	c.finishPhase(id, phase, types.PhaseFailed, msg)
}

// SkipPhase 标记阶段跳过（如未触发回退时的 fallback 阶段）
func (c *Coordinator) SkipPhase(id, phase string) {
	c.finishPhase(id, phase, types.PhaseSkipped, "")
}

func (c *Coordinator) finishPhase(id, phase string, status types.PhaseStatus, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.phase(id, phase)
	if p == nil {
		return
	}
	p.Status = status
	p.EndTime = c.now()
	p.Error = errMsg
}

// phase 返回活跃工作流的指定阶段，调用方须持有锁
func (c *Coordinator) phase(id, phase string) *types.WorkflowPhase {
	w, ok := c.active[id]
	if !ok {
		return nil
	}
	return w.Phases[phase]
}

// Finish 把工作流迁移到终态并移入已完成集合。
// 非法迁移（未知 ID 或非终态）直接忽略。
func (c *Coordinator) Finish(id string, status types.WorkflowStatus) {
	if !status.IsTerminal() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.active[id]
	if !ok {
		return
	}
	delete(c.active, id)

	w.Status = status
	w.EndTime = c.now()
	c.completed[id] = w

	c.evictLocked()

	c.logger.Debug("workflow finished",
		zap.String("workflow_id", id),
		zap.String("status", string(status)))
}

// Get 查询工作流状态，活跃与已完成集合都查。
// 返回的是快照拷贝，调用方读取时不与阶段更新竞争。
func (c *Coordinator) Get(id string) (*types.WorkflowState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if w, ok := c.active[id]; ok {
		return w.Clone(), true
	}
	if w, ok := c.completed[id]; ok {
		return w.Clone(), true
	}
	return nil, false
}

// ActiveCount 返回活跃工作流数
func (c *Coordinator) ActiveCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.active)
}

// CompletedCount 返回已完成集合大小
func (c *Coordinator) CompletedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.completed)
}

// Cleanup 清理超龄的已完成工作流，返回清理数量。
func (c *Coordinator) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.cfg.MaxAge)
	removed := 0
	for id, w := range c.completed {
		if w.EndTime.Before(cutoff) {
			delete(c.completed, id)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("expired workflows cleaned up", zap.Int("removed", removed))
	}
	return removed
}

// evictLocked 容量超限时淘汰最旧的一批已完成记录
func (c *Coordinator) evictLocked() {
	if len(c.completed) <= c.cfg.MaxCompleted {
		return
	}

	type entry struct {
		id    string
		ended time.Time
	}
	entries := make([]entry, 0, len(c.completed))
	for id, w := range c.completed {
		entries = append(entries, entry{id: id, ended: w.EndTime})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ended.Before(entries[j].ended)
	})

	n := evictBatch
	if n > len(entries) {
		n = len(entries)
	}
	for _, e := range entries[:n] {
		delete(c.completed, e.id)
	}

	c.logger.Debug("completed workflows evicted", zap.Int("evicted", n))
}
