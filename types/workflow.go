package types

import "time"

// WorkflowStatus 工作流整体状态
type WorkflowStatus string

const (
	WorkflowPending    WorkflowStatus = "pending"
	WorkflowInProgress WorkflowStatus = "in_progress"
	WorkflowCompleted  WorkflowStatus = "completed"
	WorkflowFailed     WorkflowStatus = "failed"
	WorkflowCancelled  WorkflowStatus = "cancelled"
)

// IsTerminal 报告状态是否为终态。
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed || s == WorkflowCancelled
}

// PhaseStatus 单个阶段状态
type PhaseStatus string

const (
	PhaseNotStarted PhaseStatus = "not_started"
	PhaseInProgress PhaseStatus = "in_progress"
	PhaseCompleted  PhaseStatus = "completed"
	PhaseFailed     PhaseStatus = "failed"
	PhaseSkipped    PhaseStatus = "skipped"
)

// 管线标准阶段名。fallback 为可选阶段。
const (
	PhaseInitialization = "initialization"
	PhaseRetrieval      = "retrieval"
	PhaseFallback       = "fallback"
	PhaseSynthesis      = "synthesis"
	PhaseFinalization   = "finalization"
)

// WorkflowPhase 单个阶段的跟踪记录
type WorkflowPhase struct {
	Name      string      `json:"name"`
	Status    PhaseStatus `json:"status"`
	StartTime time.Time   `json:"start_time,omitempty"`
	EndTime   time.Time   `json:"end_time,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Duration 返回阶段耗时；阶段未结束时按当前时间计算。
func (p *WorkflowPhase) Duration() time.Duration {
	if p.StartTime.IsZero() {
		return 0
	}
	if p.EndTime.IsZero() {
		return time.Since(p.StartTime)
	}
	return p.EndTime.Sub(p.StartTime)
}

// WorkflowState 请求级工作流状态。由 workflow.Coordinator 独占修改，
// 终态迁移后进入有界的已完成集合。
type WorkflowState struct {
	ID        string                    `json:"id"`
	Query     string                    `json:"query"`
	Status    WorkflowStatus            `json:"status"`
	Phases    map[string]*WorkflowPhase `json:"phases"`
	StartTime time.Time                 `json:"start_time"`
	EndTime   time.Time                 `json:"end_time,omitempty"`
}

// Clone 返回深拷贝。对外暴露状态快照时必须用拷贝，
// 避免读取方与协调器的阶段更新竞争。
func (w *WorkflowState) Clone() *WorkflowState {
	if w == nil {
		return nil
	}
	dup := *w
	dup.Phases = make(map[string]*WorkflowPhase, len(w.Phases))
	for name, p := range w.Phases {
		pc := *p
		dup.Phases[name] = &pc
	}
	return &dup
}
