package workflow

import "errors"

// Phase 镜像转存流程所处的阶段
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseValidating           Phase = "validating"
	PhaseAwaitingConfirmation Phase = "awaiting_confirmation"
	PhaseConfiguringPipeline  Phase = "configuring_pipeline"
	PhaseTriggering           Phase = "triggering"
	PhasePolling              Phase = "polling"
	PhaseCompleted            Phase = "completed"
	PhaseFailed               Phase = "failed"
)

var (
	// ErrEmptySource 未填写源镜像
	ErrEmptySource = errors.New("source image is required")
	// ErrNotAwaitingConfirmation 当前没有等待确认的流程
	ErrNotAwaitingConfirmation = errors.New("workflow is not awaiting confirmation")
	// ErrSuperseded 流程已被取消或被新的提交替代
	ErrSuperseded = errors.New("workflow was cancelled or superseded")
)

// transitions 合法的阶段迁移
// 取消和新的提交会把流程直接重置为Idle，不经过此表。
var transitions = map[Phase][]Phase{
	PhaseIdle:                 {PhaseValidating},
	PhaseValidating:           {PhaseFailed, PhaseAwaitingConfirmation, PhaseConfiguringPipeline},
	PhaseAwaitingConfirmation: {PhaseConfiguringPipeline, PhaseIdle},
	PhaseConfiguringPipeline:  {PhaseFailed, PhaseTriggering},
	PhaseTriggering:           {PhaseFailed, PhasePolling},
	PhasePolling:              {PhaseCompleted, PhaseFailed},
}

func canTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Terminal 是否为一次提交的终止阶段
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}
