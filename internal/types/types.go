package types

import "time"

// 工作流运行状态
const (
	RunStatusQueued     = "queued"
	RunStatusInProgress = "in_progress"
	RunStatusCompleted  = "completed"

	// RunConclusionSuccess 成功结论
	RunConclusionSuccess = "success"
)

// ValidationResult 源镜像校验结果
type ValidationResult struct {
	Exists  bool `json:"exists"`
	Trusted bool `json:"trusted"`
}

// Dispatch 一次工作流触发记录
type Dispatch struct {
	Ref         string    `json:"ref"`
	TriggeredAt time.Time `json:"triggered_at"`
	// AfterRunID 触发前最新一次运行的ID，本次运行的ID一定更大
	AfterRunID int64 `json:"after_run_id"`
}

// WorkflowRun GitHub工作流运行状态
type WorkflowRun struct {
	ID         int64     `json:"id"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion"`
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"created_at"`
}

// Completed 运行是否已结束
func (r *WorkflowRun) Completed() bool {
	return r.Status == RunStatusCompleted
}

// Succeeded 运行是否成功结束
func (r *WorkflowRun) Succeeded() bool {
	return r.Completed() && r.Conclusion == RunConclusionSuccess
}

// RunOutcome 轮询结束时的结果
type RunOutcome struct {
	Run   WorkflowRun `json:"run"`
	Ticks int         `json:"ticks"`
}
