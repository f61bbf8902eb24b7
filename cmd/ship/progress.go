package ship

import (
	"fmt"
	"sync"

	"github.com/pterm/pterm"

	"github.com/keevingness/image-shipper-relay/internal/types"
	"github.com/keevingness/image-shipper-relay/internal/workflow"
)

// progress 用spinner显示流程进度，零值和nil都可以使用
type progress struct {
	mu      sync.Mutex
	spinner *pterm.SpinnerPrinter
	last    string
}

func (p *progress) start(text string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.spinner != nil {
		p.spinner.UpdateText(text)
		return
	}
	spinner, err := pterm.DefaultSpinner.Start(text)
	if err != nil {
		return
	}
	p.spinner = spinner
	p.last = text
}

func (p *progress) stop() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.spinner != nil {
		_ = p.spinner.Stop()
		p.spinner = nil
	}
	p.last = ""
}

// onChange 在流程状态变化时更新spinner文字
func (p *progress) onChange(snap workflow.Snapshot) {
	if p == nil {
		return
	}
	text := describe(snap)
	if text == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spinner == nil || text == p.last {
		return
	}
	p.spinner.UpdateText(text)
	p.last = text
}

// describe 把状态快照转换成一行进度说明
func describe(snap workflow.Snapshot) string {
	switch snap.Phase {
	case workflow.PhaseValidating:
		return fmt.Sprintf("正在校验镜像 %s", snap.Source)
	case workflow.PhaseAwaitingConfirmation:
		return "等待确认"
	case workflow.PhaseConfiguringPipeline:
		return fmt.Sprintf("正在更新中转工作流: %s -> %s", snap.Source, snap.Target)
	case workflow.PhaseTriggering:
		return "正在触发工作流"
	case workflow.PhasePolling:
		status := snap.RunStatus
		if status == "" {
			status = types.RunStatusQueued
		}
		return fmt.Sprintf("工作流状态: %s (第%d次查询)", status, snap.Ticks)
	default:
		return ""
	}
}
