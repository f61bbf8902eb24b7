package workflow

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/keevingness/image-shipper-relay/internal/config"
	"github.com/keevingness/image-shipper-relay/internal/runner"
	"github.com/keevingness/image-shipper-relay/internal/types"
	"github.com/keevingness/image-shipper-relay/pkg/docker"
)

// Validator 源镜像校验
type Validator interface {
	Validate(ctx context.Context, ref docker.ImageReference) (*types.ValidationResult, error)
}

// Configurer 中转工作流配置
type Configurer interface {
	ConfigurePipeline(ctx context.Context, source docker.ImageReference, target docker.TargetImage) error
}

// Runner 工作流触发和轮询
type Runner interface {
	Trigger(ctx context.Context) (*types.Dispatch, error)
	PollUntilTerminal(ctx context.Context, dispatch *types.Dispatch, opts runner.PollOptions, onTick func(*types.WorkflowRun)) (*types.RunOutcome, error)
}

// Request 一次镜像转存提交
type Request struct {
	Source string `json:"source"`
	// TargetRepository 为空时使用源镜像的仓库名
	TargetRepository string `json:"target_repository,omitempty"`
	// TargetTag 为空时使用源镜像的标签
	TargetTag string `json:"target_tag,omitempty"`
}

// Snapshot 流程当前状态，供界面展示
type Snapshot struct {
	Phase         Phase  `json:"phase"`
	Error         string `json:"error,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
	Source        string `json:"source,omitempty"`
	Target        string `json:"target,omitempty"`
	TagDefaulted  bool   `json:"tag_defaulted,omitempty"`
	Trusted       bool   `json:"trusted"`
	RunStatus     string `json:"run_status,omitempty"`
	RunConclusion string `json:"run_conclusion,omitempty"`
	RunURL        string `json:"run_url,omitempty"`
	Ticks         int    `json:"ticks"`
	MirroredImage string `json:"mirrored_image,omitempty"`
}

// Options 编排器参数
type Options struct {
	Registry config.RegistryConfig
	Poll     runner.PollOptions
	Logger   *zap.Logger
	// OnChange 每次阶段变化和轮询后调用，不能在其中调用Cancel
	OnChange func(Snapshot)
}

type plan struct {
	source docker.ImageReference
	target docker.TargetImage
}

// flow 正在执行的一段流程，cancel后等待done
type flow struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator 镜像转存流程的状态机
type Orchestrator struct {
	validator  Validator
	configurer Configurer
	runner     Runner
	registry   config.RegistryConfig
	poll       runner.PollOptions
	logger     *zap.Logger
	onChange   func(Snapshot)

	mu      sync.Mutex
	gen     uint64
	active  *flow
	phase   Phase
	err     error
	plan    *plan
	trusted bool
	run     *types.WorkflowRun
	ticks   int
}

// New 创建编排器
func New(v Validator, c Configurer, r Runner, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		validator:  v,
		configurer: c,
		runner:     r,
		registry:   opts.Registry,
		poll:       opts.Poll,
		logger:     opts.Logger,
		onChange:   opts.OnChange,
		phase:      PhaseIdle,
	}
}

// Snapshot 返回当前阶段和最近一次错误
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	s := Snapshot{
		Phase:   o.phase,
		Trusted: o.trusted,
		Ticks:   o.ticks,
	}
	if o.err != nil {
		s.Error = o.err.Error()
		s.ErrorKind = types.ErrorKind(o.err)
	}
	if o.plan != nil {
		s.Source = o.plan.source.String()
		s.Target = o.plan.target.String()
		s.TagDefaulted = o.plan.source.TagDefaulted
		if o.phase == PhaseCompleted {
			s.MirroredImage = o.plan.target.String()
		}
	}
	if o.run != nil {
		s.RunStatus = o.run.Status
		s.RunConclusion = o.run.Conclusion
		s.RunURL = o.run.URL
	}
	return s
}

// Submit 开始一次新的转存
// 之前的流程会先被取消并等待其退出。镜像不是官方镜像时停在AwaitingConfirmation并返回，
// 否则一直执行到Completed或Failed。
func (o *Orchestrator) Submit(ctx context.Context, req Request) (Snapshot, error) {
	source := strings.TrimSpace(req.Source)
	if source == "" {
		return o.Snapshot(), ErrEmptySource
	}

	ref := docker.ParseImageReference(source)
	repository := req.TargetRepository
	if repository == "" {
		repository = ref.Repository
	}
	tag := req.TargetTag
	if tag == "" {
		tag = ref.Tag
	}
	p := &plan{
		source: ref,
		target: docker.NewTargetImage(o.registry.Address(), o.registry.Namespace, repository, tag),
	}

	gen, fctx, f := o.start(ctx, p)
	defer o.finish(f)
	o.notify(o.Snapshot())

	if !o.transition(gen, PhaseValidating, nil) {
		return o.Snapshot(), ErrSuperseded
	}

	result, err := o.validator.Validate(fctx, ref)
	if err != nil {
		o.transition(gen, PhaseFailed, err)
		return o.Snapshot(), err
	}
	if !result.Exists {
		err := &types.NotFoundError{Image: ref.String()}
		o.transition(gen, PhaseFailed, err)
		return o.Snapshot(), err
	}

	o.update(gen, func() { o.trusted = result.Trusted })

	if !result.Trusted {
		if !o.transition(gen, PhaseAwaitingConfirmation, nil) {
			return o.Snapshot(), ErrSuperseded
		}
		return o.Snapshot(), nil
	}

	if !o.transition(gen, PhaseConfiguringPipeline, nil) {
		return o.Snapshot(), ErrSuperseded
	}
	err = o.mirror(fctx, gen)
	return o.Snapshot(), err
}

// Confirm 用户确认转存非官方镜像，执行到Completed或Failed
func (o *Orchestrator) Confirm(ctx context.Context) (Snapshot, error) {
	resume, err := o.ClaimConfirmation(ctx)
	if err != nil {
		return o.Snapshot(), err
	}
	return resume()
}

// ClaimConfirmation 在同一次加锁中检查等待确认并切换到ConfiguringPipeline
// 并发的确认只有一个能成功，其余返回ErrNotAwaitingConfirmation。
// 成功时必须调用返回的resume，它执行剩余流程直到Completed或Failed。
func (o *Orchestrator) ClaimConfirmation(ctx context.Context) (func() (Snapshot, error), error) {
	o.mu.Lock()
	if o.phase != PhaseAwaitingConfirmation {
		o.mu.Unlock()
		return nil, ErrNotAwaitingConfirmation
	}
	gen := o.gen
	fctx, cancel := context.WithCancel(ctx)
	f := &flow{cancel: cancel, done: make(chan struct{})}
	o.active = f
	o.phase = PhaseConfiguringPipeline
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Info("Mirror confirmed by user", zap.String("source_image", snap.Source))
	o.notify(snap)

	return func() (Snapshot, error) {
		defer o.finish(f)
		err := o.mirror(fctx, gen)
		return o.Snapshot(), err
	}, nil
}

// Decline 用户拒绝转存，流程回到Idle且不保留任何状态
func (o *Orchestrator) Decline() error {
	o.mu.Lock()
	if o.phase != PhaseAwaitingConfirmation {
		o.mu.Unlock()
		return ErrNotAwaitingConfirmation
	}
	source := o.plan.source.String()
	o.gen++
	o.resetLocked()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Info("Mirror declined by user", zap.String("source_image", source))
	o.notify(snap)
	return nil
}

// Cancel 取消当前流程并等待其退出，流程回到Idle
func (o *Orchestrator) Cancel() {
	o.teardown()
	o.notify(o.Snapshot())
}

// mirror 配置、触发并轮询，调用前阶段必须已是ConfiguringPipeline
func (o *Orchestrator) mirror(ctx context.Context, gen uint64) error {
	o.mu.Lock()
	p := o.plan
	stale := gen != o.gen || p == nil
	o.mu.Unlock()
	if stale {
		return ErrSuperseded
	}

	if err := o.configurer.ConfigurePipeline(ctx, p.source, p.target); err != nil {
		o.transition(gen, PhaseFailed, err)
		return err
	}
	if !o.transition(gen, PhaseTriggering, nil) {
		return ErrSuperseded
	}

	dispatch, err := o.runner.Trigger(ctx)
	if err != nil {
		o.transition(gen, PhaseFailed, err)
		return err
	}
	if !o.transition(gen, PhasePolling, nil) {
		return ErrSuperseded
	}

	outcome, err := o.runner.PollUntilTerminal(ctx, dispatch, o.poll, func(run *types.WorkflowRun) {
		o.update(gen, func() {
			r := *run
			o.run = &r
			o.ticks++
		})
	})
	if err != nil {
		o.transition(gen, PhaseFailed, err)
		return err
	}

	o.update(gen, func() {
		r := outcome.Run
		o.run = &r
	})
	if !o.transition(gen, PhaseCompleted, nil) {
		return ErrSuperseded
	}

	o.logger.Info("Image mirrored",
		zap.String("source_image", p.source.String()),
		zap.String("target_image", p.target.String()),
		zap.Int("ticks", outcome.Ticks))
	return nil
}

// start 取消之前的流程并登记新的流程
func (o *Orchestrator) start(ctx context.Context, p *plan) (uint64, context.Context, *flow) {
	for {
		o.teardown()
		o.mu.Lock()
		if o.active == nil {
			break
		}
		o.mu.Unlock()
	}
	defer o.mu.Unlock()

	o.gen++
	o.plan = p
	fctx, cancel := context.WithCancel(ctx)
	f := &flow{cancel: cancel, done: make(chan struct{})}
	o.active = f

	return o.gen, fctx, f
}

func (o *Orchestrator) finish(f *flow) {
	o.mu.Lock()
	if o.active == f {
		o.active = nil
	}
	o.mu.Unlock()

	f.cancel()
	close(f.done)
}

// teardown 取消当前流程，等待其退出并重置为Idle
// 递增gen，使仍在返回途中的旧调用无法再修改状态。
func (o *Orchestrator) teardown() {
	o.mu.Lock()
	f := o.active
	o.gen++
	o.resetLocked()
	o.mu.Unlock()

	if f != nil {
		f.cancel()
		<-f.done
	}
}

func (o *Orchestrator) resetLocked() {
	o.phase = PhaseIdle
	o.err = nil
	o.plan = nil
	o.trusted = false
	o.run = nil
	o.ticks = 0
}

// transition 迁移到下一阶段，gen过期或迁移不合法时返回false
func (o *Orchestrator) transition(gen uint64, to Phase, err error) bool {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return false
	}
	from := o.phase
	if !canTransition(from, to) {
		o.mu.Unlock()
		o.logger.Error("Illegal workflow transition",
			zap.String("from", string(from)),
			zap.String("to", string(to)))
		return false
	}
	o.phase = to
	o.err = err
	snap := o.snapshotLocked()
	o.mu.Unlock()

	fields := []zap.Field{
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("source_image", snap.Source),
	}
	if err != nil {
		fields = append(fields, zap.String("error_kind", snap.ErrorKind), zap.Error(err))
		o.logger.Warn("Workflow failed", fields...)
	} else {
		o.logger.Info("Workflow phase changed", fields...)
	}

	o.notify(snap)
	return true
}

// update 在gen未过期时修改状态
func (o *Orchestrator) update(gen uint64, fn func()) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	fn()
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.notify(snap)
}

func (o *Orchestrator) notify(snap Snapshot) {
	if o.onChange != nil {
		o.onChange(snap)
	}
}
