package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/keevingness/image-shipper-relay/internal/config"
	"github.com/keevingness/image-shipper-relay/internal/types"
)

// DefaultInterval 默认轮询间隔
const DefaultInterval = 5 * time.Second

// RunAPI 触发和查询中转工作流运行的接口
type RunAPI interface {
	TriggerWorkflow(ctx context.Context) (*types.Dispatch, error)
	LatestRun(ctx context.Context, dispatch *types.Dispatch) (*types.WorkflowRun, error)
}

// PollOptions 轮询参数
type PollOptions struct {
	// Interval 两次查询之间的间隔
	Interval time.Duration
	// Timeout 轮询总时长上限，0表示不限制
	Timeout time.Duration
	// MaxRetries 单次查询失败后的重试次数，0表示失败即终止
	MaxRetries int
	// RetryInterval 第一次重试前的等待时间，之后指数增长
	RetryInterval time.Duration
}

// PollOptionsFromConfig 从配置生成轮询参数
func PollOptionsFromConfig(cfg config.PollConfig) PollOptions {
	return PollOptions{
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		MaxRetries:    cfg.MaxRetries,
		RetryInterval: cfg.RetryInterval,
	}
}

// Controller 工作流运行控制器
type Controller struct {
	api    RunAPI
	logger *zap.Logger
	// rejected 判断错误是否为远端明确拒绝，这类错误不重试
	rejected func(error) bool
	live     atomic.Int32
}

// NewController 创建运行控制器，rejected可以为nil
func NewController(api RunAPI, rejected func(error) bool, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rejected == nil {
		rejected = func(error) bool { return false }
	}
	return &Controller{api: api, logger: logger, rejected: rejected}
}

// Trigger 触发一次新的运行
func (c *Controller) Trigger(ctx context.Context) (*types.Dispatch, error) {
	dispatch, err := c.api.TriggerWorkflow(ctx)
	if err != nil {
		var (
			triggerErr   *types.TriggerError
			transportErr *types.TransportError
		)
		if errors.As(err, &triggerErr) || errors.As(err, &transportErr) {
			return nil, err
		}
		return nil, &types.TriggerError{Err: err}
	}
	return dispatch, nil
}

// LivePolls 当前正在运行的轮询数量
func (c *Controller) LivePolls() int {
	return int(c.live.Load())
}

// PollUntilTerminal 按固定间隔查询运行状态直到结束
// 每次查询后调用onTick（可以为nil）。运行成功返回结果；结论不是success时同时返回结果和 *types.RunFailure；
// 查询失败返回 *types.TransportError；超过Timeout返回 types.ErrPollTimeout；ctx取消返回ctx的错误。
// 返回前计时器总是已停止。
func (c *Controller) PollUntilTerminal(ctx context.Context, dispatch *types.Dispatch, opts PollOptions, onTick func(*types.WorkflowRun)) (*types.RunOutcome, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	c.live.Add(1)
	defer c.live.Add(-1)

	pollCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-pollCtx.Done():
			if err := ctx.Err(); err != nil {
				c.logger.Info("Workflow polling cancelled", zap.Int("ticks", ticks))
				return nil, err
			}
			c.logger.Warn("Workflow polling timed out",
				zap.Int("ticks", ticks),
				zap.Duration("timeout", opts.Timeout))
			return nil, types.ErrPollTimeout

		case <-ticker.C:
			ticks++
			run, err := c.fetch(pollCtx, dispatch, opts)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				if pollCtx.Err() != nil {
					return nil, types.ErrPollTimeout
				}
				c.logger.Error("Failed to get workflow run status", zap.Int("tick", ticks), zap.Error(err))
				return nil, &types.TransportError{Op: "poll", Err: err}
			}

			c.logger.Debug("Workflow run status",
				zap.Int("tick", ticks),
				zap.Int64("run_id", run.ID),
				zap.String("status", run.Status),
				zap.String("conclusion", run.Conclusion))

			if onTick != nil {
				onTick(run)
			}

			if !run.Completed() {
				continue
			}

			outcome := &types.RunOutcome{Run: *run, Ticks: ticks}
			if !run.Succeeded() {
				c.logger.Warn("Workflow run failed",
					zap.Int64("run_id", run.ID),
					zap.String("conclusion", run.Conclusion),
					zap.String("url", run.URL))
				return outcome, &types.RunFailure{Conclusion: run.Conclusion, URL: run.URL}
			}

			c.logger.Info("Workflow run succeeded",
				zap.Int64("run_id", run.ID),
				zap.Int("ticks", ticks),
				zap.String("url", run.URL))
			return outcome, nil
		}
	}
}

// fetch 查询一次运行状态，MaxRetries>0时对非拒绝类错误按指数退避重试
func (c *Controller) fetch(ctx context.Context, dispatch *types.Dispatch, opts PollOptions) (*types.WorkflowRun, error) {
	if opts.MaxRetries <= 0 {
		return c.api.LatestRun(ctx, dispatch)
	}

	eb := backoff.NewExponentialBackOff()
	if opts.RetryInterval > 0 {
		eb.InitialInterval = opts.RetryInterval
	}
	eb.MaxElapsedTime = 0

	var run *types.WorkflowRun
	attempt := 0
	op := func() error {
		attempt++
		r, err := c.api.LatestRun(ctx, dispatch)
		if err != nil {
			if c.rejected(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		run = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Retrying workflow status query",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(opts.MaxRetries)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, fmt.Errorf("after %d attempts: %w", attempt, err)
	}
	return run, nil
}
