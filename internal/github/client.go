package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v79/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/keevingness/image-shipper-relay/internal/config"
	"github.com/keevingness/image-shipper-relay/internal/types"
	"github.com/keevingness/image-shipper-relay/pkg/docker"
)

// Client GitHub客户端封装
type Client struct {
	client   *github.Client
	logger   *zap.Logger
	owner    string
	repo     string
	workflow string
	ref      string
	path     string
}

// NewClient 创建新的GitHub客户端
func NewClient(cfg config.GitHubConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.Token},
	)
	tc := oauth2.NewClient(context.Background(), ts)
	client := github.NewClient(tc)

	if cfg.APIURL != "" {
		baseURL, err := url.Parse(strings.TrimSuffix(cfg.APIURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid github api url %q: %w", cfg.APIURL, err)
		}
		client.BaseURL = baseURL
	}

	return &Client{
		client:   client,
		logger:   logger,
		owner:    cfg.Owner,
		repo:     cfg.Repo,
		workflow: cfg.Workflow,
		ref:      cfg.Ref,
		path:     cfg.WorkflowPath(),
	}, nil
}

// ConfigurePipeline 重写中转仓库中的工作流定义，使下一次运行把source转存到target
// 内容未变化时不会产生提交。
func (c *Client) ConfigurePipeline(ctx context.Context, source docker.ImageReference, target docker.TargetImage) error {
	content, err := RenderPipeline(source, target)
	if err != nil {
		return &types.ConfigurationError{Err: err}
	}

	file, _, resp, err := c.client.Repositories.GetContents(ctx, c.owner, c.repo, c.path,
		&github.RepositoryContentGetOptions{Ref: c.ref})
	if err != nil && (resp == nil || resp.StatusCode != http.StatusNotFound) {
		c.logger.Error("Failed to read relay workflow", zap.String("path", c.path), zap.Error(err))
		return classify("configure", err, func(err error) error { return &types.ConfigurationError{Err: err} })
	}

	var sha *string
	if err == nil {
		if file == nil {
			return &types.ConfigurationError{Err: fmt.Errorf("%s is not a file", c.path)}
		}
		current, decodeErr := file.GetContent()
		if decodeErr == nil && current == string(content) {
			c.logger.Info("Relay workflow already up to date",
				zap.String("source_image", source.String()),
				zap.String("target_image", target.String()))
			return nil
		}
		sha = file.SHA
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(fmt.Sprintf("mirror %s to %s", source.String(), target.String())),
		Content: content,
		SHA:     sha,
		Branch:  github.Ptr(c.ref),
	}

	if sha == nil {
		_, _, err = c.client.Repositories.CreateFile(ctx, c.owner, c.repo, c.path, opts)
	} else {
		_, _, err = c.client.Repositories.UpdateFile(ctx, c.owner, c.repo, c.path, opts)
	}
	if err != nil {
		c.logger.Error("Failed to write relay workflow", zap.String("path", c.path), zap.Error(err))
		return classify("configure", err, func(err error) error { return &types.ConfigurationError{Err: err} })
	}

	c.logger.Info("Relay workflow updated",
		zap.String("path", c.path),
		zap.String("source_image", source.String()),
		zap.String("target_image", target.String()))

	return nil
}

// TriggerWorkflow 触发一次中转工作流
// 触发前记录最新一次运行的ID，之后只有ID更大的运行才属于本次触发。
func (c *Client) TriggerWorkflow(ctx context.Context) (*types.Dispatch, error) {
	latest, err := c.newestRun(ctx)
	if err != nil {
		c.logger.Error("Failed to list workflow runs", zap.Error(err))
		return nil, classify("trigger", err, func(err error) error { return &types.TriggerError{Err: err} })
	}

	event := github.CreateWorkflowDispatchEventRequest{
		Ref: c.ref,
	}

	triggeredAt := time.Now()
	_, err = c.client.Actions.CreateWorkflowDispatchEventByFileName(
		ctx,
		c.owner,
		c.repo,
		c.workflow,
		event,
	)
	if err != nil {
		c.logger.Error("Failed to trigger GitHub workflow", zap.Error(err))
		return nil, classify("trigger", err, func(err error) error { return &types.TriggerError{Err: err} })
	}

	dispatch := &types.Dispatch{
		Ref:         c.ref,
		TriggeredAt: triggeredAt,
		AfterRunID:  latest.GetID(),
	}

	c.logger.Info("Successfully triggered mirror workflow",
		zap.String("workflow", c.workflow),
		zap.String("ref", c.ref),
		zap.Int64("after_run_id", dispatch.AfterRunID))

	return dispatch, nil
}

// LatestRun 获取本次触发对应的工作流运行
// 运行尚未出现时返回queued状态。返回的错误未分类，由调用方决定是否重试。
func (c *Client) LatestRun(ctx context.Context, dispatch *types.Dispatch) (*types.WorkflowRun, error) {
	runs, _, err := c.client.Actions.ListWorkflowRunsByFileName(
		ctx,
		c.owner,
		c.repo,
		c.workflow,
		&github.ListWorkflowRunsOptions{
			Event:       "workflow_dispatch",
			Branch:      dispatch.Ref,
			ListOptions: github.ListOptions{PerPage: 10},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow runs: %w", err)
	}

	// 列表按创建时间降序排列
	for _, run := range runs.WorkflowRuns {
		if run.GetID() <= dispatch.AfterRunID {
			continue
		}
		return &types.WorkflowRun{
			ID:         run.GetID(),
			Status:     run.GetStatus(),
			Conclusion: run.GetConclusion(),
			URL:        run.GetHTMLURL(),
			CreatedAt:  run.GetCreatedAt().Time,
		}, nil
	}

	return &types.WorkflowRun{Status: types.RunStatusQueued}, nil
}

// newestRun 返回最新一次运行，没有运行时返回nil
func (c *Client) newestRun(ctx context.Context) (*github.WorkflowRun, error) {
	runs, _, err := c.client.Actions.ListWorkflowRunsByFileName(
		ctx,
		c.owner,
		c.repo,
		c.workflow,
		&github.ListWorkflowRunsOptions{ListOptions: github.ListOptions{PerPage: 1}},
	)
	if err != nil {
		return nil, err
	}
	if len(runs.WorkflowRuns) == 0 {
		return nil, nil
	}
	return runs.WorkflowRuns[0], nil
}

// IsRejected GitHub是否明确拒绝了请求（4xx或限流），这类错误不应重试
func IsRejected(err error) bool {
	var (
		errResp  *github.ErrorResponse
		rateErr  *github.RateLimitError
		abuseErr *github.AbuseRateLimitError
	)
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}
	if errors.As(err, &errResp) {
		return errResp.Response == nil || errResp.Response.StatusCode < http.StatusInternalServerError
	}
	return false
}

// classify 区分GitHub拒绝请求和网络失败
func classify(op string, err error, rejected func(error) error) error {
	if IsRejected(err) {
		return rejected(err)
	}
	return &types.TransportError{Op: op, Err: err}
}
