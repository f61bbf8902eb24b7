package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/keevingness/image-shipper-relay/internal/config"
	"github.com/keevingness/image-shipper-relay/internal/github"
	"github.com/keevingness/image-shipper-relay/internal/hub"
	"github.com/keevingness/image-shipper-relay/internal/logging"
	"github.com/keevingness/image-shipper-relay/internal/runner"
	"github.com/keevingness/image-shipper-relay/internal/workflow"
)

// App 组装好的镜像转存流程
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Runner       *runner.Controller
	Orchestrator *workflow.Orchestrator
}

// Load 加载配置并创建日志记录器
func Load(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	return cfg, logger, nil
}

// New 根据配置创建校验器、GitHub客户端、运行控制器和编排器
// onChange可以为nil。
func New(cfg *config.Config, logger *zap.Logger, onChange func(workflow.Snapshot)) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	validator, err := hub.NewValidator(cfg.Hub, logger.Named("hub"))
	if err != nil {
		return nil, fmt.Errorf("创建镜像校验器失败: %w", err)
	}

	client, err := github.NewClient(cfg.GitHub, logger.Named("github"))
	if err != nil {
		return nil, fmt.Errorf("创建GitHub客户端失败: %w", err)
	}

	controller := runner.NewController(client, github.IsRejected, logger.Named("runner"))
	orch := workflow.New(validator, client, controller, workflow.Options{
		Registry: cfg.Registry,
		Poll:     runner.PollOptionsFromConfig(cfg.Poll),
		Logger:   logger.Named("workflow"),
		OnChange: onChange,
	})

	return &App{
		Config:       cfg,
		Logger:       logger,
		Runner:       controller,
		Orchestrator: orch,
	}, nil
}
