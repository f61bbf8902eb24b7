package pull

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keevingness/image-shipper-relay/internal/app"
	"github.com/keevingness/image-shipper-relay/internal/config"
	"github.com/keevingness/image-shipper-relay/pkg/docker"
)

// execFunc 执行一条容器运行时命令
type execFunc func(ctx context.Context, name string, args ...string) error

type options struct {
	podman  bool
	docker  bool
	runtime string
	tag     string
	keep    bool
}

// NewCmd 创建pull命令
func NewCmd(configPath *string) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "pull <镜像名称>",
		Short: "从目标仓库拉取已转存的镜像并重新标记",
		Long: `从目标仓库拉取已转存的镜像，并重新标记为原始镜像名称（不带仓库前缀），
之后可以像直接从Docker Hub拉取一样使用该镜像。`,
		Example: `  image-shipper pull nginx:latest
  image-shipper pull nginx:latest --podman
  image-shipper pull nginx:latest -e 'k3s crictl'
  image-shipper pull custom/app:v1.0`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := app.Load(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if cfg.Registry.Namespace == "" {
				return fmt.Errorf("配置无效: registry namespace is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := &puller{
				registry: cfg.Registry,
				runtime:  resolveRuntime(cfg.Pull, opts),
				exec:     runCommand,
				logger:   logger,
			}
			local, err := p.pull(ctx, strings.Join(args, " "), opts)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("成功拉取并重新标记镜像: %s", local)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.podman, "podman", false, "使用 Podman 而不是 Docker")
	cmd.Flags().BoolVar(&opts.docker, "docker", false, "使用 Docker")
	cmd.Flags().StringVarP(&opts.runtime, "exec", "e", "", "使用自定义容器运行时命令，如 'k3s crictl'")
	cmd.Flags().StringVar(&opts.tag, "tag", "", "转存时使用的目标标签，默认与镜像标签相同")
	cmd.Flags().BoolVar(&opts.keep, "keep", false, "保留目标仓库地址的镜像标签")

	return cmd
}

// resolveRuntime 命令行参数优先于配置文件
func resolveRuntime(cfg config.PullConfig, opts options) string {
	switch {
	case opts.runtime != "":
		return opts.runtime
	case opts.podman:
		return "podman"
	case opts.docker:
		return "docker"
	case cfg.ContainerRuntime != "":
		return cfg.ContainerRuntime
	default:
		return "docker"
	}
}

// puller 拉取已转存的镜像
type puller struct {
	registry config.RegistryConfig
	runtime  string
	exec     execFunc
	logger   *zap.Logger
}

// pull 拉取目标仓库中的镜像并重新标记为原始名称，返回本地镜像名称
func (p *puller) pull(ctx context.Context, image string, opts options) (string, error) {
	ref := docker.ParseImageReference(image)
	if !ref.Valid() {
		return "", fmt.Errorf("无效的镜像地址格式: %w", docker.ErrInvalidImageRef)
	}

	tag := ref.Tag
	if opts.tag != "" {
		tag = opts.tag
	}
	source := docker.NewTargetImage(p.registry.Address(), p.registry.Namespace, ref.Repository, tag).String()
	local := LocalName(ref)

	pterm.Info.Printfln("正在从 %s 拉取镜像 %s (使用 %s)", p.registry.Address(), local, p.runtime)

	if err := p.run(ctx, "pull", source); err != nil {
		return "", fmt.Errorf("拉取镜像失败: %w", err)
	}
	if err := p.run(ctx, "tag", source, local); err != nil {
		return "", fmt.Errorf("重新标记镜像失败: %w", err)
	}

	if !opts.keep {
		// 删除失败不影响结果
		if err := p.run(ctx, "rmi", source); err != nil {
			p.logger.Warn("Failed to remove mirrored tag", zap.String("image", source), zap.Error(err))
		}
	}

	return local, nil
}

// run 执行运行时子命令，支持多词运行时如 "k3s crictl"
func (p *puller) run(ctx context.Context, args ...string) error {
	parts := strings.Fields(p.runtime)
	if len(parts) == 0 {
		parts = []string{"docker"}
	}

	full := append(parts[1:len(parts):len(parts)], args...)
	p.logger.Debug("Running container runtime",
		zap.String("runtime", parts[0]),
		zap.Strings("args", full))
	pterm.Println(fmt.Sprintf("执行: %s %s", p.runtime, strings.Join(args, " ")))

	return p.exec(ctx, parts[0], full...)
}

// LocalName 重新标记后使用的镜像名称，Docker Hub官方镜像省略library前缀
func LocalName(ref docker.ImageReference) string {
	if ref.IsDockerHub() && ref.Namespace == docker.DefaultNamespace {
		return ref.Repository + ":" + ref.Tag
	}
	return ref.String()
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
