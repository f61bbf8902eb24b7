package ship

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/keevingness/image-shipper-relay/internal/app"
	"github.com/keevingness/image-shipper-relay/internal/config"
	"github.com/keevingness/image-shipper-relay/internal/workflow"
	"github.com/keevingness/image-shipper-relay/pkg/docker"
	"github.com/keevingness/image-shipper-relay/pkg/yamlparser"
)

// errDeclined 用户拒绝转存非官方镜像
var errDeclined = errors.New("用户取消了转存")

type options struct {
	file   string
	dryRun bool
	yes    bool
	tag    string
	repo   string
}

// Mirror 一次镜像转存流程
type Mirror interface {
	Submit(ctx context.Context, req workflow.Request) (workflow.Snapshot, error)
	Confirm(ctx context.Context) (workflow.Snapshot, error)
	Decline() error
}

// NewCmd 创建ship命令
func NewCmd(configPath *string) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "ship [镜像地址]",
		Short: "转存 Docker 镜像",
		Long: `通过中转仓库的 GitHub Actions 工作流把镜像转存到目标仓库。

镜像地址可以直接粘贴 docker pull 命令，例如:
  image-shipper ship docker pull nginx:alpine`,
		Example: `  image-shipper ship nginx:latest                     # 转存单个镜像
  image-shipper ship docker.io/library/nginx:latest   # 转存单个镜像（完整路径）
  image-shipper ship nginx:alpine --tag stable        # 使用自定义目标标签
  image-shipper ship -f docker-compose.yaml           # 从docker-compose文件中转存所有镜像
  image-shipper ship -f deployment.yaml               # 从Kubernetes deployment文件中转存所有镜像
  image-shipper ship -f docker-compose.yaml --dry-run # 仅解析文件中的镜像`,
		RunE: func(cmd *cobra.Command, args []string) error {
			images, err := collectImages(opts, args)
			if err != nil {
				return err
			}

			cfg, logger, err := app.Load(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if opts.dryRun {
				return printPlan(cfg.Registry, images, opts)
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("配置无效: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p := &progress{}
			a, err := app.New(cfg, logger, p.onChange)
			if err != nil {
				return err
			}

			s := &shipper{mirror: a.Orchestrator, progress: p, yes: opts.yes, confirm: askConfirm}
			return s.shipAll(ctx, images, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "指定Docker Compose或Kubernetes YAML文件路径")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "仅解析镜像并显示目标地址，不执行实际转存")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "非官方镜像不再询问，直接转存")
	cmd.Flags().StringVar(&opts.tag, "tag", "", "目标镜像标签，默认与源镜像相同")
	cmd.Flags().StringVar(&opts.repo, "repo", "", "目标仓库名，默认与源镜像相同")

	return cmd
}

// collectImages 从参数或文件中获取待转存的镜像
// 参数会被拼接，以支持直接粘贴的 docker pull 命令。
func collectImages(opts options, args []string) ([]string, error) {
	if opts.file != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("不能同时指定镜像地址和 -f 文件")
		}
		if opts.tag != "" || opts.repo != "" {
			return nil, fmt.Errorf("--tag 和 --repo 只能用于单个镜像")
		}

		images, err := yamlparser.ParseFile(opts.file)
		if err != nil {
			return nil, fmt.Errorf("解析文件失败: %w", err)
		}
		if len(images) == 0 {
			return nil, fmt.Errorf("在文件 %s 中未找到任何镜像", opts.file)
		}
		return images, nil
	}

	image := strings.TrimSpace(strings.Join(args, " "))
	if image == "" {
		return nil, fmt.Errorf("镜像地址不能为空")
	}
	return []string{image}, nil
}

// printPlan 显示每个镜像将被转存到的地址
func printPlan(registry config.RegistryConfig, images []string, opts options) error {
	data := pterm.TableData{{"#", "源镜像", "目标镜像"}}
	for i, image := range images {
		ref := docker.ParseImageReference(image)
		target := docker.NewTargetImage(registry.Address(), registry.Namespace, pick(opts.repo, ref.Repository), pick(opts.tag, ref.Tag))
		data = append(data, []string{fmt.Sprint(i + 1), ref.String(), target.String()})
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Info.Println("运行在dry-run模式下，未执行实际转存操作")
	return nil
}

func pick(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

// askConfirm 询问用户是否转存非官方镜像
func askConfirm(image string) (bool, error) {
	var proceed bool
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("镜像 %s 不是Docker Hub官方镜像，确定要转存吗?", image),
		Default: false,
	}
	if err := survey.AskOne(prompt, &proceed); err != nil {
		return false, fmt.Errorf("survey failed: %w", err)
	}
	return proceed, nil
}

// shipper 依次转存镜像并输出结果
type shipper struct {
	mirror   Mirror
	progress *progress
	yes      bool
	confirm  func(image string) (bool, error)
}

// shipAll 逐个转存镜像，单个失败不影响后续镜像
func (s *shipper) shipAll(ctx context.Context, images []string, opts options) error {
	failed := 0
	for i, image := range images {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(images) > 1 {
			pterm.Info.Printfln("正在处理镜像 %d/%d: %s", i+1, len(images), image)
		}

		req := workflow.Request{Source: image, TargetRepository: opts.repo, TargetTag: opts.tag}
		snap, err := s.shipOne(ctx, req)
		switch {
		case errors.Is(err, errDeclined):
			pterm.Warning.Printfln("已跳过镜像: %s", image)
		case err != nil:
			if ctx.Err() != nil {
				pterm.Warning.Println("收到中断信号，停止转存")
				return ctx.Err()
			}
			pterm.Error.Printfln("镜像转存失败: %v", err)
			if snap.RunURL != "" {
				pterm.Println("工作流详情: " + snap.RunURL)
			}
			failed++
		default:
			pterm.Success.Printfln("镜像转存成功: %s", snap.MirroredImage)
			if snap.RunURL != "" {
				pterm.Println("工作流详情: " + snap.RunURL)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d 个镜像转存失败", failed)
	}
	if len(images) > 1 {
		pterm.Success.Println("所有镜像处理完成!")
	}
	return nil
}

// shipOne 转存单个镜像，非官方镜像先征求确认
func (s *shipper) shipOne(ctx context.Context, req workflow.Request) (workflow.Snapshot, error) {
	s.progress.start("正在解析镜像 " + req.Source)
	defer s.progress.stop()

	snap, err := s.mirror.Submit(ctx, req)
	if err != nil || snap.Phase != workflow.PhaseAwaitingConfirmation {
		return snap, err
	}

	s.progress.stop()
	proceed := s.yes
	if !proceed {
		proceed, err = s.confirm(snap.Source)
		if err != nil {
			_ = s.mirror.Decline()
			return snap, err
		}
	}
	if !proceed {
		_ = s.mirror.Decline()
		return snap, errDeclined
	}

	s.progress.start("正在转存 " + snap.Source)
	return s.mirror.Confirm(ctx)
}
