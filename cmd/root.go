package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keevingness/image-shipper-relay/cmd/pull"
	"github.com/keevingness/image-shipper-relay/cmd/serve"
	"github.com/keevingness/image-shipper-relay/cmd/ship"
)

// NewRootCmd 创建根命令
func NewRootCmd(version string) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "image-shipper",
		Short: "ImageShipper - 通过GitHub Actions把Docker镜像转存到国内镜像仓库",
		Long: `ImageShipper 通过一个GitHub仓库中转，把Docker Hub等公共仓库的镜像
转存到阿里云容器镜像服务等国内仓库。

配置文件默认从 ./image-shipper.yaml 或 ~/.config/image-shipper/image-shipper.yaml 读取，
所有配置项都可以用 IMGSHIPPER_ 前缀的环境变量覆盖，例如 IMGSHIPPER_GITHUB_TOKEN。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.SetVersionTemplate("image-shipper version {{.Version}}\n")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径")

	root.AddCommand(ship.NewCmd(&configPath))
	root.AddCommand(pull.NewCmd(&configPath))
	root.AddCommand(serve.NewCmd(&configPath))
	root.AddCommand(newVersionCmd(version))

	return root
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "image-shipper version %s\n", version)
		},
	}
}

// Execute 执行命令，失败时打印错误并以1退出
func Execute(version string) {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
