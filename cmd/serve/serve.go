package serve

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/keevingness/image-shipper-relay/internal/app"
	"github.com/keevingness/image-shipper-relay/internal/server"
)

// NewCmd 创建serve命令
func NewCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动控制台API",
		Long: `启动供控制台前端使用的REST API。除 /healthz 外的请求都需要在
X-Access-Key 请求头中携带配置的访问密钥 (server.access_key)。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := app.Load(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.ValidateServer(); err != nil {
				return fmt.Errorf("配置无效: %w", err)
			}

			a, err := app.New(cfg, logger, nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.New(cfg, a.Orchestrator, logger.Named("server")).Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "监听地址，默认使用配置中的 server.addr")

	return cmd
}
