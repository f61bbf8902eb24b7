package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/keevingness/image-shipper-relay/internal/config"
	"github.com/keevingness/image-shipper-relay/internal/workflow"
	"github.com/keevingness/image-shipper-relay/pkg/docker"
)

// shutdownTimeout 优雅关闭时等待请求结束的最长时间
const shutdownTimeout = 10 * time.Second

// Mirror 控制台驱动的镜像转存流程
type Mirror interface {
	Submit(ctx context.Context, req workflow.Request) (workflow.Snapshot, error)
	ClaimConfirmation(ctx context.Context) (func() (workflow.Snapshot, error), error)
	Decline() error
	Cancel()
	Snapshot() workflow.Snapshot
}

type errorResponse struct {
	Error string `json:"error"`
}

// ParseResponse 镜像解析预览
type ParseResponse struct {
	Reference    docker.ImageReference `json:"reference"`
	Image        string                `json:"image"`
	TagDefaulted bool                  `json:"tag_defaulted"`
	Trusted      bool                  `json:"trusted"`
	Target       string                `json:"target"`
}

// Server 控制台REST API
type Server struct {
	echo     *echo.Echo
	cfg      config.ServerConfig
	registry config.RegistryConfig
	official string
	mirror   Mirror
	logger   *zap.Logger

	// 流程在后台执行，不随单个请求结束而取消
	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// New 创建控制台服务
func New(cfg *config.Config, mirror Mirror, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	base, stop := context.WithCancel(context.Background())
	s := &Server{
		echo:     e,
		cfg:      cfg.Server,
		registry: cfg.Registry,
		official: cfg.Hub.OfficialNamespace,
		mirror:   mirror,
		logger:   logger,
		base:     base,
		stop:     stop,
	}

	e.Use(middleware.Recover())
	e.Use(RequestLogger(logger))

	e.GET("/healthz", s.health)

	api := e.Group("/api", RequireAccessKey(cfg.Server.AccessKey, logger))
	api.GET("/images/parse", s.parseImage)
	api.POST("/mirror", s.submit)
	api.GET("/mirror", s.snapshot)
	api.POST("/mirror/confirm", s.confirm)
	api.POST("/mirror/decline", s.decline)
	api.DELETE("/mirror", s.cancel)

	return s
}

// Handler 返回HTTP处理器
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start 监听配置的地址直到ctx结束，然后优雅关闭
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Console API listening", zap.String("addr", s.cfg.Addr))
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		s.Close()
		if ok {
			return fmt.Errorf("failed to start console api: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down console API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.echo.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("failed to shutdown console api: %w", err)
	}
	return nil
}

// Close 取消后台流程并等待其退出
func (s *Server) Close() {
	s.stop()
	s.mirror.Cancel()
	s.wg.Wait()
}

// background 在后台执行一段流程
func (s *Server) background(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(s.base); err != nil {
			s.logger.Debug("Background flow ended with error",
				zap.String("flow", name),
				zap.Error(err))
		}
	}()
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) parseImage(c echo.Context) error {
	raw := strings.TrimSpace(c.QueryParam("image"))
	if raw == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: workflow.ErrEmptySource.Error()})
	}

	ref := docker.ParseImageReference(raw)
	if !ref.Valid() {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: docker.ErrInvalidImageRef.Error()})
	}

	target := docker.NewTargetImage(s.registry.Address(), s.registry.Namespace, ref.Repository, ref.Tag)
	return c.JSON(http.StatusOK, ParseResponse{
		Reference:    ref,
		Image:        ref.String(),
		TagDefaulted: ref.TagDefaulted,
		Trusted:      ref.IsDockerHub() && ref.Namespace == s.official,
		Target:       target.String(),
	})
}

func (s *Server) submit(c echo.Context) error {
	var req workflow.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: workflow.ErrEmptySource.Error()})
	}

	s.background("submit", func(ctx context.Context) error {
		_, err := s.mirror.Submit(ctx, req)
		return err
	})
	return c.JSON(http.StatusAccepted, map[string]string{"source": req.Source})
}

func (s *Server) snapshot(c echo.Context) error {
	return c.JSON(http.StatusOK, s.mirror.Snapshot())
}

func (s *Server) confirm(c echo.Context) error {
	resume, err := s.mirror.ClaimConfirmation(s.base)
	if err != nil {
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	}

	s.background("confirm", func(ctx context.Context) error {
		_, err := resume()
		return err
	})
	return c.JSON(http.StatusAccepted, s.mirror.Snapshot())
}

func (s *Server) decline(c echo.Context) error {
	if err := s.mirror.Decline(); err != nil {
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, s.mirror.Snapshot())
}

func (s *Server) cancel(c echo.Context) error {
	s.mirror.Cancel()
	return c.JSON(http.StatusOK, s.mirror.Snapshot())
}
