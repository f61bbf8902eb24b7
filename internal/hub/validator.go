package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/keevingness/image-shipper-relay/internal/config"
	"github.com/keevingness/image-shipper-relay/internal/types"
	"github.com/keevingness/image-shipper-relay/pkg/docker"
)

// Prober 检查镜像标签在上游仓库中是否存在
// 不存在时返回 (false, nil)，其他失败返回错误。
type Prober interface {
	Probe(ctx context.Context, ref docker.ImageReference) (bool, error)
}

// Validator 源镜像校验器
type Validator struct {
	hub               Prober
	registry          Prober
	officialNamespace string
	logger            *zap.Logger
}

// NewValidator 创建源镜像校验器
// Docker Hub镜像通过Hub的标签接口检查，其他仓库的镜像通过registry manifest接口检查。
func NewValidator(cfg config.HubConfig, logger *zap.Logger) (*Validator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	transport, err := newTransport(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	return &Validator{
		hub:               newHubProber(cfg.APIURL, transport),
		registry:          newRegistryProber(cfg.Insecure, transport),
		officialNamespace: cfg.OfficialNamespace,
		logger:            logger,
	}, nil
}

// Validate 检查镜像是否存在并判断是否为官方镜像
// 网络错误或非预期的状态码以 *types.TransportError 返回，与"不存在"严格区分。
func (v *Validator) Validate(ctx context.Context, ref docker.ImageReference) (*types.ValidationResult, error) {
	if !ref.Valid() {
		return nil, docker.ErrInvalidImageRef
	}

	prober := v.hub
	if !ref.IsDockerHub() {
		prober = v.registry
	}

	exists, err := prober.Probe(ctx, ref)
	if err != nil {
		if errors.Is(err, docker.ErrInvalidImageRef) {
			return nil, err
		}
		v.logger.Warn("Failed to probe source image",
			zap.String("source_image", ref.String()),
			zap.Error(err))
		return nil, &types.TransportError{Op: "validate", Err: err}
	}

	result := &types.ValidationResult{
		Exists:  exists,
		Trusted: ref.IsDockerHub() && ref.Namespace == v.officialNamespace,
	}

	v.logger.Info("Validated source image",
		zap.String("source_image", ref.String()),
		zap.Bool("exists", result.Exists),
		zap.Bool("trusted", result.Trusted))

	return result, nil
}

// newTransport 创建访问上游仓库的传输层，proxy为空时沿用环境变量中的代理
func newTransport(proxy string) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy == "" {
		return transport, nil
	}

	proxyURL, err := url.Parse(proxy)
	if err != nil || proxyURL.Host == "" {
		return nil, fmt.Errorf("invalid hub proxy %q", proxy)
	}
	transport.Proxy = http.ProxyURL(proxyURL)

	return transport, nil
}

// hubProber 通过 Docker Hub 的标签接口检查镜像
type hubProber struct {
	apiURL string
	client *http.Client
}

func newHubProber(apiURL string, transport http.RoundTripper) *hubProber {
	return &hubProber{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		client: &http.Client{Transport: transport},
	}
}

// Probe HEAD /v2/repositories/{namespace}/{repository}/tags/{tag}
func (p *hubProber) Probe(ctx context.Context, ref docker.ImageReference) (bool, error) {
	endpoint := fmt.Sprintf("%s/v2/repositories/%s/%s/tags/%s",
		p.apiURL,
		url.PathEscape(ref.Namespace),
		url.PathEscape(ref.Repository),
		url.PathEscape(ref.Tag))

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}
}
