package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"

	"github.com/keevingness/image-shipper-relay/pkg/docker"
)

// registryProber 通过 OCI registry 的 manifest HEAD 检查非 Docker Hub 镜像
type registryProber struct {
	insecure  bool
	transport http.RoundTripper
}

func newRegistryProber(insecure bool, rt http.RoundTripper) *registryProber {
	return &registryProber{insecure: insecure, transport: rt}
}

func (p *registryProber) Probe(ctx context.Context, ref docker.ImageReference) (bool, error) {
	opts := []name.Option{name.WeakValidation}
	if p.insecure {
		opts = append(opts, name.Insecure)
	}

	r, err := name.ParseReference(ref.String(), opts...)
	if err != nil {
		return false, fmt.Errorf("%w: %v", docker.ErrInvalidImageRef, err)
	}

	_, err = remote.Head(r,
		remote.WithContext(ctx),
		remote.WithTransport(p.transport))
	if err == nil {
		return true, nil
	}
	if isNotFoundError(err) {
		return false, nil
	}

	return false, err
}

// isNotFoundError 404或MANIFEST_UNKNOWN/NAME_UNKNOWN表示镜像不存在
func isNotFoundError(err error) bool {
	var transportErr *transport.Error
	if !errors.As(err, &transportErr) {
		return false
	}

	if transportErr.StatusCode == http.StatusNotFound {
		return true
	}

	for _, diag := range transportErr.Errors {
		if diag.Code == transport.ManifestUnknownErrorCode || diag.Code == transport.NameUnknownErrorCode {
			return true
		}
	}

	return false
}
