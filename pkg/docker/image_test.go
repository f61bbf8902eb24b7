package docker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseImageReference(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ImageReference
	}{
		{
			name: "namespace repository and tag",
			raw:  "bitnami/redis:7.2",
			want: ImageReference{Namespace: "bitnami", Repository: "redis", Tag: "7.2"},
		},
		{
			name: "official image without tag",
			raw:  "nginx",
			want: ImageReference{Namespace: "library", Repository: "nginx", Tag: "latest", TagDefaulted: true},
		},
		{
			name: "pasted pull command",
			raw:  "docker pull nginx:alpine",
			want: ImageReference{Namespace: "library", Repository: "nginx", Tag: "alpine"},
		},
		{
			name: "pull command with options",
			raw:  "  sudo docker image pull --platform linux/amd64 grafana/grafana:10.4.1 ",
			want: ImageReference{Namespace: "grafana", Repository: "grafana", Tag: "10.4.1"},
		},
		{
			name: "podman pull",
			raw:  "podman pull redis",
			want: ImageReference{Namespace: "library", Repository: "redis", Tag: "latest", TagDefaulted: true},
		},
		{
			name: "empty tag after colon",
			raw:  "nginx:",
			want: ImageReference{Namespace: "library", Repository: "nginx", Tag: "latest", TagDefaulted: true},
		},
		{
			name: "docker hub host is normalised",
			raw:  "docker.io/library/nginx:1.27",
			want: ImageReference{Namespace: "library", Repository: "nginx", Tag: "1.27"},
		},
		{
			name: "explicit registry",
			raw:  "ghcr.io/org/team/tool:v1",
			want: ImageReference{Registry: "ghcr.io", Namespace: "org/team", Repository: "tool", Tag: "v1"},
		},
		{
			name: "registry port is not a tag",
			raw:  "localhost:5000/app",
			want: ImageReference{Registry: "localhost:5000", Namespace: "library", Repository: "app", Tag: "latest", TagDefaulted: true},
		},
		{
			name: "digest is dropped",
			raw:  "nginx:1.27@sha256:abcdef",
			want: ImageReference{Namespace: "library", Repository: "nginx", Tag: "1.27"},
		},
		{
			name: "official image named like a command",
			raw:  "docker",
			want: ImageReference{Namespace: "library", Repository: "docker", Tag: "latest", TagDefaulted: true},
		},
		{
			name: "official image named like a command with tag",
			raw:  "docker:dind",
			want: ImageReference{Namespace: "library", Repository: "docker", Tag: "dind"},
		},
		{
			name: "pulling an image named like a command",
			raw:  "podman pull podman",
			want: ImageReference{Namespace: "library", Repository: "podman", Tag: "latest", TagDefaulted: true},
		},
		{
			name: "options after the image",
			raw:  "docker pull nginx:alpine --platform linux/amd64",
			want: ImageReference{Namespace: "library", Repository: "nginx", Tag: "alpine"},
		},
		{
			name: "inline option value",
			raw:  "nerdctl pull --platform=linux/arm64 -q redis:7",
			want: ImageReference{Namespace: "library", Repository: "redis", Tag: "7"},
		},
		{
			name: "empty input",
			raw:  "   ",
			want: ImageReference{Namespace: "library", Repository: "", Tag: "latest", TagDefaulted: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseImageReference(tt.raw))
		})
	}
}

func TestParseImageReferenceRecoversTriple(t *testing.T) {
	triples := [][3]string{
		{"library", "nginx", "alpine"},
		{"bitnami", "postgresql", "16.2.0-debian-12-r6"},
		{"grafana", "loki", "3.0.0"},
		{"minio", "minio", "RELEASE.2024-05-01T01-11-10Z"},
	}

	for _, tr := range triples {
		ref := ParseImageReference(tr[0] + "/" + tr[1] + ":" + tr[2])
		assert.Equal(t, tr[0], ref.Namespace)
		assert.Equal(t, tr[1], ref.Repository)
		assert.Equal(t, tr[2], ref.Tag)
		assert.False(t, ref.TagDefaulted)
		assert.True(t, ref.IsDockerHub())
	}
}

func TestImageReferenceString(t *testing.T) {
	assert.Equal(t, "library/nginx:latest", ParseImageReference("nginx").String())
	assert.Equal(t, "docker.io/library/nginx:latest", ParseImageReference("nginx").PullName())
	assert.Equal(t, "ghcr.io/org/tool:v1", ParseImageReference("ghcr.io/org/tool:v1").PullName())
	assert.False(t, ParseImageReference("").Valid())
}

func TestNewTargetImage(t *testing.T) {
	target := NewTargetImage("registry.cn-hangzhou.aliyuncs.com/", "/mirrors", "nginx", "alpine")
	assert.Equal(t, "registry.cn-hangzhou.aliyuncs.com/mirrors/nginx:alpine", target.String())

	target = NewTargetImage("registry.cn-beijing.aliyuncs.com", "mirrors", "redis", "")
	assert.Equal(t, "registry.cn-beijing.aliyuncs.com/mirrors/redis:latest", target.String())
}
