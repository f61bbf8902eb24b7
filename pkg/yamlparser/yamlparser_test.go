package yamlparser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const composeContent = `
services:
  web:
    image: nginx:alpine
  cache:
    image: redis
  app:
    build:
      context: .
  worker:
    build: ./worker
  proxy:
    image: nginx:alpine
`

const k8sContent = `
apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
spec:
  template:
    spec:
      initContainers:
        - name: migrate
          image: flyway/flyway:10
      containers:
        - name: web
          image: nginx:1.27
        - name: sidecar
          image: quay.io/prometheus/node-exporter:v1.8.0
---
apiVersion: batch/v1
kind: CronJob
metadata:
  name: backup
spec:
  jobTemplate:
    spec:
      template:
        spec:
          containers:
            - name: backup
              image: postgres:16
---
apiVersion: v1
kind: Service
metadata:
  name: web
spec:
  ports:
    - port: 80
      targetPort: "---"
`

func TestParseComposeContent(t *testing.T) {
	images, err := ParseComposeContent(composeContent)
	require.NoError(t, err)
	assert.Equal(t, []string{"redis", "nginx:alpine"}, images)
}

func TestParseComposeContentWithoutServices(t *testing.T) {
	_, err := ParseComposeContent("apiVersion: v1\nkind: Pod\n")
	assert.Error(t, err)
}

func TestParseK8sContent(t *testing.T) {
	images, err := ParseK8sContent(k8sContent)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"flyway/flyway:10",
		"nginx:1.27",
		"quay.io/prometheus/node-exporter:v1.8.0",
		"postgres:16",
	}, images)
}

func TestParseK8sList(t *testing.T) {
	content := `
apiVersion: v1
kind: List
items:
  - apiVersion: v1
    kind: Pod
    metadata:
      name: a
    spec:
      containers:
        - name: a
          image: busybox:1.36
`
	images, err := ParseK8sContent(content)
	require.NoError(t, err)
	assert.Equal(t, []string{"busybox:1.36"}, images)
}

func TestParseK8sContentWithoutResources(t *testing.T) {
	_, err := ParseK8sContent("foo: bar\n")
	assert.Error(t, err)
}

func TestParseContent(t *testing.T) {
	images, err := ParseContent(k8sContent, FileTypeUnknown)
	require.NoError(t, err)
	assert.Len(t, images, 4)

	images, err = ParseContent(composeContent, FileTypeUnknown)
	require.NoError(t, err)
	assert.Len(t, images, 2)

	_, err = ParseContent("just: text\n", FileTypeUnknown)
	assert.Error(t, err)

	_, err = ParseContent(composeContent, FileType("helm"))
	assert.Error(t, err)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()

	compose := filepath.Join(dir, "docker-compose.yml")
	require.NoError(t, os.WriteFile(compose, []byte(composeContent), 0o644))
	images, err := ParseFile(compose)
	require.NoError(t, err)
	assert.Equal(t, []string{"redis", "nginx:alpine"}, images)

	// 文件名提示错误时回退到另一种解析器
	misnamed := filepath.Join(dir, "k8s-stack.yaml")
	require.NoError(t, os.WriteFile(misnamed, []byte(composeContent), 0o644))
	images, err = ParseFile(misnamed)
	require.NoError(t, err)
	assert.Equal(t, []string{"redis", "nginx:alpine"}, images)

	_, err = ParseFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestDetectFileType(t *testing.T) {
	tests := map[string]FileType{
		"docker-compose.yaml":      FileTypeCompose,
		"/srv/app/compose.yml":     FileTypeCompose,
		"deploy/k8s/web.yaml":      FileTypeUnknown,
		"k8s-web.yaml":             FileTypeK8s,
		"manifests/Deployment.yml": FileTypeK8s,
		"values.yaml":              FileTypeUnknown,
	}
	for path, want := range tests {
		assert.Equal(t, want, DetectFileType(path), path)
	}
}

func TestParseFileHelpers(t *testing.T) {
	dir := t.TempDir()

	compose := filepath.Join(dir, "compose.yaml")
	require.NoError(t, os.WriteFile(compose, []byte(composeContent), 0o644))
	images, err := ParseComposeFile(compose)
	require.NoError(t, err)
	assert.Len(t, images, 2)

	manifest := filepath.Join(dir, "k8s.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(k8sContent), 0o644))
	images, err = ParseK8sFile(manifest)
	require.NoError(t, err)
	assert.Len(t, images, 4)

	_, err = ParseComposeFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
	_, err = ParseK8sFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
