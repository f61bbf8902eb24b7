package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/keevingness/image-shipper-relay/internal/config"
	"github.com/keevingness/image-shipper-relay/internal/workflow"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image-shipper.yaml")
	content := `
github:
  token: ghp_test
  owner: acme
registry:
  namespace: mirrors
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, logger, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, "acme", cfg.GitHub.Owner)
	assert.NoError(t, cfg.Validate())
}

func TestLoadInvalidLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image-shipper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o600))

	_, _, err := Load(path)
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	cfg := &config.Config{
		GitHub:   config.GitHubConfig{Token: "t", Owner: "acme", Repo: "relay", Workflow: "mirror.yaml", Ref: "main"},
		Registry: config.RegistryConfig{Region: "cn-hangzhou", Namespace: "mirrors"},
		Hub:      config.HubConfig{APIURL: "https://hub.docker.com", OfficialNamespace: "library"},
		Poll:     config.PollConfig{Interval: time.Second},
	}

	a, err := New(cfg, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.PhaseIdle, a.Orchestrator.Snapshot().Phase)
	assert.Equal(t, 0, a.Runner.LivePolls())

	cfg.Hub.Proxy = "://bad"
	_, err = New(cfg, nil, nil)
	assert.Error(t, err)
}
