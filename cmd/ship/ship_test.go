package ship

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keevingness/image-shipper-relay/internal/types"
	"github.com/keevingness/image-shipper-relay/internal/workflow"
)

func TestMain(m *testing.M) {
	pterm.DisableOutput()
	os.Exit(m.Run())
}

// fakeMirror 按源镜像返回预设结果
type fakeMirror struct {
	untrusted map[string]bool
	failing   map[string]error
	submitted []workflow.Request
	confirmed int
	declined  int
	pending   workflow.Request
}

func (f *fakeMirror) Submit(ctx context.Context, req workflow.Request) (workflow.Snapshot, error) {
	f.submitted = append(f.submitted, req)
	if err := f.failing[req.Source]; err != nil {
		return workflow.Snapshot{Phase: workflow.PhaseFailed, Error: err.Error()}, err
	}
	if f.untrusted[req.Source] {
		f.pending = req
		return workflow.Snapshot{Phase: workflow.PhaseAwaitingConfirmation, Source: req.Source}, nil
	}
	return workflow.Snapshot{Phase: workflow.PhaseCompleted, MirroredImage: "registry.example.com/mirrors/" + req.Source}, nil
}

func (f *fakeMirror) Confirm(ctx context.Context) (workflow.Snapshot, error) {
	f.confirmed++
	return workflow.Snapshot{Phase: workflow.PhaseCompleted, MirroredImage: "registry.example.com/mirrors/" + f.pending.Source}, nil
}

func (f *fakeMirror) Decline() error {
	f.declined++
	return nil
}

func TestCollectImages(t *testing.T) {
	images, err := collectImages(options{}, []string{"docker", "pull", "nginx:alpine"})
	require.NoError(t, err)
	assert.Equal(t, []string{"docker pull nginx:alpine"}, images)

	_, err = collectImages(options{}, nil)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "docker-compose.yaml")
	require.NoError(t, os.WriteFile(path, []byte("services:\n  web:\n    image: nginx\n  db:\n    image: postgres:16\n"), 0o644))

	images, err = collectImages(options{file: path}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"postgres:16", "nginx"}, images)

	_, err = collectImages(options{file: path, tag: "v1"}, nil)
	assert.Error(t, err)

	_, err = collectImages(options{file: path}, []string{"nginx"})
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "compose.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("services:\n  app:\n    build: .\n"), 0o644))
	_, err = collectImages(options{file: empty}, nil)
	assert.Error(t, err)
}

func TestShipAllBatch(t *testing.T) {
	m := &fakeMirror{
		untrusted: map[string]bool{"someone/tool": true},
		failing:   map[string]error{"nginx:nope": &types.NotFoundError{Image: "library/nginx:nope"}},
	}
	var asked []string
	s := &shipper{mirror: m, confirm: func(image string) (bool, error) {
		asked = append(asked, image)
		return false, nil
	}}

	err := s.shipAll(context.Background(), []string{"nginx", "someone/tool", "nginx:nope", "redis"}, options{})

	require.EqualError(t, err, "1 个镜像转存失败")
	assert.Len(t, m.submitted, 4, "a failure does not stop the batch")
	assert.Equal(t, []string{"someone/tool"}, asked)
	assert.Equal(t, 1, m.declined)
	assert.Zero(t, m.confirmed)
}

func TestShipOneConfirms(t *testing.T) {
	m := &fakeMirror{untrusted: map[string]bool{"someone/tool": true}}
	s := &shipper{mirror: m, confirm: func(string) (bool, error) { return true, nil }}

	snap, err := s.shipOne(context.Background(), workflow.Request{Source: "someone/tool", TargetTag: "v1"})
	require.NoError(t, err)
	assert.Equal(t, workflow.PhaseCompleted, snap.Phase)
	assert.Equal(t, 1, m.confirmed)
	assert.Equal(t, "v1", m.submitted[0].TargetTag)
}

func TestShipOneYesSkipsPrompt(t *testing.T) {
	m := &fakeMirror{untrusted: map[string]bool{"someone/tool": true}}
	s := &shipper{mirror: m, yes: true, confirm: func(string) (bool, error) {
		t.Fatal("prompt must not be shown")
		return false, nil
	}}

	_, err := s.shipOne(context.Background(), workflow.Request{Source: "someone/tool"})
	require.NoError(t, err)
	assert.Equal(t, 1, m.confirmed)
}

func TestShipOnePromptError(t *testing.T) {
	m := &fakeMirror{untrusted: map[string]bool{"someone/tool": true}}
	interrupted := errors.New("interrupt")
	s := &shipper{mirror: m, confirm: func(string) (bool, error) { return false, interrupted }}

	_, err := s.shipOne(context.Background(), workflow.Request{Source: "someone/tool"})
	assert.ErrorIs(t, err, interrupted)
	assert.Equal(t, 1, m.declined)
}

func TestShipAllStopsWhenCancelled(t *testing.T) {
	m := &fakeMirror{}
	s := &shipper{mirror: m}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.shipAll(ctx, []string{"nginx", "redis"}, options{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, m.submitted)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		snap workflow.Snapshot
		want string
	}{
		{workflow.Snapshot{Phase: workflow.PhaseValidating, Source: "library/nginx:latest"}, "正在校验镜像 library/nginx:latest"},
		{workflow.Snapshot{Phase: workflow.PhaseTriggering}, "正在触发工作流"},
		{workflow.Snapshot{Phase: workflow.PhasePolling, Ticks: 1}, "工作流状态: queued (第1次查询)"},
		{workflow.Snapshot{Phase: workflow.PhasePolling, RunStatus: "in_progress", Ticks: 3}, "工作流状态: in_progress (第3次查询)"},
		{workflow.Snapshot{Phase: workflow.PhaseCompleted}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, describe(tt.snap))
	}
}

func TestProgressNilSafe(t *testing.T) {
	var p *progress
	p.start("x")
	p.onChange(workflow.Snapshot{Phase: workflow.PhaseTriggering})
	p.stop()
}
