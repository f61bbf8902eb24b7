package github

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/keevingness/image-shipper-relay/pkg/docker"
)

// 中转仓库中需要配置的 Actions secrets
const (
	SecretRegistryUsername = "REGISTRY_USERNAME"
	SecretRegistryPassword = "REGISTRY_PASSWORD"
)

// pipeline GitHub Actions工作流文件结构，字段顺序即输出顺序
type pipeline struct {
	Name    string                    `yaml:"name"`
	RunName string                    `yaml:"run-name"`
	On      map[string]map[string]any `yaml:"on"`
	Jobs    map[string]pipelineJob    `yaml:"jobs"`
}

type pipelineJob struct {
	RunsOn string         `yaml:"runs-on"`
	Steps  []pipelineStep `yaml:"steps"`
}

type pipelineStep struct {
	Name string            `yaml:"name"`
	Env  map[string]string `yaml:"env,omitempty"`
	Run  string            `yaml:"run"`
}

// RenderPipeline 生成把source转存到target的工作流定义
// 相同的输入总是得到相同的内容。
func RenderPipeline(source docker.ImageReference, target docker.TargetImage) ([]byte, error) {
	if !source.Valid() {
		return nil, docker.ErrInvalidImageRef
	}

	src := source.PullName()
	dst := target.String()

	p := pipeline{
		Name:    "image-shipper",
		RunName: fmt.Sprintf("mirror %s to %s", src, dst),
		On: map[string]map[string]any{
			"workflow_dispatch": {},
		},
		Jobs: map[string]pipelineJob{
			"mirror": {
				RunsOn: "ubuntu-latest",
				Steps: []pipelineStep{
					{
						Name: "Login to target registry",
						Env: map[string]string{
							SecretRegistryUsername: fmt.Sprintf("${{ secrets.%s }}", SecretRegistryUsername),
							SecretRegistryPassword: fmt.Sprintf("${{ secrets.%s }}", SecretRegistryPassword),
						},
						Run: fmt.Sprintf(
							"echo \"$%s\" | docker login --username \"$%s\" --password-stdin %s",
							SecretRegistryPassword, SecretRegistryUsername, target.Host),
					},
					{
						Name: "Mirror image",
						Run: fmt.Sprintf("docker pull %s\ndocker tag %s %s\ndocker push %s\n",
							src, src, dst, dst),
					},
				},
			},
		},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("failed to render workflow: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to render workflow: %w", err)
	}

	return buf.Bytes(), nil
}
