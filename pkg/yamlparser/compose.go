package yamlparser

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ComposeConfig docker-compose.yaml配置结构
type ComposeConfig struct {
	Services map[string]ServiceConfig `yaml:"services"`
}

// ServiceConfig docker-compose服务配置
// build既可以是路径字符串，也可以是包含context的对象
type ServiceConfig struct {
	Image string    `yaml:"image"`
	Build yaml.Node `yaml:"build"`
}

// ParseComposeFile 解析docker-compose.yaml文件并提取所有镜像
func ParseComposeFile(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return ParseComposeContent(string(data))
}

// ParseComposeContent 解析docker-compose.yaml内容并提取所有镜像
// 只有build没有image的服务会被跳过，结果按服务名排序并去重。
func ParseComposeContent(content string) ([]string, error) {
	var config ComposeConfig
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("解析YAML内容失败: %w", err)
	}
	if config.Services == nil {
		return nil, fmt.Errorf("缺少services字段")
	}

	names := make([]string, 0, len(config.Services))
	for name := range config.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	var images []string
	for _, name := range names {
		if image := config.Services[name].Image; image != "" {
			images = append(images, image)
		}
	}
	return dedupe(images), nil
}

// dedupe 去掉重复镜像，保留第一次出现的顺序
func dedupe(images []string) []string {
	seen := make(map[string]bool, len(images))
	out := images[:0]
	for _, image := range images {
		if seen[image] {
			continue
		}
		seen[image] = true
		out = append(out, image)
	}
	return out
}
