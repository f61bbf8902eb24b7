package yamlparser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileType YAML文件类型
type FileType string

const (
	// FileTypeUnknown 未知文件类型
	FileTypeUnknown FileType = "unknown"
	// FileTypeCompose docker-compose文件
	FileTypeCompose FileType = "compose"
	// FileTypeK8s Kubernetes文件
	FileTypeK8s FileType = "k8s"
)

// ParseFile 解析YAML文件并提取镜像
// 文件名只决定先尝试哪种解析器，失败后再尝试另一种。
func ParseFile(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}

	content := string(data)
	if DetectFileType(filePath) == FileTypeK8s {
		if images, err := ParseK8sContent(content); err == nil {
			return images, nil
		}
		return ParseComposeContent(content)
	}
	return ParseContent(content, FileTypeUnknown)
}

// ParseContent 解析YAML内容并提取镜像
// fileType为FileTypeUnknown时先按docker-compose解析，失败再按k8s解析。
func ParseContent(content string, fileType FileType) ([]string, error) {
	switch fileType {
	case FileTypeCompose:
		return ParseComposeContent(content)
	case FileTypeK8s:
		return ParseK8sContent(content)
	case FileTypeUnknown:
	default:
		return nil, fmt.Errorf("不支持的文件类型: %s", fileType)
	}

	if images, err := ParseComposeContent(content); err == nil {
		return images, nil
	}
	if images, err := ParseK8sContent(content); err == nil {
		return images, nil
	}
	return nil, fmt.Errorf("无法解析内容: 既不是有效的docker-compose内容，也不是有效的k8s内容")
}

// DetectFileType 根据文件名判断YAML文件类型
func DetectFileType(filePath string) FileType {
	name := strings.ToLower(filepath.Base(filePath))
	if strings.Contains(name, "compose") {
		return FileTypeCompose
	}
	for _, hint := range []string{"k8s", "kubernetes", "deployment", "statefulset", "daemonset", "cronjob", "pod"} {
		if strings.Contains(name, hint) {
			return FileTypeK8s
		}
	}
	return FileTypeUnknown
}
