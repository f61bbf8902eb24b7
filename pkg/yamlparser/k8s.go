package yamlparser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseK8sFile 解析Kubernetes YAML文件并提取所有镜像
func ParseK8sFile(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return ParseK8sContent(string(data))
}

// ParseK8sContent 解析Kubernetes YAML内容并提取所有镜像
// 支持多文档，缺少apiVersion或kind的文档会被忽略，但至少要有一个有效资源。
func ParseK8sContent(content string) ([]string, error) {
	dec := yaml.NewDecoder(strings.NewReader(content))

	var images []string
	hasValidResource := false
	for {
		var doc map[string]interface{}
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("解析YAML失败: %w", err)
		}
		if doc == nil {
			continue
		}

		docImages, ok := parseK8sDoc(doc)
		if !ok {
			continue
		}
		hasValidResource = true
		images = append(images, docImages...)
	}

	if !hasValidResource {
		return nil, fmt.Errorf("没有找到有效的Kubernetes资源")
	}
	return dedupe(images), nil
}

// parseK8sDoc 提取单个资源中的镜像，不是Kubernetes资源时返回false
func parseK8sDoc(doc map[string]interface{}) ([]string, bool) {
	_, hasAPIVersion := doc["apiVersion"]
	_, hasKind := doc["kind"]
	if !hasAPIVersion || !hasKind {
		return nil, false
	}

	// List类型把资源放在items中
	if items, ok := doc["items"].([]interface{}); ok {
		var images []string
		for _, item := range items {
			if m, ok := item.(map[string]interface{}); ok {
				itemImages, _ := parseK8sDoc(m)
				images = append(images, itemImages...)
			}
		}
		return images, true
	}

	spec, _ := doc["spec"].(map[string]interface{})
	return extractImagesFromSpec(spec), true
}

// extractImagesFromSpec 从spec中提取镜像
func extractImagesFromSpec(spec map[string]interface{}) []string {
	if spec == nil {
		return nil
	}

	var images []string
	// Pod
	for _, key := range []string{"initContainers", "containers", "ephemeralContainers"} {
		if containers, ok := spec[key].([]interface{}); ok {
			images = append(images, extractImagesFromContainerList(containers)...)
		}
	}

	// Deployment、StatefulSet、DaemonSet、Job等
	if template, ok := spec["template"].(map[string]interface{}); ok {
		if podSpec, ok := template["spec"].(map[string]interface{}); ok {
			images = append(images, extractImagesFromSpec(podSpec)...)
		}
	}

	// CronJob
	if jobTemplate, ok := spec["jobTemplate"].(map[string]interface{}); ok {
		if jobSpec, ok := jobTemplate["spec"].(map[string]interface{}); ok {
			images = append(images, extractImagesFromSpec(jobSpec)...)
		}
	}

	return images
}

// extractImagesFromContainerList 从容器列表中提取镜像
func extractImagesFromContainerList(containers []interface{}) []string {
	var images []string
	for _, container := range containers {
		if containerMap, ok := container.(map[string]interface{}); ok {
			if image, ok := containerMap["image"].(string); ok && image != "" {
				images = append(images, image)
			}
		}
	}
	return images
}
