package docker

import (
	"fmt"
	"strings"
)

// TargetImage 目标仓库中的镜像地址
type TargetImage struct {
	Host       string `json:"host"`
	Namespace  string `json:"namespace"`
	Repository string `json:"repository"`
	Tag        string `json:"tag"`
}

// NewTargetImage 按固定规则拼接目标镜像地址
func NewTargetImage(host, namespace, repository, tag string) TargetImage {
	if tag == "" {
		tag = DefaultTag
	}
	return TargetImage{
		Host:       strings.TrimSuffix(host, "/"),
		Namespace:  strings.Trim(namespace, "/"),
		Repository: strings.Trim(repository, "/"),
		Tag:        tag,
	}
}

// String 返回 <host>/<namespace>/<repository>:<tag>
func (t TargetImage) String() string {
	return fmt.Sprintf("%s/%s/%s:%s", t.Host, t.Namespace, t.Repository, t.Tag)
}
