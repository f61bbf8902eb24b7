package docker

import (
	"strings"
)

const (
	// DefaultTag 未指定标签时使用的默认标签
	DefaultTag = "latest"
	// DefaultNamespace Docker Hub官方镜像的隐式命名空间
	DefaultNamespace = "library"
)

// dockerHubHosts 视为Docker Hub本身的仓库地址
var dockerHubHosts = map[string]bool{
	"docker.io":            true,
	"index.docker.io":      true,
	"registry-1.docker.io": true,
}

// pullCommands 可以出现在粘贴文本开头的拉取命令
var pullCommands = map[string]bool{
	"docker":  true,
	"podman":  true,
	"nerdctl": true,
}

// valueFlags 拉取命令中需要单独参数值的选项，--flag=value 形式不在此列
var valueFlags = map[string]bool{
	"--platform":         true,
	"--arch":             true,
	"--os":               true,
	"--variant":          true,
	"--authfile":         true,
	"--creds":            true,
	"--cert-dir":         true,
	"--decryption-key":   true,
	"--signature-policy": true,
	"--retry":            true,
	"--retry-delay":      true,
	"--namespace":        true,
	"-n":                 true,
}

// ImageReference 解析后的镜像引用
type ImageReference struct {
	// Registry 显式指定的仓库地址，Docker Hub时为空
	Registry   string `json:"registry,omitempty"`
	Namespace  string `json:"namespace"`
	Repository string `json:"repository"`
	Tag        string `json:"tag"`
	// TagDefaulted 标签是否由解析器补全为latest
	TagDefaulted bool `json:"tag_defaulted"`
}

// IsDockerHub 镜像是否位于Docker Hub
func (r ImageReference) IsDockerHub() bool {
	return r.Registry == ""
}

// Valid 仓库名是否非空
func (r ImageReference) Valid() bool {
	return r.Repository != ""
}

// Path 返回 namespace/repository
func (r ImageReference) Path() string {
	if r.Namespace == "" {
		return r.Repository
	}
	return r.Namespace + "/" + r.Repository
}

// String 返回完整的镜像引用，Docker Hub镜像省略仓库地址
func (r ImageReference) String() string {
	s := r.Path() + ":" + r.Tag
	if r.Registry != "" {
		s = r.Registry + "/" + s
	}
	return s
}

// PullName 返回可直接用于docker pull的完整名称
func (r ImageReference) PullName() string {
	if r.Registry == "" {
		return "docker.io/" + r.Path() + ":" + r.Tag
	}
	return r.String()
}

// ParseImageReference 解析用户输入的镜像引用
// 支持直接粘贴的拉取命令，例如 "docker pull nginx:alpine"。
// 该函数不会失败，格式错误的输入会得到尽力解析的结果，最终由校验器判断是否有效。
func ParseImageReference(raw string) ImageReference {
	ref := ImageReference{Namespace: DefaultNamespace}

	imageRef := stripPullCommand(raw)

	// 去掉摘要部分
	if i := strings.Index(imageRef, "@"); i >= 0 {
		imageRef = imageRef[:i]
	}

	// 只有最后一个/之后的冒号才是标签，之前的冒号是仓库端口
	lastSlash := strings.LastIndex(imageRef, "/")
	if i := strings.LastIndex(imageRef, ":"); i > lastSlash {
		ref.Tag = imageRef[i+1:]
		imageRef = imageRef[:i]
	}
	if ref.Tag == "" {
		ref.Tag = DefaultTag
		ref.TagDefaulted = true
	}

	parts := strings.Split(strings.Trim(imageRef, "/"), "/")

	// 如果第一部分包含域名、端口或为localhost，则是仓库地址
	if len(parts) > 1 && (strings.Contains(parts[0], ".") || strings.Contains(parts[0], ":") || parts[0] == "localhost") {
		if !dockerHubHosts[parts[0]] {
			ref.Registry = parts[0]
		}
		parts = parts[1:]
	}

	ref.Repository = parts[len(parts)-1]
	if len(parts) > 1 {
		ref.Namespace = strings.Join(parts[:len(parts)-1], "/")
	}

	return ref
}

// stripPullCommand 去掉开头的拉取命令和选项，返回镜像引用部分
// 只有后面跟着pull时才把docker等视为命令，单独的 "docker" 是官方镜像。
func stripPullCommand(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}

	args := fields
	if rest, ok := pullArgs(fields); ok {
		args = rest
	}

	// 第一个非选项参数即镜像引用，跳过带值选项的值
	for i := 0; i < len(args); i++ {
		f := args[i]
		if !strings.HasPrefix(f, "-") {
			return f
		}
		if valueFlags[f] {
			i++
		}
	}
	return ""
}

// pullArgs 匹配 "[sudo] docker|podman|nerdctl [image] pull ..."，返回pull之后的参数
func pullArgs(fields []string) ([]string, bool) {
	i := 0
	if fields[i] == "sudo" {
		i++
	}
	if i >= len(fields) || !pullCommands[fields[i]] {
		return nil, false
	}
	i++
	if i < len(fields) && fields[i] == "image" {
		i++
	}
	if i >= len(fields) || fields[i] != "pull" {
		return nil, false
	}
	return fields[i+1:], true
}
