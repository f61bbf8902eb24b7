package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 IMGSHIPPER_GITHUB_TOKEN
const EnvPrefix = "IMGSHIPPER"

// Config 应用程序配置结构
type Config struct {
	GitHub   GitHubConfig   `mapstructure:"github"`
	Registry RegistryConfig `mapstructure:"registry"`
	Hub      HubConfig      `mapstructure:"hub"`
	Poll     PollConfig     `mapstructure:"poll"`
	Server   ServerConfig   `mapstructure:"server"`
	Pull     PullConfig     `mapstructure:"pull"`
	Log      LogConfig      `mapstructure:"log"`
}

// GitHubConfig 中转仓库相关配置
type GitHubConfig struct {
	Token    string `mapstructure:"token"`
	Owner    string `mapstructure:"owner"`
	Repo     string `mapstructure:"repo"`
	Workflow string `mapstructure:"workflow"`
	Ref      string `mapstructure:"ref"`
	// APIURL 仅用于GitHub Enterprise，留空使用api.github.com
	APIURL string `mapstructure:"api_url"`
}

// WorkflowPath 工作流文件在仓库中的路径
func (c GitHubConfig) WorkflowPath() string {
	return ".github/workflows/" + c.Workflow
}

// RegistryConfig 目标镜像仓库配置
type RegistryConfig struct {
	// Host 留空时根据Region推导阿里云镜像仓库地址
	Host      string `mapstructure:"host"`
	Region    string `mapstructure:"region"`
	Namespace string `mapstructure:"namespace"`
}

// Address 返回目标仓库地址
func (c RegistryConfig) Address() string {
	if c.Host != "" {
		return c.Host
	}
	return fmt.Sprintf("registry.%s.aliyuncs.com", c.Region)
}

// HubConfig 上游公共仓库配置
type HubConfig struct {
	APIURL            string `mapstructure:"api_url"`
	OfficialNamespace string `mapstructure:"official_namespace"`
	// Proxy 访问上游仓库的代理，留空时使用HTTPS_PROXY等环境变量
	Proxy    string `mapstructure:"proxy"`
	Insecure bool   `mapstructure:"insecure"`
}

// PollConfig 工作流状态轮询配置
type PollConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// ServerConfig 控制台API配置
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	AccessKey string `mapstructure:"access_key"`
}

// PullConfig Pull命令配置
type PullConfig struct {
	ContainerRuntime string `mapstructure:"container_runtime"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// setDefaults 设置默认值，环境变量只会覆盖已知的键
func setDefaults(v *viper.Viper) {
	v.SetDefault("github.token", "")
	v.SetDefault("github.owner", "")
	v.SetDefault("github.repo", "image-shipper")
	v.SetDefault("github.workflow", "image-shipper.yaml")
	v.SetDefault("github.ref", "main")
	v.SetDefault("github.api_url", "")

	v.SetDefault("registry.host", "")
	v.SetDefault("registry.region", "cn-hangzhou")
	v.SetDefault("registry.namespace", "")

	v.SetDefault("hub.api_url", "https://hub.docker.com")
	v.SetDefault("hub.official_namespace", "library")
	v.SetDefault("hub.proxy", "")
	v.SetDefault("hub.insecure", false)

	v.SetDefault("poll.interval", 5*time.Second)
	v.SetDefault("poll.timeout", time.Duration(0))
	v.SetDefault("poll.max_retries", 0)
	v.SetDefault("poll.retry_interval", time.Second)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.access_key", "")

	v.SetDefault("pull.container_runtime", "docker")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load 依次从默认值、配置文件、.env文件和环境变量加载配置
// path为空时在当前目录和 ~/.config/image-shipper 中查找 image-shipper.yaml，找不到则忽略。
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("image-shipper")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "image-shipper"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	return cfg, nil
}

// Validate 验证镜像转存所需的配置
func (c *Config) Validate() error {
	if c.GitHub.Token == "" {
		return fmt.Errorf("github token is required")
	}

	if c.GitHub.Owner == "" {
		return fmt.Errorf("github owner is required")
	}

	if c.GitHub.Repo == "" {
		return fmt.Errorf("github repo is required")
	}

	if c.GitHub.Workflow == "" {
		return fmt.Errorf("github workflow is required")
	}

	if c.Registry.Host == "" && c.Registry.Region == "" {
		return fmt.Errorf("registry host or region is required")
	}

	if c.Registry.Namespace == "" {
		return fmt.Errorf("registry namespace is required")
	}

	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	if c.Poll.Timeout < 0 || c.Poll.MaxRetries < 0 {
		return fmt.Errorf("poll timeout and max retries must not be negative")
	}

	return nil
}

// ValidateServer 验证控制台API所需的配置
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Server.AccessKey == "" {
		return fmt.Errorf("server access key is required")
	}

	return nil
}
