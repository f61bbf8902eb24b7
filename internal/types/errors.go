package types

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPollTimeout 轮询超过配置的最长时间
	ErrPollTimeout = errors.New("timed out waiting for workflow run")
	// ErrUnauthorized 访问密钥缺失或不匹配
	ErrUnauthorized = errors.New("unauthorized")
)

// 错误类别，供API和界面展示
const (
	KindNotFound      = "not_found"
	KindTransport     = "transport"
	KindConfiguration = "configuration"
	KindTrigger       = "trigger"
	KindRunFailure    = "run_failure"
	KindTimeout       = "timeout"
	KindCanceled      = "canceled"
	KindUnauthorized  = "unauthorized"
	KindInvalid       = "invalid"
)

// NotFoundError 上游仓库中不存在该镜像
type NotFoundError struct {
	Image string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("image %s not found on upstream registry", e.Image)
}

// TransportError 网络或HTTP层面的失败
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConfigurationError 中转工作流定义写入被拒绝
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("failed to configure relay pipeline: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TriggerError 工作流触发被拒绝
type TriggerError struct {
	Err error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("failed to trigger workflow: %v", e.Err)
}

func (e *TriggerError) Unwrap() error { return e.Err }

// RunFailure 工作流运行结束但结论不是success
type RunFailure struct {
	Conclusion string
	URL        string
}

func (e *RunFailure) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("workflow run finished with conclusion %q", e.Conclusion)
	}
	return fmt.Sprintf("workflow run finished with conclusion %q, see %s", e.Conclusion, e.URL)
}

// ErrorKind 返回错误对应的类别，无法识别时返回空字符串
func ErrorKind(err error) string {
	var (
		notFound  *NotFoundError
		transport *TransportError
		cfgErr    *ConfigurationError
		trigger   *TriggerError
		failure   *RunFailure
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &trigger):
		return KindTrigger
	case errors.As(err, &failure):
		return KindRunFailure
	case errors.Is(err, ErrPollTimeout):
		return KindTimeout
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.As(err, &transport):
		return KindTransport
	default:
		return KindInvalid
	}
}
