package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/keevingness/image-shipper-relay/internal/types"
)

// AccessKeyHeader 控制台请求携带访问密钥的请求头
const AccessKeyHeader = "X-Access-Key"

// RequireAccessKey 校验访问密钥，缺失或不匹配时返回401
func RequireAccessKey(accessKey string, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			provided := c.Request().Header.Get(AccessKeyHeader)
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(accessKey)) != 1 {
				logger.Warn("Unauthorized console access attempt",
					zap.String("method", c.Request().Method),
					zap.String("path", c.Request().URL.Path),
					zap.String("remote_ip", c.RealIP()))
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: types.ErrUnauthorized.Error()})
			}
			return next(c)
		}
	}
}

// RequestLogger 记录每个请求的方法、路径、状态码和耗时
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency.Round(time.Microsecond)),
				zap.String("remote_ip", c.RealIP()),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
				logger.Warn("HTTP request", fields...)
				return nil
			}
			logger.Info("HTTP request", fields...)
			return nil
		},
	})
}
