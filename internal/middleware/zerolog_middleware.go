package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/steveiliop56/jellyauth/internal/metrics"
	"github.com/steveiliop56/jellyauth/internal/utils/tlog"

	"github.com/gin-gonic/gin"
)

var (
	loggerSkipPathsPrefix = []string{
		"GET /api/health",
		"HEAD /api/health",
		"GET /metrics",
		"GET /favicon.ico",
	}
)

type ZerologMiddleware struct {
	metrics *metrics.Metrics
}

func NewZerologMiddleware(metrics *metrics.Metrics) *ZerologMiddleware {
	return &ZerologMiddleware{
		metrics: metrics,
	}
}

func (m *ZerologMiddleware) Init() error {
	return nil
}

func (m *ZerologMiddleware) logPath(path string) bool {
	for _, prefix := range loggerSkipPathsPrefix {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

func (m *ZerologMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tStart := time.Now()

		c.Next()

		code := c.Writer.Status()
		address := c.Request.RemoteAddr
		clientIP := c.ClientIP()
		method := c.Request.Method
		path := c.Request.URL.Path

		elapsed := time.Since(tStart)
		latency := elapsed.String()

		// Label by route template so state tokens and provider ids do not explode cardinality
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.metrics.Request(method, route, strconv.Itoa(code), elapsed.Seconds())

		// logPath check if the path should be logged normally or with debug
		if m.logPath(method + " " + path) {
			switch {
			case code >= 200 && code < 300:
				tlog.HTTP.Info().Str("method", method).Str("path", path).Str("address", address).Str("clientIp", clientIP).Int("status", code).Str("latency", latency).Msg("Request")
			case code >= 300 && code < 400:
				tlog.HTTP.Info().Str("method", method).Str("path", path).Str("address", address).Str("clientIp", clientIP).Int("status", code).Str("latency", latency).Msg("Request")
			case code >= 400:
				tlog.HTTP.Warn().Str("method", method).Str("path", path).Str("address", address).Str("clientIp", clientIP).Int("status", code).Str("latency", latency).Msg("Request")
			}
		} else {
			tlog.HTTP.Debug().Str("method", method).Str("path", path).Str("address", address).Int("status", code).Str("latency", latency).Msg("Request")
		}
	}
}
