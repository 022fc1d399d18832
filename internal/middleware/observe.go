package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-papers/internal/observability"
	"github.com/stemsi/exstem-papers/internal/response"
)

// Metrics records request counts and latency per route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := c.Request.Method
		observability.HTTPRequests().WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		observability.HTTPLatency().WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// RequestLogger writes one structured line per request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()

		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		default:
			ev = log.Info()
		}
		ev = ev.Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("request_id", c.GetString(response.ContextKeyRequestID))
		if claims := GetClaims(c); claims != nil {
			ev = ev.Str("user_uid", claims.UserUID)
		}
		ev.Msg("HTTP request")
	}
}
