package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"smartcampus/internal/pkg/logger/sl"
	"smartcampus/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const headerRequestID = "X-Request-ID"

// RequestID propagates X-Request-ID, generating one when the client sent none.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(headerRequestID, id)
		c.Next()
	}
}

// ErrorLogger logs failed requests and recovers from panics.
func ErrorLogger(log *slog.Logger) gin.HandlerFunc {
	log = log.With(slog.String("component", "http"))

	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				err := fmt.Errorf("%v", recovered)
				logRequest(log, c, start, slog.LevelError, "panic", sl.Err(err), slog.String("stack", string(debug.Stack())))
				response.Abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
				return
			}

			for _, err := range c.Errors {
				logRequest(log, c, start, slog.LevelError, "request error", sl.Err(err.Err))
			}

			switch status := c.Writer.Status(); {
			case status >= http.StatusInternalServerError:
				if len(c.Errors) == 0 {
					logRequest(log, c, start, slog.LevelError, "request failed")
				}
			case status >= http.StatusBadRequest:
				logRequest(log, c, start, slog.LevelWarn, "request rejected")
			default:
				logRequest(log, c, start, slog.LevelDebug, "request served")
			}
		}()

		c.Next()
	}
}

func logRequest(log *slog.Logger, c *gin.Context, start time.Time, level slog.Level, msg string, extra ...any) {
	attrs := []any{
		slog.Int("status", c.Writer.Status()),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
		slog.String("client_ip", c.ClientIP()),
		slog.Int64("user_id", c.GetInt64(ctxUserID)),
		slog.String("role", c.GetString(ctxRole)),
		slog.String("request_id", c.GetString("request_id")),
		slog.Duration("latency", time.Since(start)),
	}
	log.Log(c.Request.Context(), level, msg, append(attrs, extra...)...)
}
