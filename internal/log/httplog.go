package log

import (
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"go.uber.org/zap"
)

// HTTPMiddleware logs one structured entry per request served by next.
func HTTPMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, req)
			LogHTTPRequest(logger, req, m.Code, m.Duration, m.Written)
		})
	}
}

// LogHTTPRequest writes an access-log entry. Server errors are logged at
// error level, everything else at debug.
func LogHTTPRequest(logger *zap.SugaredLogger, req *http.Request, status int, duration time.Duration, size int64) {
	fields := []interface{}{
		"method", req.Method,
		"path", req.URL.Path,
		"status", status,
		"duration_ms", duration.Milliseconds(),
		"size", size,
		"remote_addr", req.RemoteAddr,
	}
	if ua := req.UserAgent(); ua != "" {
		fields = append(fields, "user_agent", ua)
	}

	if status >= http.StatusInternalServerError {
		logger.Errorw("http request", fields...)
		return
	}
	logger.Debugw("http request", fields...)
}
