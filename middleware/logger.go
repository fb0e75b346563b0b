package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

// TraceHeader echoes the request's trace id back to the caller.
const TraceHeader = "X-Trace-Id"

// Logger attaches a fresh trace id to every request and logs the outcome once it completes.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceId := uuid.NewString()
		ctx := ctxmanage.WithTraceID(c.Request.Context(), traceId)
		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, traceId)

		start := time.Now()
		slog.Info("started", slog.String(logkey.TraceID, traceId),
			slog.String("Method", c.Request.Method), slog.Any("URL Path", c.Request.URL.Path))

		c.Next()

		slog.Info("completed", slog.String(logkey.TraceID, traceId),
			slog.String("Method", c.Request.Method), slog.Any("URL Path", c.Request.URL.Path),
			slog.Int("Status Code", c.Writer.Status()), slog.Int64("duration_μs", time.Since(start).Microseconds()))
	}
}
