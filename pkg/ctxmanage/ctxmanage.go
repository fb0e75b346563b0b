package ctxmanage

import (
	"context"

	"github.com/gin-gonic/gin"
)

type ctxKey int

// TraceIdKey is the request context key the logger middleware stores the trace id under.
const TraceIdKey ctxKey = 1

const unknownTraceID = "Unknown"

// GetTraceIdOfRequest returns the trace id attached to the request, or "Unknown".
func GetTraceIdOfRequest(c *gin.Context) string {
	return TraceID(c.Request.Context())
}

func TraceID(ctx context.Context) string {
	traceId, ok := ctx.Value(TraceIdKey).(string)
	if !ok || traceId == "" {
		return unknownTraceID
	}
	return traceId
}

func WithTraceID(ctx context.Context, traceId string) context.Context {
	return context.WithValue(ctx, TraceIdKey, traceId)
}
