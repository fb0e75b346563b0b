package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"storefront-service/internal/apperr"
	"storefront-service/internal/auth"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

// respondError maps a service error to a status code. Unclassified errors are logged and
// answered with the generic message so internals never reach the caller.
func respondError(c *gin.Context, err error, generic string) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict, apperr.KindInvalid:
		status = http.StatusBadRequest
	case apperr.KindUnauthenticated:
		status = http.StatusUnauthorized
	default:
		slog.Error(generic, slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(status, gin.H{"error": generic})
		return
	}
	slog.Warn("request rejected", slog.String(logkey.TraceID, traceId),
		slog.String("Kind", apperr.KindOf(err).String()), slog.String(logkey.ERROR, err.Error()))
	c.AbortWithStatusJSON(status, gin.H{"error": apperr.Message(err)})
}

// bindJSON decodes and validates the request body, answering 400 itself on failure.
func (h *Handler) bindJSON(c *gin.Context, dst any) bool {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	if err := c.ShouldBindJSON(dst); err != nil {
		slog.Error("json validation error", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return false
	}

	err := h.validate.Struct(dst)
	if err == nil {
		return true
	}
	slog.Error("validation failed", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) && len(vErrs) > 0 {
		vErr := vErrs[0]
		switch vErr.Tag() {
		case "required":
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": vErr.Field() + " value missing"})
		case "min":
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": vErr.Field() + " value is less than " + vErr.Param()})
		case "max":
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": vErr.Field() + " value is longer than " + vErr.Param()})
		case "email":
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": vErr.Field() + " is not a valid email"})
		default:
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		}
		return false
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
	return false
}

// idParam parses a positive numeric path parameter, answering 400 itself on failure.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		slog.Error("invalid path parameter", slog.String(logkey.TraceID, ctxmanage.GetTraceIdOfRequest(c)),
			slog.String("Param", name), slog.String("Value", c.Param(name)))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}

// currentUser reads the authenticated user's id from the claims Authentication stored.
func currentUser(c *gin.Context) (uint, bool) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		slog.Error("claims not found", slog.String(logkey.TraceID, traceId))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return 0, false
	}
	id, err := claims.UserID()
	if err != nil {
		slog.Error("invalid user id in claims", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return 0, false
	}
	return id, true
}
