package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

const (
	maxWebhookBytes = int64(65536)
	signatureHeader = "Stripe-Signature"
)

type createIntentRequest struct {
	OrderID uint `json:"order_id" validate:"required"`
}

func (h *Handler) CreatePaymentIntent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req createIntentRequest
	if !h.bindJSON(c, &req) {
		return
	}
	intent, err := h.s.Payment.CreatePaymentIntent(c.Request.Context(), userID, req.OrderID)
	if err != nil {
		respondError(c, err, "an error occurred while creating the payment intent")
		return
	}
	c.JSON(http.StatusOK, intent)
}

// Webhook receives payment processor callbacks. The raw body is needed for signature checks.
func (h *Handler) Webhook(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		slog.Error("failed to read webhook body", slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	signature := c.GetHeader(signatureHeader)
	if signature == "" {
		slog.Warn("webhook without signature", slog.String(logkey.TraceID, traceId))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing stripe signature"})
		return
	}

	handled, err := h.s.Payment.HandleCallback(c.Request.Context(), payload, signature)
	if err != nil {
		respondError(c, err, "an error occurred while processing the webhook")
		return
	}
	if !handled {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "webhook processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
