package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

type addCartItemRequest struct {
	ProductID uint `json:"product_id" validate:"required"`
	Quantity  int  `json:"quantity" validate:"min=1"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"min=1"`
}

func (h *Handler) GetCart(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	cart, err := h.s.Cart.GetOrCreateCart(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "an error occurred while retrieving the cart")
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) AddCartItem(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req addCartItemRequest
	if !h.bindJSON(c, &req) {
		return
	}
	cart, err := h.s.Cart.AddItem(c.Request.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err, "an error occurred while adding to cart")
		return
	}
	slog.Info("product added to cart", slog.String(logkey.TraceID, traceId),
		slog.Uint64(logkey.ProductID, uint64(req.ProductID)), slog.Int("Quantity", req.Quantity), slog.Uint64(logkey.UserID, uint64(userID)))
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) UpdateCartItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	itemID, ok := idParam(c, "cartItemId")
	if !ok {
		return
	}
	var req updateCartItemRequest
	if !h.bindJSON(c, &req) {
		return
	}
	cart, err := h.s.Cart.UpdateItem(c.Request.Context(), userID, itemID, req.Quantity)
	if err != nil {
		respondError(c, err, "an error occurred while updating the cart item")
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) RemoveCartItem(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	itemID, ok := idParam(c, "cartItemId")
	if !ok {
		return
	}
	removed, err := h.s.Cart.RemoveItem(c.Request.Context(), userID, itemID)
	if err != nil {
		respondError(c, err, "an error occurred while removing from cart")
		return
	}
	if !removed {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "cart item not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ClearCart(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if _, err := h.s.Cart.Clear(c.Request.Context(), userID); err != nil {
		respondError(c, err, "an error occurred while clearing the cart")
		return
	}
	c.Status(http.StatusNoContent)
}
