package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront-service/internal/catalog"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

// Product bodies are small; anything larger is rejected before decoding.
const maxProductBody = 5 * 1024

func (h *Handler) ListProducts(c *gin.Context) {
	var filter catalog.ProductFilter
	if raw := c.Query("categoryId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid categoryId"})
			return
		}
		filter.CategoryID = uint(id)
	}
	filter.Search = strings.TrimSpace(c.Query("search"))

	products, err := h.s.Catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "an error occurred while retrieving products")
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	product, err := h.s.Catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "an error occurred while retrieving the product")
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) CreateProduct(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	if c.Request.ContentLength > maxProductBody {
		slog.Error("request body limit breached", slog.String(logkey.TraceID, traceId), slog.Int64("Size Received", c.Request.ContentLength))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Request body too large."})
		return
	}

	var np catalog.NewProduct
	if !h.bindJSON(c, &np) {
		return
	}
	product, err := h.s.Catalog.CreateProduct(c.Request.Context(), np)
	if err != nil {
		respondError(c, err, "an error occurred while creating the product")
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) UpdateProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var np catalog.NewProduct
	if !h.bindJSON(c, &np) {
		return
	}
	product, err := h.s.Catalog.UpdateProduct(c.Request.Context(), id, np)
	if err != nil {
		respondError(c, err, "an error occurred while updating the product")
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	deleted, err := h.s.Catalog.DeleteProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "an error occurred while deleting the product")
		return
	}
	if !deleted {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
