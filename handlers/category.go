package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-service/internal/catalog"
)

func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.s.Catalog.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, err, "an error occurred while retrieving categories")
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *Handler) GetCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	category, err := h.s.Catalog.GetCategory(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "an error occurred while retrieving the category")
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *Handler) CreateCategory(c *gin.Context) {
	var nc catalog.NewCategory
	if !h.bindJSON(c, &nc) {
		return
	}
	category, err := h.s.Catalog.CreateCategory(c.Request.Context(), nc)
	if err != nil {
		respondError(c, err, "an error occurred while creating the category")
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *Handler) DeleteCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	deleted, err := h.s.Catalog.DeleteCategory(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "an error occurred while deleting the category")
		return
	}
	if !deleted {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "category not found"})
		return
	}
	c.Status(http.StatusNoContent)
}
