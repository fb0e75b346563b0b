package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"
	"storefront-service/internal/stores/postgres"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

const duplicateCategoryMsg = "a category with this name already exists"

// ListCategories returns every category ordered by name, each with its product count.
func (c *Conf) ListCategories(ctx context.Context) ([]CategoryResponse, error) {
	var cached []CategoryResponse
	if c.cacheGet(ctx, categoriesKey, &cached) {
		return cached, nil
	}

	db := c.db.WithContext(ctx)
	var categories []models.Category
	if err := db.Order("name").Order("id").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	counts, err := productCounts(db)
	if err != nil {
		return nil, err
	}

	out := make([]CategoryResponse, 0, len(categories))
	for _, cat := range categories {
		out = append(out, toCategoryResponse(cat, counts[cat.ID]))
	}
	c.cacheSet(ctx, categoriesKey, out)
	return out, nil
}

func (c *Conf) GetCategory(ctx context.Context, id uint) (*CategoryResponse, error) {
	db := c.db.WithContext(ctx)
	category, err := findCategory(db, id)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := db.Model(&models.Product{}).Where("category_id = ?", id).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	resp := toCategoryResponse(*category, count)
	return &resp, nil
}

// CreateCategory rejects names that match an existing category case-insensitively.
func (c *Conf) CreateCategory(ctx context.Context, nc NewCategory) (*CategoryResponse, error) {
	name := strings.TrimSpace(nc.Name)
	if name == "" {
		return nil, apperr.Invalid("category name is required")
	}

	category := models.Category{Name: name, Description: nc.Description}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Category{}).Where("LOWER(name) = ?", strings.ToLower(name)).Count(&existing).Error; err != nil {
			return fmt.Errorf("check category name: %w", err)
		}
		if existing > 0 {
			return apperr.Conflict(duplicateCategoryMsg)
		}
		if err := tx.Create(&category).Error; err != nil {
			if postgres.IsUniqueViolation(err) {
				return apperr.Conflict(duplicateCategoryMsg)
			}
			return fmt.Errorf("insert category: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.invalidate(ctx, categoriesKey)
	slog.Info("category created", slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
		slog.Uint64("CategoryID", uint64(category.ID)), slog.String("name", category.Name))
	resp := toCategoryResponse(category, 0)
	return &resp, nil
}

// DeleteCategory reports false when the category does not exist and refuses to delete a
// category that still has products.
func (c *Conf) DeleteCategory(ctx context.Context, id uint) (bool, error) {
	found := false
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		category, err := findCategory(tx, id)
		if apperr.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		var count int64
		if err := tx.Model(&models.Product{}).Where("category_id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("count products: %w", err)
		}
		if count > 0 {
			return apperr.Conflict("category has %d products and cannot be deleted", count)
		}
		if err := tx.Delete(category).Error; err != nil {
			return fmt.Errorf("delete category %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if found {
		c.invalidate(ctx, categoriesKey)
	}
	return found, nil
}

func productCounts(db *gorm.DB) (map[uint]int64, error) {
	var rows []struct {
		CategoryID uint
		Total      int64
	}
	err := db.Model(&models.Product{}).
		Select("category_id, COUNT(*) AS total").
		Group("category_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count products per category: %w", err)
	}
	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.CategoryID] = r.Total
	}
	return counts, nil
}
