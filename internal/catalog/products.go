package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

var minPrice = decimal.RequireFromString("0.01")

func (c *Conf) ListProducts(ctx context.Context, filter ProductFilter) ([]ProductResponse, error) {
	q := c.db.WithContext(ctx).Preload("Category")
	if filter.CategoryID != 0 {
		q = q.Where("category_id = ?", filter.CategoryID)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}

	var products []models.Product
	if err := q.Order("created_at DESC").Order("id DESC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	out := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	return out, nil
}

func (c *Conf) GetProduct(ctx context.Context, id uint) (*ProductResponse, error) {
	var cached ProductResponse
	if c.cacheGet(ctx, ProductKey(id), &cached) {
		return &cached, nil
	}

	var p models.Product
	err := c.db.WithContext(ctx).Preload("Category").First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("product not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}

	resp := toProductResponse(p)
	c.cacheSet(ctx, ProductKey(id), resp)
	return &resp, nil
}

func (c *Conf) CreateProduct(ctx context.Context, np NewProduct) (*ProductResponse, error) {
	if err := validateProduct(np); err != nil {
		return nil, err
	}

	var p models.Product
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		category, err := findCategory(tx, np.CategoryID)
		if err != nil {
			return err
		}
		p = models.Product{
			Name:          strings.TrimSpace(np.Name),
			Description:   np.Description,
			Price:         np.Price,
			StockQuantity: np.StockQuantity,
			ImageURL:      np.ImageURL,
			CategoryID:    category.ID,
		}
		if err := tx.Create(&p).Error; err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		p.Category = category
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.invalidate(ctx, categoriesKey)
	slog.Info("product created", slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
		slog.Uint64(logkey.ProductID, uint64(p.ID)), slog.String("name", p.Name))
	resp := toProductResponse(p)
	return &resp, nil
}

func (c *Conf) UpdateProduct(ctx context.Context, id uint, np NewProduct) (*ProductResponse, error) {
	if err := validateProduct(np); err != nil {
		return nil, err
	}

	var p models.Product
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&p, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("product not found")
		}
		if err != nil {
			return fmt.Errorf("get product %d: %w", id, err)
		}

		category, err := findCategory(tx, np.CategoryID)
		if err != nil {
			return err
		}

		p.Name = strings.TrimSpace(np.Name)
		p.Description = np.Description
		p.Price = np.Price
		p.StockQuantity = np.StockQuantity
		p.ImageURL = np.ImageURL
		p.CategoryID = category.ID
		if err := tx.Save(&p).Error; err != nil {
			return fmt.Errorf("update product %d: %w", id, err)
		}
		p.Category = category
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.invalidate(ctx, ProductKey(id), categoriesKey)
	slog.Info("product updated", slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
		slog.Uint64(logkey.ProductID, uint64(p.ID)))
	resp := toProductResponse(p)
	return &resp, nil
}

// DeleteProduct removes a product that no cart or order line references.
// It reports false when the product does not exist.
func (c *Conf) DeleteProduct(ctx context.Context, id uint) (bool, error) {
	found := false
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Product
		err := tx.First(&p, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get product %d: %w", id, err)
		}
		found = true

		var refs int64
		if err := tx.Model(&models.OrderItem{}).Where("product_id = ?", id).Count(&refs).Error; err != nil {
			return fmt.Errorf("count order items: %w", err)
		}
		if refs > 0 {
			return apperr.Conflict("product is referenced by existing orders and cannot be deleted")
		}
		if err := tx.Where("product_id = ?", id).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("delete cart lines: %w", err)
		}
		if err := tx.Delete(&p).Error; err != nil {
			return fmt.Errorf("delete product %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if found {
		c.invalidate(ctx, ProductKey(id), categoriesKey)
		slog.Info("product deleted", slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
			slog.Uint64(logkey.ProductID, uint64(id)))
	}
	return found, nil
}

func validateProduct(np NewProduct) error {
	if strings.TrimSpace(np.Name) == "" {
		return apperr.Invalid("product name is required")
	}
	if np.Price.LessThan(minPrice) {
		return apperr.Invalid("price must be greater than 0")
	}
	if np.StockQuantity < 0 {
		return apperr.Invalid("stock quantity cannot be negative")
	}
	return nil
}

func findCategory(tx *gorm.DB, id uint) (*models.Category, error) {
	var category models.Category
	err := tx.First(&category, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("category not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get category %d: %w", id, err)
	}
	return &category, nil
}
