// Package cart keeps one cart per user and enforces stock limits at the moment a line is
// added or changed. It does not reserve stock.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

type Conf struct {
	db *gorm.DB
}

func NewConf(db *gorm.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

// GetOrCreateCart returns the user's cart, creating an empty one on first access.
func (c *Conf) GetOrCreateCart(ctx context.Context, userID uint) (*CartResponse, error) {
	var resp *CartResponse
	err := c.withTx(ctx, func(tx *gorm.DB) error {
		cart, err := lockCart(tx, userID, true)
		if err != nil {
			return err
		}
		resp, err = loadCart(tx, cart.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// AddItem merges quantity into the user's line for the product, or inserts a new line with
// the current price as its snapshot.
func (c *Conf) AddItem(ctx context.Context, userID, productID uint, quantity int) (*CartResponse, error) {
	if quantity < 1 {
		return nil, apperr.Invalid("quantity must be at least 1")
	}

	var resp *CartResponse
	err := c.withTx(ctx, func(tx *gorm.DB) error {
		cart, err := lockCart(tx, userID, true)
		if err != nil {
			return err
		}

		var product models.Product
		err = tx.First(&product, productID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("product not found")
		}
		if err != nil {
			return fmt.Errorf("failed to query product: %w", err)
		}

		now := time.Now().UTC()
		var line models.CartItem
		err = tx.Where("cart_id = ? AND product_id = ?", cart.ID, productID).First(&line).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if product.StockQuantity < quantity {
				return insufficientStock(product.StockQuantity)
			}
			line = models.CartItem{
				CartID:    cart.ID,
				ProductID: productID,
				Quantity:  quantity,
				Price:     product.Price,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Create(&line).Error; err != nil {
				return fmt.Errorf("failed to add product to cart: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to query cart items: %w", err)
		default:
			newQuantity := line.Quantity + quantity
			if product.StockQuantity < newQuantity {
				return insufficientStock(product.StockQuantity)
			}
			err = tx.Model(&models.CartItem{}).Where("id = ?", line.ID).
				Updates(map[string]any{"quantity": newQuantity, "updated_at": now}).Error
			if err != nil {
				return fmt.Errorf("failed to update cart item quantity: %w", err)
			}
		}

		if err := touchCart(tx, cart.ID, now); err != nil {
			return err
		}
		resp, err = loadCart(tx, cart.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("product added to cart", slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
		slog.Uint64(logkey.ProductID, uint64(productID)), slog.Int("Quantity", quantity), slog.Uint64(logkey.UserID, uint64(userID)))
	return resp, nil
}

// UpdateItem overwrites the quantity of one of the user's cart lines.
func (c *Conf) UpdateItem(ctx context.Context, userID, cartItemID uint, quantity int) (*CartResponse, error) {
	if quantity < 1 {
		return nil, apperr.Invalid("quantity must be at least 1")
	}

	var resp *CartResponse
	err := c.withTx(ctx, func(tx *gorm.DB) error {
		cart, err := lockCart(tx, userID, false)
		if err != nil {
			return err
		}
		if cart == nil {
			return apperr.NotFound("cart item not found")
		}

		var line models.CartItem
		err = tx.Preload("Product").Where("id = ? AND cart_id = ?", cartItemID, cart.ID).First(&line).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("cart item not found")
		}
		if err != nil {
			return fmt.Errorf("failed to query cart item: %w", err)
		}
		if line.Product == nil {
			return apperr.NotFound("product not found")
		}
		if line.Product.StockQuantity < quantity {
			return insufficientStock(line.Product.StockQuantity)
		}

		now := time.Now().UTC()
		err = tx.Model(&models.CartItem{}).Where("id = ?", line.ID).
			Updates(map[string]any{"quantity": quantity, "updated_at": now}).Error
		if err != nil {
			return fmt.Errorf("failed to update cart item quantity: %w", err)
		}
		if err := touchCart(tx, cart.ID, now); err != nil {
			return err
		}
		resp, err = loadCart(tx, cart.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("cart item updated", slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
		slog.Uint64(logkey.CartItemID, uint64(cartItemID)), slog.Uint64(logkey.UserID, uint64(userID)))
	return resp, nil
}

// RemoveItem deletes one line of the user's cart and reports whether it existed.
func (c *Conf) RemoveItem(ctx context.Context, userID, cartItemID uint) (bool, error) {
	removed := false
	err := c.withTx(ctx, func(tx *gorm.DB) error {
		cart, err := lockCart(tx, userID, false)
		if err != nil || cart == nil {
			return err
		}
		res := tx.Where("id = ? AND cart_id = ?", cartItemID, cart.ID).Delete(&models.CartItem{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete cart item: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		removed = true
		return touchCart(tx, cart.ID, time.Now().UTC())
	})
	if err != nil {
		return false, err
	}
	if removed {
		slog.Info("cart item removed", slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
			slog.Uint64(logkey.CartItemID, uint64(cartItemID)), slog.Uint64(logkey.UserID, uint64(userID)))
	}
	return removed, nil
}

// Clear deletes every line of the user's cart. It reports false only when the user has no cart.
func (c *Conf) Clear(ctx context.Context, userID uint) (bool, error) {
	found := false
	err := c.withTx(ctx, func(tx *gorm.DB) error {
		cart, err := lockCart(tx, userID, false)
		if err != nil || cart == nil {
			return err
		}
		found = true
		if err := tx.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
		return touchCart(tx, cart.ID, time.Now().UTC())
	})
	if err != nil {
		return false, err
	}
	if found {
		slog.Info("cart cleared", slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)), slog.Uint64(logkey.UserID, uint64(userID)))
	}
	return found, nil
}

// lockCart selects the user's cart FOR UPDATE so concurrent mutations of one cart serialize.
// With create set, a missing cart is inserted; otherwise a missing cart yields nil.
func lockCart(tx *gorm.DB, userID uint, create bool) (*models.Cart, error) {
	var cart models.Cart
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&cart).Error
	if err == nil {
		return &cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query cart: %w", err)
	}
	if !create {
		return nil, nil
	}

	cart = models.Cart{UserID: userID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&cart).Error; err != nil {
		return nil, fmt.Errorf("failed to create new cart: %w", err)
	}
	if cart.ID != 0 {
		return &cart, nil
	}

	// another request created it first
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&cart).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query cart: %w", err)
	}
	return &cart, nil
}

func touchCart(tx *gorm.DB, cartID uint, now time.Time) error {
	if err := tx.Model(&models.Cart{}).Where("id = ?", cartID).Update("updated_at", now).Error; err != nil {
		return fmt.Errorf("failed to update cart timestamp: %w", err)
	}
	return nil
}

func loadCart(tx *gorm.DB, cartID uint) (*CartResponse, error) {
	var cart models.Cart
	err := tx.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("cart_items.id") }).
		Preload("Items.Product").
		First(&cart, cartID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return toCartResponse(cart), nil
}

func insufficientStock(available int) error {
	return apperr.Conflict("only %d items available in stock", available)
}

func (c *Conf) withTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.db.WithContext(ctx).Transaction(fn)
}
