// Package orders converts carts into orders and manages order status afterwards.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"
	"storefront-service/internal/stores/kafka"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

// Publisher emits order events after a transaction commits.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

// ProductInvalidator drops cached catalog entries whose stock changed.
type ProductInvalidator interface {
	InvalidateProducts(ctx context.Context, ids ...uint)
}

const defaultPublishTimeout = 3 * time.Second

type Conf struct {
	db             *gorm.DB
	strict         bool
	publisher      Publisher
	publishTimeout time.Duration
	products       ProductInvalidator
	now            func() time.Time
	suffix         func() int
}

type Option func(*Conf)

// WithStrictTransitions makes UpdateStatus reject moves CanTransition does not allow.
func WithStrictTransitions(strict bool) Option {
	return func(c *Conf) { c.strict = strict }
}

func WithPublisher(p Publisher) Option {
	return func(c *Conf) { c.publisher = p }
}

// WithPublishTimeout bounds how long order placement waits for an event to be published.
func WithPublishTimeout(d time.Duration) Option {
	return func(c *Conf) {
		if d > 0 {
			c.publishTimeout = d
		}
	}
}

func WithProductInvalidator(p ProductInvalidator) Option {
	return func(c *Conf) { c.products = p }
}

func NewConf(db *gorm.DB, opts ...Option) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	c := &Conf{
		db:             db,
		publishTimeout: defaultPublishTimeout,
		now:            func() time.Time { return time.Now().UTC() },
		suffix:         func() int { return 1000 + rand.IntN(9000) },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateOrderFromCart turns the user's cart into a Pending order. Order rows, stock decrements
// and the cart clear commit together or not at all.
func (c *Conf) CreateOrderFromCart(ctx context.Context, userID uint, shippingAddress string) (*OrderResponse, error) {
	shippingAddress = strings.TrimSpace(shippingAddress)
	if shippingAddress == "" {
		return nil, apperr.Invalid("shipping address is required")
	}

	var order models.Order
	err := c.withTx(ctx, func(tx *gorm.DB) error {
		var cart models.Cart
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&cart).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Conflict("cart is empty")
		}
		if err != nil {
			return fmt.Errorf("failed to query cart: %w", err)
		}

		var lines []models.CartItem
		if err := tx.Preload("Product").Where("cart_id = ?", cart.ID).Order("id").Find(&lines).Error; err != nil {
			return fmt.Errorf("failed to query cart items: %w", err)
		}
		if len(lines) == 0 {
			return apperr.Conflict("cart is empty")
		}

		for _, line := range lines {
			if line.Product == nil {
				return apperr.NotFound("product %d not found", line.ProductID)
			}
			if line.Product.StockQuantity < line.Quantity {
				return insufficientStock(line.Product.Name, line.Product.StockQuantity, line.Quantity)
			}
		}

		orderNumber, err := c.uniqueOrderNumber(tx)
		if err != nil {
			return err
		}

		now := c.now()
		total := decimal.Zero
		items := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			subtotal := line.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
			total = total.Add(subtotal)
			items = append(items, models.OrderItem{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Price:     line.Price,
				Subtotal:  subtotal,
			})
		}

		order = models.Order{
			UserID:          userID,
			OrderNumber:     orderNumber,
			TotalAmount:     total,
			Status:          models.OrderPending,
			PaymentStatus:   models.PaymentPending,
			ShippingAddress: shippingAddress,
			Items:           items,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for _, line := range lines {
			res := tx.Model(&models.Product{}).
				Where("id = ? AND stock_quantity >= ?", line.ProductID, line.Quantity).
				Updates(map[string]any{
					"stock_quantity": gorm.Expr("stock_quantity - ?", line.Quantity),
					"updated_at":     now,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to decrement stock of product %d: %w", line.ProductID, res.Error)
			}
			if res.RowsAffected == 0 {
				return apperr.Conflict("insufficient stock for product '%s'", line.Product.Name)
			}
		}

		if err := tx.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
		if err := tx.Model(&models.Cart{}).Where("id = ?", cart.ID).Update("updated_at", now).Error; err != nil {
			return fmt.Errorf("failed to update cart timestamp: %w", err)
		}

		order, err = loadOrder(tx, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	traceId := ctxmanage.TraceID(ctx)
	slog.Info("order created", slog.String(logkey.TraceID, traceId),
		slog.Uint64(logkey.OrderID, uint64(order.ID)), slog.String(logkey.OrderNumber, order.OrderNumber),
		slog.Uint64(logkey.UserID, uint64(userID)), slog.String("TotalAmount", order.TotalAmount.StringFixed(2)))

	c.afterPlaced(ctx, order)
	resp := toOrderResponse(order)
	return &resp, nil
}

// UpdateStatus overwrites the status of any order. With strict transitions enabled, moves
// outside the transition table fail with a conflict.
func (c *Conf) UpdateStatus(ctx context.Context, orderID uint, status string) (*OrderResponse, error) {
	next := models.OrderStatus(status)
	if !next.Valid() {
		return nil, apperr.Invalid("invalid order status %q", status)
	}

	var order models.Order
	err := c.withTx(ctx, func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("order not found")
		}
		if err != nil {
			return fmt.Errorf("failed to query order: %w", err)
		}
		if c.strict && !CanTransition(order.Status, next) {
			return apperr.Conflict("cannot change order status from %s to %s", order.Status, next)
		}

		err = tx.Model(&models.Order{}).Where("id = ?", orderID).
			Updates(map[string]any{"status": string(next), "updated_at": c.now()}).Error
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		order, err = loadOrder(tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("order status updated", slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
		slog.Uint64(logkey.OrderID, uint64(orderID)), slog.String(logkey.Status, string(next)))
	resp := toOrderResponse(order)
	return &resp, nil
}

// GetOrder returns one of the user's orders.
func (c *Conf) GetOrder(ctx context.Context, userID, orderID uint) (*OrderResponse, error) {
	var order models.Order
	err := withItems(c.db.WithContext(ctx)).Where("id = ? AND user_id = ?", orderID, userID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	resp := toOrderResponse(order)
	return &resp, nil
}

// ListUserOrders returns the user's orders, newest first.
func (c *Conf) ListUserOrders(ctx context.Context, userID uint) ([]OrderResponse, error) {
	return list(c.db.WithContext(ctx).Where("user_id = ?", userID))
}

// ListAllOrders returns every order, newest first.
func (c *Conf) ListAllOrders(ctx context.Context) ([]OrderResponse, error) {
	return list(c.db.WithContext(ctx))
}

func list(q *gorm.DB) ([]OrderResponse, error) {
	var orders []models.Order
	if err := withItems(q).Order("created_at DESC").Order("id DESC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out, nil
}

// uniqueOrderNumber draws ORD-<yyyyMMddHHmmss>-<4 digits> numbers until one is unused.
// The retry is unbounded; the unique index on order_number backs it up.
func (c *Conf) uniqueOrderNumber(tx *gorm.DB) (string, error) {
	stamp := c.now().UTC().Format("20060102150405")
	for {
		candidate := fmt.Sprintf("ORD-%s-%04d", stamp, c.suffix())
		var taken int64
		if err := tx.Model(&models.Order{}).Where("order_number = ?", candidate).Count(&taken).Error; err != nil {
			return "", fmt.Errorf("failed to check order number: %w", err)
		}
		if taken == 0 {
			return candidate, nil
		}
	}
}

func (c *Conf) afterPlaced(ctx context.Context, order models.Order) {
	ids := make([]uint, 0, len(order.Items))
	lines := make([]kafka.OrderLine, 0, len(order.Items))
	for _, it := range order.Items {
		ids = append(ids, it.ProductID)
		lines = append(lines, kafka.OrderLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if c.products != nil {
		c.products.InvalidateProducts(ctx, ids...)
	}
	if c.publisher == nil {
		return
	}
	event := kafka.OrderPlacedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Items:       lines,
		CreatedAt:   order.CreatedAt,
	}
	// The order is committed; the event gets its own deadline and outlives the request.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.publishTimeout)
	defer cancel()
	if err := c.publisher.Publish(pubCtx, kafka.TopicOrderPlaced, order.OrderNumber, event); err != nil {
		slog.Error("failed to publish order placed event", slog.String(logkey.TraceID, ctxmanage.TraceID(ctx)),
			slog.String(logkey.OrderNumber, order.OrderNumber), slog.String(logkey.ERROR, err.Error()))
	}
}

func withItems(q *gorm.DB) *gorm.DB {
	return q.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("order_items.id") }).
		Preload("Items.Product")
}

func loadOrder(tx *gorm.DB, id uint) (models.Order, error) {
	var order models.Order
	if err := withItems(tx).First(&order, id).Error; err != nil {
		return models.Order{}, fmt.Errorf("failed to load order %d: %w", id, err)
	}
	return order, nil
}

func insufficientStock(name string, available, requested int) error {
	return apperr.Conflict("insufficient stock for product '%s'. Available: %d, Requested: %d", name, available, requested)
}

func (c *Conf) withTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.db.WithContext(ctx).Transaction(fn)
}
