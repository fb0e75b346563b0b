// Package analytics aggregates store-wide sales figures for administrators.
package analytics

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"storefront-service/internal/auth"
	"storefront-service/internal/models"
)

const topProductsLimit = 10

type TopProduct struct {
	ProductID    uint            `json:"product_id"`
	ProductName  string          `json:"product_name"`
	TotalSold    int64           `json:"total_sold"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

type Summary struct {
	TotalRevenue   decimal.Decimal  `json:"total_revenue"`
	TotalOrders    int64            `json:"total_orders"`
	OrdersByStatus map[string]int64 `json:"orders_by_status"`
	TopProducts    []TopProduct     `json:"top_products"`
	TotalCustomers int64            `json:"total_customers"`
	TotalProducts  int64            `json:"total_products"`
}

type Conf struct {
	db *gorm.DB
}

func NewConf(db *gorm.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

// Summary computes the dashboard figures from the current store contents.
func (c *Conf) Summary(ctx context.Context) (*Summary, error) {
	db := c.db.WithContext(ctx)
	out := &Summary{OrdersByStatus: map[string]int64{}, TopProducts: []TopProduct{}}

	err := db.Model(&models.Order{}).
		Select("COALESCE(SUM(total_amount), 0)").
		Where("payment_status = ?", string(models.PaymentPaid)).
		Row().Scan(&out.TotalRevenue)
	if err != nil {
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}

	if err := db.Model(&models.Order{}).Count(&out.TotalOrders).Error; err != nil {
		return nil, fmt.Errorf("failed to count orders: %w", err)
	}

	var byStatus []struct {
		Status string
		Count  int64
	}
	err = db.Model(&models.Order{}).Select("status, COUNT(*) AS count").Group("status").Scan(&byStatus).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count orders by status: %w", err)
	}
	for _, row := range byStatus {
		out.OrdersByStatus[row.Status] = row.Count
	}

	// Ties on quantity go to the product whose first sale came earliest.
	err = db.Table("order_items").
		Select("order_items.product_id AS product_id, products.name AS product_name, " +
			"SUM(order_items.quantity) AS total_sold, SUM(order_items.subtotal) AS total_revenue").
		Joins("JOIN products ON products.id = order_items.product_id").
		Group("order_items.product_id, products.name").
		Order("total_sold DESC, MIN(order_items.id) ASC").
		Limit(topProductsLimit).
		Scan(&out.TopProducts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to rank products: %w", err)
	}

	if err := db.Model(&models.User{}).Where("role = ?", auth.RoleCustomer).Count(&out.TotalCustomers).Error; err != nil {
		return nil, fmt.Errorf("failed to count customers: %w", err)
	}
	if err := db.Model(&models.Product{}).Count(&out.TotalProducts).Error; err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	return out, nil
}
