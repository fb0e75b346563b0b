package cart

import (
	"time"

	"github.com/shopspring/decimal"

	"storefront-service/internal/models"
)

type CartItem struct {
	ID            uint            `json:"id"`
	ProductID     uint            `json:"product_id"`
	ProductName   string          `json:"product_name"`
	ImageURL      string          `json:"product_image_url"`
	Quantity      int             `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	StockQuantity int             `json:"stock_quantity"`
}

type CartResponse struct {
	ID          uint            `json:"id"`
	UserID      uint            `json:"user_id"`
	Items       []CartItem      `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toCartResponse(c models.Cart) *CartResponse {
	resp := &CartResponse{
		ID:          c.ID,
		UserID:      c.UserID,
		Items:       make([]CartItem, 0, len(c.Items)),
		TotalAmount: decimal.Zero,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
	for _, ci := range c.Items {
		item := CartItem{
			ID:        ci.ID,
			ProductID: ci.ProductID,
			Quantity:  ci.Quantity,
			Price:     ci.Price,
			Subtotal:  ci.Price.Mul(decimal.NewFromInt(int64(ci.Quantity))),
		}
		if ci.Product != nil {
			item.ProductName = ci.Product.Name
			item.ImageURL = ci.Product.ImageURL
			item.StockQuantity = ci.Product.StockQuantity
		}
		resp.TotalAmount = resp.TotalAmount.Add(item.Subtotal)
		resp.Items = append(resp.Items, item)
	}
	return resp
}
