package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"storefront-service/internal/models"
)

// OrderItem is the display projection of one purchased line.
type OrderItem struct {
	ID          uint            `json:"id"`
	ProductID   uint            `json:"product_id"`
	ProductName string          `json:"product_name"`
	ImageURL    string          `json:"product_image_url"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type OrderResponse struct {
	ID              uint                 `json:"id"`
	UserID          uint                 `json:"user_id"`
	OrderNumber     string               `json:"order_number"`
	OrderDate       time.Time            `json:"order_date"`
	TotalAmount     decimal.Decimal      `json:"total_amount"`
	Status          models.OrderStatus   `json:"status"`
	PaymentStatus   models.PaymentStatus `json:"payment_status"`
	PaymentIntentID *string              `json:"payment_intent_id,omitempty"`
	ShippingAddress string               `json:"shipping_address"`
	Items           []OrderItem          `json:"items"`
}

func toOrderResponse(o models.Order) OrderResponse {
	resp := OrderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		OrderNumber:     o.OrderNumber,
		OrderDate:       o.CreatedAt,
		TotalAmount:     o.TotalAmount,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		PaymentIntentID: o.PaymentIntentID,
		ShippingAddress: o.ShippingAddress,
		Items:           make([]OrderItem, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		item := OrderItem{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
			Subtotal:  it.Subtotal,
		}
		if it.Product != nil {
			item.ProductName = it.Product.Name
			item.ImageURL = it.Product.ImageURL
		}
		resp.Items = append(resp.Items, item)
	}
	return resp
}

var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderPending:    {models.OrderProcessing, models.OrderCancelled},
	models.OrderProcessing: {models.OrderShipped, models.OrderCancelled},
	models.OrderShipped:    {models.OrderDelivered},
}

// CanTransition reports whether an order may move from one status to another.
// Delivered and Cancelled are terminal; rewriting the current status is always allowed.
func CanTransition(from, to models.OrderStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
