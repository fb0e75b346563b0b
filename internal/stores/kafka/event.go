package kafka

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicOrderPlaced = `storefront.order-placed`
	TopicOrderPaid   = `storefront.order-paid`
)

var Topics = []string{TopicOrderPlaced, TopicOrderPaid}

// Representation of the events other services consume from kafka

type OrderPlacedEvent struct {
	OrderID     uint            `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      uint            `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderLine     `json:"items"`
	CreatedAt   time.Time       `json:"created_at"`
}

type OrderLine struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type OrderPaidEvent struct {
	OrderID         uint      `json:"order_id"`
	OrderNumber     string    `json:"order_number"`
	PaymentIntentID string    `json:"payment_intent_id"`
	CreatedAt       time.Time `json:"created_at"`
}
