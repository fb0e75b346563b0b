// Package models holds the gorm entities shared by every storefront service.
package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "Pending"
	OrderProcessing OrderStatus = "Processing"
	OrderShipped    OrderStatus = "Shipped"
	OrderDelivered  OrderStatus = "Delivered"
	OrderCancelled  OrderStatus = "Cancelled"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled}

func (s OrderStatus) Valid() bool {
	for _, v := range OrderStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "Pending"
	PaymentPaid     PaymentStatus = "Paid"
	PaymentFailed   PaymentStatus = "Failed"
	PaymentRefunded PaymentStatus = "Refunded"
)

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	FirstName    string    `gorm:"size:100;not null" json:"first_name"`
	LastName     string    `gorm:"size:100;not null" json:"last_name"`
	Email        string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         string    `gorm:"size:50;not null;default:Customer" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Category struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"size:500" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Product struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Name          string          `gorm:"size:200;not null" json:"name"`
	Description   string          `gorm:"size:2000" json:"description"`
	Price         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"price"`
	StockQuantity int             `gorm:"not null;default:0" json:"stock_quantity"`
	ImageURL      string          `gorm:"column:image_url;size:500" json:"image_url"`
	CategoryID    uint            `gorm:"not null;index" json:"category_id"`
	Category      *Category       `gorm:"constraint:OnDelete:RESTRICT" json:"category,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Cart exists at most once per user and survives being emptied.
type Cart struct {
	ID        uint       `gorm:"primaryKey"`
	UserID    uint       `gorm:"not null;uniqueIndex"`
	Items     []CartItem `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartItem snapshots the product price at the moment the line was first added.
type CartItem struct {
	ID        uint            `gorm:"primaryKey"`
	CartID    uint            `gorm:"not null;uniqueIndex:idx_cart_items_cart_product"`
	ProductID uint            `gorm:"not null;uniqueIndex:idx_cart_items_cart_product"`
	Product   *Product        `gorm:"constraint:OnDelete:RESTRICT"`
	Quantity  int             `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Order struct {
	ID              uint            `gorm:"primaryKey"`
	UserID          uint            `gorm:"not null;index"`
	OrderNumber     string          `gorm:"size:100;not null;uniqueIndex"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Status          OrderStatus     `gorm:"size:50;not null;default:Pending"`
	PaymentStatus   PaymentStatus   `gorm:"size:50;not null;default:Pending"`
	PaymentIntentID *string         `gorm:"size:255;index"`
	ShippingAddress string          `gorm:"size:500;not null"`
	Items           []OrderItem     `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is written once at order placement and never recomputed.
type OrderItem struct {
	ID        uint            `gorm:"primaryKey"`
	OrderID   uint            `gorm:"not null;index"`
	ProductID uint            `gorm:"not null;index"`
	Product   *Product        `gorm:"constraint:OnDelete:RESTRICT"`
	Quantity  int             `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(18,2);not null"`
}

// All returns every entity in dependency order.
func All() []any {
	return []any{&User{}, &Category{}, &Product{}, &Cart{}, &CartItem{}, &Order{}, &OrderItem{}}
}

// AutoMigrate creates the schema from the entity definitions. Production databases are
// migrated with the SQL files under internal/stores/postgres/migrations instead.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(All()...)
}
