// Package dbtest opens throwaway in-memory databases with the storefront schema for tests.
package dbtest

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storefront-service/internal/models"
)

// Open returns a migrated in-memory SQLite database that lives as long as the test.
// The pool is pinned to one connection so every query sees the same memory database.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?_pragma=foreign_keys(1)"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

func SeedUser(t testing.TB, db *gorm.DB, email, role string) models.User {
	t.Helper()
	u := models.User{FirstName: "Test", LastName: "User", Email: email, PasswordHash: "x", Role: role}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func SeedCategory(t testing.TB, db *gorm.DB, name string) models.Category {
	t.Helper()
	c := models.Category{Name: name, Description: name + " items"}
	require.NoError(t, db.Create(&c).Error)
	return c
}

func SeedProduct(t testing.TB, db *gorm.DB, categoryID uint, name, price string, stock int) models.Product {
	t.Helper()
	p := models.Product{
		Name:          name,
		Description:   name + " description",
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		ImageURL:      "https://img.example.com/" + name + ".png",
		CategoryID:    categoryID,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// SeedOrder inserts an order directly, bypassing placement, for read-path tests.
func SeedOrder(t testing.TB, db *gorm.DB, userID uint, number, total string, status models.OrderStatus,
	payment models.PaymentStatus, items ...models.OrderItem) models.Order {
	t.Helper()
	o := models.Order{
		UserID:          userID,
		OrderNumber:     number,
		TotalAmount:     decimal.RequireFromString(total),
		Status:          status,
		PaymentStatus:   payment,
		ShippingAddress: "1 Test Street",
		Items:           items,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, db.Create(&o).Error)
	return o
}

func Product(t testing.TB, db *gorm.DB, id uint) models.Product {
	t.Helper()
	var p models.Product
	require.NoError(t, db.First(&p, id).Error)
	return p
}

func Count(t testing.TB, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}
