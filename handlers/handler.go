package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"storefront-service/internal/analytics"
	"storefront-service/internal/auth"
	"storefront-service/internal/cart"
	"storefront-service/internal/catalog"
	"storefront-service/internal/orders"
	"storefront-service/internal/payment"
	"storefront-service/internal/users"
	"storefront-service/middleware"
)

// Services groups the business services the HTTP layer delegates to.
type Services struct {
	Users     *users.Conf
	Catalog   *catalog.Conf
	Cart      *cart.Conf
	Orders    *orders.Conf
	Payment   *payment.Conf
	Analytics *analytics.Conf
}

func (s Services) validate() error {
	if s.Users == nil || s.Catalog == nil || s.Cart == nil || s.Orders == nil || s.Payment == nil || s.Analytics == nil {
		return errors.New("all services must be provided")
	}
	return nil
}

type Handler struct {
	s        Services
	validate *validator.Validate
}

func NewHandler(s Services) *Handler {
	return &Handler{
		s:        s,
		validate: validator.New(),
	}
}

// RateLimit configures the limiter guarding the authentication endpoints.
type RateLimit struct {
	Limiter   middleware.Limiter
	PerMinute int
}

func API(endpointPrefix, mode string, k *auth.Keys, rl RateLimit, s Services) (*gin.Engine, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	m, err := middleware.NewMid(k)
	if err != nil {
		return nil, err
	}
	if rl.Limiter == nil {
		rl.Limiter = middleware.NewMemoryLimiter(rl.PerMinute)
	}
	limit := middleware.RateLimiter(rl.Limiter, rl.PerMinute)

	h := NewHandler(s)
	r := gin.New()
	r.Use(middleware.Logger(), gin.Recovery())
	r.GET("/ping", healthCheck)

	v1 := r.Group(endpointPrefix)
	{
		v1.POST("/auth/register", limit, h.Register)
		v1.POST("/auth/login", limit, h.Login)

		v1.GET("/products", h.ListProducts)
		v1.GET("/products/:id", h.GetProduct)
		v1.GET("/categories", h.ListCategories)
		v1.GET("/categories/:id", h.GetCategory)

		v1.POST("/payment/webhook", h.Webhook)
	}

	private := r.Group(endpointPrefix)
	private.Use(m.Authentication())
	{
		private.POST("/products", m.Authorize(h.CreateProduct, auth.RoleAdmin))
		private.PUT("/products/:id", m.Authorize(h.UpdateProduct, auth.RoleAdmin))
		private.DELETE("/products/:id", m.Authorize(h.DeleteProduct, auth.RoleAdmin))
		private.POST("/categories", m.Authorize(h.CreateCategory, auth.RoleAdmin))
		private.DELETE("/categories/:id", m.Authorize(h.DeleteCategory, auth.RoleAdmin))

		private.GET("/cart", h.GetCart)
		private.POST("/cart/items", h.AddCartItem)
		private.PUT("/cart/items/:cartItemId", h.UpdateCartItem)
		private.DELETE("/cart/items/:cartItemId", h.RemoveCartItem)
		private.DELETE("/cart", h.ClearCart)

		private.POST("/orders", h.CreateOrder)
		private.GET("/orders", h.ListOrders)
		private.GET("/orders/:orderId", h.GetOrder)

		private.POST("/payment/create-intent", h.CreatePaymentIntent)

		admin := private.Group("/admin")
		admin.GET("/orders", m.Authorize(h.ListAllOrders, auth.RoleAdmin))
		admin.PUT("/orders/:orderId/status", m.Authorize(h.UpdateOrderStatus, auth.RoleAdmin))
		admin.GET("/analytics", m.Authorize(h.Analytics, auth.RoleAdmin))
	}
	return r, nil
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
