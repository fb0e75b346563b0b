package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type createOrderRequest struct {
	ShippingAddress string `json:"shipping_address" validate:"required,max=500"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) CreateOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req createOrderRequest
	if !h.bindJSON(c, &req) {
		return
	}
	order, err := h.s.Orders.CreateOrderFromCart(c.Request.Context(), userID, req.ShippingAddress)
	if err != nil {
		respondError(c, err, "an error occurred while creating the order")
		return
	}
	c.Header("Location", c.FullPath()+"/"+strconv.FormatUint(uint64(order.ID), 10))
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) ListOrders(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orders, err := h.s.Orders.ListUserOrders(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "an error occurred while retrieving orders")
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) GetOrder(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, ok := idParam(c, "orderId")
	if !ok {
		return
	}
	order, err := h.s.Orders.GetOrder(c.Request.Context(), userID, orderID)
	if err != nil {
		respondError(c, err, "an error occurred while retrieving the order")
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) ListAllOrders(c *gin.Context) {
	orders, err := h.s.Orders.ListAllOrders(c.Request.Context())
	if err != nil {
		respondError(c, err, "an error occurred while retrieving orders")
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	orderID, ok := idParam(c, "orderId")
	if !ok {
		return
	}
	var req updateStatusRequest
	if !h.bindJSON(c, &req) {
		return
	}
	order, err := h.s.Orders.UpdateStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		respondError(c, err, "an error occurred while updating the order status")
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) Analytics(c *gin.Context) {
	summary, err := h.s.Analytics.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err, "an error occurred while retrieving analytics")
		return
	}
	c.JSON(http.StatusOK, summary)
}
