package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"encore/internal/models"
)

// Orders handlers

// CreateOrder - POST /api/orders
// Creates an order with one inventory hold per line. Creation is atomic: any
// line failing price resolution or stock rejects the whole order.
func (h *Handlers) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.services.Orders.Create(c.Request.Context(), &req)
	if err != nil {
		slog.Error("Failed to create order", "error", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.CreateOrderResponse{
		ID:    order.ID,
		Total: order.Total,
	})
}

// GetOrder - GET /api/orders/:id
func (h *Handlers) GetOrder(c *gin.Context) {
	order, err := h.services.Orders.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ListOrders - GET /api/orders?user_id=...
func (h *Handlers) ListOrders(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	orders, err := h.services.Orders.ListByUser(c.Request.Context(), userID)
	if err != nil {
		slog.Error("Failed to list orders", "user_id", userID, "error", err)
		respondError(c, err)
		return
	}

	response := make([]models.ListOrdersResponseItem, 0, len(orders))
	for _, order := range orders {
		response = append(response, models.ListOrdersResponseItem{
			ID:        order.ID,
			Status:    order.Status,
			Total:     order.Total,
			CreatedAt: order.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, response)
}

// CancelOrder - PATCH /api/orders/cancel
func (h *Handlers) CancelOrder(c *gin.Context) {
	var req models.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.services.Orders.Cancel(c.Request.Context(), req.OrderID, req.Force); err != nil {
		slog.Error("Failed to cancel order", "order_id", req.OrderID, "error", err)
		respondError(c, err)
		return
	}

	c.Status(http.StatusOK)
}
