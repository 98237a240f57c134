package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"encore/internal/models"
)

// Payments handlers

// ProcessPayment - POST /api/payments/process
// Registers the charge with the provider. Normally driven by the
// order.created consumer; exposed over HTTP for manual retries.
func (h *Handlers) ProcessPayment(c *gin.Context) {
	var req models.ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment, err := h.services.Payments.Process(c.Request.Context(), &req)
	if err != nil {
		slog.Error("Failed to process payment", "order_id", req.OrderID, "error", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// CapturePayment - POST /api/payments/capture
// Provider callback confirming the charge went through.
func (h *Handlers) CapturePayment(c *gin.Context) {
	var req models.CapturePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment, err := h.services.Payments.Capture(c.Request.Context(), req.ProviderRef)
	if err != nil {
		slog.Error("Failed to capture payment", "provider_ref", req.ProviderRef, "error", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// CancelPayment - PATCH /api/payments/cancel
func (h *Handlers) CancelPayment(c *gin.Context) {
	var req models.CancelPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment, err := h.services.Payments.Cancel(c.Request.Context(), req.PaymentID, req.Reason)
	if err != nil {
		slog.Error("Failed to cancel payment", "payment_id", req.PaymentID, "error", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// GetPaymentByOrder - GET /api/payments/:orderId
func (h *Handlers) GetPaymentByOrder(c *gin.Context) {
	payment, err := h.services.Payments.GetByOrderID(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// RegisterRefund - POST /api/refunds
// Records the refund decision; the actual provider refund happens
// asynchronously through the refund.decision_registered consumer.
func (h *Handlers) RegisterRefund(c *gin.Context) {
	var req models.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.services.Payments.RegisterRefundDecision(c.Request.Context(), req.PaymentID, req.Reason); err != nil {
		slog.Error("Failed to register refund", "payment_id", req.PaymentID, "error", err)
		respondError(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}
