package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"encore/internal/models"
)

// Stock handlers

// CreateStock - POST /api/stock
// Registers a new ledger with its opening quantity.
func (h *Handlers) CreateStock(c *gin.Context) {
	var req models.CreateLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ledger, err := h.services.Stock.CreateLedger(c.Request.Context(), &req)
	if err != nil {
		slog.Error("Failed to create stock ledger", "tier_id", req.TierID, "error", err)
		respondError(c, err)
		return
	}

	if h.redisClient != nil {
		h.redisClient.InvalidateStockList(c.Request.Context(), req.EventID)
	}

	c.JSON(http.StatusCreated, ledger)
}

// ListStock - GET /api/stock?event_id=...
// Availability is display-path only: responses come from a short-TTL Redis
// cache when possible, and a stale read never affects correctness because
// every hold re-checks the ledger under its row lock.
func (h *Handlers) ListStock(c *gin.Context) {
	eventID := c.Query("event_id")
	if eventID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_id is required"})
		return
	}

	if h.redisClient != nil {
		rawJSON, err := h.redisClient.GetStockListRaw(c.Request.Context(), eventID)
		if err == nil {
			c.Data(http.StatusOK, "application/json", rawJSON)
			return
		}
	}

	response, err := h.services.Stock.List(c.Request.Context(), eventID)
	if err != nil {
		slog.Error("Failed to list stock", "event_id", eventID, "error", err)
		respondError(c, err)
		return
	}

	if h.redisClient != nil {
		h.redisClient.SetStockList(c.Request.Context(), eventID, response)
	}

	c.JSON(http.StatusOK, response)
}

// ListStockMovements - GET /api/stock/movements
func (h *Handlers) ListStockMovements(c *gin.Context) {
	key := models.TierKey{
		EventID:   c.Query("event_id"),
		SessionID: c.Query("session_id"),
		TierID:    c.Query("tier_id"),
	}
	if key.EventID == "" || key.SessionID == "" || key.TierID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_id, session_id and tier_id are required"})
		return
	}

	movements, err := h.services.Stock.Movements(c.Request.Context(), key)
	if err != nil {
		slog.Error("Failed to list stock movements", "key", key.String(), "error", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, movements)
}

// DeleteEventStock - DELETE /api/stock/events/:eventId
// Removes every ledger of a retired event along with its movement history.
func (h *Handlers) DeleteEventStock(c *gin.Context) {
	eventID := c.Param("eventId")

	deleted, err := h.services.Stock.DeleteEventLedgers(c.Request.Context(), eventID)
	if err != nil {
		slog.Error("Failed to delete event stock", "event_id", eventID, "error", err)
		respondError(c, err)
		return
	}

	if h.redisClient != nil {
		h.redisClient.InvalidateStockList(c.Request.Context(), eventID)
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
