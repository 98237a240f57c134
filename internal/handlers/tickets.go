package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Tickets handlers

// ListTickets - GET /api/tickets?user_id=...&event_id=...
// Searches confirmed tickets in the search index.
func (h *Handlers) ListTickets(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	if page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be >= 1"})
		return
	}
	if pageSize < 1 || pageSize > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pageSize must be between 1 and 100"})
		return
	}

	tickets, err := h.tickets.Search(c.Request.Context(), userID, c.Query("event_id"), page, pageSize)
	if err != nil {
		slog.Error("Failed to search tickets", "user_id", userID, "error", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tickets)
}
