package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"encore/internal/cache"
	apperrors "encore/internal/errors"
	"encore/internal/search"
	"encore/internal/service"
)

type Handlers struct {
	services    *service.Services
	redisClient *cache.Client
	tickets     *search.TicketIndex
}

func NewHandlers(services *service.Services, redisClient *cache.Client, tickets *search.TicketIndex) *Handlers {
	return &Handlers{
		services:    services,
		redisClient: redisClient,
		tickets:     tickets,
	}
}

// respondError maps the error taxonomy onto HTTP statuses. Unclassified
// errors are internal and their details stay out of the response body.
func respondError(c *gin.Context, err error) {
	switch apperrors.Classify(err) {
	case apperrors.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperrors.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperrors.KindConflict:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case apperrors.KindInsufficientStock:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case apperrors.KindExternal:
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream service unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
