package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"marketplace-app/internal/models"
)

// respondError maps the service error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var validation *models.ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": validation.Fields})
		return
	}

	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrPlanNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, models.ErrInvalidPaymentStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidOrderStatus),
		errors.Is(err, models.ErrCannotCancel),
		errors.Is(err, models.ErrCannotReview),
		errors.Is(err, models.ErrAlreadyReviewed),
		errors.Is(err, models.ErrCannotDowngrade):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrGateway):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func actor(c *gin.Context) (string, models.Role) {
	return c.GetString("userID"), models.Role(c.GetString("role"))
}
