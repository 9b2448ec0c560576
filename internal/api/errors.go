package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/hh-market/internal/logger"
	"github.com/spigell/hh-market/internal/market"
)

// writeError maps domain errors to HTTP responses.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		notFound *market.NotFoundError
		short    *market.InsufficientPointsError
	)

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error(), "entity": notFound.Entity})
	case errors.As(err, &short):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":     short.Error(),
			"fee":       short.Fee,
			"balance":   short.Balance,
			"shortfall": short.Shortfall(),
		})
	case errors.Is(err, market.ErrPaymentMismatch):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, market.ErrPaymentReused):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, market.ErrTryAgain):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, market.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, market.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		actor, _ := actorFrom(c)
		logger.WithActor(s.logger, actor.ID, string(actor.Role), c.GetString(ctxRequestID)).
			Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
