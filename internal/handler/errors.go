package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/repository"
	"github.com/yourorg/strategy-optimizer/internal/service"
)

// respondError maps service errors to HTTP status codes
func respondError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, service.ErrNoCandles):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		logger.Error(msg, zap.Error(err))
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
