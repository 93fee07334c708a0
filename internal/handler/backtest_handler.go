package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/service"
)

// Backtester runs single simulations
type Backtester interface {
	RunBacktest(ctx context.Context, req *service.BacktestRequest) (*service.BacktestResponse, error)
}

// BacktestHandler handles backtest HTTP requests
type BacktestHandler struct {
	backtestService Backtester
	logger          *zap.Logger
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(backtestService Backtester, logger *zap.Logger) *BacktestHandler {
	return &BacktestHandler{
		backtestService: backtestService,
		logger:          logger,
	}
}

// RunBacktest simulates the posted parameter set and returns its trades
func (h *BacktestHandler) RunBacktest(c *gin.Context) {
	var request service.BacktestRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.backtestService.RunBacktest(c.Request.Context(), &request)
	if err != nil {
		respondError(c, h.logger, "Failed to run backtest", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
