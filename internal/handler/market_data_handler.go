package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/model"
)

// CandleLoader loads candle series
type CandleLoader interface {
	GetCandles(ctx context.Context, q model.CandleQuery) ([]model.Candle, error)
}

// MarketDataHandler handles market data HTTP requests
type MarketDataHandler struct {
	marketDataService CandleLoader
	logger            *zap.Logger
}

// NewMarketDataHandler creates a new market data handler
func NewMarketDataHandler(marketDataService CandleLoader, logger *zap.Logger) *MarketDataHandler {
	return &MarketDataHandler{
		marketDataService: marketDataService,
		logger:            logger,
	}
}

// GetCandles returns the candle series selected by the query string
func (h *MarketDataHandler) GetCandles(c *gin.Context) {
	var query model.CandleQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	candles, err := h.marketDataService.GetCandles(c.Request.Context(), query)
	if err != nil {
		respondError(c, h.logger, "Failed to get candles", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":   query.Symbol,
		"interval": query.Interval,
		"count":    len(candles),
		"candles":  candles,
	})
}
