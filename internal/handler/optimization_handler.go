package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/model"
	"github.com/yourorg/strategy-optimizer/internal/service"
)

// Optimizer runs sweeps and serves their stored outcomes
type Optimizer interface {
	Optimize(ctx context.Context, req *service.OptimizationRequest) (*service.OptimizationReport, error)
	Latest(ctx context.Context, symbol, interval string) (*model.OptimizationRecord, error)
	LatestMany(ctx context.Context, symbols []string, interval string) ([]model.OptimizationRecord, error)
}

// OptimizationHandler handles optimization HTTP requests
type OptimizationHandler struct {
	optimizationService Optimizer
	defaultInterval     string
	logger              *zap.Logger
}

// NewOptimizationHandler creates a new optimization handler
func NewOptimizationHandler(optimizationService Optimizer, defaultInterval string, logger *zap.Logger) *OptimizationHandler {
	return &OptimizationHandler{
		optimizationService: optimizationService,
		defaultInterval:     defaultInterval,
		logger:              logger,
	}
}

// Optimize runs a sweep synchronously and returns the report
func (h *OptimizationHandler) Optimize(c *gin.Context) {
	var request service.OptimizationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.optimizationService.Optimize(c.Request.Context(), &request)
	if err != nil {
		respondError(c, h.logger, "Failed to run optimization", err)
		return
	}

	if !report.Best.Found {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "No parameter set survived the backtest",
			"report": report,
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetLatest returns the newest stored optimization of a symbol
func (h *OptimizationHandler) GetLatest(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	interval := c.DefaultQuery("interval", h.defaultInterval)

	rec, err := h.optimizationService.Latest(c.Request.Context(), symbol, interval)
	if err != nil {
		respondError(c, h.logger, "Failed to get optimization", err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// ListLatest returns the newest stored optimization of every symbol in the
// comma separated symbols query
func (h *OptimizationHandler) ListLatest(c *gin.Context) {
	symbols := strings.Split(c.Query("symbols"), ",")
	interval := c.DefaultQuery("interval", h.defaultInterval)

	records, err := h.optimizationService.LatestMany(c.Request.Context(), symbols, interval)
	if err != nil {
		respondError(c, h.logger, "Failed to list optimizations", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"interval":      interval,
		"count":         len(records),
		"optimizations": records,
	})
}

// TriggerOptimization starts a sweep in the background for schedulers
func (h *OptimizationHandler) TriggerOptimization(c *gin.Context) {
	var request service.OptimizationRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	go func() {
		if _, err := h.optimizationService.Optimize(context.Background(), &request); err != nil {
			h.logger.Error("Scheduled optimization failed",
				zap.Error(err),
				zap.String("symbol", request.Symbol),
				zap.String("interval", request.Interval))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Optimization queued for processing",
		"symbol":  request.Symbol,
	})
}
