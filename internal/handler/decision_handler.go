package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/service"
)

// Decider plans live orders
type Decider interface {
	Decide(ctx context.Context, req *service.DecisionRequest) (*service.DecisionResponse, error)
}

// DecisionHandler handles live decision HTTP requests
type DecisionHandler struct {
	decisionService Decider
	logger          *zap.Logger
}

// NewDecisionHandler creates a new decision handler
func NewDecisionHandler(decisionService Decider, logger *zap.Logger) *DecisionHandler {
	return &DecisionHandler{
		decisionService: decisionService,
		logger:          logger,
	}
}

// Decide returns the order plan for the posted account state
func (h *DecisionHandler) Decide(c *gin.Context) {
	var request service.DecisionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.decisionService.Decide(c.Request.Context(), &request)
	if err != nil {
		respondError(c, h.logger, "Failed to decide", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
