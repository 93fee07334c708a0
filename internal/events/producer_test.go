package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/model"
)

func TestNewOptimizationCompleted(t *testing.T) {
	rec := model.OptimizationRecord{
		RunID:      "run-1",
		Symbol:     "BTCUSDT",
		Interval:   "1h",
		Variant:    "two-sided",
		RSIPeriod:  14,
		UpperLevel: 70,
		LowerLevel: 30,
		Leverage:   2,
		Fund:       123.4,
		Evaluated:  10,
	}

	ev := NewOptimizationCompleted(rec)
	assert.Equal(t, EventOptimizationCompleted, ev.Event)
	assert.Equal(t, rec.Parameters(), ev.Parameters)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"event":"optimization.completed"`)
	assert.Contains(t, string(raw), `"rsi_period":14`)
}

func TestPublishFailsWithoutBroker(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "test", zap.NewNop())
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := p.PublishOptimizationCompleted(ctx, "optimization-events", OptimizationCompleted{Symbol: "BTCUSDT"})
	assert.Error(t, err)
	assert.Same(t, p.getWriter("optimization-events"), p.getWriter("optimization-events"))
}
