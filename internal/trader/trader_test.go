package trader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/strategy-optimizer/internal/model"
	"github.com/yourorg/strategy-optimizer/internal/strategy"
)

func liveConfig(t *testing.T, variant string) LiveConfig {
	t.Helper()
	v, err := strategy.Lookup(variant)
	require.NoError(t, err)
	return LiveConfig{
		Symbol:             "BTCUSDT",
		Parameters:         model.Parameters{RSIPeriod: 14, UpperLevel: 70, LowerLevel: 30, Leverage: 3},
		Variant:            v,
		OrderAmountPercent: 100,
	}
}

func TestDecide(t *testing.T) {
	cfg := liveConfig(t, "two-sided")
	assert.Equal(t, strategy.SignalOpenLong, Decide(cfg, model.PositionNone, 75, 0, 100))
	assert.Equal(t, strategy.SignalLongToShort, Decide(cfg, model.PositionLong, 25, 100, 90))
	assert.Equal(t, strategy.SignalNone, Decide(cfg, model.PositionShort, 50, 100, 90))

	gated := liveConfig(t, "flat-profit-gated")
	assert.Equal(t, strategy.SignalNone, Decide(gated, model.PositionLong, 25, 100, 110), "in profit, exit gated")
	assert.Equal(t, strategy.SignalCloseLong, Decide(gated, model.PositionLong, 25, 100, 90))
}

func TestPlan(t *testing.T) {
	assert.Equal(t, []Action{{ActionClose, SideSell}, {ActionOpen, SideSell}}, Plan(strategy.SignalLongToShort))
	assert.Equal(t, []Action{{ActionClose, SideBuy}, {ActionOpen, SideBuy}}, Plan(strategy.SignalShortToLong))
	assert.Equal(t, []Action{{ActionOpen, SideBuy}}, Plan(strategy.SignalOpenLong))
	assert.Equal(t, []Action{{ActionClose, SideBuy}}, Plan(strategy.SignalCloseShort))
	assert.Nil(t, Plan(strategy.SignalNone))
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		exchange, target model.PositionType
		want             []Action
	}{
		{model.PositionNone, model.PositionLong, []Action{{ActionOpen, SideBuy}}},
		{model.PositionNone, model.PositionShort, []Action{{ActionOpen, SideSell}}},
		{model.PositionLong, model.PositionShort, []Action{{ActionClose, SideSell}, {ActionOpen, SideSell}}},
		{model.PositionShort, model.PositionLong, []Action{{ActionClose, SideBuy}, {ActionOpen, SideBuy}}},
		{model.PositionLong, model.PositionNone, []Action{{ActionClose, SideSell}}},
		{model.PositionShort, model.PositionNone, []Action{{ActionClose, SideBuy}}},
		{model.PositionLong, model.PositionLong, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Reconcile(tt.exchange, tt.target), "%s -> %s", tt.exchange, tt.target)
	}
}

func TestOrderQuantity(t *testing.T) {
	// 1000 × 3 / 27000 = 0.111111... → 0.111
	qty, err := OrderQuantity(1000, 3, 27000, 100, "0.001")
	require.NoError(t, err)
	assert.Equal(t, "0.111", qty.String())

	qty, err = OrderQuantity(1000, 3, 27000, 50, "0.001")
	require.NoError(t, err)
	assert.Equal(t, "0.055", qty.String())

	qty, err = OrderQuantity(95, 1, 10, 100, "1")
	require.NoError(t, err)
	assert.Equal(t, "9", qty.String())

	_, err = OrderQuantity(1000, 0, 27000, 100, "0.001")
	assert.ErrorIs(t, err, ErrInvalidQuantityInput)
	_, err = OrderQuantity(1000, 1, 27000, 100, "abc")
	assert.ErrorIs(t, err, ErrInvalidQuantityInput)
	_, err = OrderQuantity(1000, 1, 27000, 101, "0.001")
	assert.ErrorIs(t, err, ErrInvalidQuantityInput)
}

func TestQuantityLadder(t *testing.T) {
	ladder, err := QuantityLadder(100, 1, 10, 100, "1")
	require.NoError(t, err)
	require.Len(t, ladder, 91)
	assert.Equal(t, "10", ladder[0].String())
	assert.Equal(t, "9", ladder[1].String())
	assert.Equal(t, "1", ladder[len(ladder)-1].String())
}

func TestLiveConfigOrderLadder(t *testing.T) {
	cfg := liveConfig(t, "two-sided")

	ladder, err := cfg.OrderLadder(1000, 27000, "0.001")
	require.NoError(t, err)
	require.NotEmpty(t, ladder)
	assert.Equal(t, "0.111", ladder[0].String())

	cfg.OrderAmountPercent = 50
	ladder, err = cfg.OrderLadder(1000, 27000, "0.001")
	require.NoError(t, err)
	assert.Equal(t, "0.055", ladder[0].String())

	cfg.OrderAmountPercent = 0
	_, err = cfg.OrderLadder(1000, 27000, "0.001")
	assert.ErrorIs(t, err, ErrInvalidQuantityInput)
	assert.Contains(t, err.Error(), "BTCUSDT")
}
