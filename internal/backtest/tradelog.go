package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/yourorg/strategy-optimizer/internal/model"
)

const (
	colorRed   = "\x1b[31m"
	colorGreen = "\x1b[32m"
	colorReset = "\x1b[0m"

	tradeTimeLayout = "2006-01-02 15:04:05"
)

// FormatTrade renders a closed trade as one human-readable line, green for
// trades that moved in the position's favour and red otherwise.
func FormatTrade(t model.Trade, loc *time.Location, color bool) string {
	if loc == nil {
		loc = time.Local
	}
	line := fmt.Sprintf("Fund: %.2f %s [%g ~ %g] [%s ~ %s] (%s)",
		t.Fund,
		t.PositionType,
		t.EntryPrice,
		t.ExitPrice,
		time.UnixMilli(t.EntryTime).In(loc).Format(tradeTimeLayout),
		time.UnixMilli(t.ExitTime).In(loc).Format(tradeTimeLayout),
		t.HoldingDuration(),
	)
	if !color {
		return line
	}
	if t.Profitable() {
		return colorGreen + line + colorReset
	}
	return colorRed + line + colorReset
}

// WriterHook returns a TradeHook printing every trade to w
func WriterHook(w io.Writer, loc *time.Location, color bool) TradeHook {
	return func(t model.Trade) {
		fmt.Fprintln(w, FormatTrade(t, loc, color))
	}
}

// Collect returns a TradeHook appending trades to dst
func Collect(dst *[]model.Trade) TradeHook {
	return func(t model.Trade) {
		*dst = append(*dst, t)
	}
}
