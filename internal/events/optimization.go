package events

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/yourorg/strategy-optimizer/internal/model"
)

// EventOptimizationCompleted is published after a sweep has been persisted
const EventOptimizationCompleted = "optimization.completed"

// OptimizationCompleted is the payload of EventOptimizationCompleted
type OptimizationCompleted struct {
	Event          string           `json:"event"`
	RunID          string           `json:"run_id"`
	Symbol         string           `json:"symbol"`
	Interval       string           `json:"interval"`
	Variant        string           `json:"variant"`
	Parameters     model.Parameters `json:"parameters"`
	Fund           float64          `json:"fund"`
	Evaluated      int              `json:"evaluated"`
	Invalidated    int              `json:"invalidated"`
	ReportLocation string           `json:"report_location,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

// NewOptimizationCompleted builds the event for a stored record
func NewOptimizationCompleted(rec model.OptimizationRecord) OptimizationCompleted {
	return OptimizationCompleted{
		Event:          EventOptimizationCompleted,
		RunID:          rec.RunID,
		Symbol:         rec.Symbol,
		Interval:       rec.Interval,
		Variant:        rec.Variant,
		Parameters:     rec.Parameters(),
		Fund:           rec.Fund,
		Evaluated:      rec.Evaluated,
		Invalidated:    rec.Invalidated,
		ReportLocation: rec.ReportLocation,
		OccurredAt:     time.Now().UTC(),
	}
}

// PublishOptimizationCompleted sends the event keyed by symbol so that all
// events of one symbol land on the same partition
func (p *Producer) PublishOptimizationCompleted(ctx context.Context, topic string, ev OptimizationCompleted) error {
	return p.Publish(ctx, topic, Message{
		Key:   ev.Symbol,
		Value: ev,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(ev.Event)},
		},
	})
}
