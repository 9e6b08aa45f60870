package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "ragline"

// Metrics holds all ragline metric instruments.
type Metrics struct {
	TurnsStarted   metric.Int64Counter
	TurnsCompleted metric.Int64Counter
	TurnsFailed    metric.Int64Counter
	LLMCalls       metric.Int64Counter
	ToolCalls      metric.Int64Counter
	TurnDuration   metric.Float64Histogram
	TurnCost       metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TurnsStarted, err = meter.Int64Counter("ragline.turns.started",
		metric.WithDescription("Number of conversation turns started"))
	if err != nil {
		return nil, err
	}

	m.TurnsCompleted, err = meter.Int64Counter("ragline.turns.completed",
		metric.WithDescription("Number of conversation turns completed"))
	if err != nil {
		return nil, err
	}

	m.TurnsFailed, err = meter.Int64Counter("ragline.turns.failed",
		metric.WithDescription("Number of conversation turns failed"))
	if err != nil {
		return nil, err
	}

	m.LLMCalls, err = meter.Int64Counter("ragline.llm.calls",
		metric.WithDescription("Number of model calls"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("ragline.toolcalls",
		metric.WithDescription("Number of tool calls"))
	if err != nil {
		return nil, err
	}

	m.TurnDuration, err = meter.Float64Histogram("ragline.turn.duration_seconds",
		metric.WithDescription("Turn duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.TurnCost, err = meter.Float64Histogram("ragline.turn.cost_usd",
		metric.WithDescription("Turn cost in USD"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
