// Package metrics records engine counters through the global OpenTelemetry
// meter provider. Without an SDK wired in the instruments are no-ops, so the
// engine can always record unconditionally.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/ArielHorwitz/botroyale"

// Recorder holds the engine's instruments.
type Recorder struct {
	steps        metric.Int64Counter
	illegal      metric.Int64Counter
	faults       metric.Int64Counter
	deaths       metric.Int64Counter
	battles      metric.Int64Counter
	pollDuration metric.Float64Histogram
}

// NewRecorder creates the engine instruments on the global meter.
func NewRecorder() (*Recorder, error) {
	meter := otel.Meter(meterName)
	r := &Recorder{}
	var err error
	if r.steps, err = meter.Int64Counter("battle.steps",
		metric.WithDescription("Steps applied across all battles")); err != nil {
		return nil, err
	}
	if r.illegal, err = meter.Int64Counter("battle.illegal_actions",
		metric.WithDescription("Actions rejected as illegal")); err != nil {
		return nil, err
	}
	if r.faults, err = meter.Int64Counter("battle.agent_faults",
		metric.WithDescription("Agent faults converted to unit deaths")); err != nil {
		return nil, err
	}
	if r.deaths, err = meter.Int64Counter("battle.deaths",
		metric.WithDescription("Unit deaths from any cause")); err != nil {
		return nil, err
	}
	if r.battles, err = meter.Int64Counter("battle.completed",
		metric.WithDescription("Battles played to the end")); err != nil {
		return nil, err
	}
	if r.pollDuration, err = meter.Float64Histogram("battle.poll_duration_seconds",
		metric.WithDescription("Wall-clock duration of agent decision calls"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return r, nil
}

// Step counts one applied step and its legality.
func (r *Recorder) Step(ctx context.Context, legal bool) {
	r.steps.Add(ctx, 1)
	if !legal {
		r.illegal.Add(ctx, 1)
	}
}

// Fault counts one agent fault, labeled by kind.
func (r *Recorder) Fault(ctx context.Context, kind string) {
	r.faults.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// Deaths counts units that died on one step.
func (r *Recorder) Deaths(ctx context.Context, count int) {
	if count > 0 {
		r.deaths.Add(ctx, int64(count))
	}
}

// BattleCompleted counts a finished battle and whether it produced a winner.
func (r *Recorder) BattleCompleted(ctx context.Context, hasWinner bool) {
	r.battles.Add(ctx, 1, metric.WithAttributes(attribute.Bool("winner", hasWinner)))
}

// Poll records the duration of one agent decision call.
func (r *Recorder) Poll(ctx context.Context, seconds float64) {
	r.pollDuration.Record(ctx, seconds)
}
