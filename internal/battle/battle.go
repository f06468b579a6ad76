// Package battle orchestrates one battle from initial state to verdict. It
// owns the ordered history of states and step records, drives the scheduler
// (poll the agent in turn through the fault boundary, validate, apply,
// advance), and exposes the random-access replay surface.
package battle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ArielHorwitz/botroyale/internal/boundary"
	"github.com/ArielHorwitz/botroyale/internal/metrics"
	"github.com/ArielHorwitz/botroyale/internal/model"
	"github.com/ArielHorwitz/botroyale/internal/storage"
	"github.com/ArielHorwitz/botroyale/pkg/action"
	"github.com/ArielHorwitz/botroyale/pkg/bot"
	"github.com/ArielHorwitz/botroyale/pkg/state"
)

// Usage errors.
var (
	ErrBattleOver  = errors.New("battle is over")
	ErrNotTerminal = errors.New("battle is not over yet")
	ErrOutOfRange  = errors.New("step index out of range")
)

// Config describes one battle to play.
type Config struct {
	// Setup is the map and roster input.
	Setup state.Setup
	// Bots produce the agent for each unit; one factory per spawn.
	Bots []bot.Factory
	// MapName labels records and logs.
	MapName string
	// CallBudget and TurnBudget bound agent blocking time. Zero disables.
	CallBudget time.Duration
	TurnBudget time.Duration
}

// Dependencies are the battle's collaborators. Logger defaults to
// slog.Default, Metrics to a fresh recorder, Storage to none.
type Dependencies struct {
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	Storage storage.Backend
}

// StepRecord is the diagnostic trail of one step: who acted, what they did,
// whether it was legal, and the fault that killed them if one did.
type StepRecord struct {
	Index   int
	Round   int
	Actor   int
	Action  action.Action
	Legal   bool
	Fault   string
	Elapsed time.Duration
}

// Battle plays one battle and retains every state it produces.
type Battle struct {
	id    uuid.UUID
	bots  []bot.Bot
	guard *boundary.Guard
	timer *boundary.TurnTimer

	history []*state.State
	records []StepRecord

	logger    *slog.Logger
	metrics   *metrics.Recorder
	store     storage.Backend
	record    *model.Battle
	units     []*model.Unit
	lastRound int
	lastUnit  int

	started time.Time
	ended   bool
}

// New constructs a battle: builds the initial state, binds a bot to every
// unit, calls their Setup hooks, and opens the storage record. The returned
// battle is at the start of round 1.
func New(cfg Config, deps Dependencies) (*Battle, error) {
	if len(cfg.Bots) != len(cfg.Setup.Spawns) {
		return nil, fmt.Errorf("%d bots for %d spawns", len(cfg.Bots), len(cfg.Setup.Spawns))
	}
	initial, err := state.New(cfg.Setup)
	if err != nil {
		return nil, fmt.Errorf("invalid setup: %w", err)
	}
	first, err := initial.IncrementRound()
	if err != nil {
		return nil, err
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics, err = metrics.NewRecorder()
		if err != nil {
			return nil, fmt.Errorf("creating metrics recorder: %w", err)
		}
	}

	b := &Battle{
		id: uuid.New(),
		guard: &boundary.Guard{
			CallBudget: cfg.CallBudget,
			TurnBudget: cfg.TurnBudget,
		},
		timer:    boundary.NewTurnTimer(),
		history:  []*state.State{first},
		metrics:  deps.Metrics,
		store:    deps.Storage,
		lastUnit: -1,
		started:  time.Now(),
	}
	b.logger = deps.Logger.With("battle", b.id.String())

	b.bots = make([]bot.Bot, len(cfg.Bots))
	units := make([]*model.Unit, len(cfg.Bots))
	for uid, factory := range cfg.Bots {
		b.bots[uid] = factory(uid)
		b.bots[uid].Setup(initial.Clone())
		units[uid] = &model.Unit{
			UnitID:    uid,
			BotName:   b.bots[uid].Name(),
			SpawnQ:    cfg.Setup.Spawns[uid].Q,
			SpawnR:    cfg.Setup.Spawns[uid].R,
			DeathStep: -1,
		}
	}

	b.record = &model.Battle{
		BattleID:  b.id.String(),
		MapName:   cfg.MapName,
		Seed:      cfg.Setup.Seed,
		NumUnits:  len(cfg.Bots),
		Winner:    -1,
		StartedAt: b.started,
	}
	if b.store != nil {
		if err := b.store.StartBattle(b.record, units); err != nil {
			return nil, fmt.Errorf("opening battle record: %w", err)
		}
	}
	b.units = units

	b.logger.Info("battle created",
		"map", cfg.MapName,
		"units", len(cfg.Bots),
		"seed", cfg.Setup.Seed,
	)
	return b, nil
}

// ID returns the battle's identity, used in logs and records.
func (b *Battle) ID() uuid.UUID {
	return b.id
}

// CurrentState returns the latest state.
func (b *Battle) CurrentState() *state.State {
	return b.history[len(b.history)-1]
}

// Terminal reports whether the battle has ended.
func (b *Battle) Terminal() bool {
	return b.CurrentState().GameOver()
}

// StateCount returns the number of states in history.
func (b *Battle) StateCount() int {
	return len(b.history)
}

// StateAt returns the i-th state in history, supporting replay scrubbing in
// both directions without recomputation.
func (b *Battle) StateAt(i int) (*state.State, error) {
	if i < 0 || i >= len(b.history) {
		return nil, fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(b.history))
	}
	return b.history[i], nil
}

// History returns the full ordered state history so far.
func (b *Battle) History() []*state.State {
	return append([]*state.State(nil), b.history...)
}

// Records returns the diagnostic step records produced so far.
func (b *Battle) Records() []StepRecord {
	return append([]StepRecord(nil), b.records...)
}

// Winner returns the winning unit id once the battle is over. A draw
// reports ok false with no error; an unfinished battle is a usage error.
func (b *Battle) Winner() (int, bool, error) {
	if !b.Terminal() {
		return 0, false, ErrNotTerminal
	}
	winner, ok := b.CurrentState().Winner()
	return winner, ok, nil
}

// Step advances the battle by exactly one step: poll the unit in turn, then
// apply its action or kill it for a fault. Returns the new state. Stepping
// a finished battle is a usage error; a canceled context aborts the battle
// between steps without recording anything.
func (b *Battle) Step(ctx context.Context) (*state.State, error) {
	cur := b.CurrentState()
	if cur.GameOver() {
		return nil, ErrBattleOver
	}
	unit, _ := cur.CurrentUnit()
	if cur.RoundCount != b.lastRound || unit != b.lastUnit {
		// A unit has at most one turn per round, so a new (round, unit)
		// pair marks a turn boundary even when the previous turn ended
		// with the acting unit dying from its own action, which removes
		// it from the order without advancing the turn counter. The
		// unit's blocking-time budget starts fresh.
		b.timer.Reset(unit)
		b.lastRound, b.lastUnit = cur.RoundCount, unit
	}

	res := b.guard.Poll(ctx, b.bots[unit], cur.Clone(), b.timer, unit)
	b.metrics.Poll(ctx, res.Elapsed.Seconds())
	if errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded) {
		return nil, res.Err
	}

	rec := StepRecord{
		Index:   len(b.history),
		Round:   cur.RoundCount,
		Actor:   unit,
		Elapsed: res.Elapsed,
	}
	var next *state.State
	var err error
	if res.Err != nil {
		rec.Fault = res.Err.Error()
		b.metrics.Fault(ctx, faultKind(res.Err))
		b.logger.Warn("agent fault",
			"unit", unit,
			"bot", b.bots[unit].Name(),
			"fault", res.Err,
		)
		next, err = cur.ApplyKillUnit()
	} else {
		rec.Action = res.Action
		next, err = cur.Apply(res.Action)
		if err == nil {
			rec.Legal = next.LastActionLegal
			b.metrics.Step(ctx, rec.Legal)
			if !rec.Legal {
				b.logger.Debug("illegal action",
					"unit", unit,
					"action", res.Action.String(),
				)
			}
		}
	}
	if err != nil {
		return nil, err
	}

	b.metrics.Deaths(ctx, countDeaths(cur, next))
	b.history = append(b.history, next)
	b.records = append(b.records, rec)
	b.recordStep(next, rec)

	if next.GameOver() {
		b.finalize(ctx, next)
	}
	return next, nil
}

// PlayAll drives the battle to its end and returns the terminal state.
func (b *Battle) PlayAll(ctx context.Context) (*state.State, error) {
	round := b.CurrentState().RoundCount
	for !b.Terminal() {
		next, err := b.Step(ctx)
		if err != nil {
			return nil, err
		}
		if next.RoundCount != round {
			round = next.RoundCount
			b.logger.Debug("round started",
				"round", round,
				"radius", next.DeathRadius,
			)
		}
	}
	return b.CurrentState(), nil
}

// Record returns the battle's summary record. Fully populated only once
// the battle is terminal.
func (b *Battle) Record() model.Battle {
	return *b.record
}

// Duration returns wall-clock time since the battle was created, frozen at
// the moment it ended.
func (b *Battle) Duration() time.Duration {
	if b.ended {
		return b.record.EndedAt.Sub(b.started)
	}
	return time.Since(b.started)
}

func (b *Battle) finalize(ctx context.Context, terminal *state.State) {
	if b.ended {
		return
	}
	b.ended = true
	winner, hasWinner := terminal.Winner()
	b.record.Rounds = terminal.RoundCount
	b.record.Steps = terminal.StepCount
	b.record.Draw = !hasWinner
	b.record.EndedAt = time.Now()
	if hasWinner {
		b.record.Winner = winner
	} else {
		b.record.Winner = -1
	}
	for uid, unit := range b.units {
		unit.Survived = terminal.Alive[uid]
		unit.DeathStep = terminal.Casualties[uid]
	}
	b.metrics.BattleCompleted(ctx, hasWinner)
	if b.store != nil {
		if err := b.store.EndBattle(b.record, b.units); err != nil {
			b.logger.Error("closing battle record", "error", err)
		}
	}
	if hasWinner {
		b.logger.Info("battle over",
			"winner", winner,
			"bot", b.bots[winner].Name(),
			"rounds", terminal.RoundCount,
			"steps", terminal.StepCount,
		)
	} else {
		b.logger.Info("battle over",
			"draw", true,
			"rounds", terminal.RoundCount,
			"steps", terminal.StepCount,
		)
	}
}

func (b *Battle) recordStep(next *state.State, rec StepRecord) {
	if b.store == nil {
		return
	}
	snapshot, err := model.MarshalSnapshot(next)
	if err != nil {
		b.logger.Error("marshaling snapshot", "error", err)
		return
	}
	step := &model.Step{
		BattleRef:  b.record.ID,
		StepIndex:  rec.Index,
		Round:      rec.Round,
		Actor:      rec.Actor,
		ActionKind: string(rec.Action.Kind),
		TargetQ:    rec.Action.Target.Q,
		TargetR:    rec.Action.Target.R,
		Legal:      rec.Legal,
		Fault:      rec.Fault,
		Snapshot:   snapshot,
	}
	if err := b.store.RecordStep(step); err != nil {
		b.logger.Error("recording step", "error", err)
	}
}

func countDeaths(before, after *state.State) int {
	count := 0
	for uid := range before.Alive {
		if before.Alive[uid] && !after.Alive[uid] {
			count++
		}
	}
	return count
}

func faultKind(err error) string {
	switch {
	case errors.Is(err, boundary.ErrTimeout):
		return "timeout"
	case errors.Is(err, boundary.ErrPanic):
		return "panic"
	case errors.Is(err, boundary.ErrBadAction):
		return "bad_action"
	case errors.Is(err, boundary.ErrTurnBudget):
		return "turn_budget"
	}
	return "other"
}
