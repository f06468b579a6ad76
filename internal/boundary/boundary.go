// Package boundary isolates the engine from the agents it polls. A decision
// call runs in its own goroutine under a wall-clock budget; panics, junk
// return values, and blown budgets come back as faults instead of escaping
// into the scheduler. The battle converts any fault into the unit's death.
package boundary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ArielHorwitz/botroyale/pkg/action"
	"github.com/ArielHorwitz/botroyale/pkg/bot"
	"github.com/ArielHorwitz/botroyale/pkg/state"
)

// Fault sentinels. Every fault returned by Poll wraps exactly one of these.
var (
	ErrTimeout    = errors.New("decision call exceeded its time budget")
	ErrPanic      = errors.New("agent panicked")
	ErrBadAction  = errors.New("agent returned a malformed action")
	ErrTurnBudget = errors.New("agent exceeded the aggregate turn time budget")
)

// Guard polls agents under time budgets. CallBudget bounds a single decision
// call; TurnBudget bounds the total blocking time one unit may consume
// across all the calls of a single turn. A zero budget disables that limit.
type Guard struct {
	CallBudget time.Duration
	TurnBudget time.Duration
}

// Result is the outcome of one guarded decision call. Err is nil or wraps
// one of the fault sentinels; Action is only meaningful when Err is nil.
type Result struct {
	Action  action.Action
	Elapsed time.Duration
	Err     error
}

type pollOutcome struct {
	action action.Action
	panics any
}

// Poll asks b for one action for the given state. The state should be a
// private copy; the agent may retain or mutate it freely. A timed-out agent
// is abandoned, not joined: its goroutine may still be running when Poll
// returns, but nothing it does from then on can reach the battle.
//
// Elapsed time is charged to timer (when non-nil) even on faults, and a
// charge that lifts the unit's turn total over TurnBudget is itself a fault.
func (g *Guard) Poll(ctx context.Context, b bot.Bot, s *state.State, timer *TurnTimer, unit int) Result {
	if err := ctx.Err(); err != nil {
		return Result{Err: err}
	}
	start := time.Now()
	outcome := make(chan pollOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				outcome <- pollOutcome{panics: r}
			}
		}()
		outcome <- pollOutcome{action: b.PollAction(s)}
	}()

	var expired <-chan time.Time
	if g.CallBudget > 0 {
		t := time.NewTimer(g.CallBudget)
		defer t.Stop()
		expired = t.C
	}

	result := Result{}
	select {
	case <-ctx.Done():
		result.Err = ctx.Err()
	case <-expired:
		result.Err = fmt.Errorf("%w (budget %s)", ErrTimeout, g.CallBudget)
	case o := <-outcome:
		if o.panics != nil {
			result.Err = fmt.Errorf("%w: %v", ErrPanic, o.panics)
		} else if err := action.Validate(o.action); err != nil {
			result.Err = fmt.Errorf("%w: %v", ErrBadAction, err)
		} else {
			result.Action = o.action
		}
	}
	result.Elapsed = time.Since(start)

	if timer != nil {
		total := timer.Add(unit, result.Elapsed)
		if result.Err == nil && g.TurnBudget > 0 && total > g.TurnBudget {
			result.Err = fmt.Errorf("%w (%s of %s)", ErrTurnBudget, total, g.TurnBudget)
		}
	}
	return result
}

// TurnTimer accumulates the blocking time each unit's agent consumes within
// the current turn. The battle resets a unit's total when its turn begins.
type TurnTimer struct {
	mu     sync.Mutex
	totals map[int]time.Duration
}

// NewTurnTimer returns an empty timer.
func NewTurnTimer() *TurnTimer {
	return &TurnTimer{totals: map[int]time.Duration{}}
}

// Add charges d to the unit and returns its new total.
func (t *TurnTimer) Add(unit int, d time.Duration) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals[unit] += d
	return t.totals[unit]
}

// Total returns the time charged to the unit so far.
func (t *TurnTimer) Total(unit int) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals[unit]
}

// Reset clears the unit's total, marking the start of a new turn.
func (t *TurnTimer) Reset(unit int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.totals, unit)
}
