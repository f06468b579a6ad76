// Package action defines the closed set of actions a unit may take on its
// turn, together with their action point costs.
//
// Idle is the only action that is always legal; everything else is judged
// against the current battle state by the state package. Values are plain
// data so they can be produced by out-of-process agents and serialized into
// battle records.
package action

import (
	"fmt"

	"github.com/ArielHorwitz/botroyale/pkg/hexagon"
)

// Kind discriminates the action variants.
type Kind string

const (
	KindIdle Kind = "idle"
	KindMove Kind = "move"
	KindJump Kind = "jump"
	KindPush Kind = "push"
)

// AP costs per action kind.
const (
	CostIdle = 0
	CostMove = 20
	CostPush = 30
	CostJump = 45
)

// Default AP economy. Battle setups may override both.
const (
	DefaultAPCap   = 100
	DefaultAPGrant = 50
)

// Action is one decision by a unit. Target is ignored for Idle, a
// distance-1 destination for Move, a distance-2 destination for Jump, and
// the distance-1 hex of the unit being pushed for Push.
type Action struct {
	Kind   Kind        `json:"kind"`
	Target hexagon.Hex `json:"target"`
}

// Idle ends the unit's turn, spending nothing.
func Idle() Action {
	return Action{Kind: KindIdle}
}

// Move steps the actor onto an adjacent hex.
func Move(target hexagon.Hex) Action {
	return Action{Kind: KindMove, Target: target}
}

// Jump leaps the actor onto a hex at distance 2.
func Jump(target hexagon.Hex) Action {
	return Action{Kind: KindJump, Target: target}
}

// Push displaces the unit on an adjacent hex one hex further along the line
// from the actor through the target.
func Push(target hexagon.Hex) Action {
	return Action{Kind: KindPush, Target: target}
}

// Cost returns the AP cost of the action.
func (a Action) Cost() int {
	switch a.Kind {
	case KindIdle:
		return CostIdle
	case KindMove:
		return CostMove
	case KindPush:
		return CostPush
	case KindJump:
		return CostJump
	}
	return 0
}

// TargetDistance returns the required distance from actor to target for the
// action kind, or 0 when the kind takes no target.
func (a Action) TargetDistance() int {
	switch a.Kind {
	case KindMove, KindPush:
		return 1
	case KindJump:
		return 2
	}
	return 0
}

// Validate reports whether a belongs to the action set. It is the agent
// boundary's first line of defense against bots returning junk; legality
// against a specific state is a separate question.
func Validate(a Action) error {
	switch a.Kind {
	case KindIdle, KindMove, KindJump, KindPush:
		return nil
	}
	return fmt.Errorf("unknown action kind %q", a.Kind)
}

func (a Action) String() string {
	if a.Kind == KindIdle {
		return string(KindIdle)
	}
	return fmt.Sprintf("%s -> (%d, %d)", a.Kind, a.Target.Q, a.Target.R)
}
