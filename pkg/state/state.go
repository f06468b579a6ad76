// Package state holds the authoritative snapshot of a battle at one point in
// time and the rules for deriving the next snapshot from an action.
//
// States are never mutated in place: Apply, ApplyKillUnit, and IncrementRound
// all return a new state, leaving the receiver untouched. This is what makes
// random-access replay possible: the battle keeps every state it ever
// produced and scrubbing through history is a slice lookup.
//
// Fields are exported for inspection and serialization. Treat them as
// read-only; collaborators that hand states to untrusted code should hand out
// Clone results.
package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ArielHorwitz/botroyale/internal/prng"
	"github.com/ArielHorwitz/botroyale/pkg/action"
	"github.com/ArielHorwitz/botroyale/pkg/hexagon"
)

// Number of PRNG iterations separating one round's seed from the next.
const nextSeedIterations = 100

// Usage errors. These indicate the caller drove the state machine in the
// wrong order, not that anything went wrong inside a battle.
var (
	ErrGameOver      = errors.New("game over, no more actions allowed")
	ErrEndOfRound    = errors.New("round is over, increment the round first")
	ErrNotEndOfRound = errors.New("not the end of round")
)

// Setup is the opaque map-plus-roster input a battle is constructed from.
// Loading it from a file is a collaborator's concern (see internal/maps).
type Setup struct {
	// DeathRadius is the initial radius of the ring of death, measured
	// from hexagon.Center. Units at or beyond it die.
	DeathRadius int
	// Spawns are the starting positions, one per unit. The unit id is the
	// index into this slice and is stable for the whole battle.
	Spawns []hexagon.Hex
	// Pits and Walls are the static map hazards. They are shared by
	// reference across every state derived from this setup.
	Pits  map[hexagon.Hex]bool
	Walls map[hexagon.Hex]bool
	// Seed drives round ordering tiebreakers. Zero is a valid seed;
	// callers wanting variety pick one before constructing the state.
	Seed int64
	// APGrant and APCap override the default AP economy when positive.
	APGrant int
	APCap   int
}

// State is one snapshot of a battle. All per-unit slices are indexed by
// unit id.
type State struct {
	// Units.
	Positions    []hexagon.Hex
	Alive        []bool
	AP           []int
	RoundAPSpent []int
	// RemainingTurns lists unit ids that have not ended their turn this
	// round, in turn order. The head of the list is the unit in turn.
	RemainingTurns []int
	DoneTurns      []int
	// Casualties records the step on which each unit died, -1 while alive.
	Casualties []int

	// Map features. Dying hexes: pits kill on entry, walls block movement,
	// and any hex at distance >= DeathRadius from the center kills.
	DeathRadius int
	Pits        map[hexagon.Hex]bool
	Walls       map[hexagon.Hex]bool

	// Time-keeping. A step is the smallest unit of in-game time; round
	// increments also count as a step, as in replays they are a visible
	// transition.
	StepCount  int
	TurnCount  int
	RoundCount int

	// The action that produced this state, who took it, and whether it
	// was legal. Zeroed on states not produced by an action.
	LastAction      action.Action
	LastActor       int
	LastActionLegal bool

	// Seed for this round's ordering tiebreakers. Advances
	// deterministically every round.
	Seed int64

	// AP economy, fixed at setup.
	APGrant int
	APCap   int
}

// New returns the initial state for a setup: round 0, before any unit has
// had a turn. Use IncrementRound to reach the first turn. Invalid setups are
// reported as errors rather than producing a state that violates invariants.
func New(setup Setup) (*State, error) {
	if setup.DeathRadius < 1 {
		return nil, fmt.Errorf("death radius %d, must be at least 1", setup.DeathRadius)
	}
	if len(setup.Spawns) == 0 {
		return nil, errors.New("no spawn positions")
	}
	seen := make(map[hexagon.Hex]int, len(setup.Spawns))
	for uid, spawn := range setup.Spawns {
		if other, ok := seen[spawn]; ok {
			return nil, fmt.Errorf("units %d and %d share spawn (%d, %d)", other, uid, spawn.Q, spawn.R)
		}
		seen[spawn] = uid
		if setup.Walls[spawn] {
			return nil, fmt.Errorf("unit %d spawns on a wall (%d, %d)", uid, spawn.Q, spawn.R)
		}
		if setup.Pits[spawn] {
			return nil, fmt.Errorf("unit %d spawns on a pit (%d, %d)", uid, spawn.Q, spawn.R)
		}
		if d := hexagon.Distance(spawn, hexagon.Center); d >= setup.DeathRadius {
			return nil, fmt.Errorf("unit %d spawns at distance %d, outside death radius %d", uid, d, setup.DeathRadius)
		}
	}
	apGrant, apCap := setup.APGrant, setup.APCap
	if apGrant <= 0 {
		apGrant = action.DefaultAPGrant
	}
	if apCap <= 0 {
		apCap = action.DefaultAPCap
	}
	n := len(setup.Spawns)
	s := &State{
		Positions:    append([]hexagon.Hex(nil), setup.Spawns...),
		Alive:        make([]bool, n),
		AP:           make([]int, n),
		RoundAPSpent: make([]int, n),
		DoneTurns:    make([]int, 0, n),
		Casualties:   make([]int, n),
		DeathRadius:  setup.DeathRadius,
		Pits:         setup.Pits,
		Walls:        setup.Walls,
		Seed:         setup.Seed,
		APGrant:      apGrant,
		APCap:        apCap,
	}
	if s.Pits == nil {
		s.Pits = map[hexagon.Hex]bool{}
	}
	if s.Walls == nil {
		s.Walls = map[hexagon.Hex]bool{}
	}
	for uid := 0; uid < n; uid++ {
		s.Alive[uid] = true
		s.Casualties[uid] = -1
		s.DoneTurns = append(s.DoneTurns, uid)
	}
	return s, nil
}

// NumUnits returns the size of the roster, dead units included.
func (s *State) NumUnits() int {
	return len(s.Positions)
}

// CurrentUnit returns the id of the unit in turn. The second return is false
// at the end of a round, when no unit is in turn.
func (s *State) CurrentUnit() (int, bool) {
	if len(s.RemainingTurns) == 0 {
		return 0, false
	}
	return s.RemainingTurns[0], true
}

// EndOfRound reports whether every unit has ended its turn this round.
func (s *State) EndOfRound() bool {
	return len(s.RemainingTurns) == 0
}

// GameOver reports whether at most one unit remains alive.
func (s *State) GameOver() bool {
	return s.aliveCount() <= 1
}

// Winner returns the id of the sole surviving unit. The second return is
// false while the battle is live and on a draw.
func (s *State) Winner() (int, bool) {
	if s.aliveCount() != 1 {
		return 0, false
	}
	for uid, alive := range s.Alive {
		if alive {
			return uid, true
		}
	}
	return 0, false
}

// DeathOrder returns the ids of dead units in the order they died.
func (s *State) DeathOrder() []int {
	var dead []int
	for uid, alive := range s.Alive {
		if !alive {
			dead = append(dead, uid)
		}
	}
	sort.SliceStable(dead, func(i, j int) bool {
		return s.Casualties[dead[i]] < s.Casualties[dead[j]]
	})
	return dead
}

// NextRoundOrder returns the unit ids sorted by the turn order of the next
// round, assuming no more AP is spent this round. Ordering is ascending by
// AP spent this round; ties are broken by seeded per-unit random values, so
// units with equal spend are permuted uniformly but reproducibly.
func (s *State) NextRoundOrder() []int {
	tiebreakers := prng.New(s.Seed).GenerateList(s.NumUnits())
	var order []int
	for uid, alive := range s.Alive {
		if alive {
			order = append(order, uid)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		return float64(s.RoundAPSpent[a])+tiebreakers[a] < float64(s.RoundAPSpent[b])+tiebreakers[b]
	})
	return order
}

// CheckLegalAction reports whether actor may apply a to this state. Rules,
// first failure wins: the value must belong to the action set; the actor
// must be alive and in turn; Idle is then always legal; AP must cover the
// cost; the target must be at the action's distance; movement destinations
// must be free of walls and living units; pushes additionally require a
// living unit on the target and a free landing hex behind it.
func (s *State) CheckLegalAction(actor int, a action.Action) bool {
	if action.Validate(a) != nil {
		return false
	}
	current, ok := s.CurrentUnit()
	if !ok || current != actor || !s.Alive[actor] {
		return false
	}
	if a.Kind == action.KindIdle {
		return true
	}
	if s.AP[actor] < a.Cost() {
		return false
	}
	pos := s.Positions[actor]
	if hexagon.Distance(pos, a.Target) != a.TargetDistance() {
		return false
	}
	switch a.Kind {
	case action.KindMove, action.KindJump:
		return s.canOccupy(a.Target)
	case action.KindPush:
		if _, ok := s.livingUnitAt(a.Target); !ok {
			return false
		}
		landing := hexagon.NewLine(pos, a.Target).Next()
		return s.canOccupy(landing)
	}
	return false
}

// Apply returns the state resulting from the current unit taking a. Illegal
// actions are not errors: they end the actor's turn and change nothing else,
// recorded as such. When the action closes the round, the next round is
// started in the same step so the result is always on a unit's turn or
// terminal. Errors are usage errors only.
func (s *State) Apply(a action.Action) (*State, error) {
	if s.GameOver() {
		return nil, ErrGameOver
	}
	if s.EndOfRound() {
		return nil, ErrEndOfRound
	}
	actor, _ := s.CurrentUnit()
	next := s.clone()
	legal := s.CheckLegalAction(actor, a)
	if legal && a.Kind != action.KindIdle {
		next.doApply(a)
	} else {
		// Idle and illegal actions alike end the turn.
		next.nextTurn()
	}
	next.LastAction = a
	next.LastActor = actor
	next.LastActionLegal = legal
	next.StepCount++
	if next.EndOfRound() && !next.GameOver() {
		next.nextRound()
	}
	return next, nil
}

// ApplyKillUnit returns the state resulting from the current unit dying on
// its turn. This is the battle's response to a non-cooperative agent: a
// fault at the boundary eliminates the unit instead of applying an action.
func (s *State) ApplyKillUnit() (*State, error) {
	if s.GameOver() {
		return nil, ErrGameOver
	}
	if s.EndOfRound() {
		return nil, ErrEndOfRound
	}
	actor, _ := s.CurrentUnit()
	next := s.clone()
	next.nextTurn()
	next.applyMortality(actor)
	next.LastActor = actor
	next.StepCount++
	if next.EndOfRound() && !next.GameOver() {
		next.nextRound()
	}
	return next, nil
}

// IncrementRound returns the state at the start of the next round. Only
// valid on end-of-round states (notably the round-0 state New returns).
func (s *State) IncrementRound() (*State, error) {
	if s.GameOver() {
		return nil, ErrGameOver
	}
	if !s.EndOfRound() {
		return nil, ErrNotEndOfRound
	}
	next := s.clone()
	next.nextRound()
	return next, nil
}

// Clone returns a deep copy, safe to hand to untrusted code. The copy's
// hazard sets are independent of the original's.
func (s *State) Clone() *State {
	c := s.clone()
	c.LastAction = s.LastAction
	c.LastActor = s.LastActor
	c.LastActionLegal = s.LastActionLegal
	c.Pits = make(map[hexagon.Hex]bool, len(s.Pits))
	for h := range s.Pits {
		c.Pits[h] = true
	}
	c.Walls = make(map[hexagon.Hex]bool, len(s.Walls))
	for h := range s.Walls {
		c.Walls[h] = true
	}
	return c
}

// clone copies everything except the last-action record, which belongs to
// the transition about to be written. Hazard sets are shared by reference;
// they never change after setup.
func (s *State) clone() *State {
	return &State{
		Positions:      append([]hexagon.Hex(nil), s.Positions...),
		Alive:          append([]bool(nil), s.Alive...),
		AP:             append([]int(nil), s.AP...),
		RoundAPSpent:   append([]int(nil), s.RoundAPSpent...),
		RemainingTurns: append([]int(nil), s.RemainingTurns...),
		DoneTurns:      append([]int(nil), s.DoneTurns...),
		Casualties:     append([]int(nil), s.Casualties...),
		DeathRadius:    s.DeathRadius,
		Pits:           s.Pits,
		Walls:          s.Walls,
		StepCount:      s.StepCount,
		TurnCount:      s.TurnCount,
		RoundCount:     s.RoundCount,
		Seed:           s.Seed,
		APGrant:        s.APGrant,
		APCap:          s.APCap,
	}
}

// doApply applies a legal, non-idle action in place. Legality is the
// caller's responsibility.
func (s *State) doApply(a action.Action) {
	actor, _ := s.CurrentUnit()
	switch a.Kind {
	case action.KindMove, action.KindJump:
		s.Positions[actor] = a.Target
	case action.KindPush:
		victim, _ := s.livingUnitAt(a.Target)
		landing := hexagon.NewLine(s.Positions[actor], a.Target).Next()
		s.Positions[victim] = landing
	}
	s.AP[actor] -= a.Cost()
	s.RoundAPSpent[actor] += a.Cost()
	s.applyMortality()
}

// nextTurn ends the current unit's turn in place.
func (s *State) nextTurn() {
	s.DoneTurns = append(s.DoneTurns, s.RemainingTurns[0])
	s.RemainingTurns = s.RemainingTurns[1:]
	s.TurnCount++
}

// nextRound starts the next round in place: compute the order from this
// round's AP spend and seed, grant AP, contract the ring of death (from the
// second round onward), and resolve any deaths the contraction causes.
func (s *State) nextRound() {
	s.RemainingTurns = s.NextRoundOrder()
	s.DoneTurns = make([]int, 0, s.NumUnits())
	for uid := range s.RoundAPSpent {
		s.RoundAPSpent[uid] = 0
	}
	for uid, alive := range s.Alive {
		if !alive {
			continue
		}
		s.AP[uid] += s.APGrant
		if s.AP[uid] > s.APCap {
			s.AP[uid] = s.APCap
		}
	}
	// The first round plays at the map's initial radius.
	if s.RoundCount >= 1 {
		s.DeathRadius--
	}
	s.applyMortality()
	s.StepCount++
	s.RoundCount++
	s.Seed = nextSeed(s.Seed)
}

// applyMortality kills, in place, every living unit standing on a pit or at
// or beyond the death radius, plus any explicitly listed ids. Called after
// every position change and radius contraction.
func (s *State) applyMortality(forceKill ...int) {
	forced := make(map[int]bool, len(forceKill))
	for _, uid := range forceKill {
		forced[uid] = true
	}
	for uid, alive := range s.Alive {
		if !alive {
			continue
		}
		pos := s.Positions[uid]
		dies := forced[uid] ||
			s.Pits[pos] ||
			hexagon.Distance(pos, hexagon.Center) >= s.DeathRadius
		if !dies {
			continue
		}
		s.Alive[uid] = false
		s.Casualties[uid] = s.StepCount
		for i, turn := range s.RemainingTurns {
			if turn == uid {
				s.RemainingTurns = append(s.RemainingTurns[:i:i], s.RemainingTurns[i+1:]...)
				break
			}
		}
	}
}

// canOccupy reports whether a unit may come to stand on h. Pits and hexes
// outside the death radius are fair game: entering them is legal and lethal.
func (s *State) canOccupy(h hexagon.Hex) bool {
	if s.Walls[h] {
		return false
	}
	_, occupied := s.livingUnitAt(h)
	return !occupied
}

// livingUnitAt returns the id of the living unit standing on h. Dead units
// keep their last position for rendering but do not occupy.
func (s *State) livingUnitAt(h hexagon.Hex) (int, bool) {
	for uid, pos := range s.Positions {
		if s.Alive[uid] && pos == h {
			return uid, true
		}
	}
	return 0, false
}

func (s *State) aliveCount() int {
	count := 0
	for _, alive := range s.Alive {
		if alive {
			count++
		}
	}
	return count
}

// nextSeed derives the following round's seed by running the generator a
// fixed number of iterations ahead.
func nextSeed(seed int64) int64 {
	p := prng.New(seed)
	p.Iterate(nextSeedIterations)
	return p.Seed()
}
