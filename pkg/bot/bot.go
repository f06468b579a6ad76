// Package bot defines the contract between the battle engine and the
// decision-making agents controlling its units, along with a registry for
// selecting agents by name and a few trivial shipped agents.
//
// The engine never inspects an agent beyond this interface. Agents are
// polled through a fault boundary: a panic, a junk return value, or a
// blown time budget costs the unit its life, not the engine its process.
package bot

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ArielHorwitz/botroyale/internal/prng"
	"github.com/ArielHorwitz/botroyale/pkg/action"
	"github.com/ArielHorwitz/botroyale/pkg/hexagon"
	"github.com/ArielHorwitz/botroyale/pkg/state"
)

// Bot is one unit's decision maker. Implementations receive their own copy
// of the state and may do with it as they please.
type Bot interface {
	// Name identifies the bot flavor, for logs and statistics.
	Name() string
	// Setup is called once before the battle starts, with the initial
	// state. The bot's unit may not have a turn yet.
	Setup(s *state.State)
	// PollAction is called repeatedly during the unit's turn and returns
	// the single action to take next.
	PollAction(s *state.State) action.Action
}

// Factory builds a bot bound to a unit id.
type Factory func(id int) Bot

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a bot flavor selectable by name. Registering a duplicate
// name is a programming error.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("bot %q registered twice", name))
	}
	registry[name] = factory
}

// Get returns the factory for a registered bot flavor.
func Get(name string) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown bot %q", name)
	}
	return factory, nil
}

// Names returns the registered bot flavors, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("idle", func(id int) Bot { return &IdleBot{id: id} })
	Register("random", func(id int) Bot { return &RandomBot{id: id} })
	Register("seeker", func(id int) Bot { return &SeekerBot{id: id} })
}

// IdleBot does nothing, forever. Useful as an opponent that only the ring
// of death can kill.
type IdleBot struct {
	id int
}

func (b *IdleBot) Name() string         { return "idle" }
func (b *IdleBot) Setup(_ *state.State) {}
func (b *IdleBot) PollAction(_ *state.State) action.Action {
	return action.Idle()
}

// RandomBot picks uniformly among its legal actions each poll, idling when
// nothing else is legal. Its own generator is seeded from the initial state
// seed and unit id, so battles with random bots stay reproducible.
type RandomBot struct {
	id  int
	rng *prng.PRNG
}

func (b *RandomBot) Name() string { return "random" }

func (b *RandomBot) Setup(s *state.State) {
	b.rng = prng.New(s.Seed + int64(b.id) + 1)
}

func (b *RandomBot) PollAction(s *state.State) action.Action {
	if b.rng == nil {
		b.rng = prng.New(int64(b.id) + 1)
	}
	options := legalOptions(s, b.id)
	if len(options) == 0 {
		return action.Idle()
	}
	// One extra slot for idle, so every turn eventually ends.
	pick := int(b.rng.Next() * float64(len(options)+1))
	if pick >= len(options) {
		return action.Idle()
	}
	return options[pick]
}

// SeekerBot walks toward the map center and pushes anyone in its way.
type SeekerBot struct {
	id int
}

func (b *SeekerBot) Name() string         { return "seeker" }
func (b *SeekerBot) Setup(_ *state.State) {}

func (b *SeekerBot) PollAction(s *state.State) action.Action {
	pos := s.Positions[b.id]
	here := hexagon.Distance(pos, hexagon.Center)
	var best action.Action
	bestDist := here
	found := false
	for _, n := range pos.Neighbors() {
		d := hexagon.Distance(n, hexagon.Center)
		if d >= bestDist {
			continue
		}
		if a := action.Move(n); s.CheckLegalAction(b.id, a) {
			best, bestDist, found = a, d, true
		}
	}
	if found {
		return best
	}
	// Blocked on all closer hexes; try shoving a neighbor aside.
	for _, n := range pos.Neighbors() {
		if hexagon.Distance(n, hexagon.Center) >= here {
			continue
		}
		if a := action.Push(n); s.CheckLegalAction(b.id, a) {
			return a
		}
	}
	return action.Idle()
}

// legalOptions enumerates every legal non-idle action for the unit.
func legalOptions(s *state.State, id int) []action.Action {
	var options []action.Action
	pos := s.Positions[id]
	for _, n := range pos.Neighbors() {
		if a := action.Move(n); s.CheckLegalAction(id, a) {
			options = append(options, a)
		}
		if a := action.Push(n); s.CheckLegalAction(id, a) {
			options = append(options, a)
		}
	}
	for _, h := range hexagon.Ring(pos, 2) {
		if a := action.Jump(h); s.CheckLegalAction(id, a) {
			options = append(options, a)
		}
	}
	return options
}
