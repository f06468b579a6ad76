package battle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ArielHorwitz/botroyale/internal/model"
	"github.com/ArielHorwitz/botroyale/pkg/action"
	"github.com/ArielHorwitz/botroyale/pkg/bot"
	"github.com/ArielHorwitz/botroyale/pkg/hexagon"
	"github.com/ArielHorwitz/botroyale/pkg/state"
)

// funcBot adapts a function to the bot contract for scripted scenarios.
type funcBot struct {
	name string
	poll func(s *state.State) action.Action
}

func (b *funcBot) Name() string       { return b.name }
func (b *funcBot) Setup(*state.State) {}
func (b *funcBot) PollAction(s *state.State) action.Action {
	return b.poll(s)
}

func factoryFor(name string, poll func(id int, s *state.State) action.Action) bot.Factory {
	return func(id int) bot.Bot {
		return &funcBot{name: name, poll: func(s *state.State) action.Action {
			return poll(id, s)
		}}
	}
}

func idleFactory() bot.Factory {
	return factoryFor("idle", func(int, *state.State) action.Action {
		return action.Idle()
	})
}

func mustNew(t *testing.T, cfg Config) *Battle {
	t.Helper()
	b, err := New(cfg, Dependencies{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func TestDrawByContraction(t *testing.T) {
	b := mustNew(t, Config{
		Setup: state.Setup{
			DeathRadius: 3,
			Spawns:      []hexagon.Hex{{Q: 1, R: 0}, {Q: -1, R: 0}},
			Seed:        1,
		},
		Bots: []bot.Factory{idleFactory(), idleFactory()},
	})
	if _, _, err := b.Winner(); !errors.Is(err, ErrNotTerminal) {
		t.Fatalf("Winner before terminal: %v, want ErrNotTerminal", err)
	}
	terminal, err := b.PlayAll(context.Background())
	if err != nil {
		t.Fatalf("PlayAll: %v", err)
	}
	if !b.Terminal() {
		t.Fatal("battle should be terminal")
	}
	if _, ok, err := b.Winner(); err != nil || ok {
		t.Errorf("Winner = ok %v err %v, want a draw", ok, err)
	}
	if terminal.DeathRadius != 1 {
		t.Errorf("terminal radius = %d, want 1", terminal.DeathRadius)
	}
	if _, err := b.Step(context.Background()); !errors.Is(err, ErrBattleOver) {
		t.Errorf("Step after terminal: %v, want ErrBattleOver", err)
	}
	record := b.Record()
	if !record.Draw || record.Winner != -1 {
		t.Errorf("record = draw %v winner %d, want a draw", record.Draw, record.Winner)
	}
	if record.Rounds != terminal.RoundCount || record.Steps != terminal.StepCount {
		t.Errorf("record counts = %d/%d, want %d/%d",
			record.Rounds, record.Steps, terminal.RoundCount, terminal.StepCount)
	}
}

func TestStateAt(t *testing.T) {
	b := mustNew(t, Config{
		Setup: state.Setup{
			DeathRadius: 3,
			Spawns:      []hexagon.Hex{{Q: 1, R: 0}, {Q: -1, R: 0}},
			Seed:        2,
		},
		Bots: []bot.Factory{idleFactory(), idleFactory()},
	})
	if _, err := b.PlayAll(context.Background()); err != nil {
		t.Fatalf("PlayAll: %v", err)
	}
	first, err := b.StateAt(0)
	if err != nil {
		t.Fatalf("StateAt(0): %v", err)
	}
	if first.RoundCount != 1 {
		t.Errorf("first state round = %d, want 1", first.RoundCount)
	}
	last, err := b.StateAt(b.StateCount() - 1)
	if err != nil {
		t.Fatalf("StateAt(last): %v", err)
	}
	if !last.GameOver() {
		t.Error("last state should be terminal")
	}
	for _, i := range []int{-1, b.StateCount()} {
		if _, err := b.StateAt(i); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("StateAt(%d): %v, want ErrOutOfRange", i, err)
		}
	}
	history := b.History()
	if len(history) != b.StateCount() {
		t.Errorf("len(History()) = %d, want %d", len(history), b.StateCount())
	}
	if history[0] != first || history[len(history)-1] != last {
		t.Error("History() should hold the same states as StateAt")
	}
}

func TestPanicBotIsKilled(t *testing.T) {
	panicking := factoryFor("panicker", func(int, *state.State) action.Action {
		panic("scripted failure")
	})
	b := mustNew(t, Config{
		Setup: state.Setup{
			DeathRadius: 10,
			Spawns:      []hexagon.Hex{{Q: 1, R: 0}, {Q: -1, R: 0}, {Q: 0, R: 2}},
			Seed:        3,
		},
		Bots:       []bot.Factory{panicking, idleFactory(), idleFactory()},
		CallBudget: time.Second,
	})
	terminal, err := b.PlayAll(context.Background())
	if err != nil {
		t.Fatalf("PlayAll: %v", err)
	}
	if terminal.Alive[0] {
		t.Error("panicking unit should have been killed")
	}
	var faulted bool
	for _, rec := range b.Records() {
		if rec.Actor == 0 && rec.Fault != "" {
			faulted = true
			if !strings.Contains(rec.Fault, "panic") {
				t.Errorf("fault = %q, want a panic fault", rec.Fault)
			}
		}
	}
	if !faulted {
		t.Error("no fault recorded for the panicking unit")
	}
	// Unit 0 dies on its very first poll; the others play the battle out.
	if terminal.Casualties[0] == -1 {
		t.Error("casualty step missing for the panicking unit")
	}
}

func TestBadActionBotIsKilled(t *testing.T) {
	junk := factoryFor("junk", func(int, *state.State) action.Action {
		return action.Action{Kind: "launch nukes"}
	})
	b := mustNew(t, Config{
		Setup: state.Setup{
			DeathRadius: 10,
			Spawns:      []hexagon.Hex{{Q: 1, R: 0}, {Q: -1, R: 0}},
			Seed:        4,
		},
		Bots: []bot.Factory{junk, idleFactory()},
	})
	terminal, err := b.PlayAll(context.Background())
	if err != nil {
		t.Fatalf("PlayAll: %v", err)
	}
	winner, ok, err := b.Winner()
	if err != nil {
		t.Fatalf("Winner: %v", err)
	}
	if !ok || winner != 1 {
		t.Errorf("winner = %d (%v), want 1", winner, ok)
	}
	if terminal.Alive[0] {
		t.Error("junk-returning unit should have been killed")
	}
}

func TestTimeoutBotIsKilled(t *testing.T) {
	slow := factoryFor("slow", func(int, *state.State) action.Action {
		time.Sleep(500 * time.Millisecond)
		return action.Idle()
	})
	b := mustNew(t, Config{
		Setup: state.Setup{
			DeathRadius: 10,
			Spawns:      []hexagon.Hex{{Q: 1, R: 0}, {Q: -1, R: 0}},
			Seed:        5,
		},
		Bots:       []bot.Factory{slow, idleFactory()},
		CallBudget: 20 * time.Millisecond,
	})
	if _, err := b.PlayAll(context.Background()); err != nil {
		t.Fatalf("PlayAll: %v", err)
	}
	winner, ok, err := b.Winner()
	if err != nil || !ok || winner != 1 {
		t.Errorf("winner = %d (%v, %v), want 1", winner, ok, err)
	}
}

func TestTurnBudgetResetWhenDeathEndsTurn(t *testing.T) {
	// A unit dying from its own move ends its turn without advancing the
	// turn counter. The unit polled next must still get a fresh blocking-time
	// budget, not inherit the total it accumulated on its previous turn.
	pit := hexagon.Hex{Q: 4, R: 0}
	diverPolls := 0
	diver := factoryFor("diver", func(_ int, s *state.State) action.Action {
		diverPolls++
		switch diverPolls {
		case 1:
			// Spend AP so the diver is ordered last in round 2.
			return action.Move(hexagon.Hex{Q: 3, R: 0})
		case 2:
			return action.Idle()
		}
		return action.Move(pit)
	})
	sleeper := factoryFor("sleeper", func(int, *state.State) action.Action {
		time.Sleep(60 * time.Millisecond)
		return action.Idle()
	})
	b := mustNew(t, Config{
		Setup: state.Setup{
			DeathRadius: 6,
			Spawns:      []hexagon.Hex{{Q: 2, R: 0}, {Q: -2, R: 0}, {Q: 0, R: -2}},
			Pits:        map[hexagon.Hex]bool{pit: true},
			Seed:        7,
		},
		Bots:       []bot.Factory{diver, sleeper, sleeper},
		TurnBudget: 100 * time.Millisecond,
	})
	if _, err := b.PlayAll(context.Background()); err != nil {
		t.Fatalf("PlayAll: %v", err)
	}
	// Every sleeper turn blocks ~60ms, well under the 100ms budget; any
	// fault means a turn inherited another turn's total.
	for _, rec := range b.Records() {
		if rec.Fault != "" {
			t.Fatalf("step %d: unit %d faulted (%s), no single turn exceeded the budget",
				rec.Index, rec.Actor, rec.Fault)
		}
	}
	if _, ok, err := b.Winner(); err != nil || ok {
		t.Errorf("Winner = ok %v err %v, want a draw by contraction", ok, err)
	}
}

func TestPushOntoPitEndsBattle(t *testing.T) {
	pusher := factoryFor("pusher", func(id int, s *state.State) action.Action {
		for _, n := range s.Positions[id].Neighbors() {
			if a := action.Push(n); s.CheckLegalAction(id, a) {
				return a
			}
		}
		return action.Idle()
	})
	b := mustNew(t, Config{
		Setup: state.Setup{
			DeathRadius: 10,
			Spawns:      []hexagon.Hex{{Q: 1, R: 0}, {Q: 2, R: 0}},
			Pits:        map[hexagon.Hex]bool{{Q: 3, R: 0}: true, {Q: 0, R: 0}: true},
			Seed:        6,
		},
		Bots: []bot.Factory{pusher, pusher},
	})
	terminal, err := b.PlayAll(context.Background())
	if err != nil {
		t.Fatalf("PlayAll: %v", err)
	}
	winner, ok, err := b.Winner()
	if err != nil || !ok {
		t.Fatalf("Winner: %d %v %v, want a winner", winner, ok, err)
	}
	if terminal.Alive[1-winner] {
		t.Error("loser should be dead")
	}
	// The win happened on the step of the push, not a round boundary.
	records := b.Records()
	last := records[len(records)-1]
	if last.Action.Kind != action.KindPush || !last.Legal {
		t.Errorf("final record = %+v, want a legal push", last)
	}
}

func TestDeterministicBattles(t *testing.T) {
	play := func() []StepRecord {
		randomFactory, err := bot.Get("random")
		if err != nil {
			t.Fatalf("Get(random): %v", err)
		}
		b := mustNew(t, Config{
			Setup: state.Setup{
				DeathRadius: 5,
				Spawns:      []hexagon.Hex{{Q: 2, R: 0}, {Q: -2, R: 0}, {Q: 0, R: 2}},
				Seed:        777,
			},
			Bots: []bot.Factory{randomFactory, randomFactory, randomFactory},
		})
		if _, err := b.PlayAll(context.Background()); err != nil {
			t.Fatalf("PlayAll: %v", err)
		}
		return b.Records()
	}
	a, b := play(), play()
	if len(a) != len(b) {
		t.Fatalf("runs differ in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Actor != b[i].Actor || a[i].Action != b[i].Action || a[i].Legal != b[i].Legal {
			t.Fatalf("step %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestAbortBetweenSteps(t *testing.T) {
	b := mustNew(t, Config{
		Setup: state.Setup{
			DeathRadius: 10,
			Spawns:      []hexagon.Hex{{Q: 1, R: 0}, {Q: -1, R: 0}},
			Seed:        8,
		},
		Bots: []bot.Factory{idleFactory(), idleFactory()},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Step(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Step with canceled context: %v, want context.Canceled", err)
	}
	// Nothing was recorded for the aborted step.
	if got := len(b.Records()); got != 0 {
		t.Errorf("records after abort = %d, want 0", got)
	}
	// The battle can resume with a live context.
	if _, err := b.Step(context.Background()); err != nil {
		t.Errorf("Step after abort: %v", err)
	}
}

func TestMismatchedRoster(t *testing.T) {
	_, err := New(Config{
		Setup: state.Setup{
			DeathRadius: 5,
			Spawns:      []hexagon.Hex{{Q: 1, R: 0}, {Q: -1, R: 0}},
		},
		Bots: []bot.Factory{idleFactory()},
	}, Dependencies{})
	if err == nil {
		t.Fatal("New with mismatched roster should fail")
	}
}

// recordingBackend counts storage calls for wiring tests.
type recordingBackend struct {
	started int
	ended   int
	steps   int
	battles []model.Battle
}

func (r *recordingBackend) Init() error  { return nil }
func (r *recordingBackend) Close() error { return nil }
func (r *recordingBackend) StartBattle(b *model.Battle, units []*model.Unit) error {
	r.started++
	b.ID = uint(r.started)
	return nil
}
func (r *recordingBackend) EndBattle(b *model.Battle, units []*model.Unit) error {
	r.ended++
	r.battles = append(r.battles, *b)
	return nil
}
func (r *recordingBackend) RecordStep(s *model.Step) error {
	r.steps++
	if s.Snapshot == nil {
		return errors.New("missing snapshot")
	}
	return nil
}

func TestStorageWiring(t *testing.T) {
	backend := &recordingBackend{}
	b, err := New(Config{
		Setup: state.Setup{
			DeathRadius: 3,
			Spawns:      []hexagon.Hex{{Q: 1, R: 0}, {Q: -1, R: 0}},
			Seed:        9,
		},
		MapName: "test-map",
		Bots:    []bot.Factory{idleFactory(), idleFactory()},
	}, Dependencies{Storage: backend})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := b.PlayAll(context.Background()); err != nil {
		t.Fatalf("PlayAll: %v", err)
	}
	if backend.started != 1 || backend.ended != 1 {
		t.Errorf("start/end calls = %d/%d, want 1/1", backend.started, backend.ended)
	}
	if backend.steps != len(b.Records()) {
		t.Errorf("recorded steps = %d, want %d", backend.steps, len(b.Records()))
	}
	final := backend.battles[0]
	if final.MapName != "test-map" || !final.Draw {
		t.Errorf("final record = %+v, want a draw on test-map", final)
	}
}
