package model

import (
	"encoding/json"
	"sort"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ArielHorwitz/botroyale/pkg/hexagon"
	"github.com/ArielHorwitz/botroyale/pkg/state"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent
// tables in the database schema
var DatabaseModels = []interface{}{
	&Battle{},
	&Unit{},
	&Step{},
}

// Battle is one recorded battle from setup to verdict.
type Battle struct {
	gorm.Model
	BattleID  string    `json:"battleId" gorm:"size:36;uniqueIndex"`
	MapName   string    `json:"mapName" gorm:"size:127"`
	Seed      int64     `json:"seed"`
	NumUnits  int       `json:"numUnits"`
	Rounds    int       `json:"rounds"`
	Steps     int       `json:"steps"`
	Winner    int       `json:"winner"` // unit id, -1 on a draw or while live
	Draw      bool      `json:"draw"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}

func (*Battle) TableName() string {
	return "battles"
}

// Unit is one roster slot of a recorded battle.
type Unit struct {
	gorm.Model
	BattleRef uint   `json:"-" gorm:"index:idx_unit_battle"`
	Battle    Battle `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:BattleRef;"`
	UnitID    int    `json:"unitId"`
	BotName   string `json:"botName" gorm:"size:127"`
	SpawnQ    int    `json:"spawnQ"`
	SpawnR    int    `json:"spawnR"`
	Survived  bool   `json:"survived"`
	DeathStep int    `json:"deathStep"` // -1 when the unit survived
}

func (*Unit) TableName() string {
	return "units"
}

// Step is one poll-validate-apply cycle of a recorded battle, with the full
// state snapshot it produced for replay.
type Step struct {
	gorm.Model
	BattleRef  uint           `json:"-" gorm:"index:idx_step_battle"`
	Battle     Battle         `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:BattleRef;"`
	StepIndex  int            `json:"stepIndex" gorm:"index:idx_step_index"`
	Round      int            `json:"round"`
	Actor      int            `json:"actor"`
	ActionKind string         `json:"actionKind" gorm:"size:15"`
	TargetQ    int            `json:"targetQ"`
	TargetR    int            `json:"targetR"`
	Legal      bool           `json:"legal"`
	Fault      string         `json:"fault" gorm:"size:255"`
	Snapshot   datatypes.JSON `json:"snapshot"`
}

func (*Step) TableName() string {
	return "steps"
}

////////////////////////
// SNAPSHOT VIEW
////////////////////////

// StateSnapshot is the serializable view of a state, used for the JSON
// snapshot column and file exports. Hazard sets are flattened to sorted
// slices so identical states marshal to identical bytes.
type StateSnapshot struct {
	Positions    []hexagon.Hex `json:"positions"`
	Alive        []bool        `json:"alive"`
	AP           []int         `json:"ap"`
	RoundAPSpent []int         `json:"roundApSpent"`
	Casualties   []int         `json:"casualties"`
	DeathRadius  int           `json:"deathRadius"`
	Pits         []hexagon.Hex `json:"pits"`
	Walls        []hexagon.Hex `json:"walls"`
	StepCount    int           `json:"stepCount"`
	TurnCount    int           `json:"turnCount"`
	RoundCount   int           `json:"roundCount"`
	Seed         int64         `json:"seed"`
}

// NewStateSnapshot flattens a state for serialization.
func NewStateSnapshot(s *state.State) StateSnapshot {
	return StateSnapshot{
		Positions:    append([]hexagon.Hex(nil), s.Positions...),
		Alive:        append([]bool(nil), s.Alive...),
		AP:           append([]int(nil), s.AP...),
		RoundAPSpent: append([]int(nil), s.RoundAPSpent...),
		Casualties:   append([]int(nil), s.Casualties...),
		DeathRadius:  s.DeathRadius,
		Pits:         sortedHexes(s.Pits),
		Walls:        sortedHexes(s.Walls),
		StepCount:    s.StepCount,
		TurnCount:    s.TurnCount,
		RoundCount:   s.RoundCount,
		Seed:         s.Seed,
	}
}

// MarshalSnapshot renders a state snapshot as a JSON column value.
func MarshalSnapshot(s *state.State) (datatypes.JSON, error) {
	raw, err := json.Marshal(NewStateSnapshot(s))
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func sortedHexes(set map[hexagon.Hex]bool) []hexagon.Hex {
	hexes := make([]hexagon.Hex, 0, len(set))
	for h := range set {
		hexes = append(hexes, h)
	}
	sort.Slice(hexes, func(i, j int) bool {
		if hexes[i].Q != hexes[j].Q {
			return hexes[i].Q < hexes[j].Q
		}
		return hexes[i].R < hexes[j].R
	})
	return hexes
}
