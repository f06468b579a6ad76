// Package maps provides named battlefield definitions: initial death
// radius, spawn positions, and static hazards. Definitions come from the
// builtin generator or from JSON files on disk, and produce the setup the
// battle engine consumes.
package maps

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ArielHorwitz/botroyale/pkg/hexagon"
	"github.com/ArielHorwitz/botroyale/pkg/state"
)

// DefaultRadius is the death radius of the generated default map.
const DefaultRadius = 12

// Definition describes a named battlefield. Definitions are treated as
// read-only once registered.
type Definition struct {
	Name        string
	DeathRadius int
	Spawns      []hexagon.Hex
	Pits        map[hexagon.Hex]bool
	Walls       map[hexagon.Hex]bool
}

var (
	registryMutex sync.RWMutex
	registry      = make(map[string]*Definition)
)

func init() {
	def, err := Generate("default", 8, DefaultRadius)
	if err != nil {
		panic(fmt.Sprintf("generating default map: %v", err))
	}
	Register(def)
}

// Register adds a definition to the registry, replacing any existing map
// with the same name. Maps loaded from disk override builtins.
func Register(d *Definition) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	registry[d.Name] = d
}

// Get returns a registered definition by name.
func Get(name string) (*Definition, bool) {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	d, ok := registry[name]
	return d, ok
}

// Names returns the sorted names of all registered maps.
func Names() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Generate builds a hazard-free map with spawns spread evenly around the
// ring at half the death radius.
func Generate(name string, numSpawns, radius int) (*Definition, error) {
	if radius < 3 {
		return nil, fmt.Errorf("death radius %d, must be at least 3", radius)
	}
	ring := hexagon.Ring(hexagon.Center, radius/2)
	if numSpawns < 1 || numSpawns > len(ring) {
		return nil, fmt.Errorf("%d spawns, spawn ring holds 1 to %d", numSpawns, len(ring))
	}
	spawns := make([]hexagon.Hex, numSpawns)
	for i := range spawns {
		spawns[i] = ring[i*len(ring)/numSpawns]
	}
	return &Definition{
		Name:        name,
		DeathRadius: radius,
		Spawns:      spawns,
		Pits:        make(map[hexagon.Hex]bool),
		Walls:       make(map[hexagon.Hex]bool),
	}, nil
}

// Validate reports whether the definition describes a playable map:
// non-empty distinct spawns that are clear of hazards and will survive the
// first radius contraction, and hazards that do not overlap.
func (d *Definition) Validate() error {
	if d.DeathRadius < 3 {
		return fmt.Errorf("death radius %d, must be at least 3", d.DeathRadius)
	}
	if len(d.Spawns) == 0 {
		return fmt.Errorf("no spawn positions")
	}
	seen := make(map[hexagon.Hex]int, len(d.Spawns))
	for uid, spawn := range d.Spawns {
		if other, ok := seen[spawn]; ok {
			return fmt.Errorf("spawns %d and %d share hex (%d, %d)", other, uid, spawn.Q, spawn.R)
		}
		seen[spawn] = uid
		if d.Walls[spawn] {
			return fmt.Errorf("spawn %d is on a wall (%d, %d)", uid, spawn.Q, spawn.R)
		}
		if d.Pits[spawn] {
			return fmt.Errorf("spawn %d is on a pit (%d, %d)", uid, spawn.Q, spawn.R)
		}
		if dist := hexagon.Distance(spawn, hexagon.Center); dist >= d.DeathRadius-1 {
			return fmt.Errorf("spawn %d at distance %d would not survive the first contraction of radius %d", uid, dist, d.DeathRadius)
		}
	}
	for pit := range d.Pits {
		if d.Walls[pit] {
			return fmt.Errorf("pit and wall overlap at (%d, %d)", pit.Q, pit.R)
		}
	}
	return nil
}

// Setup converts the definition into a battle setup with the given seed.
// Spawns are copied; hazard sets are shared, matching how states share
// them downstream.
func (d *Definition) Setup(seed int64) state.Setup {
	spawns := make([]hexagon.Hex, len(d.Spawns))
	copy(spawns, d.Spawns)
	return state.Setup{
		DeathRadius: d.DeathRadius,
		Spawns:      spawns,
		Pits:        d.Pits,
		Walls:       d.Walls,
		Seed:        seed,
	}
}

// mapFile is the on-disk JSON layout. Coordinates are offset (x, y) pairs.
type mapFile struct {
	DeathRadius int      `json:"death_radius"`
	Positions   [][2]int `json:"positions"`
	Pits        [][2]int `json:"pits"`
	Walls       [][2]int `json:"walls"`
}

// Load reads and validates a map definition from a JSON file. The map
// name is the file name without its extension.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading map file: %w", err)
	}
	var mf mapFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parsing map file %s: %w", path, err)
	}
	d := &Definition{
		Name:        strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		DeathRadius: mf.DeathRadius,
		Spawns:      make([]hexagon.Hex, 0, len(mf.Positions)),
		Pits:        make(map[hexagon.Hex]bool, len(mf.Pits)),
		Walls:       make(map[hexagon.Hex]bool, len(mf.Walls)),
	}
	for _, xy := range mf.Positions {
		d.Spawns = append(d.Spawns, hexagon.FromOffset(xy[0], xy[1]))
	}
	for _, xy := range mf.Pits {
		d.Pits[hexagon.FromOffset(xy[0], xy[1])] = true
	}
	for _, xy := range mf.Walls {
		d.Walls[hexagon.FromOffset(xy[0], xy[1])] = true
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("map %q: %w", d.Name, err)
	}
	return d, nil
}

// Save writes the definition as <name>.json under dir. Hazards are
// written in sorted order so saved files are deterministic.
func (d *Definition) Save(dir string) error {
	mf := mapFile{
		DeathRadius: d.DeathRadius,
		Positions:   make([][2]int, 0, len(d.Spawns)),
		Pits:        offsetPairs(d.Pits),
		Walls:       offsetPairs(d.Walls),
	}
	for _, spawn := range d.Spawns {
		x, y := spawn.Offset()
		mf.Positions = append(mf.Positions, [2]int{x, y})
	}
	data, err := json.MarshalIndent(mf, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding map %q: %w", d.Name, err)
	}
	path := filepath.Join(dir, d.Name+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing map file: %w", err)
	}
	return nil
}

// LoadDir loads and registers every .json map under dir, returning the
// number registered. A missing directory is not an error.
func LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading maps directory: %w", err)
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		d, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return loaded, err
		}
		Register(d)
		loaded++
	}
	return loaded, nil
}

func offsetPairs(set map[hexagon.Hex]bool) [][2]int {
	pairs := make([][2]int, 0, len(set))
	for hex := range set {
		x, y := hex.Offset()
		pairs = append(pairs, [2]int{x, y})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][1] != pairs[j][1] {
			return pairs[i][1] < pairs[j][1]
		}
		return pairs[i][0] < pairs[j][0]
	})
	return pairs
}
