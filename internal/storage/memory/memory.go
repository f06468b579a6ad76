// internal/storage/memory/memory.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ArielHorwitz/botroyale/internal/model"
)

// Config holds in-memory/JSON storage backend settings.
type Config struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// Export is the on-disk replay document: the battle summary, the roster,
// and every step with its state snapshot.
type Export struct {
	Battle model.Battle `json:"battle"`
	Units  []model.Unit `json:"units"`
	Steps  []model.Step `json:"steps"`
}

// Backend stores battle data in memory and exports it to a JSON replay file
// when the battle ends.
type Backend struct {
	cfg Config

	battle *model.Battle
	units  []*model.Unit
	steps  []model.Step

	exportedPath string
	mu           sync.RWMutex
}

// New creates a new memory backend.
func New(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend.
func (b *Backend) Init() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	return os.MkdirAll(b.cfg.OutputDir, 0o755)
}

// Close cleans up resources.
func (b *Backend) Close() error {
	return nil
}

// StartBattle begins recording a new battle.
func (b *Backend) StartBattle(battle *model.Battle, units []*model.Unit) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	battle.ID = 1
	b.battle = battle
	b.units = units
	b.steps = nil
	b.exportedPath = ""
	return nil
}

// RecordStep buffers one step record.
func (b *Backend) RecordStep(s *model.Step) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.battle == nil {
		return fmt.Errorf("no battle in progress")
	}
	b.steps = append(b.steps, *s)
	return nil
}

// EndBattle finalizes the battle and exports the replay file.
func (b *Backend) EndBattle(battle *model.Battle, units []*model.Unit) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.battle = battle
	b.units = units
	return b.exportJSON()
}

// Steps returns the buffered step records, for in-process replay consumers.
func (b *Backend) Steps() []model.Step {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]model.Step(nil), b.steps...)
}

// GetExportedFilePath returns the path of the last exported replay file, or
// empty if none was written.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.exportedPath
}

// exportJSON writes the battle data to a JSON file, gzipped when configured.
func (b *Backend) exportJSON() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	export := Export{
		Battle: *b.battle,
		Steps:  b.steps,
	}
	for _, unit := range b.units {
		export.Units = append(export.Units, *unit)
	}

	name := fmt.Sprintf("battle.%s.json", b.battle.BattleID)
	if b.cfg.CompressOutput {
		name += ".gz"
	}
	path := filepath.Join(b.cfg.OutputDir, name)

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer file.Close()

	if b.cfg.CompressOutput {
		gz := gzip.NewWriter(file)
		if err := json.NewEncoder(gz).Encode(export); err != nil {
			gz.Close()
			return fmt.Errorf("encoding export: %w", err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("closing gzip writer: %w", err)
		}
	} else {
		enc := json.NewEncoder(file)
		enc.SetIndent("", "  ")
		if err := enc.Encode(export); err != nil {
			return fmt.Errorf("encoding export: %w", err)
		}
	}

	b.exportedPath = path
	return nil
}
