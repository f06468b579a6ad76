// internal/storage/gormstore/gormstore.go
package gormstore

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ArielHorwitz/botroyale/internal/model"
	"github.com/ArielHorwitz/botroyale/internal/queue"
)

// Default number of buffered step records that triggers a flush.
const defaultFlushEvery = 256

// Backend persists battle records through gorm. Step records are buffered
// on a queue and written in batches; the battle row is written on start and
// updated with the verdict on end.
type Backend struct {
	db         *gorm.DB
	log        zerolog.Logger
	stepQueue  *queue.Queue[model.Step]
	flushEvery int

	mu     sync.Mutex
	battle *model.Battle
}

// New creates a gorm-backed storage backend on an open database handle.
func New(db *gorm.DB, log zerolog.Logger) *Backend {
	return &Backend{
		db:         db,
		log:        log,
		stepQueue:  queue.New[model.Step](),
		flushEvery: defaultFlushEvery,
	}
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if err := b.db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Close flushes any buffered step records.
func (b *Backend) Close() error {
	return b.flush()
}

// StartBattle creates the battle and unit rows. The battle's record ID is
// assigned by the insert.
func (b *Backend) StartBattle(battle *model.Battle, units []*model.Unit) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.db.Create(battle).Error; err != nil {
		return fmt.Errorf("creating battle row: %w", err)
	}
	for _, unit := range units {
		unit.BattleRef = battle.ID
	}
	if len(units) > 0 {
		if err := b.db.Create(units).Error; err != nil {
			return fmt.Errorf("creating unit rows: %w", err)
		}
	}
	b.battle = battle
	b.log.Debug().Str("battleId", battle.BattleID).Msg("Battle record opened")
	return nil
}

// RecordStep buffers one step record, flushing when the buffer is full.
func (b *Backend) RecordStep(s *model.Step) error {
	b.stepQueue.Push(*s)
	if b.stepQueue.Len() >= b.flushEvery {
		return b.flush()
	}
	return nil
}

// EndBattle flushes the remaining steps and writes the verdict.
func (b *Backend) EndBattle(battle *model.Battle, units []*model.Unit) error {
	if err := b.flush(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.db.Save(battle).Error; err != nil {
		return fmt.Errorf("updating battle row: %w", err)
	}
	for _, unit := range units {
		err := b.db.Model(&model.Unit{}).
			Where("battle_ref = ? AND unit_id = ?", battle.ID, unit.UnitID).
			Updates(map[string]interface{}{
				"survived":   unit.Survived,
				"death_step": unit.DeathStep,
			}).Error
		if err != nil {
			return fmt.Errorf("updating unit %d: %w", unit.UnitID, err)
		}
	}
	b.log.Debug().
		Str("battleId", battle.BattleID).
		Int("steps", battle.Steps).
		Msg("Battle record closed")
	return nil
}

// flush writes all buffered step records in one batch.
func (b *Backend) flush() error {
	steps := b.stepQueue.GetAndEmpty()
	if len(steps) == 0 {
		return nil
	}
	if err := b.db.CreateInBatches(steps, b.flushEvery).Error; err != nil {
		return fmt.Errorf("writing %d step rows: %w", len(steps), err)
	}
	return nil
}
