// internal/storage/storage.go
package storage

import "github.com/ArielHorwitz/botroyale/internal/model"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Battle management. StartBattle assigns the record ID used by the
	// step records that follow. EndBattle receives the final verdict and
	// each unit's outcome.
	StartBattle(b *model.Battle, units []*model.Unit) error
	EndBattle(b *model.Battle, units []*model.Unit) error

	// State recording
	RecordStep(s *model.Step) error
}

// Exportable is an optional interface for storage backends that produce
// replay files suitable for archiving or sharing.
type Exportable interface {
	GetExportedFilePath() string
}
