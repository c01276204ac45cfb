// Package state persists per-run provisioning checkpoints so an
// aborted run can resume instead of re-provisioning blindly.
package state

import (
	"fmt"
	"log"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// Run records one deployment attempt and its completed checkpoints.
type Run struct {
	gorm.Model
	RunID             string `gorm:"uniqueIndex"`
	UnitID            int
	Hostname          string
	Stage             string
	UnitCreated       bool
	UnitStarted       bool
	BootstrapRun      bool
	ServiceRegistered bool
}

// Store is the checkpoint database.
type Store struct {
	db *gorm.DB
}

// NewStore opens (or creates) the checkpoint database and runs
// auto-migrations.
func NewStore(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("could not open checkpoint database: %w", err)
	}
	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("could not migrate checkpoint database: %w", err)
	}
	return &Store{db: db}, nil
}

// Begin records a fresh run.
func (s *Store) Begin(runID string, unitID int, hostname string) (*Run, error) {
	run := &Run{RunID: runID, UnitID: unitID, Hostname: hostname, Stage: "collecting"}
	if err := s.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("could not record run %s: %w", runID, err)
	}
	log.Printf("[INFO] Recorded run %s for unit %d", runID, unitID)
	return run, nil
}

// Load fetches a previously recorded run by its identifier.
func (s *Store) Load(runID string) (*Run, error) {
	var run Run
	if err := s.db.First(&run, "run_id = ?", runID).Error; err != nil {
		return nil, fmt.Errorf("could not load run %s: %w", runID, err)
	}
	return &run, nil
}

// Save persists the run's current stage and checkpoint flags.
func (s *Store) Save(run *Run) error {
	if err := s.db.Save(run).Error; err != nil {
		return fmt.Errorf("could not save run %s: %w", run.RunID, err)
	}
	return nil
}
