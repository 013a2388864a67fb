package inmemdb

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/staffhub/backend/core/cases"
)

type table map[string]cases.Record // {externalID: record}

// casesRepository keeps records in memory. Used by tests and dry runs.
type casesRepository struct {
	mutex     sync.RWMutex
	tables    map[cases.Entity]table
	snapshots []cases.Snapshot
	now       func() time.Time
}

var _ cases.Repository = (*casesRepository)(nil)

func NewCasesRepository() *casesRepository {
	tables := make(map[cases.Entity]table)
	for _, e := range []cases.Entity{
		cases.EntityStudent, cases.EntityStaff, cases.EntityEnrolment,
		cases.EntityParent, cases.EntityHomeGroup, cases.EntityHouse,
	} {
		tables[e] = make(table)
	}
	return &casesRepository{tables: tables, now: time.Now}
}

func (repo *casesRepository) Exists(_ context.Context, entity cases.Entity, externalID string) (bool, error) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	tbl, ok := repo.tables[entity]
	if !ok {
		return false, cases.ErrUnknownEntity
	}
	_, exists := tbl[externalID]
	return exists, nil
}

func (repo *casesRepository) Upsert(_ context.Context, rec cases.Record) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	tbl, ok := repo.tables[rec.Entity()]
	if !ok {
		return cases.ErrUnknownEntity
	}
	tbl[rec.ExternalID()] = rec
	return nil
}

func (repo *casesRepository) Snapshot(_ context.Context) (cases.Snapshot, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	snap := cases.Snapshot{
		ID:         uuid.NewString(),
		Students:   len(repo.tables[cases.EntityStudent]),
		Staff:      len(repo.tables[cases.EntityStaff]),
		Enrolments: len(repo.tables[cases.EntityEnrolment]),
		Parents:    len(repo.tables[cases.EntityParent]),
		CreatedAt:  repo.now().UTC(),
	}
	repo.snapshots = append(repo.snapshots, snap)
	if extra := len(repo.snapshots) - cases.SnapshotsKept; extra > 0 {
		repo.snapshots = append([]cases.Snapshot(nil), repo.snapshots[extra:]...)
	}
	return snap, nil
}

// Get returns a stored record.
func (repo *casesRepository) Get(entity cases.Entity, externalID string) (cases.Record, bool) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()
	rec, ok := repo.tables[entity][externalID]
	return rec, ok
}

// Count returns the number of stored records of entity.
func (repo *casesRepository) Count(entity cases.Entity) int {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()
	return len(repo.tables[entity])
}

// Snapshots returns the most recent snapshots, newest first.
func (repo *casesRepository) Snapshots(_ context.Context, limit int) ([]cases.Snapshot, error) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()
	snaps := make([]cases.Snapshot, 0, limit)
	for i := len(repo.snapshots) - 1; i >= 0 && len(snaps) < limit; i-- {
		snaps = append(snaps, repo.snapshots[i])
	}
	return snaps, nil
}
