package cases

import (
	"context"
	"errors"
	"time"
)

var ErrUnknownEntity = errors.New("unknown entity")

// SnapshotsKept is how many snapshots a repository retains; older ones are pruned
// when a new snapshot is saved.
const SnapshotsKept = 10

// Snapshot records the row counts of the store before a run.
type Snapshot struct {
	ID         string    `db:"id" json:"id"`
	Students   int       `db:"students" json:"students"`
	Staff      int       `db:"staff" json:"staff"`
	Enrolments int       `db:"enrolments" json:"enrolments"`
	Parents    int       `db:"parents" json:"parents"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Repository stores canonical records keyed by their CASES identity.
type Repository interface {
	// Exists reports whether a record of entity with the given CASES identity is stored.
	Exists(ctx context.Context, entity Entity, externalID string) (bool, error)
	// Upsert creates the record or updates the one with the same CASES identity.
	Upsert(ctx context.Context, rec Record) error
	// Snapshot saves and returns the current row counts, keeping the latest SnapshotsKept.
	Snapshot(ctx context.Context) (Snapshot, error)
}
