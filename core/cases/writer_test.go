package cases

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// mapRepo is a minimal Repository. Upsert fails or panics for the IDs in failOn and panicOn.
type mapRepo struct {
	rows      map[string]Record
	failOn    map[string]bool
	panicOn   map[string]bool
	existsErr error
}

func newMapRepo() *mapRepo {
	return &mapRepo{rows: make(map[string]Record), failOn: make(map[string]bool), panicOn: make(map[string]bool)}
}

func (r *mapRepo) key(e Entity, id string) string { return string(e) + "/" + id }

func (r *mapRepo) Exists(_ context.Context, e Entity, id string) (bool, error) {
	if r.existsErr != nil {
		return false, r.existsErr
	}
	_, ok := r.rows[r.key(e, id)]
	return ok, nil
}

func (r *mapRepo) Upsert(_ context.Context, rec Record) error {
	if r.panicOn[rec.ExternalID()] {
		panic("driver bug")
	}
	if r.failOn[rec.ExternalID()] {
		return errors.New("constraint violation")
	}
	r.rows[r.key(rec.Entity(), rec.ExternalID())] = rec
	return nil
}

func (r *mapRepo) Snapshot(context.Context) (Snapshot, error) { return Snapshot{}, nil }

func TestWriter_Upsert(t *testing.T) {
	ctx := context.Background()
	repo := newMapRepo()
	w := NewWriter(repo, new(testLogger))

	students := []Student{{CasesID: "S1"}, {CasesID: "S2"}}
	assert.Equal(t, UpsertResult{Created: 2}, w.Upsert(ctx, asRecords(students)...))

	students = append(students, Student{CasesID: "S3"}, Student{CasesID: "S4"}, Student{CasesID: "S5"})
	repo.failOn["S3"] = true
	repo.panicOn["S4"] = true

	res := w.Upsert(ctx, asRecords(students)...)
	assert.Equal(t, UpsertResult{Created: 1, Updated: 2, Errors: 2}, res)
	assert.Equal(t, 3, res.Written())
	assert.Equal(t, 5, res.Processed())
	assert.Contains(t, repo.rows, "students/S5", "records after failures are still written")
}

func TestWriter_Upsert_sameIDAcrossEntities(t *testing.T) {
	w := NewWriter(newMapRepo(), new(testLogger))
	res := w.Upsert(context.Background(), Student{CasesID: "X1"}, Staff{CasesID: "X1"}, Parent{CasesID: "X1"})
	assert.Equal(t, UpsertResult{Created: 3}, res)
}

func TestWriter_Upsert_lookupFailure(t *testing.T) {
	repo := newMapRepo()
	repo.existsErr = errors.New("connection reset")
	res := NewWriter(repo, new(testLogger)).Upsert(context.Background(), House{Code: "BLU"})
	assert.Equal(t, UpsertResult{Errors: 1}, res)
	assert.Empty(t, repo.rows)
}

func TestUpsertResult_Add(t *testing.T) {
	r := UpsertResult{Created: 1, Errors: 1}
	r.Add(UpsertResult{Created: 2, Updated: 3})
	assert.Equal(t, UpsertResult{Created: 3, Updated: 3, Errors: 1}, r)
}

func asRecords(students []Student) []Record {
	out := make([]Record, 0, len(students))
	for _, s := range students {
		out = append(out, s)
	}
	return out
}
