package cases

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/staffhub/backend/core"
)

// UpsertResult counts the outcome of writing a batch.
type UpsertResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

func (r *UpsertResult) Add(other UpsertResult) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Errors += other.Errors
}

// Written is the number of records stored.
func (r UpsertResult) Written() int { return r.Created + r.Updated }

// Processed is the number of records attempted.
func (r UpsertResult) Processed() int { return r.Created + r.Updated + r.Errors }

// Writer upserts batches of records. It assumes it is the only writer for the duration of a run.
type Writer struct {
	repo   Repository
	logger core.Logger
}

func NewWriter(repo Repository, logger core.Logger) *Writer {
	return &Writer{repo: repo, logger: logger}
}

// Upsert writes each record on its own. Failures are logged and counted, never returned.
func (w *Writer) Upsert(ctx context.Context, records ...Record) UpsertResult {
	var res UpsertResult
	for _, rec := range records {
		created, err := w.upsertOne(ctx, rec)
		switch {
		case err != nil:
			res.Errors++
			w.logger.Error(fmt.Sprintf("upserting %s %s: %v", rec.Entity(), rec.ExternalID(), err), err)
		case created:
			res.Created++
		default:
			res.Updated++
		}
	}
	return res
}

func (w *Writer) upsertOne(ctx context.Context, rec Record) (created bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()

	exists, err := w.repo.Exists(ctx, rec.Entity(), rec.ExternalID())
	if err != nil {
		return false, errors.Wrap(err, "looking up record")
	}
	if err = w.repo.Upsert(ctx, rec); err != nil {
		return false, errors.Wrap(err, "writing record")
	}
	return !exists, nil
}
