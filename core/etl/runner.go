package etl

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/staffhub/backend/core"
	"github.com/staffhub/backend/core/cases"
)

const DefaultRollbackThreshold = 0.1

type (
	// FileSource gives access to a CASES export directory.
	FileSource interface {
		Dir() string
		ValidateDirectory(ctx context.Context) bool
		LoadAll(ctx context.Context) (map[string]string, error)
	}

	// LayoutResolver resolves the layout of a CASES file.
	LayoutResolver interface {
		ResolveLayout(filename string) (cases.FileLayout, error)
	}

	// Archiver keeps a copy of the processed files.
	Archiver interface {
		ArchiveFiles(ctx context.Context, filenames []string) error
		CleanupOldArchives(ctx context.Context, daysToKeep int) int
	}

	// Locker guarantees a single active run.
	Locker interface {
		Acquire(ctx context.Context) (release func(), err error)
	}

	// Snapshotter saves the state of the store before a run.
	Snapshotter interface {
		Snapshot(ctx context.Context) (cases.Snapshot, error)
	}
)

// Options are the collaborators of a Runner. Publisher and Archiver are optional.
type Options struct {
	Source      FileSource
	NewResolver func() LayoutResolver // called once per run
	Validator   *cases.Validator
	Mapper      *cases.Mapper
	Writer      *cases.Writer
	Snapshots   Snapshotter
	Archiver    Archiver
	Metrics     *Collector
	Publisher   MetricsPublisher
	Notifier    *Notifier
	Lock        Locker
	Logger      core.Logger

	Retry                Policy
	RollbackThreshold    float64
	ArchiveRetentionDays int
	Now                  func() time.Time
}

// Runner runs the CASES ETL pipeline.
type Runner struct {
	opts Options
}

func NewRunner(opts Options) (*Runner, error) {
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(opts.Source, "Source"),
		vala.IsNotNil(opts.NewResolver, "NewResolver"),
		vala.IsNotNil(opts.Validator, "Validator"),
		vala.IsNotNil(opts.Mapper, "Mapper"),
		vala.IsNotNil(opts.Writer, "Writer"),
		vala.IsNotNil(opts.Snapshots, "Snapshots"),
		vala.IsNotNil(opts.Metrics, "Metrics"),
		vala.IsNotNil(opts.Notifier, "Notifier"),
		vala.IsNotNil(opts.Lock, "Lock"),
		vala.IsNotNil(opts.Logger, "Logger"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "etl.NewRunner")
	}

	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultPolicy()
	}
	if opts.Retry.IsRetryable == nil {
		opts.Retry.IsRetryable = notCancelled
	}
	if opts.RollbackThreshold <= 0 {
		opts.RollbackThreshold = DefaultRollbackThreshold
	}
	if opts.ArchiveRetentionDays <= 0 {
		opts.ArchiveRetentionDays = 30
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{opts: opts}, nil
}

// fatalError aborts a run.
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Cause() error  { return e.err }

func fatal(err error) error { return &fatalError{err: err} }

// run is the state of one invocation.
type run struct {
	*Runner
	ctx      context.Context
	machine  *machine
	result   RunResult
	metrics  RunMetrics
	resolver LayoutResolver
	final    bool
}

// Run executes one complete ETL run. It never panics: fatal errors end the run with
// Success false and the error appended to Errors.
func (r *Runner) Run(ctx context.Context) RunResult {
	return r.RunAttempt(ctx, true)
}

// RunAttempt is Run for a caller that retries fatal runs: unless final, a fatal
// result records its metrics but sends no error notification.
func (r *Runner) RunAttempt(ctx context.Context, final bool) (result RunResult) {
	rn := &run{
		Runner:  r,
		ctx:     ctx,
		machine: newMachine(),
		result:  newRunResult(uuid.New().String()),
		final:   final,
	}
	rn.metrics = RunMetrics{RunID: rn.result.RunID, StartTime: r.opts.Now()}

	defer func() {
		if p := recover(); p != nil {
			r.opts.Logger.Error(fmt.Sprintf("CASES ETL run %s panicked: %v", rn.result.RunID, p))
			rn.result.Errors = append(rn.result.Errors, fmt.Sprintf("unexpected failure: %v", p))
			rn.result.Success = false
			rn.result.Fatal = true
			rn.result.State = StateFailed
		}
		result = rn.result
	}()

	r.opts.Logger.Info(fmt.Sprintf("starting CASES ETL run %s (directory %s)", rn.result.RunID, r.opts.Source.Dir()))

	release, err := r.opts.Lock.Acquire(ctx)
	if err != nil {
		rn.fail(err)
		return rn.result
	}
	defer release()

	if err := rn.execute(); err != nil {
		rn.fail(err)
		return rn.result
	}
	rn.finish()
	return rn.result
}

func (rn *run) move(to State) {
	if err := rn.machine.moveTo(to); err != nil {
		// transitions are fixed by execute; an invalid one is a programming error
		panic(err)
	}
	rn.result.State = to
}

func (rn *run) execute() error {
	opts := rn.opts

	rn.snapshot()
	rn.move(StateSnapshotAttempted)

	err := Retry(rn.ctx, rn.retryPolicy("validating CASES directory"), func(ctx context.Context) error {
		if !opts.Source.ValidateDirectory(ctx) {
			return errors.Errorf("CASES directory not found: %s", opts.Source.Dir())
		}
		return nil
	})
	if err != nil {
		return err
	}
	rn.move(StateDirectoryValidated)

	var files map[string]string
	err = Retry(rn.ctx, rn.retryPolicy("loading CASES files"), func(ctx context.Context) error {
		var lErr error
		files, lErr = opts.Source.LoadAll(ctx)
		return lErr
	})
	if err != nil {
		return err
	}
	rn.move(StateFilesLoaded)
	rn.metrics.FilesProcessed = len(files)
	opts.Logger.Info(fmt.Sprintf("loaded %d CASES files", len(files)))

	rn.resolver = opts.NewResolver()
	for _, st := range rn.steps() {
		text, ok := files[st.filename]
		if !ok {
			continue
		}
		if err := rn.process(st, text); err != nil {
			return err
		}
	}

	rn.archive(files)
	rn.move(StateArchived)
	return nil
}

func (rn *run) retryPolicy(what string) Policy {
	p := rn.opts.Retry
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		rn.opts.Logger.Warn(fmt.Sprintf("%s failed (attempt %d/%d), retrying in %s: %v", what, attempt, p.MaxAttempts, delay, err))
	}
	return p
}

func (rn *run) snapshot() {
	snap, err := rn.opts.Snapshots.Snapshot(rn.ctx)
	if err != nil {
		rn.opts.Logger.Warn(fmt.Sprintf("pre-run snapshot failed, continuing without rollback point: %v", err), err)
		return
	}
	rn.result.SnapshotID = snap.ID
	rn.opts.Logger.Info(fmt.Sprintf("created pre-run snapshot %s (students=%d staff=%d enrolments=%d parents=%d)",
		snap.ID, snap.Students, snap.Staff, snap.Enrolments, snap.Parents))
}

// step is the pipeline of one entity.
type step struct {
	entity   cases.Entity
	filename string
	validate func(cases.Fields) error
	toRecord func(cases.Fields) cases.Record
	// countInvalid reports invalid records in the run errors
	countInvalid bool
	store        func(stats *Stats, res cases.UpsertResult)
}

func (rn *run) steps() []step {
	v, m := rn.opts.Validator, rn.opts.Mapper
	return []step{
		{
			entity: cases.EntityStudent, filename: cases.StudentFile, countInvalid: true,
			validate: v.ValidateStudent,
			toRecord: func(f cases.Fields) cases.Record { return m.Student(f) },
			store:    func(s *Stats, res cases.UpsertResult) { s.Students = res },
		},
		{
			entity: cases.EntityStaff, filename: cases.StaffFile, countInvalid: true,
			validate: v.ValidateStaff,
			toRecord: func(f cases.Fields) cases.Record { return m.Staff(f) },
			store:    func(s *Stats, res cases.UpsertResult) { s.Staff = res },
		},
		{
			entity: cases.EntityEnrolment, filename: cases.EnrolmentFile,
			validate: v.ValidateEnrolment,
			toRecord: func(f cases.Fields) cases.Record { return m.Enrolment(f) },
			store:    func(s *Stats, res cases.UpsertResult) { s.Enrolments = res.Written() },
		},
		{
			entity: cases.EntityParent, filename: cases.ParentFile,
			validate: v.ValidateParent,
			toRecord: func(f cases.Fields) cases.Record { return m.Parent(f) },
			store:    func(s *Stats, res cases.UpsertResult) { s.Parents = res.Written() },
		},
		{
			entity: cases.EntityHomeGroup, filename: cases.HomeGroupFile,
			validate: v.ValidateHomeGroup,
			toRecord: func(f cases.Fields) cases.Record { return m.HomeGroup(f) },
			store:    func(s *Stats, res cases.UpsertResult) { s.HomeGroups = res.Written() },
		},
		{
			entity: cases.EntityHouse, filename: cases.HouseFile,
			validate: v.ValidateHouse,
			toRecord: func(f cases.Fields) cases.Record { return m.House(f) },
			store:    func(s *Stats, res cases.UpsertResult) { s.Houses = res.Written() },
		},
	}
}

// process runs one entity. Entity failures are recorded and swallowed; only a fatal error is returned.
func (rn *run) process(st step, text string) error {
	rn.move(StateProcessing)
	rn.machine.entity = string(st.entity)

	err := rn.processEntity(st, text)
	if err == nil {
		return nil
	}
	var fe *fatalError
	if errors.As(err, &fe) {
		return fe.err
	}
	rn.opts.Logger.Error(fmt.Sprintf("failed to process %s: %v", st.entity, err), err)
	rn.result.Errors = append(rn.result.Errors, fmt.Sprintf("%s: %v", st.entity.Label(), err))
	return nil
}

func (rn *run) processEntity(st step, text string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("panic: %v", p)
		}
	}()
	logger := rn.opts.Logger

	layout, err := rn.resolver.ResolveLayout(st.filename)
	if err != nil {
		return fatal(errors.Wrapf(err, "resolving layout of %s", st.filename))
	}

	var raw []cases.RawRecord
	if layout.IsCSV() {
		if raw, err = cases.ParseCSV(text, layout.Headers()...); err != nil {
			return errors.Wrapf(err, "parsing %s", st.filename)
		}
	} else {
		raw = cases.ParseFixedWidth(text, layout.Columns)
	}
	logger.Info(fmt.Sprintf("parsed %d %s records", len(raw), st.entity))

	fields := make([]cases.Fields, 0, len(raw))
	for _, rec := range raw {
		fields = append(fields, cases.ApplyFieldMapping(rec, layout).Fields())
	}

	outcome := cases.ValidateBatch(fields, st.validate)
	if n := len(outcome.Invalid); n > 0 {
		logger.Warn(fmt.Sprintf("%d invalid %s records found (first: %s)", n, st.entity, outcome.Invalid[0].Error))
		if st.countInvalid {
			rn.result.Errors = append(rn.result.Errors, fmt.Sprintf("%d invalid %s records", n, singular(st.entity)))
		}
	}

	records := make([]cases.Record, 0, len(outcome.Valid))
	for _, f := range outcome.Valid {
		records = append(records, st.toRecord(f))
	}
	res := rn.opts.Writer.Upsert(rn.ctx, records...)
	logger.Info(fmt.Sprintf("upserted %s: created=%d updated=%d errors=%d", st.entity, res.Created, res.Updated, res.Errors))

	st.store(&rn.result.Stats, res)
	rn.metrics.RecordsProcessed += len(raw)
	rn.metrics.RecordsCreated += res.Created
	rn.metrics.RecordsUpdated += res.Updated
	rn.metrics.RecordsErrored += len(outcome.Invalid) + res.Errors
	return nil
}

func singular(e cases.Entity) string {
	if e == cases.EntityStudent {
		return "student"
	}
	return string(e)
}

func (rn *run) archive(files map[string]string) {
	if rn.opts.Archiver == nil {
		return
	}
	filenames := make([]string, 0, len(files))
	for name := range files {
		filenames = append(filenames, name)
	}
	sort.Strings(filenames)

	if err := rn.opts.Archiver.ArchiveFiles(rn.ctx, filenames); err != nil {
		rn.opts.Logger.Error(fmt.Sprintf("failed to archive CASES files: %v", err), err)
		rn.result.Errors = append(rn.result.Errors, fmt.Sprintf("Archive: %v", err))
		return
	}
	rn.opts.Logger.Info(fmt.Sprintf("archived %d CASES files", len(filenames)))

	if removed := rn.opts.Archiver.CleanupOldArchives(rn.ctx, rn.opts.ArchiveRetentionDays); removed > 0 {
		rn.opts.Logger.Info(fmt.Sprintf("removed %d archives older than %d days", removed, rn.opts.ArchiveRetentionDays))
	}
}

// finish completes a run that was not aborted.
func (rn *run) finish() {
	opts := rn.opts
	errorRate := ErrorRate(rn.metrics.RecordsErrored, rn.metrics.RecordsProcessed)
	rn.result.RollbackRecommended = errorRate > opts.RollbackThreshold
	rn.result.Success = len(rn.result.Errors) == 0 && errorRate < opts.RollbackThreshold
	if rn.result.RollbackRecommended {
		opts.Logger.Warn(fmt.Sprintf("error rate %.1f%% exceeds %.1f%%: rollback to snapshot %q recommended",
			errorRate*100, opts.RollbackThreshold*100, rn.result.SnapshotID))
	}

	rn.recordMetrics()
	rn.move(StateMetricsFinalized)

	stats := rn.result.Stats
	switch {
	case rn.result.Success:
		opts.Notifier.NotifySuccess(rn.ctx, stats)
	case rn.result.RollbackRecommended:
		opts.Notifier.NotifyError(rn.ctx, fmt.Sprintf("ETL error rate %.1f%% exceeds the rollback threshold.", errorRate*100), rn.result.Errors, &stats)
	default:
		opts.Notifier.NotifyWarning(rn.ctx, fmt.Sprintf("ETL completed with %d errors.", len(rn.result.Errors)), &stats, rn.result.Errors)
	}
	rn.move(StateNotificationsSent)
	rn.move(StateDone)

	opts.Logger.Info(fmt.Sprintf("CASES ETL run %s completed: success=%t errors=%d", rn.result.RunID, rn.result.Success, len(rn.result.Errors)))
}

// fail ends an aborted run.
func (rn *run) fail(err error) {
	opts := rn.opts
	opts.Logger.Error(fmt.Sprintf("CASES ETL run %s failed: %v", rn.result.RunID, err), err)

	rn.result.Errors = append(rn.result.Errors, err.Error())
	rn.result.Success = false
	rn.result.Fatal = true
	rn.result.State = StateFailed
	_ = rn.machine.moveTo(StateFailed)

	rn.recordMetrics()
	if !rn.final {
		opts.Logger.Info(fmt.Sprintf("CASES ETL run %s will be retried, failure notification skipped", rn.result.RunID))
		return
	}
	stats := rn.result.Stats
	opts.Notifier.NotifyError(rn.ctx, err.Error(), rn.result.Errors, &stats)
}

func (rn *run) recordMetrics() {
	rn.metrics.Finalize(rn.opts.Now(), rn.result.Success)
	rn.opts.Metrics.Record(rn.metrics)
	if rn.opts.Publisher == nil {
		return
	}
	if err := rn.opts.Publisher.Publish(rn.ctx, rn.metrics); err != nil {
		rn.opts.Logger.Warn(fmt.Sprintf("publishing ETL metrics: %v", err), err)
	}
}
