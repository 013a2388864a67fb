// Package jobs queues CASES ETL runs and executes them one at a time.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/staffhub/backend/core"
	"github.com/staffhub/backend/core/etl"
)

type Kind string

const (
	KindManual  Kind = "manual"
	KindNightly Kind = "nightly"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const (
	queueSize  = 16
	maxHistory = 100
)

var ErrQueueFull = errors.New("ETL job queue is full")

// Runner runs one attempt of an ETL pass; *etl.Runner satisfies it.
// Only the final attempt notifies a fatal failure.
type Runner interface {
	RunAttempt(ctx context.Context, final bool) etl.RunResult
}

type Job struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	Status     Status         `json:"status"`
	Attempts   int            `json:"attempts"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
	Result     *etl.RunResult `json:"result,omitempty"`
}

// JobRetryPolicy makes 3 attempts, waiting 5s then 10s.
func JobRetryPolicy() etl.Policy {
	return etl.Policy{MaxAttempts: 3, BaseDelay: 5 * time.Second, Multiplier: 2}
}

type Options struct {
	Runner    Runner
	Logger    core.Logger
	Retry     etl.Policy
	NightlyAt time.Duration // offset from local midnight; negative disables the nightly run
	Now       func() time.Time
}

// Scheduler runs queued jobs on a single worker, so runs never overlap within a process.
type Scheduler struct {
	runner    Runner
	logger    core.Logger
	retry     etl.Policy
	nightlyAt time.Duration
	now       func() time.Time

	queue chan string

	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string // job IDs, oldest first
}

func NewScheduler(opts Options) (*Scheduler, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(opts.Runner, "Runner"),
		vala.IsNotNil(opts.Logger, "Logger"),
	).Check(); err != nil {
		return nil, err
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = JobRetryPolicy()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		runner:    opts.Runner,
		logger:    opts.Logger,
		retry:     opts.Retry,
		nightlyAt: opts.NightlyAt,
		now:       opts.Now,
		queue:     make(chan string, queueSize),
		jobs:      make(map[string]*Job),
	}, nil
}

// Trigger queues a run and returns its job ID.
func (s *Scheduler) Trigger(kind Kind) (string, error) {
	job := &Job{ID: uuid.NewString(), Kind: kind, Status: StatusQueued, EnqueuedAt: s.now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case s.queue <- job.ID:
	default:
		return "", ErrQueueFull
	}
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	s.prune()

	s.logger.Info(fmt.Sprintf("queued %s CASES ETL job %s", kind, job.ID))
	return job.ID, nil
}

// prune drops the oldest finished jobs past maxHistory. Callers hold mu.
func (s *Scheduler) prune() {
	for len(s.order) > maxHistory {
		oldest := s.jobs[s.order[0]]
		if oldest.Status == StatusQueued || oldest.Status == StatusRunning {
			return
		}
		delete(s.jobs, oldest.ID)
		s.order = s.order[1:]
	}
}

// Job returns a copy of the job with the given ID.
func (s *Scheduler) Job(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Start runs the worker and the nightly trigger until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.work(ctx)
		return nil
	})
	if s.nightlyAt >= 0 {
		g.Go(func() error {
			s.nightly(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			s.process(ctx, id)
		}
	}
}

func (s *Scheduler) update(id string, fn func(job *Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		fn(job)
	}
}

// process runs a job, retrying it while its result is fatal.
func (s *Scheduler) process(ctx context.Context, id string) {
	s.update(id, func(job *Job) { job.Status = StatusRunning })
	s.logger.Info("starting CASES ETL job", map[string]interface{}{"jobId": id})

	var res etl.RunResult
	policy := s.retry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn(fmt.Sprintf("CASES ETL job %s attempt %d failed, retrying in %s: %v", id, attempt, delay, err))
	}
	var attempt int
	err := etl.Retry(ctx, policy, func(ctx context.Context) error {
		attempt++
		s.update(id, func(job *Job) { job.Attempts++ })
		res = s.runner.RunAttempt(ctx, attempt >= policy.MaxAttempts)
		if res.Fatal {
			return errors.New(strings.Join(res.Errors, "; "))
		}
		return nil
	})

	finished := s.now().UTC()
	s.update(id, func(job *Job) {
		job.Status = StatusCompleted
		if err != nil {
			job.Status = StatusFailed
		}
		job.FinishedAt = &finished
		job.Result = &res
	})
	if err != nil {
		s.logger.Error("CASES ETL job failed", err, map[string]interface{}{"jobId": id})
		return
	}
	s.logger.Info("CASES ETL job completed", map[string]interface{}{"jobId": id, "success": res.Success})
}

func (s *Scheduler) nightly(ctx context.Context) {
	for {
		next := NextRun(s.now(), s.nightlyAt)
		s.logger.Debug(fmt.Sprintf("next nightly CASES ETL run at %s", next.Format(time.RFC3339)))

		t := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			if _, err := s.Trigger(KindNightly); err != nil {
				s.logger.Error("scheduling nightly CASES ETL run", err)
			}
		}
	}
}

// NextRun returns the first time after now that is at past local midnight.
func NextRun(now time.Time, at time.Duration) time.Time {
	y, m, d := now.Date()
	next := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).Add(at)
	for !next.After(now) {
		y, m, d = next.Date()
		next = time.Date(y, m, d+1, 0, 0, 0, 0, now.Location()).Add(at)
	}
	return next
}
