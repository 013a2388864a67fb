package etl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/staffhub/backend/core"
)

const (
	DefaultMetricsCapacity = 100
	DefaultHealthWindow    = 10
)

// RunMetrics are the counters of one run.
type RunMetrics struct {
	RunID            string        `json:"runId"`
	StartTime        time.Time     `json:"startTime"`
	EndTime          time.Time     `json:"endTime"`
	Duration         time.Duration `json:"-"`
	DurationMs       int64         `json:"duration"`
	FilesProcessed   int           `json:"filesProcessed"`
	RecordsProcessed int           `json:"recordsProcessed"`
	RecordsCreated   int           `json:"recordsCreated"`
	RecordsUpdated   int           `json:"recordsUpdated"`
	RecordsErrored   int           `json:"recordsErrored"`
	ErrorRate        float64       `json:"errorRate"`
	Success          bool          `json:"success"`
}

// ErrorRate is errored/processed, 0 when nothing was processed.
func ErrorRate(errored, processed int) float64 {
	if processed <= 0 {
		return 0
	}
	return float64(errored) / float64(processed)
}

// Finalize stamps the end of the run and derives the duration and error rate.
func (m *RunMetrics) Finalize(end time.Time, success bool) {
	m.EndTime = end
	m.Duration = end.Sub(m.StartTime)
	m.DurationMs = m.Duration.Milliseconds()
	m.ErrorRate = ErrorRate(m.RecordsErrored, m.RecordsProcessed)
	m.Success = success
}

// AverageMetrics are per-run averages over the retained history.
type AverageMetrics struct {
	Runs             int     `json:"runs"`
	DurationMs       float64 `json:"duration"`
	RecordsProcessed float64 `json:"recordsProcessed"`
	RecordsCreated   float64 `json:"recordsCreated"`
	RecordsUpdated   float64 `json:"recordsUpdated"`
	RecordsErrored   float64 `json:"recordsErrored"`
	ErrorRate        float64 `json:"errorRate"` // total errored / total processed
	Success          float64 `json:"success"`   // share of successful runs
}

type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

type Health struct {
	Status  HealthStatus    `json:"status"`
	Message string          `json:"message"`
	Metrics *AverageMetrics `json:"metrics,omitempty"`
}

// MetricsPublisher exports run metrics to an external system.
type MetricsPublisher interface {
	Publish(ctx context.Context, m RunMetrics) error
}

// Collector keeps the metrics of the last runs, oldest evicted first.
type Collector struct {
	mu       sync.RWMutex
	runs     []RunMetrics
	capacity int
	window   int
	logger   core.Logger
}

func NewCollector(capacity, window int, logger core.Logger) *Collector {
	if capacity <= 0 {
		capacity = DefaultMetricsCapacity
	}
	if window <= 0 {
		window = DefaultHealthWindow
	}
	return &Collector{
		runs:     make([]RunMetrics, 0, capacity),
		capacity: capacity,
		window:   window,
		logger:   logger,
	}
}

func (c *Collector) Record(m RunMetrics) {
	c.mu.Lock()
	c.runs = append(c.runs, m)
	if over := len(c.runs) - c.capacity; over > 0 {
		c.runs = append(c.runs[:0], c.runs[over:]...)
	}
	c.mu.Unlock()

	c.logger.Info(fmt.Sprintf(
		"recorded ETL metrics: run %s processed=%d created=%d updated=%d errored=%d errorRate=%.3f success=%t",
		m.RunID, m.RecordsProcessed, m.RecordsCreated, m.RecordsUpdated, m.RecordsErrored, m.ErrorRate, m.Success,
	))
}

// Recent returns up to n of the latest runs, oldest first.
func (c *Collector) Recent(n int) []RunMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recent(n)
}

func (c *Collector) recent(n int) []RunMetrics {
	if n <= 0 || n > len(c.runs) {
		n = len(c.runs)
	}
	out := make([]RunMetrics, n)
	copy(out, c.runs[len(c.runs)-n:])
	return out
}

// Average returns the averages over every retained run; false when there are none.
func (c *Collector) Average() (AverageMetrics, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.average()
}

func (c *Collector) average() (AverageMetrics, bool) {
	count := len(c.runs)
	if count == 0 {
		return AverageMetrics{}, false
	}

	var duration time.Duration
	var processed, created, updated, errored, successes int
	for _, m := range c.runs {
		duration += m.Duration
		processed += m.RecordsProcessed
		created += m.RecordsCreated
		updated += m.RecordsUpdated
		errored += m.RecordsErrored
		if m.Success {
			successes++
		}
	}

	n := float64(count)
	return AverageMetrics{
		Runs:             count,
		DurationMs:       float64(duration.Milliseconds()) / n,
		RecordsProcessed: float64(processed) / n,
		RecordsCreated:   float64(created) / n,
		RecordsUpdated:   float64(updated) / n,
		RecordsErrored:   float64(errored) / n,
		ErrorRate:        ErrorRate(errored, processed),
		Success:          float64(successes) / n,
	}, true
}

// Health classifies the latest runs: at least half failed or an average error rate
// above 20% is unhealthy; more than a fifth failed or above 10% is degraded.
func (c *Collector) Health() Health {
	c.mu.RLock()
	defer c.mu.RUnlock()

	recent := c.recent(c.window)
	if len(recent) == 0 {
		return Health{Status: Unhealthy, Message: "No ETL runs recorded"}
	}

	var failures int
	var errorRates float64
	for _, m := range recent {
		if !m.Success {
			failures++
		}
		errorRates += m.ErrorRate
	}
	failureRate := float64(failures) / float64(len(recent))
	avgErrorRate := errorRates / float64(len(recent))

	avg, _ := c.average()
	health := Health{Status: Healthy, Message: "ETL running normally", Metrics: &avg}
	switch {
	case failureRate >= 0.5 || avgErrorRate > 0.2:
		health.Status = Unhealthy
		health.Message = fmt.Sprintf("High failure rate: %.1f%% failures, %.1f%% error rate", failureRate*100, avgErrorRate*100)
	case failureRate > 0.2 || avgErrorRate > 0.1:
		health.Status = Degraded
		health.Message = fmt.Sprintf("Moderate issues: %.1f%% failures, %.1f%% error rate", failureRate*100, avgErrorRate*100)
	}
	return health
}
