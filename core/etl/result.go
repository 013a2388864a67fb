package etl

import "github.com/staffhub/backend/core/cases"

// Stats are the per-entity outcomes of a run.
// Enrolments, parents, home groups and houses count the records written.
type Stats struct {
	Students   cases.UpsertResult `json:"students"`
	Staff      cases.UpsertResult `json:"staff"`
	Enrolments int                `json:"enrolments"`
	Parents    int                `json:"parents"`
	HomeGroups int                `json:"homeGroups"`
	Houses     int                `json:"houses"`
}

// RunResult is what every invocation (CLI, schedule, manual trigger) gets back.
type RunResult struct {
	RunID               string   `json:"runId"`
	Success             bool     `json:"success"`
	Stats               Stats    `json:"stats"`
	Errors              []string `json:"errors"`
	RollbackRecommended bool     `json:"rollbackRecommended"`
	SnapshotID          string   `json:"snapshotId,omitempty"`
	State               State    `json:"state"`
	// Fatal is set when the run aborted before processing (directory, files, lock).
	Fatal bool `json:"fatal"`
}

func newRunResult(runID string) RunResult {
	return RunResult{RunID: runID, Errors: make([]string, 0), State: StateIdle}
}
