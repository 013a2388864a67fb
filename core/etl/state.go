package etl

import "fmt"

// State is a stage of a run.
type State string

const (
	StateIdle               State = "idle"
	StateSnapshotAttempted  State = "snapshot_attempted"
	StateDirectoryValidated State = "directory_validated"
	StateFilesLoaded        State = "files_loaded"
	StateProcessing         State = "processing"
	StateArchived           State = "archived"
	StateMetricsFinalized   State = "metrics_finalized"
	StateNotificationsSent  State = "notifications_sent"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

// next lists the allowed transitions. Failed is reachable from every state but Done.
var next = map[State][]State{
	StateIdle:               {StateSnapshotAttempted},
	StateSnapshotAttempted:  {StateDirectoryValidated},
	StateDirectoryValidated: {StateFilesLoaded},
	StateFilesLoaded:        {StateProcessing, StateArchived},
	StateProcessing:         {StateProcessing, StateArchived},
	StateArchived:           {StateMetricsFinalized},
	StateMetricsFinalized:   {StateNotificationsSent},
	StateNotificationsSent:  {StateDone},
}

func (s State) CanMoveTo(to State) bool {
	if to == StateFailed {
		return s != StateDone && s != StateFailed
	}
	for _, allowed := range next[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// machine tracks the state of one run.
type machine struct {
	state   State
	entity  string // entity being processed
	history []State
}

func newMachine() *machine {
	return &machine{state: StateIdle, history: []State{StateIdle}}
}

func (m *machine) moveTo(to State) error {
	if !m.state.CanMoveTo(to) {
		return fmt.Errorf("invalid run state transition %s -> %s", m.state, to)
	}
	m.state = to
	m.history = append(m.history, to)
	return nil
}

func (m *machine) String() string {
	if m.state == StateProcessing && m.entity != "" {
		return fmt.Sprintf("%s(%s)", m.state, m.entity)
	}
	return string(m.state)
}
