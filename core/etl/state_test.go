package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_CanMoveTo(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateSnapshotAttempted, true},
		{StateIdle, StateFilesLoaded, false},
		{StateFilesLoaded, StateProcessing, true},
		{StateFilesLoaded, StateArchived, true},
		{StateProcessing, StateProcessing, true},
		{StateProcessing, StateDone, false},
		{StateNotificationsSent, StateDone, true},
		{StateDirectoryValidated, StateFailed, true},
		{StateDone, StateFailed, false},
		{StateFailed, StateFailed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanMoveTo(tt.to))
		})
	}
}

func TestMachine(t *testing.T) {
	m := newMachine()
	for _, s := range []State{StateSnapshotAttempted, StateDirectoryValidated, StateFilesLoaded, StateProcessing} {
		require.NoError(t, m.moveTo(s))
	}
	m.entity = "staff"
	assert.Equal(t, "processing(staff)", m.String())

	assert.Error(t, m.moveTo(StateIdle))
	require.NoError(t, m.moveTo(StateFailed))
	assert.Equal(t, []State{
		StateIdle, StateSnapshotAttempted, StateDirectoryValidated, StateFilesLoaded, StateProcessing, StateFailed,
	}, m.history)
}
