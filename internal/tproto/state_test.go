package tproto

import (
	"testing"

	"gotest.tools/assert"
)

func TestStateOrdering(t *testing.T) {
	assert.Assert(t, Assigned.Before(Staging))
	assert.Assert(t, Staging.Before(Running))
	assert.Assert(t, Running.Before(Running))
	assert.Assert(t, !Terminated.Before(Assigned))
}

func TestCheckTransition(t *testing.T) {
	type testCase struct {
		name    string
		from    State
		to      State
		wantErr bool
	}
	tests := []testCase{
		{"assigned to staging", Assigned, Staging, false},
		{"staging to starting", Staging, Starting, false},
		{"starting to running", Starting, Running, false},
		{"running to terminated", Running, Terminated, false},
		{"abort while staging", Staging, Terminated, false},
		{"skip starting", Staging, Running, true},
		{"backwards", Running, Staging, true},
		{"out of terminated", Terminated, Running, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.from.checkTransition(tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("checkTransition(%s, %s) error = %v, wantErr %v",
					tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestUnmarshalText(t *testing.T) {
	var s State
	assert.NilError(t, s.UnmarshalText([]byte("RUNNING")))
	assert.Equal(t, s, Running)
	assert.ErrorContains(t, s.UnmarshalText([]byte("EXPLODED")), "invalid task state")
}
