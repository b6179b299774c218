package types

import (
	"testing"
)

func TestJobStateIsTerminal(t *testing.T) {
	tests := []struct {
		state    JobState
		terminal bool
	}{
		{JobPending, false},
		{JobRunning, false},
		{JobAggregating, false},
		{JobCompleted, true},
		{JobFailed, true},
		{JobCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal(%s) = %v, want %v", tt.state, got, tt.terminal)
			}
		})
	}
}

func TestValidGovernmentLevel(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"federal", true},
		{"state", true},
		{"local", true},
		{"FEDERAL", false},
		{"county", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ValidGovernmentLevel(tt.input); got != tt.valid {
				t.Errorf("ValidGovernmentLevel(%q) = %v, want %v", tt.input, got, tt.valid)
			}
		})
	}
}
