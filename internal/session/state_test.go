package session

import "testing"

func TestTransition(t *testing.T) {
	tests := []struct {
		name   string
		from   Phase
		event  Event
		want   Phase
		wantOK bool
	}{
		{"start from idle", PhaseIdle, EventStart, PhaseActive, true},
		{"end from active", PhaseActive, EventEndTriggered, PhaseEnding, true},
		{"finalize from ending", PhaseEnding, EventFinalized, PhaseFinalized, true},
		{"start twice", PhaseActive, EventStart, PhaseActive, false},
		{"end before start", PhaseIdle, EventEndTriggered, PhaseIdle, false},
		{"end twice", PhaseEnding, EventEndTriggered, PhaseEnding, false},
		{"end after finalized", PhaseFinalized, EventEndTriggered, PhaseFinalized, false},
		{"finalize without ending", PhaseActive, EventFinalized, PhaseActive, false},
		{"restart after finalized", PhaseFinalized, EventStart, PhaseFinalized, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := transition(tc.from, tc.event)
			if got != tc.want || ok != tc.wantOK {
				t.Errorf("transition(%s, %d) = (%s, %t), want (%s, %t)",
					tc.from, tc.event, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseIdle, "idle"},
		{PhaseActive, "active"},
		{PhaseEnding, "ending"},
		{PhaseFinalized, "finalized"},
		{Phase(42), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.phase.String(); got != tc.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tc.phase, got, tc.want)
		}
	}
}
