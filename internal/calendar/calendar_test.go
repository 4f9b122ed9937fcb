package calendar

import (
	"testing"
	"time"

	"github.com/ignite/campaign-pilot/internal/domain"
)

func mustUTC(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed.UTC()
}

func TestNextEligibleSlot(t *testing.T) {
	tests := []struct {
		name string
		from string
		want string
	}{
		{
			name: "wednesday rolls to thursday",
			from: "2025-10-01T12:00:00Z",
			want: "2025-10-02T09:15:00Z",
		},
		{
			name: "tuesday before boundary keeps the day",
			from: "2025-10-07T08:00:00Z",
			want: "2025-10-07T09:15:00Z",
		},
		{
			name: "tuesday exactly at boundary keeps the day",
			from: "2025-10-07T09:15:00Z",
			want: "2025-10-07T09:15:00Z",
		},
		{
			name: "tuesday after boundary rolls to thursday",
			from: "2025-10-07T09:15:01Z",
			want: "2025-10-09T09:15:00Z",
		},
		{
			name: "thursday after boundary rolls to next tuesday",
			from: "2025-10-09T18:00:00Z",
			want: "2025-10-14T09:15:00Z",
		},
		{
			name: "friday rolls over the weekend",
			from: "2025-10-03T00:00:00Z",
			want: "2025-10-07T09:15:00Z",
		},
		{
			name: "non-UTC input is normalized",
			from: "2025-10-07T05:00:00-05:00", // 10:00 UTC, past the boundary
			want: "2025-10-09T09:15:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextEligibleSlot(mustUTC(t, tt.from))
			if err != nil {
				t.Fatalf("NextEligibleSlot() error: %v", err)
			}
			if want := mustUTC(t, tt.want); !got.Equal(want) {
				t.Errorf("NextEligibleSlot(%s) = %s, want %s", tt.from, got.Format(time.RFC3339), tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("NextEligibleSlot(%s) not in UTC", tt.from)
			}
		})
	}
}

func TestNextEligibleSlotZeroTime(t *testing.T) {
	if _, err := NextEligibleSlot(time.Time{}); err == nil {
		t.Error("NextEligibleSlot(zero) should error")
	}
}

func TestDefaultOffsets(t *testing.T) {
	o := DefaultOffsets()
	launch := mustUTC(t, "2025-10-02T09:15:00Z")

	tests := []struct {
		stage domain.Stage
		want  string
	}{
		{domain.StagePreLaunch, "2025-10-01T12:15:00Z"},
		{domain.StagePreFlight, "2025-10-02T06:00:00Z"},
		{domain.StageLaunchWarning, "2025-10-02T09:00:00Z"},
		{domain.StageLaunchConfirmation, "2025-10-02T09:15:00Z"},
		{domain.StageWrapUp, "2025-10-02T09:45:00Z"},
	}
	for _, tt := range tests {
		got := TriggerTime(launch, tt.stage, o)
		if want := mustUTC(t, tt.want); !got.Equal(want) {
			t.Errorf("TriggerTime(%s) = %s, want %s", tt.stage, got.Format(time.RFC3339), tt.want)
		}
	}
}

func TestOverrideMinutes(t *testing.T) {
	o := DefaultOffsets().OverrideMinutes(-5, -3, -1, 2)

	if o.PreLaunch != -5*time.Minute {
		t.Errorf("PreLaunch = %v, want -5m", o.PreLaunch)
	}
	if o.PreFlight != -3*time.Minute {
		t.Errorf("PreFlight = %v, want -3m", o.PreFlight)
	}
	if o.LaunchWarning != -1*time.Minute {
		t.Errorf("LaunchWarning = %v, want -1m", o.LaunchWarning)
	}
	if o.WrapUp != 2*time.Minute {
		t.Errorf("WrapUp = %v, want 2m", o.WrapUp)
	}
	// Confirmation always fires at T.
	if o.LaunchConfirmation != 0 {
		t.Errorf("LaunchConfirmation = %v, want 0", o.LaunchConfirmation)
	}

	// Zero values keep the production defaults.
	kept := DefaultOffsets().OverrideMinutes(0, 0, 0, 0)
	if kept != DefaultOffsets() {
		t.Errorf("OverrideMinutes(0,0,0,0) changed offsets: %+v", kept)
	}
}
