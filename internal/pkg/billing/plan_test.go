package billing

import (
	"testing"
	"time"
)

func TestAddPlanDuration(t *testing.T) {
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		plan string
		want time.Time
	}{
		{plan: "weekly", want: base.Add(7 * 24 * time.Hour)},
		{plan: "daily", want: base.Add(24 * time.Hour)},
		{plan: "six_hour", want: base.Add(6 * time.Hour)},
		{plan: "one_hour", want: base.Add(time.Hour)},
		{plan: "bogus", want: base.Add(time.Hour)},
		{plan: "", want: base.Add(time.Hour)},
	}

	for _, tt := range tests {
		if got := AddPlanDuration(base, tt.plan); !got.Equal(tt.want) {
			t.Fatalf("AddPlanDuration(%q) = %v, want %v", tt.plan, got, tt.want)
		}
	}
}

func TestAddPlanDurationRepeated(t *testing.T) {
	// Applying the calculator n times must equal n plan periods ahead.
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	got := base
	for i := 0; i < 5; i++ {
		got = AddPlanDuration(got, "daily")
	}
	if want := base.Add(5 * 24 * time.Hour); !got.Equal(want) {
		t.Fatalf("5x daily = %v, want %v", got, want)
	}

	got = base
	for i := 0; i < 3; i++ {
		got = AddPlanDuration(got, "weekly")
	}
	if want := base.Add(3 * 7 * 24 * time.Hour); !got.Equal(want) {
		t.Fatalf("3x weekly = %v, want %v", got, want)
	}
}
