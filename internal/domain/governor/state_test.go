package governor

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kailas-cloud/tokgov/internal/domain"
)

func TestDayOf_UsesLocation(t *testing.T) {
	ts := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)

	if got := DayOf(ts, time.UTC); got != "2024-01-01" {
		t.Errorf("DayOf(UTC) = %q, want 2024-01-01", got)
	}

	plus2 := time.FixedZone("UTC+2", 2*60*60)
	if got := DayOf(ts, plus2); got != "2024-01-02" {
		t.Errorf("DayOf(UTC+2) = %q, want 2024-01-02", got)
	}
}

func TestParseDay(t *testing.T) {
	if _, err := ParseDay("2024-02-29"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, bad := range []string{"", "2024-13-01", "01/02/2024", "yesterday"} {
		if _, err := ParseDay(bad); err == nil {
			t.Errorf("ParseDay(%q): expected error", bad)
		}
	}
}

func TestDay_Next(t *testing.T) {
	tests := []struct {
		in, want Day
	}{
		{"2024-01-01", "2024-01-02"},
		{"2024-02-28", "2024-02-29"},
		{"2023-12-31", "2024-01-01"},
	}
	for _, tc := range tests {
		if got := tc.in.Next(time.UTC); got != tc.want {
			t.Errorf("%q.Next() = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestState_Rolled(t *testing.T) {
	s := State{TokensUsed: 900, LastReset: "2024-01-01"}

	same, rolled := s.Rolled("2024-01-01")
	if rolled || same != s {
		t.Errorf("same day: got %+v rolled=%v, want unchanged", same, rolled)
	}

	next, rolled := s.Rolled("2024-01-02")
	if !rolled {
		t.Fatal("expected rollover on the next day")
	}
	if next.TokensUsed != 0 || next.LastReset != "2024-01-02" {
		t.Errorf("next day: got %+v", next)
	}

	back, rolled := s.Rolled("2023-12-31")
	if rolled || back != s {
		t.Errorf("earlier day must not roll back: got %+v rolled=%v", back, rolled)
	}
}

func TestState_Add(t *testing.T) {
	tests := []struct {
		name    string
		used    int64
		delta   int64
		want    int64
		wantErr bool
	}{
		{"zero", 0, 0, 0, false},
		{"plain", 10, 5, 15, false},
		{"up to max", 10, math.MaxInt64 - 10, math.MaxInt64, false},
		{"one past max", 10, math.MaxInt64 - 9, 10, true},
		{"max on top of usage", 10, math.MaxInt64, 10, true},
		{"negative", 10, -1, 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := State{TokensUsed: tt.used, LastReset: "2024-01-01"}
			got, err := st.Add(tt.delta)
			if tt.wantErr != (err != nil) {
				t.Fatalf("Add(%d) err = %v, wantErr %v", tt.delta, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidAmount) {
				t.Errorf("expected ErrInvalidAmount, got %v", err)
			}
			if got.TokensUsed != tt.want || got.LastReset != "2024-01-01" {
				t.Errorf("Add(%d) = %+v, want tokens %d", tt.delta, got, tt.want)
			}
		})
	}
}
