package waitlist

import (
	"testing"
	"time"
)

func TestCalculatePriorityScore(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	days := func(d float64) time.Time {
		return now.Add(-time.Duration(d * 24 * float64(time.Hour)))
	}

	tests := []struct {
		name     string
		tier     int
		joinedAt time.Time
		want     int
	}{
		{"no membership, just joined", 0, now, 0},
		{"tier 1, just joined", 1, now, 14},
		{"tier 2, just joined", 2, now, 28},
		{"tier 3, just joined", 3, now, 42},
		{"tier 4, just joined", 4, now, 56},
		{"no membership, full recency", 0, days(30), 30},
		{"tier 4, full recency", 4, days(30), 86},
		{"tier 2, half recency", 2, days(15), 43},
		{"recency caps beyond thirty days", 0, days(90), 30},
		{"unknown tier scores as no membership", 7, days(30), 30},
		{"future join time clamps to zero wait", 2, now.Add(time.Hour), 28},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculatePriorityScore(tt.tier, tt.joinedAt, now)
			if got != tt.want {
				t.Errorf("CalculatePriorityScore(%d, %v) = %d, want %d", tt.tier, tt.joinedAt, got, tt.want)
			}
		})
	}
}

func TestCalculatePriorityScoreBounds(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for tier := -1; tier <= 5; tier++ {
		for d := 0; d <= 120; d += 10 {
			joined := now.Add(-time.Duration(d) * 24 * time.Hour)
			got := CalculatePriorityScore(tier, joined, now)
			if got < 0 || got > 100 {
				t.Fatalf("score out of range for tier=%d days=%d: %d", tier, d, got)
			}
		}
	}
}

func TestCalculatePriorityScoreMonotonicity(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	joined := now.Add(-5 * 24 * time.Hour)

	t.Run("higher tier never scores lower", func(t *testing.T) {
		prev := -1
		for tier := 0; tier <= 4; tier++ {
			got := CalculatePriorityScore(tier, joined, now)
			if got < prev {
				t.Fatalf("tier %d scored %d, below tier %d's %d", tier, got, tier-1, prev)
			}
			prev = got
		}
	})

	t.Run("longer wait never scores lower", func(t *testing.T) {
		prev := -1
		for d := 0; d <= 40; d++ {
			got := CalculatePriorityScore(2, now.Add(-time.Duration(d)*24*time.Hour), now)
			if got < prev {
				t.Fatalf("waiting %d days scored %d, below %d", d, got, prev)
			}
			prev = got
		}
	})
}
