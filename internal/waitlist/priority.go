package waitlist

import (
	"math"
	"time"
)

// Priority scoring weights. Membership tier dominates, but long-waiting
// lower-tier users rise over time until the recency component caps out.
const (
	tierWeight    = 0.7
	recencyWeight = 0.3

	// maxRecencyDays is the wait duration at which the recency
	// component reaches its maximum
	maxRecencyDays = 30.0
)

// tierScores maps a membership tier level to its base score.
// Tiers: 0 none, 1 Extra, 2 Main, 3 First Class, 4 Business.
var tierScores = map[int]float64{
	0: 0,
	1: 20,
	2: 40,
	3: 60,
	4: 80,
}

// CalculatePriorityScore blends the membership tier snapshot with how
// long the user has waited since joinedAt. The result is always an
// integer in [0, 100]. Unknown tiers score 0; negative wait durations
// (clock skew) are clamped to 0 rather than producing a negative
// recency component.
func CalculatePriorityScore(membershipTier int, joinedAt, now time.Time) int {
	tierScore := tierScores[membershipTier]

	daysSinceJoin := now.Sub(joinedAt).Hours() / 24
	if daysSinceJoin < 0 {
		daysSinceJoin = 0
	}
	recencyScore := math.Min(100, daysSinceJoin/maxRecencyDays*100)

	return int(math.Round(tierScore*tierWeight + recencyScore*recencyWeight))
}
