package attendance

import (
	"encoding/json"
	"math"
	"strconv"
)

// Stats is a student's attendance tally for one subject. Total counts the
// saved dates on which the student has any entry; Present those marked true.
type Stats struct {
	Present int
	Total   int
}

// Ratio is Present/Total, or 0 when nothing has been recorded.
func (s Stats) Ratio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Present) / float64(s.Total)
}

// Percentage is the unrounded attendance percentage.
func (s Stats) Percentage() float64 { return s.Ratio() * 100 }

// Rounded is the percentage rounded to one decimal place, for display.
func (s Stats) Rounded() float64 { return math.Round(s.Percentage()*10) / 10 }

// String formats the percentage with one decimal, e.g. "66.7".
func (s Stats) String() string { return strconv.FormatFloat(s.Rounded(), 'f', 1, 64) }

// Standing classifies the rounded percentage, so it agrees with the
// figure shown next to it.
func (s Stats) Standing() Standing { return StandingOf(s.Rounded()) }

func (s Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Present    int      `json:"present"`
		Total      int      `json:"total"`
		Percentage float64  `json:"percentage"`
		Standing   Standing `json:"standing"`
	}{s.Present, s.Total, s.Rounded(), s.Standing()})
}

// Standing buckets an attendance percentage.
type Standing string

const (
	StandingGood    Standing = "good"
	StandingWarning Standing = "warning"
	StandingAtRisk  Standing = "at-risk"
)

// StandingOf returns good at 75% and above, warning at 50% and above, at-risk below.
func StandingOf(percentage float64) Standing {
	switch {
	case percentage >= 75:
		return StandingGood
	case percentage >= 50:
		return StandingWarning
	default:
		return StandingAtRisk
	}
}
