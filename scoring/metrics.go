package scoring

import "math"

type Border string

const (
	BorderCopper Border = "copper"
	BorderSilver Border = "silver"
	BorderGold   Border = "gold"
)

const (
	MinLevel = 1
	MaxLevel = 10

	silverWeeks = 7
	goldWeeks   = 13
)

// LevelFromCompletion maps an overall completion percentage to a card level
// in [1,10]. The percentage is clamped to [0,100] first; 0% is still level 1.
func LevelFromCompletion(pct float64) int {
	if math.IsNaN(pct) {
		return MinLevel
	}
	clamped := math.Max(0, math.Min(100, pct))
	level := int(math.Ceil(clamped / 10))
	if level < MinLevel {
		return MinLevel
	}
	return level
}

// BorderStyle picks the card border from the number of learning weeks completed.
func BorderStyle(weeksCompleted int) Border {
	switch {
	case weeksCompleted >= goldWeeks:
		return BorderGold
	case weeksCompleted >= silverWeeks:
		return BorderSilver
	default:
		return BorderCopper
	}
}
