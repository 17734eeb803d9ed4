package tier

import (
	"errors"
	"fmt"
	"strings"
)

// Tier is a performance band derived from a numeric score. S is best, D is worst.
type Tier string

const (
	S Tier = "S"
	A Tier = "A"
	B Tier = "B"
	C Tier = "C"
	D Tier = "D"
)

// Inclusive lower bounds. D is the catch-all.
const (
	MinScoreS = 90.0
	MinScoreA = 75.0
	MinScoreB = 60.0
	MinScoreC = 40.0
)

var ErrUnknownTier = errors.New("unknown tier")

var ordered = [...]Tier{S, A, B, C, D}

var rankDictionary = map[Tier]int{
	S: 0,
	A: 1,
	B: 2,
	C: 3,
	D: 4,
}

// Classify maps a score to its tier. Scores outside [0,100] are not clamped;
// they fall through the same boundaries.
func Classify(score float64) Tier {
	switch {
	case score >= MinScoreS:
		return S
	case score >= MinScoreA:
		return A
	case score >= MinScoreB:
		return B
	case score >= MinScoreC:
		return C
	default:
		return D
	}
}

// All returns every tier, best first.
func All() []Tier {
	out := make([]Tier, len(ordered))
	copy(out, ordered[:])
	return out
}

// Parse accepts "s", " A " etc.
func Parse(raw string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, raw)
	}
	return t, nil
}

func (t Tier) Valid() bool {
	_, ok := rankDictionary[t]
	return ok
}

// Rank is 0 for S and grows toward D. Invalid tiers rank after D.
func (t Tier) Rank() int {
	if r, ok := rankDictionary[t]; ok {
		return r
	}
	return len(ordered)
}

func (t Tier) String() string { return string(t) }

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, string(t))
	}
	return []byte(t), nil
}

func (t *Tier) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
