package tier

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  Tier
	}{
		{100, S},
		{90, S},
		{89.999, A},
		{75, A},
		{74.999, B},
		{60, B},
		{59.999, C},
		{40, C},
		{39.999, D},
		{0, D},
		{-5, D},
		{150, S},
	}
	for _, tc := range cases {
		if got := Classify(tc.score); got != tc.want {
			t.Fatalf("Classify(%v): expected %s, got %s", tc.score, tc.want, got)
		}
	}
}

func TestClassifyIsMonotonic(t *testing.T) {
	prev := Classify(100)
	for s := 100.0; s >= -10; s -= 0.25 {
		cur := Classify(s)
		if !cur.Valid() {
			t.Fatalf("score %v produced invalid tier %q", s, cur)
		}
		if cur.Rank() < prev.Rank() {
			t.Fatalf("tier improved while score decreased: %v -> %s (prev %s)", s, cur, prev)
		}
		prev = cur
	}
}

func TestClassifyNaNFallsToD(t *testing.T) {
	if got := Classify(math.NaN()); got != D {
		t.Fatalf("expected NaN to classify as D, got %s", got)
	}
}

func TestParse(t *testing.T) {
	got, err := Parse(" b ")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got != B {
		t.Fatalf("expected B, got %s", got)
	}
	if _, err := Parse("E"); !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("expected ErrUnknownTier, got %v", err)
	}
}

func TestAllIsOrderedAndDetached(t *testing.T) {
	all := All()
	if len(all) != 5 || all[0] != S || all[4] != D {
		t.Fatalf("unexpected tier order: %v", all)
	}
	all[0] = D
	if All()[0] != S {
		t.Fatalf("All must return a fresh slice")
	}
}

func TestTierJSONRoundTrip(t *testing.T) {
	raw, err := json.Marshal(map[string]Tier{"tier": A})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(raw) != `{"tier":"A"}` {
		t.Fatalf("unexpected json: %s", raw)
	}
	var out struct {
		Tier Tier `json:"tier"`
	}
	if err := json.Unmarshal([]byte(`{"tier":"c"}`), &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out.Tier != C {
		t.Fatalf("expected C, got %s", out.Tier)
	}
	if err := json.Unmarshal([]byte(`{"tier":"Z"}`), &out); err == nil {
		t.Fatalf("expected error for unknown tier")
	}
}
