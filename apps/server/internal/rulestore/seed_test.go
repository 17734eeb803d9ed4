package rulestore

import (
	"context"
	"encoding/json"
	"testing"

	"scholaverse/catalog"
	"scholaverse/scoring"
	"scholaverse/tier"
)

func TestSeedFromCatalogThenResolveMatchesStatic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cat := catalog.Default()

	res, err := SeedFromCatalog(ctx, store, cat, SeedOptions{})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if res.Created != len(cat.Rules()) || res.Updated != 0 || res.Skipped != 0 {
		t.Fatalf("unexpected first seed result: %+v", res)
	}

	seeded := scoring.NewResolver(store)
	static := scoring.NewResolver(nil)
	for _, g := range cat.Groups() {
		for _, quiz := range []float64{12, 41, 66, 80, 97} {
			hw := quiz - 30
			req := scoring.Request{Group: g.Code, Quiz: quiz, Homework: &hw, Class: "paladin"}
			a, err := seeded.Resolve(ctx, req)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			b, _ := static.Resolve(ctx, req)
			if a.Source() != scoring.SourceOverride {
				t.Fatalf("%s: expected override after seeding, got %q", g.Code, a.Source())
			}
			ja, _ := json.Marshal(a)
			jb, _ := json.Marshal(b)
			if string(ja) != string(jb) {
				t.Fatalf("%s quiz %v: seeded %s != static %s", g.Code, quiz, ja, jb)
			}
		}
	}
}

func TestSeedFromCatalogSkipsOrOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	edited, err := store.Create(ctx, NewRule{
		Group:     "unit_3",
		Attribute: "equipment",
		Tier:      tier.S,
		Options:   []string{"cardboard"},
		Labels:    map[string]string{"cardboard": "紙板"},
		SortOrder: 1,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := SeedFromCatalog(ctx, store, nil, SeedOptions{})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if res.Skipped != 1 || res.Total() != 50 {
		t.Fatalf("expected one skip out of 50, got %+v", res)
	}
	kept, _ := store.Get(ctx, edited.ID)
	if kept.OptionsJSON != `["cardboard"]` {
		t.Fatalf("skip mode must not touch existing rule, got %s", kept.OptionsJSON)
	}

	res, err = SeedFromCatalog(ctx, store, nil, SeedOptions{Overwrite: true})
	if err != nil {
		t.Fatalf("overwrite seed: %v", err)
	}
	if res.Updated != 50 || res.Created != 0 {
		t.Fatalf("expected 50 updates, got %+v", res)
	}
	overwritten, _ := store.Get(ctx, edited.ID)
	if overwritten.OptionsJSON != `["legendary"]` {
		t.Fatalf("expected catalog payload, got %s", overwritten.OptionsJSON)
	}
}
