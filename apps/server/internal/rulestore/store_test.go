package rulestore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"scholaverse/scoring"
	"scholaverse/tier"
)

func storeVariants(t *testing.T) map[string]Store {
	t.Helper()
	sqliteStore, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = sqliteStore.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func raceRule(t tier.Tier, options ...string) NewRule {
	labels := make(map[string]string, len(options))
	for _, o := range options {
		labels[o] = "label-" + o
	}
	return NewRule{
		Group:     "unit_1",
		Attribute: "race",
		Tier:      t,
		Options:   options,
		Labels:    labels,
		SortOrder: 1,
	}
}

func TestStoreCreateGetAndDuplicate(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeVariants(t) {
		t.Run(name, func(t *testing.T) {
			created, err := store.Create(ctx, raceRule(tier.S, "elf", "dragon"))
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if created.ID == 0 || created.CreatedAt.IsZero() {
				t.Fatalf("expected id and timestamps, got %+v", created)
			}
			got, err := store.Get(ctx, created.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			options, labels, err := Payload(got)
			if err != nil {
				t.Fatalf("payload: %v", err)
			}
			if diff := cmp.Diff([]string{"elf", "dragon"}, options); diff != "" {
				t.Fatalf("options mismatch (-want +got):\n%s", diff)
			}
			if labels["dragon"] != "label-dragon" {
				t.Fatalf("expected dragon label, got %v", labels)
			}

			_, err = store.Create(ctx, raceRule(tier.S, "orc"))
			if !errors.Is(err, ErrDuplicateRule) {
				t.Fatalf("expected ErrDuplicateRule, got %v", err)
			}
		})
	}
}

func TestStoreCreateValidation(t *testing.T) {
	ctx := context.Background()
	cases := map[string]NewRule{
		"missing group":      {Attribute: "race", Tier: tier.S, Options: []string{}, Labels: map[string]string{}},
		"bad tier":           {Group: "unit_1", Attribute: "race", Tier: "X", Options: []string{}, Labels: map[string]string{}},
		"unknown group":      {Group: "unit_9", Attribute: "race", Tier: tier.S, Options: []string{}, Labels: map[string]string{}},
		"foreign attribute":  {Group: "unit_1", Attribute: "body", Tier: tier.S, Options: []string{}, Labels: map[string]string{}},
		"nil options":        {Group: "unit_1", Attribute: "race", Tier: tier.S, Labels: map[string]string{}},
		"nil labels":         {Group: "unit_1", Attribute: "race", Tier: tier.S, Options: []string{"elf"}},
		"duplicated options": {Group: "unit_1", Attribute: "race", Tier: tier.S, Options: []string{"elf", "elf"}, Labels: map[string]string{}},
	}
	for name, store := range storeVariants(t) {
		for label, in := range cases {
			_, err := store.Create(ctx, in)
			if !errors.Is(err, ErrInvalidRule) {
				t.Fatalf("%s/%s: expected ErrInvalidRule, got %v", name, label, err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field == "" {
				t.Fatalf("%s/%s: expected field-level validation error, got %v", name, label, err)
			}
		}
	}
}

func TestStoreUpdateKeepsKey(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeVariants(t) {
		t.Run(name, func(t *testing.T) {
			created, err := store.Create(ctx, raceRule(tier.A, "elf"))
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			options := []string{"elf", "angel"}
			updated, err := store.Update(ctx, created.ID, RulePatch{Options: &options})
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if updated.Group != "unit_1" || updated.Attribute != "race" || updated.Tier != tier.A {
				t.Fatalf("key triple changed: %+v", updated)
			}
			if updated.UpdatedAt.Before(created.UpdatedAt) {
				t.Fatalf("updated_at went backwards: %v < %v", updated.UpdatedAt, created.UpdatedAt)
			}
			gotOptions, labels, err := Payload(updated)
			if err != nil {
				t.Fatalf("payload: %v", err)
			}
			if diff := cmp.Diff(options, gotOptions); diff != "" {
				t.Fatalf("options mismatch (-want +got):\n%s", diff)
			}
			if labels["elf"] != "label-elf" {
				t.Fatalf("labels should be untouched, got %v", labels)
			}

			if _, err := store.Update(ctx, created.ID+1000, RulePatch{Options: &options}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			var nilOptions []string
			if _, err := store.Update(ctx, created.ID, RulePatch{Options: &nilOptions}); !errors.Is(err, ErrInvalidRule) {
				t.Fatalf("expected ErrInvalidRule for null options, got %v", err)
			}
		})
	}
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeVariants(t) {
		t.Run(name, func(t *testing.T) {
			created, err := store.Create(ctx, raceRule(tier.B, "human"))
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := store.Delete(ctx, created.ID); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := store.Delete(ctx, created.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound on second delete, got %v", err)
			}
			if _, err := store.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound on get, got %v", err)
			}
			// The key is free again.
			if _, err := store.Create(ctx, raceRule(tier.B, "orc")); err != nil {
				t.Fatalf("recreate after delete: %v", err)
			}
		})
	}
}

func TestStoreFindRulesFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeVariants(t) {
		t.Run(name, func(t *testing.T) {
			mustCreate := func(in NewRule) scoring.AttributeRule {
				t.Helper()
				r, err := store.Create(ctx, in)
				if err != nil {
					t.Fatalf("create %+v: %v", in, err)
				}
				return r
			}
			body := mustCreate(NewRule{Group: "unit_2", Attribute: "body", Tier: tier.C, Options: []string{"slim"}, Labels: map[string]string{"slim": "s"}, SortOrder: 2})
			class := mustCreate(NewRule{Group: "unit_2", Attribute: "class", Tier: tier.S, Options: []string{"priest"}, Labels: map[string]string{"priest": "p"}, SortOrder: 1})
			mustCreate(NewRule{Group: "unit_2", Attribute: "class", Tier: tier.B, Options: []string{"warrior"}, Labels: map[string]string{"warrior": "w"}, SortOrder: 1})
			mustCreate(NewRule{Group: "unit_1", Attribute: "race", Tier: tier.S, Options: []string{"elf"}, Labels: map[string]string{"elf": "e"}, SortOrder: 1})

			rules, err := store.FindRules(ctx, "unit_2", []tier.Tier{tier.S, tier.C})
			if err != nil {
				t.Fatalf("find rules: %v", err)
			}
			var ids []int64
			for _, r := range rules {
				ids = append(ids, r.ID)
			}
			if diff := cmp.Diff([]int64{class.ID, body.ID}, ids); diff != "" {
				t.Fatalf("ids mismatch (-want +got):\n%s", diff)
			}

			none, err := store.FindRules(ctx, "unit_6", []tier.Tier{tier.S})
			if err != nil {
				t.Fatalf("find rules: %v", err)
			}
			if none == nil || len(none) != 0 {
				t.Fatalf("expected empty non-nil slice, got %#v", none)
			}
		})
	}
}

func TestStoreListOrder(t *testing.T) {
	ctx := context.Background()
	for name, store := range storeVariants(t) {
		t.Run(name, func(t *testing.T) {
			inputs := []NewRule{
				{Group: "unit_1", Attribute: "gender", Tier: tier.S, Options: []string{"male"}, Labels: map[string]string{}, SortOrder: 2},
				{Group: "unit_1", Attribute: "race", Tier: tier.D, Options: []string{"slime"}, Labels: map[string]string{}, SortOrder: 1},
				{Group: "unit_1", Attribute: "race", Tier: tier.S, Options: []string{"elf"}, Labels: map[string]string{}, SortOrder: 1},
			}
			for _, in := range inputs {
				if _, err := store.Create(ctx, in); err != nil {
					t.Fatalf("create: %v", err)
				}
			}
			rules, err := store.List(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			var got []string
			for _, r := range rules {
				got = append(got, r.Attribute+"/"+r.Tier.String())
			}
			if diff := cmp.Diff([]string{"race/S", "race/D", "gender/S"}, got); diff != "" {
				t.Fatalf("list order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolverOverSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if _, err := store.Create(ctx, NewRule{
		Group:     "unit_4",
		Attribute: "weapon_type",
		Tier:      tier.S,
		Options:   []string{"bow", "staff", "spellbook", "spear"},
		Labels:    map[string]string{"bow": "Bow", "staff": "Staff", "spellbook": "Book", "spear": "Spear"},
		SortOrder: 2,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	out, err := scoring.NewResolver(store).Resolve(ctx, scoring.Request{Group: "unit_4", Quiz: 99, Class: "mage"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Source() != scoring.SourceOverride {
		t.Fatalf("expected override source, got %q", out.Source())
	}
	if diff := cmp.Diff([]string{"weapon_type"}, out.Names()); diff != "" {
		t.Fatalf("weapon_quality has no rule and must be skipped (-want +got):\n%s", diff)
	}
	wt, _ := out.Get("weapon_type")
	if diff := cmp.Diff([]string{"staff", "spellbook"}, wt.Options); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
}
