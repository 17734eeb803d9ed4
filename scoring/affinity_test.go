package scoring

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"scholaverse/catalog"
)

func TestFilterByAffinity(t *testing.T) {
	cat := catalog.Default()
	all := []string{"sword", "shield", "staff", "spellbook", "bow", "dagger", "mace", "spear"}

	cases := []struct {
		name        string
		options     []string
		class       string
		want        []string
		wantApplied bool
	}{
		{"mage", all, "mage", []string{"staff", "spellbook"}, true},
		{"keeps option order", all, "warrior", []string{"sword", "shield", "mace", "spear"}, true},
		{"empty class", all, "", all, false},
		{"unknown class", all, "necromancer", all, false},
		{"no overlap", []string{"wooden_stick", "stone"}, "mage", []string{"wooden_stick", "stone"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, applied := FilterByAffinity(tc.options, tc.class, cat)
			if applied != tc.wantApplied {
				t.Fatalf("expected applied=%v, got %v", tc.wantApplied, applied)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("options mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFilterByAffinityNilCatalog(t *testing.T) {
	in := []string{"sword"}
	got, applied := FilterByAffinity(in, "mage", nil)
	if applied || len(got) != 1 {
		t.Fatalf("expected passthrough, got %v applied=%v", got, applied)
	}
}
