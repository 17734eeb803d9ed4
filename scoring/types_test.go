package scoring

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolvedOptionsJSONKeepsKeyOrder(t *testing.T) {
	var r ResolvedOptions
	r.add("pose", []string{"standing"}, map[string]string{"standing": "站立"})
	r.add("expression", nil, nil)

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"pose":{"options":["standing"],"labels":{"standing":"站立"}},"expression":{"options":[],"labels":{}}}`
	if string(data) != want {
		t.Fatalf("expected %s, got %s", want, data)
	}

	var back ResolvedOptions
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff([]string{"pose", "expression"}, back.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestResolvedOptionsRejectsNonObject(t *testing.T) {
	var r ResolvedOptions
	if err := json.Unmarshal([]byte(`["pose"]`), &r); err == nil {
		t.Fatalf("expected error for array input")
	}
}

func TestResolvedOptionsGetReturnsCopy(t *testing.T) {
	var r ResolvedOptions
	r.add("race", []string{"elf"}, map[string]string{"elf": "精靈"})
	got, _ := r.Get("race")
	got.Options[0] = "orc"
	got.Labels["elf"] = "x"
	again, _ := r.Get("race")
	if again.Options[0] != "elf" || again.Labels["elf"] != "精靈" {
		t.Fatalf("resolved options mutated through Get")
	}
}
