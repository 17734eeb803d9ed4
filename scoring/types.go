package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"scholaverse/tier"
)

// Group codes. Each unlocks a disjoint set of attributes.
const (
	GroupRaceGender = "unit_1"
	GroupClassBody  = "unit_2"
	GroupEquipment  = "unit_3"
	GroupWeapon     = "unit_4"
	GroupBackground = "unit_5"
	GroupExpression = "unit_6"
)

const (
	AttributeClass      = "class"
	AttributeBody       = "body"
	AttributeWeaponType = "weapon_type"
)

// Request carries the scores a resolution depends on. Homework and
// Completion are optional; Class is the student's chosen class, if any.
type Request struct {
	Group      string
	Quiz       float64
	Homework   *float64
	Completion *float64
	Class      string
}

// AttributeRule is a persisted override row. Options and labels stay in their
// stored serialized form; the resolver decodes them.
type AttributeRule struct {
	ID          int64     `json:"id"`
	Group       string    `json:"unit_code"`
	Attribute   string    `json:"attribute_type"`
	Tier        tier.Tier `json:"tier"`
	OptionsJSON string    `json:"-"`
	LabelsJSON  string    `json:"-"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RuleSource is the read side of the override store.
type RuleSource interface {
	// FindRules returns every rule of group whose tier is in tiers, ordered by
	// (sort_order, id). No match is an empty result, not an error.
	FindRules(ctx context.Context, group string, tiers []tier.Tier) ([]AttributeRule, error)
}

// Source tells where a resolution's options came from.
type Source string

const (
	SourceNone     Source = ""
	SourceOverride Source = "override"
	SourceCatalog  Source = "catalog"
)

type AttributeOptions struct {
	Name    string            `json:"-"`
	Options []string          `json:"options"`
	Labels  map[string]string `json:"labels"`
}

// ResolvedOptions maps attribute names to their options while keeping the
// order in which attributes were resolved. It encodes as a JSON object whose
// keys follow that order.
type ResolvedOptions struct {
	source Source
	attrs  []AttributeOptions
}

func (r ResolvedOptions) Len() int { return len(r.attrs) }

func (r ResolvedOptions) Source() Source { return r.source }

func (r ResolvedOptions) Names() []string {
	out := make([]string, 0, len(r.attrs))
	for _, a := range r.attrs {
		out = append(out, a.Name)
	}
	return out
}

func (r ResolvedOptions) Get(name string) (AttributeOptions, bool) {
	for _, a := range r.attrs {
		if a.Name == name {
			return copyAttributeOptions(a), true
		}
	}
	return AttributeOptions{}, false
}

// Attributes returns a copy of every resolved attribute in order.
func (r ResolvedOptions) Attributes() []AttributeOptions {
	out := make([]AttributeOptions, 0, len(r.attrs))
	for _, a := range r.attrs {
		out = append(out, copyAttributeOptions(a))
	}
	return out
}

func (r *ResolvedOptions) add(name string, options []string, labels map[string]string) {
	if options == nil {
		options = []string{}
	}
	if labels == nil {
		labels = map[string]string{}
	}
	r.attrs = append(r.attrs, AttributeOptions{Name: name, Options: options, Labels: labels})
}

func (r ResolvedOptions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, a := range r.attrs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(a.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(a)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON keeps the key order of the encoded object.
func (r *ResolvedOptions) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("resolved options: expected object, got %v", tok)
	}
	var attrs []AttributeOptions
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("resolved options: expected key, got %v", tok)
		}
		var a AttributeOptions
		if err := dec.Decode(&a); err != nil {
			return fmt.Errorf("resolved options %q: %w", name, err)
		}
		a.Name = name
		attrs = append(attrs, a)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	r.attrs = attrs
	return nil
}

func copyAttributeOptions(a AttributeOptions) AttributeOptions {
	labels := make(map[string]string, len(a.Labels))
	for k, v := range a.Labels {
		labels[k] = v
	}
	return AttributeOptions{
		Name:    a.Name,
		Options: append([]string{}, a.Options...),
		Labels:  labels,
	}
}
