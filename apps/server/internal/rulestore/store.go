package rulestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"scholaverse/catalog"
	"scholaverse/scoring"
	"scholaverse/tier"
)

var (
	ErrNotFound      = errors.New("attribute rule not found")
	ErrDuplicateRule = errors.New("attribute rule already exists for unit, attribute and tier")
	ErrInvalidRule   = errors.New("invalid attribute rule")
)

// ValidationError reports the offending field of a rejected rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRule }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Store persists override rules. The key triple (group, attribute, tier) is
// unique and never changes after creation.
type Store interface {
	scoring.RuleSource

	Create(ctx context.Context, rule NewRule) (scoring.AttributeRule, error)
	Update(ctx context.Context, id int64, patch RulePatch) (scoring.AttributeRule, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (scoring.AttributeRule, error)
	// List returns every rule ordered by (group, sort_order, tier).
	List(ctx context.Context) ([]scoring.AttributeRule, error)
	Close() error
}

type NewRule struct {
	Group     string
	Attribute string
	Tier      tier.Tier
	Options   []string
	Labels    map[string]string
	SortOrder int
}

// RulePatch replaces whichever payload parts are non-nil.
type RulePatch struct {
	Options *[]string
	Labels  *map[string]string
}

// Payload decodes the serialized options and labels of a stored rule.
func Payload(rule scoring.AttributeRule) (options []string, labels map[string]string, err error) {
	if err := json.Unmarshal([]byte(rule.OptionsJSON), &options); err != nil {
		return nil, nil, fmt.Errorf("rule %d options: %w", rule.ID, err)
	}
	if err := json.Unmarshal([]byte(rule.LabelsJSON), &labels); err != nil {
		return nil, nil, fmt.Errorf("rule %d labels: %w", rule.ID, err)
	}
	return options, labels, nil
}

func normalizeNewRule(cat *catalog.Catalog, in NewRule) (NewRule, error) {
	in.Group = strings.TrimSpace(in.Group)
	in.Attribute = strings.TrimSpace(in.Attribute)
	if in.Group == "" {
		return in, invalid("unit_code", "required")
	}
	if in.Attribute == "" {
		return in, invalid("attribute_type", "required")
	}
	if !in.Tier.Valid() {
		return in, invalid("tier", "must be one of S, A, B, C, D")
	}
	if cat != nil {
		if !cat.HasGroup(in.Group) {
			return in, invalid("unit_code", "unknown unit %q", in.Group)
		}
		if _, ok := cat.Attribute(in.Group, in.Attribute); !ok {
			return in, invalid("attribute_type", "%q does not belong to %s", in.Attribute, in.Group)
		}
	}
	if err := validateOptions(in.Options); err != nil {
		return in, err
	}
	if in.Labels == nil {
		return in, invalid("labels", "required")
	}
	return in, nil
}

func validateOptions(options []string) error {
	if options == nil {
		return invalid("options", "required")
	}
	seen := make(map[string]struct{}, len(options))
	for _, opt := range options {
		if strings.TrimSpace(opt) == "" {
			return invalid("options", "empty option key")
		}
		if _, dup := seen[opt]; dup {
			return invalid("options", "duplicate option %q", opt)
		}
		seen[opt] = struct{}{}
	}
	return nil
}

func validatePatch(patch RulePatch) error {
	if patch.Options != nil {
		if err := validateOptions(*patch.Options); err != nil {
			return err
		}
	}
	if patch.Labels != nil && *patch.Labels == nil {
		return invalid("labels", "must be an object")
	}
	return nil
}

func encodePayload(options []string, labels map[string]string) (string, string, error) {
	o, err := json.Marshal(options)
	if err != nil {
		return "", "", err
	}
	l, err := json.Marshal(labels)
	if err != nil {
		return "", "", err
	}
	return string(o), string(l), nil
}

func sortForListing(rules []scoring.AttributeRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		if a.Attribute != b.Attribute {
			return a.Attribute < b.Attribute
		}
		if a.Tier.Rank() != b.Tier.Rank() {
			return a.Tier.Rank() < b.Tier.Rank()
		}
		return a.ID < b.ID
	})
}

func sortForQuery(rules []scoring.AttributeRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].SortOrder != rules[j].SortOrder {
			return rules[i].SortOrder < rules[j].SortOrder
		}
		return rules[i].ID < rules[j].ID
	})
}

func tierStrings(tiers []tier.Tier) []string {
	out := make([]string, 0, len(tiers))
	for _, t := range tiers {
		if t.Valid() {
			out = append(out, t.String())
		}
	}
	return out
}
