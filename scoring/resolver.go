package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"scholaverse/catalog"
	"scholaverse/tier"
)

var errNullPayload = errors.New("null payload")

// Resolver turns scores into the attribute options a student may pick.
//
// Resolution is two-stage. tryOverride asks the rule store; if it yields
// anything, that is the whole answer for the call, even when some of the
// group's attributes are missing from it. Only an empty override result falls
// back to the compiled catalog, and then for the entire group.
type Resolver struct {
	rules   RuleSource
	catalog *catalog.Catalog
	logger  zerolog.Logger
}

type Option func(*Resolver)

func WithCatalog(c *catalog.Catalog) Option {
	return func(r *Resolver) {
		if c != nil {
			r.catalog = c
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver builds a resolver over rules. A nil source resolves from the
// catalog alone.
func NewResolver(rules RuleSource, opts ...Option) *Resolver {
	r := &Resolver{
		rules:   rules,
		catalog: catalog.Default(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Catalog() *catalog.Catalog { return r.catalog }

// Resolve returns the options unlocked for req. Unknown groups resolve to an
// empty result. The only error is a failing rule store.
func (r *Resolver) Resolve(ctx context.Context, req Request) (ResolvedOptions, error) {
	if !r.catalog.HasGroup(req.Group) {
		return ResolvedOptions{}, nil
	}
	p := r.newPlan(req)

	out, err := r.tryOverride(ctx, p)
	if err != nil {
		return ResolvedOptions{}, err
	}
	if out.Len() > 0 {
		return out, nil
	}
	return r.fallbackStatic(p), nil
}

// plan holds the tiers derived once per call.
type plan struct {
	group       string
	primary     tier.Tier
	homework    tier.Tier
	hasHomework bool
	class       string
	attributes  []catalog.AttributeInfo
}

func (r *Resolver) newPlan(req Request) plan {
	p := plan{
		group:      req.Group,
		primary:    tier.Classify(req.Quiz),
		class:      req.Class,
		attributes: r.catalog.Attributes(req.Group),
	}
	if req.Homework != nil {
		p.homework = tier.Classify(*req.Homework)
		p.hasHomework = true
	}
	return p
}

// tierFor picks the tier driving attr. Homework-driven attributes use the
// quiz tier when no homework score was given.
func (p plan) tierFor(attr catalog.AttributeInfo) tier.Tier {
	if attr.Driver == catalog.DriverHomework && p.hasHomework {
		return p.homework
	}
	return p.primary
}

func (p plan) queryTiers() []tier.Tier {
	tiers := []tier.Tier{p.primary}
	if !p.hasHomework || p.homework == p.primary {
		return tiers
	}
	for _, a := range p.attributes {
		if a.Driver == catalog.DriverHomework {
			return append(tiers, p.homework)
		}
	}
	return tiers
}

func (p plan) attribute(name string) catalog.AttributeInfo {
	for _, a := range p.attributes {
		if a.Name == name {
			return a
		}
	}
	return catalog.AttributeInfo{Name: name, Driver: catalog.DriverQuiz}
}

type ruleKey struct {
	attribute string
	tier      tier.Tier
}

func (r *Resolver) tryOverride(ctx context.Context, p plan) (ResolvedOptions, error) {
	if r.rules == nil {
		return ResolvedOptions{}, nil
	}
	rules, err := r.rules.FindRules(ctx, p.group, p.queryTiers())
	if err != nil {
		return ResolvedOptions{}, fmt.Errorf("find rules for %s: %w", p.group, err)
	}
	if len(rules) == 0 {
		return ResolvedOptions{}, nil
	}

	byKey := make(map[ruleKey]AttributeRule, len(rules))
	sortOrder := make(map[string]int)
	var names []string
	for _, rule := range rules {
		if rule.Group != p.group {
			continue
		}
		k := ruleKey{attribute: rule.Attribute, tier: rule.Tier}
		if _, dup := byKey[k]; !dup {
			byKey[k] = rule
		}
		if _, seen := sortOrder[rule.Attribute]; !seen {
			sortOrder[rule.Attribute] = rule.SortOrder
			names = append(names, rule.Attribute)
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		return sortOrder[names[i]] < sortOrder[names[j]]
	})

	out := ResolvedOptions{source: SourceOverride}
	for _, name := range names {
		attr := p.attribute(name)
		rule, ok := byKey[ruleKey{attribute: name, tier: p.tierFor(attr)}]
		if !ok {
			continue
		}
		options, labels, err := decodeRulePayload(rule)
		if err != nil {
			r.logger.Warn().
				Err(err).
				Int64("rule_id", rule.ID).
				Str("group", rule.Group).
				Str("attribute", rule.Attribute).
				Str("tier", rule.Tier.String()).
				Msg("skipping attribute rule with invalid payload")
			continue
		}
		if attr.FilterByClass {
			options, _ = FilterByAffinity(options, p.class, r.catalog)
		}
		out.add(name, options, completeLabels(labels, options))
	}
	if out.Len() == 0 {
		return ResolvedOptions{}, nil
	}
	return out, nil
}

func (r *Resolver) fallbackStatic(p plan) ResolvedOptions {
	out := ResolvedOptions{source: SourceCatalog}
	for _, attr := range p.attributes {
		entry, ok := r.catalog.Entry(p.group, attr.Name, p.tierFor(attr))
		if !ok {
			continue
		}
		options := entry.Options
		if attr.FilterByClass {
			options, _ = FilterByAffinity(options, p.class, r.catalog)
		}
		out.add(attr.Name, options, restrictLabels(entry.Labels, options))
	}
	if out.Len() == 0 {
		return ResolvedOptions{}
	}
	return out
}

func decodeRulePayload(rule AttributeRule) ([]string, map[string]string, error) {
	var options []string
	if err := json.Unmarshal([]byte(rule.OptionsJSON), &options); err != nil {
		return nil, nil, fmt.Errorf("options: %w", err)
	}
	if options == nil {
		return nil, nil, fmt.Errorf("options: %w", errNullPayload)
	}
	var labels map[string]string
	if err := json.Unmarshal([]byte(rule.LabelsJSON), &labels); err != nil {
		return nil, nil, fmt.Errorf("labels: %w", err)
	}
	if labels == nil {
		return nil, nil, fmt.Errorf("labels: %w", errNullPayload)
	}
	return options, labels, nil
}

// completeLabels keeps only the labels of listed options. An option the rule
// forgot to label is shown by its key.
func completeLabels(labels map[string]string, options []string) map[string]string {
	out := restrictLabels(labels, options)
	for _, key := range options {
		if _, ok := out[key]; !ok {
			out[key] = key
		}
	}
	return out
}
