package rulestore

import (
	"context"
	"errors"
	"fmt"

	"scholaverse/catalog"
	"scholaverse/tier"
)

type SeedOptions struct {
	// Overwrite replaces the payload of rules that already exist.
	Overwrite bool
}

type SeedResult struct {
	Created int
	Updated int
	Skipped int
}

func (r SeedResult) Total() int { return r.Created + r.Updated + r.Skipped }

// SeedFromCatalog copies every catalog cell into store as an override rule.
func SeedFromCatalog(ctx context.Context, store Store, cat *catalog.Catalog, opts SeedOptions) (SeedResult, error) {
	if cat == nil {
		cat = catalog.Default()
	}
	var res SeedResult
	for _, cell := range cat.Rules() {
		_, err := store.Create(ctx, NewRule{
			Group:     cell.Group,
			Attribute: cell.Attribute,
			Tier:      cell.Tier,
			Options:   cell.Entry.Options,
			Labels:    cell.Entry.Labels,
			SortOrder: cell.SortOrder,
		})
		switch {
		case err == nil:
			res.Created++
			continue
		case !errors.Is(err, ErrDuplicateRule):
			return res, fmt.Errorf("seed %s/%s/%s: %w", cell.Group, cell.Attribute, cell.Tier, err)
		case !opts.Overwrite:
			res.Skipped++
			continue
		}

		id, err := findRuleID(ctx, store, cell.Group, cell.Attribute, cell.Tier)
		if err != nil {
			return res, err
		}
		options, labels := cell.Entry.Options, cell.Entry.Labels
		if _, err := store.Update(ctx, id, RulePatch{Options: &options, Labels: &labels}); err != nil {
			return res, fmt.Errorf("seed %s/%s/%s: %w", cell.Group, cell.Attribute, cell.Tier, err)
		}
		res.Updated++
	}
	return res, nil
}

func findRuleID(ctx context.Context, store Store, group, attribute string, t tier.Tier) (int64, error) {
	rules, err := store.FindRules(ctx, group, []tier.Tier{t})
	if err != nil {
		return 0, err
	}
	for _, r := range rules {
		if r.Attribute == attribute {
			return r.ID, nil
		}
	}
	return 0, ErrNotFound
}
