package rulestore

import (
	"context"
	"sync"
	"time"

	"scholaverse/catalog"
	"scholaverse/scoring"
	"scholaverse/tier"
)

type ruleKey struct {
	group     string
	attribute string
	tier      tier.Tier
}

// MemoryStore keeps rules in process memory. It is used for tests and for
// throwaway deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	catalog *catalog.Catalog
	nextID  int64
	rules   map[int64]scoring.AttributeRule
	byKey   map[ruleKey]int64
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		catalog: catalog.Default(),
		nextID:  1,
		rules:   make(map[int64]scoring.AttributeRule),
		byKey:   make(map[ruleKey]int64),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) FindRules(_ context.Context, group string, tiers []tier.Tier) ([]scoring.AttributeRule, error) {
	want := make(map[tier.Tier]struct{}, len(tiers))
	for _, t := range tiers {
		want[t] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]scoring.AttributeRule, 0)
	for _, r := range s.rules {
		if r.Group != group {
			continue
		}
		if _, ok := want[r.Tier]; ok {
			out = append(out, r)
		}
	}
	sortForQuery(out)
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, in NewRule) (scoring.AttributeRule, error) {
	in, err := normalizeNewRule(s.catalog, in)
	if err != nil {
		return scoring.AttributeRule{}, err
	}
	optionsJSON, labelsJSON, err := encodePayload(in.Options, in.Labels)
	if err != nil {
		return scoring.AttributeRule{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := ruleKey{group: in.Group, attribute: in.Attribute, tier: in.Tier}
	if _, exists := s.byKey[key]; exists {
		return scoring.AttributeRule{}, ErrDuplicateRule
	}
	now := s.now()
	rule := scoring.AttributeRule{
		ID:          s.nextID,
		Group:       in.Group,
		Attribute:   in.Attribute,
		Tier:        in.Tier,
		OptionsJSON: optionsJSON,
		LabelsJSON:  labelsJSON,
		SortOrder:   in.SortOrder,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.nextID++
	s.rules[rule.ID] = rule
	s.byKey[key] = rule.ID
	return rule, nil
}

func (s *MemoryStore) Update(_ context.Context, id int64, patch RulePatch) (scoring.AttributeRule, error) {
	if err := validatePatch(patch); err != nil {
		return scoring.AttributeRule{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[id]
	if !ok {
		return scoring.AttributeRule{}, ErrNotFound
	}
	if err := applyPatch(&rule, patch); err != nil {
		return scoring.AttributeRule{}, err
	}
	rule.UpdatedAt = s.now()
	s.rules[id] = rule
	return rule, nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.rules, id)
	delete(s.byKey, ruleKey{group: rule.Group, attribute: rule.Attribute, tier: rule.Tier})
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (scoring.AttributeRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return scoring.AttributeRule{}, ErrNotFound
	}
	return rule, nil
}

func (s *MemoryStore) List(_ context.Context) ([]scoring.AttributeRule, error) {
	s.mu.RLock()
	out := make([]scoring.AttributeRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sortForListing(out)
	return out, nil
}

// applyPatch rewrites the serialized payload of rule in place.
func applyPatch(rule *scoring.AttributeRule, patch RulePatch) error {
	if patch.Options != nil {
		optionsJSON, _, err := encodePayload(*patch.Options, nil)
		if err != nil {
			return err
		}
		rule.OptionsJSON = optionsJSON
	}
	if patch.Labels != nil {
		_, labelsJSON, err := encodePayload(nil, *patch.Labels)
		if err != nil {
			return err
		}
		rule.LabelsJSON = labelsJSON
	}
	return nil
}
