package core

import "fmt"

// Tier is a role level unlocked once a subject holds at least MinCount
// assets.
type Tier struct {
	Name        string `yaml:"name" json:"name"`
	MinCount    uint64 `yaml:"min_count" json:"min_count"`
	RoleID      string `yaml:"role_id" json:"role_id"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// TierFor returns the qualifying tier with the greatest MinCount, or nil
// when count is below every threshold. Tiers sharing a MinCount resolve to
// the one listed first.
func TierFor(tiers []Tier, count uint64) *Tier {
	var best *Tier
	for i := range tiers {
		t := &tiers[i]
		if t.MinCount > count {
			continue
		}
		if best == nil || t.MinCount > best.MinCount {
			best = t
		}
	}
	if best == nil {
		return nil
	}
	found := *best
	return &found
}

// RoleIDs returns the external role id of every tier.
func RoleIDs(tiers []Tier) map[string]struct{} {
	ids := make(map[string]struct{}, len(tiers))
	for _, t := range tiers {
		ids[t.RoleID] = struct{}{}
	}
	return ids
}

// ValidateTiers checks the invariants a tier list must hold before it is
// used for reconciliation.
func ValidateTiers(tiers []Tier) error {
	names := make(map[string]struct{}, len(tiers))
	roles := make(map[string]struct{}, len(tiers))
	for _, t := range tiers {
		if t.Name == "" {
			return fmt.Errorf("tier without name: %w", ErrInvalidConfig)
		}
		if t.RoleID == "" {
			return fmt.Errorf("tier %q has no role id: %w", t.Name, ErrInvalidConfig)
		}
		if _, ok := names[t.Name]; ok {
			return fmt.Errorf("duplicate tier name %q: %w", t.Name, ErrInvalidConfig)
		}
		if _, ok := roles[t.RoleID]; ok {
			return fmt.Errorf("role %q used by more than one tier: %w", t.RoleID, ErrInvalidConfig)
		}
		names[t.Name] = struct{}{}
		roles[t.RoleID] = struct{}{}
	}
	return nil
}
