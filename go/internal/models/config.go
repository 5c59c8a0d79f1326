package models

import (
	"sort"
	"time"
)

// ResourceVector maps a resource name (gold, fanpower, electricity, ...) to an amount.
type ResourceVector map[string]int64

// Positive returns the resources with an amount above zero, sorted by name.
func (r ResourceVector) Positive() []string {
	names := make([]string, 0, len(r))
	for name, amount := range r {
		if amount > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// LevelConfig holds the server-declared settings of one building level.
// CollectionInterval is in milliseconds; nil or non-positive means the level yields nothing.
type LevelConfig struct {
	Cost               ResourceVector `json:"cost"`
	Slot               *int           `json:"slot,omitempty"`
	CollectionInterval *int64         `json:"collectionInterval,omitempty"`
}

// BuildingConfig holds the static configuration of a building type.
// Slot is the per-unit footprint shared by every level unless a level overrides it.
type BuildingConfig struct {
	Slot     int                 `json:"slot"`
	MaxLevel int                 `json:"maxLevel"`
	Levels   map[int]LevelConfig `json:"levels"`
}

// ConfigIndex is the read-only lookup from building type to its configuration.
type ConfigIndex map[string]BuildingConfig

func (c ConfigIndex) level(buildingType string, level int) (LevelConfig, bool) {
	cfg, ok := c[buildingType]
	if !ok {
		return LevelConfig{}, false
	}
	lc, ok := cfg.Levels[level]
	return lc, ok
}

// Footprint returns the number of slots one unit of the type occupies at the given level.
// The boolean is false when the configuration is missing or malformed.
func (c ConfigIndex) Footprint(buildingType string, level int) (int, bool) {
	if lc, ok := c.level(buildingType, level); ok && lc.Slot != nil && *lc.Slot >= 1 {
		return *lc.Slot, true
	}
	if cfg, ok := c[buildingType]; ok && cfg.Slot >= 1 {
		return cfg.Slot, true
	}
	return 0, false
}

// CollectionInterval returns how long the type must rest between collections at the given
// level. The boolean is false when the level has no (or a malformed) interval.
func (c ConfigIndex) CollectionInterval(buildingType string, level int) (time.Duration, bool) {
	lc, ok := c.level(buildingType, level)
	if !ok || lc.CollectionInterval == nil || *lc.CollectionInterval <= 0 {
		return 0, false
	}
	return time.Duration(*lc.CollectionInterval) * time.Millisecond, true
}

// Cost returns the cost of reaching the given level of a type.
func (c ConfigIndex) Cost(buildingType string, level int) (ResourceVector, bool) {
	lc, ok := c.level(buildingType, level)
	if !ok || lc.Cost == nil {
		return nil, false
	}
	return lc.Cost, true
}

// BuildCost returns the cost of constructing a new building of the type.
func (c ConfigIndex) BuildCost(buildingType string) (ResourceVector, bool) {
	return c.Cost(buildingType, 1)
}

// UpgradeCost returns the cost of the building's next level. It reports false when the
// building is already at its type's max level or the next level is not configured.
func (c ConfigIndex) UpgradeCost(b Building) (ResourceVector, bool) {
	cfg, ok := c[b.Type]
	if !ok {
		return nil, false
	}
	next := b.Level + 1
	if next > cfg.MaxLevel {
		return nil, false
	}
	return c.Cost(b.Type, next)
}

// AtMaxLevel reports whether the building's type is configured with a max level the
// building has already reached.
func (c ConfigIndex) AtMaxLevel(b Building) bool {
	cfg, ok := c[b.Type]
	return ok && cfg.MaxLevel > 0 && b.Level >= cfg.MaxLevel
}

// Types returns the configured building types in a stable order.
func (c ConfigIndex) Types() []string {
	types := make([]string, 0, len(c))
	for t := range c {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
