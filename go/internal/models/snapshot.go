package models

import (
	"time"
)

// ResourceSnapshot is the server's view of a player's resources.
type ResourceSnapshot struct {
	Balances        ResourceVector
	LastCollected   map[BuildingID]time.Time
	BuildingConfigs ConfigIndex
}

// Snapshot is everything the engine needs from one server refresh.
type Snapshot struct {
	Buildings []Building
	Resources ResourceSnapshot
	FetchedAt time.Time
}

// Configs returns the building configuration carried by the snapshot.
func (s Snapshot) Configs() ConfigIndex {
	return s.Resources.BuildingConfigs
}

// Building looks a building up by id.
func (s Snapshot) Building(id BuildingID) (Building, bool) {
	for _, b := range s.Buildings {
		if b.ID == id {
			return b, true
		}
	}
	return Building{}, false
}
