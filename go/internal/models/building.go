package models

import (
	"time"
)

// BuildingID is the server-assigned identifier of a building. It is opaque to the client.
type BuildingID string

func (id BuildingID) String() string {
	return string(id)
}

// ElevatorType is the building type whose top edge opens the floor above for construction.
const ElevatorType = "elevator"

// Building represents a player's building as reported by the game server.
type Building struct {
	ID                     BuildingID `json:"_id"`
	Type                   string     `json:"type"`
	Level                  int        `json:"level"`
	Floor                  int        `json:"floor"`
	SlotOrigin             int        `json:"slots"`
	MergedCount            int        `json:"mergedCount"`
	IsConstructing         bool       `json:"isConstructing"`
	ConstructionFinishTime *time.Time `json:"constructionFinishTime,omitempty"`
}

// Units returns the merged count, treating anything below one as a single unit.
func (b Building) Units() int {
	if b.MergedCount < 1 {
		return 1
	}
	return b.MergedCount
}

// SlotSpan returns the first and last slot occupied on the building's floor for the given
// per-unit footprint.
func (b Building) SlotSpan(footprint int) (first, last int) {
	if footprint < 1 {
		footprint = 1
	}
	return b.SlotOrigin, b.SlotOrigin + b.Units()*footprint - 1
}

// IsElevator reports whether the building is an elevator.
func (b Building) IsElevator() bool {
	return b.Type == ElevatorType
}
