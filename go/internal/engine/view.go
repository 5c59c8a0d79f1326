package engine

import (
	"time"

	"github.com/mcdev12/idoltower/go/internal/layout"
	"github.com/mcdev12/idoltower/go/internal/models"
	"github.com/mcdev12/idoltower/go/internal/reconcile"
)

// View is one published generation of derived state. Its maps and slices are shared with
// the engine and must be treated as read-only.
type View struct {
	SessionID string
	Running   bool

	// Generation increments with every snapshot the session loads.
	Generation uint64
	// Sequence increments with every publish within a session.
	Sequence uint64
	At       time.Time

	Balances           models.ResourceVector
	Buildings          []models.Building
	Configs            models.ConfigIndex
	Cooldowns          reconcile.Timers
	ConstructionTimers reconcile.Timers
	AwaitingFinish     []models.BuildingID
	Grid               layout.Grid
}

// Cooldown returns the collection cooldown of a building. The boolean is false when the
// building has no collection interval.
func (v View) Cooldown(id models.BuildingID) (time.Duration, bool) {
	d, ok := v.Cooldowns[id]
	return d, ok
}

// ConstructionRemaining returns the construction time left for a building.
func (v View) ConstructionRemaining(id models.BuildingID) (time.Duration, bool) {
	d, ok := v.ConstructionTimers[id]
	return d, ok
}

// Building looks a building up by id.
func (v View) Building(id models.BuildingID) (models.Building, bool) {
	for _, b := range v.Buildings {
		if b.ID == id {
			return b, true
		}
	}
	return models.Building{}, false
}
