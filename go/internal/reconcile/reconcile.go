// Package reconcile derives live countdowns from server timestamps.
//
// Every value is recomputed from the snapshot and the current time on each call, never
// accumulated, so repeated passes cannot drift. Output maps are reused from the previous
// state whenever nothing changed, which lets callers skip downstream updates with a
// pointer comparison.
package reconcile

import (
	"sort"
	"time"

	"github.com/mcdev12/idoltower/go/internal/models"
	"github.com/rs/zerolog/log"
)

// epoch stands in for a building that has never been collected.
var epoch = time.Unix(0, 0)

// Timers maps a building to the time left on one of its countdowns.
type Timers map[models.BuildingID]time.Duration

// Equal reports whether both maps hold the same keys with the same values.
func (t Timers) Equal(other Timers) bool {
	if len(t) != len(other) {
		return false
	}
	for id, v := range t {
		if ov, ok := other[id]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Input is what one reconciliation pass reads. It is never modified.
type Input struct {
	Now           time.Time
	Buildings     []models.Building
	LastCollected map[models.BuildingID]time.Time
	Configs       models.ConfigIndex
}

// State is the derived state carried from one pass to the next.
type State struct {
	Cooldowns    Timers
	Construction Timers

	// Reported holds, per building, the finish time of the construction episode that has
	// already been reported as complete. An entry lives until the server stops reporting
	// that episode.
	Reported map[models.BuildingID]time.Time
}

// Result is the outcome of one pass.
type Result struct {
	State

	CooldownsChanged    bool
	ConstructionChanged bool
	ReportedChanged     bool

	// JustCompleted lists constructions that reached zero in this pass and were not
	// reported before, sorted by id.
	JustCompleted []models.BuildingID

	// BecameReady lists buildings whose collection cooldown dropped to zero in this pass,
	// sorted by id.
	BecameReady []models.BuildingID
}

// Reconcile computes cooldowns and construction timers for in.Now.
func Reconcile(in Input, prev State) Result {
	cooldowns := make(Timers, len(prev.Cooldowns))
	construction := make(Timers, len(prev.Construction))
	reported := make(map[models.BuildingID]time.Time, len(prev.Reported))

	var res Result

	for _, b := range in.Buildings {
		if interval, ok := in.Configs.CollectionInterval(b.Type, b.Level); ok {
			last, seen := in.LastCollected[b.ID]
			if !seen {
				last = epoch
			}
			remaining := max(0, interval-in.Now.Sub(last))
			cooldowns[b.ID] = remaining

			if before, ok := prev.Cooldowns[b.ID]; ok && before > 0 && remaining == 0 {
				res.BecameReady = append(res.BecameReady, b.ID)
			}
		}

		if !b.IsConstructing {
			continue
		}
		if b.ConstructionFinishTime == nil {
			log.Debug().Str("building_id", b.ID.String()).Msg("constructing building has no finish time; not tracked")
			continue
		}

		finish := *b.ConstructionFinishTime
		remaining := max(0, finish.Sub(in.Now))
		construction[b.ID] = remaining

		if done, ok := prev.Reported[b.ID]; ok && done.Equal(finish) {
			reported[b.ID] = done
			continue
		}
		if remaining == 0 {
			reported[b.ID] = finish
			res.JustCompleted = append(res.JustCompleted, b.ID)
		}
	}

	res.Cooldowns = prev.Cooldowns
	if !cooldowns.Equal(prev.Cooldowns) {
		res.Cooldowns = cooldowns
		res.CooldownsChanged = true
	}

	res.Construction = prev.Construction
	if !construction.Equal(prev.Construction) {
		res.Construction = construction
		res.ConstructionChanged = true
	}

	res.Reported = prev.Reported
	if !reportedEqual(reported, prev.Reported) {
		res.Reported = reported
		res.ReportedChanged = true
	}

	sortIDs(res.JustCompleted)
	sortIDs(res.BecameReady)
	return res
}

// Forget drops id from the reported set so the next pass reports it again if its
// construction is still at zero. It returns a new state; prev is not modified.
func Forget(prev State, id models.BuildingID) State {
	if _, ok := prev.Reported[id]; !ok {
		return prev
	}
	reported := make(map[models.BuildingID]time.Time, len(prev.Reported))
	for k, v := range prev.Reported {
		if k != id {
			reported[k] = v
		}
	}
	prev.Reported = reported
	return prev
}

func reportedEqual(a, b map[models.BuildingID]time.Time) bool {
	if len(a) != len(b) {
		return false
	}
	for id, t := range a {
		if bt, ok := b[id]; !ok || !bt.Equal(t) {
			return false
		}
	}
	return true
}

func sortIDs(ids []models.BuildingID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
