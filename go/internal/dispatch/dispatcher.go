// Package dispatch sends "finish construction" requests for countdowns that reached zero.
package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mcdev12/idoltower/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultRequestTimeout bounds a single finish request.
const DefaultRequestTimeout = 10 * time.Second

// Finisher performs the external finish-construction request.
type Finisher interface {
	FinishConstruction(ctx context.Context, id models.BuildingID) error
}

// FinisherFunc adapts a function to Finisher.
type FinisherFunc func(ctx context.Context, id models.BuildingID) error

func (f FinisherFunc) FinishConstruction(ctx context.Context, id models.BuildingID) error {
	return f(ctx, id)
}

// Result reports how one finish request ended.
type Result struct {
	BuildingID models.BuildingID
	FinishTime time.Time
	Err        error
	Duration   time.Duration
}

// Completion is a construction episode that reached zero. An episode is identified by its
// building and the finish time the server reported for it.
type Completion struct {
	BuildingID models.BuildingID
	FinishTime time.Time
}

// Dispatcher remembers which construction episodes have a finish request outstanding or
// awaiting server acknowledgement, and fires at most one request per episode.
//
// A Dispatcher is owned by a single goroutine: OnJustCompleted, Settle, Acknowledge and
// Pending must not be called concurrently. Requests run in their own goroutines and report
// back through Results.
type Dispatcher struct {
	finisher Finisher
	timeout  time.Duration

	// finish time of each episode dispatched but not yet acknowledged by a snapshot
	pending map[models.BuildingID]time.Time
	results chan Result
	wg      sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// New creates a dispatcher that sends requests through f.
func New(f Finisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		finisher: f,
		timeout:  DefaultRequestTimeout,
		pending:  make(map[models.BuildingID]time.Time),
		results:  make(chan Result, 64),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Results delivers the outcome of every request. The owner must feed each one to Settle.
func (d *Dispatcher) Results() <-chan Result {
	return d.results
}

// OnJustCompleted fires one request per episode that is not already pending and returns the
// ids it dispatched. A pending guard left over from an earlier episode of the same building
// is replaced. Requests are cancelled with ctx.
func (d *Dispatcher) OnJustCompleted(ctx context.Context, completed []Completion) []models.BuildingID {
	var fired []models.BuildingID
	for _, c := range completed {
		id := c.BuildingID
		if finish, ok := d.pending[id]; ok {
			if finish.Equal(c.FinishTime) {
				log.Debug().Str("building_id", id.String()).Msg("finish request already pending; skipping")
				continue
			}
			log.Debug().
				Str("building_id", id.String()).
				Time("previous_finish", finish).
				Time("finish", c.FinishTime).
				Msg("replacing finish guard of an earlier construction")
		}
		d.pending[id] = c.FinishTime
		fired = append(fired, id)

		d.wg.Add(1)
		go d.finish(ctx, c)
	}
	return fired
}

func (d *Dispatcher) finish(ctx context.Context, c Completion) {
	defer d.wg.Done()

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	id := c.BuildingID
	start := time.Now()
	err := d.finisher.FinishConstruction(reqCtx, id)
	res := Result{BuildingID: id, FinishTime: c.FinishTime, Err: err, Duration: time.Since(start)}

	select {
	case d.results <- res:
	case <-ctx.Done():
		log.Debug().Str("building_id", id.String()).Msg("dispatcher stopped; dropping finish result")
	}
}

// Settle records a request outcome. A failed request releases its guard and Settle returns
// true, telling the owner to report the completion again on the next tick. Results of
// episodes that are no longer guarded are ignored.
func (d *Dispatcher) Settle(res Result) (retry bool) {
	finish, ok := d.pending[res.BuildingID]
	if !ok || !finish.Equal(res.FinishTime) {
		return false
	}
	if res.Err == nil {
		log.Info().
			Str("building_id", res.BuildingID.String()).
			Dur("took", res.Duration).
			Msg("construction finish requested")
		return false
	}

	log.Error().
		Err(res.Err).
		Str("building_id", res.BuildingID.String()).
		Msg("finish construction request failed; retrying next tick")
	delete(d.pending, res.BuildingID)
	return true
}

// Acknowledge clears the guard of every pending building the snapshot no longer reports as
// constructing, or reports with a different finish time, and returns the ids it cleared.
func (d *Dispatcher) Acknowledge(buildings []models.Building) []models.BuildingID {
	if len(d.pending) == 0 {
		return nil
	}

	byID := make(map[models.BuildingID]models.Building, len(buildings))
	for _, b := range buildings {
		byID[b.ID] = b
	}

	var cleared []models.BuildingID
	for id, finish := range d.pending {
		b, ok := byID[id]
		sameEpisode := ok && b.IsConstructing &&
			b.ConstructionFinishTime != nil && b.ConstructionFinishTime.Equal(finish)
		if !sameEpisode {
			delete(d.pending, id)
			cleared = append(cleared, id)
		}
	}
	sort.Slice(cleared, func(i, j int) bool { return cleared[i] < cleared[j] })
	return cleared
}

// Pending returns the guarded ids in a stable order.
func (d *Dispatcher) Pending() []models.BuildingID {
	ids := make([]models.BuildingID, 0, len(d.pending))
	for id := range d.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Wait blocks until every running request has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
