// Package engine drives countdown reconciliation from a single shared ticker.
//
// One Engine serves one player session. Start moves it to running with a server snapshot,
// Load swaps in fresher snapshots, and Stop cancels the ticker and drops all derived state
// before returning. All derived state is owned by the session's loop goroutine.
package engine

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/idoltower/go/internal/dispatch"
	"github.com/mcdev12/idoltower/go/internal/layout"
	"github.com/mcdev12/idoltower/go/internal/models"
	"github.com/mcdev12/idoltower/go/internal/reconcile"
	"github.com/rs/zerolog/log"
)

// TickPeriod is the fixed period of the session ticker.
const TickPeriod = time.Second

// ErrStopped is returned when an operation needs a running session.
var ErrStopped = errors.New("engine is not running")

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// Publisher receives every view the engine publishes, including the cleared view on Stop.
// Publish is called from the session goroutine and must not block.
type Publisher interface {
	Publish(v View)
}

// EventSink receives domain events. Calls run off the tick loop.
type EventSink interface {
	CollectionReady(ctx context.Context, sessionID string, id models.BuildingID, at time.Time) error
	ConstructionFinished(ctx context.Context, sessionID string, id models.BuildingID, at time.Time) error
}

// Engine is the reconciliation engine of one viewer.
type Engine struct {
	clock        Clock
	finisher     dispatch.Finisher
	builder      *layout.Builder
	publishers   []Publisher
	sink         EventSink
	dispatchOpts []dispatch.Option

	lifeMu  sync.Mutex
	session *session

	viewMu sync.RWMutex
	view   View
}

type session struct {
	id        string
	cancel    context.CancelFunc
	done      chan struct{}
	snapshots chan models.Snapshot
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the real clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLayout replaces the default grid builder.
func WithLayout(b *layout.Builder) Option {
	return func(e *Engine) { e.builder = b }
}

// WithPublisher adds a view subscriber.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publishers = append(e.publishers, p) }
}

// WithEventSink sets the domain event receiver.
func WithEventSink(s EventSink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithDispatchOptions configures the per-session dispatcher.
func WithDispatchOptions(opts ...dispatch.Option) Option {
	return func(e *Engine) { e.dispatchOpts = append(e.dispatchOpts, opts...) }
}

// New creates a stopped engine that finishes constructions through f.
func New(f dispatch.Finisher, opts ...Option) *Engine {
	e := &Engine{
		clock:    clockwork.NewRealClock(),
		finisher: f,
		builder:  layout.NewBuilder(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start begins a session for snap. A running session is stopped first, so at most one
// ticker is ever active. The initial view is published before Start returns.
func (e *Engine) Start(ctx context.Context, snap models.Snapshot) string {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	e.stopLocked()

	sessCtx, cancel := context.WithCancel(ctx)
	s := &session{
		id:        uuid.New().String(),
		cancel:    cancel,
		done:      make(chan struct{}),
		snapshots: make(chan models.Snapshot),
	}

	l := &loop{
		engine:     e,
		sessionID:  s.id,
		dispatcher: dispatch.New(e.finisher, e.dispatchOpts...),
	}
	l.load(sessCtx, snap)

	ticker := e.clock.NewTicker(TickPeriod)
	e.session = s
	go l.run(sessCtx, ticker, s)

	log.Info().
		Str("session_id", s.id).
		Int("buildings", len(snap.Buildings)).
		Msg("engine session started")
	return s.id
}

// Load replaces the session snapshot. The grid is rebuilt and countdowns recomputed at once.
func (e *Engine) Load(snap models.Snapshot) error {
	e.lifeMu.Lock()
	s := e.session
	e.lifeMu.Unlock()

	if s == nil {
		return ErrStopped
	}
	select {
	case s.snapshots <- snap:
		return nil
	case <-s.done:
		return ErrStopped
	}
}

// Stop ends the session. When Stop returns no tick can fire and the published view is empty.
func (e *Engine) Stop() {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	s := e.session
	if s == nil {
		return
	}
	s.cancel()
	<-s.done
	e.session = nil

	cleared := View{SessionID: s.id}
	e.setView(cleared)
	e.publish(cleared)

	log.Info().Str("session_id", s.id).Msg("engine session stopped")
}

// Running reports whether a session loop is active.
func (e *Engine) Running() bool {
	e.lifeMu.Lock()
	s := e.session
	e.lifeMu.Unlock()

	if s == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// View returns the most recently published view.
func (e *Engine) View() View {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return e.view
}

func (e *Engine) setView(v View) {
	e.viewMu.Lock()
	e.view = v
	e.viewMu.Unlock()
}

func (e *Engine) publish(v View) {
	for _, p := range e.publishers {
		p.Publish(v)
	}
}

// loop holds the derived state of one session. Only the session goroutine touches it once
// run has started.
type loop struct {
	engine     *Engine
	sessionID  string
	dispatcher *dispatch.Dispatcher

	snapshot   models.Snapshot
	generation uint64
	sequence   uint64
	timers     reconcile.State
	grid       layout.Grid

	sinkWG sync.WaitGroup
}

func (l *loop) run(ctx context.Context, ticker clockwork.Ticker, s *session) {
	defer func() {
		ticker.Stop()
		l.dispatcher.Wait()
		l.sinkWG.Wait()
		close(s.done)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("session_id", l.sessionID).Msg("session loop exiting")
			return
		case <-ticker.Chan():
			l.tick(ctx, false)
		case snap := <-s.snapshots:
			l.load(ctx, snap)
		case res := <-l.dispatcher.Results():
			l.settle(ctx, res)
		}
	}
}

// load installs a snapshot, rebuilds the grid and publishes unconditionally.
func (l *loop) load(ctx context.Context, snap models.Snapshot) {
	snap.Buildings = slices.Clone(snap.Buildings)
	l.snapshot = snap
	l.generation++

	if cleared := l.dispatcher.Acknowledge(snap.Buildings); len(cleared) > 0 {
		log.Debug().
			Str("session_id", l.sessionID).
			Int("acknowledged", len(cleared)).
			Msg("server confirmed finished constructions")
	}
	l.grid = l.engine.builder.Build(l.snapshot.Buildings, l.snapshot.Configs())
	l.tick(ctx, true)
}

// tick reconciles at the current time, then dispatches completions, then publishes.
func (l *loop) tick(ctx context.Context, force bool) {
	now := l.engine.clock.Now()
	res := reconcile.Reconcile(reconcile.Input{
		Now:           now,
		Buildings:     l.snapshot.Buildings,
		LastCollected: l.snapshot.Resources.LastCollected,
		Configs:       l.snapshot.Configs(),
	}, l.timers)
	l.timers = res.State

	if len(res.JustCompleted) > 0 {
		completed := make([]dispatch.Completion, 0, len(res.JustCompleted))
		for _, id := range res.JustCompleted {
			completed = append(completed, dispatch.Completion{BuildingID: id, FinishTime: l.timers.Reported[id]})
		}
		fired := l.dispatcher.OnJustCompleted(ctx, completed)
		event := log.Debug()
		if len(fired) > 0 {
			event = log.Info()
		}
		event.
			Str("session_id", l.sessionID).
			Int("completed", len(res.JustCompleted)).
			Int("dispatched", len(fired)).
			Msg("constructions reached zero")

		// Declined completions are reported again until their guard clears.
		for _, id := range res.JustCompleted {
			if !slices.Contains(fired, id) {
				l.timers = reconcile.Forget(l.timers, id)
			}
		}
	}
	for _, id := range res.BecameReady {
		l.notify(ctx, id, now, EventSink.CollectionReady)
	}

	if !force && !res.CooldownsChanged && !res.ConstructionChanged {
		return
	}
	l.publish(ctx, now)
}

func (l *loop) settle(ctx context.Context, res dispatch.Result) {
	if l.dispatcher.Settle(res) {
		l.timers = reconcile.Forget(l.timers, res.BuildingID)
		return
	}
	if res.Err == nil {
		l.notify(ctx, res.BuildingID, l.engine.clock.Now(), EventSink.ConstructionFinished)
	}
}

type sinkCall func(s EventSink, ctx context.Context, sessionID string, id models.BuildingID, at time.Time) error

func (l *loop) notify(ctx context.Context, id models.BuildingID, at time.Time, call sinkCall) {
	sink := l.engine.sink
	if sink == nil {
		return
	}
	l.sinkWG.Add(1)
	go func() {
		defer l.sinkWG.Done()
		if err := call(sink, ctx, l.sessionID, id, at); err != nil {
			log.Warn().Err(err).Str("building_id", id.String()).Msg("failed to emit engine event")
		}
	}()
}

func (l *loop) publish(ctx context.Context, now time.Time) {
	if ctx.Err() != nil {
		return
	}
	l.sequence++
	v := View{
		SessionID:          l.sessionID,
		Running:            true,
		Generation:         l.generation,
		Sequence:           l.sequence,
		At:                 now,
		Balances:           l.snapshot.Resources.Balances,
		Buildings:          l.snapshot.Buildings,
		Configs:            l.snapshot.Configs(),
		Cooldowns:          l.timers.Cooldowns,
		ConstructionTimers: l.timers.Construction,
		AwaitingFinish:     l.dispatcher.Pending(),
		Grid:               l.grid,
	}
	l.engine.setView(v)
	l.engine.publish(v)
}
