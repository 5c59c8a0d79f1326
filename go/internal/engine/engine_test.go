package engine

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/idoltower/go/internal/layout"
	"github.com/mcdev12/idoltower/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ms(v int64) *int64 { return &v }

func testConfigs() models.ConfigIndex {
	return models.ConfigIndex{
		"idol_house": {Slot: 2, MaxLevel: 2, Levels: map[int]models.LevelConfig{
			1: {CollectionInterval: ms(3_000)},
		}},
		"elevator": {Slot: 1, MaxLevel: 1, Levels: map[int]models.LevelConfig{1: {}}},
	}
}

type viewRecorder struct {
	ch chan View
}

func newViewRecorder() *viewRecorder {
	return &viewRecorder{ch: make(chan View, 256)}
}

func (r *viewRecorder) Publish(v View) { r.ch <- v }

func (r *viewRecorder) next(t *testing.T) View {
	t.Helper()
	select {
	case v := <-r.ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published view")
		return View{}
	}
}

type countingFinisher struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (f *countingFinisher) FinishConstruction(context.Context, models.BuildingID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("server unreachable")
	}
	return nil
}

func (f *countingFinisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordedEvent struct {
	kind string
	id   models.BuildingID
}

type sinkRecorder struct {
	ch chan recordedEvent
}

func (s *sinkRecorder) CollectionReady(_ context.Context, _ string, id models.BuildingID, _ time.Time) error {
	s.ch <- recordedEvent{kind: "ready", id: id}
	return nil
}

func (s *sinkRecorder) ConstructionFinished(_ context.Context, _ string, id models.BuildingID, _ time.Time) error {
	s.ch <- recordedEvent{kind: "finished", id: id}
	return nil
}

func newTestEngine(t *testing.T, f *countingFinisher, opts ...Option) (*Engine, *clockwork.FakeClock, *viewRecorder) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	rec := newViewRecorder()
	opts = append([]Option{WithClock(clock), WithPublisher(rec)}, opts...)
	e := New(f, opts...)
	t.Cleanup(e.Stop)
	return e, clock, rec
}

func collectingSnapshot() models.Snapshot {
	return models.Snapshot{
		Buildings: []models.Building{
			{ID: "h1", Type: "idol_house", Level: 1, Floor: 0, SlotOrigin: 0, MergedCount: 1},
			{ID: "e1", Type: "elevator", Level: 1, Floor: 0, SlotOrigin: 2, MergedCount: 1},
		},
		Resources: models.ResourceSnapshot{
			Balances:        models.ResourceVector{"gold": 10},
			LastCollected:   map[models.BuildingID]time.Time{"h1": t0},
			BuildingConfigs: testConfigs(),
		},
	}
}

func constructingSnapshot(finish time.Time) models.Snapshot {
	return models.Snapshot{
		Buildings: []models.Building{{
			ID: "c1", Type: "elevator", Level: 1, Floor: 0, SlotOrigin: 0, MergedCount: 1,
			IsConstructing: true, ConstructionFinishTime: &finish,
		}},
		Resources: models.ResourceSnapshot{BuildingConfigs: testConfigs()},
	}
}

func TestEngine_StartPublishesInitialView(t *testing.T) {
	e, _, rec := newTestEngine(t, &countingFinisher{})

	id := e.Start(context.Background(), collectingSnapshot())
	v := rec.next(t)

	assert.Equal(t, id, v.SessionID)
	assert.True(t, v.Running)
	assert.True(t, e.Running())
	assert.Equal(t, uint64(1), v.Generation)
	assert.Equal(t, 3*time.Second, v.Cooldowns["h1"])
	assert.NotContains(t, v.Cooldowns, models.BuildingID("e1"))
	assert.Equal(t, 20, v.Grid.Width())

	above, ok := v.Grid.At(1, 2)
	require.True(t, ok)
	assert.Equal(t, layout.CellElevatorBuildable, above.Kind)
	assert.Equal(t, v, e.View())
}

func TestEngine_TickCountsDown(t *testing.T) {
	e, clock, rec := newTestEngine(t, &countingFinisher{})
	e.Start(context.Background(), collectingSnapshot())
	rec.next(t)

	clock.Advance(TickPeriod)
	v := rec.next(t)
	assert.Equal(t, 2*time.Second, v.Cooldowns["h1"])
	assert.Equal(t, uint64(2), v.Sequence)

	clock.Advance(TickPeriod)
	v = rec.next(t)
	assert.Equal(t, time.Second, v.Cooldowns["h1"])
}

func TestEngine_CollectionReadyEvent(t *testing.T) {
	sink := &sinkRecorder{ch: make(chan recordedEvent, 8)}
	e, clock, rec := newTestEngine(t, &countingFinisher{}, WithEventSink(sink))
	e.Start(context.Background(), collectingSnapshot())
	rec.next(t)

	var v View
	for i := 0; i < 3; i++ {
		clock.Advance(TickPeriod)
		v = rec.next(t)
	}
	assert.Equal(t, time.Duration(0), v.Cooldowns["h1"])

	select {
	case ev := <-sink.ch:
		assert.Equal(t, recordedEvent{kind: "ready", id: "h1"}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("no collection ready event")
	}
}

func TestEngine_CompletionDispatchedOnce(t *testing.T) {
	f := &countingFinisher{}
	sink := &sinkRecorder{ch: make(chan recordedEvent, 8)}
	e, clock, rec := newTestEngine(t, f, WithEventSink(sink))

	e.Start(context.Background(), constructingSnapshot(t0.Add(time.Second)))
	v := rec.next(t)
	assert.Equal(t, time.Second, v.ConstructionTimers["c1"])

	clock.Advance(TickPeriod)
	v = rec.next(t)
	assert.Equal(t, time.Duration(0), v.ConstructionTimers["c1"])

	require.Eventually(t, func() bool { return f.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		clock.Advance(TickPeriod)
	}
	assert.Never(t, func() bool { return f.count() > 1 }, 200*time.Millisecond, 10*time.Millisecond)

	select {
	case ev := <-sink.ch:
		assert.Equal(t, recordedEvent{kind: "finished", id: "c1"}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("no construction finished event")
	}
}

func TestEngine_FailedFinishRetriesNextTick(t *testing.T) {
	f := &countingFinisher{failures: 1}
	e, clock, rec := newTestEngine(t, f)

	e.Start(context.Background(), constructingSnapshot(t0))
	rec.next(t)
	require.Eventually(t, func() bool { return f.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		clock.Advance(TickPeriod)
		return f.count() >= 2
	}, 2*time.Second, 20*time.Millisecond)

	for i := 0; i < 3; i++ {
		clock.Advance(TickPeriod)
	}
	assert.Never(t, func() bool { return f.count() > 2 }, 200*time.Millisecond, 10*time.Millisecond)
}

func TestEngine_LoadAcknowledgesAndRebuilds(t *testing.T) {
	f := &countingFinisher{}
	e, clock, rec := newTestEngine(t, f)

	snap := constructingSnapshot(t0)
	e.Start(context.Background(), snap)
	rec.next(t)
	require.Eventually(t, func() bool { return f.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	done := snap
	done.Buildings = []models.Building{{ID: "c1", Type: "elevator", Level: 1, Floor: 1, SlotOrigin: 0, MergedCount: 1}}
	require.NoError(t, e.Load(done))

	v := rec.next(t)
	assert.Equal(t, uint64(2), v.Generation)
	assert.Empty(t, v.ConstructionTimers)
	assert.Empty(t, v.AwaitingFinish)
	assert.Equal(t, 3, v.Grid.Height())

	// Later upgrade of the same building finishes again.
	next := t0.Add(2 * time.Second)
	require.NoError(t, e.Load(constructingSnapshot(next)))
	rec.next(t)
	clock.Advance(TickPeriod)
	rec.next(t)
	clock.Advance(TickPeriod)
	require.Eventually(t, func() bool { return f.count() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_UpgradeBeforeAcknowledgeFinishesAgain(t *testing.T) {
	f := &countingFinisher{}
	e, clock, rec := newTestEngine(t, f)

	e.Start(context.Background(), constructingSnapshot(t0.Add(time.Second)))
	rec.next(t)
	clock.Advance(TickPeriod)
	rec.next(t)
	require.Eventually(t, func() bool { return f.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	// The next snapshot already shows a new construction of c1.
	require.NoError(t, e.Load(constructingSnapshot(t0.Add(10*time.Second))))
	v := rec.next(t)
	assert.Equal(t, 9*time.Second, v.ConstructionTimers["c1"])
	assert.Empty(t, v.AwaitingFinish)

	for i := 0; i < 12; i++ {
		clock.Advance(TickPeriod)
	}
	require.Eventually(t, func() bool { return f.count() == 2 }, 2*time.Second, 5*time.Millisecond)

	clock.Advance(TickPeriod)
	assert.Never(t, func() bool { return f.count() > 2 }, 200*time.Millisecond, 10*time.Millisecond)
}

func TestEngine_UnchangedTicksDoNotPublish(t *testing.T) {
	snap := models.Snapshot{
		Buildings: []models.Building{{ID: "e1", Type: "elevator", Level: 1, MergedCount: 1}},
		Resources: models.ResourceSnapshot{BuildingConfigs: testConfigs()},
	}
	e, clock, rec := newTestEngine(t, &countingFinisher{})
	e.Start(context.Background(), snap)
	first := rec.next(t)

	for i := 0; i < 3; i++ {
		clock.Advance(TickPeriod)
	}
	select {
	case v := <-rec.ch:
		t.Fatalf("unexpected publish: %+v", v)
	case <-time.After(200 * time.Millisecond):
	}

	current := e.View()
	assert.Equal(t, first.Sequence, current.Sequence)
	assert.Equal(t,
		reflect.ValueOf(first.Cooldowns).Pointer(),
		reflect.ValueOf(current.Cooldowns).Pointer())
}

func TestEngine_StopClearsState(t *testing.T) {
	e, clock, rec := newTestEngine(t, &countingFinisher{})
	id := e.Start(context.Background(), collectingSnapshot())
	rec.next(t)

	e.Stop()
	cleared := rec.next(t)
	assert.Equal(t, id, cleared.SessionID)
	assert.False(t, cleared.Running)
	assert.Nil(t, cleared.Cooldowns)
	assert.Equal(t, 0, cleared.Grid.Height())

	assert.False(t, e.Running())
	assert.Equal(t, cleared, e.View())
	assert.ErrorIs(t, e.Load(collectingSnapshot()), ErrStopped)

	clock.Advance(5 * TickPeriod)
	select {
	case v := <-rec.ch:
		t.Fatalf("tick fired after stop: %+v", v)
	case <-time.After(100 * time.Millisecond):
	}

	// Stop is idempotent.
	e.Stop()
}

func TestEngine_RestartReplacesSession(t *testing.T) {
	e, clock, rec := newTestEngine(t, &countingFinisher{})
	first := e.Start(context.Background(), collectingSnapshot())
	rec.next(t)

	second := e.Start(context.Background(), collectingSnapshot())
	assert.NotEqual(t, first, second)

	cleared := rec.next(t)
	assert.Equal(t, first, cleared.SessionID)
	assert.False(t, cleared.Running)

	v := rec.next(t)
	assert.Equal(t, second, v.SessionID)
	assert.Equal(t, uint64(1), v.Generation)

	clock.Advance(TickPeriod)
	v = rec.next(t)
	assert.Equal(t, second, v.SessionID)
	assert.Equal(t, 2*time.Second, v.Cooldowns["h1"])
}

func TestEngine_ParentContextCancelEndsLoop(t *testing.T) {
	e, _, rec := newTestEngine(t, &countingFinisher{})
	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx, collectingSnapshot())
	rec.next(t)

	cancel()
	require.Eventually(t, func() bool { return !e.Running() }, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, e.Load(collectingSnapshot()), ErrStopped)
}
