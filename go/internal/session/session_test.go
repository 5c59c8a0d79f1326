package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/idoltower/go/clients"
	"github.com/mcdev12/idoltower/go/internal/engine"
	"github.com/mcdev12/idoltower/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeAPI struct {
	mu        sync.Mutex
	snapshots []models.Snapshot
	fetches   int
	finished  []models.BuildingID
	finishErr error
	fetchErr  error
}

func (f *fakeAPI) GetSnapshot(context.Context) (models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return models.Snapshot{}, f.fetchErr
	}
	snap := f.snapshots[min(f.fetches, len(f.snapshots)-1)]
	f.fetches++
	return snap, nil
}

func (f *fakeAPI) FinishConstruction(_ context.Context, id models.BuildingID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, id)
	return f.finishErr
}

func (f *fakeAPI) setFetchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func (f *fakeAPI) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func constructing(id models.BuildingID, finish time.Time) models.Building {
	return models.Building{ID: id, Type: "idol_house", Level: 1, IsConstructing: true, ConstructionFinishTime: &finish}
}

func configs() models.ConfigIndex {
	return models.ConfigIndex{"idol_house": {Slot: 2, MaxLevel: 1}}
}

func snapshotOf(buildings ...models.Building) models.Snapshot {
	return models.Snapshot{
		Buildings: buildings,
		Resources: models.ResourceSnapshot{BuildingConfigs: configs()},
	}
}

func start(t *testing.T, api *fakeAPI) (*Session, *clockwork.FakeClock, context.CancelFunc, <-chan error) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	s := New(api, engine.WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(cancel)

	require.Eventually(t, s.Engine().Running, 2*time.Second, 5*time.Millisecond)
	return s, clock, cancel, done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("session did not return")
		return nil
	}
}

func TestSession_FinishRefreshesSnapshot(t *testing.T) {
	finished := models.Building{ID: "b1", Type: "idol_house", Level: 1}
	api := &fakeAPI{snapshots: []models.Snapshot{
		snapshotOf(constructing("b1", t0.Add(2*time.Second))),
		snapshotOf(finished),
	}}
	s, clock, cancel, done := start(t, api)

	assert.Equal(t, uint64(1), s.View().Generation)

	clock.Advance(2 * time.Second)

	require.Eventually(t, func() bool { return s.View().Generation == 2 }, 2*time.Second, 5*time.Millisecond)
	b, ok := s.View().Building("b1")
	require.True(t, ok)
	assert.False(t, b.IsConstructing)
	assert.Equal(t, 2, api.fetchCount())
	assert.Empty(t, s.View().AwaitingFinish)

	cancel()
	assert.NoError(t, wait(t, done))
	assert.False(t, s.Engine().Running())
}

func TestSession_UnauthorizedFinishStops(t *testing.T) {
	api := &fakeAPI{
		snapshots: []models.Snapshot{snapshotOf(constructing("b1", t0.Add(time.Second)))},
		finishErr: fmt.Errorf("POST finish: %w", clients.ErrUnauthorized),
	}
	s, clock, _, done := start(t, api)

	clock.Advance(time.Second)

	assert.ErrorIs(t, wait(t, done), clients.ErrUnauthorized)
	assert.False(t, s.Engine().Running())
	assert.Empty(t, s.View().Buildings)
}

func TestSession_RefreshErrors(t *testing.T) {
	api := &fakeAPI{snapshots: []models.Snapshot{snapshotOf()}}
	s, _, cancel, done := start(t, api)
	ctx := context.Background()

	require.NoError(t, s.Refresh(ctx))
	require.Eventually(t, func() bool { return s.View().Generation == 2 }, 2*time.Second, 5*time.Millisecond)

	api.setFetchErr(errors.New("connection refused"))
	assert.Error(t, s.Refresh(ctx))
	assert.True(t, s.Engine().Running())

	api.setFetchErr(nil)
	cancel()
	require.NoError(t, wait(t, done))
	assert.ErrorIs(t, s.Refresh(ctx), engine.ErrStopped)
}

func TestSession_InitialSnapshotFailure(t *testing.T) {
	api := &fakeAPI{fetchErr: errors.New("boom")}

	s := New(api, engine.WithClock(clockwork.NewFakeClockAt(t0)))
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.False(t, s.Engine().Running())
}
