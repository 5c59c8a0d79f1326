package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mcdev12/idoltower/go/clients"
	"github.com/mcdev12/idoltower/go/internal/engine"
	"github.com/mcdev12/idoltower/go/internal/models"
	"github.com/mcdev12/idoltower/go/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	calls []string
	err   error
}

func (f *fakeAPI) record(call string) (string, error) {
	f.calls = append(f.calls, call)
	if f.err != nil {
		return "", f.err
	}
	return call + " ok", nil
}

func (f *fakeAPI) Build(_ context.Context, buildingType string, _, _ int) (string, error) {
	return f.record("build " + buildingType)
}

func (f *fakeAPI) Upgrade(_ context.Context, id models.BuildingID) (string, error) {
	return f.record("upgrade " + id.String())
}

func (f *fakeAPI) CollectResources(_ context.Context, id models.BuildingID) (string, error) {
	return f.record("collect " + id.String())
}

func (f *fakeAPI) Demolish(_ context.Context, id models.BuildingID) (string, error) {
	return f.record("demolish " + id.String())
}

type staticView engine.View

func (v staticView) View() engine.View { return engine.View(v) }

func newTestService(api *fakeAPI, refreshes *int) *Service {
	configs := models.ConfigIndex{
		"idol_house": {Slot: 2, MaxLevel: 2, Levels: map[int]models.LevelConfig{
			1: {Cost: models.ResourceVector{"gold": 100}},
			2: {Cost: models.ResourceVector{"gold": 250}},
		}},
		"elevator": {Slot: 1, MaxLevel: 1, Levels: map[int]models.LevelConfig{
			1: {Cost: models.ResourceVector{"gold": 10}},
		}},
	}
	view := staticView{
		Buildings: []models.Building{
			{ID: "cooling", Type: "idol_house", Level: 1},
			{ID: "ready", Type: "idol_house", Level: 2},
		},
		Configs:   configs,
		Cooldowns: reconcile.Timers{"cooling": 61500 * time.Millisecond, "ready": 0},
	}
	refresher := RefresherFunc(func(context.Context) error {
		*refreshes++
		return nil
	})
	return NewService(api, view, refresher)
}

func TestService_CollectOnCooldown(t *testing.T) {
	api := &fakeAPI{}
	refreshes := 0
	svc := newTestService(api, &refreshes)

	_, err := svc.Collect(context.Background(), "cooling")
	require.ErrorIs(t, err, ErrOnCooldown)
	assert.Contains(t, err.Error(), "1m 2s")
	assert.Empty(t, api.calls)
	assert.Zero(t, refreshes)
}

func TestService_CollectReady(t *testing.T) {
	api := &fakeAPI{}
	refreshes := 0
	svc := newTestService(api, &refreshes)
	ctx := context.Background()

	msg, err := svc.Collect(ctx, "ready")
	require.NoError(t, err)
	assert.Equal(t, "collect ready ok", msg)

	// unknown to the view: the server decides
	_, err = svc.Collect(ctx, "elsewhere")
	require.NoError(t, err)

	assert.Equal(t, []string{"collect ready", "collect elsewhere"}, api.calls)
	assert.Equal(t, 2, refreshes)
}

func TestService_ActionsRefreshOnSuccessOnly(t *testing.T) {
	api := &fakeAPI{}
	refreshes := 0
	svc := newTestService(api, &refreshes)
	ctx := context.Background()

	_, err := svc.Build(ctx, "idol_house", 1, 4)
	require.NoError(t, err)
	_, err = svc.Upgrade(ctx, "cooling")
	require.NoError(t, err)
	_, err = svc.Demolish(ctx, "ready")
	require.NoError(t, err)
	assert.Equal(t, 3, refreshes)

	api.err = &clients.APIError{StatusCode: http.StatusBadRequest, Message: "Not enough gold"}
	_, err = svc.Upgrade(ctx, "cooling")
	require.Error(t, err)
	assert.Equal(t, 3, refreshes)
}

func TestService_UpgradeCost(t *testing.T) {
	svc := newTestService(&fakeAPI{}, new(int))

	cost, err := svc.UpgradeCost("cooling")
	require.NoError(t, err)
	assert.Equal(t, models.ResourceVector{"gold": 250}, cost)

	_, err = svc.UpgradeCost("ready")
	assert.ErrorIs(t, err, ErrMaxLevel)

	_, err = svc.UpgradeCost("missing")
	assert.ErrorIs(t, err, ErrUnknownBuilding)
}

func TestService_UpgradeCostNotConfigured(t *testing.T) {
	view := staticView{
		Buildings: []models.Building{
			{ID: "retired", Type: "statue", Level: 1},
			{ID: "gap", Type: "fountain", Level: 1},
		},
		Configs: models.ConfigIndex{
			"fountain": {Slot: 1, MaxLevel: 3, Levels: map[int]models.LevelConfig{
				1: {Cost: models.ResourceVector{"gold": 5}},
			}},
		},
	}
	svc := NewService(&fakeAPI{}, view, nil)

	_, err := svc.UpgradeCost("retired")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NotErrorIs(t, err, ErrMaxLevel)

	_, err = svc.UpgradeCost("gap")
	assert.ErrorIs(t, err, ErrNotConfigured)

	rec := serve(t, svc, http.MethodGet, "/api/buildings/gap/upgrade-cost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestService_BuildOptions(t *testing.T) {
	svc := newTestService(&fakeAPI{}, new(int))

	assert.Equal(t, []BuildOption{
		{Type: "elevator", Cost: models.ResourceVector{"gold": 10}},
		{Type: "idol_house", Cost: models.ResourceVector{"gold": 100}},
	}, svc.BuildOptions())
}

func serve(t *testing.T, svc *Service, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(svc).RegisterRoutes(mux)

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestHandler(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(api, new(int))

	rec := serve(t, svc, http.MethodPost, "/api/actions/build", BuildRequest{Type: "idol_house", Floor: 1, Slot: 3})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"build idol_house ok"}`, rec.Body.String())

	rec = serve(t, svc, http.MethodPost, "/api/actions/collect", BuildingRequest{BuildingID: "cooling"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(t, svc, http.MethodPost, "/api/actions/demolish", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, svc, http.MethodGet, "/api/buildings/cooling/upgrade-cost", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"gold":250}`, rec.Body.String())

	rec = serve(t, svc, http.MethodGet, "/api/buildings/missing/upgrade-cost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ServerErrors(t *testing.T) {
	api := &fakeAPI{err: &clients.APIError{StatusCode: http.StatusBadRequest, Message: "Slot occupied"}}
	svc := newTestService(api, new(int))

	rec := serve(t, svc, http.MethodPost, "/api/actions/upgrade", BuildingRequest{BuildingID: "cooling"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Slot occupied"}`, rec.Body.String())

	api.err = errors.Join(errors.New("POST /api/game/demolish"), clients.ErrUnauthorized)
	rec = serve(t, svc, http.MethodPost, "/api/actions/demolish", BuildingRequest{BuildingID: "ready"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	api.err = errors.New("connection refused")
	rec = serve(t, svc, http.MethodPost, "/api/actions/collect", BuildingRequest{BuildingID: "ready"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
