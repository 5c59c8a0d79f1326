package session

import (
	"context"

	"github.com/mcdev12/idoltower/go/internal/actions"
	"github.com/mcdev12/idoltower/go/internal/models"
)

// WatchActions wraps api so a rejected token on any player action also ends the session.
func (s *Session) WatchActions(api actions.API) actions.API {
	return &watchedActions{api: api, session: s}
}

type watchedActions struct {
	api     actions.API
	session *Session
}

func (w *watchedActions) Build(ctx context.Context, buildingType string, floor, slot int) (string, error) {
	return w.observe(w.api.Build(ctx, buildingType, floor, slot))
}

func (w *watchedActions) Upgrade(ctx context.Context, id models.BuildingID) (string, error) {
	return w.observe(w.api.Upgrade(ctx, id))
}

func (w *watchedActions) CollectResources(ctx context.Context, id models.BuildingID) (string, error) {
	return w.observe(w.api.CollectResources(ctx, id))
}

func (w *watchedActions) Demolish(ctx context.Context, id models.BuildingID) (string, error) {
	return w.observe(w.api.Demolish(ctx, id))
}

func (w *watchedActions) observe(msg string, err error) (string, error) {
	if err != nil {
		w.session.Observe(err)
	}
	return msg, err
}
