// Package session keeps an engine fed with server snapshots for one authenticated player.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/idoltower/go/clients"
	"github.com/mcdev12/idoltower/go/internal/engine"
	"github.com/mcdev12/idoltower/go/internal/models"
	"github.com/rs/zerolog/log"
)

// API is the slice of the game server client a session needs.
type API interface {
	GetSnapshot(ctx context.Context) (models.Snapshot, error)
	FinishConstruction(ctx context.Context, id models.BuildingID) error
}

// Session owns an engine. Snapshot reloads and auth loss are handled on the Run goroutine
// because the engine's finish requests must not block on the engine itself.
type Session struct {
	api    API
	engine *engine.Engine

	refreshCh  chan struct{}
	authLostCh chan struct{}
}

func New(api API, opts ...engine.Option) *Session {
	s := &Session{
		api:        api,
		refreshCh:  make(chan struct{}, 1),
		authLostCh: make(chan struct{}, 1),
	}
	s.engine = engine.New(s, opts...)
	return s
}

func (s *Session) Engine() *engine.Engine { return s.engine }

// View returns the engine's latest view.
func (s *Session) View() engine.View { return s.engine.View() }

// Run fetches the first snapshot, starts the engine and serves refresh requests until ctx
// is done or the server rejects the token. The engine is stopped when Run returns.
func (s *Session) Run(ctx context.Context) error {
	snap, err := s.api.GetSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load initial snapshot: %w", err)
	}

	id := s.engine.Start(ctx, snap)
	defer s.engine.Stop()
	log.Info().Str("session_id", id).Msg("session running")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.authLostCh:
			log.Warn().Str("session_id", id).Msg("authentication lost; stopping session")
			return clients.ErrUnauthorized
		case <-s.refreshCh:
			if err := s.Refresh(ctx); err != nil && !errors.Is(err, clients.ErrUnauthorized) {
				log.Error().Err(err).Msg("snapshot refresh failed")
			}
		}
	}
}

// Refresh fetches a snapshot and loads it into the running engine.
func (s *Session) Refresh(ctx context.Context) error {
	snap, err := s.api.GetSnapshot(ctx)
	if err != nil {
		s.Observe(err)
		return fmt.Errorf("failed to refresh snapshot: %w", err)
	}
	if err := s.engine.Load(snap); err != nil {
		return err
	}
	log.Debug().Int("buildings", len(snap.Buildings)).Msg("snapshot refreshed")
	return nil
}

// RequestRefresh queues a refresh on the Run goroutine. Requests coalesce.
func (s *Session) RequestRefresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

// FinishConstruction is the engine's finisher: a successful finish is followed by a
// snapshot refresh so the building shows as complete.
func (s *Session) FinishConstruction(ctx context.Context, id models.BuildingID) error {
	if err := s.api.FinishConstruction(ctx, id); err != nil {
		s.Observe(err)
		return err
	}
	s.RequestRefresh()
	return nil
}

// Observe ends Run with clients.ErrUnauthorized when err reports a rejected token. Errors
// from API calls made outside the session should be passed here too.
func (s *Session) Observe(err error) {
	if !errors.Is(err, clients.ErrUnauthorized) {
		return
	}
	select {
	case s.authLostCh <- struct{}{}:
	default:
	}
}
