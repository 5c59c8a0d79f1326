// Package actions implements the player's write operations against the game server.
// The server is authoritative; local prechecks only avoid requests that are known to fail.
package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/idoltower/go/internal/engine"
	"github.com/mcdev12/idoltower/go/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrOnCooldown is returned by Collect while the building's collection cooldown runs.
	ErrOnCooldown = errors.New("collection is on cooldown")
	// ErrMaxLevel is returned by UpgradeCost for a building at its maximum level.
	ErrMaxLevel = errors.New("building is at max level")
	// ErrUnknownBuilding is returned when the current view has no such building.
	ErrUnknownBuilding = errors.New("unknown building")
	// ErrNotConfigured is returned by UpgradeCost when the server config has no cost for
	// the building's next level.
	ErrNotConfigured = errors.New("upgrade is not configured")
)

// API is the subset of the game server client the actions need.
type API interface {
	Build(ctx context.Context, buildingType string, floor, slot int) (string, error)
	Upgrade(ctx context.Context, id models.BuildingID) (string, error)
	CollectResources(ctx context.Context, id models.BuildingID) (string, error)
	Demolish(ctx context.Context, id models.BuildingID) (string, error)
}

// ViewSource exposes the latest derived state.
type ViewSource interface {
	View() engine.View
}

// Refresher reloads the server snapshot after a successful action.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type RefresherFunc func(ctx context.Context) error

func (f RefresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

type Service struct {
	api       API
	views     ViewSource
	refresher Refresher
}

func NewService(api API, views ViewSource, refresher Refresher) *Service {
	return &Service{
		api:       api,
		views:     views,
		refresher: refresher,
	}
}

func (s *Service) Build(ctx context.Context, buildingType string, floor, slot int) (string, error) {
	msg, err := s.api.Build(ctx, buildingType, floor, slot)
	if err != nil {
		return "", err
	}
	log.Info().Str("type", buildingType).Int("floor", floor).Int("slot", slot).Msg("building construction requested")
	s.refresh(ctx, "build")
	return msg, nil
}

func (s *Service) Upgrade(ctx context.Context, id models.BuildingID) (string, error) {
	msg, err := s.api.Upgrade(ctx, id)
	if err != nil {
		return "", err
	}
	log.Info().Str("building_id", id.String()).Msg("building upgrade requested")
	s.refresh(ctx, "upgrade")
	return msg, nil
}

// Collect refuses locally while the building's cooldown is positive. A building the view
// does not know, or one without a collection interval, is left to the server to judge.
func (s *Service) Collect(ctx context.Context, id models.BuildingID) (string, error) {
	if remaining, ok := s.views.View().Cooldown(id); ok && remaining > 0 {
		return "", fmt.Errorf("%w: wait %s", ErrOnCooldown, FormatRemaining(remaining))
	}

	msg, err := s.api.CollectResources(ctx, id)
	if err != nil {
		return "", err
	}
	log.Info().Str("building_id", id.String()).Msg("resources collected")
	s.refresh(ctx, "collect")
	return msg, nil
}

func (s *Service) Demolish(ctx context.Context, id models.BuildingID) (string, error) {
	msg, err := s.api.Demolish(ctx, id)
	if err != nil {
		return "", err
	}
	log.Info().Str("building_id", id.String()).Msg("building demolished")
	s.refresh(ctx, "demolish")
	return msg, nil
}

// UpgradeCost returns the cost of the building's next level.
func (s *Service) UpgradeCost(id models.BuildingID) (models.ResourceVector, error) {
	view := s.views.View()
	b, ok := view.Building(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBuilding, id)
	}
	if view.Configs.AtMaxLevel(b) {
		return nil, fmt.Errorf("%w: %s", ErrMaxLevel, id)
	}
	cost, ok := view.Configs.UpgradeCost(b)
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s level %d)", ErrNotConfigured, id, b.Type, b.Level+1)
	}
	return cost, nil
}

// BuildOption is a buildable type with its level-one cost.
type BuildOption struct {
	Type string                `json:"type"`
	Cost models.ResourceVector `json:"cost,omitempty"`
}

// BuildOptions lists the configured building types in a stable order.
func (s *Service) BuildOptions() []BuildOption {
	configs := s.views.View().Configs
	types := configs.Types()
	options := make([]BuildOption, 0, len(types))
	for _, t := range types {
		cost, _ := configs.BuildCost(t)
		options = append(options, BuildOption{Type: t, Cost: cost})
	}
	return options
}

// refresh failures are logged only; the action itself already succeeded and the next
// refresh will catch up.
func (s *Service) refresh(ctx context.Context, action string) {
	if s.refresher == nil {
		return
	}
	if err := s.refresher.Refresh(ctx); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("failed to refresh snapshot after action")
	}
}
