package game_api_client

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/idoltower/go/clients"
	"github.com/mcdev12/idoltower/go/internal/models"
)

type GameApiClient struct {
	*clients.BaseClient
	now func() time.Time
}

func NewGameApiClient(baseURL, token string) *GameApiClient {
	client := &GameApiClient{
		BaseClient: clients.NewBaseClient(baseURL),
		now:        time.Now,
	}
	client.SetBearerToken(token)
	return client
}

// MessageResponse is the body of every action endpoint.
type MessageResponse struct {
	Message string `json:"message"`
}

type buildingIDRequest struct {
	BuildingID models.BuildingID `json:"buildingId"`
}

type buildRequest struct {
	Type  string `json:"type"`
	Floor int    `json:"floor"`
	Slot  int    `json:"slot"`
}

// Profile is the authenticated player.
type Profile struct {
	Message string `json:"message"`
	User    struct {
		ID       string `json:"_id"`
		Username string `json:"username"`
		Email    string `json:"email,omitempty"`
	} `json:"user"`
}

func (c *GameApiClient) GetProfile(ctx context.Context) (*Profile, error) {
	var profile Profile
	if err := c.GetJSON(ctx, ProfileEndpoint, &profile); err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

// GetSnapshot fetches buildings and resources. Building configuration comes from the
// resources response, or from the buildings response when resources carry none.
func (c *GameApiClient) GetSnapshot(ctx context.Context) (models.Snapshot, error) {
	buildings, configs, err := c.GetBuildings(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}
	resources, err := c.GetResources(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}
	if len(resources.BuildingConfigs) == 0 {
		resources.BuildingConfigs = configs
	}

	return models.Snapshot{
		Buildings: buildings,
		Resources: resources,
		FetchedAt: c.now(),
	}, nil
}

func (c *GameApiClient) FinishConstruction(ctx context.Context, id models.BuildingID) error {
	if err := c.PostJSON(ctx, FinishConstructionEndpoint, buildingIDRequest{BuildingID: id}, nil); err != nil {
		return fmt.Errorf("failed to finish construction of %s: %w", id, err)
	}
	return nil
}

func (c *GameApiClient) Build(ctx context.Context, buildingType string, floor, slot int) (string, error) {
	var resp MessageResponse
	if err := c.PostJSON(ctx, BuildEndpoint, buildRequest{Type: buildingType, Floor: floor, Slot: slot}, &resp); err != nil {
		return "", fmt.Errorf("failed to build %s: %w", buildingType, err)
	}
	return resp.Message, nil
}

func (c *GameApiClient) Upgrade(ctx context.Context, id models.BuildingID) (string, error) {
	return c.buildingAction(ctx, UpgradeEndpoint, "upgrade", id)
}

func (c *GameApiClient) CollectResources(ctx context.Context, id models.BuildingID) (string, error) {
	return c.buildingAction(ctx, CollectResourcesEndpoint, "collect resources from", id)
}

func (c *GameApiClient) Demolish(ctx context.Context, id models.BuildingID) (string, error) {
	return c.buildingAction(ctx, DemolishEndpoint, "demolish", id)
}

func (c *GameApiClient) buildingAction(ctx context.Context, endpoint, verb string, id models.BuildingID) (string, error) {
	var resp MessageResponse
	if err := c.PostJSON(ctx, endpoint, buildingIDRequest{BuildingID: id}, &resp); err != nil {
		return "", fmt.Errorf("failed to %s %s: %w", verb, id, err)
	}
	return resp.Message, nil
}
