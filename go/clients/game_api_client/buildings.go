package game_api_client

import (
	"context"
	"fmt"

	"github.com/mcdev12/idoltower/go/internal/models"
)

type BuildingsResponse struct {
	Buildings       []models.Building  `json:"buildings"`
	BuildingConfigs models.ConfigIndex `json:"buildingConfigs"`
}

func (c *GameApiClient) GetBuildings(ctx context.Context) ([]models.Building, models.ConfigIndex, error) {
	var response BuildingsResponse
	if err := c.GetJSON(ctx, BuildingsEndpoint, &response); err != nil {
		return nil, nil, fmt.Errorf("failed to get buildings: %w", err)
	}
	return response.Buildings, response.BuildingConfigs, nil
}

// GetBuildingConfig fetches the full building configuration.
func (c *GameApiClient) GetBuildingConfig(ctx context.Context) (models.ConfigIndex, error) {
	var configs models.ConfigIndex
	if err := c.GetJSON(ctx, ConfigEndpoint, &configs); err != nil {
		return nil, fmt.Errorf("failed to get building config: %w", err)
	}
	return configs, nil
}

// GetBuildingTypes returns the buildable types in a stable order.
func (c *GameApiClient) GetBuildingTypes(ctx context.Context) ([]string, error) {
	configs, err := c.GetBuildingConfig(ctx)
	if err != nil {
		return nil, err
	}
	return configs.Types(), nil
}
