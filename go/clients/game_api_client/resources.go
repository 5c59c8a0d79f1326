package game_api_client

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mcdev12/idoltower/go/internal/models"
	"github.com/rs/zerolog/log"
)

// GetResources fetches balances, collection timestamps and building configuration.
func (c *GameApiClient) GetResources(ctx context.Context) (models.ResourceSnapshot, error) {
	body, err := c.Get(ctx, ResourcesEndpoint)
	if err != nil {
		return models.ResourceSnapshot{}, fmt.Errorf("failed to get resources: %w", err)
	}
	snap, err := ParseResources(body)
	if err != nil {
		return models.ResourceSnapshot{}, fmt.Errorf("failed to parse resources: %w", err)
	}
	return snap, nil
}

// ParseResources decodes the resources payload. Numeric top-level fields are balances;
// fields starting with an underscore are server bookkeeping and are ignored.
func ParseResources(body []byte) (models.ResourceSnapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.ResourceSnapshot{}, err
	}

	snap := models.ResourceSnapshot{
		Balances:      models.ResourceVector{},
		LastCollected: map[models.BuildingID]time.Time{},
	}

	for key, value := range raw {
		switch {
		case key == lastCollectedKey:
			collected, err := parseLastCollected(value)
			if err != nil {
				return models.ResourceSnapshot{}, fmt.Errorf("%s: %w", key, err)
			}
			snap.LastCollected = collected
		case key == buildingConfigsKey:
			if err := json.Unmarshal(value, &snap.BuildingConfigs); err != nil {
				return models.ResourceSnapshot{}, fmt.Errorf("%s: %w", key, err)
			}
		case strings.HasPrefix(key, "_"):
		default:
			var amount float64
			if err := json.Unmarshal(value, &amount); err != nil {
				continue
			}
			snap.Balances[key] = int64(math.Round(amount))
		}
	}
	return snap, nil
}

// parseLastCollected reads building id -> ISO timestamp. Unparseable entries are skipped,
// which leaves the building treated as never collected.
func parseLastCollected(value json.RawMessage) (map[models.BuildingID]time.Time, error) {
	var stamps map[string]*string
	if err := json.Unmarshal(value, &stamps); err != nil {
		return nil, err
	}

	collected := make(map[models.BuildingID]time.Time, len(stamps))
	for id, stamp := range stamps {
		if stamp == nil {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, *stamp)
		if err != nil {
			log.Warn().Str("building_id", id).Str("value", *stamp).Msg("unparseable lastCollected timestamp")
			continue
		}
		collected[models.BuildingID(id)] = t
	}
	return collected, nil
}
