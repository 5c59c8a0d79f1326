package game_api_client

const (
	// API Endpoints
	ProfileEndpoint            = "/api/profile"
	ResourcesEndpoint          = "/api/game/resources"
	BuildingsEndpoint          = "/api/game/buildings"
	ConfigEndpoint             = "/api/game/config"
	BuildEndpoint              = "/api/game/build"
	UpgradeEndpoint            = "/api/game/upgrade"
	CollectResourcesEndpoint   = "/api/game/collect_resources"
	DemolishEndpoint           = "/api/game/demolish"
	FinishConstructionEndpoint = "/api/game/finish_construction"

	// Resource payload keys that are not balances
	lastCollectedKey   = "lastCollected"
	buildingConfigsKey = "buildingConfigs"
)
