package events

import (
	"time"
)

// Event types emitted by the engine
const (
	EventTypeCollectionReady      = "CollectionReady"
	EventTypeConstructionFinished = "ConstructionFinished"
)

// CollectionReadyPayload is the payload for a CollectionReady event
type CollectionReadyPayload struct {
	BuildingID string    `json:"building_id"`
	ReadyAt    time.Time `json:"ready_at"`
}

// ConstructionFinishedPayload is the payload for a ConstructionFinished event
type ConstructionFinishedPayload struct {
	BuildingID string    `json:"building_id"`
	FinishedAt time.Time `json:"finished_at"`
}

// Envelope wraps every payload published to the stream
type Envelope struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}
