package viewfeed

import (
	"time"

	"github.com/mcdev12/idoltower/go/internal/engine"
	"github.com/mcdev12/idoltower/go/internal/layout"
	"github.com/mcdev12/idoltower/go/internal/models"
	"github.com/mcdev12/idoltower/go/internal/reconcile"
)

// MessageTypeState is the only message type the feed emits.
const MessageTypeState = "state"

// StateMessage is the renderer-facing encoding of an engine view.
// Durations are whole milliseconds.
type StateMessage struct {
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id"`
	Running    bool      `json:"running"`
	Generation uint64    `json:"generation"`
	Sequence   uint64    `json:"sequence"`
	At         time.Time `json:"at"`

	Balances       map[string]int64 `json:"balances"`
	Buildings      []BuildingState  `json:"buildings"`
	CooldownsMs    map[string]int64 `json:"cooldowns_ms"`
	ConstructionMs map[string]int64 `json:"construction_ms"`
	AwaitingFinish []string         `json:"awaiting_finish"`
	Grid           GridState        `json:"grid"`
}

type BuildingState struct {
	ID                     string     `json:"id"`
	Type                   string     `json:"type"`
	Level                  int        `json:"level"`
	Floor                  int        `json:"floor"`
	Slot                   int        `json:"slot"`
	Units                  int        `json:"units"`
	IsConstructing         bool       `json:"is_constructing"`
	ConstructionFinishTime *time.Time `json:"construction_finish_time,omitempty"`
	CooldownMs             *int64     `json:"cooldown_ms,omitempty"`
	ConstructionMs         *int64     `json:"construction_ms,omitempty"`
	ReadyToCollect         bool       `json:"ready_to_collect"`
}

type GridState struct {
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	OriginSlot int           `json:"origin_slot"`
	Cells      [][]CellState `json:"cells"`
}

// CellState is one grid cell. Continuation marks the non-first slots of a multi-slot
// building so a renderer draws each building once.
type CellState struct {
	Kind         string `json:"kind"`
	BuildingID   string `json:"building_id,omitempty"`
	Continuation bool   `json:"continuation,omitempty"`
}

// NewStateMessage encodes a view.
func NewStateMessage(v engine.View) StateMessage {
	msg := StateMessage{
		Type:           MessageTypeState,
		SessionID:      v.SessionID,
		Running:        v.Running,
		Generation:     v.Generation,
		Sequence:       v.Sequence,
		At:             v.At,
		Balances:       map[string]int64{},
		Buildings:      make([]BuildingState, 0, len(v.Buildings)),
		CooldownsMs:    millis(v.Cooldowns),
		ConstructionMs: millis(v.ConstructionTimers),
		AwaitingFinish: make([]string, 0, len(v.AwaitingFinish)),
		Grid:           newGridState(v.Grid),
	}
	for name, amount := range v.Balances {
		msg.Balances[name] = amount
	}
	for _, id := range v.AwaitingFinish {
		msg.AwaitingFinish = append(msg.AwaitingFinish, id.String())
	}
	for _, b := range v.Buildings {
		msg.Buildings = append(msg.Buildings, newBuildingState(v, b))
	}
	return msg
}

func newBuildingState(v engine.View, b models.Building) BuildingState {
	state := BuildingState{
		ID:                     b.ID.String(),
		Type:                   b.Type,
		Level:                  b.Level,
		Floor:                  b.Floor,
		Slot:                   b.SlotOrigin,
		Units:                  b.Units(),
		IsConstructing:         b.IsConstructing,
		ConstructionFinishTime: b.ConstructionFinishTime,
	}
	if d, ok := v.Cooldown(b.ID); ok {
		ms := d.Milliseconds()
		state.CooldownMs = &ms
		state.ReadyToCollect = d <= 0
	}
	if d, ok := v.ConstructionRemaining(b.ID); ok {
		ms := d.Milliseconds()
		state.ConstructionMs = &ms
	}
	return state
}

func newGridState(g layout.Grid) GridState {
	state := GridState{
		Width:      g.Width(),
		Height:     g.Height(),
		OriginSlot: g.OriginSlot,
		Cells:      make([][]CellState, g.Height()),
	}
	for floor, row := range g.Cells {
		cells := make([]CellState, len(row))
		for col, cell := range row {
			cells[col] = CellState{Kind: cell.Kind.String()}
			if cell.IsOccupied() {
				cells[col].BuildingID = cell.Building.ID.String()
				cells[col].Continuation = g.IsContinuation(floor, col+g.OriginSlot)
			}
		}
		state.Cells[floor] = cells
	}
	return state
}

func millis(timers reconcile.Timers) map[string]int64 {
	out := make(map[string]int64, len(timers))
	for id, d := range timers {
		out[id.String()] = d.Milliseconds()
	}
	return out
}
