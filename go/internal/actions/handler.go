package actions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcdev12/idoltower/go/clients"
	"github.com/mcdev12/idoltower/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Handler exposes the Service over HTTP.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type BuildRequest struct {
	Type  string `json:"type"`
	Floor int    `json:"floor"`
	Slot  int    `json:"slot"`
}

type BuildingRequest struct {
	BuildingID models.BuildingID `json:"building_id"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/actions/build", h.HandleBuild)
	mux.HandleFunc("POST /api/actions/upgrade", h.buildingAction("upgrade", h.service.Upgrade))
	mux.HandleFunc("POST /api/actions/collect", h.buildingAction("collect", h.service.Collect))
	mux.HandleFunc("POST /api/actions/demolish", h.buildingAction("demolish", h.service.Demolish))
	mux.HandleFunc("GET /api/buildings/{id}/upgrade-cost", h.HandleUpgradeCost)
	mux.HandleFunc("GET /api/building-types", h.HandleBuildOptions)
}

func (h *Handler) HandleBuild(w http.ResponseWriter, r *http.Request) {
	var req BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Type == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "type is required"})
		return
	}

	msg, err := h.service.Build(r.Context(), req.Type, req.Floor, req.Slot)
	if err != nil {
		writeError(w, "build", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
}

type buildingActionFunc func(ctx context.Context, id models.BuildingID) (string, error)

func (h *Handler) buildingAction(name string, action buildingActionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BuildingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
		if req.BuildingID == "" {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "building_id is required"})
			return
		}

		msg, err := action(r.Context(), req.BuildingID)
		if err != nil {
			writeError(w, name, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: msg})
	}
}

func (h *Handler) HandleUpgradeCost(w http.ResponseWriter, r *http.Request) {
	cost, err := h.service.UpgradeCost(models.BuildingID(r.PathValue("id")))
	if err != nil {
		writeError(w, "upgrade cost", err)
		return
	}
	writeJSON(w, http.StatusOK, cost)
}

func (h *Handler) HandleBuildOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.BuildOptions())
}

// writeError maps action errors to status codes. Server rejections keep the server's
// status and message.
func writeError(w http.ResponseWriter, action string, err error) {
	var apiErr *clients.APIError
	switch {
	case errors.Is(err, ErrOnCooldown), errors.Is(err, ErrMaxLevel):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrUnknownBuilding), errors.Is(err, ErrNotConfigured):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, clients.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "game server rejected the token"})
	case errors.As(err, &apiErr):
		writeJSON(w, apiErr.StatusCode, ErrorResponse{Error: apiErr.Message})
	default:
		log.Error().Err(err).Str("action", action).Msg("action failed")
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: action + " failed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
