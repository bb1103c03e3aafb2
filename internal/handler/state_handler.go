package handler

import (
	"net/http"

	"github.com/freeeve/vendetta/api/internal/auth"
	"github.com/freeeve/vendetta/api/pkg/vendetta"
)

// StateHandler serves the player's view of the game.
type StateHandler struct {
	state StateService
}

// NewStateHandler creates a StateHandler.
func NewStateHandler(state StateService) *StateHandler {
	return &StateHandler{state: state}
}

// GetState handles GET /api/v1/state. Every read advances the user first.
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	st, err := h.state.Advance(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type catalogResponse struct {
	Rooms     []*vendetta.RoomConfig     `json:"rooms"`
	Troops    []*vendetta.TroopConfig    `json:"troops"`
	Trainings []*vendetta.TrainingConfig `json:"trainings"`
	Rules     vendetta.Rules             `json:"rules"`
}

// GetCatalog handles GET /api/v1/catalog
func (h *StateHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	c := h.state.Catalog()
	resp := catalogResponse{Rules: c.Rules}
	for _, id := range c.RoomIDs() {
		resp.Rooms = append(resp.Rooms, c.Rooms[id])
	}
	for _, id := range c.TroopIDs() {
		resp.Troops = append(resp.Troops, c.Troops[id])
	}
	for _, id := range c.TrainingIDs() {
		resp.Trainings = append(resp.Trainings, c.Trainings[id])
	}
	writeJSON(w, http.StatusOK, resp)
}
