package handler

import (
	"net/http"

	"github.com/freeeve/vendetta/api/internal/auth"
	"github.com/freeeve/vendetta/api/internal/service"
)

// ActionHandler handles queue and mission commands.
type ActionHandler struct {
	actions ActionService
}

// NewActionHandler creates an ActionHandler.
func NewActionHandler(actions ActionService) *ActionHandler {
	return &ActionHandler{actions: actions}
}

// SubmitConstruction handles POST /api/v1/properties/{id}/constructions
func (h *ActionHandler) SubmitConstruction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RoomID == "" {
		writeError(w, http.StatusBadRequest, "roomId is required")
		return
	}
	userID := auth.UserIDFromContext(r.Context())
	entry, err := h.actions.SubmitConstruction(r.Context(), userID, r.PathValue("id"), req.RoomID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// CancelConstruction handles DELETE /api/v1/constructions/{id}
func (h *ActionHandler) CancelConstruction(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if err := h.actions.CancelConstruction(r.Context(), userID, r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitRecruitment handles POST /api/v1/properties/{id}/recruitments
func (h *ActionHandler) SubmitRecruitment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TroopID  string `json:"troopId"`
		Quantity int64  `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TroopID == "" {
		writeError(w, http.StatusBadRequest, "troopId is required")
		return
	}
	userID := auth.UserIDFromContext(r.Context())
	entry, err := h.actions.SubmitRecruitment(r.Context(), userID, r.PathValue("id"), req.TroopID, req.Quantity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// SubmitTraining handles POST /api/v1/properties/{id}/trainings
func (h *ActionHandler) SubmitTraining(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrainingID string `json:"trainingId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TrainingID == "" {
		writeError(w, http.StatusBadRequest, "trainingId is required")
		return
	}
	userID := auth.UserIDFromContext(r.Context())
	entry, err := h.actions.SubmitTraining(r.Context(), userID, r.PathValue("id"), req.TrainingID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// SendMission handles POST /api/v1/missions
func (h *ActionHandler) SendMission(w http.ResponseWriter, r *http.Request) {
	var req service.MissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OriginPropertyID == "" {
		writeError(w, http.StatusBadRequest, "originPropertyId is required")
		return
	}
	userID := auth.UserIDFromContext(r.Context())
	m, err := h.actions.SendMission(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// CancelMission handles POST /api/v1/missions/{id}/cancel
func (h *ActionHandler) CancelMission(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	m, err := h.actions.CancelMission(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
