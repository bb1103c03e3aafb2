package handler

import (
	"net/http"

	"github.com/freeeve/vendetta/api/internal/service"
)

// SimulateHandler runs stateless battle simulations.
type SimulateHandler struct {
	sim BattleSimulator
}

// NewSimulateHandler creates a SimulateHandler.
func NewSimulateHandler(sim BattleSimulator) *SimulateHandler {
	return &SimulateHandler{sim: sim}
}

// Simulate handles POST /api/v1/simulate
func (h *SimulateHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req service.SimulateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Attacker.Troops) == 0 {
		writeError(w, http.StatusBadRequest, "attacker troops are required")
		return
	}
	report, err := h.sim.Simulate(req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
