package handler

import (
	"net/http"
)

// CronHandler exposes the sweep to an external scheduler.
type CronHandler struct {
	sweeper Sweeper
}

// NewCronHandler creates a CronHandler.
func NewCronHandler(sweeper Sweeper) *CronHandler {
	return &CronHandler{sweeper: sweeper}
}

// Advance handles POST /api/v1/cron/advance. Guard it with auth.CronSecret.
func (h *CronHandler) Advance(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.AdvanceAll(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
