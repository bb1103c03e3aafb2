package handler

import (
	"net/http"

	"github.com/freeeve/vendetta/api/internal/auth"
	"github.com/freeeve/vendetta/api/internal/repository"
)

// ReportHandler serves battle and espionage reports and the inbox.
type ReportHandler struct {
	reports  repository.ReportRepository
	messages repository.MessageRepository
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(reports repository.ReportRepository, messages repository.MessageRepository) *ReportHandler {
	return &ReportHandler{reports: reports, messages: messages}
}

// ListBattles handles GET /api/v1/reports/battles
func (h *ReportHandler) ListBattles(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	list, err := h.reports.ListBattleReports(r.Context(), userID, limitParam(r, 20))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(list))
}

// GetBattle handles GET /api/v1/reports/battles/{id}. Only the two sides may read it.
func (h *ReportHandler) GetBattle(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	report, err := h.reports.FindBattleReport(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if report == nil || (report.AttackerUserID != userID && report.DefenderUserID != userID) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListEspionage handles GET /api/v1/reports/espionage
func (h *ReportHandler) ListEspionage(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	list, err := h.reports.ListEspionageReports(r.Context(), userID, limitParam(r, 20))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(list))
}

// ListMessages handles GET /api/v1/messages
func (h *ReportHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	list, err := h.messages.ListByUser(r.Context(), userID, limitParam(r, 50))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, emptyIfNil(list))
}
