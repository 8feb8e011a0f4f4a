package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vhorak/payflow/internal/application/orchestrator"
)

// SagaController exposes workflow status and the manual-review decision
// endpoint.
type SagaController struct {
	orch *orchestrator.Orchestrator
}

// NewSagaController creates a new SagaController.
func NewSagaController(orch *orchestrator.Orchestrator) *SagaController {
	return &SagaController{orch: orch}
}

// GetStatus handles GET /api/v1/sagas/{correlationID}
func (h *SagaController) GetStatus(w http.ResponseWriter, r *http.Request) {
	correlationID, err := uuid.Parse(chi.URLParam(r, "correlationID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid correlation id", Code: "invalid_id"})
		return
	}

	view, err := h.orch.StatusByCorrelationID(r.Context(), correlationID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromStatusView(view))
}

// ReviewDecision handles POST /api/v1/sagas/{correlationID}/review
func (h *SagaController) ReviewDecision(w http.ResponseWriter, r *http.Request) {
	correlationID, err := uuid.Parse(chi.URLParam(r, "correlationID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid correlation id", Code: "invalid_id"})
		return
	}

	var req ReviewDecisionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.orch.ApplyReviewDecision(r.Context(), correlationID, req.Approved, req.DecidedBy); err != nil {
		writeError(w, err)
		return
	}

	view, err := h.orch.StatusByCorrelationID(r.Context(), correlationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromStatusView(view))
}
