package api

import (
	"net/http"
	"strings"

	"github.com/TimurManjosov/chainrules/internal/engine"
)

// handleEvaluateInvoice handles POST /v1/invoices/evaluate
func (s *Server) handleEvaluateInvoice(w http.ResponseWriter, r *http.Request) {
	var p engine.InvoicePayload
	if !decodeJSON(w, r, &p) {
		return
	}
	if strings.TrimSpace(p.ID) == "" {
		BadRequestErrorWithFields(w, r, ErrCodeMissingField, "Missing required field", map[string]string{
			"id": "invoice id is required",
		})
		return
	}
	report, err := s.engine.EvaluateInvoice(r.Context(), p)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
