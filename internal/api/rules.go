package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/TimurManjosov/chainrules/internal/engine"
	"github.com/TimurManjosov/chainrules/internal/rules"
)

type listRulesResponse struct {
	Rules []rules.Rule `json:"rules"`
	Count int          `json:"count"`
}

// handleListRules handles GET /v1/rules?category=&enabled=&chain=
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := engine.RuleFilter{
		Category: rules.Category(strings.TrimSpace(q.Get("category"))),
		Chain:    strings.TrimSpace(q.Get("chain")),
	}
	if v := q.Get("enabled"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			BadRequestErrorWithFields(w, r, ErrCodeBadRequest, "Invalid query parameter", map[string]string{
				"enabled": "enabled must be true or false",
			})
			return
		}
		f.Enabled = &enabled
	}

	list, err := s.engine.GetRules(r.Context(), f)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listRulesResponse{Rules: list, Count: len(list)})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.engine.GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleCreateRule handles POST /v1/rules (admin)
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var cfg rules.RuleConfig
	if !decodeJSON(w, r, &cfg) {
		return
	}
	rule, err := s.engine.CreateCustomRule(r.Context(), cfg)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// handleUpdateRule handles PUT /v1/rules/{id} (admin). Absent fields are kept.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var patch engine.RulePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	rule, err := s.engine.UpdateRule(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleToggleRule handles PATCH /v1/rules/{id}/toggle (admin)
func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		BadRequestErrorWithFields(w, r, ErrCodeMissingField, "Missing required field", map[string]string{
			"enabled": "enabled is required",
		})
		return
	}
	rule, err := s.engine.ToggleRule(r.Context(), chi.URLParam(r, "id"), *req.Enabled)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleDeleteRule handles DELETE /v1/rules/{id} (admin). Deployed rules
// answer 409.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
