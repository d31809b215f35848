package api

import (
	"net/http"
	"strings"

	"github.com/TimurManjosov/chainrules/internal/compiler"
	"github.com/TimurManjosov/chainrules/internal/store"
)

// targetRequest is the body of POST /v1/compile and POST /v1/deployments.
type targetRequest struct {
	RuleIDs []string       `json:"ruleIds"`
	Chain   string         `json:"chain"`
	Network string         `json:"network,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

func (req targetRequest) validate() map[string]string {
	fields := map[string]string{}
	if len(req.RuleIDs) == 0 {
		fields["ruleIds"] = "at least one rule id is required"
	}
	if strings.TrimSpace(req.Chain) == "" {
		fields["chain"] = "chain is required"
	}
	return fields
}

func (req targetRequest) options() compiler.Options {
	return compiler.Options{Network: req.Network, Extra: req.Options}
}

// handleCompile handles POST /v1/compile. Nothing is deployed or recorded.
func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields := req.validate(); len(fields) > 0 {
		BadRequestErrorWithFields(w, r, ErrCodeMissingField, "Missing required field", fields)
		return
	}
	compiled, err := s.engine.CompileRules(r.Context(), req.RuleIDs, req.Chain, req.options())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, compiled)
}

// handleDeploy handles POST /v1/deployments (admin)
func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields := req.validate(); len(fields) > 0 {
		BadRequestErrorWithFields(w, r, ErrCodeMissingField, "Missing required field", fields)
		return
	}
	res, err := s.engine.DeployRulesToChain(r.Context(), req.RuleIDs, req.Chain, req.options())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type listDeploymentsResponse struct {
	Deployments []store.Deployment `json:"deployments"`
	Count       int                `json:"count"`
}

func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	deps, err := s.engine.Deployments(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if deps == nil {
		deps = []store.Deployment{}
	}
	writeJSON(w, http.StatusOK, listDeploymentsResponse{Deployments: deps, Count: len(deps)})
}
