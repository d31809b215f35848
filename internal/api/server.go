// Package api exposes the rule engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/TimurManjosov/chainrules/internal/auth"
	"github.com/TimurManjosov/chainrules/internal/engine"
	"github.com/TimurManjosov/chainrules/internal/logging"
	"github.com/TimurManjosov/chainrules/internal/telemetry"
)

const (
	// maxBodyBytes bounds every JSON request body.
	maxBodyBytes   = 1 << 20
	requestTimeout = 10 * time.Second
)

// Options configures NewServer.
type Options struct {
	Engine *engine.Engine
	Auth   *auth.Authenticator
	Logger logging.Logger
	// RateLimitPerIP is requests per minute per client; 0 disables limiting.
	RateLimitPerIP int
	// KeepAlive is the interval between SSE comments; defaults to 30s.
	KeepAlive time.Duration
}

type Server struct {
	engine    *engine.Engine
	auth      *auth.Authenticator
	log       logging.Logger
	rateLimit int
	keepAlive time.Duration
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 30 * time.Second
	}
	return &Server{
		engine:    opts.Engine,
		auth:      opts.Auth,
		log:       opts.Logger,
		rateLimit: opts.RateLimitPerIP,
		keepAlive: opts.KeepAlive,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(telemetry.Middleware)
	if s.rateLimit > 0 {
		r.Use(httprate.Limit(s.rateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				RateLimitedError(w, r)
			}),
		))
	}

	// health
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// long-lived stream, outside the request timeout
	r.Get("/v1/events", s.handleEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/v1/capabilities", s.handleCapabilities)
		r.Get("/v1/metrics", s.handleMetrics)

		r.Post("/v1/invoices/evaluate", s.handleEvaluateInvoice)
		r.Post("/v1/compile", s.handleCompile)

		r.Get("/v1/rules", s.handleListRules)
		r.Get("/v1/rules/{id}", s.handleGetRule)
		r.Get("/v1/deployments", s.handleListDeployments)

		// admin (protected)
		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireAdmin(func(w http.ResponseWriter, r *http.Request, msg string) {
				UnauthorizedError(w, r, msg)
			}))
			r.Post("/v1/rules", s.handleCreateRule)
			r.Put("/v1/rules/{id}", s.handleUpdateRule)
			r.Patch("/v1/rules/{id}/toggle", s.handleToggleRule)
			r.Delete("/v1/rules/{id}", s.handleDeleteRule)
			r.Post("/v1/deployments", s.handleDeploy)
			r.Get("/v1/audit", s.handleAuditLog)
		})
	})

	return r
}

func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Capabilities())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.Metrics(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ---- helpers ----

// decodeJSON reads a bounded JSON body into v and writes the error response
// itself when it fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RequestTooLargeError(w, r, "Request body too large")
			return false
		}
		BadRequestError(w, r, ErrCodeInvalidJSON, "Invalid JSON in request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
