package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	httpDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// RuleEvaluations counts per-rule evaluations by outcome (triggered, not_triggered, error).
	RuleEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_evaluations_total",
			Help: "Rule evaluations by outcome",
		},
		[]string{"outcome"},
	)
	// EvalCacheLookups counts evaluation cache lookups by result (hit, miss).
	EvalCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_eval_cache_lookups_total",
			Help: "Evaluation cache lookups by result",
		},
		[]string{"result"},
	)
	InvoiceEvaluationDur = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "invoice_evaluation_duration_seconds",
		Help:    "Time spent evaluating one invoice",
		Buckets: prometheus.DefBuckets,
	})
	InvoiceRiskScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "invoice_risk_score",
		Help:    "Distribution of computed invoice risk scores",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})
	Deployments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_deployments_total",
			Help: "Rule set deployments by target and status",
		},
		[]string{"target", "status"},
	)
	RuleMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_mutations_total",
			Help: "Rule create/update/delete operations",
		},
		[]string{"op"},
	)
	RulesLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rules_loaded",
		Help: "Number of rules currently in storage",
	})
	AuditLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audit_log_entries",
		Help: "Number of entries held in the bounded audit log",
	})
	SSEClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sse_clients",
		Help: "Number of currently connected SSE clients",
	})
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	initOnce sync.Once
)

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpReqs, httpDur,
			RuleEvaluations, EvalCacheLookups,
			InvoiceEvaluationDur, InvoiceRiskScore,
			Deployments, RuleMutations, RulesLoaded, AuditLogSize,
			SSEClients, WebhookDeliveries,
		)
	})
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)

		// route pattern is only complete once routing has finished
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		httpReqs.WithLabelValues(route, r.Method, http.StatusText(ww.status)).Inc()
		httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
