package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TimurManjosov/chainrules/internal/api"
	"github.com/TimurManjosov/chainrules/internal/audit"
	"github.com/TimurManjosov/chainrules/internal/auth"
	"github.com/TimurManjosov/chainrules/internal/chain"
	"github.com/TimurManjosov/chainrules/internal/config"
	"github.com/TimurManjosov/chainrules/internal/engine"
	"github.com/TimurManjosov/chainrules/internal/evaluator"
	"github.com/TimurManjosov/chainrules/internal/logging"
	"github.com/TimurManjosov/chainrules/internal/store"
	"github.com/TimurManjosov/chainrules/internal/telemetry"
	"github.com/TimurManjosov/chainrules/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, logging.Format(cfg.LogFormat), os.Stderr)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logging.Logger) error {
	ctx := context.Background()
	telemetry.Init()

	st, err := store.NewStore(ctx, cfg.StoreType, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	// postgres keeps a durable copy of the audit trail
	var sink audit.Sink
	if s, ok := st.(audit.Sink); ok {
		sink = s
	}

	eng := engine.New(engine.Options{
		Logger: log,
		Connector: chain.NewRPCConnector(map[string]string{
			chain.TargetEVM:    cfg.ChainRPCEVM,
			chain.TargetSolana: cfg.ChainRPCSolana,
		}, cfg.ChainTimeout),
		Store: st,
		Evaluator: evaluator.New(evaluator.Options{
			CacheTTL: cfg.EvalCacheTTL,
			Logger:   log,
		}),
		AuditSink:      sink,
		AuditCapacity:  cfg.AuditCapacity,
		DefaultChain:   cfg.DefaultChain,
		ConnectTimeout: cfg.ChainTimeout,
	})

	// subscribe before Initialize so the initialized event is delivered
	var hooks *webhook.Dispatcher
	if len(cfg.WebhookURLs) > 0 {
		hooks = webhook.NewDispatcher(webhook.EndpointsFromURLs(cfg.WebhookURLs, cfg.WebhookSecret), log)
		hooks.Start()
		events, _ := eng.Subscribe(256)
		go hooks.Forward(events)
		log.Info("webhook delivery enabled", logging.Fields{"endpoints": len(cfg.WebhookURLs)})
	}

	status, err := eng.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}
	log.Info("engine ready", logging.Fields{
		"rules":    status.Rules,
		"degraded": status.Degraded,
		"store":    cfg.StoreType,
		"env":      cfg.AppEnv,
	})

	srvAPI := api.NewServer(api.Options{
		Engine:         eng,
		Auth:           auth.NewAuthenticator(cfg.AdminAPIKey, cfg.AdminKeyHashes),
		Logger:         log,
		RateLimitPerIP: cfg.RateLimitPerIP,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srvAPI.Router(),
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      0, // SSE streams stay open
		IdleTimeout:       60 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux(),
		ReadHeaderTimeout: 3 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("listening", logging.Fields{"addr": cfg.HTTPAddr})
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		log.Info("metrics listening", logging.Fields{"addr": cfg.MetricsAddr})
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case <-stop:
	case runErr = <-errCh:
	}

	ctxShut, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShut)
	_ = metricsSrv.Shutdown(ctxShut)

	// closing the engine ends every subscription, which ends Forward
	if err := eng.Close(ctxShut); err != nil {
		log.Warn("audit sink did not drain", logging.Fields{"error": err.Error()})
	}
	if hooks != nil {
		_ = hooks.Close()
	}
	log.Info("stopped", nil)
	return runErr
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}
