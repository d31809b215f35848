package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/TimurManjosov/chainrules/internal/telemetry"
)

const sseBuffer = 64

// handleEvents streams engine lifecycle events as Server-Sent Events.
// The first event is "init" carrying the current rule count; each engine
// event follows under its own type name.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		InternalError(w, r, "Streaming not supported")
		return
	}

	events, unsubscribe := s.engine.Subscribe(sseBuffer)
	defer unsubscribe()

	telemetry.SSEClients.Inc()
	defer telemetry.SSEClients.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	m, err := s.engine.Metrics(r.Context())
	if err != nil {
		return
	}
	if err := writeSSE(w, "init", map[string]any{
		"rules":     m.RulesLoaded,
		"timestamp": time.Now().UTC(),
	}); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				// engine closed
				return
			}
			if err := writeSSE(w, string(ev.Type), ev); err != nil {
				s.log.Debug("SSE client write failed", map[string]any{"error": err.Error()})
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
