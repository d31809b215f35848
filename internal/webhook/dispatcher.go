// Package webhook delivers signed lifecycle events to external HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/TimurManjosov/chainrules/internal/engine"
	"github.com/TimurManjosov/chainrules/internal/logging"
	"github.com/TimurManjosov/chainrules/internal/telemetry"
	"github.com/google/uuid"
)

const (
	queueSize = 1000

	// maxResponseBodySize bounds how much of an error response is logged.
	maxResponseBodySize = 1024

	DefaultMaxRetries = 3
	DefaultTimeout    = 10 * time.Second
)

// Header names set on every delivery.
const (
	HeaderSignature = "X-Chainrules-Signature"
	HeaderEvent     = "X-Chainrules-Event"
	HeaderDelivery  = "X-Chainrules-Delivery"
)

// Endpoint is a delivery target. An empty Events list subscribes to everything.
type Endpoint struct {
	URL        string
	Secret     string
	Events     []string
	MaxRetries int
	Timeout    time.Duration
}

func (ep Endpoint) wants(eventType string) bool {
	return len(ep.Events) == 0 || slices.Contains(ep.Events, eventType)
}

// Dispatcher queues events and delivers them from a single worker.
type Dispatcher struct {
	endpoints []Endpoint
	client    *http.Client
	log       logging.Logger
	backoff   func(attempt int) time.Duration

	mu      sync.RWMutex
	queue   chan Event
	done    chan struct{}
	started bool
	closed  bool
}

// NewDispatcher creates a dispatcher. Call Start to begin delivering.
func NewDispatcher(endpoints []Endpoint, log logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Nop()
	}
	eps := make([]Endpoint, len(endpoints))
	for i, ep := range endpoints {
		if ep.MaxRetries < 0 {
			ep.MaxRetries = 0
		}
		if ep.Timeout <= 0 {
			ep.Timeout = DefaultTimeout
		}
		eps[i] = ep
	}
	return &Dispatcher{
		endpoints: eps,
		client:    &http.Client{},
		log:       log,
		backoff:   func(attempt int) time.Duration { return time.Duration(1<<attempt) * time.Second },
		queue:     make(chan Event, queueSize),
		done:      make(chan struct{}),
	}
}

// EndpointsFromURLs builds endpoints sharing one secret and the default retry policy.
func EndpointsFromURLs(urls []string, secret string) []Endpoint {
	eps := make([]Endpoint, 0, len(urls))
	for _, u := range urls {
		eps = append(eps, Endpoint{URL: u, Secret: secret, MaxRetries: DefaultMaxRetries})
	}
	return eps
}

// Start begins processing events from the queue.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	go d.worker()
}

// Close stops accepting events and waits for queued deliveries to finish.
// Safe to call multiple times.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	if !d.started {
		close(d.done)
	}
	d.mu.Unlock()

	<-d.done
	return nil
}

// Dispatch queues an event without blocking. Events are dropped when the
// queue is full or the dispatcher is closed.
func (d *Dispatcher) Dispatch(event Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- event:
		d.log.Debug("webhook event queued", logging.Fields{"event": event.Type, "key": event.Resource.Key, "queueSize": len(d.queue)})
	default:
		telemetry.WebhookDeliveries.WithLabelValues("dropped").Inc()
		d.log.Error("webhook queue full, dropping event", logging.Fields{"event": event.Type, "key": event.Resource.Key, "capacity": queueSize})
	}
}

// Forward dispatches every engine event received on ch until it is closed.
func (d *Dispatcher) Forward(ch <-chan engine.Event) {
	for ev := range ch {
		if out, ok := FromEngineEvent(ev); ok {
			d.Dispatch(out)
		}
	}
}

func (d *Dispatcher) worker() {
	defer close(d.done)

	for event := range d.queue {
		payload, err := json.Marshal(event)
		if err != nil {
			d.log.Error("webhook payload not encodable", logging.Fields{"event": event.Type, "error": err.Error()})
			continue
		}
		for _, ep := range d.endpoints {
			if ep.wants(event.Type) {
				d.deliverWithRetry(context.Background(), ep, event.Type, payload)
			}
		}
	}
}

// deliverWithRetry posts payload to ep, retrying with exponential backoff.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, ep Endpoint, eventType string, payload []byte) bool {
	signature := ComputeHMAC(payload, ep.Secret)
	deliveryID := uuid.NewString()

	for attempt := 0; attempt <= ep.MaxRetries; attempt++ {
		start := time.Now()
		status, body, err := d.post(ctx, ep, payload, map[string]string{
			"Content-Type":  "application/json",
			HeaderSignature: signature,
			HeaderEvent:     eventType,
			HeaderDelivery:  deliveryID,
		})
		fields := logging.Fields{
			"url":        ep.URL,
			"event":      eventType,
			"deliveryId": deliveryID,
			"attempt":    attempt + 1,
			"status":     status,
			"durationMs": time.Since(start).Milliseconds(),
		}

		if err == nil && status >= 200 && status < 300 {
			telemetry.WebhookDeliveries.WithLabelValues("success").Inc()
			d.log.Info("webhook delivered", fields)
			return true
		}
		if err != nil {
			fields["error"] = err.Error()
		} else {
			fields["response"] = body
		}

		if attempt < ep.MaxRetries {
			telemetry.WebhookDeliveries.WithLabelValues("retry").Inc()
			wait := d.backoff(attempt)
			fields["retryIn"] = wait.String()
			d.log.Warn("webhook delivery failed", fields)
			time.Sleep(wait)
			continue
		}
		telemetry.WebhookDeliveries.WithLabelValues("failure").Inc()
		d.log.Error("webhook delivery failed permanently", fields)
	}
	return false
}

func (d *Dispatcher) post(ctx context.Context, ep Endpoint, payload []byte, headers map[string]string) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, ep.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	return resp.StatusCode, string(b), nil
}
