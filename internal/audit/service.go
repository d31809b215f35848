// Package audit keeps the bounded, digest-stamped trail of engine events.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TimurManjosov/chainrules/internal/logging"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// DefaultCapacity is the number of entries kept before the oldest is evicted.
const DefaultCapacity = 10000

// Event names the kind of state change an entry records.
type Event string

const (
	EventInvoiceEvaluation Event = "invoice_evaluation"
	EventRuleCreated       Event = "rule_created"
	EventRuleUpdated       Event = "rule_updated"
	EventRuleDeleted       Event = "rule_deleted"
	EventRulesDeployed     Event = "rules_deployed"
)

// Clock interface for testable time operations
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using time.Now()
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator interface for testable ID generation
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator implements IDGenerator using UUID v4
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string { return uuid.NewString() }

// Hasher is the digest primitive used to stamp entries.
type Hasher interface {
	Hash(data []byte) string
}

// SHA256Hasher returns the full hex encoded SHA-256 digest.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Entry is one audit record. IntegrityHash covers Event and Details only;
// entries are not chained to each other.
type Entry struct {
	ID            string         `json:"id"`
	Event         Event          `json:"event"`
	Details       map[string]any `json:"details"`
	Timestamp     time.Time      `json:"timestamp"`
	IntegrityHash string         `json:"integrityHash"`
	RequestID     string         `json:"requestId,omitempty"`
	Actor         string         `json:"actor,omitempty"`
}

// Filter narrows Entries. Zero fields match everything; Since and Until are inclusive.
type Filter struct {
	Event Event     `json:"event,omitempty"`
	Since time.Time `json:"since,omitempty"`
	Until time.Time `json:"until,omitempty"`
	Limit int       `json:"limit,omitempty"`
}

func (f Filter) match(e Entry) bool {
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// Sink persists entries outside the in-memory log.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
}

// Options configures a Log. Zero values select the defaults.
type Options struct {
	Capacity  int
	Clock     Clock
	IDGen     IDGenerator
	Hasher    Hasher
	Redactor  Redactor
	Sink      Sink
	QueueSize int
	Logger    logging.Logger
}

// Log is a fixed-capacity ring of entries. Appending to a full log evicts the
// oldest entry in the same critical section. Safe for concurrent use.
type Log struct {
	mu    sync.RWMutex
	buf   []Entry
	start int
	n     int

	clock    Clock
	idgen    IDGenerator
	hasher   Hasher
	redactor Redactor
	log      logging.Logger

	sink   Sink
	queue  chan Entry
	stopCh chan struct{}
	done   chan struct{}
	closed int32 // atomic flag to prevent double-close
}

// New creates a Log. When opts.Sink is set, entries are also forwarded to it
// by a background worker; call Close to drain it.
func New(opts Options) *Log {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.IDGen == nil {
		opts.IDGen = UUIDGenerator{}
	}
	if opts.Hasher == nil {
		opts.Hasher = SHA256Hasher{}
	}
	if opts.Redactor == nil {
		opts.Redactor = NewDefaultRedactor()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1000
	}

	l := &Log{
		buf:      make([]Entry, opts.Capacity),
		clock:    opts.Clock,
		idgen:    opts.IDGen,
		hasher:   opts.Hasher,
		redactor: opts.Redactor,
		log:      opts.Logger,
		sink:     opts.Sink,
		done:     make(chan struct{}),
	}
	if l.sink != nil {
		l.queue = make(chan Entry, opts.QueueSize)
		l.stopCh = make(chan struct{})
		go l.worker()
	} else {
		close(l.done)
	}
	return l
}

// Append redacts details, stamps the entry and stores it, evicting the
// oldest entry when the log is full.
func (l *Log) Append(ctx context.Context, event Event, details map[string]any) Entry {
	details = l.redactor.Redact(details)
	if details == nil {
		details = map[string]any{}
	}
	e := Entry{
		ID:            l.idgen.Generate(),
		Event:         event,
		Details:       details,
		Timestamp:     l.clock.Now(),
		IntegrityHash: l.digest(event, details),
		RequestID:     middleware.GetReqID(ctx),
		Actor:         ActorFromContext(ctx),
	}

	l.mu.Lock()
	capacity := len(l.buf)
	if l.n < capacity {
		l.buf[(l.start+l.n)%capacity] = e
		l.n++
	} else {
		l.buf[l.start] = e
		l.start = (l.start + 1) % capacity
	}
	l.mu.Unlock()

	l.forward(e)
	return e
}

func (l *Log) digest(event Event, details map[string]any) string {
	data, err := json.Marshal(struct {
		Event   Event          `json:"event"`
		Details map[string]any `json:"details"`
	}{event, details})
	if err != nil {
		l.log.Warn("audit: digest input not encodable", logging.Fields{"event": string(event), "error": err.Error()})
		return ""
	}
	return l.hasher.Hash(data)
}

// Verify recomputes the digest of e and compares it with IntegrityHash.
func (l *Log) Verify(e Entry) bool {
	return e.IntegrityHash != "" && l.digest(e.Event, e.Details) == e.IntegrityHash
}

// Entries returns the matching entries, oldest first. A positive f.Limit
// keeps only the newest f.Limit matches.
func (l *Log) Entries(f Filter) []Entry {
	l.mu.RLock()
	out := make([]Entry, 0, l.n)
	for i := 0; i < l.n; i++ {
		e := l.buf[(l.start+i)%len(l.buf)]
		if f.match(e) {
			out = append(out, e)
		}
	}
	l.mu.RUnlock()

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Len is the number of entries held.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.n
}

// Capacity is the maximum number of entries held.
func (l *Log) Capacity() int { return len(l.buf) }

func (l *Log) forward(e Entry) {
	if l.sink == nil || atomic.LoadInt32(&l.closed) == 1 {
		return
	}
	// Try to queue, drop if full
	select {
	case l.queue <- e:
	default:
		l.log.Warn("audit: queue full, dropping entry", logging.Fields{"id": e.ID, "event": string(e.Event)})
	}
}

// worker processes entries in the background
func (l *Log) worker() {
	defer close(l.done)
	for {
		select {
		case e := <-l.queue:
			l.write(e)
		case <-l.stopCh:
			// Drain remaining entries before stopping
			for {
				select {
				case e := <-l.queue:
					l.write(e)
				default:
					return
				}
			}
		}
	}
}

func (l *Log) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.sink.Write(ctx, e); err != nil {
		l.log.Error("audit: failed to write entry", logging.Fields{"id": e.ID, "error": err.Error()})
	}
}

// Close stops the sink worker after draining queued entries. It is safe to
// call multiple times and returns early if ctx expires.
func (l *Log) Close(ctx context.Context) error {
	if l.sink != nil && atomic.CompareAndSwapInt32(&l.closed, 0, 1) {
		close(l.stopCh)
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
