// Package diag keeps recent correlation ids for diagnostics.
//
// A Recorder is owned by whoever builds the client and is passed to the
// envelope decoder as its CorrelationSink. Business logic never reads it.
package diag

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultHistory is the per-operation ring size.
const DefaultHistory = 20

// mirrorQueue bounds the entries waiting for the mirror. Entries arriving
// while it is full are dropped from the mirror only.
const mirrorQueue = 256

// Entry is one recorded correlation id.
type Entry struct {
	Operation     string    `json:"operation"`
	CorrelationID string    `json:"correlation_id"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// Mirror receives recorded entries from a background goroutine, in order.
type Mirror interface {
	Mirror(ctx context.Context, e Entry) error
}

// ring is a fixed-size buffer, newest entry at next-1.
type ring struct {
	buf  []Entry
	next int
	full bool
}

func (r *ring) push(e Entry) {
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// entries returns the ring content, newest first.
func (r *ring) entries() []Entry {
	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, r.buf[(r.next-i+len(r.buf))%len(r.buf)])
	}
	return out
}

// Recorder is a bounded, per-operation history of correlation ids plus a
// global last-write-wins slot. Safe for concurrent use.
type Recorder struct {
	mu     sync.RWMutex
	size   int
	rings  map[string]*ring
	last   Entry
	mirror Mirror
	logger *slog.Logger
	now    func() time.Time

	queue  chan Entry
	done   chan struct{}
	closed bool
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithMirror forwards each entry to m off the recording path. Mirror
// failures are logged only. Call Close to flush pending entries.
func WithMirror(m Mirror) Option {
	return func(r *Recorder) { r.mirror = m }
}

// WithLogger sets the logger used for mirror failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder creates a Recorder keeping size ids per operation.
func NewRecorder(size int, opts ...Option) *Recorder {
	if size <= 0 {
		size = DefaultHistory
	}
	r := &Recorder{
		size:   size,
		rings:  make(map[string]*ring),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.mirror != nil {
		r.queue = make(chan Entry, mirrorQueue)
		r.done = make(chan struct{})
		go r.forward()
	}
	return r
}

func (r *Recorder) forward() {
	defer close(r.done)
	for e := range r.queue {
		if err := r.mirror.Mirror(context.Background(), e); err != nil {
			r.logger.Warn("Failed to mirror correlation id",
				"operation", e.Operation, "correlation_id", e.CorrelationID, "error", err)
		}
	}
}

// Close forwards the queued entries and stops the mirror goroutine.
// Entries recorded afterwards are kept locally only.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.queue == nil || r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}

// RecordCorrelation stores id for operation. Empty ids are ignored.
func (r *Recorder) RecordCorrelation(operation, id string) {
	if id == "" {
		return
	}
	e := Entry{Operation: operation, CorrelationID: id, RecordedAt: r.now()}

	r.mu.Lock()
	rg, ok := r.rings[operation]
	if !ok {
		rg = &ring{buf: make([]Entry, r.size)}
		r.rings[operation] = rg
	}
	rg.push(e)
	r.last = e

	dropped := false
	if r.queue != nil && !r.closed {
		select {
		case r.queue <- e:
		default:
			dropped = true
		}
	}
	r.mu.Unlock()

	if dropped {
		r.logger.Warn("Correlation mirror is behind, entry not mirrored",
			"operation", operation, "correlation_id", id)
	}
}

// Last returns the most recent entry across all operations.
func (r *Recorder) Last() (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.last.CorrelationID != ""
}

// Recent returns the ids recorded for operation, newest first.
func (r *Recorder) Recent(operation string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rg, ok := r.rings[operation]
	if !ok {
		return nil
	}
	return rg.entries()
}

// Snapshot is a copy of the whole register.
type Snapshot struct {
	Last       *Entry             `json:"last,omitempty"`
	Operations map[string][]Entry `json:"operations"`
}

// Snapshot copies the register.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{Operations: make(map[string][]Entry, len(r.rings))}
	if r.last.CorrelationID != "" {
		last := r.last
		snap.Last = &last
	}
	for op, rg := range r.rings {
		snap.Operations[op] = rg.entries()
	}
	return snap
}

// Operations lists the operations with recorded ids, sorted.
func (r *Recorder) Operations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops := make([]string, 0, len(r.rings))
	for op := range r.rings {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}
