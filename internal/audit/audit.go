// internal/audit/audit.go
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event kinds.
const (
	KindAttempt         = "ATTEMPT"
	KindBlock           = "BLOCK"
	KindSuccess         = "SUCCESS"
	KindFailure         = "FAILURE"
	KindApprovalIssue   = "APPROVAL_ISSUE"
	KindApprovalConsume = "APPROVAL_CONSUME"
	KindApprovalReject  = "APPROVAL_REJECT"
	KindRateLimit       = "RATE_LIMIT"
	KindCircuitOpen     = "CIRCUIT_OPEN"
	KindCircuitClose    = "CIRCUIT_CLOSE"
	KindCircuitHalfOpen = "CIRCUIT_HALF_OPEN"
)

// Event is one audit record. Optional fields stay absent from the JSON line
// when unset; Slot is a pointer so slot 0 still serializes.
type Event struct {
	TS         string `json:"ts"`
	Kind       string `json:"kind"`
	Op         string `json:"op,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Query      string `json:"query,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Complexity int    `json:"complexity,omitempty"`
	Rows       int    `json:"rows,omitempty"`
	TokenID    string `json:"token_id,omitempty"`
	Slot       *int   `json:"slot,omitempty"`
	Phase      string `json:"phase,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

const tsLayout = "2006-01-02T15:04:05.000Z07:00"

// Emitter writes audit events as JSONL through a buffered channel drained by
// a single writer goroutine, so event order matches emission order. Emit
// blocks when the buffer is full; audit records are never dropped.
type Emitter struct {
	ch   chan Event
	done chan struct{}

	closeOnce sync.Once
	w         io.Writer
	closer    io.Closer

	enabled bool
	now     func() time.Time
}

// NewWriter returns an emitter appending JSONL events to w.
func NewWriter(w io.Writer, buffer int) *Emitter {
	if buffer <= 0 {
		buffer = 256
	}
	e := &Emitter{
		ch:      make(chan Event, buffer),
		done:    make(chan struct{}),
		w:       w,
		enabled: true,
		now:     time.Now,
	}
	go e.drain()
	return e
}

// NewFile opens path append-only and returns an emitter writing to it. An
// empty path yields a disabled emitter whose Emit is a no-op.
func NewFile(path string, buffer int) (*Emitter, error) {
	if path == "" {
		return &Emitter{enabled: false}, nil
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	e := NewWriter(f, buffer)
	e.closer = f
	return e, nil
}

// Emit queues one event, stamping its timestamp if unset. It blocks until
// the writer goroutine has room rather than dropping the event.
func (e *Emitter) Emit(ev Event) {
	if !e.enabled {
		return
	}
	if ev.TS == "" {
		ev.TS = e.now().UTC().Format(tsLayout)
	}
	e.ch <- ev
}

// Close flushes queued events, stops the writer goroutine, and closes the
// underlying file when the emitter owns one.
func (e *Emitter) Close() {
	if !e.enabled {
		return
	}
	e.closeOnce.Do(func() {
		close(e.ch)
		<-e.done
		if e.closer != nil {
			e.closer.Close()
		}
	})
}

func (e *Emitter) drain() {
	defer close(e.done)
	enc := json.NewEncoder(e.w)
	for ev := range e.ch {
		if err := enc.Encode(ev); err != nil {
			log.Printf("audit write failed: %v", err)
		}
	}
}

// SlotRef returns a pointer for Event.Slot.
func SlotRef(slot int) *int { return &slot }
