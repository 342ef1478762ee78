// Package audit provides an in-memory, append-only security audit log.
// Login attempts, authorization denials, suspected IDOR attempts, CSRF
// rejections and rate-limit hits are recorded so administrators can review
// them without shipping logs elsewhere.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies audit events.
type EventType string

const (
	EventLoginSuccess        EventType = "auth.login"
	EventLoginFailed         EventType = "auth.login_failed"
	EventRegistered          EventType = "auth.registered"
	EventAuthorizationDenied EventType = "auth.authorization_denied"
	EventIDORAttempt         EventType = "auth.idor_attempt"
	EventRoleChanged         EventType = "customer.role_changed"
	EventCSRFRejected        EventType = "csrf.rejected"
	EventRateLimited         EventType = "ratelimit.exceeded"
)

// Event is a single audit log entry.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Actor     string    `json:"actor,omitempty"` // principal id, email or remote address
	Resource  string    `json:"resource,omitempty"`
	Summary   string    `json:"summary"`
	Detail    any       `json:"detail,omitempty"`
}

// Recorder accepts audit events.
type Recorder interface {
	Record(evt Event)
}

// Log is a bounded, append-only audit log.
type Log struct {
	events []Event
	mu     sync.RWMutex
	maxLen int // ring buffer size (0 = unbounded)
}

// NewLog creates a new audit log. maxLen=0 means unbounded.
func NewLog(maxLen int) *Log {
	return &Log{
		events: make([]Event, 0, 256),
		maxLen: maxLen,
	}
}

// Record appends an event to the log.
func (l *Log) Record(evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, evt)
	if l.maxLen > 0 && len(l.events) > l.maxLen {
		l.events = l.events[len(l.events)-l.maxLen:]
	}
}

// Filter narrows a query. Zero fields match everything.
type Filter struct {
	Type  EventType
	Actor string
	Since time.Time
	Limit int
}

// Query returns filtered events, newest first.
func (l *Log) Query(f Filter) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Event, 0)
	for i := len(l.events) - 1; i >= 0; i-- {
		evt := l.events[i]

		if f.Type != "" && evt.Type != f.Type {
			continue
		}
		if f.Actor != "" && evt.Actor != f.Actor {
			continue
		}
		if !f.Since.IsZero() && evt.Timestamp.Before(f.Since) {
			continue
		}

		result = append(result, evt)
		if f.Limit > 0 && len(result) >= f.Limit {
			break
		}
	}
	return result
}

// Recent returns the n most recent events.
func (l *Log) Recent(n int) []Event {
	return l.Query(Filter{Limit: n})
}

// Count returns the number of retained events.
func (l *Log) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Discard is a Recorder that drops everything.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(Event) {}
