package calls

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"loanvoice-platform/internal/events"
)

// Status is the call session state. Completed and Failed are terminal; a
// new dispatch for the same phone supersedes a terminal session rather than
// resuming it.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusInitiated  Status = "initiated"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Session is the per-borrower call record. At most one session exists per
// phone number.
type Session struct {
	Phone       string
	Status      Status
	LastMessage string
	Room        string

	// Attempts counts dispatch acceptances for this phone. It never
	// decreases, including across superseding dispatches.
	Attempts int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tracker keys one call state machine per phone number. Mutations arrive
// either from the dispatch gateway (Begin) or from normalized call-status
// events (Apply).
type Tracker struct {
	log   *slog.Logger
	clock func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewTracker(log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		log:      log.With("component", "calls"),
		clock:    time.Now,
		sessions: map[string]*Session{},
	}
}

// Bind subscribes the tracker to the event bus.
func (t *Tracker) Bind(bus *events.Bus) {
	bus.Subscribe(events.KindCallStatusChanged, func(ev events.Event) {
		t.Apply(*ev.CallStatus)
	})
}

// Begin records a dispatch acceptance: the optimistic Idle to Initiated
// transition, before any realtime event arrives. An existing session is
// superseded; its attempt count carries forward and grows by one.
func (t *Tracker) Begin(phone string) Session {
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()
	prior := t.sessions[phone]
	s := &Session{
		Phone:       phone,
		Status:      StatusInitiated,
		LastMessage: "",
		Attempts:    1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if prior != nil {
		s.Attempts = prior.Attempts + 1
	}
	t.sessions[phone] = s
	return *s
}

// Apply advances the state machine from a normalized event. Events for
// unknown phone numbers are logged and ignored; the realtime channel may
// carry sessions dispatched elsewhere.
func (t *Tracker) Apply(ev events.CallStatusChanged) bool {
	next, ok := mapStatus(ev.Status)
	if !ok {
		t.log.Debug("unrecognized call status", "phone", ev.Phone, "status", ev.Status)
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	s, exists := t.sessions[ev.Phone]
	if !exists {
		t.log.Debug("call status for unknown phone", "phone", ev.Phone, "status", ev.Status)
		return false
	}
	if !allowed(s.Status, next) {
		t.log.Debug("ignoring call transition",
			"phone", ev.Phone, "from", string(s.Status), "to", string(next))
		return false
	}

	s.Status = next
	if ev.Message != "" {
		s.LastMessage = ev.Message
	}
	if ev.Room != "" {
		s.Room = ev.Room
	}
	s.UpdatedAt = t.clock()
	return true
}

// Get returns the session for a phone. A borrower with no session yet is
// reported as an Idle zero-attempt session.
func (t *Tracker) Get(phone string) Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[phone]; ok {
		return *s
	}
	return Session{Phone: phone, Status: StatusIdle}
}

// Active reports whether a call is underway: exactly the states in which
// the call affordance must stay disabled to prevent duplicate dispatch.
func (t *Tracker) Active(phone string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[phone]
	if !ok {
		return false
	}
	return s.Status == StatusInitiated || s.Status == StatusInProgress
}

// mapStatus folds the wire statuses into machine states. The dispatch
// pipeline emits several progress statuses (connecting, creating_room,
// creating_dispatch, ringing); they all land in InProgress with the
// message retained.
func mapStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "initiated":
		return StatusInitiated, true
	case "connecting", "creating_room", "creating_dispatch", "ringing", "in_progress":
		return StatusInProgress, true
	case "completed":
		return StatusCompleted, true
	default:
		if strings.HasPrefix(strings.ToLower(raw), "failed") {
			return StatusFailed, true
		}
		return "", false
	}
}

func allowed(from, to Status) bool {
	switch to {
	case StatusInitiated:
		// Only Begin re-enters Initiated; on the wire it is a no-op echo
		// of the acceptance already applied optimistically.
		return from == StatusInitiated
	case StatusInProgress:
		return from == StatusInitiated || from == StatusInProgress
	case StatusCompleted, StatusFailed:
		return from == StatusInitiated || from == StatusInProgress
	default:
		return false
	}
}
