package campaigns

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"loanvoice-platform/internal/events"
)

// Status is the borrower-level campaign state, independent of the call
// session: a campaign stays Running while individual calls inside it cycle
// through their own terminal states.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

type Session struct {
	Phone     string
	Status    Status
	Reason    string
	UpdatedAt time.Time
}

// Tracker keeps one campaign record per phone number.
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
		log:      log.With("component", "campaigns"),
		clock:    time.Now,
		sessions: map[string]*Session{},
	}
}

func (t *Tracker) Bind(bus *events.Bus) {
	bus.Subscribe(events.KindCampaignStatusChanged, func(ev events.Event) {
		t.Apply(*ev.CampaignStatus)
	})
}

// Start is the local start-campaign action. A terminal campaign may be
// started again; that begins a fresh run.
func (t *Tracker) Start(phone string) Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &Session{Phone: phone, Status: StatusRunning, UpdatedAt: t.clock()}
	t.sessions[phone] = s
	return *s
}

// Apply advances campaign state from a normalized event. Failure statuses
// may carry a reason suffix ("Failed: channel not voice").
func (t *Tracker) Apply(ev events.CampaignStatusChanged) bool {
	status, reason, ok := mapStatus(ev.Status)
	if !ok {
		t.log.Debug("unrecognized campaign status", "phone", ev.Phone, "status", ev.Status)
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	s, exists := t.sessions[ev.Phone]
	if !exists {
		s = &Session{Phone: ev.Phone, Status: StatusNotStarted}
		t.sessions[ev.Phone] = s
	}
	s.Status = status
	s.Reason = reason
	s.UpdatedAt = t.clock()
	return true
}

func (t *Tracker) Get(phone string) Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[phone]; ok {
		return *s
	}
	return Session{Phone: phone, Status: StatusNotStarted}
}

func mapStatus(raw string) (Status, string, bool) {
	v := strings.TrimSpace(raw)
	lower := strings.ToLower(v)
	switch lower {
	case "not_started":
		return StatusNotStarted, "", true
	case "running":
		return StatusRunning, "", true
	case "completed":
		return StatusCompleted, "", true
	case "failed":
		return StatusFailed, "", true
	}
	if strings.HasPrefix(lower, "failed:") {
		return StatusFailed, strings.TrimSpace(v[len("failed:"):]), true
	}
	return "", "", false
}
