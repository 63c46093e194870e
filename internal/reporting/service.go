package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"loanvoice-platform/internal/calls"
	"loanvoice-platform/internal/events"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Implementations should query immutable sources (the attempt journal).
// - An empty phone in ListAttempts means the whole book.

type Repository interface {
	Append(ctx context.Context, a Attempt) error
	ListAttempts(ctx context.Context, phone string, from, to time.Time) ([]Attempt, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time

	// journaled tracks the last attempt number recorded per phone, so a
	// replayed terminal status (agent echo, bridge replay) is not
	// journaled twice. Only the Bind path touches it.
	mu        sync.Mutex
	journaled map[string]int
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now, journaled: map[string]int{}}
}

// Record appends one terminal call outcome to the journal.
func (s *Service) Record(ctx context.Context, phone, room, lastMessage string, final calls.Status) error {
	if s.repo == nil {
		return errors.New("reporting: repository not configured")
	}
	if phone == "" || !final.Terminal() {
		return ErrInvalidRequest
	}
	return s.repo.Append(ctx, Attempt{
		ID:          uuid.NewString(),
		Phone:       phone,
		Room:        room,
		Final:       final,
		LastMessage: lastMessage,
		CreatedAt:   s.clock().UTC(),
	})
}

// Bind journals terminal outcomes straight off the event channel. Non-terminal
// progress updates are ignored; only resolutions matter for reporting.
// The tracker must be bound before the service so its state reflects the
// event being handled.
func (s *Service) Bind(bus *events.Bus, tracker *calls.Tracker) {
	bus.Subscribe(events.KindCallStatusChanged, func(ev events.Event) {
		cs := ev.CallStatus
		final := tracker.Get(cs.Phone)
		if !final.Status.Terminal() {
			return
		}

		// One journal entry per attempt: the counter only moves on a new
		// dispatch, so replays of the same terminal status are dropped.
		s.mu.Lock()
		if s.journaled[cs.Phone] == final.Attempts {
			s.mu.Unlock()
			return
		}
		s.journaled[cs.Phone] = final.Attempts
		s.mu.Unlock()

		_ = s.Record(context.Background(), cs.Phone, final.Room, cs.Message, final.Status)
	})
}

func (s *Service) BorrowerSummary(ctx context.Context, req BorrowerSummaryRequest) (BorrowerSummary, error) {
	if req.Phone == "" {
		return BorrowerSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return BorrowerSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListAttempts(ctx, req.Phone, req.Range.From, req.Range.To)
	if err != nil {
		return BorrowerSummary{}, err
	}

	out := BorrowerSummary{Phone: req.Phone}
	for _, a := range rows {
		out.TotalAttempts++
		switch a.Final {
		case calls.StatusCompleted:
			out.CompletedCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		}
		if a.CreatedAt.After(out.LastAttemptAt) {
			out.LastAttemptAt = a.CreatedAt
			out.LastStatus = a.Final
		}
	}
	return out, nil
}

func (s *Service) CampaignSummary(ctx context.Context, req CampaignSummaryRequest) (CampaignSummary, error) {
	if s.repo == nil {
		return CampaignSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListAttempts(ctx, "", req.Range.From, req.Range.To)
	if err != nil {
		return CampaignSummary{}, err
	}

	out := CampaignSummary{}
	seen := map[string]struct{}{}
	for _, a := range rows {
		out.TotalAttempts++
		seen[a.Phone] = struct{}{}
		switch a.Final {
		case calls.StatusCompleted:
			out.CompletedCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		}
	}
	out.BorrowersAttempted = len(seen)
	if out.TotalAttempts > 0 {
		out.CompletionRate = float64(out.CompletedCalls) / float64(out.TotalAttempts)
	}
	return out, nil
}
