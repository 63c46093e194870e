package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to operators by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogDispatchAccepted records an accepted outbound call dispatch.
func (s *Service) LogDispatchAccepted(ctx context.Context, actorUserID, actorRole, ip, phone, room, dispatchID string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeDispatchAccepted,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		Phone:       phone,
		Room:        room,
		DispatchID:  dispatchID,
		Message:     "dispatch accepted",
	})
}

// LogDispatchRejected records a dispatch the backend refused.
func (s *Service) LogDispatchRejected(ctx context.Context, actorUserID, actorRole, ip, phone, reason string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeDispatchRejected,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		Phone:       phone,
		Message:     reason,
	})
}

// LogListReplaced records a wholesale borrower list upload.
func (s *Service) LogListReplaced(ctx context.Context, actorUserID, actorRole, ip string, count int, metadata string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeListReplaced,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		IPAddress:   ip,
		Message:     fmt.Sprintf("borrower list replaced (%d rows)", count),
		Metadata:    metadata,
	})
}
