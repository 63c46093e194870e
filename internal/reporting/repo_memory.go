package reporting

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is a simple in-memory reporting repository for tests and
// database-less deployments.

type MemoryRepo struct {
	mu       sync.Mutex
	Attempts []Attempt
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, a Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Attempts = append(r.Attempts, a)
	return nil
}

func (r *MemoryRepo) ListAttempts(ctx context.Context, phone string, from, to time.Time) ([]Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Attempt, 0)
	for _, a := range r.Attempts {
		if phone != "" && a.Phone != phone {
			continue
		}
		if !a.CreatedAt.IsZero() && !from.IsZero() && !to.IsZero() {
			if a.CreatedAt.Before(from) || !a.CreatedAt.Before(to) {
				continue
			}
		}
		out = append(out, a)
	}
	return out, nil
}
