package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"loanvoice-platform/pkg/utils"
)

// CallCaps bounds concurrent outbound calls per borrower across API
// instances using a shared redis counter. A slot is taken when a dispatch
// is accepted and freed when the call resolves; the TTL reclaims slots from
// calls whose terminal status never arrived.
type CallCaps struct {
	rdb   *redis.Client
	key   string
	limit int
	ttl   time.Duration
	log   *slog.Logger
}

const (
	defaultCapKey = "loanvoice:calls:inflight"
	defaultCapTTL = 10 * time.Minute
)

func NewCallCaps(log *slog.Logger, rdb *redis.Client, limit int) *CallCaps {
	if log == nil {
		log = slog.Default()
	}
	return &CallCaps{
		rdb:   rdb,
		key:   defaultCapKey,
		limit: limit,
		ttl:   defaultCapTTL,
		log:   log.With("component", "call_caps"),
	}
}

func (c *CallCaps) Acquire(ctx context.Context, phone string) (bool, error) {
	ok, err := utils.AcquireConcurrencyCap(ctx, c.rdb, c.key+":"+phone, c.limit, c.ttl)
	if err != nil {
		c.log.Error("cap acquire failed", "phone", phone, "err", err)
		return false, err
	}
	return ok, nil
}

func (c *CallCaps) Release(ctx context.Context, phone string) {
	if err := utils.ReleaseConcurrencyCap(ctx, c.rdb, c.key+":"+phone); err != nil {
		c.log.Warn("cap release failed", "phone", phone, "err", err)
	}
}
