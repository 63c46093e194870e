package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"loanvoice-platform/internal/borrowers"
	"loanvoice-platform/internal/dispatch"
	"loanvoice-platform/internal/telephony"

	"github.com/gin-gonic/gin"
)

// CampaignRunner drives the start_campaign flow triggered over the realtime
// channel. Campaign progress is only ever reported through campaign_status
// broadcasts; there is no synchronous response path.
type CampaignRunner struct {
	Log        *slog.Logger
	Hub        Broadcaster
	Dispatcher telephony.AgentDispatcher
	Caps       *CallCaps

	// DispatchTimeout bounds the room+dispatch cycle. Zero means 60s.
	DispatchTimeout time.Duration
}

// Start launches a voice campaign for one borrower. The triggering
// connection's context is not used: the campaign outlives it.
func (r *CampaignRunner) Start(_ context.Context, b borrowers.Borrower) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	phone, err := dispatch.NormalizePhone(b.Phone)
	if err != nil {
		r.fail(b.Phone, "invalid phone number")
		return
	}

	channel := b.ChannelPreference
	if channel == "" {
		channel = borrowers.ChannelVoice
	}
	if channel != borrowers.ChannelVoice {
		r.fail(phone, fmt.Sprintf("channel preference %q is not supported yet", channel))
		return
	}

	r.Hub.Broadcast("campaign_status", gin.H{"phone": phone, "status": "Running"})

	timeout := r.DispatchTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if r.Caps != nil {
			ok, capErr := r.Caps.Acquire(ctx, phone)
			if capErr != nil || !ok {
				r.fail(phone, "a call for this borrower is already in flight")
				return
			}
		}

		_, err := r.Dispatcher.DispatchAgent(ctx, telephony.DispatchRequest{
			Phone: phone,
			Metadata: telephony.CallMetadata{
				Phone:             telephony.DialablePhone(phone),
				FirstName:         b.FirstName,
				LastName:          b.LastName,
				BalanceToPay:      b.CurrentBalance,
				Installment:       b.InstallmentAmount,
				StartDate:         b.LastPaymentDate,
				LastDate:          b.LastPaymentDate,
				ChannelPreference: channel,
			},
			OccurredAt: time.Now().UTC(),
		})
		if err != nil {
			if r.Caps != nil {
				r.Caps.Release(ctx, phone)
			}
			log.Error("campaign dispatch failed", "phone", phone, "err", err)
			r.fail(phone, err.Error())
		}
	}()
}

func (r *CampaignRunner) fail(phone, reason string) {
	r.Hub.Broadcast("campaign_status", gin.H{"phone": phone, "status": "Failed: " + reason})
}
