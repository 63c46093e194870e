package telephony

import (
	"context"
	"time"
)

// AgentDispatcher is the provider-agnostic interface for placing an
// outbound agent call: create a per-borrower room, then dispatch the voice
// agent into it.
//
// Rules:
//   - No provider SDK calls outside telephony adapters.
//   - Keep request/response types provider-agnostic.
//   - Progress is reported through the StatusEmitter, not return values;
//     the request/response cycle only confirms acceptance.
type AgentDispatcher interface {
	Name() string
	HealthCheck(ctx context.Context) error
	DispatchAgent(ctx context.Context, req DispatchRequest) (DispatchResult, error)
}

// DispatchRequest asks for one outbound call to a normalized 10-digit
// number. Metadata is handed to the voice agent as conversation context.
type DispatchRequest struct {
	// Phone is the normalized 10-digit number.
	Phone string `json:"phone"`

	Metadata CallMetadata `json:"metadata"`

	// OccurredAt is the acceptance time recorded by the API layer.
	OccurredAt time.Time `json:"occurred_at"`
}

// CallMetadata is the borrower context carried into the agent session.
// Field names are the agent-side contract; keep them stable.
type CallMetadata struct {
	// Phone is the dialable E.164 form (+91 prefixed).
	Phone             string  `json:"phone"`
	FirstName         string  `json:"first_name"`
	LastName          string  `json:"last_name"`
	BalanceToPay      float64 `json:"balance_to_pay"`
	Installment       float64 `json:"installment"`
	StartDate         string  `json:"start_date"`
	LastDate          string  `json:"last_date"`
	ChannelPreference string  `json:"channel_preference"`
}

type DispatchResult struct {
	Phone      string `json:"phone"`
	RoomName   string `json:"room_name"`
	DispatchID string `json:"dispatch_id"`
}

// StatusEmitter pushes call progress toward the realtime hub. Implementations
// must not block on slow consumers.
type StatusEmitter func(status, message, phone, room string)

// RoomName derives the per-borrower room. One room per phone number; a
// superseding dispatch reuses it.
func RoomName(phone string) string {
	return "room-" + phone
}

// DialablePhone formats a normalized 10-digit number for the SIP trunk.
func DialablePhone(phone string) string {
	return "+91" + phone
}
