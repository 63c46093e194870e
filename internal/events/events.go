package events

import (
	"time"

	"loanvoice-platform/internal/borrowers"
)

// TransportKind identifies which realtime channel a raw message came from.
// Downstream components never branch on it; the normalizer converges both
// shapes to the same internal events.
type TransportKind string

const (
	// TransportWebSocket is the multiplexed event channel
	// ({"event": ..., "data": {...}} frames).
	TransportWebSocket TransportKind = "websocket"
	// TransportRawSocket is the legacy newline-JSON channel with flat
	// frames ({"event": ..., "phone": ...}).
	TransportRawSocket TransportKind = "rawsocket"
)

type Kind string

const (
	KindConnection                  Kind = "connection"
	KindBorrowerListReplaced        Kind = "borrower_list_replaced"
	KindCallStatusChanged           Kind = "call_status_changed"
	KindCampaignStatusChanged       Kind = "campaign_status_changed"
	KindConversationMessageAppended Kind = "conversation_message_appended"
)

// Event is the single internal variant set. Exactly one payload pointer is
// non-nil, matching Kind.
type Event struct {
	Kind Kind

	Connection     *ConnectionEvent
	Borrowers      *BorrowerListReplaced
	CallStatus     *CallStatusChanged
	CampaignStatus *CampaignStatusChanged
	Conversation   *ConversationMessageAppended
}

// ConnectionEvent reports transport lifecycle changes. Lost is set exactly
// once per exhausted reconnect cycle and means the manager has given up
// until told to connect again.
type ConnectionEvent struct {
	Transport TransportKind
	Connected bool
	Lost      bool
	Reason    string
}

type BorrowerListReplaced struct {
	Borrowers []borrowers.Borrower
}

type CallStatusChanged struct {
	Phone     string
	Status    string
	Message   string
	Room      string
	Timestamp time.Time
}

type CampaignStatusChanged struct {
	Phone  string
	Status string
}

type ConversationMessageAppended struct {
	Phone     string
	Sender    string
	Text      string
	Timestamp time.Time
}

// Connection builds the lifecycle event the connection manager publishes.
func Connection(transport TransportKind, connected, lost bool, reason string) Event {
	return Event{
		Kind: KindConnection,
		Connection: &ConnectionEvent{
			Transport: transport,
			Connected: connected,
			Lost:      lost,
			Reason:    reason,
		},
	}
}
