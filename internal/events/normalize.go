package events

import (
	"encoding/json"
	"strings"
	"time"

	"loanvoice-platform/internal/borrowers"
)

// Raw event names shared by both channels.
const (
	rawBorrowersUpdate    = "borrowers_update"
	rawCallStatus         = "call_status"
	rawCampaignStatus     = "campaign_status"
	rawConversationUpdate = "conversation_update"
	rawConnect            = "connect"
	rawDisconnect         = "disconnect"
)

// wsFrame is the multiplexed channel shape: {"event": ..., "data": {...}}.
type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// rawFrame is the legacy flat shape: the event name and its fields live in
// one object.
type rawFrame struct {
	Event     string               `json:"event"`
	Phone     string               `json:"phone"`
	Status    string               `json:"status"`
	Message   string               `json:"message"`
	Room      string               `json:"room"`
	Sender    string               `json:"sender"`
	Text      string               `json:"text"`
	Timestamp string               `json:"timestamp"`
	Borrowers []borrowers.Borrower `json:"borrowers"`
}

type wsStatusData struct {
	Phone     stringish `json:"phone"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Room      string    `json:"room"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp string    `json:"timestamp"`
}

type wsBorrowersData struct {
	Borrowers []borrowers.Borrower `json:"borrowers"`
}

// stringish tolerates numeric phone fields; older emitters serialized the
// phone as a JSON number.
type stringish string

func (s *stringish) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err == nil {
		*s = stringish(v)
		return nil
	}
	*s = stringish(strings.Trim(string(b), `"`))
	return nil
}

// Normalize maps a raw transport message to an internal event. It returns
// false when the message should be dropped: unknown event kind, undecodable
// payload, or a missing phone correlation field. It never fails loudly; the
// realtime channels are not schema-guaranteed.
func Normalize(raw []byte, transport TransportKind) (Event, bool) {
	switch transport {
	case TransportRawSocket:
		return normalizeRaw(raw, transport)
	default:
		return normalizeWS(raw, transport)
	}
}

func normalizeWS(raw []byte, transport TransportKind) (Event, bool) {
	var f wsFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Event{}, false
	}

	switch f.Event {
	case rawConnect, rawDisconnect:
		return Connection(transport, f.Event == rawConnect, false, ""), true
	case rawBorrowersUpdate:
		var d wsBorrowersData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return Event{}, false
		}
		return Event{Kind: KindBorrowerListReplaced, Borrowers: &BorrowerListReplaced{Borrowers: d.Borrowers}}, true
	case rawCallStatus, rawCampaignStatus, rawConversationUpdate:
		var d wsStatusData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return Event{}, false
		}
		return buildKeyed(f.Event, string(d.Phone), d.Status, d.Message, d.Room, d.Sender, d.Text, d.Timestamp)
	default:
		return Event{}, false
	}
}

func normalizeRaw(raw []byte, transport TransportKind) (Event, bool) {
	var f rawFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Event{}, false
	}

	switch f.Event {
	case rawConnect, rawDisconnect:
		return Connection(transport, f.Event == rawConnect, false, ""), true
	case rawBorrowersUpdate:
		return Event{Kind: KindBorrowerListReplaced, Borrowers: &BorrowerListReplaced{Borrowers: f.Borrowers}}, true
	case rawCallStatus, rawCampaignStatus, rawConversationUpdate:
		return buildKeyed(f.Event, f.Phone, f.Status, f.Message, f.Room, f.Sender, f.Text, f.Timestamp)
	default:
		return Event{}, false
	}
}

// buildKeyed assembles the phone-keyed variants. A missing phone drops the
// event; everything downstream resolves state by that key.
func buildKeyed(event, phone, status, message, room, sender, text, timestamp string) (Event, bool) {
	if strings.TrimSpace(phone) == "" {
		return Event{}, false
	}
	ts := parseTimestamp(timestamp)

	switch event {
	case rawCallStatus:
		if status == "" {
			return Event{}, false
		}
		return Event{Kind: KindCallStatusChanged, CallStatus: &CallStatusChanged{
			Phone:     phone,
			Status:    status,
			Message:   message,
			Room:      room,
			Timestamp: ts,
		}}, true
	case rawCampaignStatus:
		if status == "" {
			return Event{}, false
		}
		return Event{Kind: KindCampaignStatusChanged, CampaignStatus: &CampaignStatusChanged{
			Phone:  phone,
			Status: status,
		}}, true
	case rawConversationUpdate:
		if text == "" {
			return Event{}, false
		}
		return Event{Kind: KindConversationMessageAppended, Conversation: &ConversationMessageAppended{
			Phone:     phone,
			Sender:    sender,
			Text:      text,
			Timestamp: ts,
		}}, true
	}
	return Event{}, false
}

func parseTimestamp(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if ts, err := time.Parse(layout, v); err == nil {
			return ts
		}
	}
	return time.Time{}
}
