package conversations

import (
	"sync"
	"time"

	"loanvoice-platform/internal/events"
)

const (
	SenderAgent    = "agent"
	SenderBorrower = "borrower"
)

// Message is one transcript turn. Messages belong to exactly one borrower.
type Message struct {
	Phone      string    `json:"phone" db:"phone"`
	Sender     string    `json:"sender" db:"sender"`
	Text       string    `json:"text" db:"text"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
}

// Log is the append-only per-borrower transcript. Order is strictly arrival
// order; the log never reorders or deduplicates (dedup, if any, is a
// backend concern).
type Log struct {
	clock func() time.Time

	mu      sync.Mutex
	byPhone map[string][]Message
}

func NewLog() *Log {
	return &Log{clock: time.Now, byPhone: map[string][]Message{}}
}

func (l *Log) Bind(bus *events.Bus) {
	bus.Subscribe(events.KindConversationMessageAppended, func(ev events.Event) {
		c := ev.Conversation
		l.Append(Message{Phone: c.Phone, Sender: c.Sender, Text: c.Text, ReceivedAt: c.Timestamp})
	})
}

func (l *Log) Append(m Message) {
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = l.clock()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byPhone[m.Phone] = append(l.byPhone[m.Phone], m)
}

// History returns the borrower's transcript in append order.
func (l *Log) History(phone string) []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs := l.byPhone[phone]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
