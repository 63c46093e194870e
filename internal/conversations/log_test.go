package conversations

import (
	"context"
	"testing"
)

func TestLog_AppendOrderPerBorrower(t *testing.T) {
	l := NewLog()
	l.Append(Message{Phone: "A", Sender: SenderAgent, Text: "hi"})
	l.Append(Message{Phone: "B", Sender: SenderAgent, Text: "hello"})
	l.Append(Message{Phone: "A", Sender: SenderBorrower, Text: "who is this?"})

	a := l.History("A")
	if len(a) != 2 || a[0].Text != "hi" || a[1].Text != "who is this?" {
		t.Fatalf("history A = %+v", a)
	}
	b := l.History("B")
	if len(b) != 1 || b[0].Text != "hello" {
		t.Fatalf("history B = %+v", b)
	}
}

func TestLog_NoDeduplication(t *testing.T) {
	l := NewLog()
	l.Append(Message{Phone: "A", Sender: SenderAgent, Text: "hi"})
	l.Append(Message{Phone: "A", Sender: SenderAgent, Text: "hi"})
	if got := len(l.History("A")); got != 2 {
		t.Fatalf("duplicates must be kept, len=%d", got)
	}
}

func TestLog_StampsMissingTimestamps(t *testing.T) {
	l := NewLog()
	l.Append(Message{Phone: "A", Sender: SenderAgent, Text: "hi"})
	if l.History("A")[0].ReceivedAt.IsZero() {
		t.Fatalf("expected receive timestamp")
	}
}

func TestMemoryStore_RecentReturnsTail(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, text := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		if err := s.Append(ctx, Message{Phone: "A", Sender: SenderAgent, Text: text}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := s.Recent(ctx, "A", 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 5 || got[0].Text != "3" || got[4].Text != "7" {
		t.Fatalf("recent = %+v", got)
	}
}

func TestMemoryStore_RejectsEmptyMessage(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Append(context.Background(), Message{Phone: "A"}); err == nil {
		t.Fatalf("expected ErrInvalidMessage")
	}
}
