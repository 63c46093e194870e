package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBus_DispatchesInArrivalOrder(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	b.Subscribe(KindCallStatusChanged, func(ev Event) {
		mu.Lock()
		got = append(got, ev.CallStatus.Phone)
		if len(got) == 3 {
			close(done)
		}
		mu.Unlock()
	})

	b.Start(context.Background())
	for _, phone := range []string{"1", "2", "3"} {
		b.Publish(Event{Kind: KindCallStatusChanged, CallStatus: &CallStatusChanged{Phone: phone}})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("events not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, want := range []string{"1", "2", "3"} {
		if got[i] != want {
			t.Fatalf("order = %v", got)
		}
	}
}

func TestBus_OnlyMatchingKindDelivered(t *testing.T) {
	b := NewBus()
	defer b.Close()

	calls := make(chan Event, 1)
	b.Subscribe(KindCallStatusChanged, func(ev Event) { calls <- ev })
	b.Start(context.Background())

	b.Publish(Event{Kind: KindCampaignStatusChanged, CampaignStatus: &CampaignStatusChanged{Phone: "1", Status: "running"}})
	b.Publish(Event{Kind: KindCallStatusChanged, CallStatus: &CallStatusChanged{Phone: "2", Status: "completed"}})

	select {
	case ev := <-calls:
		if ev.CallStatus.Phone != "2" {
			t.Fatalf("wrong event delivered: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	b := NewBus()
	b.Start(context.Background())
	b.Close()
	b.Close()
}

func TestBus_CloseWithoutStart(t *testing.T) {
	b := NewBus()
	b.Close()
}
