package hub

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"loanvoice-platform/internal/borrowers"
	"loanvoice-platform/internal/conversations"
)

func dialTestWS(t *testing.T, h *Hub) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastReachesWebSocketClient(t *testing.T) {
	h := New(nil)
	conn, cleanup := dialTestWS(t, h)
	defer cleanup()
	waitForClients(t, h, 1)

	h.Broadcast("campaign_status", map[string]any{"phone": "9876543210", "status": "Running"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if f.Event != "campaign_status" {
		t.Fatalf("event = %q, want campaign_status", f.Event)
	}
	var data map[string]string
	if err := json.Unmarshal(f.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["phone"] != "9876543210" || data["status"] != "Running" {
		t.Fatalf("unexpected data %v", data)
	}
	if f.Origin != "" {
		t.Fatalf("origin must not leak to clients, got %q", f.Origin)
	}
}

func TestBroadcastReachesRawClientFlat(t *testing.T) {
	h := New(nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.ServeRaw(ctx, ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, h, 1)

	h.Broadcast("call_status", map[string]any{"phone": "9876543210", "status": "ringing"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	var flat map[string]any
	if err := json.Unmarshal(line, &flat); err != nil {
		t.Fatalf("decode flat frame: %v", err)
	}
	if flat["event"] != "call_status" || flat["phone"] != "9876543210" || flat["status"] != "ringing" {
		t.Fatalf("unexpected flat frame %v", flat)
	}
}

func TestInboundStartCampaignInvokesHandler(t *testing.T) {
	h := New(nil)
	got := make(chan borrowers.Borrower, 1)
	h.OnStartCampaign(func(_ context.Context, b borrowers.Borrower) { got <- b })

	conn, cleanup := dialTestWS(t, h)
	defer cleanup()
	waitForClients(t, h, 1)

	frame := map[string]any{
		"event": "start_campaign",
		"data": map[string]any{
			"borrowers": []map[string]any{{"Mobile_No": "9876543210", "F_Name": "Asha"}},
		},
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case b := <-got:
		if b.Phone != "9876543210" || b.FirstName != "Asha" {
			t.Fatalf("unexpected borrower %+v", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("start_campaign handler not invoked")
	}
}

func TestInboundConversationUpdateIsPersistedAndRelayed(t *testing.T) {
	h := New(nil)
	store := conversations.NewMemoryStore()
	h.PersistConversations(store)

	sender, cleanupA := dialTestWS(t, h)
	defer cleanupA()
	listener, cleanupB := dialTestWS(t, h)
	defer cleanupB()
	waitForClients(t, h, 2)

	frame := map[string]any{
		"event": "conversation_update",
		"data": map[string]any{
			"phone": "9876543210", "sender": "agent", "text": "Hello, this is Riya.",
		},
	}
	if err := sender.WriteJSON(frame); err != nil {
		t.Fatalf("write: %v", err)
	}

	listener.SetReadDeadline(time.Now().Add(2 * time.Second))
	var relayed Frame
	if err := listener.ReadJSON(&relayed); err != nil {
		t.Fatalf("read relayed frame: %v", err)
	}
	if relayed.Event != "conversation_update" {
		t.Fatalf("event = %q", relayed.Event)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		msgs, err := store.Recent(context.Background(), "9876543210", 10)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		if len(msgs) == 1 {
			if msgs[0].Sender != "agent" || msgs[0].Text != "Hello, this is Riya." {
				t.Fatalf("unexpected message %+v", msgs[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("conversation turn not persisted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUnflatten(t *testing.T) {
	event, data, ok := unflatten([]byte(`{"event":"call_status","phone":"9876543210","status":"ringing"}`))
	if !ok {
		t.Fatal("unflatten failed")
	}
	if event != "call_status" {
		t.Fatalf("event = %q", event)
	}
	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fields["phone"] != "9876543210" || fields["status"] != "ringing" {
		t.Fatalf("unexpected fields %v", fields)
	}

	if _, _, ok := unflatten([]byte(`{"phone":"9876543210"}`)); ok {
		t.Fatal("frame without event must be rejected")
	}
	if _, _, ok := unflatten([]byte(`not json`)); ok {
		t.Fatal("invalid JSON must be rejected")
	}
}
