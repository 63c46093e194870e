package telephony

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type emitRecord struct {
	status, message, phone, room string
}

func recordingEmitter() (StatusEmitter, func() []emitRecord) {
	var mu sync.Mutex
	var recs []emitRecord
	emit := func(status, message, phone, room string) {
		mu.Lock()
		defer mu.Unlock()
		recs = append(recs, emitRecord{status, message, phone, room})
	}
	return emit, func() []emitRecord {
		mu.Lock()
		defer mu.Unlock()
		out := make([]emitRecord, len(recs))
		copy(out, recs)
		return out
	}
}

func TestDispatchAgent_HappyPathEmitsProgress(t *testing.T) {
	var gotRoom createRoomRequest
	var gotDispatch createDispatchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		if user != "key" || pass != "secret" {
			t.Errorf("missing basic auth")
		}
		switch r.URL.Path {
		case "/rooms":
			_ = json.NewDecoder(r.Body).Decode(&gotRoom)
			w.WriteHeader(http.StatusOK)
		case "/agent-dispatches":
			_ = json.NewDecoder(r.Body).Decode(&gotDispatch)
			_ = json.NewEncoder(w).Encode(createDispatchResponse{ID: "d-42"})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	emit, records := recordingEmitter()
	d := NewHTTPDispatcher(nil, HTTPDispatcherConfig{
		BaseURL: srv.URL, APIKey: "key", APISecret: "secret", AgentName: "Voice_Agent_Riya",
	}, emit)

	res, err := d.DispatchAgent(context.Background(), DispatchRequest{
		Phone: "9876543210",
		Metadata: CallMetadata{
			Phone: DialablePhone("9876543210"), FirstName: "Asha", BalanceToPay: 15000.50,
			ChannelPreference: "voice",
		},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.RoomName != "room-9876543210" || res.DispatchID != "d-42" {
		t.Fatalf("result = %+v", res)
	}

	if gotRoom.Name != "room-9876543210" || gotRoom.EmptyTimeout != 600 || gotRoom.MaxParticipants != 20 {
		t.Fatalf("room request = %+v", gotRoom)
	}
	if gotDispatch.AgentName != "Voice_Agent_Riya" || gotDispatch.Room != "room-9876543210" {
		t.Fatalf("dispatch request = %+v", gotDispatch)
	}
	var meta CallMetadata
	if err := json.Unmarshal([]byte(gotDispatch.Metadata), &meta); err != nil {
		t.Fatalf("metadata not json: %v", err)
	}
	if meta.Phone != "+919876543210" {
		t.Fatalf("metadata phone = %q", meta.Phone)
	}

	want := []string{StatusConnecting, StatusCreatingRoom, StatusCreatingDispatch, StatusRinging}
	got := records()
	if len(got) != len(want) {
		t.Fatalf("emits = %+v", got)
	}
	for i, status := range want {
		if got[i].status != status {
			t.Fatalf("emit %d = %q, want %q", i, got[i].status, status)
		}
	}
	if got[3].room != "room-9876543210" {
		t.Fatalf("ringing emit should carry the room, got %+v", got[3])
	}
}

func TestDispatchAgent_BackendFailureEmitsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "trunk unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	emit, records := recordingEmitter()
	d := NewHTTPDispatcher(nil, HTTPDispatcherConfig{BaseURL: srv.URL, APIKey: "k", APISecret: "s", AgentName: "A"}, emit)

	_, err := d.DispatchAgent(context.Background(), DispatchRequest{Phone: "9876543210"})
	if err == nil {
		t.Fatalf("expected error")
	}

	got := records()
	last := got[len(got)-1]
	if last.status != StatusFailed {
		t.Fatalf("last emit = %+v, want failed", last)
	}
}
