package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"loanvoice-platform/internal/borrowers"
	"loanvoice-platform/internal/calls"
)

func testBorrower() borrowers.Borrower {
	return borrowers.Borrower{
		Phone:             "+919876543210",
		FirstName:         "Asha",
		LastName:          "Verma",
		CurrentBalance:    15000.50,
		InstallmentAmount: 1200,
		LastPaymentDate:   "2025-06-01",
	}
}

func TestDispatchCall_AcceptanceIsOptimistic(t *testing.T) {
	var got dispatchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/dispatch-call" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "success",
			"message": "Call initiated successfully",
			"data":    map[string]any{"room_name": "room-9876543210", "dispatch_id": "d-1", "phone": "9876543210"},
		})
	}))
	defer srv.Close()

	tracker := calls.NewTracker(nil)
	g := NewGateway(nil, srv.URL, "", tracker)

	acc, err := g.DispatchCall(context.Background(), "+919876543210", testBorrower())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if acc.RoomName != "room-9876543210" {
		t.Fatalf("accepted = %+v", acc)
	}

	if got.Phone != "9876543210" {
		t.Fatalf("request phone = %q, want normalized", got.Phone)
	}
	if got.UserInfo.ChannelPreference != "voice" {
		t.Fatalf("channel default = %q", got.UserInfo.ChannelPreference)
	}
	if got.UserInfo.CurrentBalance != 15000.50 {
		t.Fatalf("user_info = %+v", got.UserInfo)
	}

	s := tracker.Get("9876543210")
	if s.Status != calls.StatusInitiated || s.Attempts != 1 {
		t.Fatalf("session = %+v; dispatch acceptance must move Idle->Initiated", s)
	}
}

func TestDispatchCall_InvalidPhoneNeverHitsNetwork(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	tracker := calls.NewTracker(nil)
	g := NewGateway(nil, srv.URL, "", tracker)

	_, err := g.DispatchCall(context.Background(), "12345", testBorrower())
	if !errors.Is(err, ErrInvalidPhoneNumber) {
		t.Fatalf("expected ErrInvalidPhoneNumber, got %v", err)
	}
	if hits != 0 {
		t.Fatalf("validation must run before any network call; hits=%d", hits)
	}
	if tracker.Get("12345").Status != calls.StatusIdle {
		t.Fatalf("rejected dispatch must not mutate sessions")
	}
}

func TestDispatchCall_RejectionKeepsSessionIdle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": "Missing required borrower information"})
	}))
	defer srv.Close()

	tracker := calls.NewTracker(nil)
	g := NewGateway(nil, srv.URL, "", tracker)

	_, err := g.DispatchCall(context.Background(), "9876543210", testBorrower())
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rej.Message != "Missing required borrower information" {
		t.Fatalf("message = %q", rej.Message)
	}
	if got := tracker.Get("9876543210").Status; got != calls.StatusIdle {
		t.Fatalf("session after rejection = %q, want idle", got)
	}
}

func TestDispatchCall_RejectionWithoutBodyStillTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewGateway(nil, srv.URL, "", calls.NewTracker(nil))
	_, err := g.DispatchCall(context.Background(), "9876543210", testBorrower())
	var rej *RejectedError
	if !errors.As(err, &rej) || rej.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected RejectedError 502, got %v", err)
	}
}
