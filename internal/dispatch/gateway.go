package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"loanvoice-platform/internal/borrowers"
	"loanvoice-platform/internal/calls"
)

// RejectedError means the backend refused to accept the dispatch. It only
// ever reports acceptance failure; call outcome arrives later over the
// realtime channel.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("dispatch rejected: %s", e.Message)
	}
	return fmt.Sprintf("dispatch rejected: backend returned %d", e.StatusCode)
}

// Accepted acknowledges that the backend took the dispatch.
type Accepted struct {
	Phone      string `json:"phone"`
	RoomName   string `json:"room_name"`
	DispatchID string `json:"dispatch_id"`
}

// userInfo is the contact-relevant borrower slice carried on a dispatch.
type userInfo struct {
	FirstName         string  `json:"F_Name"`
	LastName          string  `json:"L_Name"`
	CurrentBalance    float64 `json:"Current_balance"`
	LastPaymentDate   string  `json:"Date_of_last_payment"`
	InstallmentAmount float64 `json:"Installment_Amount"`
	ChannelPreference string  `json:"Channel_Preference"`
}

type dispatchRequest struct {
	Phone    string   `json:"phone"`
	UserInfo userInfo `json:"user_info"`
}

type dispatchResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Data    Accepted `json:"data"`
}

// Gateway issues call-dispatch requests against the backend. The
// request/response cycle confirms acceptance only; outcomes reach the call
// tracker via normalized events.
type Gateway struct {
	baseURL string
	token   string
	client  *http.Client
	tracker *calls.Tracker
	log     *slog.Logger
}

func NewGateway(log *slog.Logger, baseURL, token string, tracker *calls.Tracker) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		tracker: tracker,
		log:     log.With("component", "dispatch"),
	}
}

// DispatchCall validates and normalizes the phone locally, posts the
// dispatch, and on acceptance applies the optimistic Idle to Initiated
// transition before any realtime event is processed.
func (g *Gateway) DispatchCall(ctx context.Context, phoneRaw string, b borrowers.Borrower) (Accepted, error) {
	phone, err := NormalizePhone(phoneRaw)
	if err != nil {
		return Accepted{}, err
	}

	channel := b.ChannelPreference
	if channel == "" {
		channel = borrowers.ChannelVoice
	}
	body, err := json.Marshal(dispatchRequest{
		Phone: phone,
		UserInfo: userInfo{
			FirstName:         b.FirstName,
			LastName:          b.LastName,
			CurrentBalance:    b.CurrentBalance,
			LastPaymentDate:   b.LastPaymentDate,
			InstallmentAmount: b.InstallmentAmount,
			ChannelPreference: channel,
		},
	})
	if err != nil {
		return Accepted{}, fmt.Errorf("encode dispatch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/dispatch-call", bytes.NewReader(body))
	if err != nil {
		return Accepted{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Accepted{}, fmt.Errorf("dispatch request: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rej := &RejectedError{StatusCode: resp.StatusCode}
		var parsed dispatchResponse
		if err := json.Unmarshal(payload, &parsed); err == nil {
			rej.Message = parsed.Message
		}
		g.log.Warn("dispatch rejected", "phone", phone, "status", resp.StatusCode, "message", rej.Message)
		return Accepted{}, rej
	}

	var parsed dispatchResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return Accepted{}, fmt.Errorf("decode dispatch response: %w", err)
	}

	session := g.tracker.Begin(phone)
	g.log.Info("dispatch accepted",
		"phone", phone, "attempt", session.Attempts, "dispatch_id", parsed.Data.DispatchID)

	acc := parsed.Data
	if acc.Phone == "" {
		acc.Phone = phone
	}
	return acc, nil
}
