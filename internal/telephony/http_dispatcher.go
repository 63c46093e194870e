package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Progress statuses emitted during a dispatch, in order.
const (
	StatusConnecting       = "connecting"
	StatusCreatingRoom     = "creating_room"
	StatusCreatingDispatch = "creating_dispatch"
	StatusRinging          = "ringing"
	StatusFailed           = "failed"
)

// HTTPDispatcher drives a media backend over its REST surface: one call to
// create the room, one to dispatch the agent.
type HTTPDispatcher struct {
	baseURL   string
	apiKey    string
	apiSecret string
	agentName string

	client *http.Client
	emit   StatusEmitter
	log    *slog.Logger
}

type HTTPDispatcherConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	AgentName string

	// Timeout bounds each backend call; zero means 20s.
	Timeout time.Duration
}

func NewHTTPDispatcher(log *slog.Logger, cfg HTTPDispatcherConfig, emit StatusEmitter) *HTTPDispatcher {
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if emit == nil {
		emit = func(string, string, string, string) {}
	}
	return &HTTPDispatcher{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		agentName: cfg.AgentName,
		client:    &http.Client{Timeout: timeout},
		emit:      emit,
		log:       log.With("component", "telephony"),
	}
}

func (d *HTTPDispatcher) Name() string { return "http" }

func (d *HTTPDispatcher) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	d.authorize(req)
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("media backend unhealthy: %d", resp.StatusCode)
	}
	return nil
}

type createRoomRequest struct {
	Name            string `json:"name"`
	EmptyTimeout    int    `json:"empty_timeout"`
	MaxParticipants int    `json:"max_participants"`
}

type createDispatchRequest struct {
	AgentName string `json:"agent_name"`
	Room      string `json:"room"`
	// Metadata is the JSON-encoded CallMetadata; the agent contract takes
	// it as an opaque string.
	Metadata string `json:"metadata"`
}

type createDispatchResponse struct {
	ID string `json:"id"`
}

// DispatchAgent creates the room, dispatches the agent, and reports each
// stage through the emitter. Any failure emits a failed status with the
// error before returning it.
func (d *HTTPDispatcher) DispatchAgent(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	room := RoomName(req.Phone)

	d.emit(StatusConnecting, "Connecting to SIP trunk", req.Phone, "")

	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		return DispatchResult{}, d.fail(req.Phone, fmt.Errorf("encode metadata: %w", err))
	}

	d.emit(StatusCreatingRoom, "Creating conversation room", req.Phone, "")
	if err := d.post(ctx, "/rooms", createRoomRequest{
		Name:            room,
		EmptyTimeout:    600,
		MaxParticipants: 20,
	}, nil); err != nil {
		return DispatchResult{}, d.fail(req.Phone, fmt.Errorf("create room: %w", err))
	}

	d.emit(StatusCreatingDispatch, "Connecting to agent", req.Phone, "")
	var created createDispatchResponse
	if err := d.post(ctx, "/agent-dispatches", createDispatchRequest{
		AgentName: d.agentName,
		Room:      room,
		Metadata:  string(metadata),
	}, &created); err != nil {
		return DispatchResult{}, d.fail(req.Phone, fmt.Errorf("create dispatch: %w", err))
	}

	d.emit(StatusRinging, "Call is ringing", req.Phone, room)
	return DispatchResult{Phone: req.Phone, RoomName: room, DispatchID: created.ID}, nil
}

func (d *HTTPDispatcher) fail(phone string, err error) error {
	d.log.Error("dispatch failed", "phone", phone, "err", err)
	d.emit(StatusFailed, fmt.Sprintf("Call failed: %v", err), phone, "")
	return err
}

func (d *HTTPDispatcher) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	d.authorize(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, bytes.TrimSpace(raw))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

func (d *HTTPDispatcher) authorize(req *http.Request) {
	req.SetBasicAuth(d.apiKey, d.apiSecret)
}
