package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"loanvoice-platform/internal/borrowers"
	"loanvoice-platform/internal/conversations"
)

// Frame is the multiplexed channel wire shape. Origin tags which hub
// instance produced a frame so cross-instance fanout can skip echoes.
type Frame struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	Origin string          `json:"origin,omitempty"`
}

// StartCampaign is the inbound start_campaign payload. The UI sends the
// selected borrower as a single-element list.
type StartCampaign struct {
	Borrowers []borrowers.Borrower `json:"borrowers"`
}

// StartCampaignFunc runs the campaign-start flow for one borrower.
type StartCampaignFunc func(ctx context.Context, b borrowers.Borrower)

// CallStatusFunc observes relayed call progress frames.
type CallStatusFunc func(ctx context.Context, phone, status, message, room string)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// Hub fans realtime events out to every connected client: websocket
// consumers, legacy raw-socket consumers, and (through the optional redis
// bridge) other hub instances. Inbound frames from agents are relayed to
// all clients and, for conversation turns, persisted.
type Hub struct {
	id  string
	log *slog.Logger

	upgrader websocket.Upgrader

	mu         sync.Mutex
	wsClients  map[string]*wsClient
	rawClients map[string]*rawClient

	startCampaign StartCampaignFunc
	onCallStatus  CallStatusFunc
	transcripts   conversations.Store
	publish       func(Frame)
}

func New(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		id:  uuid.NewString(),
		log: log.With("component", "hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The operator console is served from another origin in dev.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		wsClients:  map[string]*wsClient{},
		rawClients: map[string]*rawClient{},
	}
}

// OnStartCampaign installs the campaign-start flow. Must be set before the
// hub accepts connections.
func (h *Hub) OnStartCampaign(fn StartCampaignFunc) { h.startCampaign = fn }

// OnCallStatus installs an observer for relayed call progress. Must be set
// before the hub accepts connections.
func (h *Hub) OnCallStatus(fn CallStatusFunc) { h.onCallStatus = fn }

// PersistConversations stores relayed conversation turns.
func (h *Hub) PersistConversations(store conversations.Store) { h.transcripts = store }

// Broadcast publishes an event frame to every consumer, local and bridged.
func (h *Hub) Broadcast(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.log.Error("broadcast encode failed", "event", event, "err", err)
		return
	}
	f := Frame{Event: event, Data: payload, Origin: h.id}
	h.deliverLocal(f)
	if h.publish != nil {
		h.publish(f)
	}
}

func (h *Hub) deliverLocal(f Frame) {
	msg, err := json.Marshal(Frame{Event: f.Event, Data: f.Data})
	if err != nil {
		return
	}
	flat := flatten(f)

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.wsClients {
		if !c.enqueue(msg) {
			h.log.Warn("dropping slow websocket client", "client_id", id)
			c.close()
			delete(h.wsClients, id)
		}
	}
	for id, c := range h.rawClients {
		if !c.enqueue(flat) {
			h.log.Warn("dropping slow raw client", "client_id", id)
			c.close()
			delete(h.rawClients, id)
		}
	}
}

// flatten converts the enveloped frame to the legacy flat shape: the event
// name and the data fields in one object, newline-terminated by the raw
// writer.
func flatten(f Frame) []byte {
	fields := map[string]any{}
	if len(f.Data) > 0 {
		_ = json.Unmarshal(f.Data, &fields)
	}
	fields["event"] = f.Event
	out, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return out
}

// HandleWS upgrades an HTTP request to a websocket client connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	id := uuid.NewString()
	c := &wsClient{conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	h.wsClients[id] = c
	h.mu.Unlock()
	h.log.Debug("websocket client connected", "client_id", id)

	go c.writePump()

	defer func() {
		h.mu.Lock()
		if cur, ok := h.wsClients[id]; ok && cur == c {
			delete(h.wsClients, id)
		}
		h.mu.Unlock()
		c.close()
		h.log.Debug("websocket client disconnected", "client_id", id)
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleInbound(r.Context(), msg)
	}
}

// handleInbound processes frames sent by clients or agents. Malformed
// frames are dropped; the channel is not schema-guaranteed.
func (h *Hub) handleInbound(ctx context.Context, msg []byte) {
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		h.log.Debug("dropping malformed inbound frame", "raw_len", len(msg))
		return
	}

	switch f.Event {
	case "start_campaign":
		var sc StartCampaign
		if err := json.Unmarshal(f.Data, &sc); err != nil || len(sc.Borrowers) == 0 {
			h.log.Debug("start_campaign with no borrower")
			return
		}
		if h.startCampaign != nil {
			h.startCampaign(ctx, sc.Borrowers[0])
		}
	case "call_status", "conversation_update":
		// Agent-originated progress: relay to every consumer.
		if f.Event == "conversation_update" {
			h.persistConversation(ctx, f.Data)
		}
		if f.Event == "call_status" && h.onCallStatus != nil {
			var cs struct {
				Phone   string `json:"phone"`
				Status  string `json:"status"`
				Message string `json:"message"`
				Room    string `json:"room"`
			}
			if err := json.Unmarshal(f.Data, &cs); err == nil && cs.Phone != "" && cs.Status != "" {
				h.onCallStatus(ctx, cs.Phone, cs.Status, cs.Message, cs.Room)
			}
		}
		f.Origin = h.id
		h.deliverLocal(f)
		if h.publish != nil {
			h.publish(f)
		}
	default:
		h.log.Debug("ignoring inbound frame", "event", f.Event)
	}
}

func (h *Hub) persistConversation(ctx context.Context, data json.RawMessage) {
	if h.transcripts == nil {
		return
	}
	var m struct {
		Phone     string    `json:"phone"`
		Sender    string    `json:"sender"`
		Text      string    `json:"text"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &m); err != nil || m.Phone == "" || m.Text == "" {
		return
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	err := h.transcripts.Append(ctx, conversations.Message{
		Phone: m.Phone, Sender: m.Sender, Text: m.Text, ReceivedAt: m.Timestamp,
	})
	if err != nil {
		h.log.Error("transcript persist failed", "phone", m.Phone, "err", err)
	}
}

// Close tears down every client connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.wsClients {
		c.close()
		delete(h.wsClients, id)
	}
	for id, c := range h.rawClients {
		c.close()
		delete(h.rawClients, id)
	}
}

// ClientCount reports connected consumers across both transports.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.wsClients) + len(h.rawClients)
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) enqueue(msg []byte) bool {
	if msg == nil {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *wsClient) writePump() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}
