package realtime

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"loanvoice-platform/internal/events"
)

// Transport is one realtime channel to the backend. Implementations must be
// safe for one reader plus concurrent Close.
type Transport interface {
	Kind() events.TransportKind

	// Dial establishes the connection. Calling Dial on an open transport
	// is an error; the manager owns the lifecycle.
	Dial(ctx context.Context) error

	// Read blocks for the next raw message. It returns an error once the
	// connection is closed or broken.
	Read() ([]byte, error)

	// Close releases the connection. Safe to call on a closed transport.
	Close() error
}

// WebSocketTransport speaks the multiplexed event channel.
type WebSocketTransport struct {
	URL string

	// HandshakeTimeout bounds the dial; zero means 10s.
	HandshakeTimeout time.Duration

	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *WebSocketTransport) Kind() events.TransportKind { return events.TransportWebSocket }

func (t *WebSocketTransport) Dial(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return fmt.Errorf("websocket transport already connected")
	}

	timeout := t.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, t.URL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial %s: %w", t.URL, err)
	}
	t.conn = conn
	return nil
}

func (t *WebSocketTransport) Read() ([]byte, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("websocket transport not connected")
	}
	_, msg, err := conn.ReadMessage()
	return msg, err
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// RawSocketTransport speaks the legacy newline-delimited JSON channel.
type RawSocketTransport struct {
	Addr string

	// DialTimeout bounds the dial; zero means 10s.
	DialTimeout time.Duration

	mu      sync.Mutex
	conn    net.Conn
	scanner *bufio.Scanner
}

func (t *RawSocketTransport) Kind() events.TransportKind { return events.TransportRawSocket }

func (t *RawSocketTransport) Dial(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return fmt.Errorf("raw socket transport already connected")
	}

	timeout := t.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return fmt.Errorf("raw socket dial %s: %w", t.Addr, err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	t.conn = conn
	t.scanner = scanner
	return nil
}

func (t *RawSocketTransport) Read() ([]byte, error) {
	t.mu.Lock()
	scanner := t.scanner
	t.mu.Unlock()
	if scanner == nil {
		return nil, fmt.Errorf("raw socket transport not connected")
	}
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("raw socket closed")
	}
	line := scanner.Bytes()
	out := make([]byte, len(line))
	copy(out, line)
	return out, nil
}

func (t *RawSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.scanner = nil
	return err
}
