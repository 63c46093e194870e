package hub

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// rawClient is a legacy plain-TCP consumer. It only receives: frames are
// written as newline-delimited flat JSON objects. Anything the peer sends
// is treated as inbound frames in the same flat shape.
type rawClient struct {
	conn net.Conn
	send chan []byte
	once sync.Once
}

func (c *rawClient) enqueue(msg []byte) bool {
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

func (c *rawClient) writePump() {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if _, err := c.conn.Write(append(msg, '\n')); err != nil {
			return
		}
	}
}

func (c *rawClient) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

// ServeRaw accepts legacy raw-socket consumers on ln until ctx is done or
// the listener is closed. Callers own the listener lifecycle.
func (h *Hub) ServeRaw(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			h.log.Warn("raw accept failed", "err", err)
			return
		}
		go h.serveRawConn(ctx, conn)
	}
}

func (h *Hub) serveRawConn(ctx context.Context, conn net.Conn) {
	id := uuid.NewString()
	c := &rawClient{conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	h.rawClients[id] = c
	h.mu.Unlock()
	h.log.Debug("raw client connected", "client_id", id, "remote", conn.RemoteAddr().String())

	go c.writePump()

	defer func() {
		h.mu.Lock()
		if cur, ok := h.rawClients[id]; ok && cur == c {
			delete(h.rawClients, id)
		}
		h.mu.Unlock()
		c.close()
		h.log.Debug("raw client disconnected", "client_id", id)
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		h.handleRawInbound(ctx, line)
	}
}

// handleRawInbound lifts a flat legacy frame into the enveloped shape and
// runs it through the shared inbound path.
func (h *Hub) handleRawInbound(ctx context.Context, line []byte) {
	event, data, ok := unflatten(line)
	if !ok {
		h.log.Debug("dropping malformed raw frame", "raw_len", len(line))
		return
	}
	enveloped, err := jsonMarshalFrame(event, data)
	if err != nil {
		return
	}
	h.handleInbound(ctx, enveloped)
}
