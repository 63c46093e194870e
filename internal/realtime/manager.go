package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"loanvoice-platform/internal/events"
)

const (
	defaultMaxAttempts    = 5
	defaultReconnectDelay = 1000 * time.Millisecond
)

// Manager owns the lifecycle of one realtime transport: dial, read loop,
// bounded reconnection, and teardown. Raw messages are normalized and
// published to the bus; transport errors surface as connection events,
// never as panics or synchronous errors.
type Manager struct {
	transport Transport
	bus       *events.Bus
	log       *slog.Logger

	// MaxAttempts and ReconnectDelay default to 5 attempts at 1000 ms.
	// Exported for tests; production code leaves them zero.
	MaxAttempts    int
	ReconnectDelay time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewManager(log *slog.Logger, transport Transport, bus *events.Bus) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		transport: transport,
		bus:       bus,
		log:       log.With("component", "realtime", "transport", string(transport.Kind())),
	}
}

// Connect starts the connection loop. Calling Connect while already running
// is a no-op. The first dial happens asynchronously; failures are reported
// through the bus.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	go m.run(runCtx)
}

// Disconnect tears the connection down and waits for the loop to exit.
// Idempotent: a second Disconnect without an intervening Connect is a no-op.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.running = false
	m.mu.Unlock()

	cancel()
	_ = m.transport.Close()
	<-done
}

func (m *Manager) maxAttempts() int {
	if m.MaxAttempts > 0 {
		return m.MaxAttempts
	}
	return defaultMaxAttempts
}

func (m *Manager) reconnectDelay() time.Duration {
	if m.ReconnectDelay > 0 {
		return m.ReconnectDelay
	}
	return defaultReconnectDelay
}

// run dials with bounded retries, then pumps messages until the connection
// breaks, repeating until retries are exhausted or the context ends. The
// transport is closed on every exit path, and the manager is left ready
// for a fresh Connect whether the loop ended by teardown or exhaustion.
func (m *Manager) run(ctx context.Context) {
	done := m.done
	defer func() {
		m.mu.Lock()
		if m.done == done {
			m.running = false
			m.cancel()
		}
		m.mu.Unlock()
		close(done)
	}()
	defer m.transport.Close()

	for {
		if !m.dialWithRetries(ctx) {
			return
		}

		m.bus.Publish(events.Connection(m.transport.Kind(), true, false, ""))
		err := m.readLoop(ctx)
		if ctx.Err() != nil {
			return
		}

		reason := ""
		if err != nil {
			reason = err.Error()
		}
		m.log.Warn("connection dropped", "err", err)
		m.bus.Publish(events.Connection(m.transport.Kind(), false, false, reason))
		_ = m.transport.Close()
	}
}

// dialWithRetries returns false once attempts are exhausted or ctx ends.
// Exhaustion publishes a single persistent lost event.
func (m *Manager) dialWithRetries(ctx context.Context) bool {
	max := m.maxAttempts()
	var lastErr error
	for attempt := 1; attempt <= max; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		err := m.transport.Dial(ctx)
		if err == nil {
			return true
		}
		lastErr = err
		m.log.Warn("dial failed", "attempt", attempt, "max_attempts", max, "err", err)

		if attempt == max {
			break
		}
		timer := time.NewTimer(m.reconnectDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}

	if ctx.Err() != nil {
		// Torn down mid-dial; not a lost condition.
		return false
	}
	reason := "reconnect attempts exhausted"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	m.log.Error("giving up", "attempts", max)
	m.bus.Publish(events.Connection(m.transport.Kind(), false, true, reason))
	return false
}

func (m *Manager) readLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		raw, err := m.transport.Read()
		if err != nil {
			return err
		}
		ev, ok := events.Normalize(raw, m.transport.Kind())
		if !ok {
			m.log.Debug("dropped malformed event", "raw_len", len(raw))
			continue
		}
		m.bus.Publish(ev)
	}
}
