package realtime

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"loanvoice-platform/internal/events"
)

type readResult struct {
	b   []byte
	err error
}

// fakeTransport scripts dial outcomes and message reads.
type fakeTransport struct {
	dialErr func(attempt int) error

	mu    sync.Mutex
	dials int
	quit  chan struct{}
	msgs  chan readResult
}

func newFakeTransport(dialErr func(int) error) *fakeTransport {
	return &fakeTransport{dialErr: dialErr, msgs: make(chan readResult, 16)}
}

func (f *fakeTransport) Kind() events.TransportKind { return events.TransportWebSocket }

func (f *fakeTransport) Dial(ctx context.Context) error {
	f.mu.Lock()
	f.dials++
	attempt := f.dials
	f.mu.Unlock()
	if f.dialErr != nil {
		if err := f.dialErr(attempt); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.quit = make(chan struct{})
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Read() ([]byte, error) {
	f.mu.Lock()
	quit := f.quit
	f.mu.Unlock()
	if quit == nil {
		return nil, io.EOF
	}
	select {
	case <-quit:
		return nil, io.EOF
	case r := <-f.msgs:
		return r.b, r.err
	}
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quit != nil {
		close(f.quit)
		f.quit = nil
	}
	return nil
}

func (f *fakeTransport) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func collectConnections(bus *events.Bus) <-chan events.ConnectionEvent {
	ch := make(chan events.ConnectionEvent, 32)
	bus.Subscribe(events.KindConnection, func(ev events.Event) {
		ch <- *ev.Connection
	})
	return ch
}

func TestManager_ExhaustedRetriesReportLostOnce(t *testing.T) {
	bus := events.NewBus()
	bus.Start(context.Background())
	defer bus.Close()
	conns := collectConnections(bus)

	tr := newFakeTransport(func(int) error { return errors.New("refused") })
	m := NewManager(nil, tr, bus)
	m.ReconnectDelay = time.Millisecond

	m.Connect(context.Background())

	var lost int
	deadline := time.After(2 * time.Second)
loop:
	for {
		select {
		case ev := <-conns:
			if ev.Lost {
				lost++
			}
		case <-deadline:
			t.Fatalf("no lost event")
		case <-time.After(100 * time.Millisecond):
			break loop
		}
	}
	if lost != 1 {
		t.Fatalf("expected exactly one lost event, got %d", lost)
	}
	if got := tr.dialCount(); got != 5 {
		t.Fatalf("expected 5 dial attempts, got %d", got)
	}
	m.Disconnect()
}

func TestManager_DeliversNormalizedEvents(t *testing.T) {
	bus := events.NewBus()
	bus.Start(context.Background())
	defer bus.Close()

	calls := make(chan events.CallStatusChanged, 1)
	bus.Subscribe(events.KindCallStatusChanged, func(ev events.Event) {
		calls <- *ev.CallStatus
	})

	tr := newFakeTransport(nil)
	m := NewManager(nil, tr, bus)
	m.Connect(context.Background())
	defer m.Disconnect()

	tr.msgs <- readResult{b: []byte(`{"event":"call_status","data":{"phone":"9876543210","status":"completed"}}`)}

	select {
	case ev := <-calls:
		if ev.Phone != "9876543210" || ev.Status != "completed" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestManager_MalformedMessagesDropped(t *testing.T) {
	bus := events.NewBus()
	bus.Start(context.Background())
	defer bus.Close()

	calls := make(chan events.CallStatusChanged, 2)
	bus.Subscribe(events.KindCallStatusChanged, func(ev events.Event) {
		calls <- *ev.CallStatus
	})

	tr := newFakeTransport(nil)
	m := NewManager(nil, tr, bus)
	m.Connect(context.Background())
	defer m.Disconnect()

	tr.msgs <- readResult{b: []byte(`not json at all`)}
	tr.msgs <- readResult{b: []byte(`{"event":"call_status","data":{"phone":"9876543210","status":"failed"}}`)}

	select {
	case ev := <-calls:
		if ev.Status != "failed" {
			t.Fatalf("expected the valid event, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("valid event not delivered after malformed one")
	}
}

func TestManager_ReconnectsAfterDrop(t *testing.T) {
	bus := events.NewBus()
	bus.Start(context.Background())
	defer bus.Close()
	conns := collectConnections(bus)

	tr := newFakeTransport(nil)
	m := NewManager(nil, tr, bus)
	m.ReconnectDelay = time.Millisecond
	m.Connect(context.Background())
	defer m.Disconnect()

	waitConn := func(want bool) events.ConnectionEvent {
		t.Helper()
		for {
			select {
			case ev := <-conns:
				if ev.Connected == want {
					return ev
				}
			case <-time.After(time.Second):
				t.Fatalf("no connection event (want connected=%v)", want)
			}
		}
	}

	waitConn(true)
	tr.msgs <- readResult{err: errors.New("broken pipe")}
	waitConn(false)
	waitConn(true)

	if got := tr.dialCount(); got < 2 {
		t.Fatalf("expected a redial, dials=%d", got)
	}
}

func TestManager_ConnectRestartsAfterExhaustion(t *testing.T) {
	bus := events.NewBus()
	bus.Start(context.Background())
	defer bus.Close()
	conns := collectConnections(bus)

	tr := newFakeTransport(func(attempt int) error {
		if attempt <= 5 {
			return errors.New("refused")
		}
		return nil
	})
	m := NewManager(nil, tr, bus)
	m.ReconnectDelay = time.Millisecond

	m.Connect(context.Background())

	for {
		select {
		case ev := <-conns:
			if ev.Lost {
				goto exhausted
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no lost event")
		}
	}
exhausted:
	if got := tr.dialCount(); got != 5 {
		t.Fatalf("expected 5 dial attempts before giving up, got %d", got)
	}

	// The backend is healthy again; a fresh Connect must start a new cycle
	// without an intervening Disconnect. The lost event races the loop's
	// exit by a hair, so retry until the new cycle takes.
	restart := time.Now().Add(2 * time.Second)
	for tr.dialCount() == 5 {
		if time.Now().After(restart) {
			t.Fatalf("Connect after exhaustion never redialed, dials=%d", tr.dialCount())
		}
		m.Connect(context.Background())
		time.Sleep(2 * time.Millisecond)
	}
	defer m.Disconnect()

	for {
		select {
		case ev := <-conns:
			if ev.Connected {
				if got := tr.dialCount(); got != 6 {
					t.Fatalf("expected a sixth dial, got %d", got)
				}
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no connected event after reconnect, dials=%d", tr.dialCount())
		}
	}
}

func TestManager_DisconnectIdempotent(t *testing.T) {
	bus := events.NewBus()
	bus.Start(context.Background())
	defer bus.Close()

	tr := newFakeTransport(nil)
	m := NewManager(nil, tr, bus)
	m.Connect(context.Background())
	m.Disconnect()
	m.Disconnect()
}

func TestManager_ConnectIdempotent(t *testing.T) {
	bus := events.NewBus()
	bus.Start(context.Background())
	defer bus.Close()

	tr := newFakeTransport(nil)
	m := NewManager(nil, tr, bus)
	m.Connect(context.Background())
	m.Connect(context.Background())
	defer m.Disconnect()

	time.Sleep(50 * time.Millisecond)
	if got := tr.dialCount(); got != 1 {
		t.Fatalf("expected one live connection, dials=%d", got)
	}
}
