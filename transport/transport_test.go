package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/vibewire/vibewire/eventbus"
	"github.com/vibewire/vibewire/retry"
	"github.com/vibewire/vibewire/wire"
)

// --- fakes ---

type fakeSocket struct {
	mu        sync.Mutex
	writes    []string
	writeErr  error
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() ([]byte, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case <-s.closed:
		return nil, errors.New("socket closed")
	}
}

func (s *fakeSocket) WriteMessage(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes = append(s.writes, string(data))
	return nil
}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) push(frame string) { s.frames <- []byte(frame) }

// drop simulates the server side going away.
func (s *fakeSocket) drop() { s.Close() }

func (s *fakeSocket) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

type fakeDialer struct {
	mu       sync.Mutex
	socks    []*fakeSocket
	dials    int
	failures int           // fail the first N dials
	gate     chan struct{} // when set, dials block until the gate closes
	headers  []http.Header
}

func (d *fakeDialer) dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.headers = append(d.headers, header)
	if d.dials <= d.failures {
		return nil, errors.New("dial refused")
	}
	s := newFakeSocket()
	d.socks = append(d.socks, s)
	return s, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.socks) {
		return nil
	}
	return d.socks[i]
}

// --- helpers ---

var fastBackoff = retry.Policy{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxRetries: 5}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func eventChan(bus *eventbus.Bus, event string) <-chan any {
	ch := make(chan any, 32)
	bus.On(event, func(p any) { ch <- p })
	return ch
}

func dialFake(t *testing.T, cfg Config) (*Conn, *fakeDialer) {
	t.Helper()
	d := &fakeDialer{}
	cfg.Dialer = d.dial
	if cfg.Backoff.IsZero() {
		cfg.Backoff = fastBackoff
	}
	c, err := Dial(cfg)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, d
}

// --- tests ---

func TestConnectsOnConstruction(t *testing.T) {
	bus := eventbus.New()
	opened := eventChan(bus, EventOpen)

	c, d := dialFake(t, Config{URL: "ws://agent", Bus: bus})

	select {
	case <-opened:
	case <-time.After(time.Second):
		t.Fatal("no open event")
	}
	if d.dialCount() != 1 {
		t.Fatalf("dials = %d, want 1", d.dialCount())
	}
	if c.Status() != StatusConnected {
		t.Fatalf("status = %q", c.Status())
	}
}

func TestQueuedSendsFlushFIFOOnOpen(t *testing.T) {
	bus := eventbus.New()
	gate := make(chan struct{})
	d := &fakeDialer{gate: gate}

	c, err := Dial(Config{URL: "ws://agent", Bus: bus, Dialer: d.dial, Backoff: fastBackoff})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	c.Send([]byte(`{"type":"one"}`))
	c.Send([]byte(`{"type":"two"}`))
	c.Send([]byte(`{"type":"three"}`))

	if got := c.Pending(); got != 3 {
		t.Fatalf("pending = %d, want 3", got)
	}
	close(gate)

	waitFor(t, time.Second, "flush", func() {
		s := d.socket(0)
		return s != nil && len(s.Writes()) == 3
	})
	writes := d.socket(0).Writes()
	want := []string{`{"type":"one"}`, `{"type":"two"}`, `{"type":"three"}`}
	for i := range want {
		if writes[i] != want[i] {
			t.Fatalf("writes = %v, want %v", writes, want)
		}
	}
	if c.Pending() != 0 {
		t.Fatalf("pending after flush = %d", c.Pending())
	}
}

func TestOpenHandlerSendsPrecedeQueueFlush(t *testing.T) {
	bus := eventbus.New()
	gate := make(chan struct{})
	d := &fakeDialer{gate: gate}

	var c *Conn
	bus.On(EventOpen, func(any) {
		c.Send([]byte(`{"type":"session_init"}`))
		c.Send([]byte(`{"type":"get_conversation_state"}`))
	})

	c, err := Dial(Config{URL: "ws://agent", Bus: bus, Dialer: d.dial, Backoff: fastBackoff})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	c.Send([]byte(`{"type":"queued"}`))
	close(gate)

	waitFor(t, time.Second, "all writes", func() {
		s := d.socket(0)
		return s != nil && len(s.Writes()) == 3
	})
	writes := d.socket(0).Writes()
	want := []string{`{"type":"session_init"}`, `{"type":"get_conversation_state"}`, `{"type":"queued"}`}
	for i := range want {
		if writes[i] != want[i] {
			t.Fatalf("wire order = %v, want %v", writes, want)
		}
	}
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	bus := eventbus.New()
	errs := eventChan(bus, EventError)
	gate := make(chan struct{})
	defer close(gate)
	d := &fakeDialer{gate: gate}

	c, err := Dial(Config{URL: "ws://agent", Bus: bus, Dialer: d.dial, Backoff: fastBackoff, QueueLimit: 2})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	c.Send([]byte(`{"type":"first"}`))
	c.Send([]byte(`{"type":"second"}`))
	c.Send([]byte(`{"type":"third"}`)) // drops first

	if got := c.Pending(); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}

	overflows := 0
	for done := false; !done; {
		select {
		case p := <-errs:
			if errors.Is(p.(error), ErrQueueOverflow) {
				overflows++
			}
		default:
			done = true
		}
	}
	if overflows != 1 {
		t.Fatalf("overflow events = %d, want 1", overflows)
	}
}

func TestReconnectAfterSocketDrop(t *testing.T) {
	bus := eventbus.New()
	opened := eventChan(bus, EventOpen)
	closed := eventChan(bus, EventClose)

	_, d := dialFake(t, Config{URL: "ws://agent", Bus: bus})
	<-opened

	d.socket(0).drop()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("no close event after drop")
	}

	waitFor(t, time.Second, "reconnect", func() { return d.dialCount() == 2 })

	// Exactly one new socket: no duplicate reconnect from the same drop.
	time.Sleep(20 * time.Millisecond)
	if d.dialCount() != 2 {
		t.Fatalf("dials = %d, want 2", d.dialCount())
	}
}

func TestCloseDisablesReconnect(t *testing.T) {
	bus := eventbus.New()
	opened := eventChan(bus, EventOpen)

	c, d := dialFake(t, Config{URL: "ws://agent", Bus: bus})
	<-opened

	c.Send([]byte(`{"type":"x"}`)) // goes to the wire; queue stays empty
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	d.socket(0).drop()
	time.Sleep(20 * time.Millisecond)
	if d.dialCount() != 1 {
		t.Fatalf("dials after close = %d, want 1", d.dialCount())
	}
	if c.Status() != StatusDisconnected {
		t.Fatalf("status = %q", c.Status())
	}
	if err := c.Send([]byte(`{}`)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after close = %v, want ErrClosed", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestRetriesExhausted(t *testing.T) {
	bus := eventbus.New()
	errs := eventChan(bus, EventError)
	d := &fakeDialer{failures: 100}

	policy := retry.Policy{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxRetries: 2}
	c, err := Dial(Config{URL: "ws://agent", Bus: bus, Dialer: d.dial, Backoff: policy})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	deadline := time.After(time.Second)
	for {
		select {
		case p := <-errs:
			if errors.Is(p.(error), ErrRetriesExhausted) {
				if got := d.dialCount(); got != 3 { // first attempt + 2 retries
					t.Fatalf("dials = %d, want 3", got)
				}
				if c.Status() != StatusDisconnected {
					t.Fatalf("status = %q", c.Status())
				}
				return
			}
		case <-deadline:
			t.Fatal("never saw ErrRetriesExhausted")
		}
	}
}

func TestMessageAndSugarEvents(t *testing.T) {
	bus := eventbus.New()
	opened := eventChan(bus, EventOpen)

	var order []string
	var mu sync.Mutex
	record := func(tag string) func(any) {
		return func(any) {
			mu.Lock()
			order = append(order, tag)
			mu.Unlock()
		}
	}
	bus.On(EventMessage, record("message"))
	bus.On(string(wire.CategoryGeneration), record("generation"))

	msgs := eventChan(bus, EventMessage)

	_, d := dialFake(t, Config{URL: "ws://agent", Bus: bus})
	<-opened

	d.socket(0).push(`{"type":"generation_started","totalFiles":4}`)

	select {
	case p := <-msgs:
		m := p.(*wire.Message)
		if m.Type != wire.TypeGenerationStarted || m.TotalFiles != 4 {
			t.Fatalf("message = %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("no message event")
	}

	waitFor(t, time.Second, "sugar event", func() {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if order[0] != "message" || order[1] != "generation" {
		t.Fatalf("order = %v, want message before sugar", order)
	}
}

func TestUnclassifiedFrameGoesToRaw(t *testing.T) {
	bus := eventbus.New()
	opened := eventChan(bus, EventOpen)
	raws := eventChan(bus, EventRaw)
	msgs := eventChan(bus, EventMessage)

	_, d := dialFake(t, Config{URL: "ws://agent", Bus: bus})
	<-opened

	d.socket(0).push(`{"mystery":true}`)

	select {
	case <-raws:
	case <-time.After(time.Second):
		t.Fatal("no raw event")
	}
	select {
	case p := <-msgs:
		t.Fatalf("unclassified frame published as typed message: %v", p)
	default:
	}
}

func TestParseFailureTriggersReconnect(t *testing.T) {
	bus := eventbus.New()
	opened := eventChan(bus, EventOpen)
	errs := eventChan(bus, EventError)

	_, d := dialFake(t, Config{URL: "ws://agent", Bus: bus})
	<-opened

	d.socket(0).push(`this is not json`)

	select {
	case <-errs:
	case <-time.After(time.Second):
		t.Fatal("no error event for parse failure")
	}
	waitFor(t, time.Second, "reconnect after parse failure", func() { return d.dialCount() == 2 })
}

func TestDialHeaderRefreshedPerAttempt(t *testing.T) {
	bus := eventbus.New()
	opened := eventChan(bus, EventOpen)

	token := "t-0"
	var mu sync.Mutex
	headerFn := func() http.Header {
		mu.Lock()
		defer mu.Unlock()
		h := http.Header{}
		h.Set("Authorization", "Bearer "+token)
		return h
	}

	_, d := dialFake(t, Config{URL: "ws://agent", Bus: bus, Header: headerFn})
	<-opened

	mu.Lock()
	token = "t-1"
	mu.Unlock()

	d.socket(0).drop()
	waitFor(t, time.Second, "redial", func() { return d.dialCount() == 2 })

	d.mu.Lock()
	defer d.mu.Unlock()
	if got := d.headers[0].Get("Authorization"); got != "Bearer t-0" {
		t.Fatalf("first dial header = %q", got)
	}
	if got := d.headers[1].Get("Authorization"); got != "Bearer t-1" {
		t.Fatalf("second dial header = %q", got)
	}
}

func TestWriteFailureRequeuesAndReconnects(t *testing.T) {
	bus := eventbus.New()
	opened := eventChan(bus, EventOpen)

	c, d := dialFake(t, Config{URL: "ws://agent", Bus: bus})
	<-opened

	s := d.socket(0)
	s.mu.Lock()
	s.writeErr = errors.New("broken pipe")
	s.mu.Unlock()

	if err := c.Send([]byte(`{"type":"x"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	// The failed message is queued again and delivered on the next socket.
	waitFor(t, time.Second, "redelivery", func() {
		next := d.socket(1)
		return next != nil && len(next.Writes()) == 1
	})
	if got := d.socket(1).Writes()[0]; got != `{"type":"x"}` {
		t.Fatalf("redelivered = %q", got)
	}
}
