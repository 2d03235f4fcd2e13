// Package session composes the bus, transport, state tracker, and
// workspace into one live agent session: commands out, derived state and
// awaitable lifecycle waits in.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vibewire/vibewire/eventbus"
	"github.com/vibewire/vibewire/retry"
	"github.com/vibewire/vibewire/state"
	"github.com/vibewire/vibewire/transport"
	"github.com/vibewire/vibewire/wire"
	"github.com/vibewire/vibewire/workspace"
)

var (
	// ErrNotConnected is returned by command methods once the session is
	// closed and no connection exists anymore.
	ErrNotConnected = errors.New("session: not connected")

	// ErrWaitTimeout is returned when a wait primitive's deadline passes
	// before a qualifying event arrives.
	ErrWaitTimeout = errors.New("session: wait timed out")

	// ErrClosed rejects waits still pending when the session is closed.
	ErrClosed = errors.New("session: session closed")
)

// DeploymentError is the rejection a deployment wait returns when the
// terminal state is a failure. Callers get an actionable error instead of
// a success-shaped failure state.
type DeploymentError struct {
	Stage   string // "preview" or "cloudflare"
	Message string
}

func (e *DeploymentError) Error() string { return e.Message }

// DefaultWaitTimeout bounds wait primitives unless configured otherwise.
const DefaultWaitTimeout = 10 * time.Minute

// Config describes one agent session. AgentID and URL come from the
// platform's creation call.
type Config struct {
	AgentID      string
	URL          string
	BehaviorType string
	ProjectType  string

	// SessionToken, when set, is sent as session_init on every open.
	// Ephemeral: held in memory for the life of the session only.
	SessionToken string

	// TokenFunc supplies the bearer token injected into the dial
	// headers. Called on every (re)dial.
	TokenFunc func() string

	// Origin overrides the Origin header on the websocket handshake.
	Origin string

	// Dialer replaces the default websocket dialer.
	Dialer transport.Dialer

	Backoff     retry.Policy
	QueueLimit  int
	WaitTimeout time.Duration
}

// Session is a live connection to one build agent.
type Session struct {
	agentID      string
	behaviorType string
	projectType  string
	sessionToken string
	tokenFunc    func() string
	origin       string
	waitTimeout  time.Duration

	bus     *eventbus.Bus
	conn    *transport.Conn
	tracker *state.Tracker
	ws      *workspace.Workspace

	connReady chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates the session and starts connecting immediately. The
// handshake (session_init when credentials are configured, then
// get_conversation_state) is sent on every open, ahead of any queued
// sends.
func New(cfg Config) (*Session, error) {
	if cfg.URL == "" {
		return nil, errors.New("session: websocket url is required")
	}
	if cfg.AgentID == "" {
		return nil, errors.New("session: agent id is required")
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}

	bus := eventbus.New()
	s := &Session{
		agentID:      cfg.AgentID,
		behaviorType: cfg.BehaviorType,
		projectType:  cfg.ProjectType,
		sessionToken: cfg.SessionToken,
		tokenFunc:    cfg.TokenFunc,
		origin:       cfg.Origin,
		waitTimeout:  cfg.WaitTimeout,
		bus:          bus,
		tracker:      state.NewTracker(bus),
		ws:           workspace.New(),
		connReady:    make(chan struct{}),
		done:         make(chan struct{}),
	}

	// The tracker and the workspace subscribe independently to the same
	// canonical message event; registration order fixes their relative
	// delivery order.
	bus.On(transport.EventMessage, func(p any) {
		if msg, ok := p.(*wire.Message); ok {
			s.tracker.Apply(msg)
		}
	})
	bus.On(transport.EventMessage, func(p any) {
		if msg, ok := p.(*wire.Message); ok {
			s.ws.Apply(msg)
		}
	})
	bus.On(transport.EventOpen, func(any) { s.handleOpen() })
	bus.On(transport.EventClose, func(any) { s.syncConnection() })
	bus.On(transport.EventError, func(any) { s.syncConnection() })

	s.tracker.SetConnection(state.ConnConnecting)

	conn, err := transport.Dial(transport.Config{
		URL:        cfg.URL,
		Bus:        bus,
		Dialer:     cfg.Dialer,
		Header:     s.dialHeader,
		Backoff:    cfg.Backoff,
		QueueLimit: cfg.QueueLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	s.conn = conn
	close(s.connReady)
	return s, nil
}

// AgentID returns the platform's agent identifier for this session.
func (s *Session) AgentID() string { return s.agentID }

// BehaviorType returns the agent's protocol flavor (phased or freeform).
func (s *Session) BehaviorType() string { return s.behaviorType }

// ProjectType returns the project type the agent is building.
func (s *Session) ProjectType() string { return s.projectType }

// Bus exposes the session event bus for custom subscribers.
func (s *Session) Bus() *eventbus.Bus { return s.bus }

// State returns the current derived state snapshot.
func (s *Session) State() state.State { return s.tracker.State() }

// Workspace returns the reconstructed remote file workspace.
func (s *Session) Workspace() *workspace.Workspace { return s.ws }

// Close permanently tears the session down: the transport stops
// reconnecting, queued sends are dropped, and every pending wait rejects
// with ErrClosed. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
		s.tracker.SetConnection(state.ConnDisconnected)
		s.bus.Clear()
	})
	return nil
}

// --- commands ---

// GenerateAll asks the agent to generate every remaining file.
func (s *Session) GenerateAll() error { return s.send(wire.Command(wire.CmdGenerateAll)) }

// Stop pauses generation.
func (s *Session) Stop() error { return s.send(wire.Command(wire.CmdStopGeneration)) }

// Resume continues a stopped generation.
func (s *Session) Resume() error { return s.send(wire.Command(wire.CmdResumeGeneration)) }

// RequestPreview asks for a preview deployment.
func (s *Session) RequestPreview() error { return s.send(wire.Command(wire.CmdPreview)) }

// Deploy asks for a Cloudflare Workers deployment.
func (s *Session) Deploy() error { return s.send(wire.Command(wire.CmdDeploy)) }

// RequestConversationState asks the agent to resend its conversation.
func (s *Session) RequestConversationState() error {
	return s.send(wire.Command(wire.CmdGetConversationState))
}

// ClearConversation wipes the agent's conversation history.
func (s *Session) ClearConversation() error {
	return s.send(wire.Command(wire.CmdClearConversation))
}

// Suggest sends a free-text user suggestion to the agent.
func (s *Session) Suggest(message string) error {
	if message == "" {
		return errors.New("session: suggestion message is empty")
	}
	return s.send(wire.UserSuggestion(message))
}

func (s *Session) send(cm wire.ClientMessage) error {
	select {
	case <-s.done:
		return ErrNotConnected
	default:
	}
	data, err := json.Marshal(cm)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", cm.Type, err)
	}
	if err := s.conn.Send(data); err != nil {
		return ErrNotConnected
	}
	return nil
}

// --- transport lifecycle ---

func (s *Session) handleOpen() {
	<-s.connReady
	s.tracker.SetConnection(state.ConnConnected)

	// Handshake, in fixed order, synchronously inside the open handler so
	// both messages hit the wire before the pending queue flushes.
	if s.sessionToken != "" {
		s.sendNow(wire.SessionInit(s.sessionToken))
	}
	s.sendNow(wire.Command(wire.CmdGetConversationState))
}

func (s *Session) sendNow(cm wire.ClientMessage) {
	data, err := json.Marshal(cm)
	if err != nil {
		return
	}
	_ = s.conn.Send(data)
}

func (s *Session) syncConnection() {
	select {
	case <-s.done:
		return
	default:
	}
	<-s.connReady
	switch s.conn.Status() {
	case transport.StatusConnected:
		s.tracker.SetConnection(state.ConnConnected)
	case transport.StatusConnecting:
		s.tracker.SetConnection(state.ConnConnecting)
	default:
		s.tracker.SetConnection(state.ConnDisconnected)
	}
}

func (s *Session) dialHeader() http.Header {
	h := http.Header{}
	if s.origin != "" {
		h.Set("Origin", s.origin)
	}
	if s.tokenFunc != nil {
		if token := s.tokenFunc(); token != "" {
			h.Set("Authorization", "Bearer "+token)
		}
	}
	return h
}
