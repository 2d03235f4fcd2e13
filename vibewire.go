// Package vibewire is the top-level entry point for the vibewire client
// runtime.
//
// Use the Builder to compose a client:
//
//	client, err := vibewire.NewBuilder().Build()
//	sess, err := client.CreateApp(ctx, vibewire.CreateAppRequest{Query: "a todo app"}, nil)
//
// Or customize every component:
//
//	client, err := vibewire.NewBuilder().
//	    WithBaseURL("https://build.example.com").
//	    WithToken(token).
//	    WithBackoff(myPolicy).
//	    Build()
package vibewire

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vibewire/vibewire/api"
	"github.com/vibewire/vibewire/retry"
	"github.com/vibewire/vibewire/session"
	"github.com/vibewire/vibewire/transport"
)

// CreateAppRequest describes the app to build.
type CreateAppRequest = api.CreateAppRequest

// Config holds top-level configuration for a vibewire client.
type Config struct {
	// BaseURL is the platform API base URL (default from VIBEWIRE_SERVER_URL).
	BaseURL string

	// Origin overrides the Origin header on websocket handshakes.
	Origin string

	// QueueLimit bounds the per-session offline send queue (default 1000).
	QueueLimit int

	// WaitTimeout bounds session wait primitives (default 10m).
	WaitTimeout time.Duration
}

// Builder constructs a vibewire Client.
type Builder struct {
	config  Config
	httpc   *http.Client
	token   func() string
	dialer  transport.Dialer
	backoff retry.Policy
}

// NewBuilder creates a new Builder with sensible defaults.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig sets the client configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithBaseURL sets the platform API base URL.
func (b *Builder) WithBaseURL(url string) *Builder {
	b.config.BaseURL = url
	return b
}

// WithToken sets a static API token.
func (b *Builder) WithToken(token string) *Builder {
	b.token = func() string { return token }
	return b
}

// WithTokenFunc sets a dynamic token source, called per request and per
// websocket (re)dial.
func (b *Builder) WithTokenFunc(fn func() string) *Builder {
	b.token = fn
	return b
}

// WithHTTPClient sets the HTTP client used for platform API calls.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpc = c
	return b
}

// WithDialer replaces the default websocket dialer.
func (b *Builder) WithDialer(d transport.Dialer) *Builder {
	b.dialer = d
	return b
}

// WithBackoff sets the reconnect/retry backoff policy.
func (b *Builder) WithBackoff(p retry.Policy) *Builder {
	b.backoff = p
	return b
}

// WithQueueLimit bounds the per-session offline send queue.
func (b *Builder) WithQueueLimit(n int) *Builder {
	b.config.QueueLimit = n
	return b
}

// Build creates the Client. Missing components are filled with defaults.
func (b *Builder) Build() (*Client, error) {
	if err := applyDefaults(b); err != nil {
		return nil, err
	}

	opts := []api.Option{api.WithHTTPClient(b.httpc)}
	if b.token != nil {
		opts = append(opts, api.WithTokenFunc(b.token))
	}
	apiClient, err := api.New(b.config.BaseURL, opts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		config:  b.config,
		api:     apiClient,
		token:   b.token,
		dialer:  b.dialer,
		backoff: b.backoff,
	}, nil
}

// Client creates and attaches to build agent sessions.
type Client struct {
	config  Config
	api     *api.Client
	token   func() string
	dialer  transport.Dialer
	backoff retry.Policy
}

// API returns the underlying platform API client for direct access.
func (c *Client) API() *api.Client { return c.api }

// CreateApp starts a new build agent and returns a live session attached
// to it. Streaming creation chunks are surfaced through onChunk (may be
// nil).
func (c *Client) CreateApp(ctx context.Context, req CreateAppRequest, onChunk func(string)) (*session.Session, error) {
	desc, err := c.api.CreateApp(ctx, req, onChunk)
	if err != nil {
		return nil, err
	}
	return c.attach(desc)
}

// Attach connects to an existing agent and returns a live session.
func (c *Client) Attach(ctx context.Context, agentID string) (*session.Session, error) {
	desc, err := c.api.Connect(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return c.attach(desc)
}

// BuildAndWait creates an app and blocks until it is deployable, then
// returns the preview URL together with the still-live session. The
// session is closed on error.
func (c *Client) BuildAndWait(ctx context.Context, req CreateAppRequest) (string, *session.Session, error) {
	sess, err := c.CreateApp(ctx, req, nil)
	if err != nil {
		return "", nil, err
	}
	url, err := sess.WaitDeployable(ctx)
	if err != nil {
		sess.Close()
		return "", nil, fmt.Errorf("waiting for deployable build: %w", err)
	}
	return url, sess, nil
}

func (c *Client) attach(desc *api.AppSession) (*session.Session, error) {
	return session.New(session.Config{
		AgentID:      desc.AgentID,
		URL:          desc.WebsocketURL,
		BehaviorType: desc.BehaviorType,
		ProjectType:  desc.ProjectType,
		TokenFunc:    c.token,
		Origin:       c.config.Origin,
		Dialer:       c.dialer,
		Backoff:      c.backoff,
		QueueLimit:   c.config.QueueLimit,
		WaitTimeout:  c.config.WaitTimeout,
	})
}
