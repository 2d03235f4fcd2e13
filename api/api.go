// Package api is the HTTP client for the platform's agent endpoints: the
// streaming creation call and the connect call for pre-existing agents.
package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vibewire/vibewire/retry"
)

// AppSession is the session-start descriptor the platform issues: the
// identity and websocket address of a build agent.
type AppSession struct {
	AgentID      string `json:"agentId"`
	WebsocketURL string `json:"websocketUrl"`
	BehaviorType string `json:"behaviorType"`
	ProjectType  string `json:"projectType"`
}

// CreateAppRequest describes the app to build.
type CreateAppRequest struct {
	Query       string `json:"query"`
	ProjectType string `json:"projectType,omitempty"`
}

// Client talks to the platform API.
type Client struct {
	baseURL string
	httpc   *http.Client
	token   func() string
	policy  retry.Policy
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpc = c }
}

// WithTokenFunc sets the bearer token source for outgoing requests.
func WithTokenFunc(fn func() string) Option {
	return func(cl *Client) { cl.token = fn }
}

// WithRetryPolicy sets the backoff used for transient failures on
// idempotent calls.
func WithRetryPolicy(p retry.Policy) Option {
	return func(cl *Client) { cl.policy = p }
}

// New creates a client for the platform at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("api: base url is required")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 10 * time.Minute},
		policy:  retry.Policy{InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, MaxRetries: 3, JitterFraction: 0.25},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// CreateApp starts a new build agent. The response is newline-delimited
// JSON: the first object is the session-start descriptor, later objects
// may carry streaming text chunks surfaced through onChunk (which may be
// nil). The descriptor is returned after the stream ends.
func (c *Client) CreateApp(ctx context.Context, req CreateAppRequest, onChunk func(string)) (*AppSession, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("api: query is required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/agent", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("creating app: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var descriptor *AppSession
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if descriptor == nil {
			var first AppSession
			if err := json.Unmarshal([]byte(line), &first); err != nil {
				return nil, fmt.Errorf("parsing session descriptor: %w", err)
			}
			if first.AgentID == "" || first.WebsocketURL == "" {
				return nil, fmt.Errorf("incomplete session descriptor: %s", line)
			}
			descriptor = &first
			continue
		}
		var chunk struct {
			Chunk string `json:"chunk"`
		}
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue // tolerate unknown stream objects
		}
		if chunk.Chunk != "" && onChunk != nil {
			onChunk(chunk.Chunk)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading creation stream: %w", err)
	}
	if descriptor == nil {
		return nil, errors.New("api: creation stream ended without a session descriptor")
	}
	return descriptor, nil
}

// Connect resolves the websocket URL for an existing agent. The call is
// idempotent, so transient failures (network errors, 5xx) retry with
// backoff.
func (c *Client) Connect(ctx context.Context, agentID string) (*AppSession, error) {
	if agentID == "" {
		return nil, errors.New("api: agent id is required")
	}

	var sess *AppSession
	err := retry.Do(ctx, c.policy, func() error {
		s, err := c.connectOnce(ctx, agentID)
		if err != nil {
			return err
		}
		sess = s
		return nil
	})
	return sess, err
}

func (c *Client) connectOnce(ctx context.Context, agentID string) (*AppSession, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/agent/"+agentID+"/connect", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to agent %s: %w", agentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, apiError(resp)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, retry.Permanent(apiError(resp))
	}

	var envelope struct {
		Status       string `json:"status"`
		Error        string `json:"error,omitempty"`
		AgentID      string `json:"agentId,omitempty"`
		WebsocketURL string `json:"websocketUrl,omitempty"`
		BehaviorType string `json:"behaviorType,omitempty"`
		ProjectType  string `json:"projectType,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("parsing connect response: %w", err)
	}
	if envelope.Status != "success" {
		return nil, retry.Permanent(fmt.Errorf("connect rejected: %s", envelope.Error))
	}
	if envelope.WebsocketURL == "" {
		return nil, retry.Permanent(errors.New("connect response missing websocket url"))
	}

	id := envelope.AgentID
	if id == "" {
		id = agentID
	}
	return &AppSession{
		AgentID:      id,
		WebsocketURL: envelope.WebsocketURL,
		BehaviorType: envelope.BehaviorType,
		ProjectType:  envelope.ProjectType,
	}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("X-Request-ID", uuid.New().String())
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return fmt.Errorf("server error (%d): %s", resp.StatusCode, msg)
}
