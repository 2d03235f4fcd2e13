package session

import (
	"context"
	"time"

	"github.com/vibewire/vibewire/state"
	"github.com/vibewire/vibewire/wire"
)

// WaitFor blocks until a message published under event satisfies pred (nil
// matches everything), then returns it. The subscription is released on
// settle. It fails with ErrWaitTimeout after the session's wait timeout,
// with ctx.Err() if ctx is cancelled first, and with ErrClosed if the
// session is closed while waiting.
func (s *Session) WaitFor(ctx context.Context, event string, pred func(*wire.Message) bool) (*wire.Message, error) {
	ch := make(chan *wire.Message, 1)
	unsub := s.bus.On(event, func(p any) {
		msg, ok := p.(*wire.Message)
		if !ok {
			return
		}
		if pred != nil && !pred(msg) {
			return
		}
		select {
		case ch <- msg:
		default: // already settled
		}
	})
	defer unsub()

	timer := time.NewTimer(s.waitTimeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		return msg, nil
	case <-timer.C:
		return nil, ErrWaitTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	}
}

// WaitConnected resolves once the agent acknowledges the connection.
// Returns immediately if the session is already connected.
func (s *Session) WaitConnected(ctx context.Context) error {
	if s.tracker.State().Connection == state.ConnConnected {
		return nil
	}
	_, err := s.WaitFor(ctx, string(wire.CategoryConnected), nil)
	return err
}

// WaitGenerationComplete resolves on generation_complete.
func (s *Session) WaitGenerationComplete(ctx context.Context) (*wire.Message, error) {
	return s.WaitFor(ctx, string(wire.CategoryGeneration), func(m *wire.Message) bool {
		return m.Type == wire.TypeGenerationComplete
	})
}

// WaitPhaseValidated resolves when a phase reaches validated.
func (s *Session) WaitPhaseValidated(ctx context.Context) (*wire.Message, error) {
	return s.WaitFor(ctx, string(wire.CategoryPhase), func(m *wire.Message) bool {
		return m.Type == wire.TypePhaseValidated
	})
}

// WaitPreviewDeployed resolves with the preview URL when the preview
// deployment completes, or rejects with a *DeploymentError carrying the
// server's message when it fails.
func (s *Session) WaitPreviewDeployed(ctx context.Context) (string, error) {
	msg, err := s.WaitFor(ctx, string(wire.CategoryPreview), func(m *wire.Message) bool {
		return m.Type == wire.TypeDeploymentCompleted || m.Type == wire.TypeDeploymentFailed
	})
	if err != nil {
		return "", err
	}
	if msg.Type == wire.TypeDeploymentFailed {
		return "", &DeploymentError{Stage: "preview", Message: msg.Error}
	}
	return msg.PreviewURL, nil
}

// WaitCloudflareDeployed resolves with the workers.dev URL when the
// Cloudflare deployment completes, or rejects with a *DeploymentError.
func (s *Session) WaitCloudflareDeployed(ctx context.Context) (string, error) {
	msg, err := s.WaitFor(ctx, string(wire.CategoryCloudflare), func(m *wire.Message) bool {
		return m.Type == wire.TypeCloudflareDeploymentCompleted || m.Type == wire.TypeCloudflareDeploymentError
	})
	if err != nil {
		return "", err
	}
	if msg.Type == wire.TypeCloudflareDeploymentError {
		return "", &DeploymentError{Stage: "cloudflare", Message: msg.Error}
	}
	return msg.DeploymentURL, nil
}

// WaitDeployable resolves when the build is far enough along to preview:
// phased agents on the validated phase, everything else on generation
// complete. Returns the preview URL when one is known by then.
func (s *Session) WaitDeployable(ctx context.Context) (string, error) {
	if s.behaviorType == wire.BehaviorPhased {
		if _, err := s.WaitPhaseValidated(ctx); err != nil {
			return "", err
		}
		return s.tracker.State().PreviewURL, nil
	}
	msg, err := s.WaitGenerationComplete(ctx)
	if err != nil {
		return "", err
	}
	if msg.PreviewURL != "" {
		return msg.PreviewURL, nil
	}
	return s.tracker.State().PreviewURL, nil
}
