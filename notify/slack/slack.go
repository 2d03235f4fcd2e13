// Package slack posts session lifecycle notifications to a Slack channel.
//
// Setup:
//  1. Create a Slack app with a bot token (xoxb-...)
//  2. Grant the chat:write scope and invite the bot to your channel
//  3. Set VIBEWIRE_SLACK_BOT_TOKEN and VIBEWIRE_SLACK_CHANNEL
package slack

import (
	"errors"
	"fmt"
	"log"

	"github.com/slack-go/slack"

	"github.com/vibewire/vibewire/eventbus"
	"github.com/vibewire/vibewire/wire"
)

// Session is the slice of a session the notifier observes.
type Session interface {
	AgentID() string
	Bus() *eventbus.Bus
}

// Notifier posts lifecycle messages via the Slack Web API.
type Notifier struct {
	client  *slack.Client
	channel string
	prefix  string
}

// Option configures the Notifier.
type Option func(*Notifier)

// WithPrefix prepends a label to every notification (default "vibewire").
func WithPrefix(prefix string) Option {
	return func(n *Notifier) { n.prefix = prefix }
}

// New creates a Slack notifier posting to the given channel ID.
func New(botToken, channel string, opts ...Option) (*Notifier, error) {
	if botToken == "" {
		return nil, errors.New("slack: bot token is required")
	}
	if channel == "" {
		return nil, errors.New("slack: channel is required")
	}
	n := &Notifier{
		client:  slack.New(botToken),
		channel: channel,
		prefix:  "vibewire",
	}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Name returns the notifier name.
func (n *Notifier) Name() string { return "slack" }

// Watch subscribes to the session's lifecycle events and posts a message
// for each terminal one. Returns an unsubscribe function.
func (n *Notifier) Watch(sess Session) func() {
	bus := sess.Bus()
	agentID := sess.AgentID()

	unsubs := []func(){
		bus.On(string(wire.CategoryGeneration), func(p any) {
			msg, ok := p.(*wire.Message)
			if !ok || msg.Type != wire.TypeGenerationComplete {
				return
			}
			text := fmt.Sprintf("generation complete for agent %s", agentID)
			if msg.PreviewURL != "" {
				text += ", preview: " + msg.PreviewURL
			}
			n.post(text)
		}),
		bus.On(string(wire.CategoryPreview), func(p any) {
			msg, ok := p.(*wire.Message)
			if !ok {
				return
			}
			switch msg.Type {
			case wire.TypeDeploymentCompleted:
				n.post(fmt.Sprintf("preview deployed for agent %s: %s", agentID, msg.PreviewURL))
			case wire.TypeDeploymentFailed:
				n.post(fmt.Sprintf("preview deployment failed for agent %s: %s", agentID, msg.Error))
			}
		}),
		bus.On(string(wire.CategoryCloudflare), func(p any) {
			msg, ok := p.(*wire.Message)
			if !ok {
				return
			}
			switch msg.Type {
			case wire.TypeCloudflareDeploymentCompleted:
				n.post(fmt.Sprintf("cloudflare deployment live for agent %s: %s", agentID, msg.DeploymentURL))
			case wire.TypeCloudflareDeploymentError:
				n.post(fmt.Sprintf("cloudflare deployment failed for agent %s: %s", agentID, msg.Error))
			}
		}),
		bus.On(string(wire.CategoryError), func(p any) {
			msg, ok := p.(*wire.Message)
			if !ok {
				return
			}
			n.post(fmt.Sprintf("agent %s reported an error: %s", agentID, msg.Error))
		}),
	}

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (n *Notifier) post(text string) {
	_, _, err := n.client.PostMessage(
		n.channel,
		slack.MsgOptionText(fmt.Sprintf("[%s] %s", n.prefix, text), false),
	)
	if err != nil {
		log.Printf("slack notify error: %v", err)
	}
}
