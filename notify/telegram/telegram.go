// Package telegram posts session lifecycle notifications to a Telegram chat.
//
// Setup:
//  1. Create a bot via @BotFather and note the token
//  2. Message the bot once, then read the chat ID from getUpdates
//  3. Set VIBEWIRE_TELEGRAM_BOT_TOKEN and VIBEWIRE_TELEGRAM_CHAT_ID
package telegram

import (
	"errors"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vibewire/vibewire/eventbus"
	"github.com/vibewire/vibewire/wire"
)

// Session is the slice of a session the notifier observes.
type Session interface {
	AgentID() string
	Bus() *eventbus.Bus
}

// Notifier posts lifecycle messages via the Telegram Bot API.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	prefix string
}

// Option configures the Notifier.
type Option func(*Notifier)

// WithPrefix prepends a label to every notification (default "vibewire").
func WithPrefix(prefix string) Option {
	return func(n *Notifier) { n.prefix = prefix }
}

// New creates a Telegram notifier posting to the given chat.
func New(botToken string, chatID int64, opts ...Option) (*Notifier, error) {
	if botToken == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	if chatID == 0 {
		return nil, errors.New("telegram: chat ID is required")
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	n := &Notifier{bot: bot, chatID: chatID, prefix: "vibewire"}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Name returns the notifier name.
func (n *Notifier) Name() string { return "telegram" }

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
				text += "\npreview: " + msg.PreviewURL
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
				n.post(fmt.Sprintf("preview deployed for agent %s\n%s", agentID, msg.PreviewURL))
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
				n.post(fmt.Sprintf("cloudflare deployment live for agent %s\n%s", agentID, msg.DeploymentURL))
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
	msg := tgbotapi.NewMessage(n.chatID, fmt.Sprintf("[%s] %s", n.prefix, text))
	if _, err := n.bot.Send(msg); err != nil {
		log.Printf("telegram notify error: %v", err)
	}
}
