package vibewire

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/vibewire/vibewire/session"
	"github.com/vibewire/vibewire/transport"
)

// applyDefaults fills in missing fields on the builder with sensible defaults.
func applyDefaults(b *Builder) error {
	if b.config.BaseURL == "" {
		b.config.BaseURL = os.Getenv("VIBEWIRE_SERVER_URL")
	}
	if b.config.BaseURL == "" {
		return errors.New("vibewire: base URL is required (set VIBEWIRE_SERVER_URL or use WithBaseURL)")
	}
	if b.config.QueueLimit == 0 {
		b.config.QueueLimit = transport.DefaultQueueLimit
	}
	if b.config.WaitTimeout == 0 {
		b.config.WaitTimeout = session.DefaultWaitTimeout
	}

	if b.httpc == nil {
		// Creation responses stream for the life of a build; no short
		// client-side deadline.
		b.httpc = &http.Client{Timeout: 15 * time.Minute}
	}

	if b.token == nil {
		if token := os.Getenv("VIBEWIRE_API_TOKEN"); token != "" {
			b.token = func() string { return token }
		}
	}

	return nil
}
