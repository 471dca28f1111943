// Package notify pushes maintainer alerts to chat and push services.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// ErrNoURLs is returned when no service URL is configured.
var ErrNoURLs = errors.New("at least one notification URL is required")

// ShoutrrrNotifier sends alerts to every configured service URL
// (telegram://, slack://, ntfy://, ...).
type ShoutrrrNotifier struct {
	urls   []string
	sender *router.ServiceRouter
}

// NewShoutrrrNotifier validates urls and builds the sender.
// PRE: urls is non-empty
// POST: the router logs to logger, or nowhere when logger is nil
func NewShoutrrrNotifier(urls []string, timeout time.Duration, logger *log.Logger) (*ShoutrrrNotifier, error) {
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("notification urls: %w", err)
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	sender.SetLogger(logger)
	return &ShoutrrrNotifier{urls: slices.Clone(urls), sender: sender}, nil
}

// Notify sends subject and message to every service.
// POST: returns the first service error, after every service was tried
func (n *ShoutrrrNotifier) Notify(_ context.Context, subject, message string) error {
	params := stypes.Params{}
	if subject != "" {
		params.SetTitle(subject)
	}
	var firstErr error
	for _, err := range n.sender.Send(message, &params) {
		if err != nil {
			slog.Error("notify_send_failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("notify: %w", firstErr)
	}
	slog.Info("notify_sent", "services", len(n.urls), "subject", subject)
	return nil
}
