// Package telemetry reports fatal run errors to Sentry when a DSN is set.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// Options configures the Sentry client.
type Options struct {
	DSN         string
	Environment string
	Release     string
	Transport   sentry.Transport // tests only
}

// Reporter captures errors. The zero value is disabled and safe to use.
type Reporter struct {
	hub *sentry.Hub
}

// Init creates a reporter. An empty DSN yields a disabled reporter.
// POST: events carry no server name or request data
func Init(opts Options) (*Reporter, error) {
	if opts.DSN == "" {
		slog.Debug("telemetry_disabled")
		return &Reporter{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          opts.Release,
		SampleRate:       1.0,
		AttachStacktrace: false,
		ServerName:       "",
		Transport:        opts.Transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			event.ServerName = ""
			event.Request = nil
			event.User = sentry.User{}
			return event
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sentry initialization failed: %w", err)
	}
	slog.Info("telemetry_enabled", "environment", opts.Environment)
	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Enabled reports whether errors are sent anywhere.
func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// CaptureError sends err tagged with the report kind and run ID.
func (r *Reporter) CaptureError(_ context.Context, err error, kind, runID string) {
	if !r.Enabled() || err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("kind", kind)
		if runID != "" {
			scope.SetTag("run_id", runID)
		}
		if id := r.hub.CaptureException(err); id != nil {
			slog.Info("telemetry_captured", "event_id", string(*id), "kind", kind)
		}
	})
}

// Flush waits up to timeout for queued events.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(timeout)
}
