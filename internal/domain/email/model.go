package email

import (
	"errors"
	"strings"
	"time"

	"github.com/k3a/html2text"
)

// Status constants for delivery lifecycle.
const (
	StatusQueued  = "queued"
	StatusSent    = "sent"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Domain errors
var (
	ErrEmptySubject = errors.New("email subject is required")
	ErrEmptyBody    = errors.New("email body is required")
	ErrNoRecipients = errors.New("at least one recipient is required")
	ErrNotQueued    = errors.New("delivery is not in queued status")
)

// Email is a rendered report ready to hand to a sender.
type Email struct {
	Subject string
	HTML    string
	To      []string
	Cc      []string
}

// Validate checks that the Email has valid data.
// PRE: Email struct is populated
// POST: Returns nil if valid, error otherwise
func (e *Email) Validate() error {
	if strings.TrimSpace(e.Subject) == "" {
		return ErrEmptySubject
	}
	if strings.TrimSpace(e.HTML) == "" {
		return ErrEmptyBody
	}
	if len(e.To) == 0 {
		return ErrNoRecipients
	}
	return nil
}

// Text returns a plain-text rendition of the HTML body.
// INVARIANT: Email fields are not mutated
func (e *Email) Text() string {
	return strings.TrimSpace(html2text.HTML2Text(e.HTML))
}

// Delivery records one report run's dispatch outcome.
type Delivery struct {
	ID          string
	RunID       string
	Kind        string // attendance, projected, consistency, nags, error
	Subject     string
	To          []string
	Cc          []string
	HTML        string // rendered body, kept for the history view
	Status      string
	Attempts    int
	MaxAttempts int
	MessageID   string // provider message ID
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewDelivery creates a queued delivery for an email.
// PRE: id and runID are non-empty
// POST: Status is queued with zero attempts
func NewDelivery(id, runID, kind string, e Email, maxAttempts int, now time.Time) Delivery {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return Delivery{
		ID:          id,
		RunID:       runID,
		Kind:        kind,
		Subject:     e.Subject,
		To:          e.To,
		Cc:          e.Cc,
		HTML:        e.HTML,
		Status:      StatusQueued,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CanRetry returns true if another attempt is allowed.
// PRE: Status and Attempts fields are set
// POST: Returns true for queued deliveries with attempts < max
func (d *Delivery) CanRetry() bool {
	return d.Status == StatusQueued && d.Attempts < d.MaxAttempts
}

// MarkAttempt records an attempt.
// PRE: Delivery is queued
// POST: Attempts incremented, UpdatedAt set
func (d *Delivery) MarkAttempt(now time.Time) error {
	if d.Status != StatusQueued {
		return ErrNotQueued
	}
	d.Attempts++
	d.UpdatedAt = now
	return nil
}

// MarkSent records that the provider accepted the email.
// PRE: Delivery is queued
// POST: Status is sent, MessageID is set
func (d *Delivery) MarkSent(messageID string, now time.Time) {
	d.Status = StatusSent
	d.MessageID = messageID
	d.Error = ""
	d.UpdatedAt = now
}

// MarkFailed records an attempt failure. The delivery stays queued until
// attempts are exhausted.
// PRE: MarkAttempt was called for this attempt
// POST: Error set; Status is failed once attempts reach MaxAttempts
func (d *Delivery) MarkFailed(err error, now time.Time) {
	d.Error = err.Error()
	d.UpdatedAt = now
	if d.Attempts >= d.MaxAttempts {
		d.Status = StatusFailed
	}
}

// MarkSkipped records a run that was not worth sending, or a dry run.
// POST: Status is skipped
func (d *Delivery) MarkSkipped(reason string, now time.Time) {
	d.Status = StatusSkipped
	d.Error = reason
	d.UpdatedAt = now
}

// Abandon gives up on a queued delivery before its attempts are exhausted.
// POST: Status is failed
func (d *Delivery) Abandon(err error, now time.Time) {
	d.Status = StatusFailed
	d.Error = err.Error()
	d.UpdatedAt = now
}

// NextRetryDelay calculates the delay before the next attempt.
// Uses exponential backoff: 2^(attempts-1) * baseDelay, capped at maxDelay.
// PRE: Attempts is set
// POST: Returns duration for next retry
func (d *Delivery) NextRetryDelay(baseDelay, maxDelay time.Duration) time.Duration {
	shift := d.Attempts - 1
	if shift < 0 {
		shift = 0
	}
	delay := baseDelay * (1 << shift)
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}
