package email

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var fixedTime = time.Date(2026, 1, 15, 22, 0, 0, 0, time.UTC)

// TestEmail_Validate_Valid tests that a well-formed email passes validation.
func TestEmail_Validate_Valid(t *testing.T) {
	e := Email{Subject: "Attendance Report", HTML: "<p>hi</p>", To: []string{"attendance@example.org"}}
	if err := e.Validate(); err != nil {
		t.Errorf("expected valid email, got: %v", err)
	}
}

// TestEmail_Validate_Errors tests each missing field.
func TestEmail_Validate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		email Email
		want  error
	}{
		{"missing subject", Email{HTML: "<p>x</p>", To: []string{"a@b"}}, ErrEmptySubject},
		{"missing body", Email{Subject: "s", To: []string{"a@b"}}, ErrEmptyBody},
		{"missing recipients", Email{Subject: "s", HTML: "<p>x</p>"}, ErrNoRecipients},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.email.Validate(); err != tt.want {
				t.Errorf("expected %v, got: %v", tt.want, err)
			}
		})
	}
}

// TestEmail_Text strips markup.
func TestEmail_Text(t *testing.T) {
	e := Email{HTML: `<h1>This Week</h1><p><a href="mailto:a@b">Alice</a></p>`}
	text := e.Text()
	if strings.Contains(text, "<h1>") || strings.Contains(text, "<p>") {
		t.Errorf("text still has markup: %q", text)
	}
	if !strings.Contains(text, "This Week") {
		t.Errorf("text lost content: %q", text)
	}
}

// TestDelivery_RetryLifecycle walks a delivery through two failures and a success.
func TestDelivery_RetryLifecycle(t *testing.T) {
	d := NewDelivery("d-1", "run-1", "attendance", Email{Subject: "s", To: []string{"a@b"}}, 3, fixedTime)
	if !d.CanRetry() {
		t.Fatal("new delivery should be retryable")
	}

	for i := 0; i < 2; i++ {
		if err := d.MarkAttempt(fixedTime); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		d.MarkFailed(errors.New("boom"), fixedTime)
		if d.Status != StatusQueued {
			t.Fatalf("attempt %d: status=%s want queued", i, d.Status)
		}
	}

	if err := d.MarkAttempt(fixedTime); err != nil {
		t.Fatal(err)
	}
	d.MarkSent("msg-1", fixedTime)
	if d.Status != StatusSent || d.MessageID != "msg-1" || d.Error != "" {
		t.Errorf("unexpected delivery state: %+v", d)
	}
	if err := d.MarkAttempt(fixedTime); err != ErrNotQueued {
		t.Errorf("expected ErrNotQueued after send, got %v", err)
	}
}

// TestDelivery_ExhaustsAttempts marks the delivery failed at the limit.
func TestDelivery_ExhaustsAttempts(t *testing.T) {
	d := NewDelivery("d-1", "run-1", "consistency", Email{}, 1, fixedTime)
	_ = d.MarkAttempt(fixedTime)
	d.MarkFailed(errors.New("provider down"), fixedTime)
	if d.Status != StatusFailed {
		t.Errorf("status=%s want failed", d.Status)
	}
	if d.CanRetry() {
		t.Error("failed delivery should not be retryable")
	}
}

// TestDelivery_NextRetryDelay tests exponential backoff with cap.
func TestDelivery_NextRetryDelay(t *testing.T) {
	d := Delivery{}
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		d.Attempts = tt.attempts
		if got := d.NextRetryDelay(time.Second, 30*time.Second); got != tt.want {
			t.Errorf("attempts=%d delay=%v want %v", tt.attempts, got, tt.want)
		}
	}
}

// TestDelivery_SkipAndAbandon covers the terminal states reached without a send.
func TestDelivery_SkipAndAbandon(t *testing.T) {
	d := NewDelivery("d-1", "run-1", "projected", Email{}, 3, fixedTime)
	d.MarkSkipped("dry run", fixedTime)
	if d.Status != StatusSkipped || d.Error != "dry run" {
		t.Errorf("unexpected skipped state: %+v", d)
	}

	d = NewDelivery("d-2", "run-1", "projected", Email{}, 3, fixedTime)
	_ = d.MarkAttempt(fixedTime)
	d.Abandon(errors.New("context canceled"), fixedTime)
	if d.Status != StatusFailed || d.CanRetry() {
		t.Errorf("abandoned delivery should be failed: %+v", d)
	}
}
