package orchestrators

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/yuin/goldmark"

	emailAdapter "choirreport/internal/adapters/email"
	"choirreport/internal/adapters/render"
	emailDomain "choirreport/internal/domain/email"
	"choirreport/internal/domain/season"
)

// ErrReport marks a run that could not produce its report.
var ErrReport = errors.New("report run failed")

// IsFatal reports whether err aborted a run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrReport)
}

// ErrorSubject is the subject of the maintainer notification.
const ErrorSubject = "Error generating report"

// Archive records delivery outcomes.
type Archive interface {
	Record(ctx context.Context, d emailDomain.Delivery) error
}

// Notifier pushes a short alert to an out-of-band channel.
type Notifier interface {
	Notify(ctx context.Context, subject, message string) error
}

// DeliveryPolicy bounds send retries.
type DeliveryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultDeliveryPolicy returns sensible defaults.
func DefaultDeliveryPolicy() DeliveryPolicy {
	return DeliveryPolicy{MaxAttempts: 3, BaseDelay: 30 * time.Second, MaxDelay: 5 * time.Minute}
}

// RunInput carries one scheduled invocation.
type RunInput struct {
	Kind            Kind
	Force           bool // send even when not worth sending
	DryRun          bool // render and log but never send
	SendDay         time.Weekday
	CutoffHour      int // today's rehearsal counts as held after this hour
	Recipients      []string
	Cc              []string
	ErrorRecipients []string
	ChoirName       string
}

// RunDeps holds dependencies for ExecuteRun.
type RunDeps struct {
	Sources    SourceDeps
	Renderer   *render.Renderer
	Sender     emailAdapter.Sender
	Archive    Archive  // optional
	Notifier   Notifier // optional
	Policy     DeliveryPolicy
	Now        func() time.Time // in the choir's timezone
	GenerateID func() string
	Sleep      func(ctx context.Context, d time.Duration) error
}

// RunSummary reports what happened to each email of a run.
type RunSummary struct {
	RunID      string
	Kind       Kind
	Deliveries []emailDomain.Delivery
}

// Sent counts deliveries accepted by the provider.
func (s RunSummary) Sent() int {
	n := 0
	for _, d := range s.Deliveries {
		if d.Status == emailDomain.StatusSent {
			n++
		}
	}
	return n
}

// RehearsalsThrough is the last day whose rehearsal counts as held at now.
// Today's rehearsal is excluded until after the cut-off hour.
func RehearsalsThrough(now time.Time, cutoffHour int) season.Date {
	today := season.DateOf(now)
	if now.Hour() <= cutoffHour {
		return today.AddDays(-1)
	}
	return today
}

// LoadInput is the fetch window for a run at now.
func (in RunInput) LoadInput(now time.Time) LoadInput {
	return LoadInput{
		Kind:         in.Kind,
		Today:        season.DateOf(now),
		RehearsalsTo: RehearsalsThrough(now, in.CutoffHour),
	}
}

// ReportInput pairs loaded sources with the run's clock and recipients.
func (in RunInput) ReportInput(src Sources, now time.Time) ReportInput {
	return ReportInput{
		Sources:    src,
		Now:        now,
		SendDay:    in.SendDay,
		Recipients: in.Recipients,
		Cc:         in.Cc,
		ChoirName:  in.ChoirName,
	}
}

// BuildReport runs the driver for kind over already-loaded sources.
// PRE: src was loaded for kind
// POST: returns one Result, or one per nag
func BuildReport(ctx context.Context, kind Kind, in ReportInput, deps ReportDeps) ([]Result, error) {
	switch kind {
	case KindAttendance:
		r, err := ExecuteAttendanceReport(ctx, in, deps)
		return []Result{r}, err
	case KindProjected:
		r, err := ExecuteProjectedReport(ctx, in, deps)
		return []Result{r}, err
	case KindConsistency:
		r, err := ExecuteConsistencyReport(ctx, in, deps)
		return []Result{r}, err
	case KindNags:
		return ExecuteMemberNags(ctx, in, deps)
	default:
		return nil, fmt.Errorf("unknown report %q", kind)
	}
}

// ExecuteRun fetches, classifies, renders and dispatches one report.
// Any failure before dispatch sends the maintainer a single notification and
// nothing to the ordinary recipients.
// PRE: deps are initialised; in.Kind is one of Kinds
// POST: every produced email is archived as sent, skipped or failed; a
// returned error satisfies IsFatal
func ExecuteRun(ctx context.Context, in RunInput, deps RunDeps) (RunSummary, error) {
	r := &runner{in: in, deps: deps, summary: RunSummary{RunID: deps.GenerateID(), Kind: in.Kind}}
	now := deps.Now()
	slog.Info("report_run_start", "run_id", r.summary.RunID, "kind", in.Kind, "now", now.Format(time.RFC3339),
		"force", in.Force, "dry_run", in.DryRun)

	results, err := r.build(ctx, now)
	if err != nil {
		slog.Error("report_run_failed", "run_id", r.summary.RunID, "kind", in.Kind, "error", err)
		r.notifyMaintainer(ctx, err)
		return r.summary, fmt.Errorf("%w: %s: %w", ErrReport, in.Kind, err)
	}

	if err := r.dispatch(ctx, results); err != nil {
		slog.Error("report_dispatch_failed", "run_id", r.summary.RunID, "kind", in.Kind, "error", err)
		r.notifyMaintainer(ctx, err)
		return r.summary, fmt.Errorf("%w: %s: %w", ErrReport, in.Kind, err)
	}

	slog.Info("report_run_complete", "run_id", r.summary.RunID, "kind", in.Kind,
		"emails", len(r.summary.Deliveries), "sent", r.summary.Sent())
	return r.summary, nil
}

type runner struct {
	in      RunInput
	deps    RunDeps
	summary RunSummary
}

func (r *runner) build(ctx context.Context, now time.Time) ([]Result, error) {
	src, err := LoadSources(ctx, r.in.LoadInput(now), r.deps.Sources)
	if err != nil {
		return nil, err
	}
	return BuildReport(ctx, r.in.Kind, r.in.ReportInput(src, now), ReportDeps{Renderer: r.deps.Renderer})
}

func (r *runner) dispatch(ctx context.Context, results []Result) error {
	for _, res := range results {
		if err := res.Email.Validate(); err != nil {
			return fmt.Errorf("%s email: %w", r.in.Kind, err)
		}
	}

	var firstErr error
	for _, res := range results {
		d := emailDomain.NewDelivery(r.deps.GenerateID(), r.summary.RunID, string(r.in.Kind), res.Email,
			r.deps.Policy.MaxAttempts, r.deps.Now())
		switch {
		case !res.WorthSending && !r.in.Force:
			d.MarkSkipped("not worth sending", r.deps.Now())
			slog.Info("report_not_worth_sending", "run_id", r.summary.RunID, "kind", r.in.Kind, "subject", d.Subject)
		case r.in.DryRun:
			d.MarkSkipped("dry run", r.deps.Now())
			slog.Info("report_dry_run", "run_id", r.summary.RunID, "kind", r.in.Kind, "subject", d.Subject,
				"to", d.To, "cc", d.Cc, "html_bytes", len(res.Email.HTML))
		default:
			if err := r.deliver(ctx, &d, res.Email); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		r.record(ctx, d)
	}
	return firstErr
}

// deliver sends e with exponential backoff between attempts.
func (r *runner) deliver(ctx context.Context, d *emailDomain.Delivery, e emailDomain.Email) error {
	req := emailAdapter.SendRequest{To: e.To, Cc: e.Cc, Subject: e.Subject, HTML: e.HTML, Text: e.Text()}
	var lastErr error
	for d.CanRetry() {
		if d.Attempts > 0 {
			delay := d.NextRetryDelay(r.deps.Policy.BaseDelay, r.deps.Policy.MaxDelay)
			slog.Warn("report_send_retry", "delivery_id", d.ID, "attempt", d.Attempts+1, "delay", delay)
			if err := r.sleep(ctx, delay); err != nil {
				d.Abandon(err, r.deps.Now())
				return err
			}
		}
		if err := d.MarkAttempt(r.deps.Now()); err != nil {
			return err
		}
		sent, err := r.deps.Sender.Send(ctx, req)
		if err == nil {
			d.MarkSent(sent.MessageID, r.deps.Now())
			slog.Info("report_sent", "run_id", d.RunID, "delivery_id", d.ID, "kind", d.Kind,
				"message_id", sent.MessageID, "attempt", d.Attempts)
			return nil
		}
		lastErr = err
		d.MarkFailed(err, r.deps.Now())
		slog.Error("report_send_failed", "delivery_id", d.ID, "attempt", d.Attempts, "error", err)
	}
	return fmt.Errorf("send %q after %d attempts: %w", d.Subject, d.Attempts, lastErr)
}

func (r *runner) sleep(ctx context.Context, d time.Duration) error {
	if r.deps.Sleep != nil {
		return r.deps.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *runner) record(ctx context.Context, d emailDomain.Delivery) {
	r.summary.Deliveries = append(r.summary.Deliveries, d)
	if r.deps.Archive == nil {
		return
	}
	if err := r.deps.Archive.Record(ctx, d); err != nil {
		slog.Error("delivery_archive_failed", "delivery_id", d.ID, "error", err)
	}
}

const maintainerBody = "A scheduled **%s** report could not be produced, so nothing was sent to the usual recipients.\n\n" +
	"- run: `%s`\n- at: %s\n\n```\n%s\n```\n"

// notifyMaintainer emails the error text once and pushes it to the notifier.
// Its own failures are logged, never returned.
func (r *runner) notifyMaintainer(ctx context.Context, cause error) {
	now := r.deps.Now()
	if r.deps.Notifier != nil {
		if err := r.deps.Notifier.Notify(ctx, ErrorSubject, fmt.Sprintf("%s report: %v", r.in.Kind, cause)); err != nil {
			slog.Error("maintainer_notify_failed", "run_id", r.summary.RunID, "error", err)
		}
	}
	if len(r.in.ErrorRecipients) == 0 {
		slog.Warn("maintainer_email_unconfigured", "run_id", r.summary.RunID)
		return
	}

	var buf bytes.Buffer
	md := fmt.Sprintf(maintainerBody, r.in.Kind, r.summary.RunID, now.Format(time.RFC1123), cause)
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		slog.Error("maintainer_body_failed", "error", err)
		return
	}
	html, err := r.deps.Renderer.Wrap(template.HTML(buf.String()))
	if err != nil {
		slog.Error("maintainer_body_failed", "error", err)
		return
	}

	e := emailDomain.Email{Subject: ErrorSubject, HTML: html, To: r.in.ErrorRecipients}
	d := emailDomain.NewDelivery(r.deps.GenerateID(), r.summary.RunID, string(KindError), e, 1, now)
	if r.in.DryRun {
		d.MarkSkipped("dry run", now)
		slog.Info("maintainer_email_dry_run", "run_id", r.summary.RunID, "to", e.To)
	} else if err := r.deliver(ctx, &d, e); err != nil {
		slog.Error("maintainer_email_failed", "run_id", r.summary.RunID, "error", err)
	}
	r.record(ctx, d)
}
