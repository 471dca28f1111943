package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"choirreport/internal/adapters/choirgenius"
	emailPkg "choirreport/internal/adapters/email"
	"choirreport/internal/adapters/http/perf"
	"choirreport/internal/adapters/monday"
	"choirreport/internal/adapters/notify"
	"choirreport/internal/adapters/render"
	"choirreport/internal/adapters/storage"
	"choirreport/internal/adapters/storage/archive"
	"choirreport/internal/application/orchestrators"
	"choirreport/internal/config"
	"choirreport/internal/logging"
	"choirreport/internal/telemetry"
)

// nowLayouts are accepted by --now, read in the choir's timezone.
var nowLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
	now        string
	force      bool
	dryRun     bool
}

// app holds the process-wide services built from the settings.
type app struct {
	settings  *config.Settings
	reporter  *telemetry.Reporter
	collector *perf.Collector
	db        *sql.DB       // nil without an archive path
	store     archive.Store // nil without an archive path
	closers   []io.Closer
}

// newApp loads settings, then installs logging and telemetry.
// POST: the caller must Close the returned app
func newApp(flags globalFlags) (*app, error) {
	settings, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		settings.Log.Level = flags.logLevel
	}
	logCloser, err := logging.Init(logging.Options{
		Level:  settings.Log.Level,
		Format: settings.Log.Format,
		File:   settings.Log.File,
	})
	if err != nil {
		return nil, err
	}
	a := &app{settings: settings, collector: perf.NewCollector(perf.DefaultRingSize), closers: []io.Closer{logCloser}}

	a.reporter, err = telemetry.Init(telemetry.Options{
		DSN:         settings.Sentry.DSN,
		Environment: settings.Sentry.Environment,
		Release:     version,
	})
	if err != nil {
		// A broken DSN must not stop the reports going out.
		slog.Warn("telemetry_init_failed", "error", err)
		a.reporter = &telemetry.Reporter{}
	}
	return a, nil
}

// openArchive opens the delivery archive when a path is configured.
func (a *app) openArchive() error {
	path := a.settings.Archive.Path
	if path == "" {
		slog.Debug("archive_disabled")
		return nil
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("archive unreachable: %w", err)
	}
	if err := storage.MigrateDB(db, path); err != nil {
		db.Close()
		return fmt.Errorf("migrate archive: %w", err)
	}
	a.db = db
	a.store = archive.NewSQLiteStore(storage.NewTimedDB(db, a.collector, a.settings.Archive.SlowQuery))
	slog.Info("archive_opened", "path", path, "schema", storage.LatestSchemaVersion())
	return nil
}

// Close flushes telemetry and closes the archive and log file.
func (a *app) Close() error {
	a.reporter.Flush(2 * time.Second)
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// clock returns Now for a run: the wall clock, or the --now override, both
// in the choir's timezone.
func clock(override string, loc *time.Location) (func() time.Time, error) {
	if override == "" {
		return func() time.Time { return time.Now().In(loc) }, nil
	}
	for _, layout := range nowLayouts {
		t, err := time.ParseInLocation(layout, override, loc)
		if err == nil {
			t = t.In(loc)
			return func() time.Time { return t }, nil
		}
	}
	return nil, fmt.Errorf("--now %q: want YYYY-MM-DD, YYYY-MM-DD HH:MM or RFC 3339", override)
}

// runInput is the scheduled configuration of kind.
// PRE: settings passed Validate
func runInput(s *config.Settings, kind orchestrators.Kind, flags globalFlags) orchestrators.RunInput {
	sendDay, _ := s.Weekday()
	in := orchestrators.RunInput{
		Kind:            kind,
		Force:           flags.force,
		DryRun:          flags.dryRun,
		SendDay:         sendDay,
		CutoffHour:      s.CutoffHour,
		ErrorRecipients: s.ErrorRecipients(),
		ChoirName:       s.ChoirName,
	}
	switch kind {
	case orchestrators.KindAttendance, orchestrators.KindProjected:
		in.Recipients = s.AttendanceRecipients()
	case orchestrators.KindConsistency:
		in.Recipients = s.ConsistencyRecipients()
	case orchestrators.KindNags:
		in.Cc = s.NagCc()
	}
	return in
}

// sourceDeps connects the planning boards and the member portal.
func sourceDeps(s *config.Settings) (orchestrators.SourceDeps, error) {
	if err := s.RequireSources(); err != nil {
		return orchestrators.SourceDeps{}, err
	}
	mcfg := monday.DefaultConfig()
	mcfg.APIKey = s.Monday.APIKey
	mcfg.RosterBoardID = s.Monday.RosterBoardID
	mcfg.AuditionBoardID = s.Monday.AuditionBoardID
	if s.Monday.APIURL != "" {
		mcfg.APIURL = s.Monday.APIURL
	}
	if s.Monday.Timeout > 0 {
		mcfg.Timeout = s.Monday.Timeout
	}
	boards, err := monday.NewClient(mcfg)
	if err != nil {
		return orchestrators.SourceDeps{}, err
	}
	portal, err := choirgenius.NewClient(choirgenius.Config{
		BaseURL:            s.ChoirGenius.BaseURL,
		Username:           s.ChoirGenius.Username,
		Password:           s.ChoirGenius.Password,
		RehearsalEventType: s.ChoirGenius.RehearsalEventType,
		ConcertEventType:   s.ChoirGenius.ConcertEventType,
		Timeout:            s.ChoirGenius.Timeout,
	})
	if err != nil {
		return orchestrators.SourceDeps{}, err
	}
	return orchestrators.SourceDeps{Roster: boards, Candidates: boards, Portal: portal}, nil
}

// sender picks Resend when a key is configured and logs emails otherwise.
func sender(s *config.Settings) emailPkg.Sender {
	if s.Email.ResendAPIKey != "" {
		slog.Info("email_sender_configured", "provider", "resend", "from", s.Email.From)
		return emailPkg.NewResendSender(s.Email.ResendAPIKey, s.Email.From)
	}
	slog.Warn("email_sender_configured", "provider", "noop")
	return emailPkg.NewNoopSender()
}

// notifier builds the out-of-band alert channel, or nil when none is set.
func notifier(s *config.Settings) orchestrators.Notifier {
	if len(s.Notify.URLs) == 0 {
		return nil
	}
	logger := log.New(io.Discard, "", 0)
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		logger = slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug)
	}
	n, err := notify.NewShoutrrrNotifier(s.Notify.URLs, s.Notify.Timeout, logger)
	if err != nil {
		slog.Warn("notifier_disabled", "error", err)
		return nil
	}
	return n
}

// runDeps wires every collaborator of a report run.
// POST: unusable source settings leave Sources.Unavailable set, not an error
func (a *app) runDeps(now func() time.Time) orchestrators.RunDeps {
	sources, err := sourceDeps(a.settings)
	if err != nil {
		// The run fails at load time and the maintainer hears about it.
		slog.Warn("report_sources_unavailable", "error", err)
		sources = orchestrators.SourceDeps{Unavailable: err}
	}
	deps := orchestrators.RunDeps{
		Sources:  sources,
		Renderer: render.New(a.settings.SourceURLs(), a.settings.CalendarURL()),
		Sender:   sender(a.settings),
		Notifier: notifier(a.settings),
		Policy: orchestrators.DeliveryPolicy{
			MaxAttempts: a.settings.Delivery.MaxAttempts,
			BaseDelay:   a.settings.Delivery.BaseDelay,
			MaxDelay:    a.settings.Delivery.MaxDelay,
		},
		Now:        now,
		GenerateID: uuid.NewString,
	}
	if a.store != nil {
		deps.Archive = a.store
	}
	return deps
}
