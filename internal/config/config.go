// Package config loads choirreport settings from an optional YAML file and
// CHOIRREPORT_* environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable; nested keys join with "_"
// (monday.api_key is CHOIRREPORT_MONDAY_API_KEY).
const EnvPrefix = "CHOIRREPORT"

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalid            = errors.New("invalid configuration")
)

type Settings struct {
	Timezone   string `mapstructure:"timezone"`
	SendDay    string `mapstructure:"send_day"`
	CutoffHour int    `mapstructure:"cutoff_hour"`
	ChoirName  string `mapstructure:"choir_name"`

	Log         LogSettings         `mapstructure:"log"`
	Monday      MondaySettings      `mapstructure:"monday"`
	ChoirGenius ChoirGeniusSettings `mapstructure:"choirgenius"`
	Email       EmailSettings       `mapstructure:"email"`
	Recipients  RecipientSettings   `mapstructure:"recipients"`
	Delivery    DeliverySettings    `mapstructure:"delivery"`
	Archive     ArchiveSettings     `mapstructure:"archive"`
	Notify      NotifySettings      `mapstructure:"notify"`
	Sentry      SentrySettings      `mapstructure:"sentry"`
	Serve       ServeSettings       `mapstructure:"serve"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type MondaySettings struct {
	APIKey          string        `mapstructure:"api_key"`
	APIURL          string        `mapstructure:"api_url"`
	RosterBoardID   string        `mapstructure:"roster_board_id"`
	AuditionBoardID string        `mapstructure:"audition_board_id"`
	BoardsURL       string        `mapstructure:"boards_url"` // board links in report footers
	Timeout         time.Duration `mapstructure:"timeout"`
}

type ChoirGeniusSettings struct {
	BaseURL            string        `mapstructure:"base_url"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	RehearsalEventType string        `mapstructure:"rehearsal_event_type"`
	ConcertEventType   string        `mapstructure:"concert_event_type"`
	CalendarPath       string        `mapstructure:"calendar_path"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// EmailSettings selects the provider. Without a Resend key, emails are
// logged instead of sent.
type EmailSettings struct {
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"`
}

type RecipientSettings struct {
	Attendance     string   `mapstructure:"attendance"`
	Maintainer     string   `mapstructure:"maintainer"`
	SectionLeaders []string `mapstructure:"section_leaders"`
}

type DeliverySettings struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// ArchiveSettings locates the delivery archive. An empty path disables it.
type ArchiveSettings struct {
	Path      string        `mapstructure:"path"`
	SlowQuery time.Duration `mapstructure:"slow_query"`
}

type NotifySettings struct {
	URLs    []string      `mapstructure:"urls"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SentrySettings struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type ServeSettings struct {
	Addr           string        `mapstructure:"addr"`
	Username       string        `mapstructure:"username"`
	PasswordHash   string        `mapstructure:"password_hash"` // bcrypt
	CSRFKey        string        `mapstructure:"csrf_key"`      // 64 hex characters
	Secure         bool          `mapstructure:"secure"`
	TrustedOrigins []string      `mapstructure:"trusted_origins"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	SlowRequest    time.Duration `mapstructure:"slow_request"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("timezone", "America/New_York")
	v.SetDefault("send_day", "Thursday")
	v.SetDefault("cutoff_hour", 19)
	v.SetDefault("choir_name", "Cantori")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")

	v.SetDefault("monday.api_key", "")
	v.SetDefault("monday.api_url", "https://api.monday.com/v2")
	v.SetDefault("monday.roster_board_id", "")
	v.SetDefault("monday.audition_board_id", "")
	v.SetDefault("monday.boards_url", "https://cantori.monday.com/boards")
	v.SetDefault("monday.timeout", time.Minute)

	v.SetDefault("choirgenius.base_url", "https://cantori.choirgenius.com")
	v.SetDefault("choirgenius.username", "")
	v.SetDefault("choirgenius.password", "")
	v.SetDefault("choirgenius.rehearsal_event_type", "49")
	v.SetDefault("choirgenius.concert_event_type", "")
	v.SetDefault("choirgenius.calendar_path", "calendar/events")
	v.SetDefault("choirgenius.timeout", time.Minute)

	v.SetDefault("email.resend_api_key", "")
	v.SetDefault("email.from", "")

	v.SetDefault("recipients.attendance", "")
	v.SetDefault("recipients.maintainer", "")
	v.SetDefault("recipients.section_leaders", []string{})

	v.SetDefault("delivery.max_attempts", 3)
	v.SetDefault("delivery.base_delay", 30*time.Second)
	v.SetDefault("delivery.max_delay", 5*time.Minute)

	v.SetDefault("archive.path", "")
	v.SetDefault("archive.slow_query", 50*time.Millisecond)

	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.timeout", 10*time.Second)

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")

	v.SetDefault("serve.addr", "127.0.0.1:8080")
	v.SetDefault("serve.username", "")
	v.SetDefault("serve.password_hash", "")
	v.SetDefault("serve.csrf_key", "")
	v.SetDefault("serve.secure", false)
	v.SetDefault("serve.trusted_origins", []string{})
	v.SetDefault("serve.cache_ttl", 5*time.Minute)
	v.SetDefault("serve.slow_request", 2*time.Second)
}

// Load reads the settings. An empty path reads only defaults and the
// environment; a non-empty path must exist.
// POST: returned settings passed Validate
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the fields every command needs. Credentials of the
// services a command touches are checked by RequireSources and RequireServe.
func (s *Settings) Validate() error {
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalid, s.Timezone, err)
	}
	if _, err := s.Weekday(); err != nil {
		return err
	}
	if s.CutoffHour < 0 || s.CutoffHour > 23 {
		return fmt.Errorf("%w: cutoff_hour %d is not an hour of the day", ErrInvalid, s.CutoffHour)
	}
	if s.Delivery.MaxAttempts < 1 {
		return fmt.Errorf("%w: delivery.max_attempts must be at least 1", ErrInvalid)
	}
	return nil
}

// RequireSources reports missing credentials for the two data sources and
// the recipient addresses a report run needs.
func (s *Settings) RequireSources() error {
	var missing []string
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check("monday.api_key", s.Monday.APIKey)
	check("monday.roster_board_id", s.Monday.RosterBoardID)
	check("choirgenius.username", s.ChoirGenius.Username)
	check("choirgenius.password", s.ChoirGenius.Password)
	check("recipients.attendance", s.Recipients.Attendance)
	check("recipients.maintainer", s.Recipients.Maintainer)
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// RequireServe reports missing preview server credentials.
func (s *Settings) RequireServe() error {
	if s.Serve.Username == "" || s.Serve.PasswordHash == "" {
		return fmt.Errorf("%w: serve.username and serve.password_hash", ErrMissingCredentials)
	}
	if _, err := s.CSRFKey(); err != nil {
		return err
	}
	return nil
}

// Location returns the choir's timezone.
func (s *Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Weekday parses SendDay ("Thursday", "thu").
func (s *Settings) Weekday() (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s.SendDay))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || (len(name) >= 3 && strings.HasPrefix(full, name)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: send_day %q is not a weekday", ErrInvalid, s.SendDay)
}

// CSRFKey decodes the preview server's 32-byte CSRF key.
func (s *Settings) CSRFKey() ([]byte, error) {
	key, err := hex.DecodeString(s.Serve.CSRFKey)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("%w: serve.csrf_key must be 64 hex characters", ErrInvalid)
	}
	return key, nil
}

// AttendanceRecipients receive the attendance and projected reports.
func (s *Settings) AttendanceRecipients() []string {
	return nonEmpty(append([]string{s.Recipients.Attendance, s.Recipients.Maintainer}, s.Recipients.SectionLeaders...))
}

// ConsistencyRecipients receive the consistency report.
func (s *Settings) ConsistencyRecipients() []string {
	return nonEmpty([]string{s.Recipients.Attendance, s.Recipients.Maintainer})
}

// NagCc is copied on every member nag.
func (s *Settings) NagCc() []string {
	return s.ConsistencyRecipients()
}

// ErrorRecipients receive the maintainer notification.
func (s *Settings) ErrorRecipients() []string {
	return nonEmpty([]string{s.Recipients.Maintainer})
}

// CalendarURL is where singers mark their plans.
func (s *Settings) CalendarURL() string {
	return strings.TrimSuffix(s.ChoirGenius.BaseURL, "/") + "/" + strings.TrimPrefix(s.ChoirGenius.CalendarPath, "/")
}

// SourceURLs are listed in every report's footer.
func (s *Settings) SourceURLs() []string {
	var urls []string
	for _, id := range []string{s.Monday.RosterBoardID, s.Monday.AuditionBoardID} {
		if id != "" {
			urls = append(urls, strings.TrimSuffix(s.Monday.BoardsURL, "/")+"/"+id)
		}
	}
	return append(urls, strings.TrimSuffix(s.ChoirGenius.BaseURL, "/"))
}

func nonEmpty(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	seen := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" || seen[strings.ToLower(a)] {
			continue
		}
		seen[strings.ToLower(a)] = true
		out = append(out, a)
	}
	return out
}
