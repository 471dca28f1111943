// Package choirgenius reads attendance and membership exports from the
// ChoirGenius member portal.
package choirgenius

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"choirreport/internal/domain/attendance"
	"choirreport/internal/domain/member"
	"choirreport/internal/domain/season"
)

var (
	ErrLogin  = errors.New("choirgenius login failed")
	ErrExport = errors.New("choirgenius export failed")
)

const (
	loginPath          = "user/login"
	attendanceGridPath = "report/attendance_grid_report"
	forecastPath       = "report/attendance_forecast_report"
	membersExportPath  = "accounts/export"

	attendanceGridForm = "#g4event-attendance-grid-report-filter"
	forecastForm       = "#g4event-attendance-forecast-report-filter"

	memberSet       = "g4account::role::member"
	formDateLayout  = "01-02-2006"
	defaultRehearse = "49"
)

// Config holds the portal client settings.
type Config struct {
	BaseURL            string
	Username           string
	Password           string
	RehearsalEventType string
	ConcertEventType   string // empty disables the concert forecast
	Timeout            time.Duration
}

// Client is a logged-in portal session shared by concurrent exports.
type Client struct {
	config     Config
	base       *url.URL
	jar        http.CookieJar
	httpClient *http.Client

	mu       sync.Mutex
	loggedIn bool
}

// NewClient creates a portal client. Login happens on first use.
// PRE: BaseURL parses; Username and Password are non-empty
func NewClient(config Config) (*Client, error) {
	if config.Username == "" || config.Password == "" {
		return nil, errors.New("choirgenius credentials are required")
	}
	base, err := url.Parse(strings.TrimSuffix(config.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("choirgenius base url: %w", err)
	}
	if config.RehearsalEventType == "" {
		config.RehearsalEventType = defaultRehearse
	}
	if config.Timeout == 0 {
		config.Timeout = time.Minute
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		config:     config,
		base:       base,
		jar:        jar,
		httpClient: &http.Client{Jar: jar, Timeout: config.Timeout},
	}, nil
}

func (c *Client) url(ref string) (string, error) {
	u, err := c.base.Parse(ref)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// login posts the Drupal login form once per client.
func (c *Client) login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn {
		return nil
	}

	form := url.Values{
		"name":    {c.config.Username},
		"pass":    {c.config.Password},
		"form_id": {"user_login"},
	}
	if _, err := c.post(ctx, loginPath, form); err != nil {
		return fmt.Errorf("%w: %w", ErrLogin, err)
	}
	if len(c.jar.Cookies(c.base)) == 0 {
		return fmt.Errorf("%w: no session cookie for %s", ErrLogin, c.config.Username)
	}
	c.loggedIn = true
	slog.Info("choirgenius_logged_in", "base_url", c.base.String())
	return nil
}

func (c *Client) get(ctx context.Context, path string) (string, error) {
	u, err := c.url(path)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, form url.Values) (string, error) {
	u, err := c.url(path)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (string, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	slog.Debug("choirgenius_request", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode,
		"bytes", len(body), "duration", time.Since(start))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return string(body), nil
}

// hiddenFields scrapes the hidden inputs (form build id, tokens) of a report
// filter form so the export POST is accepted.
func hiddenFields(page, formSelector string) (url.Values, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, err
	}
	fields := url.Values{}
	doc.Find(formSelector + ` input[type="hidden"]`).Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := s.Attr("value")
		fields.Set(name, value)
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("no hidden fields in %s", formSelector)
	}
	return fields, nil
}

// exportReport loads a report page, then posts its filter form with the
// export button to download the CSV.
func (c *Client) exportReport(ctx context.Context, path, formSelector, eventType string, from, to season.Date) (attendance.Sheet, error) {
	if err := c.login(ctx); err != nil {
		return attendance.Sheet{}, err
	}
	page, err := c.get(ctx, path)
	if err != nil {
		return attendance.Sheet{}, fmt.Errorf("%w: %s: %w", ErrExport, path, err)
	}
	form, err := hiddenFields(page, formSelector)
	if err != nil {
		return attendance.Sheet{}, fmt.Errorf("%w: %s: %w", ErrExport, path, err)
	}
	form.Set("sets[]", memberSet)
	form.Set("event_type[]", eventType)
	form.Set("range_start[date]", from.Format(formDateLayout))
	form.Set("range_end[date]", to.Format(formDateLayout))
	form.Set("export", "Export")

	csvText, err := c.post(ctx, path, form)
	if err != nil {
		return attendance.Sheet{}, fmt.Errorf("%w: %s: %w", ErrExport, path, err)
	}
	sheet, err := parseGridExport(csvText)
	if err != nil {
		return attendance.Sheet{}, fmt.Errorf("%s: %w", path, err)
	}
	slog.Info("choirgenius_export", "report", path, "event_type", eventType, "from", from.String(), "to", to.String(),
		"singers", len(sheet.Records), "dates", len(sheet.Dates))
	return sheet, nil
}

// FetchAttendance exports the rehearsal attendance grid for [from, to].
func (c *Client) FetchAttendance(ctx context.Context, from, to season.Date) (attendance.Sheet, error) {
	return c.exportReport(ctx, attendanceGridPath, attendanceGridForm, c.config.RehearsalEventType, from, to)
}

// FetchProjected exports the rehearsal forecast (singers' own plans) for [from, to].
func (c *Client) FetchProjected(ctx context.Context, from, to season.Date) (attendance.Sheet, error) {
	return c.exportReport(ctx, forecastPath, forecastForm, c.config.RehearsalEventType, from, to)
}

// FetchConcertAttendance exports the concert forecast for [from, to]. With no
// concert event type configured it returns an empty sheet.
func (c *Client) FetchConcertAttendance(ctx context.Context, from, to season.Date) (attendance.Sheet, error) {
	if c.config.ConcertEventType == "" {
		slog.Warn("choirgenius_concert_forecast_disabled")
		return attendance.Sheet{}, nil
	}
	return c.exportReport(ctx, forecastPath, forecastForm, c.config.ConcertEventType, from, to)
}

// FetchActiveMembers downloads the active member export.
func (c *Client) FetchActiveMembers(ctx context.Context) ([]member.Member, error) {
	if err := c.login(ctx); err != nil {
		return nil, err
	}
	csvText, err := c.get(ctx, membersExportPath+"?status=active")
	if err != nil {
		return nil, fmt.Errorf("%w: members: %w", ErrExport, err)
	}
	members, err := parseMembersExport(csvText)
	if err != nil {
		return nil, err
	}
	active := members[:0]
	for _, m := range members {
		if m.Active {
			active = append(active, m)
		}
	}
	slog.Info("choirgenius_members_export", "members", len(members), "active", len(active))
	return active, nil
}
