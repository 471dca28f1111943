// Package monday reads the roster and audition boards from the Monday.com GraphQL API.
package monday

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"choirreport/internal/domain/member"
	"choirreport/internal/domain/roster"
)

const (
	DefaultAPIURL = "https://api.monday.com/v2"
	APIVersion    = "2023-10"
)

// ErrAPI wraps errors reported in a GraphQL response body.
var ErrAPI = errors.New("monday api error")

// Config holds the board client settings.
type Config struct {
	APIKey          string
	APIURL          string
	RosterBoardID   string
	AuditionBoardID string
	Timeout         time.Duration
}

// DefaultConfig returns the defaults for everything but credentials and boards.
func DefaultConfig() Config {
	return Config{APIURL: DefaultAPIURL, Timeout: 30 * time.Second}
}

// Client queries the roster and audition boards.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a board client.
// PRE: config.APIKey is non-empty
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.New("monday api key is required")
	}
	if config.APIURL == "" {
		config.APIURL = DefaultConfig().APIURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Client{config: config, httpClient: &http.Client{Timeout: config.Timeout}}, nil
}

const rosterQuery = `query RosterDump($boardId: ID!) {
  boards(ids: [$boardId]) {
    columns { title settings_str }
    items_page(limit: 500) {
      items {
        name
        column_values { column { title } text }
      }
    }
  }
}`

const auditionQuery = `query Auditions($boardId: ID!) {
  boards(ids: [$boardId]) {
    items_page(limit: 500) {
      items {
        name
        group { title }
        column_values(ids: ["email", "audition_result"]) { column { title } text }
      }
    }
  }
}`

// FetchRoster reads the roster board with its voice-part metadata.
// POST: the roster is parsed but not validated
func (c *Client) FetchRoster(ctx context.Context) (roster.Roster, error) {
	b, err := c.queryBoard(ctx, c.config.RosterBoardID, rosterQuery)
	if err != nil {
		return roster.Roster{}, fmt.Errorf("roster board: %w", err)
	}
	r, err := parseRoster(b)
	if err != nil {
		return roster.Roster{}, fmt.Errorf("roster board: %w", err)
	}
	slog.Info("monday_roster_fetched", "singers", len(r.Entries), "voice_parts", len(r.VoiceParts))
	return r, nil
}

// FetchCandidates reads the audition board.
func (c *Client) FetchCandidates(ctx context.Context) ([]member.Candidate, error) {
	b, err := c.queryBoard(ctx, c.config.AuditionBoardID, auditionQuery)
	if err != nil {
		return nil, fmt.Errorf("audition board: %w", err)
	}
	candidates := parseCandidates(b)
	slog.Info("monday_candidates_fetched", "candidates", len(candidates))
	return candidates, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data struct {
		Boards []board `json:"boards"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
	ErrorMessage string `json:"error_message"`
}

type board struct {
	Columns []struct {
		Title       string `json:"title"`
		SettingsStr string `json:"settings_str"`
	} `json:"columns"`
	ItemsPage struct {
		Items []item `json:"items"`
	} `json:"items_page"`
}

type item struct {
	Name  string `json:"name"`
	Group *struct {
		Title string `json:"title"`
	} `json:"group"`
	ColumnValues []struct {
		Column struct {
			Title string `json:"title"`
		} `json:"column"`
		Text string `json:"text"`
	} `json:"column_values"`
}

func (c *Client) queryBoard(ctx context.Context, boardID, query string) (board, error) {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: map[string]any{"boardId": boardID}})
	if err != nil {
		return board{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL, bytes.NewReader(body))
	if err != nil {
		return board{}, err
	}
	req.Header.Set("Authorization", c.config.APIKey)
	req.Header.Set("API-Version", APIVersion)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return board{}, fmt.Errorf("query board %s: %w", boardID, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return board{}, fmt.Errorf("read board %s: %w", boardID, err)
	}
	slog.Debug("monday_query", "board_id", boardID, "status", resp.StatusCode, "bytes", len(raw), "duration", time.Since(start))
	if resp.StatusCode != http.StatusOK {
		return board{}, fmt.Errorf("%w: board %s: status %d: %s", ErrAPI, boardID, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out graphQLResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return board{}, fmt.Errorf("decode board %s: %w", boardID, err)
	}
	if out.ErrorMessage != "" {
		return board{}, fmt.Errorf("%w: %s", ErrAPI, out.ErrorMessage)
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, len(out.Errors))
		for i, e := range out.Errors {
			msgs[i] = e.Message
		}
		return board{}, fmt.Errorf("%w: %s", ErrAPI, strings.Join(msgs, "; "))
	}
	if len(out.Data.Boards) == 0 {
		return board{}, fmt.Errorf("%w: board %s not found", ErrAPI, boardID)
	}
	return out.Data.Boards[0], nil
}
