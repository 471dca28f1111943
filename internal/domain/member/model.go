package member

import (
	"errors"
	"strings"
)

// Business rule constants
const (
	ResultAccepted = "Accepted"
)

// Domain errors
var (
	ErrEmptyWholeName = errors.New("portal member name cannot be empty")
	ErrEmptyName      = errors.New("audition candidate name cannot be empty")
)

// Member is an active account in the membership portal.
type Member struct {
	WholeName    string
	PrimaryEmail string
	VoicePart    string
	Active       bool
}

// Validate checks if the Member has valid data.
// PRE: Member struct is initialized
// POST: Returns error if validation fails, nil otherwise
// INVARIANT: WholeName must not be empty
func (m *Member) Validate() error {
	if strings.TrimSpace(m.WholeName) == "" {
		return ErrEmptyWholeName
	}
	return nil
}

// Candidate is one item on the audition board.
type Candidate struct {
	Name   string
	Group  string // season label, e.g. "2025-26"
	Result string
	Email  string
}

// Validate checks if the Candidate has valid data.
// PRE: Candidate struct is initialized
// POST: Returns error if validation fails, nil otherwise
func (c *Candidate) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

// AcceptedFor reports whether the candidate was accepted for the given season.
// INVARIANT: Candidate fields are not mutated
func (c *Candidate) AcceptedFor(season string) bool {
	return c != nil && c.Group == season && c.Result == ResultAccepted
}
