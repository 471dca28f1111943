// Package archive persists report deliveries so runs can be audited with the
// history command and the preview server.
package archive

import (
	"context"

	domain "choirreport/internal/domain/email"
)

// Store defines delivery persistence.
type Store interface {
	// Record persists a delivery, replacing any earlier state with the same ID.
	// PRE: d.ID is non-empty
	Record(ctx context.Context, d domain.Delivery) error

	// GetByID retrieves one delivery including its HTML body.
	GetByID(ctx context.Context, id string) (domain.Delivery, error)

	// List returns the newest deliveries first, optionally filtered by kind.
	// PRE: limit > 0
	List(ctx context.Context, kind string, limit int) ([]domain.Delivery, error)

	// ListByRun returns the deliveries of one run in creation order.
	ListByRun(ctx context.Context, runID string) ([]domain.Delivery, error)
}
