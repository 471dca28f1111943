package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"choirreport/internal/adapters/storage"
	domain "choirreport/internal/domain/email"
)

const dateLayout = "2006-01-02T15:04:05.999999999Z07:00"

// ErrNotFound is returned by GetByID for an unknown delivery.
var ErrNotFound = errors.New("delivery not found")

const selectColumns = `SELECT id, run_id, kind, subject, recipients, cc, html, status, attempts, max_attempts,
	message_id, error, created_at, updated_at FROM delivery`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new archive store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Record upserts a delivery. A run records each delivery after its final
// attempt, so the row always holds the terminal state.
func (s *SQLiteStore) Record(ctx context.Context, d domain.Delivery) error {
	if d.ID == "" {
		return errors.New("delivery id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery (id, run_id, kind, subject, recipients, cc, html, status, attempts, max_attempts,
		   message_id, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   subject=excluded.subject, recipients=excluded.recipients, cc=excluded.cc, html=excluded.html,
		   status=excluded.status, attempts=excluded.attempts, max_attempts=excluded.max_attempts,
		   message_id=excluded.message_id, error=excluded.error, updated_at=excluded.updated_at`,
		d.ID, d.RunID, d.Kind, d.Subject, joinAddrs(d.To), joinAddrs(d.Cc), d.HTML, d.Status,
		d.Attempts, d.MaxAttempts, d.MessageID, d.Error,
		d.CreatedAt.UTC().Format(dateLayout), d.UpdatedAt.UTC().Format(dateLayout))
	if err != nil {
		return fmt.Errorf("record delivery %s: %w", d.ID, err)
	}
	return nil
}

// GetByID retrieves one delivery.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Delivery, error) {
	d, err := scanDelivery(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Delivery{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, err
}

// List returns up to limit deliveries, newest first. An empty kind matches all.
func (s *SQLiteStore) List(ctx context.Context, kind string, limit int) ([]domain.Delivery, error) {
	var rows *sql.Rows
	var err error
	if kind != "" {
		rows, err = s.db.QueryContext(ctx, selectColumns+` WHERE kind = ? ORDER BY created_at DESC, id LIMIT ?`, kind, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, id LIMIT ?`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

// ListByRun returns a run's deliveries oldest first.
func (s *SQLiteStore) ListByRun(ctx context.Context, runID string) ([]domain.Delivery, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE run_id = ? ORDER BY created_at ASC, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

func joinAddrs(addrs []string) string {
	return strings.Join(addrs, ",")
}

func splitAddrs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row scanner) (domain.Delivery, error) {
	var d domain.Delivery
	var to, cc, createdAt, updatedAt string
	err := row.Scan(&d.ID, &d.RunID, &d.Kind, &d.Subject, &to, &cc, &d.HTML, &d.Status, &d.Attempts,
		&d.MaxAttempts, &d.MessageID, &d.Error, &createdAt, &updatedAt)
	if err != nil {
		return domain.Delivery{}, err
	}
	d.To, d.Cc = splitAddrs(to), splitAddrs(cc)
	d.CreatedAt, _ = time.Parse(dateLayout, createdAt)
	d.UpdatedAt, _ = time.Parse(dateLayout, updatedAt)
	return d, nil
}

func scanDeliveries(rows *sql.Rows) ([]domain.Delivery, error) {
	var out []domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
