// Package journal persists committed market events so auditors and indexers
// can replay settlement outcomes after a restart.
package journal

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"carbon-scribe/credit-market/credit-market-backend/internal/market"
)

const schema = `
CREATE TABLE IF NOT EXISTS market_events (
	id           TEXT PRIMARY KEY,
	sequence     BIGINT NOT NULL UNIQUE,
	type         TEXT NOT NULL,
	project_id   BIGINT NOT NULL,
	company_id   TEXT NOT NULL,
	buyer        TEXT NOT NULL DEFAULT '',
	amount       BIGINT NOT NULL DEFAULT 0,
	valid        BOOLEAN NOT NULL DEFAULT FALSE,
	actual_yield BIGINT NOT NULL DEFAULT 0,
	value        TEXT NOT NULL,
	occurred_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_market_events_project ON market_events (project_id, sequence);
`

const columns = `id, sequence, type, project_id, company_id, buyer, amount, valid, actual_yield, value, occurred_at`

type Repository interface {
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, event market.Event) error
	ListSince(ctx context.Context, after uint64, limit int) ([]market.Event, error)
	ListByProject(ctx context.Context, projectID int64) ([]market.Event, error)
	LastSequence(ctx context.Context) (uint64, error)
}

type sqlRepository struct {
	db *sqlx.DB
}

// NewRepository works with both the postgres and sqlite drivers; queries are
// rebound to the driver's placeholder style.
func NewRepository(db *sqlx.DB) Repository {
	return &sqlRepository{db: db}
}

func (r *sqlRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

func (r *sqlRepository) Append(ctx context.Context, event market.Event) error {
	query := `
		INSERT INTO market_events (` + columns + `)
		VALUES (:id, :sequence, :type, :project_id, :company_id, :buyer, :amount, :valid, :actual_yield, :value, :occurred_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("failed to append event %d: %w", event.Sequence, err)
	}
	return nil
}

func (r *sqlRepository) ListSince(ctx context.Context, after uint64, limit int) ([]market.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	events := []market.Event{}
	query := r.db.Rebind(`SELECT ` + columns + ` FROM market_events WHERE sequence > ? ORDER BY sequence LIMIT ?`)
	if err := r.db.SelectContext(ctx, &events, query, int64(after), limit); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

func (r *sqlRepository) ListByProject(ctx context.Context, projectID int64) ([]market.Event, error) {
	events := []market.Event{}
	query := r.db.Rebind(`SELECT ` + columns + ` FROM market_events WHERE project_id = ? ORDER BY sequence`)
	if err := r.db.SelectContext(ctx, &events, query, projectID); err != nil {
		return nil, fmt.Errorf("failed to list events for project %d: %w", projectID, err)
	}
	return events, nil
}

func (r *sqlRepository) LastSequence(ctx context.Context) (uint64, error) {
	var last int64
	if err := r.db.GetContext(ctx, &last, `SELECT COALESCE(MAX(sequence), 0) FROM market_events`); err != nil {
		return 0, fmt.Errorf("failed to read last sequence: %w", err)
	}
	return uint64(last), nil
}
