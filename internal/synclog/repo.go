package synclog

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const defaultListLimit = 500

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	var details any
	if len(e.Details) > 0 {
		details = []byte(e.Details)
	}

	query := `INSERT INTO sync_events (item_id, catalog_ref, kind, status_code, message, details, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		nullable(e.ItemID), nullable(e.CatalogRef), string(e.Kind),
		e.StatusCode, nullable(e.Message), details, e.OccurredAt)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Event, error) {
	builder := sq.Select("id", "item_id", "catalog_ref", "kind", "status_code", "message", "details", "occurred_at").
		From("sync_events").
		PlaceholderFormat(sq.Dollar).
		OrderBy("occurred_at ASC", "id ASC")

	if f.ItemID != "" {
		builder = builder.Where(sq.Eq{"item_id": f.ItemID})
	}
	if f.CatalogRef != "" {
		builder = builder.Where(sq.Eq{"catalog_ref": f.CatalogRef})
	}
	if f.Kind != "" {
		builder = builder.Where(sq.Eq{"kind": string(f.Kind)})
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	builder = builder.Limit(uint64(limit))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e          Event
			itemID     sql.NullString
			catalogRef sql.NullString
			message    sql.NullString
			details    []byte
		)
		if err := rows.Scan(&e.ID, &itemID, &catalogRef, &e.Kind, &e.StatusCode, &message, &details, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.ItemID = itemID.String
		e.CatalogRef = catalogRef.String
		e.Message = message.String
		e.Details = details
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
