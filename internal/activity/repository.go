package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores entries in the activity_log table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `id, log_name, event, description, subject_type, subject_id, causer_id, properties, created_at`

// Insert appends an entry.
func (r *Repository) Insert(ctx context.Context, entry Entry) (Entry, error) {
	props, err := json.Marshal(entry.Properties)
	if err != nil {
		return Entry{}, fmt.Errorf("activity: encode properties: %w", err)
	}
	row := r.pool.QueryRow(ctx, `INSERT INTO activity_log (log_name, event, description, subject_type, subject_id, causer_id, properties, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, 0), $7, $8)
RETURNING `+entryColumns,
		entry.LogName, entry.Event, entry.Description, entry.SubjectType, entry.SubjectID, entry.CauserID, props, entry.CreatedAt)
	return scanEntry(row)
}

// List returns entries newest first together with the unpaged total.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Entry, int, error) {
	const where = `WHERE ($1 = '' OR log_name = $1) AND ($2 = 0 OR causer_id = $2)`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activity_log `+where, filter.LogName, filter.CauserID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM activity_log `+where+`
ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`, filter.LogName, filter.CauserID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

// Get fetches an entry by id.
func (r *Repository) Get(ctx context.Context, id int64) (Entry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM activity_log WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return entry, err
}

// Delete removes an entry by id.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM activity_log WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBefore removes entries created before cutoff.
func (r *Repository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM activity_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		entry       Entry
		subjectType *string
		subjectID   *string
		causerID    *int64
		props       []byte
	)
	if err := row.Scan(&entry.ID, &entry.LogName, &entry.Event, &entry.Description, &subjectType, &subjectID, &causerID, &props, &entry.CreatedAt); err != nil {
		return Entry{}, err
	}
	if subjectType != nil {
		entry.SubjectType = *subjectType
	}
	if subjectID != nil {
		entry.SubjectID = *subjectID
	}
	if causerID != nil {
		entry.CauserID = *causerID
	}
	if len(props) > 0 && string(props) != "null" {
		if err := json.Unmarshal(props, &entry.Properties); err != nil {
			return Entry{}, fmt.Errorf("activity: decode properties: %w", err)
		}
	}
	return entry, nil
}
