package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bezpauzy/eva-bot/internal/models"
)

const queryColumns = `id, user_id, query_text, response_text, status, source, telegram_message_id, created_at, updated_at`

type QueryRepository struct {
	db  *sqlx.DB
	now Clock
}

func NewQueryRepository(db *sqlx.DB, now Clock) *QueryRepository {
	if now == nil {
		now = SystemClock
	}
	return &QueryRepository{db: db, now: now}
}

// Create inserts q in the processing state with the placeholder response.
func (r *QueryRepository) Create(ctx context.Context, q *models.Query) error {
	now := r.now()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	q.Status = models.QueryProcessing
	q.ResponseText = models.ResponsePlaceholder
	q.CreatedAt = now
	q.UpdatedAt = now

	const query = `
INSERT INTO queries (` + queryColumns + `)
VALUES (:id, :user_id, :query_text, :response_text, :status, :source, :telegram_message_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, q); err != nil {
		return fmt.Errorf("insert query: %w", err)
	}
	return nil
}

// Resolve moves a processing query to a terminal status. It reports false when
// the query was already terminal (or does not exist), leaving the row untouched.
func (r *QueryRepository) Resolve(ctx context.Context, id string, status models.QueryStatus, response string) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("resolve query: %q is not a terminal status", status)
	}
	const query = `
UPDATE queries SET status = ?, response_text = ?, updated_at = ?
WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, status, response, r.now(), id, models.QueryProcessing)
	if err != nil {
		return false, fmt.Errorf("resolve query: %w", err)
	}
	return affected(res)
}

func (r *QueryRepository) FindByID(ctx context.Context, id string) (*models.Query, error) {
	var q models.Query
	if err := r.db.GetContext(ctx, &q, `SELECT `+queryColumns+` FROM queries WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get query: %w", err)
	}
	return &q, nil
}

// FindForUser returns the query only when it belongs to userID.
func (r *QueryRepository) FindForUser(ctx context.Context, id, userID string) (*models.Query, error) {
	var q models.Query
	err := r.db.GetContext(ctx, &q, `SELECT `+queryColumns+` FROM queries WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user query: %w", err)
	}
	return &q, nil
}

// ListNewest returns the user's queries newest first; limit <= 0 means all.
func (r *QueryRepository) ListNewest(ctx context.Context, userID string, limit int) ([]models.Query, error) {
	return r.list(ctx, `SELECT `+queryColumns+` FROM queries WHERE user_id = ? ORDER BY created_at DESC`, userID, limit)
}

// ListOldest returns up to limit queries oldest first.
func (r *QueryRepository) ListOldest(ctx context.Context, userID string, limit int) ([]models.Query, error) {
	return r.list(ctx, `SELECT `+queryColumns+` FROM queries WHERE user_id = ? ORDER BY created_at ASC`, userID, limit)
}

// RecentCompleted returns the last limit completed exchanges in chronological order.
func (r *QueryRepository) RecentCompleted(ctx context.Context, userID string, limit int) ([]models.Query, error) {
	const query = `SELECT ` + queryColumns + ` FROM queries WHERE user_id = ? AND status = 'completed' ORDER BY created_at DESC`
	items, err := r.list(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (r *QueryRepository) list(ctx context.Context, query, userID string, limit int) ([]models.Query, error) {
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var items []models.Query
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	return items, nil
}

// FailStale marks queries still processing since before cutoff as failed.
func (r *QueryRepository) FailStale(ctx context.Context, cutoff time.Time, response string) (int64, error) {
	const query = `
UPDATE queries SET status = ?, response_text = ?, updated_at = ?
WHERE status = ? AND created_at < ?`
	res, err := r.db.ExecContext(ctx, query, models.QueryFailed, response, r.now(), models.QueryProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail stale queries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale rows affected: %w", err)
	}
	return n, nil
}
