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

const videoColumns = `id, slug, title, description, doctor_name, doctor_specialty, doctor_credentials, duration_seconds,
content_type, access_level, published, published_at, views, created_at, updated_at`

type VideoRepository struct {
	db  *sqlx.DB
	now Clock
}

func NewVideoRepository(db *sqlx.DB, now Clock) *VideoRepository {
	if now == nil {
		now = SystemClock
	}
	return &VideoRepository{db: db, now: now}
}

// ListPublished returns catalog items visible at asOf, newest publication first.
func (r *VideoRepository) ListPublished(ctx context.Context, contentType, accessLevel string, asOf time.Time, limit int) ([]models.Video, error) {
	const query = `
SELECT ` + videoColumns + ` FROM videos
WHERE content_type = ? AND published = ? AND access_level = ? AND published_at IS NOT NULL AND published_at <= ?
ORDER BY published_at DESC
LIMIT ?`
	var items []models.Video
	if err := r.db.SelectContext(ctx, &items, query, contentType, true, accessLevel, asOf, limit); err != nil {
		return nil, fmt.Errorf("list published videos: %w", err)
	}
	return items, nil
}

func (r *VideoRepository) List(ctx context.Context) ([]models.Video, error) {
	var items []models.Video
	if err := r.db.SelectContext(ctx, &items, `SELECT `+videoColumns+` FROM videos ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return items, nil
}

func (r *VideoRepository) FindByID(ctx context.Context, id string) (*models.Video, error) {
	var v models.Video
	if err := r.db.GetContext(ctx, &v, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get video: %w", err)
	}
	return &v, nil
}

func (r *VideoRepository) Create(ctx context.Context, v *models.Video) error {
	now := r.now()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.CreatedAt = now
	v.UpdatedAt = now

	const query = `
INSERT INTO videos (` + videoColumns + `)
VALUES (:id, :slug, :title, :description, :doctor_name, :doctor_specialty, :doctor_credentials, :duration_seconds,
:content_type, :access_level, :published, :published_at, :views, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, v); err != nil {
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

func (r *VideoRepository) Update(ctx context.Context, v *models.Video) (bool, error) {
	v.UpdatedAt = r.now()
	const query = `
UPDATE videos SET slug = :slug, title = :title, description = :description, doctor_name = :doctor_name,
doctor_specialty = :doctor_specialty, doctor_credentials = :doctor_credentials, duration_seconds = :duration_seconds,
content_type = :content_type, access_level = :access_level, published = :published, published_at = :published_at,
updated_at = :updated_at
WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, v)
	if err != nil {
		return false, fmt.Errorf("update video: %w", err)
	}
	return affected(res)
}

func (r *VideoRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete video: %w", err)
	}
	return affected(res)
}

func (r *VideoRepository) IncrementViews(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE videos SET views = views + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("increment video views: %w", err)
	}
	return nil
}
