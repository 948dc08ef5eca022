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

const userColumns = `id, telegram_id, subscription_status, subscription_plan, is_subscribed, age_range, city,
consent_given_at, subscription_cancelled_at, created_at, updated_at`

type UserRepository struct {
	db  *sqlx.DB
	now Clock
}

func NewUserRepository(db *sqlx.DB, now Clock) *UserRepository {
	if now == nil {
		now = SystemClock
	}
	return &UserRepository{db: db, now: now}
}

func (r *UserRepository) DB() *sqlx.DB {
	return r.db
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = ?`
	return r.get(ctx, query, telegramID)
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return r.get(ctx, query, id)
}

func (r *UserRepository) get(ctx context.Context, query string, arg any) (*models.User, error) {
	var u models.User
	if err := r.db.GetContext(ctx, &u, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// Create inserts user, filling in the id, defaults and timestamps.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := r.now()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.SubscriptionStatus == "" {
		user.SubscriptionStatus = models.SubscriptionInactive
	}
	if user.SubscriptionPlan == "" {
		user.SubscriptionPlan = models.PlanFree
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
INSERT INTO users (` + userColumns + `)
VALUES (:id, :telegram_id, :subscription_status, :subscription_plan, :is_subscribed, :age_range, :city,
:consent_given_at, :subscription_cancelled_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateConsent(ctx context.Context, userID string, at time.Time) error {
	const query = `UPDATE users SET consent_given_at = ?, updated_at = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, at, r.now(), userID); err != nil {
		return fmt.Errorf("update consent: %w", err)
	}
	return nil
}

func (r *UserRepository) SetAgeRange(ctx context.Context, userID string, age models.AgeRange) error {
	const query = `UPDATE users SET age_range = ?, updated_at = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, string(age), r.now(), userID); err != nil {
		return fmt.Errorf("set age range: %w", err)
	}
	return nil
}

// CancelSubscription marks the subscription of the user with telegramID as
// cancelled. It reports whether a row was updated.
func (r *UserRepository) CancelSubscription(ctx context.Context, telegramID int64) (bool, error) {
	now := r.now()
	const query = `
UPDATE users SET subscription_status = ?, is_subscribed = ?, subscription_cancelled_at = ?, updated_at = ?
WHERE telegram_id = ?`
	res, err := r.db.ExecContext(ctx, query, models.SubscriptionCancelled, false, now, now, telegramID)
	if err != nil {
		return false, fmt.Errorf("cancel subscription: %w", err)
	}
	return affected(res)
}

func (r *UserRepository) UpdateSubscription(ctx context.Context, userID, status, plan string, subscribed bool) (bool, error) {
	const query = `
UPDATE users SET subscription_status = ?, subscription_plan = ?, is_subscribed = ?, updated_at = ?
WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, status, plan, subscribed, r.now(), userID)
	if err != nil {
		return false, fmt.Errorf("update subscription: %w", err)
	}
	return affected(res)
}

// DeleteWithQueries removes every query of the user and then the user row.
// It returns the number of deleted queries.
func (r *UserRepository) DeleteWithQueries(ctx context.Context, userID string) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete user: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM queries WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user queries: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("queries rows affected: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID); err != nil {
		return 0, fmt.Errorf("delete user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete user: %w", err)
	}
	return deleted, nil
}

func (r *UserRepository) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, `SELECT telegram_id FROM users WHERE telegram_id IS NOT NULL`); err != nil {
		return nil, fmt.Errorf("list telegram ids: %w", err)
	}
	return ids, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
