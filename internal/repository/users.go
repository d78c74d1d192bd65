package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/romanzh1/startup-sprint/internal/models"
)

const userColumns = `id, telegram_id, username, is_paid, created_at, updated_at`

func (r Postgres) CreateUser(ctx context.Context, user *models.User) error {
	query := r.psql.Insert("users").
		Columns("id", "telegram_id", "username", "is_paid", "created_at", "updated_at").
		Values(user.ID, user.TelegramID, user.Username, user.IsPaid, user.CreatedAt, user.UpdatedAt)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (telegram_id: %d): %w", user.TelegramID, err)
	}

	if _, err = r.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("create user (telegram_id: %d, username: %s): %w", user.TelegramID, user.Username, err)
	}
	return nil
}

func (r Postgres) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user models.User
	if err := r.GetContext(ctx, &user, query, id); err != nil {
		return nil, fmt.Errorf("get user (user_id: %s): %w", id, notFound(err))
	}
	return &user, nil
}

func (r Postgres) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`

	var user models.User
	if err := r.GetContext(ctx, &user, query, telegramID); err != nil {
		return nil, fmt.Errorf("get user (telegram_id: %d): %w", telegramID, notFound(err))
	}
	return &user, nil
}

func (r Postgres) UpdateUserPaid(ctx context.Context, id uuid.UUID, isPaid bool, updatedAt time.Time) error {
	query := r.psql.Update("users").
		Set("is_paid", isPaid).
		Set("updated_at", updatedAt).
		Where("id = ?", id)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (user_id: %s): %w", id, err)
	}

	res, err := r.ExecContext(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update user paid (user_id: %s, is_paid: %t): %w", id, isPaid, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update user paid (user_id: %s): %w", id, models.ErrNotFound)
	}
	return nil
}
