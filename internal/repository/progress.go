package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/romanzh1/startup-sprint/internal/models"
)

const programProgressColumns = `id, user_id, program_id, status, started_at, finished_at, last_lesson_id, updated_at`

func (r Postgres) GetProgramProgress(ctx context.Context, userID, programID uuid.UUID) (*models.UserProgramProgress, error) {
	query := `SELECT ` + programProgressColumns + ` FROM user_program_progress WHERE user_id = $1 AND program_id = $2`

	var progress models.UserProgramProgress
	if err := r.GetContext(ctx, &progress, query, userID, programID); err != nil {
		return nil, fmt.Errorf("get program progress (user_id: %s, program_id: %s): %w", userID, programID, notFound(err))
	}
	return &progress, nil
}

func (r Postgres) SaveProgramProgress(ctx context.Context, progress *models.UserProgramProgress) error {
	query := r.psql.Insert("user_program_progress").
		Columns("id", "user_id", "program_id", "status", "started_at", "finished_at", "last_lesson_id", "updated_at").
		Values(progress.ID, progress.UserID, progress.ProgramID, string(progress.Status), progress.StartedAt,
			progress.FinishedAt, progress.LastLessonID, progress.UpdatedAt).
		Suffix(`ON CONFLICT (user_id, program_id) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			last_lesson_id = EXCLUDED.last_lesson_id,
			updated_at = EXCLUDED.updated_at`)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (user_id: %s, program_id: %s): %w", progress.UserID, progress.ProgramID, err)
	}

	if _, err = r.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("save program progress (user_id: %s, program_id: %s, status: %s): %w", progress.UserID, progress.ProgramID, progress.Status, err)
	}
	return nil
}

// ListLessonProgress returns the user's rows for every lesson of the program, archived ones included.
func (r Postgres) ListLessonProgress(ctx context.Context, userID, programID uuid.UUID) ([]*models.UserLessonProgress, error) {
	query := `
		SELECT p.id, p.user_id, p.lesson_id, p.status, p.unlocked_at, p.expires_at, p.completed_at, p.updated_at
		FROM user_lesson_progress p
		JOIN lessons l ON l.id = p.lesson_id
		WHERE p.user_id = $1 AND l.program_id = $2
		ORDER BY l.order_index ASC
	`

	var rows []*models.UserLessonProgress
	if err := r.SelectContext(ctx, &rows, query, userID, programID); err != nil {
		return nil, fmt.Errorf("list lesson progress (user_id: %s, program_id: %s): %w", userID, programID, err)
	}
	return rows, nil
}

func (r Postgres) SaveLessonProgress(ctx context.Context, progress *models.UserLessonProgress) error {
	query := r.psql.Insert("user_lesson_progress").
		Columns("id", "user_id", "lesson_id", "status", "unlocked_at", "expires_at", "completed_at", "updated_at").
		Values(progress.ID, progress.UserID, progress.LessonID, string(progress.Status), progress.UnlockedAt,
			progress.ExpiresAt, progress.CompletedAt, progress.UpdatedAt).
		Suffix(`ON CONFLICT (user_id, lesson_id) DO UPDATE SET
			status = EXCLUDED.status,
			unlocked_at = EXCLUDED.unlocked_at,
			expires_at = EXCLUDED.expires_at,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at`)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (user_id: %s, lesson_id: %s): %w", progress.UserID, progress.LessonID, err)
	}

	if _, err = r.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("save lesson progress (user_id: %s, lesson_id: %s, status: %s): %w", progress.UserID, progress.LessonID, progress.Status, err)
	}
	return nil
}

func (r Postgres) DeleteProgress(ctx context.Context, userID, programID uuid.UUID) error {
	lessons := r.psql.Delete("user_lesson_progress").
		Where("user_id = ?", userID).
		Where("lesson_id IN (SELECT id FROM lessons WHERE program_id = ?)", programID)

	sql, args, err := lessons.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (user_id: %s, program_id: %s): %w", userID, programID, err)
	}
	if _, err = r.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete lesson progress (user_id: %s, program_id: %s): %w", userID, programID, err)
	}

	program := r.psql.Delete("user_program_progress").
		Where("user_id = ? AND program_id = ?", userID, programID)

	sql, args, err = program.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (user_id: %s, program_id: %s): %w", userID, programID, err)
	}
	if _, err = r.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete program progress (user_id: %s, program_id: %s): %w", userID, programID, err)
	}

	return nil
}

func (r Postgres) ListInProgress(ctx context.Context, programID uuid.UUID) ([]*models.UserProgramProgress, error) {
	query := `SELECT ` + programProgressColumns + ` FROM user_program_progress
		WHERE program_id = $1 AND status = $2
		ORDER BY started_at ASC`

	var rows []*models.UserProgramProgress
	if err := r.SelectContext(ctx, &rows, query, programID, string(models.ProgramInProgress)); err != nil {
		return nil, fmt.Errorf("list in-progress (program_id: %s): %w", programID, err)
	}
	return rows, nil
}
