package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/romanzh1/startup-sprint/internal/models"
)

const lessonColumns = `id, program_id, order_index, title, description, video_url, homework_text,
	visibility, delay_hours_from_previous, expires_in_hours, created_at, updated_at`

func (r Postgres) CreateLesson(ctx context.Context, lesson *models.Lesson) error {
	query := r.psql.Insert("lessons").
		Columns("id", "program_id", "order_index", "title", "description", "video_url", "homework_text",
			"visibility", "delay_hours_from_previous", "expires_in_hours", "created_at", "updated_at").
		Values(lesson.ID, lesson.ProgramID, lesson.OrderIndex, lesson.Title, lesson.Description, lesson.VideoURL, lesson.HomeworkText,
			string(lesson.Visibility), lesson.DelayHoursFromPrevious, lesson.ExpiresInHours, lesson.CreatedAt, lesson.UpdatedAt)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (lesson_id: %s): %w", lesson.ID, err)
	}

	if _, err = r.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("create lesson (lesson_id: %s, program_id: %s, order_index: %d): %w", lesson.ID, lesson.ProgramID, lesson.OrderIndex, err)
	}
	return nil
}

func (r Postgres) UpdateLesson(ctx context.Context, lesson *models.Lesson) error {
	query := r.psql.Update("lessons").
		Set("order_index", lesson.OrderIndex).
		Set("title", lesson.Title).
		Set("description", lesson.Description).
		Set("video_url", lesson.VideoURL).
		Set("homework_text", lesson.HomeworkText).
		Set("visibility", string(lesson.Visibility)).
		Set("delay_hours_from_previous", lesson.DelayHoursFromPrevious).
		Set("expires_in_hours", lesson.ExpiresInHours).
		Set("updated_at", lesson.UpdatedAt).
		Where("id = ?", lesson.ID)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (lesson_id: %s): %w", lesson.ID, err)
	}

	res, err := r.ExecContext(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update lesson (lesson_id: %s): %w", lesson.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update lesson (lesson_id: %s): %w", lesson.ID, models.ErrNotFound)
	}
	return nil
}

func (r Postgres) GetLesson(ctx context.Context, id uuid.UUID) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1`

	var lesson models.Lesson
	if err := r.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, fmt.Errorf("get lesson (lesson_id: %s): %w", id, notFound(err))
	}
	return &lesson, nil
}

func (r Postgres) ListLessons(ctx context.Context, programID uuid.UUID) ([]*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE program_id = $1 ORDER BY order_index ASC`

	var lessons []*models.Lesson
	if err := r.SelectContext(ctx, &lessons, query, programID); err != nil {
		return nil, fmt.Errorf("list lessons (program_id: %s): %w", programID, err)
	}
	return lessons, nil
}

// DeleteLesson removes the lesson; its progress rows go with it via ON DELETE CASCADE.
func (r Postgres) DeleteLesson(ctx context.Context, id uuid.UUID) error {
	query := r.psql.Delete("lessons").Where("id = ?", id)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (lesson_id: %s): %w", id, err)
	}

	res, err := r.ExecContext(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete lesson (lesson_id: %s): %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete lesson (lesson_id: %s): %w", id, models.ErrNotFound)
	}
	return nil
}
