package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/romanzh1/startup-sprint/internal/models"
)

const programColumns = `id, name, description, is_active, created_at, updated_at`

func (r Postgres) CreateProgram(ctx context.Context, program *models.Program) error {
	query := r.psql.Insert("programs").
		Columns("id", "name", "description", "is_active", "created_at", "updated_at").
		Values(program.ID, program.Name, program.Description, program.IsActive, program.CreatedAt, program.UpdatedAt)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (program_id: %s): %w", program.ID, err)
	}

	if _, err = r.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("create program (program_id: %s, name: %s): %w", program.ID, program.Name, err)
	}
	return nil
}

func (r Postgres) UpdateProgram(ctx context.Context, program *models.Program) error {
	query := r.psql.Update("programs").
		Set("name", program.Name).
		Set("description", program.Description).
		Set("is_active", program.IsActive).
		Set("updated_at", program.UpdatedAt).
		Where("id = ?", program.ID)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (program_id: %s): %w", program.ID, err)
	}

	res, err := r.ExecContext(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update program (program_id: %s): %w", program.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update program (program_id: %s): %w", program.ID, models.ErrNotFound)
	}
	return nil
}

func (r Postgres) GetProgram(ctx context.Context, id uuid.UUID) (*models.Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs WHERE id = $1`

	var program models.Program
	if err := r.GetContext(ctx, &program, query, id); err != nil {
		return nil, fmt.Errorf("get program (program_id: %s): %w", id, notFound(err))
	}
	return &program, nil
}

func (r Postgres) GetActiveProgram(ctx context.Context) (*models.Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs WHERE is_active = TRUE ORDER BY updated_at DESC LIMIT 1`

	var program models.Program
	if err := r.GetContext(ctx, &program, query); err != nil {
		return nil, fmt.Errorf("get active program: %w", notFound(err))
	}
	return &program, nil
}

func (r Postgres) ListPrograms(ctx context.Context) ([]*models.ProgramWithCount, error) {
	query := `
		SELECT p.id, p.name, p.description, p.is_active, p.created_at, p.updated_at,
		       COUNT(l.id) AS lesson_count
		FROM programs p
		LEFT JOIN lessons l ON l.program_id = p.id
		GROUP BY p.id
		ORDER BY p.created_at ASC
	`

	var programs []*models.ProgramWithCount
	if err := r.SelectContext(ctx, &programs, query); err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return programs, nil
}

func (r Postgres) DeactivatePrograms(ctx context.Context, except uuid.UUID) error {
	query := r.psql.Update("programs").
		Set("is_active", false).
		Where("id <> ? AND is_active = TRUE", except)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query (except: %s): %w", except, err)
	}

	if _, err = r.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("deactivate programs (except: %s): %w", except, err)
	}
	return nil
}
