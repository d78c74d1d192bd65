package repository

import (
	"context"
	"fmt"

	"github.com/romanzh1/startup-sprint/internal/models"
)

// upsell_settings holds a single row with id = 1.
func (r Postgres) GetUpsell(ctx context.Context) (*models.UpsellSettings, error) {
	query := `SELECT title, text, button_label, button_url, updated_at FROM upsell_settings WHERE id = 1`

	var settings models.UpsellSettings
	if err := r.GetContext(ctx, &settings, query); err != nil {
		return nil, fmt.Errorf("get upsell settings: %w", notFound(err))
	}
	return &settings, nil
}

func (r Postgres) SaveUpsell(ctx context.Context, settings *models.UpsellSettings) error {
	query := r.psql.Insert("upsell_settings").
		Columns("id", "title", "text", "button_label", "button_url", "updated_at").
		Values(1, settings.Title, settings.Text, settings.ButtonLabel, settings.ButtonURL, settings.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			text = EXCLUDED.text,
			button_label = EXCLUDED.button_label,
			button_url = EXCLUDED.button_url,
			updated_at = EXCLUDED.updated_at`)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build SQL query: %w", err)
	}

	if _, err = r.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("save upsell settings: %w", err)
	}
	return nil
}

func (r Postgres) GetStats(ctx context.Context) (*models.Stats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users) AS users,
			(SELECT COUNT(*) FROM users WHERE is_paid) AS paid,
			(SELECT COUNT(*) FROM user_program_progress WHERE status = 'COMPLETED') AS completed,
			(SELECT COUNT(*) FROM user_program_progress WHERE status = 'FAILED') AS failed
	`

	var stats models.Stats
	if err := r.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return &stats, nil
}
