package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/romanzh1/startup-sprint/internal/models"
	"go.uber.org/zap"
)

// Seed creates the starter program when the store holds no programs yet.
// It reports whether anything was created.
func (s *Service) Seed(ctx context.Context) (bool, error) {
	now := s.now()
	created := false

	err := s.repo.RunInTx(ctx, func(repo models.Repository) error {
		programs, err := repo.ListPrograms(ctx)
		if err != nil {
			return err
		}
		if len(programs) > 0 {
			return nil
		}

		program := &models.Program{
			ID:          uuid.New(),
			Name:        "14-дневный стартап-спринт",
			Description: "Короткие уроки и домашние задания, чтобы за две недели пройти путь от идеи до первых клиентов.",
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := repo.CreateProgram(ctx, program); err != nil {
			return err
		}

		lessons := []*models.Lesson{
			{
				Title:                  "День 1. Идея и проблема",
				Description:            "Формулируем проблему, которую решает продукт, и того, у кого она болит.",
				HomeworkText:           "Запишите три гипотезы о проблеме клиента и проверьте одну из них в разговоре.",
				Visibility:             models.VisibilityFree,
				DelayHoursFromPrevious: 0,
				ExpiresInHours:         48,
			},
			{
				Title:                  "День 2. Интервью с клиентами",
				Description:            "Как договориться о встрече и задавать вопросы, которые не подсказывают ответ.",
				HomeworkText:           "Проведите два интервью и выпишите повторяющиеся боли.",
				Visibility:             models.VisibilityPaid,
				DelayHoursFromPrevious: 12,
				ExpiresInHours:         48,
			},
		}
		for i, l := range lessons {
			l.ID = uuid.New()
			l.ProgramID = program.ID
			l.OrderIndex = i + 1
			l.CreatedAt = now
			l.UpdatedAt = now
			if err := repo.CreateLesson(ctx, l); err != nil {
				return err
			}
		}

		upsell := DefaultUpsell()
		upsell.UpdatedAt = now
		if err := repo.SaveUpsell(ctx, upsell); err != nil {
			return err
		}

		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("seed defaults: %w", err)
	}

	if created {
		zap.S().Info("seeded starter program")
	}
	return created, nil
}
