package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/romanzh1/startup-sprint/internal/models"
	"go.uber.org/zap"
)

const (
	MoveUp   = "up"
	MoveDown = "down"
)

type ProgramInput struct {
	Name        string `validate:"required,max=200"`
	Description string `validate:"max=5000"`
	IsActive    bool
}

type ProgramPatch struct {
	Name        *string `validate:"omitempty,min=1,max=200"`
	Description *string `validate:"omitempty,max=5000"`
	IsActive    *bool
}

type LessonInput struct {
	Title                  string            `validate:"required,max=300"`
	Description            string            `validate:"max=10000"`
	VideoURL               string            `validate:"omitempty,url"`
	HomeworkText           string            `validate:"max=10000"`
	Visibility             models.Visibility `validate:"omitempty,oneof=FREE PAID ARCHIVED"`
	DelayHoursFromPrevious int               `validate:"min=0"`
	ExpiresInHours         int               `validate:"min=0"`
}

type LessonPatch struct {
	Title                  *string            `validate:"omitempty,min=1,max=300"`
	Description            *string            `validate:"omitempty,max=10000"`
	VideoURL               *string            `validate:"omitempty,url"`
	HomeworkText           *string            `validate:"omitempty,max=10000"`
	Visibility             *models.Visibility `validate:"omitempty,oneof=FREE PAID ARCHIVED"`
	DelayHoursFromPrevious *int
	ExpiresInHours         *int
}

type UpsellInput struct {
	Title       string `validate:"required,max=200"`
	Text        string `validate:"max=2000"`
	ButtonLabel string `validate:"required,max=100"`
	ButtonURL   string `validate:"required,url"`
}

func DefaultUpsell() *models.UpsellSettings {
	return &models.UpsellSettings{
		Title:       "Откройте все уроки спринта",
		Text:        "Подпишитесь на закрытый канал, чтобы получить доступ к платным урокам.",
		ButtonLabel: "Получить доступ",
		ButtonURL:   "https://t.me/",
	}
}

func (s *Service) ListPrograms(ctx context.Context) ([]*models.ProgramWithCount, error) {
	programs, err := s.repo.ListPrograms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return programs, nil
}

// CreateProgram stores a new program; an active one deactivates every other program.
func (s *Service) CreateProgram(ctx context.Context, in ProgramInput) (*models.Program, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}

	now := s.now()
	program := &models.Program{
		ID:          uuid.New(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		IsActive:    in.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.repo.RunInTx(ctx, func(repo models.Repository) error {
		if program.IsActive {
			if err := repo.DeactivatePrograms(ctx, program.ID); err != nil {
				return err
			}
		}
		return repo.CreateProgram(ctx, program)
	})
	if err != nil {
		return nil, fmt.Errorf("create program (name: %s): %w", program.Name, err)
	}

	zap.L().Info("program created", zap.String("program_id", program.ID.String()), zap.Bool("active", program.IsActive))
	return program, nil
}

func (s *Service) UpdateProgram(ctx context.Context, id uuid.UUID, patch ProgramPatch) (*models.Program, error) {
	if err := s.check(patch); err != nil {
		return nil, err
	}

	var program *models.Program
	err := s.repo.RunInTx(ctx, func(repo models.Repository) error {
		var err error
		program, err = repo.GetProgram(ctx, id)
		if err != nil {
			return err
		}

		if patch.Name != nil {
			program.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Description != nil {
			program.Description = *patch.Description
		}
		if patch.IsActive != nil {
			program.IsActive = *patch.IsActive
		}
		program.UpdatedAt = s.now()

		if program.IsActive {
			if err := repo.DeactivatePrograms(ctx, program.ID); err != nil {
				return err
			}
		}
		return repo.UpdateProgram(ctx, program)
	})
	if err != nil {
		return nil, fmt.Errorf("update program (program_id: %s): %w", id, err)
	}

	return program, nil
}

func (s *Service) ListLessons(ctx context.Context, programID uuid.UUID) ([]*models.Lesson, error) {
	if _, err := s.repo.GetProgram(ctx, programID); err != nil {
		return nil, fmt.Errorf("list lessons (program_id: %s): %w", programID, err)
	}

	lessons, err := s.repo.ListLessons(ctx, programID)
	if err != nil {
		return nil, fmt.Errorf("list lessons (program_id: %s): %w", programID, err)
	}
	return lessons, nil
}

// CreateLesson appends a lesson to the end of the program.
func (s *Service) CreateLesson(ctx context.Context, programID uuid.UUID, in LessonInput) (*models.Lesson, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}

	now := s.now()
	lesson := &models.Lesson{
		ID:                     uuid.New(),
		ProgramID:              programID,
		Title:                  strings.TrimSpace(in.Title),
		Description:            in.Description,
		VideoURL:               in.VideoURL,
		HomeworkText:           in.HomeworkText,
		Visibility:             in.Visibility,
		DelayHoursFromPrevious: in.DelayHoursFromPrevious,
		ExpiresInHours:         in.ExpiresInHours,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if lesson.Visibility == "" {
		lesson.Visibility = models.VisibilityFree
	}
	if lesson.ExpiresInHours == 0 {
		lesson.ExpiresInHours = models.DefaultExpiresInHours
	}

	err := s.repo.RunInTx(ctx, func(repo models.Repository) error {
		if _, err := repo.GetProgram(ctx, programID); err != nil {
			return err
		}

		lessons, err := repo.ListLessons(ctx, programID)
		if err != nil {
			return err
		}

		lesson.OrderIndex = 1
		if n := len(lessons); n > 0 {
			lesson.OrderIndex = lessons[n-1].OrderIndex + 1
		}

		return repo.CreateLesson(ctx, lesson)
	})
	if err != nil {
		return nil, fmt.Errorf("create lesson (program_id: %s): %w", programID, err)
	}

	return lesson, nil
}

func (s *Service) UpdateLesson(ctx context.Context, id uuid.UUID, patch LessonPatch) (*models.Lesson, error) {
	if err := s.check(patch); err != nil {
		return nil, err
	}
	if patch.DelayHoursFromPrevious != nil && *patch.DelayHoursFromPrevious < 0 {
		return nil, fmt.Errorf("%w: delayHoursFromPrevious must not be negative", models.ErrInvalidInput)
	}
	if patch.ExpiresInHours != nil && *patch.ExpiresInHours <= 0 {
		return nil, fmt.Errorf("%w: expiresInHours must be positive", models.ErrInvalidInput)
	}

	var lesson *models.Lesson
	err := s.repo.RunInTx(ctx, func(repo models.Repository) error {
		var err error
		lesson, err = repo.GetLesson(ctx, id)
		if err != nil {
			return err
		}

		if patch.Title != nil {
			lesson.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			lesson.Description = *patch.Description
		}
		if patch.VideoURL != nil {
			lesson.VideoURL = *patch.VideoURL
		}
		if patch.HomeworkText != nil {
			lesson.HomeworkText = *patch.HomeworkText
		}
		if patch.Visibility != nil {
			lesson.Visibility = *patch.Visibility
		}
		if patch.DelayHoursFromPrevious != nil {
			lesson.DelayHoursFromPrevious = *patch.DelayHoursFromPrevious
		}
		if patch.ExpiresInHours != nil {
			lesson.ExpiresInHours = *patch.ExpiresInHours
		}
		lesson.UpdatedAt = s.now()

		return repo.UpdateLesson(ctx, lesson)
	})
	if err != nil {
		return nil, fmt.Errorf("update lesson (lesson_id: %s): %w", id, err)
	}

	return lesson, nil
}

// DeleteLesson removes the lesson together with every user's progress on it.
func (s *Service) DeleteLesson(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteLesson(ctx, id); err != nil {
		return fmt.Errorf("delete lesson (lesson_id: %s): %w", id, err)
	}

	zap.L().Info("lesson deleted", zap.String("lesson_id", id.String()))
	return nil
}

// MoveLesson swaps the lesson with its neighbour. Moving past either end is a no-op.
func (s *Service) MoveLesson(ctx context.Context, id uuid.UUID, direction string) ([]*models.Lesson, error) {
	if direction != MoveUp && direction != MoveDown {
		return nil, fmt.Errorf("%w: direction must be %q or %q", models.ErrInvalidInput, MoveUp, MoveDown)
	}

	var lessons []*models.Lesson
	err := s.repo.RunInTx(ctx, func(repo models.Repository) error {
		lesson, err := repo.GetLesson(ctx, id)
		if err != nil {
			return err
		}

		lessons, err = repo.ListLessons(ctx, lesson.ProgramID)
		if err != nil {
			return err
		}

		pos := -1
		for i, l := range lessons {
			if l.ID == id {
				pos = i
				break
			}
		}

		target := pos - 1
		if direction == MoveDown {
			target = pos + 1
		}
		if pos < 0 || target < 0 || target >= len(lessons) {
			return nil
		}

		a, b := lessons[pos], lessons[target]
		a.OrderIndex, b.OrderIndex = b.OrderIndex, a.OrderIndex
		now := s.now()
		a.UpdatedAt, b.UpdatedAt = now, now

		if err := repo.UpdateLesson(ctx, a); err != nil {
			return err
		}
		if err := repo.UpdateLesson(ctx, b); err != nil {
			return err
		}

		lessons[pos], lessons[target] = b, a
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("move lesson (lesson_id: %s, direction: %s): %w", id, direction, err)
	}

	return lessons, nil
}

func (s *Service) GetUpsell(ctx context.Context) (*models.UpsellSettings, error) {
	upsell, err := s.loadUpsell(ctx, s.repo)
	if err != nil {
		return nil, fmt.Errorf("get upsell: %w", err)
	}
	return upsell, nil
}

func (s *Service) SaveUpsell(ctx context.Context, in UpsellInput) (*models.UpsellSettings, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}

	settings := &models.UpsellSettings{
		Title:       in.Title,
		Text:        in.Text,
		ButtonLabel: in.ButtonLabel,
		ButtonURL:   in.ButtonURL,
		UpdatedAt:   s.now(),
	}
	if err := s.repo.SaveUpsell(ctx, settings); err != nil {
		return nil, fmt.Errorf("save upsell: %w", err)
	}
	return settings, nil
}

func (s *Service) Stats(ctx context.Context) (*models.Stats, error) {
	stats, err := s.repo.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return stats, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) loadUpsell(ctx context.Context, repo models.Repository) (*models.UpsellSettings, error) {
	upsell, err := repo.GetUpsell(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return DefaultUpsell(), nil
	}
	return upsell, err
}

// check runs struct validation and reports failures as ErrInvalidInput.
func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", models.ErrInvalidInput, strings.Join(fields, ", "))
}
