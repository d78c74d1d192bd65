package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/romanzh1/startup-sprint/internal/membership"
	"github.com/romanzh1/startup-sprint/internal/models"
	"github.com/romanzh1/startup-sprint/internal/progression"
	"github.com/romanzh1/startup-sprint/pkg/utils"
	"go.uber.org/zap"
)

type Service struct {
	repo     models.Repository
	members  membership.Checker
	validate *validator.Validate
	now      func() time.Time
}

func NewService(repo models.Repository, members membership.Checker) *Service {
	return &Service{
		repo:     repo,
		members:  members,
		validate: validator.New(),
		now:      utils.NowUTC,
	}
}

// Payload is the user's view of the active program plus the upsell block.
type Payload struct {
	progression.View
	Upsell *models.UpsellSettings
}

type UserPayload struct {
	User *models.User
	Payload
}

type Session struct {
	UserPayload
	Membership membership.Membership
}

type MembershipStatus struct {
	TelegramID int64
	UserID     *uuid.UUID
	IsPaid     bool
	Reason     string
}

// AuthTelegram registers the Telegram user on first contact, refreshes the cached
// paid flag and returns the current payload.
func (s *Service) AuthTelegram(ctx context.Context, telegramID int64, username string) (*Session, error) {
	if telegramID <= 0 {
		return nil, fmt.Errorf("telegram id %d: %w", telegramID, models.ErrInvalidInput)
	}

	m := s.members.CheckMembership(ctx, telegramID)
	now := s.now()

	var session *Session
	err := s.repo.RunInTx(ctx, func(repo models.Repository) error {
		user, err := repo.GetUserByTelegramID(ctx, telegramID)
		switch {
		case errors.Is(err, models.ErrNotFound):
			user = &models.User{
				ID:         uuid.New(),
				TelegramID: telegramID,
				Username:   username,
				IsPaid:     m.IsPaid,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := repo.CreateUser(ctx, user); err != nil {
				return err
			}
			zap.L().Info("user registered", zap.Int64("telegram_id", telegramID), zap.Bool("is_paid", m.IsPaid))
		case err != nil:
			return err
		case user.IsPaid != m.IsPaid:
			if err := repo.UpdateUserPaid(ctx, user.ID, m.IsPaid, now); err != nil {
				return err
			}
			user.IsPaid = m.IsPaid
			user.UpdatedAt = now
		}

		if err := repo.LockUser(ctx, user.ID); err != nil {
			return err
		}

		payload, err := s.buildPayload(ctx, repo, user, now)
		if err != nil {
			return err
		}

		session = &Session{
			UserPayload: UserPayload{User: user, Payload: payload},
			Membership:  m,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth telegram (telegram_id: %d): %w", telegramID, err)
	}

	return session, nil
}

// CheckMembership reports paid status and syncs the cached flag of a known user.
func (s *Service) CheckMembership(ctx context.Context, telegramID int64) (*MembershipStatus, error) {
	if telegramID <= 0 {
		return nil, fmt.Errorf("telegram id %d: %w", telegramID, models.ErrInvalidInput)
	}

	m := s.members.CheckMembership(ctx, telegramID)
	status := &MembershipStatus{TelegramID: telegramID, IsPaid: m.IsPaid, Reason: m.Reason}

	user, err := s.repo.GetUserByTelegramID(ctx, telegramID)
	if errors.Is(err, models.ErrNotFound) {
		return status, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check membership (telegram_id: %d): %w", telegramID, err)
	}

	status.UserID = &user.ID
	if user.IsPaid != m.IsPaid {
		if err := s.repo.UpdateUserPaid(ctx, user.ID, m.IsPaid, s.now()); err != nil {
			return nil, fmt.Errorf("check membership (telegram_id: %d): %w", telegramID, err)
		}
	}

	return status, nil
}

func (s *Service) GetProgress(ctx context.Context, userID uuid.UUID) (*UserPayload, error) {
	now := s.now()

	var out *UserPayload
	err := s.repo.RunInTx(ctx, func(repo models.Repository) error {
		if err := repo.LockUser(ctx, userID); err != nil {
			return err
		}

		user, err := repo.GetUser(ctx, userID)
		if err != nil {
			return err
		}

		payload, err := s.buildPayload(ctx, repo, user, now)
		if err != nil {
			return err
		}

		out = &UserPayload{User: user, Payload: payload}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get progress (user_id: %s): %w", userID, err)
	}

	return out, nil
}

func (s *Service) StartLesson(ctx context.Context, userID, lessonID uuid.UUID) (*UserPayload, error) {
	lesson, err := s.prepareLesson(ctx, userID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("start lesson (user_id: %s, lesson_id: %s): %w", userID, lessonID, err)
	}

	out, err := s.mutateProgress(ctx, userID, lesson.ProgramID, func(st *progression.State, now time.Time) error {
		return st.Start(lesson, now)
	})
	if err != nil {
		return nil, fmt.Errorf("start lesson (user_id: %s, lesson_id: %s): %w", userID, lessonID, err)
	}

	return out, nil
}

func (s *Service) CompleteLesson(ctx context.Context, userID, lessonID uuid.UUID) (*UserPayload, error) {
	lesson, err := s.prepareLesson(ctx, userID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("complete lesson (user_id: %s, lesson_id: %s): %w", userID, lessonID, err)
	}

	out, err := s.mutateProgress(ctx, userID, lesson.ProgramID, func(st *progression.State, now time.Time) error {
		return st.Complete(lesson, now)
	})
	if err != nil {
		return nil, fmt.Errorf("complete lesson (user_id: %s, lesson_id: %s): %w", userID, lessonID, err)
	}

	return out, nil
}

// RestartProgram wipes the user's progress in the active program.
func (s *Service) RestartProgram(ctx context.Context, userID uuid.UUID) (*UserPayload, error) {
	now := s.now()

	var out *UserPayload
	err := s.repo.RunInTx(ctx, func(repo models.Repository) error {
		if err := repo.LockUser(ctx, userID); err != nil {
			return err
		}

		user, err := repo.GetUser(ctx, userID)
		if err != nil {
			return err
		}

		program, err := repo.GetActiveProgram(ctx)
		if err != nil {
			return err
		}

		if err := repo.DeleteProgress(ctx, userID, program.ID); err != nil {
			return err
		}

		payload, err := s.buildPayload(ctx, repo, user, now)
		if err != nil {
			return err
		}

		out = &UserPayload{User: user, Payload: payload}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("restart program (user_id: %s): %w", userID, err)
	}

	zap.L().Info("program restarted", zap.String("user_id", userID.String()))
	return out, nil
}

// prepareLesson resolves the lesson and, for paid lessons, asks the access gate.
func (s *Service) prepareLesson(ctx context.Context, userID, lessonID uuid.UUID) (*models.Lesson, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	lesson, err := s.repo.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson.Visibility == models.VisibilityArchived {
		return nil, fmt.Errorf("lesson %s is archived: %w", lessonID, models.ErrNotFound)
	}

	if lesson.Visibility == models.VisibilityPaid {
		if err := s.ensurePaidAccess(ctx, user); err != nil {
			return nil, err
		}
	}

	return lesson, nil
}

func (s *Service) ensurePaidAccess(ctx context.Context, user *models.User) error {
	m := s.members.CheckMembership(ctx, user.TelegramID)

	if m.IsPaid != user.IsPaid {
		if err := s.repo.UpdateUserPaid(ctx, user.ID, m.IsPaid, s.now()); err != nil {
			return err
		}
		user.IsPaid = m.IsPaid
	}

	if !m.IsPaid {
		return &models.AccessDeniedError{Reason: m.Reason}
	}
	return nil
}

// mutateProgress runs op against a refreshed snapshot of the user's progress and
// persists the result, all in one transaction.
func (s *Service) mutateProgress(ctx context.Context, userID, programID uuid.UUID, op func(*progression.State, time.Time) error) (*UserPayload, error) {
	now := s.now()

	var out *UserPayload
	err := s.repo.RunInTx(ctx, func(repo models.Repository) error {
		if err := repo.LockUser(ctx, userID); err != nil {
			return err
		}

		user, err := repo.GetUser(ctx, userID)
		if err != nil {
			return err
		}

		st, err := s.loadState(ctx, repo, userID, programID)
		if err != nil {
			return err
		}

		st.Refresh(now)
		if err := op(st, now); err != nil {
			return err
		}

		if err := s.saveState(ctx, repo, st); err != nil {
			return err
		}

		payload, err := s.buildPayload(ctx, repo, user, now)
		if err != nil {
			return err
		}

		out = &UserPayload{User: user, Payload: payload}
		return nil
	})

	return out, err
}

// buildPayload refreshes the user's state in the active program and projects it.
func (s *Service) buildPayload(ctx context.Context, repo models.Repository, user *models.User, now time.Time) (Payload, error) {
	upsell, err := s.loadUpsell(ctx, repo)
	if err != nil {
		return Payload{}, err
	}

	program, err := repo.GetActiveProgram(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return Payload{View: progression.EmptyView(), Upsell: upsell}, nil
	}
	if err != nil {
		return Payload{}, err
	}

	st, err := s.loadState(ctx, repo, user.ID, program.ID)
	if err != nil {
		return Payload{}, err
	}

	st.Refresh(now)
	if err := s.saveState(ctx, repo, st); err != nil {
		return Payload{}, err
	}

	return Payload{View: st.Project(program, user.IsPaid), Upsell: upsell}, nil
}

func (s *Service) loadState(ctx context.Context, repo models.Repository, userID, programID uuid.UUID) (*progression.State, error) {
	lessons, err := repo.ListLessons(ctx, programID)
	if err != nil {
		return nil, err
	}

	program, err := repo.GetProgramProgress(ctx, userID, programID)
	if errors.Is(err, models.ErrNotFound) {
		program = nil
	} else if err != nil {
		return nil, err
	}

	rows, err := repo.ListLessonProgress(ctx, userID, programID)
	if err != nil {
		return nil, err
	}

	return progression.NewState(userID, programID, lessons, program, rows), nil
}

func (s *Service) saveState(ctx context.Context, repo models.Repository, st *progression.State) error {
	program, lessons := st.Changes()

	if program != nil {
		if err := repo.SaveProgramProgress(ctx, program); err != nil {
			return err
		}
	}

	for _, row := range lessons {
		if err := repo.SaveLessonProgress(ctx, row); err != nil {
			return err
		}
	}

	return nil
}
