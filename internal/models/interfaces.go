package models

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence boundary. Lookups of a missing entity return an
// error wrapping ErrNotFound.
type Repository interface {
	RunInTx(ctx context.Context, fn func(Repository) error) error
	// LockUser serialises progress mutations of one user until the transaction ends.
	LockUser(ctx context.Context, userID uuid.UUID) error
	Ping(ctx context.Context) error

	CreateProgram(ctx context.Context, program *Program) error
	UpdateProgram(ctx context.Context, program *Program) error
	GetProgram(ctx context.Context, id uuid.UUID) (*Program, error)
	GetActiveProgram(ctx context.Context) (*Program, error)
	ListPrograms(ctx context.Context) ([]*ProgramWithCount, error)
	DeactivatePrograms(ctx context.Context, except uuid.UUID) error

	CreateLesson(ctx context.Context, lesson *Lesson) error
	UpdateLesson(ctx context.Context, lesson *Lesson) error
	GetLesson(ctx context.Context, id uuid.UUID) (*Lesson, error)
	ListLessons(ctx context.Context, programID uuid.UUID) ([]*Lesson, error)
	DeleteLesson(ctx context.Context, id uuid.UUID) error

	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	UpdateUserPaid(ctx context.Context, id uuid.UUID, isPaid bool, updatedAt time.Time) error

	GetProgramProgress(ctx context.Context, userID, programID uuid.UUID) (*UserProgramProgress, error)
	SaveProgramProgress(ctx context.Context, progress *UserProgramProgress) error
	ListLessonProgress(ctx context.Context, userID, programID uuid.UUID) ([]*UserLessonProgress, error)
	SaveLessonProgress(ctx context.Context, progress *UserLessonProgress) error
	DeleteProgress(ctx context.Context, userID, programID uuid.UUID) error
	ListInProgress(ctx context.Context, programID uuid.UUID) ([]*UserProgramProgress, error)

	GetUpsell(ctx context.Context) (*UpsellSettings, error)
	SaveUpsell(ctx context.Context, settings *UpsellSettings) error
	GetStats(ctx context.Context) (*Stats, error)
}
