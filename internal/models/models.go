package models

import (
	"time"

	"github.com/google/uuid"
)

type Visibility string

const (
	VisibilityFree     Visibility = "FREE"
	VisibilityPaid     Visibility = "PAID"
	VisibilityArchived Visibility = "ARCHIVED"
)

type LessonStatus string

const (
	LessonLocked    LessonStatus = "LOCKED"
	LessonAvailable LessonStatus = "AVAILABLE"
	LessonExpired   LessonStatus = "EXPIRED"
	LessonDone      LessonStatus = "DONE"
)

// IsTerminal reports whether no further transition is possible for the lesson.
func (s LessonStatus) IsTerminal() bool {
	return s == LessonDone || s == LessonExpired
}

type ProgramStatus string

const (
	ProgramInProgress ProgramStatus = "IN_PROGRESS"
	ProgramCompleted  ProgramStatus = "COMPLETED"
	ProgramFailed     ProgramStatus = "FAILED"

	// ProgramNotStarted is never stored, it stands for a missing progress row.
	ProgramNotStarted ProgramStatus = "NOT_STARTED"
)

func (s ProgramStatus) IsTerminal() bool {
	return s == ProgramCompleted || s == ProgramFailed
}

const (
	DefaultExpiresInHours = 48
)

type Program struct {
	ID          uuid.UUID `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type ProgramWithCount struct {
	Program
	LessonCount int `db:"lesson_count"`
}

type Lesson struct {
	ID                     uuid.UUID  `db:"id"`
	ProgramID              uuid.UUID  `db:"program_id"`
	OrderIndex             int        `db:"order_index"`
	Title                  string     `db:"title"`
	Description            string     `db:"description"`
	VideoURL               string     `db:"video_url"`
	HomeworkText           string     `db:"homework_text"`
	Visibility             Visibility `db:"visibility"`
	DelayHoursFromPrevious int        `db:"delay_hours_from_previous"`
	ExpiresInHours         int        `db:"expires_in_hours"`
	CreatedAt              time.Time  `db:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at"`
}

type User struct {
	ID         uuid.UUID `db:"id"`
	TelegramID int64     `db:"telegram_id"`
	Username   string    `db:"username"`
	IsPaid     bool      `db:"is_paid"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

type UserProgramProgress struct {
	ID           uuid.UUID     `db:"id"`
	UserID       uuid.UUID     `db:"user_id"`
	ProgramID    uuid.UUID     `db:"program_id"`
	Status       ProgramStatus `db:"status"`
	StartedAt    time.Time     `db:"started_at"`
	FinishedAt   *time.Time    `db:"finished_at"`
	LastLessonID *uuid.UUID    `db:"last_lesson_id"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

type UserLessonProgress struct {
	ID          uuid.UUID    `db:"id"`
	UserID      uuid.UUID    `db:"user_id"`
	LessonID    uuid.UUID    `db:"lesson_id"`
	Status      LessonStatus `db:"status"`
	UnlockedAt  *time.Time   `db:"unlocked_at"`
	ExpiresAt   *time.Time   `db:"expires_at"`
	CompletedAt *time.Time   `db:"completed_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
}

type UpsellSettings struct {
	Title       string    `db:"title"`
	Text        string    `db:"text"`
	ButtonLabel string    `db:"button_label"`
	ButtonURL   string    `db:"button_url"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type Stats struct {
	Users     int `db:"users"`
	Paid      int `db:"paid"`
	Completed int `db:"completed"`
	Failed    int `db:"failed"`
}
