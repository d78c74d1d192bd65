package progression

import (
	"time"

	"github.com/romanzh1/startup-sprint/internal/models"
)

type LessonView struct {
	Lesson      *models.Lesson
	Status      models.LessonStatus
	UnlockedAt  *time.Time
	ExpiresAt   *time.Time
	CompletedAt *time.Time
}

// View is what a user sees of the active program.
type View struct {
	Program          *models.Program
	Lessons          []LessonView
	CompletedLessons int
	TotalLessons     int
	ProgressStatus   models.ProgramStatus
	StartedAt        *time.Time
	FinishedAt       *time.Time
}

// EmptyView is returned when no program is active.
func EmptyView() View {
	return View{
		Lessons:        []LessonView{},
		ProgressStatus: models.ProgramNotStarted,
	}
}

// DefaultStatus resolves a lesson's status from its row, or from its position in
// the chain when the user has no row for it yet.
func DefaultStatus(row *models.UserLessonProgress, position int) models.LessonStatus {
	if row != nil {
		return row.Status
	}
	if position == 0 {
		return models.LessonAvailable
	}
	return models.LessonLocked
}

// MaskStatus hides paid lessons from unpaid users. The stored row is never changed.
func MaskStatus(status models.LessonStatus, visibility models.Visibility, isPaid bool) models.LessonStatus {
	if visibility == models.VisibilityPaid && !isPaid {
		return models.LessonLocked
	}
	return status
}

// Project builds the user's view of the program. Call Refresh first.
func (s *State) Project(program *models.Program, isPaid bool) View {
	view := View{
		Program:        program,
		Lessons:        make([]LessonView, 0, len(s.Chain)),
		TotalLessons:   len(s.Chain),
		ProgressStatus: models.ProgramNotStarted,
	}

	if s.Program != nil {
		view.ProgressStatus = s.Program.Status
		startedAt := s.Program.StartedAt
		view.StartedAt = &startedAt
		view.FinishedAt = s.Program.FinishedAt
	}

	for i, lesson := range s.Chain {
		row := s.lessons[lesson.ID]

		lv := LessonView{
			Lesson: lesson,
			Status: MaskStatus(DefaultStatus(row, i), lesson.Visibility, isPaid),
		}
		if row != nil {
			lv.UnlockedAt = row.UnlockedAt
			lv.ExpiresAt = row.ExpiresAt
			lv.CompletedAt = row.CompletedAt
		}

		if lv.Status == models.LessonDone {
			view.CompletedLessons++
		}
		view.Lessons = append(view.Lessons, lv)
	}

	return view
}
