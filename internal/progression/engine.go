package progression

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/romanzh1/startup-sprint/internal/models"
	"github.com/romanzh1/startup-sprint/pkg/utils"
)

// State is a consistent snapshot of one user's progress through one program.
// Operations mutate it in place and remember which rows have to be persisted.
type State struct {
	UserID    uuid.UUID
	ProgramID uuid.UUID
	Chain     Chain
	Program   *models.UserProgramProgress

	lessons      map[uuid.UUID]*models.UserLessonProgress
	dirty        map[uuid.UUID]bool
	programDirty bool
}

type RefreshResult struct {
	Unlocked []*models.Lesson
	Expired  []*models.Lesson
	Failed   bool
}

func (r RefreshResult) Changed() bool {
	return len(r.Unlocked) > 0 || len(r.Expired) > 0 || r.Failed
}

// NewState builds a snapshot. program may be nil when the user never started the program.
func NewState(userID, programID uuid.UUID, lessons []*models.Lesson, program *models.UserProgramProgress, rows []*models.UserLessonProgress) *State {
	s := &State{
		UserID:    userID,
		ProgramID: programID,
		Chain:     NewChain(lessons),
		Program:   program,
		lessons:   make(map[uuid.UUID]*models.UserLessonProgress, len(rows)),
		dirty:     make(map[uuid.UUID]bool),
	}

	for _, row := range rows {
		s.lessons[row.LessonID] = row
	}

	return s
}

// Row returns the stored progress of a lesson, nil when there is none.
func (s *State) Row(lessonID uuid.UUID) *models.UserLessonProgress {
	return s.lessons[lessonID]
}

// Changes returns the rows modified since the snapshot was built.
// program is nil when the program row is unchanged.
func (s *State) Changes() (program *models.UserProgramProgress, lessons []*models.UserLessonProgress) {
	if s.programDirty {
		program = s.Program
	}

	for _, l := range s.Chain {
		if s.dirty[l.ID] {
			lessons = append(lessons, s.lessons[l.ID])
		}
	}

	return program, lessons
}

// Refresh applies the time-driven transitions: due LOCKED lessons become
// AVAILABLE, overdue AVAILABLE lessons become EXPIRED and fail the program.
func (s *State) Refresh(now time.Time) RefreshResult {
	var res RefreshResult

	for _, lesson := range s.Chain {
		row := s.lessons[lesson.ID]
		if row == nil {
			continue
		}

		if row.Status == models.LessonLocked && row.UnlockedAt != nil && !row.UnlockedAt.After(now) {
			row.Status = models.LessonAvailable
			row.UpdatedAt = now
			s.dirty[lesson.ID] = true
			res.Unlocked = append(res.Unlocked, lesson)
		}

		if row.Status == models.LessonAvailable && row.ExpiresAt != nil && row.ExpiresAt.Before(now) {
			row.Status = models.LessonExpired
			row.UpdatedAt = now
			s.dirty[lesson.ID] = true
			res.Expired = append(res.Expired, lesson)
		}
	}

	if len(res.Expired) > 0 && s.Program != nil && s.Program.Status == models.ProgramInProgress {
		s.Program.Status = models.ProgramFailed
		s.Program.FinishedAt = nil
		s.Program.UpdatedAt = now
		s.programDirty = true
		res.Failed = true
	}

	return res
}

// Start opens a lesson for the user, creating the program and lesson rows when missing.
// Existing rows are left untouched.
func (s *State) Start(lesson *models.Lesson, now time.Time) error {
	if err := s.checkLesson(lesson); err != nil {
		return fmt.Errorf("start lesson: %w", err)
	}

	if s.Program == nil {
		s.Program = &models.UserProgramProgress{
			ID:        uuid.New(),
			UserID:    s.UserID,
			ProgramID: s.ProgramID,
			Status:    models.ProgramInProgress,
			StartedAt: now,
			UpdatedAt: now,
		}
		s.programDirty = true
	}

	if s.lessons[lesson.ID] == nil {
		s.lessons[lesson.ID] = &models.UserLessonProgress{
			ID:         uuid.New(),
			UserID:     s.UserID,
			LessonID:   lesson.ID,
			Status:     models.LessonAvailable,
			UnlockedAt: utils.TimePtr(now),
			ExpiresAt:  utils.TimePtr(utils.AddHours(now, max(lesson.ExpiresInHours, 0))),
			UpdatedAt:  now,
		}
		s.dirty[lesson.ID] = true
	}

	return nil
}

// Complete marks an AVAILABLE lesson DONE and advances the chain.
// Completing a DONE lesson again is a no-op.
func (s *State) Complete(lesson *models.Lesson, now time.Time) error {
	if err := s.checkLesson(lesson); err != nil {
		return fmt.Errorf("complete lesson: %w", err)
	}

	row := s.lessons[lesson.ID]
	if row == nil {
		return fmt.Errorf("complete lesson (lesson_id: %s): %w", lesson.ID, models.ErrNotStarted)
	}

	if row.Status == models.LessonDone {
		return nil
	}

	if row.Status != models.LessonAvailable {
		return fmt.Errorf("complete lesson (lesson_id: %s, status: %s): %w", lesson.ID, row.Status, models.ErrNotAvailable)
	}

	if s.Program == nil {
		return fmt.Errorf("complete lesson (lesson_id: %s): program progress: %w", lesson.ID, models.ErrNotFound)
	}

	row.Status = models.LessonDone
	row.CompletedAt = utils.TimePtr(now)
	row.UpdatedAt = now
	s.dirty[lesson.ID] = true

	lessonID := lesson.ID
	s.Program.LastLessonID = &lessonID
	s.Program.UpdatedAt = now
	s.programDirty = true

	if s.Chain.IsLast(lesson.ID) {
		// a failed run stays failed until restart
		if s.Program.Status == models.ProgramInProgress {
			s.Program.Status = models.ProgramCompleted
			s.Program.FinishedAt = utils.TimePtr(now)
		}
		return nil
	}

	s.unlockNext(lesson, now)
	return nil
}

func (s *State) unlockNext(current *models.Lesson, now time.Time) {
	next, ok := s.Chain.Next(current.ID)
	if !ok {
		return
	}

	status, unlockedAt, expiresAt := Schedule(next, now)

	row := s.lessons[next.ID]
	switch {
	case row == nil:
		row = &models.UserLessonProgress{
			ID:       uuid.New(),
			UserID:   s.UserID,
			LessonID: next.ID,
		}
		s.lessons[next.ID] = row
	case row.Status.IsTerminal():
		return
	case row.Status == models.LessonAvailable && status == models.LessonLocked:
		return
	}

	row.Status = status
	row.UnlockedAt = utils.TimePtr(unlockedAt)
	row.ExpiresAt = utils.TimePtr(expiresAt)
	row.UpdatedAt = now
	s.dirty[next.ID] = true
}

// Schedule computes the window of a lesson unlocked by a completion at now.
// A zero delay makes the lesson available immediately, its clock starting at now.
func Schedule(next *models.Lesson, now time.Time) (status models.LessonStatus, unlockedAt, expiresAt time.Time) {
	expires := max(next.ExpiresInHours, 0)

	if next.DelayHoursFromPrevious <= 0 {
		return models.LessonAvailable, now, utils.AddHours(now, expires)
	}

	unlockedAt = utils.AddHours(now, next.DelayHoursFromPrevious)
	return models.LessonLocked, unlockedAt, utils.AddHours(unlockedAt, expires)
}

func (s *State) checkLesson(lesson *models.Lesson) error {
	if lesson.ProgramID != s.ProgramID || !s.Chain.Contains(lesson.ID) {
		return fmt.Errorf("lesson %s in program %s: %w", lesson.ID, s.ProgramID, models.ErrNotFound)
	}
	return nil
}
