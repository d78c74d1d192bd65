// Package memory is an in-process models.Repository. Transactions work on a
// copy of the data and run one at a time under a single write lock.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/romanzh1/startup-sprint/internal/models"
)

type data struct {
	programs        map[uuid.UUID]models.Program
	lessons         map[uuid.UUID]models.Lesson
	users           map[uuid.UUID]models.User
	programProgress map[uuid.UUID]models.UserProgramProgress
	lessonProgress  map[uuid.UUID]models.UserLessonProgress
	upsell          *models.UpsellSettings
}

func newData() *data {
	return &data{
		programs:        make(map[uuid.UUID]models.Program),
		lessons:         make(map[uuid.UUID]models.Lesson),
		users:           make(map[uuid.UUID]models.User),
		programProgress: make(map[uuid.UUID]models.UserProgramProgress),
		lessonProgress:  make(map[uuid.UUID]models.UserLessonProgress),
	}
}

func (d *data) clone() *data {
	c := &data{
		programs:        make(map[uuid.UUID]models.Program, len(d.programs)),
		lessons:         make(map[uuid.UUID]models.Lesson, len(d.lessons)),
		users:           make(map[uuid.UUID]models.User, len(d.users)),
		programProgress: make(map[uuid.UUID]models.UserProgramProgress, len(d.programProgress)),
		lessonProgress:  make(map[uuid.UUID]models.UserLessonProgress, len(d.lessonProgress)),
	}
	for k, v := range d.programs {
		c.programs[k] = v
	}
	for k, v := range d.lessons {
		c.lessons[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.programProgress {
		c.programProgress[k] = v
	}
	for k, v := range d.lessonProgress {
		c.lessonProgress[k] = v
	}
	if d.upsell != nil {
		u := *d.upsell
		c.upsell = &u
	}
	return c
}

type shared struct {
	mu   sync.RWMutex
	data *data
}

type Store struct {
	sh *shared
	tx *data
}

func New() *Store {
	return &Store{sh: &shared{data: newData()}}
}

func (s *Store) read(fn func(d *data) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.sh.mu.RLock()
	defer s.sh.mu.RUnlock()
	return fn(s.sh.data)
}

func (s *Store) write(fn func(d *data) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()

	next := s.sh.data.clone()
	if err := fn(next); err != nil {
		return err
	}
	s.sh.data = next
	return nil
}

// RunInTx commits only when fn succeeds. fn must use the repository it is given;
// calling the outer store from inside fn deadlocks.
func (s *Store) RunInTx(ctx context.Context, fn func(models.Repository) error) error {
	if s.tx != nil {
		return fn(s)
	}

	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()

	txStore := &Store{sh: s.sh, tx: s.sh.data.clone()}
	if err := fn(txStore); err != nil {
		return err
	}
	s.sh.data = txStore.tx
	return nil
}

// LockUser is a no-op: every transaction already holds the global write lock.
func (s *Store) LockUser(ctx context.Context, userID uuid.UUID) error {
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) CreateProgram(ctx context.Context, program *models.Program) error {
	return s.write(func(d *data) error {
		if _, ok := d.programs[program.ID]; ok {
			return fmt.Errorf("create program (id: %s): already exists", program.ID)
		}
		d.programs[program.ID] = *program
		return nil
	})
}

func (s *Store) UpdateProgram(ctx context.Context, program *models.Program) error {
	return s.write(func(d *data) error {
		if _, ok := d.programs[program.ID]; !ok {
			return fmt.Errorf("update program (id: %s): %w", program.ID, models.ErrNotFound)
		}
		d.programs[program.ID] = *program
		return nil
	})
}

func (s *Store) GetProgram(ctx context.Context, id uuid.UUID) (*models.Program, error) {
	var out *models.Program
	err := s.read(func(d *data) error {
		p, ok := d.programs[id]
		if !ok {
			return fmt.Errorf("get program (id: %s): %w", id, models.ErrNotFound)
		}
		out = &p
		return nil
	})
	return out, err
}

func (s *Store) GetActiveProgram(ctx context.Context) (*models.Program, error) {
	var out *models.Program
	err := s.read(func(d *data) error {
		for _, p := range d.programs {
			if p.IsActive {
				out = &p
				return nil
			}
		}
		return fmt.Errorf("get active program: %w", models.ErrNotFound)
	})
	return out, err
}

func (s *Store) ListPrograms(ctx context.Context) ([]*models.ProgramWithCount, error) {
	var out []*models.ProgramWithCount
	err := s.read(func(d *data) error {
		counts := make(map[uuid.UUID]int)
		for _, l := range d.lessons {
			counts[l.ProgramID]++
		}
		for _, p := range d.programs {
			out = append(out, &models.ProgramWithCount{Program: p, LessonCount: counts[p.ID]})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

func (s *Store) DeactivatePrograms(ctx context.Context, except uuid.UUID) error {
	return s.write(func(d *data) error {
		for id, p := range d.programs {
			if id != except && p.IsActive {
				p.IsActive = false
				d.programs[id] = p
			}
		}
		return nil
	})
}

func (s *Store) CreateLesson(ctx context.Context, lesson *models.Lesson) error {
	return s.write(func(d *data) error {
		if _, ok := d.programs[lesson.ProgramID]; !ok {
			return fmt.Errorf("create lesson (program_id: %s): %w", lesson.ProgramID, models.ErrNotFound)
		}
		d.lessons[lesson.ID] = *lesson
		return nil
	})
}

func (s *Store) UpdateLesson(ctx context.Context, lesson *models.Lesson) error {
	return s.write(func(d *data) error {
		if _, ok := d.lessons[lesson.ID]; !ok {
			return fmt.Errorf("update lesson (id: %s): %w", lesson.ID, models.ErrNotFound)
		}
		d.lessons[lesson.ID] = *lesson
		return nil
	})
}

func (s *Store) GetLesson(ctx context.Context, id uuid.UUID) (*models.Lesson, error) {
	var out *models.Lesson
	err := s.read(func(d *data) error {
		l, ok := d.lessons[id]
		if !ok {
			return fmt.Errorf("get lesson (id: %s): %w", id, models.ErrNotFound)
		}
		out = &l
		return nil
	})
	return out, err
}

func (s *Store) ListLessons(ctx context.Context, programID uuid.UUID) ([]*models.Lesson, error) {
	var out []*models.Lesson
	err := s.read(func(d *data) error {
		for _, l := range d.lessons {
			if l.ProgramID == programID {
				out = append(out, &l)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].OrderIndex < out[j].OrderIndex
	})
	return out, err
}

func (s *Store) DeleteLesson(ctx context.Context, id uuid.UUID) error {
	return s.write(func(d *data) error {
		if _, ok := d.lessons[id]; !ok {
			return fmt.Errorf("delete lesson (id: %s): %w", id, models.ErrNotFound)
		}
		delete(d.lessons, id)
		for rowID, row := range d.lessonProgress {
			if row.LessonID == id {
				delete(d.lessonProgress, rowID)
			}
		}
		return nil
	})
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return s.write(func(d *data) error {
		for _, u := range d.users {
			if u.TelegramID == user.TelegramID {
				return fmt.Errorf("create user (telegram_id: %d): already exists", user.TelegramID)
			}
		}
		d.users[user.ID] = *user
		return nil
	})
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var out *models.User
	err := s.read(func(d *data) error {
		u, ok := d.users[id]
		if !ok {
			return fmt.Errorf("get user (id: %s): %w", id, models.ErrNotFound)
		}
		out = &u
		return nil
	})
	return out, err
}

func (s *Store) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var out *models.User
	err := s.read(func(d *data) error {
		for _, u := range d.users {
			if u.TelegramID == telegramID {
				out = &u
				return nil
			}
		}
		return fmt.Errorf("get user (telegram_id: %d): %w", telegramID, models.ErrNotFound)
	})
	return out, err
}

func (s *Store) UpdateUserPaid(ctx context.Context, id uuid.UUID, isPaid bool, updatedAt time.Time) error {
	return s.write(func(d *data) error {
		u, ok := d.users[id]
		if !ok {
			return fmt.Errorf("update user paid (id: %s): %w", id, models.ErrNotFound)
		}
		u.IsPaid = isPaid
		u.UpdatedAt = updatedAt
		d.users[id] = u
		return nil
	})
}

func (s *Store) GetProgramProgress(ctx context.Context, userID, programID uuid.UUID) (*models.UserProgramProgress, error) {
	var out *models.UserProgramProgress
	err := s.read(func(d *data) error {
		for _, p := range d.programProgress {
			if p.UserID == userID && p.ProgramID == programID {
				out = &p
				return nil
			}
		}
		return fmt.Errorf("get program progress (user_id: %s, program_id: %s): %w", userID, programID, models.ErrNotFound)
	})
	return out, err
}

func (s *Store) SaveProgramProgress(ctx context.Context, progress *models.UserProgramProgress) error {
	return s.write(func(d *data) error {
		row := *progress
		for id, p := range d.programProgress {
			if p.UserID == row.UserID && p.ProgramID == row.ProgramID {
				row.ID = id
				break
			}
		}
		d.programProgress[row.ID] = row
		return nil
	})
}

func (s *Store) ListLessonProgress(ctx context.Context, userID, programID uuid.UUID) ([]*models.UserLessonProgress, error) {
	var out []*models.UserLessonProgress
	err := s.read(func(d *data) error {
		for _, row := range d.lessonProgress {
			if row.UserID != userID {
				continue
			}
			if l, ok := d.lessons[row.LessonID]; ok && l.ProgramID == programID {
				out = append(out, &row)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) SaveLessonProgress(ctx context.Context, progress *models.UserLessonProgress) error {
	return s.write(func(d *data) error {
		row := *progress
		for id, p := range d.lessonProgress {
			if p.UserID == row.UserID && p.LessonID == row.LessonID {
				row.ID = id
				break
			}
		}
		d.lessonProgress[row.ID] = row
		return nil
	})
}

func (s *Store) DeleteProgress(ctx context.Context, userID, programID uuid.UUID) error {
	return s.write(func(d *data) error {
		for id, p := range d.programProgress {
			if p.UserID == userID && p.ProgramID == programID {
				delete(d.programProgress, id)
			}
		}
		for id, row := range d.lessonProgress {
			if row.UserID != userID {
				continue
			}
			if l, ok := d.lessons[row.LessonID]; ok && l.ProgramID == programID {
				delete(d.lessonProgress, id)
			}
		}
		return nil
	})
}

func (s *Store) ListInProgress(ctx context.Context, programID uuid.UUID) ([]*models.UserProgramProgress, error) {
	var out []*models.UserProgramProgress
	err := s.read(func(d *data) error {
		for _, p := range d.programProgress {
			if p.ProgramID == programID && p.Status == models.ProgramInProgress {
				out = append(out, &p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, err
}

func (s *Store) GetUpsell(ctx context.Context) (*models.UpsellSettings, error) {
	var out *models.UpsellSettings
	err := s.read(func(d *data) error {
		if d.upsell == nil {
			return fmt.Errorf("get upsell settings: %w", models.ErrNotFound)
		}
		u := *d.upsell
		out = &u
		return nil
	})
	return out, err
}

func (s *Store) SaveUpsell(ctx context.Context, settings *models.UpsellSettings) error {
	return s.write(func(d *data) error {
		u := *settings
		d.upsell = &u
		return nil
	})
}

func (s *Store) GetStats(ctx context.Context) (*models.Stats, error) {
	var stats models.Stats
	err := s.read(func(d *data) error {
		for _, u := range d.users {
			stats.Users++
			if u.IsPaid {
				stats.Paid++
			}
		}
		for _, p := range d.programProgress {
			switch p.Status {
			case models.ProgramCompleted:
				stats.Completed++
			case models.ProgramFailed:
				stats.Failed++
			}
		}
		return nil
	})
	return &stats, err
}
