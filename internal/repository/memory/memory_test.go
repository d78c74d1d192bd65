package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/romanzh1/startup-sprint/internal/models"
	"github.com/romanzh1/startup-sprint/internal/repository/memory"
)

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, store *memory.Store) (*models.Program, *models.Lesson, *models.Lesson) {
	t.Helper()
	ctx := context.Background()

	program := &models.Program{ID: uuid.New(), Name: "sprint", IsActive: true, CreatedAt: now}
	if err := store.CreateProgram(ctx, program); err != nil {
		t.Fatalf("create program: %v", err)
	}

	l1 := &models.Lesson{ID: uuid.New(), ProgramID: program.ID, OrderIndex: 2, Visibility: models.VisibilityFree, ExpiresInHours: 48}
	l2 := &models.Lesson{ID: uuid.New(), ProgramID: program.ID, OrderIndex: 1, Visibility: models.VisibilityPaid, ExpiresInHours: 48}
	for _, l := range []*models.Lesson{l1, l2} {
		if err := store.CreateLesson(ctx, l); err != nil {
			t.Fatalf("create lesson: %v", err)
		}
	}
	return program, l1, l2
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	program, l1, _ := seed(t, store)
	userID := uuid.New()

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(repo models.Repository) error {
		if err := repo.SaveProgramProgress(ctx, &models.UserProgramProgress{ID: uuid.New(), UserID: userID, ProgramID: program.ID, Status: models.ProgramInProgress}); err != nil {
			return err
		}
		if err := repo.SaveLessonProgress(ctx, &models.UserLessonProgress{ID: uuid.New(), UserID: userID, LessonID: l1.ID, Status: models.LessonAvailable}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}

	if _, err := store.GetProgramProgress(ctx, userID, program.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("program progress leaked out of a failed tx: %v", err)
	}
	rows, _ := store.ListLessonProgress(ctx, userID, program.ID)
	if len(rows) != 0 {
		t.Fatalf("lesson progress leaked out of a failed tx: %d rows", len(rows))
	}
}

func TestRunInTxCommits(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	program, _, _ := seed(t, store)
	userID := uuid.New()

	err := store.RunInTx(ctx, func(repo models.Repository) error {
		return repo.SaveProgramProgress(ctx, &models.UserProgramProgress{ID: uuid.New(), UserID: userID, ProgramID: program.ID, Status: models.ProgramInProgress})
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	got, err := store.GetProgramProgress(ctx, userID, program.ID)
	if err != nil || got.Status != models.ProgramInProgress {
		t.Fatalf("committed row missing: %v %v", got, err)
	}
}

func TestRunInTxSerialises(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	program, _, _ := seed(t, store)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.RunInTx(ctx, func(repo models.Repository) error {
				p, err := repo.GetProgram(ctx, program.ID)
				if err != nil {
					return err
				}
				p.Description += "x"
				return repo.UpdateProgram(ctx, p)
			})
		}()
	}
	wg.Wait()

	p, _ := store.GetProgram(ctx, program.ID)
	if len(p.Description) != 20 {
		t.Fatalf("lost updates: want 20 got %d", len(p.Description))
	}
}

func TestSaveProgressUpsertsByNaturalKey(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	program, l1, _ := seed(t, store)
	userID := uuid.New()

	first := &models.UserLessonProgress{ID: uuid.New(), UserID: userID, LessonID: l1.ID, Status: models.LessonLocked}
	_ = store.SaveLessonProgress(ctx, first)
	_ = store.SaveLessonProgress(ctx, &models.UserLessonProgress{ID: uuid.New(), UserID: userID, LessonID: l1.ID, Status: models.LessonAvailable})

	rows, _ := store.ListLessonProgress(ctx, userID, program.ID)
	if len(rows) != 1 {
		t.Fatalf("want one row per (user, lesson), got %d", len(rows))
	}
	if rows[0].ID != first.ID || rows[0].Status != models.LessonAvailable {
		t.Fatalf("upsert must keep the id and take the new state: %+v", rows[0])
	}
}

func TestDeleteProgressIsScoped(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	program, l1, _ := seed(t, store)
	other := &models.Program{ID: uuid.New(), Name: "other", CreatedAt: now.Add(time.Hour)}
	_ = store.CreateProgram(ctx, other)
	otherLesson := &models.Lesson{ID: uuid.New(), ProgramID: other.ID, OrderIndex: 1, Visibility: models.VisibilityFree}
	_ = store.CreateLesson(ctx, otherLesson)

	userID := uuid.New()
	_ = store.SaveProgramProgress(ctx, &models.UserProgramProgress{ID: uuid.New(), UserID: userID, ProgramID: program.ID})
	_ = store.SaveProgramProgress(ctx, &models.UserProgramProgress{ID: uuid.New(), UserID: userID, ProgramID: other.ID})
	_ = store.SaveLessonProgress(ctx, &models.UserLessonProgress{ID: uuid.New(), UserID: userID, LessonID: l1.ID})
	_ = store.SaveLessonProgress(ctx, &models.UserLessonProgress{ID: uuid.New(), UserID: userID, LessonID: otherLesson.ID})

	if err := store.DeleteProgress(ctx, userID, program.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteProgress(ctx, userID, program.ID); err != nil {
		t.Fatalf("second delete must be a no-op: %v", err)
	}

	if _, err := store.GetProgramProgress(ctx, userID, other.ID); err != nil {
		t.Fatalf("other program progress removed: %v", err)
	}
	rows, _ := store.ListLessonProgress(ctx, userID, other.ID)
	if len(rows) != 1 {
		t.Fatalf("other program lesson rows removed: %d", len(rows))
	}
}

func TestListLessonsOrdered(t *testing.T) {
	store := memory.New()
	program, l1, l2 := seed(t, store)

	lessons, err := store.ListLessons(context.Background(), program.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(lessons) != 2 || lessons[0].ID != l2.ID || lessons[1].ID != l1.ID {
		t.Fatal("lessons must be sorted by order index")
	}
}

func TestDeleteLessonRemovesProgress(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	program, l1, _ := seed(t, store)
	userID := uuid.New()
	_ = store.SaveLessonProgress(ctx, &models.UserLessonProgress{ID: uuid.New(), UserID: userID, LessonID: l1.ID})

	if err := store.DeleteLesson(ctx, l1.ID); err != nil {
		t.Fatalf("delete lesson: %v", err)
	}
	if _, err := store.GetLesson(ctx, l1.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("lesson still present: %v", err)
	}
	rows, _ := store.ListLessonProgress(ctx, userID, program.ID)
	if len(rows) != 0 {
		t.Fatalf("progress of deleted lesson kept: %d", len(rows))
	}
}

func TestActiveProgram(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	if _, err := store.GetActiveProgram(ctx); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("want ErrNotFound on empty store, got %v", err)
	}

	program, _, _ := seed(t, store)
	next := &models.Program{ID: uuid.New(), Name: "next", IsActive: true, CreatedAt: now.Add(time.Hour)}
	_ = store.CreateProgram(ctx, next)
	if err := store.DeactivatePrograms(ctx, next.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	active, err := store.GetActiveProgram(ctx)
	if err != nil || active.ID != next.ID {
		t.Fatalf("want %s active, got %v (%v)", next.ID, active, err)
	}
	old, _ := store.GetProgram(ctx, program.ID)
	if old.IsActive {
		t.Fatal("previous program still active")
	}

	list, _ := store.ListPrograms(ctx)
	if len(list) != 2 || list[0].ID != program.ID || list[0].LessonCount != 2 {
		t.Fatalf("unexpected listing: %+v", list)
	}
}
