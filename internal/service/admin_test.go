package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/romanzh1/startup-sprint/internal/models"
	"github.com/romanzh1/startup-sprint/internal/repository/memory"
)

func lessonTitles(lessons []*models.Lesson) []string {
	out := make([]string, 0, len(lessons))
	for _, l := range lessons {
		out = append(out, l.Title)
	}
	return out
}

func TestCreateProgramKeepsSingleActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	second, err := f.svc.CreateProgram(ctx, ProgramInput{Name: "  Second  ", IsActive: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if second.Name != "Second" {
		t.Fatalf("name not trimmed: %q", second.Name)
	}

	active, err := f.store.GetActiveProgram(ctx)
	if err != nil || active.ID != second.ID {
		t.Fatalf("active program: %v %v", active, err)
	}

	first, _ := f.store.GetProgram(ctx, f.program.ID)
	if first.IsActive {
		t.Fatal("previous program is still active")
	}

	on := true
	if _, err := f.svc.UpdateProgram(ctx, f.program.ID, ProgramPatch{IsActive: &on}); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	active, _ = f.store.GetActiveProgram(ctx)
	if active.ID != f.program.ID {
		t.Fatalf("want first program active again, got %s", active.Name)
	}

	programs, err := f.svc.ListPrograms(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	activeCount := 0
	for _, p := range programs {
		if p.IsActive {
			activeCount++
		}
	}
	if len(programs) != 2 || activeCount != 1 {
		t.Fatalf("want 2 programs with 1 active, got %d/%d", len(programs), activeCount)
	}
}

func TestProgramValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateProgram(ctx, ProgramInput{}); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput for empty name, got %v", err)
	}

	empty := ""
	if _, err := f.svc.UpdateProgram(ctx, f.program.ID, ProgramPatch{Name: &empty}); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput for empty patch name, got %v", err)
	}

	if _, err := f.svc.UpdateProgram(ctx, uuid.New(), ProgramPatch{}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestCreateLessonDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l, err := f.svc.CreateLesson(ctx, f.program.ID, LessonInput{Title: "Day 3"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if l.Visibility != models.VisibilityFree || l.ExpiresInHours != models.DefaultExpiresInHours {
		t.Fatalf("defaults not applied: %s %d", l.Visibility, l.ExpiresInHours)
	}
	if l.OrderIndex != f.l2.OrderIndex+1 {
		t.Fatalf("want lesson appended, order=%d", l.OrderIndex)
	}

	cases := []struct {
		name string
		in   LessonInput
	}{
		{"no title", LessonInput{}},
		{"negative delay", LessonInput{Title: "x", DelayHoursFromPrevious: -1}},
		{"bad visibility", LessonInput{Title: "x", Visibility: "SECRET"}},
		{"bad video url", LessonInput{Title: "x", VideoURL: "not a url"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.CreateLesson(ctx, f.program.ID, tc.in); !errors.Is(err, models.ErrInvalidInput) {
				t.Fatalf("want ErrInvalidInput, got %v", err)
			}
		})
	}

	if _, err := f.svc.CreateLesson(ctx, uuid.New(), LessonInput{Title: "orphan"}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown program, got %v", err)
	}
}

func TestUpdateLesson(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	title := "Day 1: idea"
	delay := 6
	l, err := f.svc.UpdateLesson(ctx, f.l1.ID, LessonPatch{Title: &title, DelayHoursFromPrevious: &delay})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if l.Title != title || l.DelayHoursFromPrevious != 6 || l.ExpiresInHours != 48 {
		t.Fatalf("unexpected lesson: %+v", l)
	}

	negative := -2
	if _, err := f.svc.UpdateLesson(ctx, f.l1.ID, LessonPatch{DelayHoursFromPrevious: &negative}); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput for negative delay, got %v", err)
	}
	zero := 0
	if _, err := f.svc.UpdateLesson(ctx, f.l1.ID, LessonPatch{ExpiresInHours: &zero}); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput for zero expiry, got %v", err)
	}
	if _, err := f.svc.UpdateLesson(ctx, uuid.New(), LessonPatch{Title: &title}); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMoveLesson(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	l3, err := f.svc.CreateLesson(ctx, f.program.ID, LessonInput{Title: "Day 3"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	lessons, err := f.svc.MoveLesson(ctx, l3.ID, MoveUp)
	if err != nil {
		t.Fatalf("move up: %v", err)
	}
	if diff := cmp.Diff([]string{"Day 1", "Day 3", "Day 2"}, lessonTitles(lessons)); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}

	stored, _ := f.svc.ListLessons(ctx, f.program.ID)
	if diff := cmp.Diff([]string{"Day 1", "Day 3", "Day 2"}, lessonTitles(stored)); diff != "" {
		t.Fatalf("stored order (-want +got):\n%s", diff)
	}

	lessons, err = f.svc.MoveLesson(ctx, f.l1.ID, MoveUp)
	if err != nil {
		t.Fatalf("move first up: %v", err)
	}
	if diff := cmp.Diff([]string{"Day 1", "Day 3", "Day 2"}, lessonTitles(lessons)); diff != "" {
		t.Fatalf("moving the first lesson up must be a no-op (-want +got):\n%s", diff)
	}

	lessons, _ = f.svc.MoveLesson(ctx, f.l2.ID, MoveDown)
	if diff := cmp.Diff([]string{"Day 1", "Day 3", "Day 2"}, lessonTitles(lessons)); diff != "" {
		t.Fatalf("moving the last lesson down must be a no-op (-want +got):\n%s", diff)
	}

	if _, err := f.svc.MoveLesson(ctx, f.l1.ID, "sideways"); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
}

func TestDeleteLessonDropsProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.register(t, 100, true)
	_, _ = f.svc.StartLesson(ctx, user.ID, f.l1.ID)

	if err := f.svc.DeleteLesson(ctx, f.l1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := f.svc.DeleteLesson(ctx, f.l1.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("want ErrNotFound on second delete, got %v", err)
	}

	rows, _ := f.store.ListLessonProgress(ctx, user.ID, f.program.ID)
	if len(rows) != 0 {
		t.Fatalf("want progress of deleted lesson gone, got %d rows", len(rows))
	}

	p, err := f.svc.GetProgress(ctx, user.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.TotalLessons != 1 {
		t.Fatalf("want 1 lesson left, got %d", p.TotalLessons)
	}
}

func TestUpsell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	upsell, err := f.svc.GetUpsell(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(DefaultUpsell(), upsell); diff != "" {
		t.Fatalf("want defaults (-want +got):\n%s", diff)
	}

	if _, err := f.svc.SaveUpsell(ctx, UpsellInput{Title: "t", ButtonLabel: "b", ButtonURL: "nope"}); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}

	in := UpsellInput{Title: "Go paid", Text: "All lessons", ButtonLabel: "Pay", ButtonURL: "https://t.me/sprint_paid"}
	if _, err := f.svc.SaveUpsell(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	upsell, _ = f.svc.GetUpsell(ctx)
	if upsell.Title != in.Title || upsell.ButtonURL != in.ButtonURL {
		t.Fatalf("saved upsell not returned: %+v", upsell)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paid := f.register(t, 1, true)
	f.register(t, 2, false)
	_, _ = f.svc.StartLesson(ctx, paid.ID, f.l1.ID)

	f.clock.advance(49 * time.Hour)
	if _, err := f.svc.GetProgress(ctx, paid.ID); err != nil {
		t.Fatalf("progress: %v", err)
	}

	stats, err := f.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if diff := cmp.Diff(&models.Stats{Users: 2, Paid: 1, Failed: 1}, stats); diff != "" {
		t.Fatalf("stats (-want +got):\n%s", diff)
	}
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New(), &fakeChecker{})

	created, err := svc.Seed(ctx)
	if err != nil || !created {
		t.Fatalf("first seed: created=%v err=%v", created, err)
	}

	created, err = svc.Seed(ctx)
	if err != nil || created {
		t.Fatalf("second seed must be a no-op: created=%v err=%v", created, err)
	}

	programs, _ := svc.ListPrograms(ctx)
	if len(programs) != 1 || !programs[0].IsActive || programs[0].LessonCount != 2 {
		t.Fatalf("unexpected seeded programs: %+v", programs)
	}

	lessons, _ := svc.ListLessons(ctx, programs[0].ID)
	if lessons[0].Visibility != models.VisibilityFree || lessons[1].Visibility != models.VisibilityPaid || lessons[1].DelayHoursFromPrevious != 12 {
		t.Fatalf("unexpected seeded lessons: %+v %+v", lessons[0], lessons[1])
	}
}
