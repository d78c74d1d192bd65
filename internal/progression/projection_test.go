package progression_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/romanzh1/startup-sprint/internal/models"
	"github.com/romanzh1/startup-sprint/internal/progression"
)

func statuses(v progression.View) []models.LessonStatus {
	out := make([]models.LessonStatus, 0, len(v.Lessons))
	for _, l := range v.Lessons {
		out = append(out, l.Status)
	}
	return out
}

func TestDefaultStatus(t *testing.T) {
	tests := []struct {
		name     string
		row      *models.UserLessonProgress
		position int
		want     models.LessonStatus
	}{
		{"first without row", nil, 0, models.LessonAvailable},
		{"later without row", nil, 3, models.LessonLocked},
		{"row wins for first", &models.UserLessonProgress{Status: models.LessonExpired}, 0, models.LessonExpired},
		{"row wins for later", &models.UserLessonProgress{Status: models.LessonDone}, 2, models.LessonDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := progression.DefaultStatus(tt.row, tt.position); got != tt.want {
				t.Fatalf("want=%s got=%s", tt.want, got)
			}
		})
	}
}

func TestMaskStatus(t *testing.T) {
	tests := []struct {
		visibility models.Visibility
		isPaid     bool
		in, want   models.LessonStatus
	}{
		{models.VisibilityPaid, false, models.LessonAvailable, models.LessonLocked},
		{models.VisibilityPaid, false, models.LessonDone, models.LessonLocked},
		{models.VisibilityPaid, true, models.LessonAvailable, models.LessonAvailable},
		{models.VisibilityFree, false, models.LessonAvailable, models.LessonAvailable},
		{models.VisibilityFree, false, models.LessonExpired, models.LessonExpired},
	}

	for _, tt := range tests {
		if got := progression.MaskStatus(tt.in, tt.visibility, tt.isPaid); got != tt.want {
			t.Errorf("MaskStatus(%s, %s, paid=%v): want=%s got=%s", tt.in, tt.visibility, tt.isPaid, tt.want, got)
		}
	}
}

func TestProjectNotStarted(t *testing.T) {
	programID, l1, l2 := sprint()
	l3 := newLesson(programID, 3, models.VisibilityFree, 24, 48)
	st := newState(programID, l3, l1, l2)
	program := &models.Program{ID: programID, Name: "sprint", IsActive: true}

	view := st.Project(program, true)

	if view.ProgressStatus != models.ProgramNotStarted {
		t.Fatalf("progressStatus: want=NOT_STARTED got=%s", view.ProgressStatus)
	}
	want := []models.LessonStatus{models.LessonAvailable, models.LessonLocked, models.LessonLocked}
	if diff := cmp.Diff(want, statuses(view)); diff != "" {
		t.Fatalf("statuses (-want +got):\n%s", diff)
	}
	if view.Lessons[0].Lesson.ID != l1.ID {
		t.Fatal("lessons must be ordered by orderIndex")
	}
	if view.CompletedLessons != 0 || view.TotalLessons != 3 {
		t.Fatalf("counts: got %d/%d", view.CompletedLessons, view.TotalLessons)
	}
}

func TestProjectExcludesArchived(t *testing.T) {
	programID, l1, l2 := sprint()
	archived := newLesson(programID, 0, models.VisibilityArchived, 0, 48)
	st := newState(programID, archived, l1, l2)

	view := st.Project(&models.Program{ID: programID}, true)

	if view.TotalLessons != 2 || len(view.Lessons) != 2 {
		t.Fatalf("archived lesson leaked into view: total=%d", view.TotalLessons)
	}
	if view.Lessons[0].Status != models.LessonAvailable {
		t.Fatalf("first non-archived lesson defaults to AVAILABLE, got %s", view.Lessons[0].Status)
	}
}

func TestPaidMaskIsViewOnly(t *testing.T) {
	programID, l1, l2 := sprint()
	l2.DelayHoursFromPrevious = 0
	st := newState(programID, l1, l2)
	_ = st.Start(l1, t0)
	_ = st.Complete(l1, t0)

	program := &models.Program{ID: programID}

	unpaid := st.Project(program, false)
	if got := unpaid.Lessons[1].Status; got != models.LessonLocked {
		t.Fatalf("unpaid caller: want=LOCKED got=%s", got)
	}
	if got := st.Row(l2.ID).Status; got != models.LessonAvailable {
		t.Fatalf("stored row must stay AVAILABLE, got %s", got)
	}

	paid := st.Project(program, true)
	if got := paid.Lessons[1].Status; got != models.LessonAvailable {
		t.Fatalf("paid caller: want=AVAILABLE got=%s", got)
	}
}

func TestProjectCounts(t *testing.T) {
	programID, l1, l2 := sprint()
	l2.DelayHoursFromPrevious = 0
	st := newState(programID, l1, l2)
	_ = st.Start(l1, t0)
	_ = st.Complete(l1, t0)
	_ = st.Complete(l2, t0.Add(hours(1)))

	view := st.Project(&models.Program{ID: programID}, true)
	if view.CompletedLessons != 2 || view.TotalLessons != 2 {
		t.Fatalf("counts: want 2/2 got %d/%d", view.CompletedLessons, view.TotalLessons)
	}
	if view.ProgressStatus != models.ProgramCompleted {
		t.Fatalf("want=COMPLETED got=%s", view.ProgressStatus)
	}

	// a done paid lesson is masked for unpaid callers and not counted
	masked := st.Project(&models.Program{ID: programID}, false)
	if masked.CompletedLessons != 1 {
		t.Fatalf("masked count: want=1 got=%d", masked.CompletedLessons)
	}
}

func TestEmptyView(t *testing.T) {
	view := progression.EmptyView()
	if view.ProgressStatus != models.ProgramNotStarted || view.Lessons == nil || view.Program != nil {
		t.Fatalf("unexpected empty view: %+v", view)
	}
}

func TestChainNavigation(t *testing.T) {
	programID := uuid.New()
	a := newLesson(programID, 5, models.VisibilityFree, 0, 48)
	b := newLesson(programID, 1, models.VisibilityFree, 0, 48)
	c := newLesson(programID, 3, models.VisibilityArchived, 0, 48)

	chain := progression.NewChain([]*models.Lesson{a, b, c})

	if len(chain) != 2 || chain[0] != b || chain[1] != a {
		t.Fatalf("unexpected chain order")
	}
	if next, ok := chain.Next(b.ID); !ok || next != a {
		t.Fatal("next of first must be second")
	}
	if _, ok := chain.Next(a.ID); ok {
		t.Fatal("last lesson has no next")
	}
	if !chain.IsLast(a.ID) || chain.IsLast(b.ID) || chain.IsLast(c.ID) {
		t.Fatal("IsLast mismatch")
	}
	if chain.Position(c.ID) != -1 {
		t.Fatal("archived lesson must not be in the chain")
	}
}
