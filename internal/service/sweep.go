package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/romanzh1/startup-sprint/internal/models"
	"github.com/romanzh1/startup-sprint/internal/progression"
	"go.uber.org/zap"
)

// Transition is what changed for one user during a sweep.
type Transition struct {
	UserID     uuid.UUID
	TelegramID int64
	Unlocked   []*models.Lesson
	Failed     bool
}

// RefreshAll refreshes every in-progress run of the active program. Reads refresh
// on their own, so this only makes transitions visible to notifications early.
func (s *Service) RefreshAll(ctx context.Context) ([]Transition, error) {
	program, err := s.repo.GetActiveProgram(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("refresh all: %w", err)
	}

	runs, err := s.repo.ListInProgress(ctx, program.ID)
	if err != nil {
		return nil, fmt.Errorf("refresh all (program_id: %s): %w", program.ID, err)
	}

	now := s.now()
	var transitions []Transition
	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			return transitions, err
		}

		tr, changed, err := s.refreshUser(ctx, run.UserID, program.ID, now)
		if err != nil {
			zap.L().Error("refresh user progress", zap.Error(err), zap.String("user_id", run.UserID.String()))
			continue
		}
		if changed {
			transitions = append(transitions, tr)
		}
	}

	return transitions, nil
}

func (s *Service) refreshUser(ctx context.Context, userID, programID uuid.UUID, now time.Time) (Transition, bool, error) {
	tr := Transition{UserID: userID}
	changed := false

	err := s.repo.RunInTx(ctx, func(repo models.Repository) error {
		if err := repo.LockUser(ctx, userID); err != nil {
			return err
		}

		user, err := repo.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		tr.TelegramID = user.TelegramID

		st, err := s.loadState(ctx, repo, userID, programID)
		if err != nil {
			return err
		}

		res := st.Refresh(now)
		if !res.Changed() {
			return nil
		}
		changed = true

		for _, l := range res.Unlocked {
			row := st.Row(l.ID)
			if progression.MaskStatus(row.Status, l.Visibility, user.IsPaid) == models.LessonAvailable {
				tr.Unlocked = append(tr.Unlocked, l)
			}
		}
		tr.Failed = res.Failed

		return s.saveState(ctx, repo, st)
	})
	if err != nil {
		return Transition{}, false, fmt.Errorf("refresh user (user_id: %s): %w", userID, err)
	}

	return tr, changed, nil
}
