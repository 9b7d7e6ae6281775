package engagement

import (
	"context"
	"fmt"
	"time"

	"github.com/levelhabit/levelhabit/internal/domain"
)

// JobStatus is one catalog job with the user's progress toward it.
type JobStatus struct {
	domain.JobDef
	IsUnlocked bool       `json:"isUnlocked"`
	IsEquipped bool       `json:"isEquipped"`
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
	Evaluation Evaluation `json:"evaluation"`
}

// Jobs returns every job in catalog order with its evaluation.
func (s *UnlockService) Jobs(ctx context.Context, userID string) ([]JobStatus, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	state, err := s.State(ctx, s.store, user)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListUserJobs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	byID := make(map[string]domain.UserJob, len(rows))
	for _, r := range rows {
		byID[r.JobID] = r
	}

	out := make([]JobStatus, 0, len(s.catalog.Jobs))
	for _, j := range s.catalog.Jobs {
		row := byID[j.ID]
		out = append(out, JobStatus{
			JobDef:     j,
			IsUnlocked: row.IsUnlocked,
			IsEquipped: user.CurrentJobID == j.ID,
			UnlockedAt: row.UnlockedAt,
			Evaluation: Evaluate(j.Requirements, state),
		})
	}
	return out, nil
}

// EquipJob makes an unlocked job the user's current job.
func (s *UnlockService) EquipJob(ctx context.Context, userID, jobID string) (*domain.User, error) {
	if _, ok := s.catalog.Job(jobID); !ok {
		return nil, &domain.NotFoundError{Entity: "job", ID: jobID}
	}

	var user *domain.User
	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		jobs, err := tx.ListUserJobs(ctx, userID)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		unlocked := false
		for _, j := range jobs {
			if j.JobID == jobID && j.IsUnlocked {
				unlocked = true
				break
			}
		}
		if !unlocked {
			return fmt.Errorf("equip %s: %w", jobID, domain.ErrJobLocked)
		}
		if err := tx.EquipJob(ctx, userID, jobID); err != nil {
			return fmt.Errorf("equip %s: %w", jobID, err)
		}
		user, err = tx.GetUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}
