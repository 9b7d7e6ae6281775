package engagement

import (
	"context"
	"fmt"
	"log"

	"github.com/levelhabit/levelhabit/internal/domain"
	"github.com/levelhabit/levelhabit/internal/infra/catalog"
)

// specialWindowDays is how far back the special predicates look.
const specialWindowDays = 7

// UnlockService applies the catalog's unlock rules to a user.
// Unlocks are idempotent: a row flips once and its reward is paid once.
type UnlockService struct {
	store   domain.Store
	catalog *catalog.Catalog
	rules   Rules
	clock   domain.Clock
}

// NewUnlockService creates an unlock service.
func NewUnlockService(store domain.Store, cat *catalog.Catalog, rules Rules, clock domain.Clock) *UnlockService {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &UnlockService{store: store, catalog: cat, rules: rules, clock: clock}
}

// UnlockResult lists what a scan newly unlocked.
type UnlockResult struct {
	Achievements []domain.AchievementDef `json:"achievements"`
	Jobs         []domain.JobDef         `json:"jobs"`
	ExpAwarded   int64                   `json:"expAwarded"`
	LevelUp      bool                    `json:"levelUp"`
	NewLevel     int                     `json:"newLevel,omitempty"`
}

// Empty reports whether nothing was unlocked.
func (r *UnlockResult) Empty() bool {
	return r == nil || (len(r.Achievements) == 0 && len(r.Jobs) == 0)
}

// CheckAndUnlock scans every locked achievement and job for the user and
// unlocks those now met.
func (s *UnlockService) CheckAndUnlock(ctx context.Context, userID string) (*UnlockResult, error) {
	var res *UnlockResult
	err := s.store.WithinTx(ctx, func(tx domain.Store) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		res, err = s.check(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// check runs inside an open transaction. Achievements go first and repeat
// while their rewards keep raising the level; jobs follow in dependency
// order so a prerequisite unlocked in this pass counts immediately.
func (s *UnlockService) check(ctx context.Context, tx domain.Store, user *domain.User) (*UnlockResult, error) {
	state, err := s.State(ctx, tx, user)
	if err != nil {
		return nil, err
	}

	res := &UnlockResult{}
	now := s.clock.Now()
	startLevel := user.Level

	for {
		rewarded := false
		for _, a := range s.catalog.Achievements {
			if state.UnlockedAchievements[a.ID] {
				continue
			}
			if _, _, met := AchievementProgress(a, state); !met {
				continue
			}
			newly, err := tx.UnlockAchievement(ctx, user.ID, a.ID, now)
			if err != nil {
				return nil, fmt.Errorf("unlock achievement %s: %w", a.ID, err)
			}
			state.UnlockedAchievements[a.ID] = true
			if !newly {
				continue
			}
			res.Achievements = append(res.Achievements, a)
			if a.ExpReward > 0 {
				user.TotalExp += a.ExpReward
				res.ExpAwarded += a.ExpReward
				user.Level = s.rules.LevelFromExp(user.TotalExp).Level
				state.Level = user.Level
				rewarded = true
			}
		}
		if !rewarded {
			break
		}
	}

	if res.ExpAwarded > 0 {
		user.UpdatedAt = now
		if err := tx.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("credit rewards: %w", err)
		}
		if user.Level > startLevel {
			res.LevelUp = true
			res.NewLevel = user.Level
		}
	}

	for _, j := range s.catalog.JobOrder() {
		if state.UnlockedJobs[j.ID] || j.Requirements.IsEmpty() {
			continue
		}
		if !Evaluate(j.Requirements, state).Met {
			continue
		}
		newly, err := tx.UnlockJob(ctx, user.ID, j.ID, now)
		if err != nil {
			return nil, fmt.Errorf("unlock job %s: %w", j.ID, err)
		}
		state.UnlockedJobs[j.ID] = true
		if newly {
			res.Jobs = append(res.Jobs, j)
		}
	}

	if !res.Empty() {
		log.Printf("[unlock] user %s: %d achievements, %d jobs, +%d exp",
			user.ID, len(res.Achievements), len(res.Jobs), res.ExpAwarded)
	}
	return res, nil
}

// State builds the unlock snapshot for user from the store.
func (s *UnlockService) State(ctx context.Context, st domain.Store, user *domain.User) (UnlockState, error) {
	state := UnlockState{
		Level:                user.Level,
		StatLevels:           user.Stats.Levels(),
		UnlockedJobs:         make(map[string]bool),
		UnlockedAchievements: make(map[string]bool),
		MaxStreak:            user.MaxStreak,
	}

	achievements, err := st.ListUserAchievements(ctx, user.ID)
	if err != nil {
		return state, fmt.Errorf("list achievements: %w", err)
	}
	for _, a := range achievements {
		if a.IsUnlocked {
			state.UnlockedAchievements[a.AchievementID] = true
		}
	}

	jobs, err := st.ListUserJobs(ctx, user.ID)
	if err != nil {
		return state, fmt.Errorf("list jobs: %w", err)
	}
	for _, j := range jobs {
		if j.IsUnlocked {
			state.UnlockedJobs[j.JobID] = true
		}
	}

	habits, err := st.ListHabits(ctx, user.ID, true)
	if err != nil {
		return state, fmt.Errorf("list habits: %w", err)
	}
	categories := make(map[domain.Category]bool)
	for _, h := range habits {
		state.TotalCompletions += h.TotalCompletions
		categories[h.Category.Normalize()] = true
	}
	state.HabitCount = len(habits)
	state.DistinctCategories = len(categories)

	today := TodayIn(s.clock, user.Timezone)
	records, err := st.ListUserRecords(ctx, user.ID, today.AddDays(-(specialWindowDays - 1)), today)
	if err != nil {
		return state, fmt.Errorf("list records: %w", err)
	}
	state.Specials = DetectSpecials(records, habits, user.Timezone, today)
	return state, nil
}

// ─── Status Views ───────────────────────────────────────────────────────────

// AchievementStatus is one catalog achievement as seen by a user.
type AchievementStatus struct {
	domain.AchievementDef
	IsUnlocked bool   `json:"isUnlocked"`
	UnlockedAt string `json:"unlockedAt,omitempty"`
	Current    int    `json:"current"`
	Target     int    `json:"target"`
}

// Achievements returns every achievement with the user's status.
func (s *UnlockService) Achievements(ctx context.Context, userID string) ([]AchievementStatus, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	state, err := s.State(ctx, s.store, user)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListUserAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	unlockedAt := make(map[string]string, len(rows))
	for _, r := range rows {
		if r.IsUnlocked && r.UnlockedAt != nil {
			unlockedAt[r.AchievementID] = r.UnlockedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
	}

	out := make([]AchievementStatus, 0, len(s.catalog.Achievements))
	for _, a := range s.catalog.Achievements {
		cur, target, _ := AchievementProgress(a, state)
		st := AchievementStatus{
			AchievementDef: a,
			IsUnlocked:     state.UnlockedAchievements[a.ID],
			UnlockedAt:     unlockedAt[a.ID],
			Current:        cur,
			Target:         target,
		}
		if st.Current > st.Target {
			st.Current = st.Target
		}
		out = append(out, st)
	}
	return out, nil
}
