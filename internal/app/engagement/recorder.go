package engagement

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/levelhabit/levelhabit/internal/domain"
)

// Recorder turns a "habit done" event into persisted experience, streak
// and level changes. All writes of one completion share a transaction.
type Recorder struct {
	store domain.Store
	rules Rules
	clock domain.Clock
}

// NewRecorder creates a completion recorder.
func NewRecorder(store domain.Store, rules Rules, clock domain.Clock) *Recorder {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Recorder{store: store, rules: rules, clock: clock}
}

// CompletionRequest asks to complete a habit. A nil Date means today in
// the user's timezone.
type CompletionRequest struct {
	UserID  string      `json:"userId"`
	HabitID string      `json:"habitId"`
	Date    *civil.Date `json:"date,omitempty"`
	Note    string      `json:"note,omitempty"`
}

// CompletionResult describes what one completion changed.
type CompletionResult struct {
	Record       domain.HabitRecord `json:"record"`
	ExpGained    int64              `json:"expGained"`
	NewStreak    int                `json:"newStreak"`
	StreakKind   StreakKind         `json:"streakKind"`
	LevelUp      bool               `json:"levelUp"`
	NewLevel     int                `json:"newLevel,omitempty"`
	StatType     domain.StatType    `json:"statType"`
	StatLevelUp  bool               `json:"statLevelUp"`
	NewStatLevel int                `json:"newStatLevel,omitempty"`

	User  domain.User  `json:"user"`
	Habit domain.Habit `json:"habit"`

	// Filled when the unlock scan runs in the same transaction.
	Unlocks *UnlockResult `json:"unlocks,omitempty"`
}

// RecordCompletion records one completion in its own transaction.
func (r *Recorder) RecordCompletion(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	var res *CompletionResult
	err := r.store.WithinTx(ctx, func(tx domain.Store) error {
		var err error
		res, err = r.record(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// record does the work inside an open transaction.
func (r *Recorder) record(ctx context.Context, tx domain.Store, req CompletionRequest) (*CompletionResult, error) {
	user, err := tx.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	habit, err := tx.GetHabit(ctx, req.HabitID)
	if err != nil {
		return nil, fmt.Errorf("load habit: %w", err)
	}
	if habit.UserID != user.ID {
		return nil, &domain.NotFoundError{Entity: "habit", ID: req.HabitID}
	}
	if habit.IsArchived || !habit.IsActive {
		return nil, &domain.InvalidInputError{Field: "habitId", Reason: "habit is archived"}
	}

	now := r.clock.Now()
	today := DateIn(now, user.Timezone)
	date := today
	if req.Date != nil {
		if !req.Date.IsValid() {
			return nil, &domain.InvalidInputError{Field: "date", Reason: "not a calendar date"}
		}
		if req.Date.After(today) {
			return nil, &domain.InvalidInputError{Field: "date", Reason: fmt.Sprintf("%s is after today (%s)", req.Date, today)}
		}
		date = *req.Date
	}

	exists, err := tx.HasCompletion(ctx, habit.ID, date)
	if err != nil {
		return nil, fmt.Errorf("check completion: %w", err)
	}
	if exists {
		return nil, &domain.AlreadyCompletedError{HabitID: habit.ID, Date: date}
	}

	last, err := tx.LastCompletionDate(ctx, habit.ID)
	if err != nil {
		return nil, fmt.Errorf("last completion: %w", err)
	}
	tr := EvaluateStreak(last, date, habit.CurrentStreak)
	if tr.IsDuplicate {
		return nil, &domain.AlreadyCompletedError{HabitID: habit.ID, Date: date}
	}

	gained := r.rules.ExpGain(habit.Difficulty, tr.NewStreak)

	rec := domain.HabitRecord{
		ID:                 uuid.NewString(),
		HabitID:            habit.ID,
		UserID:             user.ID,
		CompletedDate:      date,
		Completed:          true,
		Note:               req.Note,
		ExpEarned:          gained,
		StreakAtCompletion: tr.NewStreak,
		CompletedAt:        now,
	}
	if err := tx.InsertRecord(ctx, &rec); err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}

	// Anything failing from here on leaves a record without its effects
	// until the transaction rolls back.
	habit.CurrentStreak = tr.NewStreak
	if habit.CurrentStreak > habit.BestStreak {
		habit.BestStreak = habit.CurrentStreak
	}
	habit.TotalCompletions++
	completedAt := now
	habit.LastCompletedAt = &completedAt
	if err := tx.UpdateHabit(ctx, habit); err != nil {
		return nil, &domain.PartialUpdateError{Step: "update habit", RolledBack: true, Err: err}
	}

	res := &CompletionResult{
		Record:     rec,
		ExpGained:  gained,
		NewStreak:  tr.NewStreak,
		StreakKind: tr.Kind,
		StatType:   habit.StatType,
	}

	oldLevel := user.Level
	user.TotalExp += gained
	user.Level = r.rules.LevelFromExp(user.TotalExp).Level
	if user.Level > oldLevel {
		res.LevelUp = true
		res.NewLevel = user.Level
	}

	sp := user.Stats.Get(habit.StatType)
	oldStat := sp.Level
	sp.Exp += gained
	sp.Level = r.rules.StatLevelFromExp(sp.Exp).Level
	user.Stats.Set(habit.StatType, sp)
	if sp.Level > oldStat {
		res.StatLevelUp = true
		res.NewStatLevel = sp.Level
	}

	habits, err := tx.ListHabits(ctx, user.ID, false)
	if err != nil {
		return nil, &domain.PartialUpdateError{Step: "aggregate streak", RolledBack: true, Err: err}
	}
	user.CurrentStreak = aggregateStreak(habits, habit)
	if user.CurrentStreak > user.MaxStreak {
		user.MaxStreak = user.CurrentStreak
	}
	user.UpdatedAt = now
	if err := tx.UpdateUser(ctx, user); err != nil {
		return nil, &domain.PartialUpdateError{Step: "update user", RolledBack: true, Err: err}
	}

	res.User = *user
	res.Habit = *habit
	return res, nil
}

// aggregateStreak is the highest current streak across the user's active
// habits, with updated taking precedence over its stored copy.
func aggregateStreak(habits []domain.Habit, updated *domain.Habit) int {
	best := updated.CurrentStreak
	for _, h := range habits {
		if h.ID == updated.ID {
			continue
		}
		if h.CurrentStreak > best {
			best = h.CurrentStreak
		}
	}
	return best
}
