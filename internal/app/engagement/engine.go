package engagement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/levelhabit/levelhabit/internal/domain"
	"github.com/levelhabit/levelhabit/internal/infra/catalog"
	"github.com/levelhabit/levelhabit/internal/infra/metrics"
	"github.com/levelhabit/levelhabit/internal/infra/scheduler"
)

// Engine is the entry point the API and CLI use. It owns the recorder and
// the unlock service and keeps side channels (leaderboard, metrics) out of
// the transactional path.
type Engine struct {
	store    domain.Store
	catalog  *catalog.Catalog
	rules    Rules
	clock    domain.Clock
	board    domain.Leaderboard
	retries  *scheduler.RetryQueue
	recorder *Recorder
	unlocks  *UnlockService
}

// NewEngine wires an engine. board may be nil.
func NewEngine(store domain.Store, cat *catalog.Catalog, rules Rules, clock domain.Clock, board domain.Leaderboard) *Engine {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	retries := scheduler.NewRetryQueue(scheduler.DefaultRetryConfig())
	retries.SetClock(clock.Now)
	return &Engine{
		store:    store,
		catalog:  cat,
		rules:    rules,
		clock:    clock,
		board:    board,
		retries:  retries,
		recorder: NewRecorder(store, rules, clock),
		unlocks:  NewUnlockService(store, cat, rules, clock),
	}
}

// Rules returns the progression tables in use.
func (e *Engine) Rules() Rules { return e.rules }

// Catalog returns the loaded catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Unlocks returns the unlock service.
func (e *Engine) Unlocks() *UnlockService { return e.unlocks }

// ─── Users ──────────────────────────────────────────────────────────────────

// NewUserInput is the profile a user submits at signup.
type NewUserInput struct {
	DisplayName string        `json:"displayName"`
	Timezone    string        `json:"timezone"`
	Gender      domain.Gender `json:"gender"`
}

// CreateUser creates the profile for an authenticated id, with locked
// rows for every achievement and job and the beginner job equipped.
func (e *Engine) CreateUser(ctx context.Context, id string, in NewUserInput) (*domain.User, error) {
	name := strings.TrimSpace(in.DisplayName)
	if id == "" {
		return nil, &domain.InvalidInputError{Field: "id", Reason: "required"}
	}
	if name == "" {
		return nil, &domain.InvalidInputError{Field: "displayName", Reason: "required"}
	}
	if err := validateTimezone(in.Timezone); err != nil {
		return nil, err
	}

	u := domain.NewUser(id, name, in.Timezone, e.clock.Now())
	u.Gender = in.Gender

	err := e.store.WithinTx(ctx, func(tx domain.Store) error {
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		if err := tx.InitUserUnlocks(ctx, u.ID, e.catalog.AchievementIDs(), e.catalog.JobIDs()); err != nil {
			return fmt.Errorf("init unlocks: %w", err)
		}
		if _, err := tx.UnlockJob(ctx, u.ID, domain.DefaultJobID, u.CreatedAt); err != nil {
			return fmt.Errorf("unlock %s: %w", domain.DefaultJobID, err)
		}
		return tx.EquipJob(ctx, u.ID, domain.DefaultJobID)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[engine] created user %s", u.ID)
	e.updateBoard(ctx, u)
	return u, nil
}

// GetUser returns the user profile.
func (e *Engine) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return e.store.GetUser(ctx, id)
}

// ProfileUpdate carries the editable profile fields. Nil means unchanged.
type ProfileUpdate struct {
	DisplayName *string        `json:"displayName,omitempty"`
	Timezone    *string        `json:"timezone,omitempty"`
	Gender      *domain.Gender `json:"gender,omitempty"`
}

// UpdateProfile edits cosmetic profile fields.
func (e *Engine) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*domain.User, error) {
	var user *domain.User
	err := e.store.WithinTx(ctx, func(tx domain.Store) error {
		u, err := tx.GetUser(ctx, id)
		if err != nil {
			return err
		}
		if upd.DisplayName != nil {
			name := strings.TrimSpace(*upd.DisplayName)
			if name == "" {
				return &domain.InvalidInputError{Field: "displayName", Reason: "required"}
			}
			u.DisplayName = name
		}
		if upd.Timezone != nil {
			if err := validateTimezone(*upd.Timezone); err != nil {
				return err
			}
			u.Timezone = *upd.Timezone
		}
		if upd.Gender != nil {
			u.Gender = *upd.Gender
		}
		u.UpdatedAt = e.clock.Now()
		user = u
		return tx.UpdateUser(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Profile is a user with derived progress for display.
type Profile struct {
	User          *domain.User                      `json:"user"`
	LevelProgress LevelProgress                     `json:"levelProgress"`
	StatProgress  map[domain.StatType]LevelProgress `json:"statProgress"`
	Job           domain.JobDef                     `json:"job"`
}

// Profile returns the user with level and stat progress.
func (e *Engine) Profile(ctx context.Context, id string) (*Profile, error) {
	u, err := e.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	p := &Profile{
		User:          u,
		LevelProgress: e.rules.LevelFromExp(u.TotalExp),
		StatProgress:  make(map[domain.StatType]LevelProgress, len(domain.AllStats)),
	}
	for _, s := range domain.AllStats {
		p.StatProgress[s] = e.rules.StatLevelFromExp(u.Stats.Get(s).Exp)
	}
	p.Job, _ = e.catalog.Job(u.CurrentJobID)
	return p, nil
}

func validateTimezone(tz string) error {
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return &domain.InvalidInputError{Field: "timezone", Reason: fmt.Sprintf("unknown zone %q", tz)}
	}
	return nil
}

// ─── Habits ─────────────────────────────────────────────────────────────────

// NewHabitInput is a habit definition from the client.
type NewHabitInput struct {
	Name          string               `json:"name"`
	Description   string               `json:"description"`
	Icon          string               `json:"icon"`
	Category      domain.Category      `json:"category"`
	StatType      domain.StatType      `json:"statType"`
	Difficulty    domain.Difficulty    `json:"difficulty"`
	FrequencyType domain.FrequencyType `json:"frequencyType"`
	SpecificDays  []time.Weekday       `json:"specificDays"`
}

// CreateHabit validates and stores a new habit. Missing stat type falls
// back to the category's default stat; missing difficulty and frequency
// fall back to normal and daily.
func (e *Engine) CreateHabit(ctx context.Context, userID string, in NewHabitInput) (*domain.Habit, error) {
	h := &domain.Habit{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		Icon:          in.Icon,
		Category:      in.Category.Normalize(),
		StatType:      in.StatType,
		Difficulty:    in.Difficulty,
		FrequencyType: in.FrequencyType,
		SpecificDays:  in.SpecificDays,
		IsActive:      true,
		CreatedAt:     e.clock.Now(),
	}
	if h.Name == "" {
		return nil, &domain.InvalidInputError{Field: "name", Reason: "required"}
	}
	if h.Category == "" {
		h.Category = "other"
	}
	if h.StatType == "" {
		h.StatType = h.Category.DefaultStat()
	} else if st, err := domain.ParseStatType(string(h.StatType)); err != nil {
		return nil, err
	} else {
		h.StatType = st
	}
	if h.Difficulty == "" {
		h.Difficulty = domain.DifficultyNormal
	}
	if !h.Difficulty.Valid() {
		return nil, &domain.InvalidInputError{Field: "difficulty", Reason: fmt.Sprintf("unknown difficulty %q", h.Difficulty)}
	}
	if h.FrequencyType == "" {
		h.FrequencyType = domain.FrequencyDaily
	}
	if !h.FrequencyType.Valid() {
		return nil, &domain.InvalidInputError{Field: "frequencyType", Reason: fmt.Sprintf("unknown frequency %q", h.FrequencyType)}
	}
	if h.FrequencyType == domain.FrequencySpecificDays {
		if len(h.SpecificDays) == 0 {
			return nil, &domain.InvalidInputError{Field: "specificDays", Reason: "required for specific_days"}
		}
		for _, d := range h.SpecificDays {
			if d < time.Sunday || d > time.Saturday {
				return nil, &domain.InvalidInputError{Field: "specificDays", Reason: fmt.Sprintf("day %d out of range", d)}
			}
		}
	} else {
		h.SpecificDays = nil
	}

	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	if err := e.store.CreateHabit(ctx, h); err != nil {
		return nil, fmt.Errorf("create habit: %w", err)
	}
	if _, err := e.CheckUnlocks(ctx, userID); err != nil {
		log.Printf("[engine] unlock check after habit create for %s: %v", userID, err)
	}
	return h, nil
}

// ListHabits returns the user's habits.
func (e *Engine) ListHabits(ctx context.Context, userID string, includeArchived bool) ([]domain.Habit, error) {
	return e.store.ListHabits(ctx, userID, includeArchived)
}

// ArchiveHabit soft-deletes a habit. History and earned exp stay.
func (e *Engine) ArchiveHabit(ctx context.Context, userID, habitID string) error {
	return e.store.WithinTx(ctx, func(tx domain.Store) error {
		h, err := tx.GetHabit(ctx, habitID)
		if err != nil {
			return err
		}
		if h.UserID != userID {
			return &domain.NotFoundError{Entity: "habit", ID: habitID}
		}
		h.IsArchived = true
		h.IsActive = false
		return tx.UpdateHabit(ctx, h)
	})
}

// ListRecords returns the newest completions of a habit the user owns.
func (e *Engine) ListRecords(ctx context.Context, userID, habitID string, limit int) ([]domain.HabitRecord, error) {
	h, err := e.store.GetHabit(ctx, habitID)
	if err != nil {
		return nil, err
	}
	if h.UserID != userID {
		return nil, &domain.NotFoundError{Entity: "habit", ID: habitID}
	}
	return e.store.ListRecords(ctx, habitID, limit)
}

// ─── Completion ─────────────────────────────────────────────────────────────

// CompleteHabit records a completion and runs the unlock scan in the same
// transaction, so the response carries everything the completion caused.
func (e *Engine) CompleteHabit(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	var res *CompletionResult
	err := e.store.WithinTx(ctx, func(tx domain.Store) error {
		var err error
		res, err = e.recorder.record(ctx, tx, req)
		if err != nil {
			return err
		}
		user := res.User
		unlocks, err := e.unlocks.check(ctx, tx, &user)
		if err != nil {
			return &domain.PartialUpdateError{Step: "unlock scan", RolledBack: true, Err: err}
		}
		res.Unlocks = unlocks
		res.User = user
		if unlocks.LevelUp {
			res.LevelUp = true
			res.NewLevel = unlocks.NewLevel
		}
		return nil
	})
	if err != nil {
		metrics.CompletionRejections.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	e.observe(res)
	e.updateBoard(ctx, &res.User)
	return res, nil
}

// CheckUnlocks runs an unlock scan outside of a completion.
func (e *Engine) CheckUnlocks(ctx context.Context, userID string) (*UnlockResult, error) {
	res, err := e.unlocks.CheckAndUnlock(ctx, userID)
	if err != nil {
		return nil, err
	}
	observeUnlocks(res)
	if res.ExpAwarded > 0 {
		if u, err := e.store.GetUser(ctx, userID); err == nil {
			e.updateBoard(ctx, u)
		}
	}
	return res, nil
}

func (e *Engine) observe(res *CompletionResult) {
	metrics.Completions.WithLabelValues(string(res.Habit.Difficulty)).Inc()
	metrics.ExpAwarded.WithLabelValues("completion").Add(float64(res.ExpGained))
	if res.LevelUp {
		metrics.LevelUps.WithLabelValues("player").Inc()
	}
	if res.StatLevelUp {
		metrics.LevelUps.WithLabelValues("stat").Inc()
	}
	observeUnlocks(res.Unlocks)
}

func observeUnlocks(res *UnlockResult) {
	if res == nil {
		return
	}
	metrics.Unlocks.WithLabelValues("achievement").Add(float64(len(res.Achievements)))
	metrics.Unlocks.WithLabelValues("job").Add(float64(len(res.Jobs)))
	metrics.ExpAwarded.WithLabelValues("achievement").Add(float64(res.ExpAwarded))
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyCompleted):
		return "already_completed"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrPartialUpdate):
		return "partial_update"
	}
	return "internal"
}

// ─── Leaderboard ────────────────────────────────────────────────────────────

// boardWrite is a score update waiting in the retry queue.
type boardWrite struct {
	name string
	exp  int64
}

func (e *Engine) updateBoard(ctx context.Context, u *domain.User) {
	if e.board == nil {
		return
	}
	if err := e.board.Update(ctx, u.ID, u.DisplayName, u.TotalExp); err != nil {
		e.boardFailed(scheduler.RetryEntry{Key: u.ID}, boardWrite{name: u.DisplayName, exp: u.TotalExp}, err)
		return
	}
	e.retries.Remove(u.ID)
}

func (e *Engine) boardFailed(entry scheduler.RetryEntry, w boardWrite, err error) {
	metrics.LeaderboardErrors.Inc()
	entry.Value = w
	entry.Error = err.Error()
	if !e.retries.ScheduleRetry(entry) {
		log.Printf("[engine] leaderboard update for %s dropped after %d attempts: %v", entry.Key, entry.Attempt, err)
		return
	}
	log.Printf("[engine] leaderboard update for %s queued for retry: %v", entry.Key, err)
}

// RetryLeaderboard replays failed leaderboard writes whose backoff has
// elapsed and returns how many succeeded.
func (e *Engine) RetryLeaderboard(ctx context.Context) int {
	if e.board == nil {
		return 0
	}
	ok := 0
	for _, entry := range e.retries.DrainReady() {
		w, _ := entry.Value.(boardWrite)
		if err := e.board.Update(ctx, entry.Key, w.name, w.exp); err != nil {
			e.boardFailed(entry, w, err)
			continue
		}
		ok++
	}
	return ok
}

// PendingLeaderboardWrites is the number of writes awaiting retry.
func (e *Engine) PendingLeaderboardWrites() int { return e.retries.Len() }

// RunLeaderboardRetries calls RetryLeaderboard every interval until ctx ends.
func (e *Engine) RunLeaderboardRetries(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.RetryLeaderboard(ctx); n > 0 {
				log.Printf("[engine] replayed %d leaderboard updates", n)
			}
		}
	}
}

// Leaderboard returns the top n users by total exp.
func (e *Engine) Leaderboard(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	if e.board == nil {
		return nil, fmt.Errorf("leaderboard: %w", errLeaderboardDisabled)
	}
	top, err := e.board.Top(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errLeaderboardUnavailable, err)
	}
	return top, nil
}

var (
	errLeaderboardDisabled    = errors.New("leaderboard disabled")
	errLeaderboardUnavailable = errors.New("leaderboard unavailable")
)

// IsLeaderboardDisabled reports whether err came from a missing leaderboard.
func IsLeaderboardDisabled(err error) bool { return errors.Is(err, errLeaderboardDisabled) }

// IsLeaderboardUnavailable reports whether the leaderboard is disabled or
// its backend failed.
func IsLeaderboardUnavailable(err error) bool {
	return IsLeaderboardDisabled(err) || errors.Is(err, errLeaderboardUnavailable)
}

// ─── Statistics ─────────────────────────────────────────────────────────────

// DailyStats summarizes one date. A nil date means today for the user.
func (e *Engine) DailyStats(ctx context.Context, userID string, date *civil.Date) (DailyStats, error) {
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return DailyStats{}, err
	}
	d := TodayIn(e.clock, u.Timezone)
	if date != nil {
		d = *date
	}
	habits, err := e.store.ListHabits(ctx, userID, false)
	if err != nil {
		return DailyStats{}, fmt.Errorf("list habits: %w", err)
	}
	records, err := e.store.ListUserRecords(ctx, userID, d, d)
	if err != nil {
		return DailyStats{}, fmt.Errorf("list records: %w", err)
	}
	return ComputeDaily(habits, records, d), nil
}

// WeeklyStats summarizes seven days from start. A nil start means the
// week ending today.
func (e *Engine) WeeklyStats(ctx context.Context, userID string, start *civil.Date) (WeeklyStats, error) {
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return WeeklyStats{}, err
	}
	s := TodayIn(e.clock, u.Timezone).AddDays(-6)
	if start != nil {
		s = *start
	}
	habits, err := e.store.ListHabits(ctx, userID, false)
	if err != nil {
		return WeeklyStats{}, fmt.Errorf("list habits: %w", err)
	}
	records, err := e.store.ListUserRecords(ctx, userID, s, s.AddDays(6))
	if err != nil {
		return WeeklyStats{}, fmt.Errorf("list records: %w", err)
	}
	return ComputeWeekly(habits, records, s), nil
}
