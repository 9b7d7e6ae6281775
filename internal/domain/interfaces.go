package domain

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Store is the persistent store for users, habits, records and unlocks.
// Get methods return a *NotFoundError when the row is missing.
type Store interface {
	// WithinTx runs fn against a transactional view of the store. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx Store) error) error

	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error

	CreateHabit(ctx context.Context, h *Habit) error
	GetHabit(ctx context.Context, id string) (*Habit, error)
	ListHabits(ctx context.Context, userID string, includeArchived bool) ([]Habit, error)
	UpdateHabit(ctx context.Context, h *Habit) error

	// InsertRecord fails with *AlreadyCompletedError when a completed
	// record already exists for the same habit and date.
	InsertRecord(ctx context.Context, r *HabitRecord) error
	HasCompletion(ctx context.Context, habitID string, date civil.Date) (bool, error)
	// LastCompletionDate returns nil when the habit was never completed.
	LastCompletionDate(ctx context.Context, habitID string) (*civil.Date, error)
	ListRecords(ctx context.Context, habitID string, limit int) ([]HabitRecord, error)
	ListUserRecords(ctx context.Context, userID string, from, to civil.Date) ([]HabitRecord, error)

	// InitUserUnlocks creates locked rows for every catalog entry that the
	// user does not have yet.
	InitUserUnlocks(ctx context.Context, userID string, achievementIDs, jobIDs []string) error
	ListUserAchievements(ctx context.Context, userID string) ([]UserAchievement, error)
	ListUserJobs(ctx context.Context, userID string) ([]UserJob, error)
	// UnlockAchievement and UnlockJob flip the row once. newly is false
	// when it was already unlocked.
	UnlockAchievement(ctx context.Context, userID, achievementID string, at time.Time) (newly bool, err error)
	UnlockJob(ctx context.Context, userID, jobID string, at time.Time) (newly bool, err error)
	EquipJob(ctx context.Context, userID, jobID string) error

	SeedCatalog(ctx context.Context, version string, achievements []AchievementDef, jobs []JobDef) error
	CatalogVersion(ctx context.Context) (string, error)
}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	TotalExp    int64  `json:"totalExp"`
}

// Leaderboard ranks users by total experience.
type Leaderboard interface {
	Update(ctx context.Context, userID, displayName string, totalExp int64) error
	Top(ctx context.Context, n int) ([]LeaderboardEntry, error)
}
