package engagement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/levelhabit/levelhabit/internal/app/engagement"
	"github.com/levelhabit/levelhabit/internal/domain"
	"github.com/levelhabit/levelhabit/internal/infra/catalog"
	"github.com/levelhabit/levelhabit/internal/infra/sqlite"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// noon in Tokyo on 2025-07-01.
func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 7, 1, 3, 0, 0, 0, time.UTC)}
}

type fixture struct {
	engine *engagement.Engine
	db     *sqlite.DB
	store  domain.Store
	clock  *fakeClock
	rules  engagement.Rules
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testDB(t)
	return newFixtureWithStore(t, db, db)
}

func newFixtureWithStore(t *testing.T, db *sqlite.DB, store domain.Store) *fixture {
	t.Helper()
	clock := newClock()
	rules := engagement.DefaultRules()
	return &fixture{
		engine: engagement.NewEngine(store, catalog.MustDefault(), rules, clock, nil),
		db:     db,
		store:  store,
		clock:  clock,
		rules:  rules,
	}
}

func (f *fixture) user(t *testing.T, id string) *domain.User {
	t.Helper()
	u, err := f.engine.CreateUser(context.Background(), id, engagement.NewUserInput{DisplayName: "Player " + id})
	if err != nil {
		t.Fatalf("CreateUser() error: %v", err)
	}
	return u
}

func (f *fixture) habit(t *testing.T, userID string, in engagement.NewHabitInput) *domain.Habit {
	t.Helper()
	if in.Name == "" {
		in.Name = "Read 10 pages"
	}
	h, err := f.engine.CreateHabit(context.Background(), userID, in)
	if err != nil {
		t.Fatalf("CreateHabit() error: %v", err)
	}
	return h
}

func (f *fixture) complete(t *testing.T, userID, habitID string) *engagement.CompletionResult {
	t.Helper()
	res, err := f.engine.CompleteHabit(context.Background(), engagement.CompletionRequest{UserID: userID, HabitID: habitID})
	if err != nil {
		t.Fatalf("CompleteHabit() error: %v", err)
	}
	return res
}

func assertLevelInvariant(t *testing.T, r engagement.Rules, u *domain.User) {
	t.Helper()
	if want := r.LevelFromExp(u.TotalExp).Level; u.Level != want {
		t.Errorf("level %d does not match total exp %d (want %d)", u.Level, u.TotalExp, want)
	}
	for _, s := range domain.AllStats {
		sp := u.Stats.Get(s)
		if want := r.StatLevelFromExp(sp.Exp).Level; sp.Level != want {
			t.Errorf("%s level %d does not match exp %d (want %d)", s, sp.Level, sp.Exp, want)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// User & Habit Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestCreateUser_StartsAsBeginner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1")

	jobs, err := f.engine.Unlocks().Jobs(ctx, "u1")
	if err != nil {
		t.Fatalf("Jobs() error: %v", err)
	}
	for _, j := range jobs {
		if j.ID == domain.DefaultJobID {
			if !j.IsUnlocked || !j.IsEquipped {
				t.Errorf("beginner unlocked=%v equipped=%v", j.IsUnlocked, j.IsEquipped)
			}
			continue
		}
		if j.IsUnlocked {
			t.Errorf("job %s should start locked", j.ID)
		}
	}

	if _, err := f.engine.CreateUser(ctx, "u1", engagement.NewUserInput{DisplayName: "again"}); !errors.Is(err, domain.ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
}

func TestCreateUser_RejectsBadTimezone(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.CreateUser(context.Background(), "u1", engagement.NewUserInput{DisplayName: "A", Timezone: "Mars/Olympus"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateHabit_DefaultsFromCategory(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1")

	h := f.habit(t, "u1", engagement.NewHabitInput{Category: "Meditation"})
	if h.StatType != domain.StatMND {
		t.Errorf("stat = %s, want MND", h.StatType)
	}
	if h.Difficulty != domain.DifficultyNormal || h.FrequencyType != domain.FrequencyDaily {
		t.Errorf("defaults = %s/%s", h.Difficulty, h.FrequencyType)
	}

	_, err := f.engine.CreateHabit(context.Background(), "u1", engagement.NewHabitInput{
		Name: "Gym", FrequencyType: domain.FrequencySpecificDays,
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("specific_days without days should be invalid, got %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Completion Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestComplete_FirstCompletion(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1")
	h := f.habit(t, "u1", engagement.NewHabitInput{Category: "reading"})

	res := f.complete(t, "u1", h.ID)
	if res.ExpGained != 15 || res.NewStreak != 1 {
		t.Errorf("exp=%d streak=%d, want 15 and 1", res.ExpGained, res.NewStreak)
	}
	if res.Record.CompletedDate != (civil.Date{Year: 2025, Month: time.July, Day: 1}) {
		t.Errorf("record date = %s, want today in Tokyo", res.Record.CompletedDate)
	}
	if res.StatType != domain.StatINT || !res.StatLevelUp || res.NewStatLevel != 2 {
		t.Errorf("stat result = %s up=%v lvl=%d", res.StatType, res.StatLevelUp, res.NewStatLevel)
	}
	if res.Habit.TotalCompletions != 1 || res.Habit.BestStreak != 1 || res.Habit.LastCompletedAt == nil {
		t.Errorf("habit counters = %+v", res.Habit)
	}
	if res.User.Stats.INT.Exp != 15 {
		t.Errorf("INT exp = %d, want 15", res.User.Stats.INT.Exp)
	}
	assertLevelInvariant(t, f.rules, &res.User)
}

func TestComplete_ConsecutiveDaysBuildStreak(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1")
	h := f.habit(t, "u1", engagement.NewHabitInput{Difficulty: domain.DifficultyHard})

	wantExp := []int64{22, 22, 24} // floor(22.5), floor(22.5), floor(24.75)
	for day := 0; day < 3; day++ {
		res := f.complete(t, "u1", h.ID)
		if res.NewStreak != day+1 {
			t.Errorf("day %d: streak %d", day, res.NewStreak)
		}
		if res.ExpGained != wantExp[day] {
			t.Errorf("day %d: exp %d, want %d", day, res.ExpGained, wantExp[day])
		}
		f.clock.advance(24 * time.Hour)
	}

	u, _ := f.engine.GetUser(context.Background(), "u1")
	if u.CurrentStreak != 3 || u.MaxStreak != 3 {
		t.Errorf("user streak = %d/%d, want 3/3", u.CurrentStreak, u.MaxStreak)
	}
	assertLevelInvariant(t, f.rules, u)
}

func TestComplete_GapResetsStreak(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1")
	h := f.habit(t, "u1", engagement.NewHabitInput{})

	f.complete(t, "u1", h.ID)
	f.clock.advance(24 * time.Hour)
	f.complete(t, "u1", h.ID)
	f.clock.advance(48 * time.Hour)

	res := f.complete(t, "u1", h.ID)
	if res.NewStreak != 1 || res.StreakKind != engagement.StreakReset {
		t.Errorf("after gap: streak %d kind %s", res.NewStreak, res.StreakKind)
	}
	if res.Habit.BestStreak != 2 {
		t.Errorf("best streak = %d, want 2", res.Habit.BestStreak)
	}
	if res.User.MaxStreak != 2 {
		t.Errorf("user max streak = %d, want 2", res.User.MaxStreak)
	}
}

func TestComplete_DuplicateIsRejectedWithoutChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1")
	h := f.habit(t, "u1", engagement.NewHabitInput{})

	f.complete(t, "u1", h.ID)
	before, _ := f.engine.GetUser(ctx, "u1")

	f.clock.advance(5 * time.Hour) // still the same Tokyo date
	_, err := f.engine.CompleteHabit(ctx, engagement.CompletionRequest{UserID: "u1", HabitID: h.ID})
	var ace *domain.AlreadyCompletedError
	if !errors.As(err, &ace) {
		t.Fatalf("expected AlreadyCompletedError, got %v", err)
	}

	after, _ := f.engine.GetUser(ctx, "u1")
	if after.TotalExp != before.TotalExp {
		t.Errorf("duplicate changed exp: %d → %d", before.TotalExp, after.TotalExp)
	}
	recs, _ := f.engine.ListRecords(ctx, "u1", h.ID, 0)
	if len(recs) != 1 {
		t.Errorf("expected 1 record, got %d", len(recs))
	}
}

func TestComplete_Backdated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1")
	h := f.habit(t, "u1", engagement.NewHabitInput{})

	yesterday := civil.Date{Year: 2025, Month: time.June, Day: 30}
	res, err := f.engine.CompleteHabit(ctx, engagement.CompletionRequest{UserID: "u1", HabitID: h.ID, Date: &yesterday})
	if err != nil {
		t.Fatalf("backdated completion: %v", err)
	}
	if res.Record.CompletedDate != yesterday {
		t.Errorf("record date = %s", res.Record.CompletedDate)
	}

	res = f.complete(t, "u1", h.ID)
	if res.NewStreak != 2 {
		t.Errorf("today after yesterday: streak %d, want 2", res.NewStreak)
	}

	tomorrow := civil.Date{Year: 2025, Month: time.July, Day: 2}
	_, err = f.engine.CompleteHabit(ctx, engagement.CompletionRequest{UserID: "u1", HabitID: h.ID, Date: &tomorrow})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("future date: expected ErrInvalidInput, got %v", err)
	}
}

func TestComplete_OwnershipAndArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1")
	f.user(t, "u2")
	h := f.habit(t, "u1", engagement.NewHabitInput{})

	_, err := f.engine.CompleteHabit(ctx, engagement.CompletionRequest{UserID: "u2", HabitID: h.ID})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign habit: expected ErrNotFound, got %v", err)
	}

	if err := f.engine.ArchiveHabit(ctx, "u1", h.ID); err != nil {
		t.Fatalf("ArchiveHabit() error: %v", err)
	}
	_, err = f.engine.CompleteHabit(ctx, engagement.CompletionRequest{UserID: "u1", HabitID: h.ID})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("archived habit: expected ErrInvalidInput, got %v", err)
	}

	_, err = f.engine.CompleteHabit(ctx, engagement.CompletionRequest{UserID: "u1", HabitID: "missing"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing habit: expected ErrNotFound, got %v", err)
	}
}

func TestComplete_ExpMonotonic(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1")
	habits := []*domain.Habit{
		f.habit(t, "u1", engagement.NewHabitInput{Name: "a", Category: "workout", Difficulty: domain.DifficultyVeryHard}),
		f.habit(t, "u1", engagement.NewHabitInput{Name: "b", Category: "art", Difficulty: domain.DifficultyEasy}),
	}

	var prev int64
	for day := 0; day < 10; day++ {
		for _, h := range habits {
			res := f.complete(t, "u1", h.ID)
			if res.User.TotalExp < prev {
				t.Fatalf("total exp decreased: %d < %d", res.User.TotalExp, prev)
			}
			prev = res.User.TotalExp
			assertLevelInvariant(t, f.rules, &res.User)
		}
		f.clock.advance(24 * time.Hour)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Failure Tests
// ═══════════════════════════════════════════════════════════════════════════

// failingStore fails one write step inside transactions.
type failingStore struct {
	domain.Store
	failOn string
}

func (f *failingStore) WithinTx(ctx context.Context, fn func(tx domain.Store) error) error {
	return f.Store.WithinTx(ctx, func(tx domain.Store) error {
		return fn(&failingStore{Store: tx, failOn: f.failOn})
	})
}

func (f *failingStore) UpdateUser(ctx context.Context, u *domain.User) error {
	if f.failOn == "user" {
		return errors.New("disk full")
	}
	return f.Store.UpdateUser(ctx, u)
}

func (f *failingStore) UpdateHabit(ctx context.Context, h *domain.Habit) error {
	if f.failOn == "habit" {
		return errors.New("disk full")
	}
	return f.Store.UpdateHabit(ctx, h)
}

func TestComplete_FailureRollsBack(t *testing.T) {
	for _, step := range []string{"habit", "user"} {
		t.Run(step, func(t *testing.T) {
			db := testDB(t)
			ok := newFixtureWithStore(t, db, db)
			ok.user(t, "u1")
			h := ok.habit(t, "u1", engagement.NewHabitInput{})
			before, _ := ok.engine.GetUser(context.Background(), "u1")

			broken := newFixtureWithStore(t, db, &failingStore{Store: db, failOn: step})
			_, err := broken.engine.CompleteHabit(context.Background(), engagement.CompletionRequest{UserID: "u1", HabitID: h.ID})

			var pu *domain.PartialUpdateError
			if !errors.As(err, &pu) {
				t.Fatalf("expected PartialUpdateError, got %v", err)
			}
			if !pu.RolledBack {
				t.Error("expected rolled back")
			}

			recs, _ := db.ListRecords(context.Background(), h.ID, 0)
			if len(recs) != 0 {
				t.Errorf("record survived rollback: %d rows", len(recs))
			}
			after, _ := db.GetUser(context.Background(), "u1")
			if after.TotalExp != before.TotalExp {
				t.Errorf("exp changed after rollback: %d → %d", before.TotalExp, after.TotalExp)
			}

			// The same request succeeds once the store recovers.
			if _, err := ok.engine.CompleteHabit(context.Background(), engagement.CompletionRequest{UserID: "u1", HabitID: h.ID}); err != nil {
				t.Errorf("retry failed: %v", err)
			}
		})
	}
}
