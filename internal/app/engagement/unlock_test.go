package engagement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/levelhabit/levelhabit/internal/app/engagement"
	"github.com/levelhabit/levelhabit/internal/domain"
)

func hasAchievement(res *engagement.UnlockResult, id string) bool {
	for _, a := range res.Achievements {
		if a.ID == id {
			return true
		}
	}
	return false
}

func hasJob(res *engagement.UnlockResult, id string) bool {
	for _, j := range res.Jobs {
		if j.ID == id {
			return true
		}
	}
	return false
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Unlock Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestUnlock_FirstHabitAndCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1")
	h := f.habit(t, "u1", engagement.NewHabitInput{})

	u, _ := f.engine.GetUser(ctx, "u1")
	if u.TotalExp != 20 || u.Level != 2 {
		t.Errorf("after first habit: exp=%d level=%d, want 20 and 2", u.TotalExp, u.Level)
	}

	res := f.complete(t, "u1", h.ID)
	if res.Unlocks == nil || !hasAchievement(res.Unlocks, "first_completion") {
		t.Fatalf("first_completion not unlocked: %+v", res.Unlocks)
	}
	// 20 + 15, then first_completion +30, level_3 +20, level_5 +30.
	if res.User.TotalExp != 115 || res.User.Level != 8 {
		t.Errorf("after first completion: exp=%d level=%d, want 115 and 8", res.User.TotalExp, res.User.Level)
	}
	if res.Unlocks.ExpAwarded != 80 {
		t.Errorf("achievement exp = %d, want 80", res.Unlocks.ExpAwarded)
	}
	if !res.LevelUp || res.NewLevel != 8 {
		t.Errorf("level up = %v to %d", res.LevelUp, res.NewLevel)
	}

	stored, _ := f.engine.GetUser(ctx, "u1")
	if stored.TotalExp != res.User.TotalExp || stored.Level != res.User.Level {
		t.Errorf("stored user %d/%d differs from result %d/%d", stored.TotalExp, stored.Level, res.User.TotalExp, res.User.Level)
	}
}

func TestCheckUnlocks_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1")
	h := f.habit(t, "u1", engagement.NewHabitInput{})
	f.complete(t, "u1", h.ID)

	before, _ := f.engine.GetUser(ctx, "u1")
	for i := 0; i < 3; i++ {
		res, err := f.engine.CheckUnlocks(ctx, "u1")
		if err != nil {
			t.Fatalf("CheckUnlocks() error: %v", err)
		}
		if !res.Empty() || res.ExpAwarded != 0 {
			t.Errorf("repeat scan %d unlocked %+v", i, res)
		}
	}
	after, _ := f.engine.GetUser(ctx, "u1")
	if after.TotalExp != before.TotalExp {
		t.Errorf("rewards credited twice: %d → %d", before.TotalExp, after.TotalExp)
	}
}

func TestCheckUnlocks_CascadesJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "u1")

	u.TotalExp = f.rules.LevelCurve().TotalExpForLevel(10)
	u.Level = 10
	u.Stats.STR = domain.StatProgress{Level: 5, Exp: f.rules.StatCurve().TotalExpForLevel(5)}
	if err := f.db.UpdateUser(ctx, u); err != nil {
		t.Fatalf("UpdateUser() error: %v", err)
	}

	res, err := f.engine.CheckUnlocks(ctx, "u1")
	if err != nil {
		t.Fatalf("CheckUnlocks() error: %v", err)
	}
	if !hasJob(res, "warrior_apprentice") || !hasJob(res, "warrior") {
		t.Errorf("expected apprentice and warrior in one pass, got %d jobs", len(res.Jobs))
	}
	for _, id := range []string{"level_3", "level_5", "level_10", "stat_str_5"} {
		if !hasAchievement(res, id) {
			t.Errorf("expected %s unlocked", id)
		}
	}
	if hasJob(res, domain.DefaultJobID) {
		t.Error("beginner is unlocked at signup, not by the scan")
	}

	after, _ := f.engine.GetUser(ctx, "u1")
	assertLevelInvariant(t, f.rules, after)
}

func TestAchievements_Progress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1")
	h := f.habit(t, "u1", engagement.NewHabitInput{})
	f.complete(t, "u1", h.ID)
	f.clock.advance(24 * time.Hour)
	f.complete(t, "u1", h.ID)

	list, err := f.engine.Unlocks().Achievements(ctx, "u1")
	if err != nil {
		t.Fatalf("Achievements() error: %v", err)
	}
	byID := make(map[string]engagement.AchievementStatus)
	for _, a := range list {
		byID[a.ID] = a
		if a.Current > a.Target {
			t.Errorf("%s current %d exceeds target %d", a.ID, a.Current, a.Target)
		}
	}

	if s := byID["streak_3"]; s.IsUnlocked || s.Current != 2 || s.Target != 3 {
		t.Errorf("streak_3 = %+v", s)
	}
	if s := byID["first_completion"]; !s.IsUnlocked || s.UnlockedAt == "" {
		t.Errorf("first_completion = %+v", s)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Job Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestEquipJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "u1")

	if _, err := f.engine.Unlocks().EquipJob(ctx, "u1", "warrior"); !errors.Is(err, domain.ErrJobLocked) {
		t.Errorf("locked job: expected ErrJobLocked, got %v", err)
	}
	if _, err := f.engine.Unlocks().EquipJob(ctx, "u1", "astronaut"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown job: expected ErrNotFound, got %v", err)
	}

	u.Stats.STR = domain.StatProgress{Level: 2, Exp: f.rules.StatCurve().TotalExpForLevel(2)}
	if err := f.db.UpdateUser(ctx, u); err != nil {
		t.Fatalf("UpdateUser() error: %v", err)
	}
	if _, err := f.engine.CheckUnlocks(ctx, "u1"); err != nil {
		t.Fatalf("CheckUnlocks() error: %v", err)
	}

	got, err := f.engine.Unlocks().EquipJob(ctx, "u1", "warrior_apprentice")
	if err != nil {
		t.Fatalf("EquipJob() error: %v", err)
	}
	if got.CurrentJobID != "warrior_apprentice" {
		t.Errorf("current job = %s", got.CurrentJobID)
	}

	jobs, _ := f.engine.Unlocks().Jobs(ctx, "u1")
	equipped := 0
	for _, j := range jobs {
		if j.IsEquipped {
			equipped++
		}
	}
	if equipped != 1 {
		t.Errorf("expected exactly one equipped job, got %d", equipped)
	}
}

func TestJobs_EvaluationProgress(t *testing.T) {
	f := newFixture(t)
	f.user(t, "u1")

	jobs, err := f.engine.Unlocks().Jobs(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Jobs() error: %v", err)
	}
	for _, j := range jobs {
		if j.ID != "warrior" {
			continue
		}
		if j.IsUnlocked || j.Evaluation.Met || j.Evaluation.Total != 3 {
			t.Errorf("warrior evaluation = %+v", j.Evaluation)
		}
		return
	}
	t.Fatal("warrior missing from job list")
}

// ═══════════════════════════════════════════════════════════════════════════
// Special Achievement Tests
// ═══════════════════════════════════════════════════════════════════════════

func dailyHabit(id string, created time.Time) domain.Habit {
	return domain.Habit{
		ID: id, Name: id, FrequencyType: domain.FrequencyDaily,
		IsActive: true, CreatedAt: created,
	}
}

func record(habitID string, d civil.Date, at time.Time) domain.HabitRecord {
	return domain.HabitRecord{HabitID: habitID, CompletedDate: d, Completed: true, CompletedAt: at}
}

func TestDetectSpecials_TimeOfDay(t *testing.T) {
	tokyo := engagement.LoadLocation("Asia/Tokyo")
	today := date(2025, 7, 1)
	tests := []struct {
		name string
		hour int
		want string
	}{
		{"night owl", 2, engagement.SpecialNightOwl},
		{"early bird", 5, engagement.SpecialEarlyBird},
		{"neither", 9, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := time.Date(2025, 7, 1, tt.hour, 30, 0, 0, tokyo)
			got := engagement.DetectSpecials([]domain.HabitRecord{record("h", today, at)}, nil, "Asia/Tokyo", today)
			if tt.want == "" {
				if got[engagement.SpecialNightOwl] || got[engagement.SpecialEarlyBird] {
					t.Errorf("unexpected specials %v", got)
				}
				return
			}
			if !got[tt.want] {
				t.Errorf("expected %s, got %v", tt.want, got)
			}
		})
	}
}

func TestDetectSpecials_PerfectWeek(t *testing.T) {
	today := date(2025, 7, 7)
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	habits := []domain.Habit{dailyHabit("a", created)}

	var recs []domain.HabitRecord
	for d := today.AddDays(-6); !d.After(today); d = d.AddDays(1) {
		recs = append(recs, record("a", d, created))
	}
	if got := engagement.DetectSpecials(recs, habits, "UTC", today); !got[engagement.SpecialPerfectWeek] {
		t.Error("seven completed days should be a perfect week")
	}

	missing := recs[:6]
	if got := engagement.DetectSpecials(missing, habits, "UTC", today); got[engagement.SpecialPerfectWeek] {
		t.Error("a missed day must break the perfect week")
	}

	fresh := []domain.Habit{dailyHabit("a", time.Date(2025, 7, 5, 0, 0, 0, 0, time.UTC))}
	if got := engagement.DetectSpecials(recs, fresh, "UTC", today); got[engagement.SpecialPerfectWeek] {
		t.Error("a habit younger than the window must not qualify")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Statistics Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestComputeDaily(t *testing.T) {
	d := date(2025, 7, 1) // Tuesday
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	habits := []domain.Habit{
		dailyHabit("a", created),
		dailyHabit("b", created),
		dailyHabit("c", created),
		{ID: "mon", Name: "mon", FrequencyType: domain.FrequencySpecificDays, SpecificDays: []time.Weekday{time.Monday}, IsActive: true},
	}
	rec := record("a", d, created)
	rec.ExpEarned = 15

	ds := engagement.ComputeDaily(habits, []domain.HabitRecord{rec}, d)
	if ds.TotalHabits != 3 {
		t.Errorf("due habits = %d, want 3 (monday-only habit excluded)", ds.TotalHabits)
	}
	if ds.CompletedHabits != 1 || ds.TotalExpEarned != 15 {
		t.Errorf("completed=%d exp=%d", ds.CompletedHabits, ds.TotalExpEarned)
	}
	if ds.CompletionRate != 0.33 {
		t.Errorf("rate = %v, want 0.33", ds.CompletionRate)
	}

	empty := engagement.ComputeDaily(nil, nil, d)
	if empty.CompletionRate != 0 || empty.HabitCompletions == nil {
		t.Errorf("empty day = %+v", empty)
	}
}

func TestEngine_WeeklyStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1")
	h := f.habit(t, "u1", engagement.NewHabitInput{})
	f.complete(t, "u1", h.ID)
	f.clock.advance(24 * time.Hour)
	f.complete(t, "u1", h.ID)

	ws, err := f.engine.WeeklyStats(ctx, "u1", nil)
	if err != nil {
		t.Fatalf("WeeklyStats() error: %v", err)
	}
	if ws.WeekEnd != date(2025, 7, 2) || len(ws.Days) != 7 {
		t.Errorf("week = %s..%s with %d days", ws.WeekStart, ws.WeekEnd, len(ws.Days))
	}
	if ws.CompletedHabits != 2 || ws.TotalExpEarned != 30 {
		t.Errorf("completed=%d exp=%d", ws.CompletedHabits, ws.TotalExpEarned)
	}

	ds, err := f.engine.DailyStats(ctx, "u1", nil)
	if err != nil {
		t.Fatalf("DailyStats() error: %v", err)
	}
	if ds.CompletionRate != 1 {
		t.Errorf("today's rate = %v, want 1", ds.CompletionRate)
	}
}
