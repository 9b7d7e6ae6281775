package engagement_test

import (
	"testing"

	"github.com/levelhabit/levelhabit/internal/app/engagement"
	"github.com/levelhabit/levelhabit/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Multiplier Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestDifficultyMultiplier(t *testing.T) {
	r := engagement.DefaultRules()
	tests := []struct {
		d    domain.Difficulty
		want float64
	}{
		{domain.DifficultyEasy, 0.5},
		{domain.DifficultyNormal, 1.0},
		{domain.DifficultyHard, 1.5},
		{domain.DifficultyVeryHard, 2.0},
		{domain.Difficulty("legendary"), 1.0},
	}
	for _, tt := range tests {
		t.Run(string(tt.d), func(t *testing.T) {
			if got := r.DifficultyMultiplier(tt.d); got != tt.want {
				t.Errorf("DifficultyMultiplier(%s) = %v, want %v", tt.d, got, tt.want)
			}
		})
	}
}

func TestStreakMultiplier_Thresholds(t *testing.T) {
	r := engagement.DefaultRules()
	tests := []struct {
		streak int
		want   float64
	}{
		{0, 1.0}, {2, 1.0},
		{3, 1.1}, {6, 1.1},
		{7, 1.25}, {13, 1.25},
		{14, 1.5}, {29, 1.5},
		{30, 2.0}, {59, 2.0},
		{60, 2.5}, {365, 2.5},
	}
	for _, tt := range tests {
		if got := r.StreakMultiplier(tt.streak); got != tt.want {
			t.Errorf("StreakMultiplier(%d) = %v, want %v", tt.streak, got, tt.want)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Exp Gain Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestExpGain_KnownValues(t *testing.T) {
	r := engagement.DefaultRules()
	tests := []struct {
		d      domain.Difficulty
		streak int
		want   int64
	}{
		{domain.DifficultyHard, 7, 28},      // floor(15 * 1.5 * 1.25) = floor(28.125)
		{domain.DifficultyEasy, 0, 7},       // floor(15 * 0.5 * 1.0) = floor(7.5)
		{domain.DifficultyVeryHard, 30, 60}, // 15 * 2.0 * 2.0
		{domain.DifficultyNormal, 1, 15},
		{domain.DifficultyNormal, 3, 16}, // floor(16.5)
		{domain.DifficultyHard, 60, 56},  // floor(56.25)
	}
	for _, tt := range tests {
		if got := r.ExpGain(tt.d, tt.streak); got != tt.want {
			t.Errorf("ExpGain(%s, %d) = %d, want %d", tt.d, tt.streak, got, tt.want)
		}
	}
}

func TestExpGain_NonNegativeAndMonotonicInStreak(t *testing.T) {
	r := engagement.DefaultRules()
	for _, d := range []domain.Difficulty{domain.DifficultyEasy, domain.DifficultyNormal, domain.DifficultyHard, domain.DifficultyVeryHard} {
		prev := int64(-1)
		for s := 0; s <= 100; s++ {
			g := r.ExpGain(d, s)
			if g < 0 {
				t.Fatalf("ExpGain(%s, %d) negative: %d", d, s, g)
			}
			if g < prev {
				t.Fatalf("ExpGain(%s) decreased at streak %d: %d < %d", d, s, g, prev)
			}
			prev = g
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Level Curve Tests
// ═══════════════════════════════════════════════════════════════════════════

// The player curve is 15 * 1.02^(L-1) and the stat curve 10 * 1.03^(L-1),
// both capped at 99. Changing either must fail here first.
func TestCanonicalCurves(t *testing.T) {
	r := engagement.DefaultRules()

	level := r.LevelCurve()
	if level.Base != 15 || level.Growth != 1.02 || level.MaxLevel != 99 {
		t.Errorf("level curve = %+v", level)
	}
	stat := r.StatCurve()
	if stat.Base != 10 || stat.Growth != 1.03 || stat.MaxLevel != 99 {
		t.Errorf("stat curve = %+v", stat)
	}

	steps := []struct {
		curve engagement.Curve
		level int
		want  int64
	}{
		{level, 1, 15},
		{level, 2, 15}, // floor(15.3)
		{level, 10, 17},
		{level, 50, 39},
		{stat, 1, 10},
		{stat, 5, 11},
		{stat, 25, 20},
	}
	for _, s := range steps {
		if got := s.curve.ExpForNextLevel(s.level); got != s.want {
			t.Errorf("%+v ExpForNextLevel(%d) = %d, want %d", s.curve, s.level, got, s.want)
		}
	}
}

func TestLevelFromExp_Basics(t *testing.T) {
	r := engagement.DefaultRules()

	lp := r.LevelFromExp(0)
	if lp.Level != 1 || lp.ExpIntoLevel != 0 || lp.ExpToNextLevel != 15 {
		t.Errorf("LevelFromExp(0) = %+v", lp)
	}

	lp = r.LevelFromExp(14)
	if lp.Level != 1 || lp.ExpIntoLevel != 14 {
		t.Errorf("LevelFromExp(14) = %+v", lp)
	}

	// Reaching the threshold exactly advances the level.
	lp = r.LevelFromExp(15)
	if lp.Level != 2 || lp.ExpIntoLevel != 0 {
		t.Errorf("LevelFromExp(15) = %+v", lp)
	}
}

func TestLevelFromExp_RoundTrip(t *testing.T) {
	c := engagement.DefaultRules().LevelCurve()
	for level := 1; level <= 99; level++ {
		threshold := c.TotalExpForLevel(level)
		if got := c.LevelFromExp(threshold).Level; got != level {
			t.Errorf("LevelFromExp(TotalExpForLevel(%d)) = %d", level, got)
		}
		if level > 1 {
			if got := c.LevelFromExp(threshold - 1).Level; got != level-1 {
				t.Errorf("LevelFromExp(TotalExpForLevel(%d)-1) = %d, want %d", level, got, level-1)
			}
		}
	}
}

func TestLevelFromExp_Monotonic(t *testing.T) {
	r := engagement.DefaultRules()
	prev := 0
	for exp := int64(0); exp <= 5000; exp += 7 {
		lvl := r.LevelFromExp(exp).Level
		if lvl < prev {
			t.Fatalf("level dropped at exp %d: %d < %d", exp, lvl, prev)
		}
		prev = lvl
	}
}

func TestLevelFromExp_CapsAt99(t *testing.T) {
	r := engagement.DefaultRules()
	lp := r.LevelFromExp(1 << 40)
	if lp.Level != 99 {
		t.Errorf("expected cap 99, got %d", lp.Level)
	}
	if lp.ExpToNextLevel != 0 || lp.Progress != 1 {
		t.Errorf("max level should report no next level, got %+v", lp)
	}

	slp := r.StatLevelFromExp(1 << 40)
	if slp.Level != 99 {
		t.Errorf("expected stat cap 99, got %d", slp.Level)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Rules Construction Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestNewRules_SortsTiers(t *testing.T) {
	cfg := engagement.DefaultRulesConfig()
	cfg.StreakTiers = []engagement.StreakTier{
		{MinDays: 3, Multiplier: 1.1},
		{MinDays: 60, Multiplier: 2.5},
		{MinDays: 7, Multiplier: 1.25},
	}
	r, err := engagement.NewRules(cfg)
	if err != nil {
		t.Fatalf("NewRules() error: %v", err)
	}
	if got := r.StreakMultiplier(70); got != 2.5 {
		t.Errorf("StreakMultiplier(70) = %v, want 2.5", got)
	}
	if got := r.StreakMultiplier(8); got != 1.25 {
		t.Errorf("StreakMultiplier(8) = %v, want 1.25", got)
	}
}

func TestNewRules_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*engagement.RulesConfig)
	}{
		{"zero base exp", func(c *engagement.RulesConfig) { c.BaseExp = 0 }},
		{"shrinking curve", func(c *engagement.RulesConfig) { c.LevelCurve.Growth = 0.9 }},
		{"no cap", func(c *engagement.RulesConfig) { c.StatCurve.MaxLevel = 1 }},
		{"unknown difficulty", func(c *engagement.RulesConfig) { c.Difficulty["nightmare"] = 3 }},
		{"penalty tier", func(c *engagement.RulesConfig) {
			c.StreakTiers = append(c.StreakTiers, engagement.StreakTier{MinDays: 100, Multiplier: 0.5})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := engagement.DefaultRulesConfig()
			tt.mutate(&cfg)
			if _, err := engagement.NewRules(cfg); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestEstimateDaysToLevel(t *testing.T) {
	r := engagement.DefaultRules()
	if d := r.EstimateDaysToLevel(r.LevelCurve().TotalExpForLevel(10), 10, 3, domain.DifficultyNormal, 7); d != 0 {
		t.Errorf("already at target should be 0 days, got %d", d)
	}
	// Level 2 needs 15 exp; three normal habits at streak 7 earn 3 * 18 = 54 a day.
	if d := r.EstimateDaysToLevel(0, 2, 3, domain.DifficultyNormal, 7); d != 1 {
		t.Errorf("expected 1 day, got %d", d)
	}
}
