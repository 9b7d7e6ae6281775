// Package engagement implements the progression engine: experience and
// level math, streak evaluation, the completion recorder and the unlock
// rules for achievements and jobs.
package engagement

import (
	"fmt"
	"math"
	"sort"

	"github.com/levelhabit/levelhabit/internal/domain"
)

// RulesConfig is the tunable form of Rules, as it appears in config.toml.
type RulesConfig struct {
	BaseExp     int64              `toml:"base_exp"`
	LevelCurve  Curve              `toml:"level_curve"`
	StatCurve   Curve              `toml:"stat_curve"`
	Difficulty  map[string]float64 `toml:"difficulty"`
	StreakTiers []StreakTier       `toml:"streak_tiers"`
}

// StreakTier grants Multiplier once a streak reaches MinDays.
type StreakTier struct {
	MinDays    int     `toml:"min_days" json:"minDays"`
	Multiplier float64 `toml:"multiplier" json:"multiplier"`
}

// DefaultRulesConfig returns the canonical progression tables.
func DefaultRulesConfig() RulesConfig {
	return RulesConfig{
		BaseExp:    15,
		LevelCurve: Curve{Base: 15, Growth: 1.02, MaxLevel: 99},
		StatCurve:  Curve{Base: 10, Growth: 1.03, MaxLevel: 99},
		Difficulty: map[string]float64{
			string(domain.DifficultyEasy):     0.5,
			string(domain.DifficultyNormal):   1.0,
			string(domain.DifficultyHard):     1.5,
			string(domain.DifficultyVeryHard): 2.0,
		},
		StreakTiers: []StreakTier{
			{MinDays: 60, Multiplier: 2.5},
			{MinDays: 30, Multiplier: 2.0},
			{MinDays: 14, Multiplier: 1.5},
			{MinDays: 7, Multiplier: 1.25},
			{MinDays: 3, Multiplier: 1.1},
		},
	}
}

// Rules is the immutable set of progression tables. Build it once with
// NewRules and hand it to the services that need it.
type Rules struct {
	baseExp    int64
	level      Curve
	stat       Curve
	difficulty map[domain.Difficulty]float64
	tiers      []StreakTier // descending by MinDays
}

// DefaultRules returns Rules built from DefaultRulesConfig.
func DefaultRules() Rules {
	r, err := NewRules(DefaultRulesConfig())
	if err != nil {
		panic(fmt.Sprintf("default rules: %v", err))
	}
	return r
}

// NewRules validates cfg and copies it into an immutable Rules value.
func NewRules(cfg RulesConfig) (Rules, error) {
	if cfg.BaseExp <= 0 {
		return Rules{}, fmt.Errorf("base_exp must be positive, got %d", cfg.BaseExp)
	}
	if err := cfg.LevelCurve.validate(); err != nil {
		return Rules{}, fmt.Errorf("level_curve: %w", err)
	}
	if err := cfg.StatCurve.validate(); err != nil {
		return Rules{}, fmt.Errorf("stat_curve: %w", err)
	}

	diff := make(map[domain.Difficulty]float64, len(cfg.Difficulty))
	for name, m := range cfg.Difficulty {
		d := domain.Difficulty(name)
		if !d.Valid() {
			return Rules{}, fmt.Errorf("difficulty: unknown level %q", name)
		}
		if m < 0 {
			return Rules{}, fmt.Errorf("difficulty %s: negative multiplier %v", name, m)
		}
		diff[d] = m
	}

	tiers := make([]StreakTier, len(cfg.StreakTiers))
	copy(tiers, cfg.StreakTiers)
	for _, t := range tiers {
		if t.MinDays <= 0 || t.Multiplier < 1 {
			return Rules{}, fmt.Errorf("streak tier %+v: need min_days > 0 and multiplier >= 1", t)
		}
	}
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinDays > tiers[j].MinDays })

	return Rules{
		baseExp:    cfg.BaseExp,
		level:      cfg.LevelCurve,
		stat:       cfg.StatCurve,
		difficulty: diff,
		tiers:      tiers,
	}, nil
}

// BaseExp is the exp of a normal completion without streak bonus.
func (r Rules) BaseExp() int64 { return r.baseExp }

// LevelCurve returns the player level curve.
func (r Rules) LevelCurve() Curve { return r.level }

// StatCurve returns the per-stat level curve.
func (r Rules) StatCurve() Curve { return r.stat }

// DifficultyMultiplier returns the table value for d, or 1.0 for an
// unknown difficulty.
func (r Rules) DifficultyMultiplier(d domain.Difficulty) float64 {
	if m, ok := r.difficulty[d]; ok {
		return m
	}
	return 1.0
}

// StreakMultiplier returns the multiplier of the highest tier the streak
// reaches, or 1.0 below every tier.
func (r Rules) StreakMultiplier(streak int) float64 {
	for _, t := range r.tiers {
		if streak >= t.MinDays {
			return t.Multiplier
		}
	}
	return 1.0
}

// ExpGain is the exp awarded for one completion, rounded down.
func (r Rules) ExpGain(d domain.Difficulty, streak int) int64 {
	gain := math.Floor(float64(r.baseExp) * r.DifficultyMultiplier(d) * r.StreakMultiplier(streak))
	if gain < 0 {
		return 0
	}
	return int64(gain)
}

// LevelFromExp derives the player level from total exp.
func (r Rules) LevelFromExp(totalExp int64) LevelProgress {
	return r.level.LevelFromExp(totalExp)
}

// StatLevelFromExp derives a stat level from that stat's exp.
func (r Rules) StatLevelFromExp(statExp int64) LevelProgress {
	return r.stat.LevelFromExp(statExp)
}

// EstimateDaysToLevel projects how many days of dailyHabits completions
// at the given difficulty and average streak it takes to reach target.
func (r Rules) EstimateDaysToLevel(totalExp int64, target, dailyHabits int, d domain.Difficulty, avgStreak int) int {
	remaining := r.level.TotalExpForLevel(target) - totalExp
	if remaining <= 0 {
		return 0
	}
	if dailyHabits <= 0 {
		dailyHabits = 1
	}
	daily := int64(dailyHabits) * r.ExpGain(d, avgStreak)
	if daily <= 0 {
		return -1
	}
	return int((remaining + daily - 1) / daily)
}
