package domain

import "time"

// ─── Requirements ───────────────────────────────────────────────────────────

// Requirements is the typed unlock rule shared by jobs and by level/stat
// achievements. Zero-valued parts impose nothing.
type Requirements struct {
	Level        int              `json:"level,omitempty"`
	Stats        map[StatType]int `json:"stats,omitempty"`
	Jobs         []string         `json:"jobs,omitempty"`
	Achievements []string         `json:"achievements,omitempty"`
}

// IsEmpty reports whether no condition is set.
func (r Requirements) IsEmpty() bool {
	return r.Level <= 0 && len(r.Stats) == 0 && len(r.Jobs) == 0 && len(r.Achievements) == 0
}

// ─── Achievements ───────────────────────────────────────────────────────────

// AchievementType selects how an achievement's target is checked.
type AchievementType string

const (
	AchievementFirst   AchievementType = "first"
	AchievementStreak  AchievementType = "streak"
	AchievementTotal   AchievementType = "total"
	AchievementLevel   AchievementType = "level"
	AchievementStat    AchievementType = "stat"
	AchievementSpecial AchievementType = "special"
)

// Valid reports whether t is a known achievement type.
func (t AchievementType) Valid() bool {
	switch t {
	case AchievementFirst, AchievementStreak, AchievementTotal,
		AchievementLevel, AchievementStat, AchievementSpecial:
		return true
	}
	return false
}

// Rarity is display-only.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// AchievementDef is a catalog entry.
type AchievementDef struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Icon        string          `json:"icon,omitempty"`
	Type        AchievementType `json:"type"`
	Rarity      Rarity          `json:"rarity"`
	ExpReward   int64           `json:"expReward"`
	TargetValue int             `json:"targetValue"`
	TargetStat  StatType        `json:"targetStatType,omitempty"`
	Hidden      bool            `json:"isHidden,omitempty"`
}

// Requirements maps level and stat achievements onto the generic rule.
// Other types are checked by their own predicates and return false.
func (a AchievementDef) Requirements() (Requirements, bool) {
	switch a.Type {
	case AchievementLevel:
		return Requirements{Level: a.TargetValue}, true
	case AchievementStat:
		return Requirements{Stats: map[StatType]int{a.TargetStat: a.TargetValue}}, true
	}
	return Requirements{}, false
}

// UserAchievement is a user's unlock status for one achievement.
type UserAchievement struct {
	UserID        string     `json:"userId"`
	AchievementID string     `json:"achievementId"`
	IsUnlocked    bool       `json:"isUnlocked"`
	UnlockedAt    *time.Time `json:"unlockedAt,omitempty"`
}

// ─── Jobs ───────────────────────────────────────────────────────────────────

// JobTier orders jobs from novice to grandmaster.
type JobTier string

const (
	TierNovice      JobTier = "novice"
	TierApprentice  JobTier = "apprentice"
	TierJourneyman  JobTier = "journeyman"
	TierExpert      JobTier = "expert"
	TierMaster      JobTier = "master"
	TierGrandmaster JobTier = "grandmaster"
)

// Valid reports whether t is a known tier.
func (t JobTier) Valid() bool {
	switch t {
	case TierNovice, TierApprentice, TierJourneyman, TierExpert, TierMaster, TierGrandmaster:
		return true
	}
	return false
}

// JobDef is a catalog entry. StatBonuses and ExpBonus are descriptive:
// completions award exp by difficulty and streak only.
type JobDef struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	NameEn       string           `json:"nameEn,omitempty"`
	Description  string           `json:"description"`
	Tier         JobTier          `json:"tier"`
	Requirements Requirements     `json:"requirements"`
	StatBonuses  map[StatType]int `json:"statBonuses,omitempty"`
	ExpBonus     float64          `json:"expBonus"`
	SortOrder    int              `json:"sortOrder"`
}

// UserJob is a user's unlock and equip status for one job.
type UserJob struct {
	UserID     string     `json:"userId"`
	JobID      string     `json:"jobId"`
	IsUnlocked bool       `json:"isUnlocked"`
	IsEquipped bool       `json:"isEquipped"`
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
}
