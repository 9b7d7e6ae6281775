package domain

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// DefaultTimezone is assigned to users who never picked one.
const DefaultTimezone = "Asia/Tokyo"

// DefaultJobID is the job every user starts with.
const DefaultJobID = "beginner"

// ─── Enumerations ───────────────────────────────────────────────────────────

// Difficulty scales the experience a completion awards.
type Difficulty string

const (
	DifficultyEasy     Difficulty = "easy"
	DifficultyNormal   Difficulty = "normal"
	DifficultyHard     Difficulty = "hard"
	DifficultyVeryHard Difficulty = "very_hard"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyNormal, DifficultyHard, DifficultyVeryHard:
		return true
	}
	return false
}

// FrequencyType says on which days a habit is due.
type FrequencyType string

const (
	FrequencyDaily        FrequencyType = "daily"
	FrequencyWeekly       FrequencyType = "weekly"
	FrequencySpecificDays FrequencyType = "specific_days"
)

// Valid reports whether f is a known frequency.
func (f FrequencyType) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencySpecificDays:
		return true
	}
	return false
}

// Gender is cosmetic only.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Category is the habit theme the user picked. It decides the default stat.
type Category string

var categoryStats = map[Category]StatType{
	"exercise": StatVIT,
	"sleep":    StatVIT,
	"health":   StatVIT,
	"other":    StatVIT,

	"reading":  StatINT,
	"study":    StatINT,
	"learning": StatINT,

	"meditation":  StatMND,
	"journaling":  StatMND,
	"gratitude":   StatMND,
	"mindfulness": StatMND,

	"music": StatDEX,
	"art":   StatDEX,
	"craft": StatDEX,
	"hobby": StatDEX,

	"communication": StatCHA,
	"social":        StatCHA,
	"grooming":      StatCHA,

	"workout": StatSTR,
	"sports":  StatSTR,
	"fitness": StatSTR,
}

// Normalize lowercases and trims the category.
func (c Category) Normalize() Category {
	return Category(strings.ToLower(strings.TrimSpace(string(c))))
}

// Known reports whether c appears in the category table.
func (c Category) Known() bool {
	_, ok := categoryStats[c.Normalize()]
	return ok
}

// DefaultStat returns the stat a habit in this category trains.
// Unknown categories train VIT.
func (c Category) DefaultStat() StatType {
	if s, ok := categoryStats[c.Normalize()]; ok {
		return s
	}
	return StatVIT
}

// ─── Entities ───────────────────────────────────────────────────────────────

// User is the player profile. Level and stat levels are always derived
// from the corresponding exp totals.
type User struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"displayName"`
	Timezone      string    `json:"timezone"`
	Gender        Gender    `json:"gender,omitempty"`
	CurrentJobID  string    `json:"currentJobId"`
	Level         int       `json:"level"`
	TotalExp      int64     `json:"totalExp"`
	Stats         StatBlock `json:"stats"`
	CurrentStreak int       `json:"currentStreak"`
	MaxStreak     int       `json:"maxStreak"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// NewUser returns a fresh profile with starting values.
func NewUser(id, displayName, timezone string, now time.Time) *User {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	return &User{
		ID:           id,
		DisplayName:  displayName,
		Timezone:     timezone,
		CurrentJobID: DefaultJobID,
		Level:        1,
		Stats:        NewStatBlock(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Habit is a recurring task owned by a single user.
type Habit struct {
	ID               string         `json:"id"`
	UserID           string         `json:"userId"`
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	Icon             string         `json:"icon,omitempty"`
	Category         Category       `json:"category"`
	StatType         StatType       `json:"statType"`
	Difficulty       Difficulty     `json:"difficulty"`
	FrequencyType    FrequencyType  `json:"frequencyType"`
	SpecificDays     []time.Weekday `json:"specificDays,omitempty"`
	CurrentStreak    int            `json:"currentStreak"`
	BestStreak       int            `json:"bestStreak"`
	TotalCompletions int            `json:"totalCompletions"`
	LastCompletedAt  *time.Time     `json:"lastCompletedAt,omitempty"`
	IsActive         bool           `json:"isActive"`
	IsArchived       bool           `json:"isArchived"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// DueOn reports whether the habit is scheduled on date. Weekly habits
// may be done on any day, so they count as due every day.
func (h Habit) DueOn(date civil.Date) bool {
	if !h.IsActive || h.IsArchived {
		return false
	}
	if h.FrequencyType != FrequencySpecificDays {
		return true
	}
	wd := date.In(time.UTC).Weekday()
	for _, d := range h.SpecificDays {
		if d == wd {
			return true
		}
	}
	return false
}

// HabitRecord is one immutable completion event.
type HabitRecord struct {
	ID                 string     `json:"id"`
	HabitID            string     `json:"habitId"`
	UserID             string     `json:"userId"`
	CompletedDate      civil.Date `json:"completedDate"`
	Completed          bool       `json:"completed"`
	Note               string     `json:"note,omitempty"`
	ExpEarned          int64      `json:"expEarned"`
	StreakAtCompletion int        `json:"streakAtCompletion"`
	CompletedAt        time.Time  `json:"completedAt"`
}
