package engagement

import (
	"fmt"
	"math"

	"github.com/levelhabit/levelhabit/internal/domain"
)

// UnlockState is the snapshot of user progress the unlock rules read.
type UnlockState struct {
	Level                int
	StatLevels           map[domain.StatType]int
	UnlockedJobs         map[string]bool
	UnlockedAchievements map[string]bool

	MaxStreak          int
	TotalCompletions   int
	HabitCount         int
	DistinctCategories int
	// Specials holds special achievement ids whose predicate holds.
	Specials map[string]bool
}

// ConditionType is the kind of a single requirement.
type ConditionType string

const (
	ConditionLevel        ConditionType = "level"
	ConditionStats        ConditionType = "stats"
	ConditionJobs         ConditionType = "jobs"
	ConditionAchievements ConditionType = "achievements"
)

// ConditionResult reports one requirement. Boolean conditions use
// Required 1 and Current 0 or 1.
type ConditionResult struct {
	Type       ConditionType `json:"type"`
	Key        string        `json:"key"`
	Label      string        `json:"label"`
	Required   int           `json:"required"`
	Current    int           `json:"current"`
	IsMet      bool          `json:"isMet"`
	Percentage float64       `json:"percentage"`
}

// Evaluation aggregates the conditions of one requirement set.
type Evaluation struct {
	Conditions []ConditionResult `json:"conditions"`
	Completed  int               `json:"completed"`
	Total      int               `json:"total"`
	Percentage int               `json:"percentage"`
	Met        bool              `json:"met"`
}

// Evaluate checks req against state. It is pure and deterministic: level
// first, then stats in canonical order, then jobs and achievements in the
// order they are listed. Empty requirements are never met.
func Evaluate(req domain.Requirements, state UnlockState) Evaluation {
	var conds []ConditionResult

	if req.Level > 0 {
		conds = append(conds, thresholdCondition(ConditionLevel, "level", "Level", req.Level, state.Level))
	}
	for _, s := range domain.AllStats {
		need, ok := req.Stats[s]
		if !ok || need <= 0 {
			continue
		}
		conds = append(conds, thresholdCondition(ConditionStats, string(s), s.FullName(), need, state.StatLevels[s]))
	}
	for _, id := range req.Jobs {
		conds = append(conds, booleanCondition(ConditionJobs, id, state.UnlockedJobs[id]))
	}
	for _, id := range req.Achievements {
		conds = append(conds, booleanCondition(ConditionAchievements, id, state.UnlockedAchievements[id]))
	}

	ev := Evaluation{Conditions: conds, Total: len(conds)}
	for _, c := range conds {
		if c.IsMet {
			ev.Completed++
		}
	}
	if ev.Total > 0 {
		ev.Percentage = int(math.Round(float64(ev.Completed) / float64(ev.Total) * 100))
		ev.Met = ev.Completed == ev.Total
	}
	return ev
}

func thresholdCondition(t ConditionType, key, name string, required, current int) ConditionResult {
	pct := math.Min(float64(current)*100/float64(required), 100)
	if pct < 0 {
		pct = 0
	}
	return ConditionResult{
		Type:       t,
		Key:        key,
		Label:      fmt.Sprintf("%s %d", name, required),
		Required:   required,
		Current:    current,
		IsMet:      current >= required,
		Percentage: pct,
	}
}

func booleanCondition(t ConditionType, id string, have bool) ConditionResult {
	c := ConditionResult{Type: t, Key: id, Label: id, Required: 1}
	if have {
		c.Current = 1
		c.IsMet = true
		c.Percentage = 100
	}
	return c
}
