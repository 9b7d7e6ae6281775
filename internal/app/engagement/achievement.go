package engagement

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/levelhabit/levelhabit/internal/domain"
)

// Special achievement ids with built-in predicates.
const (
	SpecialEarlyBird     = "early_bird"
	SpecialNightOwl      = "night_owl"
	SpecialVarietyMaster = "variety_master"
	SpecialPerfectWeek   = "perfect_week"
)

// Local hour windows for the time-of-day specials.
const (
	nightOwlUntilHour  = 4 // 00:00–03:59
	earlyBirdUntilHour = 6 // 04:00–05:59
)

// AchievementProgress returns how far state is toward def and whether it
// is met. Level and stat achievements go through Evaluate.
func AchievementProgress(def domain.AchievementDef, state UnlockState) (current, target int, met bool) {
	target = def.TargetValue

	switch def.Type {
	case domain.AchievementFirst:
		if def.ID == "first_habit" {
			current = state.HabitCount
		} else {
			current = state.TotalCompletions
		}
	case domain.AchievementStreak:
		current = state.MaxStreak
	case domain.AchievementTotal:
		current = state.TotalCompletions
	case domain.AchievementLevel, domain.AchievementStat:
		req, _ := def.Requirements()
		ev := Evaluate(req, state)
		if len(ev.Conditions) == 1 {
			current = ev.Conditions[0].Current
		}
		return current, target, ev.Met
	case domain.AchievementSpecial:
		if def.ID == SpecialVarietyMaster {
			current = state.DistinctCategories
			break
		}
		target = 1
		if state.Specials[def.ID] {
			current = 1
		}
	}
	return current, target, target > 0 && current >= target
}

// DetectSpecials evaluates the time-of-day and perfect-week predicates
// over records, whose CompletedAt instants are read in the zone tz.
// habits are the user's habits; today ends the perfect-week window.
func DetectSpecials(records []domain.HabitRecord, habits []domain.Habit, tz string, today civil.Date) map[string]bool {
	out := make(map[string]bool)
	loc := LoadLocation(tz)

	for _, r := range records {
		if !r.Completed {
			continue
		}
		h := r.CompletedAt.In(loc).Hour()
		switch {
		case h < nightOwlUntilHour:
			out[SpecialNightOwl] = true
		case h < earlyBirdUntilHour:
			out[SpecialEarlyBird] = true
		}
	}

	if perfectWeek(records, habits, today, loc) {
		out[SpecialPerfectWeek] = true
	}
	return out
}

// perfectWeek reports whether, on each of the seven days ending today,
// every due daily or specific-day habit was completed, and every weekly
// habit was completed at least once in the window.
func perfectWeek(records []domain.HabitRecord, habits []domain.Habit, today civil.Date, loc *time.Location) bool {
	start := today.AddDays(-6)

	done := make(map[string]map[civil.Date]bool)
	for _, r := range records {
		if !r.Completed || r.CompletedDate.Before(start) || r.CompletedDate.After(today) {
			continue
		}
		if done[r.HabitID] == nil {
			done[r.HabitID] = make(map[civil.Date]bool)
		}
		done[r.HabitID][r.CompletedDate] = true
	}

	due := 0
	for _, h := range habits {
		if !h.IsActive || h.IsArchived {
			continue
		}
		if civil.DateOf(h.CreatedAt.In(loc)).After(start) {
			// Needs the full window to qualify.
			continue
		}
		if h.FrequencyType == domain.FrequencyWeekly {
			due++
			if len(done[h.ID]) == 0 {
				return false
			}
			continue
		}
		for d := start; !d.After(today); d = d.AddDays(1) {
			if !h.DueOn(d) {
				continue
			}
			due++
			if !done[h.ID][d] {
				return false
			}
		}
	}
	return due > 0
}
