package engagement

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/levelhabit/levelhabit/internal/domain"
)

// StreakKind says which rule produced a streak transition.
type StreakKind string

const (
	StreakFirst     StreakKind = "first"
	StreakDuplicate StreakKind = "duplicate"
	StreakContinued StreakKind = "continued"
	StreakReset     StreakKind = "reset"
)

// StreakTransition is the outcome of evaluating one completion date.
type StreakTransition struct {
	NewStreak   int        `json:"newStreak"`
	IsDuplicate bool       `json:"isDuplicate"`
	Kind        StreakKind `json:"kind"`
}

// EvaluateStreak computes the streak after completing on next, given the
// last completed date and the streak it produced.
// Same date: duplicate, streak unchanged. Next day: extend. Any other gap,
// including dates before last: reset to 1.
func EvaluateStreak(last *civil.Date, next civil.Date, prior int) StreakTransition {
	if last == nil {
		return StreakTransition{NewStreak: 1, Kind: StreakFirst}
	}
	switch next.DaysSince(*last) {
	case 0:
		return StreakTransition{NewStreak: prior, IsDuplicate: true, Kind: StreakDuplicate}
	case 1:
		return StreakTransition{NewStreak: prior + 1, Kind: StreakContinued}
	default:
		return StreakTransition{NewStreak: 1, Kind: StreakReset}
	}
}

// LoadLocation resolves an IANA zone name. Empty or unknown names fall
// back to UTC.
func LoadLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DateIn returns the calendar date of t in the zone tz.
func DateIn(t time.Time, tz string) civil.Date {
	return civil.DateOf(t.In(LoadLocation(tz)))
}

// TodayIn returns today's calendar date in the zone tz.
func TodayIn(clock domain.Clock, tz string) civil.Date {
	return DateIn(clock.Now(), tz)
}
