package engagement

import (
	"math"

	"cloud.google.com/go/civil"

	"github.com/levelhabit/levelhabit/internal/domain"
)

// HabitDay is one habit's outcome on a single day.
type HabitDay struct {
	HabitID   string `json:"habitId"`
	HabitName string `json:"habitName"`
	Completed bool   `json:"completed"`
	ExpEarned int64  `json:"expEarned"`
}

// DailyStats summarizes completions on one date.
type DailyStats struct {
	Date             civil.Date `json:"date"`
	TotalHabits      int        `json:"totalHabits"`
	CompletedHabits  int        `json:"completedHabits"`
	CompletionRate   float64    `json:"completionRate"`
	TotalExpEarned   int64      `json:"totalExpEarned"`
	HabitCompletions []HabitDay `json:"habitCompletions"`
}

// WeeklyStats summarizes seven consecutive days.
type WeeklyStats struct {
	WeekStart       civil.Date   `json:"weekStart"`
	WeekEnd         civil.Date   `json:"weekEnd"`
	TotalHabits     int          `json:"totalHabits"`
	CompletedHabits int          `json:"completedHabits"`
	CompletionRate  float64      `json:"completionRate"`
	TotalExpEarned  int64        `json:"totalExpEarned"`
	Days            []DailyStats `json:"dailyStats"`
}

// ComputeDaily builds the day summary from habits and the records of
// that date. Only habits due on the date are counted.
func ComputeDaily(habits []domain.Habit, records []domain.HabitRecord, date civil.Date) DailyStats {
	byHabit := make(map[string]domain.HabitRecord)
	for _, r := range records {
		if r.Completed && r.CompletedDate == date {
			byHabit[r.HabitID] = r
		}
	}

	ds := DailyStats{Date: date, HabitCompletions: []HabitDay{}}
	for _, h := range habits {
		if !h.DueOn(date) {
			continue
		}
		ds.TotalHabits++
		day := HabitDay{HabitID: h.ID, HabitName: h.Name}
		if r, ok := byHabit[h.ID]; ok {
			day.Completed = true
			day.ExpEarned = r.ExpEarned
			ds.CompletedHabits++
			ds.TotalExpEarned += r.ExpEarned
		}
		ds.HabitCompletions = append(ds.HabitCompletions, day)
	}
	ds.CompletionRate = completionRate(ds.CompletedHabits, ds.TotalHabits)
	return ds
}

// ComputeWeekly builds the summary for the seven days from start.
func ComputeWeekly(habits []domain.Habit, records []domain.HabitRecord, start civil.Date) WeeklyStats {
	ws := WeeklyStats{WeekStart: start, WeekEnd: start.AddDays(6)}
	for i := 0; i < 7; i++ {
		ds := ComputeDaily(habits, records, start.AddDays(i))
		ws.Days = append(ws.Days, ds)
		ws.TotalHabits += ds.TotalHabits
		ws.CompletedHabits += ds.CompletedHabits
		ws.TotalExpEarned += ds.TotalExpEarned
	}
	ws.CompletionRate = completionRate(ws.CompletedHabits, ws.TotalHabits)
	return ws
}

// completionRate is completed/due rounded to two decimals, 0 with nothing due.
func completionRate(completed, due int) float64 {
	if due == 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(due)*100) / 100
}
