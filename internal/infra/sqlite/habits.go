package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/levelhabit/levelhabit/internal/domain"
)

// ─── Habits ─────────────────────────────────────────────────────────────────

const habitColumns = `id, user_id, name, description, icon, category, stat_type, difficulty,
	frequency_type, specific_days, current_streak, best_streak, total_completions,
	last_completed_at, is_active, is_archived, created_at`

// CreateHabit inserts a new habit.
func (d *DB) CreateHabit(ctx context.Context, h *domain.Habit) error {
	_, err := d.q.ExecContext(ctx,
		`INSERT INTO habits (`+habitColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.UserID, h.Name, h.Description, h.Icon, string(h.Category), string(h.StatType),
		string(h.Difficulty), string(h.FrequencyType), joinDays(h.SpecificDays),
		h.CurrentStreak, h.BestStreak, h.TotalCompletions,
		nullableUnix(h.LastCompletedAt), h.IsActive, h.IsArchived, h.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert habit: %w", err)
	}
	return nil
}

// GetHabit retrieves a habit by id.
func (d *DB) GetHabit(ctx context.Context, id string) (*domain.Habit, error) {
	row := d.q.QueryRowContext(ctx, `SELECT `+habitColumns+` FROM habits WHERE id = ?`, id)
	h, err := scanHabit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("habit", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get habit: %w", err)
	}
	return h, nil
}

// ListHabits returns a user's habits, oldest first.
func (d *DB) ListHabits(ctx context.Context, userID string, includeArchived bool) ([]domain.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE user_id = ?`
	if !includeArchived {
		query += ` AND is_archived = 0`
	}
	query += ` ORDER BY created_at, id`

	rows, err := d.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	defer rows.Close()

	var habits []domain.Habit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		habits = append(habits, *h)
	}
	return habits, rows.Err()
}

// UpdateHabit writes every mutable habit column.
func (d *DB) UpdateHabit(ctx context.Context, h *domain.Habit) error {
	res, err := d.q.ExecContext(ctx,
		`UPDATE habits SET name = ?, description = ?, icon = ?, category = ?, stat_type = ?,
			difficulty = ?, frequency_type = ?, specific_days = ?,
			current_streak = ?, best_streak = ?, total_completions = ?, last_completed_at = ?,
			is_active = ?, is_archived = ?
		 WHERE id = ?`,
		h.Name, h.Description, h.Icon, string(h.Category), string(h.StatType),
		string(h.Difficulty), string(h.FrequencyType), joinDays(h.SpecificDays),
		h.CurrentStreak, h.BestStreak, h.TotalCompletions, nullableUnix(h.LastCompletedAt),
		h.IsActive, h.IsArchived,
		h.ID,
	)
	if err != nil {
		return fmt.Errorf("update habit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("habit", h.ID)
	}
	return nil
}

func scanHabit(s scanner) (*domain.Habit, error) {
	var h domain.Habit
	var category, stat, difficulty, frequency, days string
	var lastCompleted sql.NullInt64
	var createdAt int64

	err := s.Scan(&h.ID, &h.UserID, &h.Name, &h.Description, &h.Icon, &category, &stat, &difficulty,
		&frequency, &days, &h.CurrentStreak, &h.BestStreak, &h.TotalCompletions,
		&lastCompleted, &h.IsActive, &h.IsArchived, &createdAt)
	if err != nil {
		return nil, err
	}
	h.Category = domain.Category(category)
	h.StatType = domain.StatType(stat)
	h.Difficulty = domain.Difficulty(difficulty)
	h.FrequencyType = domain.FrequencyType(frequency)
	h.SpecificDays = splitDays(days)
	h.LastCompletedAt = fromNullableUnix(lastCompleted)
	h.CreatedAt = time.Unix(createdAt, 0)
	return &h, nil
}

// joinDays stores weekdays as "1,3,5".
func joinDays(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func splitDays(s string) []time.Weekday {
	if s == "" {
		return nil
	}
	var days []time.Weekday
	for _, p := range strings.Split(s, ",") {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}

// ─── Records ────────────────────────────────────────────────────────────────

const recordColumns = `id, habit_id, user_id, completed_date, completed, note,
	exp_earned, streak_at_completion, completed_at`

// InsertRecord appends a completion. A second completion of the same
// habit on the same date fails with *domain.AlreadyCompletedError.
func (d *DB) InsertRecord(ctx context.Context, r *domain.HabitRecord) error {
	_, err := d.q.ExecContext(ctx,
		`INSERT INTO habit_records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.HabitID, r.UserID, r.CompletedDate.String(), r.Completed, r.Note,
		r.ExpEarned, r.StreakAtCompletion, r.CompletedAt.Unix(),
	)
	if isUniqueViolation(err) {
		return &domain.AlreadyCompletedError{HabitID: r.HabitID, Date: r.CompletedDate}
	}
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// HasCompletion reports whether the habit was completed on date.
func (d *DB) HasCompletion(ctx context.Context, habitID string, date civil.Date) (bool, error) {
	var n int
	err := d.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM habit_records WHERE habit_id = ? AND completed_date = ? AND completed = 1`,
		habitID, date.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has completion: %w", err)
	}
	return n > 0, nil
}

// LastCompletionDate returns the latest completed date, or nil.
func (d *DB) LastCompletionDate(ctx context.Context, habitID string) (*civil.Date, error) {
	var last sql.NullString
	err := d.q.QueryRowContext(ctx,
		`SELECT MAX(completed_date) FROM habit_records WHERE habit_id = ? AND completed = 1`,
		habitID).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("last completion: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	date, err := civil.ParseDate(last.String)
	if err != nil {
		return nil, fmt.Errorf("parse completed_date %q: %w", last.String, err)
	}
	return &date, nil
}

// ListRecords returns a habit's newest records first. limit <= 0 means 100.
func (d *DB) ListRecords(ctx context.Context, habitID string, limit int) ([]domain.HabitRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.q.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM habit_records
		 WHERE habit_id = ? ORDER BY completed_date DESC LIMIT ?`, habitID, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return collectRecords(rows)
}

// ListUserRecords returns all of a user's records with from <= date <= to.
func (d *DB) ListUserRecords(ctx context.Context, userID string, from, to civil.Date) ([]domain.HabitRecord, error) {
	rows, err := d.q.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM habit_records
		 WHERE user_id = ? AND completed_date BETWEEN ? AND ?
		 ORDER BY completed_date, completed_at`, userID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("list user records: %w", err)
	}
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]domain.HabitRecord, error) {
	defer rows.Close()
	var out []domain.HabitRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanRecord(s scanner) (*domain.HabitRecord, error) {
	var r domain.HabitRecord
	var date string
	var completedAt int64

	err := s.Scan(&r.ID, &r.HabitID, &r.UserID, &date, &r.Completed, &r.Note,
		&r.ExpEarned, &r.StreakAtCompletion, &completedAt)
	if err != nil {
		return nil, err
	}
	if r.CompletedDate, err = civil.ParseDate(date); err != nil {
		return nil, fmt.Errorf("parse completed_date %q: %w", date, err)
	}
	r.CompletedAt = time.Unix(completedAt, 0)
	return &r, nil
}
