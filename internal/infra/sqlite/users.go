package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/levelhabit/levelhabit/internal/domain"
)

const userColumns = `id, display_name, timezone, gender, current_job_id, level, total_exp,
	vit_level, vit_exp, int_level, int_exp, mnd_level, mnd_exp,
	dex_level, dex_exp, cha_level, cha_exp, str_level, str_exp,
	current_streak, max_streak, created_at, updated_at`

// CreateUser inserts a new user. Fails with domain.ErrUserExists on a
// duplicate id.
func (d *DB) CreateUser(ctx context.Context, u *domain.User) error {
	s := u.Stats
	_, err := d.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.DisplayName, u.Timezone, string(u.Gender), u.CurrentJobID, u.Level, u.TotalExp,
		s.VIT.Level, s.VIT.Exp, s.INT.Level, s.INT.Exp, s.MND.Level, s.MND.Exp,
		s.DEX.Level, s.DEX.Exp, s.CHA.Level, s.CHA.Exp, s.STR.Level, s.STR.Exp,
		u.CurrentStreak, u.MaxStreak, u.CreatedAt.Unix(), u.UpdatedAt.Unix(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.ID, domain.ErrUserExists)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by id.
func (d *DB) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := d.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UpdateUser writes every mutable user column.
func (d *DB) UpdateUser(ctx context.Context, u *domain.User) error {
	s := u.Stats
	res, err := d.q.ExecContext(ctx,
		`UPDATE users SET display_name = ?, timezone = ?, gender = ?, current_job_id = ?,
			level = ?, total_exp = ?,
			vit_level = ?, vit_exp = ?, int_level = ?, int_exp = ?, mnd_level = ?, mnd_exp = ?,
			dex_level = ?, dex_exp = ?, cha_level = ?, cha_exp = ?, str_level = ?, str_exp = ?,
			current_streak = ?, max_streak = ?, updated_at = ?
		 WHERE id = ?`,
		u.DisplayName, u.Timezone, string(u.Gender), u.CurrentJobID,
		u.Level, u.TotalExp,
		s.VIT.Level, s.VIT.Exp, s.INT.Level, s.INT.Exp, s.MND.Level, s.MND.Exp,
		s.DEX.Level, s.DEX.Exp, s.CHA.Level, s.CHA.Exp, s.STR.Level, s.STR.Exp,
		u.CurrentStreak, u.MaxStreak, u.UpdatedAt.Unix(),
		u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("user", u.ID)
	}
	return nil
}

func scanUser(s scanner) (*domain.User, error) {
	var u domain.User
	var gender string
	var createdAt, updatedAt int64
	st := &u.Stats

	err := s.Scan(&u.ID, &u.DisplayName, &u.Timezone, &gender, &u.CurrentJobID, &u.Level, &u.TotalExp,
		&st.VIT.Level, &st.VIT.Exp, &st.INT.Level, &st.INT.Exp, &st.MND.Level, &st.MND.Exp,
		&st.DEX.Level, &st.DEX.Exp, &st.CHA.Level, &st.CHA.Exp, &st.STR.Level, &st.STR.Exp,
		&u.CurrentStreak, &u.MaxStreak, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	u.Gender = domain.Gender(gender)
	u.CreatedAt = time.Unix(createdAt, 0)
	u.UpdatedAt = time.Unix(updatedAt, 0)
	return &u, nil
}
