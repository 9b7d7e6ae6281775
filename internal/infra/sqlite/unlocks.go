package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/levelhabit/levelhabit/internal/domain"
)

// ─── User Unlock Rows ───────────────────────────────────────────────────────

// InitUserUnlocks creates locked rows for ids the user lacks.
func (d *DB) InitUserUnlocks(ctx context.Context, userID string, achievementIDs, jobIDs []string) error {
	for _, id := range achievementIDs {
		if _, err := d.q.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_achievements (user_id, achievement_id) VALUES (?, ?)`,
			userID, id); err != nil {
			return fmt.Errorf("init achievement %s: %w", id, err)
		}
	}
	for _, id := range jobIDs {
		if _, err := d.q.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_jobs (user_id, job_id) VALUES (?, ?)`,
			userID, id); err != nil {
			return fmt.Errorf("init job %s: %w", id, err)
		}
	}
	return nil
}

// UnlockAchievement flips the row to unlocked, creating it if missing.
// Returns true only on the call that actually flipped it.
func (d *DB) UnlockAchievement(ctx context.Context, userID, achievementID string, at time.Time) (bool, error) {
	res, err := d.q.ExecContext(ctx,
		`INSERT INTO user_achievements (user_id, achievement_id, is_unlocked, unlocked_at)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT(user_id, achievement_id) DO UPDATE
		 SET is_unlocked = 1, unlocked_at = excluded.unlocked_at
		 WHERE user_achievements.is_unlocked = 0`,
		userID, achievementID, at.Unix())
	if err != nil {
		return false, fmt.Errorf("unlock achievement: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UnlockJob flips the job row to unlocked, creating it if missing.
// Returns true only on the call that actually flipped it.
func (d *DB) UnlockJob(ctx context.Context, userID, jobID string, at time.Time) (bool, error) {
	res, err := d.q.ExecContext(ctx,
		`INSERT INTO user_jobs (user_id, job_id, is_unlocked, unlocked_at)
		 VALUES (?, ?, 1, ?)
		 ON CONFLICT(user_id, job_id) DO UPDATE
		 SET is_unlocked = 1, unlocked_at = excluded.unlocked_at
		 WHERE user_jobs.is_unlocked = 0`,
		userID, jobID, at.Unix())
	if err != nil {
		return false, fmt.Errorf("unlock job: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// EquipJob marks jobID as the only equipped job and sets the user's
// current job. The caller checks that the job is unlocked.
func (d *DB) EquipJob(ctx context.Context, userID, jobID string) error {
	res, err := d.q.ExecContext(ctx,
		`UPDATE users SET current_job_id = ? WHERE id = ?`, jobID, userID)
	if err != nil {
		return fmt.Errorf("set current job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("user", userID)
	}
	if _, err := d.q.ExecContext(ctx,
		`UPDATE user_jobs SET is_equipped = (job_id = ?) WHERE user_id = ?`, jobID, userID); err != nil {
		return fmt.Errorf("equip job: %w", err)
	}
	return nil
}

// ListUserAchievements returns every achievement row of the user.
func (d *DB) ListUserAchievements(ctx context.Context, userID string) ([]domain.UserAchievement, error) {
	rows, err := d.q.QueryContext(ctx,
		`SELECT user_id, achievement_id, is_unlocked, unlocked_at
		 FROM user_achievements WHERE user_id = ? ORDER BY achievement_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user achievements: %w", err)
	}
	defer rows.Close()

	var out []domain.UserAchievement
	for rows.Next() {
		var a domain.UserAchievement
		var at sql.NullInt64
		if err := rows.Scan(&a.UserID, &a.AchievementID, &a.IsUnlocked, &at); err != nil {
			return nil, fmt.Errorf("scan user achievement: %w", err)
		}
		a.UnlockedAt = fromNullableUnix(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListUserJobs returns every job row of the user.
func (d *DB) ListUserJobs(ctx context.Context, userID string) ([]domain.UserJob, error) {
	rows, err := d.q.QueryContext(ctx,
		`SELECT user_id, job_id, is_unlocked, is_equipped, unlocked_at
		 FROM user_jobs WHERE user_id = ? ORDER BY job_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.UserJob
	for rows.Next() {
		var j domain.UserJob
		var at sql.NullInt64
		if err := rows.Scan(&j.UserID, &j.JobID, &j.IsUnlocked, &j.IsEquipped, &at); err != nil {
			return nil, fmt.Errorf("scan user job: %w", err)
		}
		j.UnlockedAt = fromNullableUnix(at)
		out = append(out, j)
	}
	return out, rows.Err()
}

// ─── Catalog ────────────────────────────────────────────────────────────────

const catalogVersionKey = "catalog_version"

// SeedCatalog upserts the catalog definitions and records the version.
func (d *DB) SeedCatalog(ctx context.Context, version string, achievements []domain.AchievementDef, jobs []domain.JobDef) error {
	for _, a := range achievements {
		_, err := d.q.ExecContext(ctx,
			`INSERT INTO achievements (id, name, description, icon, type, rarity, exp_reward, target_value, target_stat, hidden)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, description = excluded.description, icon = excluded.icon,
				type = excluded.type, rarity = excluded.rarity, exp_reward = excluded.exp_reward,
				target_value = excluded.target_value, target_stat = excluded.target_stat,
				hidden = excluded.hidden`,
			a.ID, a.Name, a.Description, a.Icon, string(a.Type), string(a.Rarity),
			a.ExpReward, a.TargetValue, string(a.TargetStat), a.Hidden)
		if err != nil {
			return fmt.Errorf("seed achievement %s: %w", a.ID, err)
		}
	}

	for _, j := range jobs {
		req, err := json.Marshal(j.Requirements)
		if err != nil {
			return fmt.Errorf("encode requirements %s: %w", j.ID, err)
		}
		bonuses, err := json.Marshal(j.StatBonuses)
		if err != nil {
			return fmt.Errorf("encode stat bonuses %s: %w", j.ID, err)
		}
		_, err = d.q.ExecContext(ctx,
			`INSERT INTO jobs (id, name, description, tier, requirements, stat_bonuses, exp_bonus, sort_order)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, description = excluded.description, tier = excluded.tier,
				requirements = excluded.requirements, stat_bonuses = excluded.stat_bonuses,
				exp_bonus = excluded.exp_bonus, sort_order = excluded.sort_order`,
			j.ID, j.Name, j.Description, string(j.Tier), string(req), string(bonuses), j.ExpBonus, j.SortOrder)
		if err != nil {
			return fmt.Errorf("seed job %s: %w", j.ID, err)
		}
	}

	return d.SetMeta(ctx, catalogVersionKey, version)
}

// CatalogVersion returns the last seeded catalog version, or "".
func (d *DB) CatalogVersion(ctx context.Context) (string, error) {
	return d.GetMeta(ctx, catalogVersionKey)
}

// ListJobs reads the seeded job definitions back, by sort order.
func (d *DB) ListJobs(ctx context.Context) ([]domain.JobDef, error) {
	rows, err := d.q.QueryContext(ctx,
		`SELECT id, name, description, tier, requirements, stat_bonuses, exp_bonus, sort_order
		 FROM jobs ORDER BY sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.JobDef
	for rows.Next() {
		var j domain.JobDef
		var tier, req, bonuses string
		if err := rows.Scan(&j.ID, &j.Name, &j.Description, &tier, &req, &bonuses, &j.ExpBonus, &j.SortOrder); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.Tier = domain.JobTier(tier)
		if err := json.Unmarshal([]byte(req), &j.Requirements); err != nil {
			return nil, fmt.Errorf("decode requirements %s: %w", j.ID, err)
		}
		if err := json.Unmarshal([]byte(bonuses), &j.StatBonuses); err != nil {
			return nil, fmt.Errorf("decode stat bonuses %s: %w", j.ID, err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
