package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/levelhabit/levelhabit/internal/domain"
)

func TestDefault_Loads(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	if c.Version == "" {
		t.Error("expected a catalog version")
	}
	if len(c.Jobs) != 29 {
		t.Errorf("expected 29 jobs, got %d", len(c.Jobs))
	}
	if len(c.Achievements) < 30 {
		t.Errorf("expected at least 30 achievements, got %d", len(c.Achievements))
	}
}

func TestDefault_KnownEntries(t *testing.T) {
	c := MustDefault()

	warrior, ok := c.Job("warrior")
	if !ok {
		t.Fatal("warrior job missing")
	}
	if warrior.Requirements.Level != 10 {
		t.Errorf("warrior level = %d, want 10", warrior.Requirements.Level)
	}
	if warrior.Requirements.Stats[domain.StatSTR] != 5 {
		t.Errorf("warrior STR = %d, want 5", warrior.Requirements.Stats[domain.StatSTR])
	}
	if len(warrior.Requirements.Jobs) != 1 || warrior.Requirements.Jobs[0] != "warrior_apprentice" {
		t.Errorf("warrior jobs = %v", warrior.Requirements.Jobs)
	}

	master, _ := c.Job("habit_master")
	if len(master.Requirements.Stats) != 6 {
		t.Errorf("habit_master should require all six stats, got %v", master.Requirements.Stats)
	}
	if len(master.Requirements.Achievements) != 2 {
		t.Errorf("habit_master achievements = %v", master.Requirements.Achievements)
	}

	streak7, ok := c.Achievement("streak_7")
	if !ok || streak7.Type != domain.AchievementStreak || streak7.TargetValue != 7 || streak7.ExpReward != 100 {
		t.Errorf("streak_7 = %+v", streak7)
	}
	stat, _ := c.Achievement("stat_str_10")
	if stat.TargetStat != domain.StatSTR || stat.TargetValue != 10 {
		t.Errorf("stat_str_10 = %+v", stat)
	}
}

// Every job must come after every job it requires.
func TestJobOrder_Acyclic(t *testing.T) {
	c := MustDefault()
	seen := make(map[string]bool)
	for _, j := range c.JobOrder() {
		for _, dep := range j.Requirements.Jobs {
			if !seen[dep] {
				t.Errorf("job %s ordered before its prerequisite %s", j.ID, dep)
			}
		}
		seen[j.ID] = true
	}
	if len(seen) != len(c.Jobs) {
		t.Errorf("order has %d jobs, catalog has %d", len(seen), len(c.Jobs))
	}
	if c.JobOrder()[0].ID != domain.DefaultJobID {
		t.Errorf("expected beginner first, got %s", c.JobOrder()[0].ID)
	}
}

// ─── Validation ─────────────────────────────────────────────────────────────

const beginnerOnly = `
version = "test"

[[jobs]]
id = "beginner"
name = "Beginner"
tier = "novice"
exp_bonus = 1.0
`

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing version", `
[[jobs]]
id = "beginner"
tier = "novice"
`},
		{"missing beginner", `
version = "x"
[[jobs]]
id = "warrior"
tier = "journeyman"
`},
		{"unknown stat", beginnerOnly + `
[[jobs]]
id = "luck"
tier = "apprentice"
[jobs.requirements]
stats = { LUK = 2 }
`},
		{"unknown job reference", beginnerOnly + `
[[jobs]]
id = "knight"
tier = "expert"
[jobs.requirements]
jobs = ["warrior"]
`},
		{"unknown achievement reference", beginnerOnly + `
[[jobs]]
id = "master"
tier = "master"
[jobs.requirements]
achievements = ["level_99"]
`},
		{"cycle", beginnerOnly + `
[[jobs]]
id = "a"
tier = "expert"
[jobs.requirements]
jobs = ["b"]

[[jobs]]
id = "b"
tier = "expert"
[jobs.requirements]
jobs = ["a"]
`},
		{"unknown achievement type", beginnerOnly + `
[[achievements]]
id = "odd"
type = "weird"
target = 1
`},
		{"stat achievement without stat", beginnerOnly + `
[[achievements]]
id = "stat_x"
type = "stat"
target = 5
`},
		{"duplicate job", beginnerOnly + `
[[jobs]]
id = "beginner"
tier = "novice"
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if !errors.Is(err, domain.ErrCatalogInvalid) {
				t.Errorf("expected ErrCatalogInvalid, got %v", err)
			}
		})
	}
}

func TestLoad_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	if err := os.WriteFile(path, []byte(beginnerOnly), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if c.Version != "test" || len(c.Jobs) != 1 {
		t.Errorf("unexpected catalog: version=%q jobs=%d", c.Version, len(c.Jobs))
	}
}
