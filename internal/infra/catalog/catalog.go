// Package catalog provides the built-in achievement and job definitions.
// The definitions live in catalog.toml, embedded at build time, and are
// validated once at load so bad data never reaches the unlock engine.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/levelhabit/levelhabit/internal/domain"
)

//go:embed catalog.toml
var defaultCatalog []byte

// file mirrors catalog.toml.
type file struct {
	Version      string             `toml:"version"`
	Achievements []achievementEntry `toml:"achievements"`
	Jobs         []jobEntry         `toml:"jobs"`
}

type achievementEntry struct {
	ID          string `toml:"id"`
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Icon        string `toml:"icon"`
	Type        string `toml:"type"`
	Rarity      string `toml:"rarity"`
	ExpReward   int64  `toml:"exp_reward"`
	Target      int    `toml:"target"`
	TargetStat  string `toml:"target_stat"`
	Hidden      bool   `toml:"hidden"`
}

type jobEntry struct {
	ID           string            `toml:"id"`
	Name         string            `toml:"name"`
	Description  string            `toml:"description"`
	Tier         string            `toml:"tier"`
	ExpBonus     float64           `toml:"exp_bonus"`
	SortOrder    int               `toml:"sort_order"`
	StatBonuses  map[string]int    `toml:"stat_bonuses"`
	Requirements requirementsEntry `toml:"requirements"`
}

type requirementsEntry struct {
	Level        int            `toml:"level"`
	Stats        map[string]int `toml:"stats"`
	Jobs         []string       `toml:"jobs"`
	Achievements []string       `toml:"achievements"`
}

// Catalog is a validated, read-only set of definitions.
type Catalog struct {
	Version      string
	Achievements []domain.AchievementDef
	Jobs         []domain.JobDef

	achievementIdx map[string]int
	jobIdx         map[string]int
	jobOrder       []string
}

// Default parses the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// MustDefault is Default for wiring code; the embedded file is covered by
// tests, so a failure here is a build defect.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads and validates a catalog file from disk.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates catalog TOML.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrCatalogInvalid, err)
	}

	c := &Catalog{
		Version:        f.Version,
		achievementIdx: make(map[string]int, len(f.Achievements)),
		jobIdx:         make(map[string]int, len(f.Jobs)),
	}
	if c.Version == "" {
		return nil, invalid("version is required")
	}

	for _, e := range f.Achievements {
		def, err := e.toDomain()
		if err != nil {
			return nil, err
		}
		if _, dup := c.achievementIdx[def.ID]; dup {
			return nil, invalid("duplicate achievement %q", def.ID)
		}
		c.achievementIdx[def.ID] = len(c.Achievements)
		c.Achievements = append(c.Achievements, def)
	}

	for _, e := range f.Jobs {
		def, err := e.toDomain()
		if err != nil {
			return nil, err
		}
		if _, dup := c.jobIdx[def.ID]; dup {
			return nil, invalid("duplicate job %q", def.ID)
		}
		c.jobIdx[def.ID] = len(c.Jobs)
		c.Jobs = append(c.Jobs, def)
	}

	if err := c.validateReferences(); err != nil {
		return nil, err
	}
	order, err := c.topoSort()
	if err != nil {
		return nil, err
	}
	c.jobOrder = order
	return c, nil
}

// Achievement looks up an achievement by id.
func (c *Catalog) Achievement(id string) (domain.AchievementDef, bool) {
	i, ok := c.achievementIdx[id]
	if !ok {
		return domain.AchievementDef{}, false
	}
	return c.Achievements[i], true
}

// Job looks up a job by id.
func (c *Catalog) Job(id string) (domain.JobDef, bool) {
	i, ok := c.jobIdx[id]
	if !ok {
		return domain.JobDef{}, false
	}
	return c.Jobs[i], true
}

// JobOrder returns jobs so that every job comes after the jobs it requires.
func (c *Catalog) JobOrder() []domain.JobDef {
	out := make([]domain.JobDef, 0, len(c.jobOrder))
	for _, id := range c.jobOrder {
		out = append(out, c.Jobs[c.jobIdx[id]])
	}
	return out
}

// AchievementIDs returns all achievement ids in file order.
func (c *Catalog) AchievementIDs() []string {
	ids := make([]string, len(c.Achievements))
	for i, a := range c.Achievements {
		ids[i] = a.ID
	}
	return ids
}

// JobIDs returns all job ids in file order.
func (c *Catalog) JobIDs() []string {
	ids := make([]string, len(c.Jobs))
	for i, j := range c.Jobs {
		ids[i] = j.ID
	}
	return ids
}

// ─── Validation ─────────────────────────────────────────────────────────────

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrCatalogInvalid, fmt.Sprintf(format, args...))
}

func (e achievementEntry) toDomain() (domain.AchievementDef, error) {
	if e.ID == "" {
		return domain.AchievementDef{}, invalid("achievement without id")
	}
	def := domain.AchievementDef{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Icon:        e.Icon,
		Type:        domain.AchievementType(e.Type),
		Rarity:      domain.Rarity(e.Rarity),
		ExpReward:   e.ExpReward,
		TargetValue: e.Target,
		Hidden:      e.Hidden,
	}
	if !def.Type.Valid() {
		return def, invalid("achievement %q: unknown type %q", e.ID, e.Type)
	}
	if def.TargetValue <= 0 {
		return def, invalid("achievement %q: target must be positive", e.ID)
	}
	if def.ExpReward < 0 {
		return def, invalid("achievement %q: negative exp_reward", e.ID)
	}
	if def.Type == domain.AchievementStat {
		st := domain.StatType(e.TargetStat)
		if !st.Valid() {
			return def, invalid("achievement %q: unknown target_stat %q", e.ID, e.TargetStat)
		}
		def.TargetStat = st
	}
	return def, nil
}

func (e jobEntry) toDomain() (domain.JobDef, error) {
	if e.ID == "" {
		return domain.JobDef{}, invalid("job without id")
	}
	def := domain.JobDef{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Tier:        domain.JobTier(e.Tier),
		ExpBonus:    e.ExpBonus,
		SortOrder:   e.SortOrder,
		Requirements: domain.Requirements{
			Level:        e.Requirements.Level,
			Jobs:         e.Requirements.Jobs,
			Achievements: e.Requirements.Achievements,
		},
	}
	if !def.Tier.Valid() {
		return def, invalid("job %q: unknown tier %q", e.ID, e.Tier)
	}
	if def.Requirements.Level < 0 {
		return def, invalid("job %q: negative level requirement", e.ID)
	}

	stats, err := statMap(e.ID, "stats", e.Requirements.Stats)
	if err != nil {
		return def, err
	}
	for s, v := range stats {
		if v <= 0 {
			return def, invalid("job %q: stat %s threshold must be positive", e.ID, s)
		}
	}
	def.Requirements.Stats = stats

	if def.StatBonuses, err = statMap(e.ID, "stat_bonuses", e.StatBonuses); err != nil {
		return def, err
	}
	return def, nil
}

func statMap(jobID, field string, in map[string]int) (map[domain.StatType]int, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[domain.StatType]int, len(in))
	for k, v := range in {
		st := domain.StatType(k)
		if !st.Valid() {
			return nil, invalid("job %q: %s has unknown stat %q", jobID, field, k)
		}
		out[st] = v
	}
	return out, nil
}

func (c *Catalog) validateReferences() error {
	beginner, ok := c.Job(domain.DefaultJobID)
	if !ok {
		return invalid("job %q is required", domain.DefaultJobID)
	}
	if !beginner.Requirements.IsEmpty() {
		return invalid("job %q must have no requirements", domain.DefaultJobID)
	}

	for _, j := range c.Jobs {
		for _, dep := range j.Requirements.Jobs {
			if dep == j.ID {
				return invalid("job %q requires itself", j.ID)
			}
			if _, ok := c.jobIdx[dep]; !ok {
				return invalid("job %q requires unknown job %q", j.ID, dep)
			}
		}
		for _, dep := range j.Requirements.Achievements {
			if _, ok := c.achievementIdx[dep]; !ok {
				return invalid("job %q requires unknown achievement %q", j.ID, dep)
			}
		}
	}
	return nil
}

// topoSort orders jobs by their job prerequisites (Kahn's algorithm).
// Ties keep file order so the result is stable.
func (c *Catalog) topoSort() ([]string, error) {
	indegree := make(map[string]int, len(c.Jobs))
	dependents := make(map[string][]string, len(c.Jobs))
	for _, j := range c.Jobs {
		for _, dep := range j.Requirements.Jobs {
			indegree[j.ID]++
			dependents[dep] = append(dependents[dep], j.ID)
		}
	}

	var ready []string
	for _, j := range c.Jobs {
		if indegree[j.ID] == 0 {
			ready = append(ready, j.ID)
		}
	}

	order := make([]string, 0, len(c.Jobs))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		next := dependents[id]
		for _, d := range next {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
		sort.SliceStable(ready, func(a, b int) bool { return c.jobIdx[ready[a]] < c.jobIdx[ready[b]] })
	}

	if len(order) != len(c.Jobs) {
		var stuck []string
		for _, j := range c.Jobs {
			if indegree[j.ID] > 0 {
				stuck = append(stuck, j.ID)
			}
		}
		return nil, invalid("job prerequisites form a cycle among %v", stuck)
	}
	return order, nil
}
