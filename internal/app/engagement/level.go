package engagement

import (
	"fmt"
	"math"
)

// Curve is an exponential level curve: the step from level L to L+1
// costs floor(Base * Growth^(L-1)) exp, up to MaxLevel.
type Curve struct {
	Base     float64 `toml:"base" json:"base"`
	Growth   float64 `toml:"growth" json:"growth"`
	MaxLevel int     `toml:"max_level" json:"maxLevel"`
}

// LevelProgress is the result of deriving a level from an exp total.
type LevelProgress struct {
	Level          int     `json:"level"`
	ExpIntoLevel   int64   `json:"expIntoLevel"`
	ExpToNextLevel int64   `json:"expToNextLevel"` // 0 at max level
	Progress       float64 `json:"progress"`       // 0.0–1.0
}

func (c Curve) validate() error {
	if c.Base < 1 {
		return fmt.Errorf("base must be >= 1, got %v", c.Base)
	}
	if c.Growth < 1 {
		return fmt.Errorf("growth must be >= 1, got %v", c.Growth)
	}
	if c.MaxLevel < 2 {
		return fmt.Errorf("max_level must be >= 2, got %d", c.MaxLevel)
	}
	return nil
}

// ExpForNextLevel returns the exp needed to go from level to level+1.
func (c Curve) ExpForNextLevel(level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(math.Floor(c.Base * math.Pow(c.Growth, float64(level-1))))
}

// TotalExpForLevel returns the cumulative exp at which level is reached.
func (c Curve) TotalExpForLevel(level int) int64 {
	if level > c.MaxLevel {
		level = c.MaxLevel
	}
	var total int64
	for l := 1; l < level; l++ {
		total += c.ExpForNextLevel(l)
	}
	return total
}

// LevelFromExp iterates upward from level 1 until the next step would
// exceed totalExp or the cap is reached.
func (c Curve) LevelFromExp(totalExp int64) LevelProgress {
	if totalExp < 0 {
		totalExp = 0
	}
	level := 1
	var accumulated int64
	for level < c.MaxLevel {
		need := c.ExpForNextLevel(level)
		if accumulated+need > totalExp {
			break
		}
		accumulated += need
		level++
	}

	lp := LevelProgress{Level: level, ExpIntoLevel: totalExp - accumulated}
	if level >= c.MaxLevel {
		lp.Progress = 1
		return lp
	}
	lp.ExpToNextLevel = c.ExpForNextLevel(level)
	lp.Progress = float64(lp.ExpIntoLevel) / float64(lp.ExpToNextLevel)
	return lp
}
