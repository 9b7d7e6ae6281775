package cli

import (
	"fmt"
	"strings"

	"github.com/levelhabit/levelhabit/internal/app/engagement"
)

// ─── Progress Bar ───────────────────────────────────────────────────────────
// Shows: [████████████░░░░░░░░]  42% │ 12 / 28 exp

const barWidth = 20 // Characters for the progress bar

// renderBar draws a fixed-width bar for a 0..1 fraction.
func renderBar(frac float64) string {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * float64(barWidth))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled) + "]"
}

// renderLevel formats a level with its progress toward the next one.
func renderLevel(lp engagement.LevelProgress) string {
	if lp.ExpToNextLevel == 0 {
		return fmt.Sprintf("Lv %2d %s %s", lp.Level, renderBar(1), goldStyle.Render("MAX"))
	}
	return fmt.Sprintf("Lv %2d %s %3.0f%% │ %d / %d exp",
		lp.Level, renderBar(lp.Progress), lp.Progress*100, lp.ExpIntoLevel, lp.ExpToNextLevel)
}
