package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/levelhabit/levelhabit/internal/app/engagement"
	"github.com/levelhabit/levelhabit/internal/daemon"
	"github.com/levelhabit/levelhabit/internal/domain"
)

func init() {
	statusCmd.Flags().StringVar(&statusUser, "user", "", "user id")
	statusCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(statusCmd)
}

var statusUser string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a user's level, stats, job and unlocks",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	d, err := daemon.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	eng, err := d.LocalEngine()
	if err != nil {
		return err
	}

	p, err := eng.Profile(ctx, statusUser)
	if err != nil {
		return err
	}
	habits, err := eng.ListHabits(ctx, statusUser, false)
	if err != nil {
		return err
	}
	achievements, err := eng.Unlocks().Achievements(ctx, statusUser)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderStatus(eng.Rules(), p, habits, achievements))
	return nil
}

func renderStatus(rules engagement.Rules, p *engagement.Profile, habits []domain.Habit, achievements []engagement.AchievementStatus) string {
	u := p.User
	var b strings.Builder

	b.WriteString(titleStyle.Render(u.DisplayName) + mutedStyle.Render(" · "+p.Job.Name) + "\n")
	b.WriteString(renderLevel(p.LevelProgress) + "\n")
	b.WriteString(labelValue("Total exp", u.TotalExp) + "   " +
		labelValue("Streak", fmt.Sprintf("%d (best %d)", u.CurrentStreak, u.MaxStreak)) + "\n")

	if next := p.LevelProgress.Level + 1; p.LevelProgress.ExpToNextLevel > 0 {
		days := rules.EstimateDaysToLevel(u.TotalExp, next, len(habits), domain.DifficultyNormal, u.CurrentStreak)
		if days > 0 {
			b.WriteString(mutedStyle.Render(fmt.Sprintf("~%d day(s) to Lv %d at %d normal habit(s) a day", days, next, max(len(habits), 1))) + "\n")
		}
	}

	var stats []string
	for _, s := range domain.AllStats {
		stats = append(stats, fmt.Sprintf("%-3s %s", s, renderLevel(p.StatProgress[s])))
	}

	unlocked := 0
	for _, a := range achievements {
		if a.IsUnlocked {
			unlocked++
		}
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		b.String(),
		panelStyle.Render(strings.Join(stats, "\n")),
		labelValue("Habits", len(habits))+"   "+labelValue("Achievements", fmt.Sprintf("%d/%d", unlocked, len(achievements))),
	)
	return body
}
