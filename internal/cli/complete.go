package cli

import (
	"fmt"
	"io"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/levelhabit/levelhabit/internal/app/engagement"
	"github.com/levelhabit/levelhabit/internal/daemon"
)

func init() {
	completeCmd.Flags().StringVar(&completeUser, "user", "", "user id")
	completeCmd.Flags().StringVar(&completeHabit, "habit", "", "habit id")
	completeCmd.Flags().StringVar(&completeDate, "date", "", "completion date YYYY-MM-DD (default: today in the user's timezone)")
	completeCmd.Flags().StringVar(&completeNote, "note", "", "optional note")
	completeCmd.MarkFlagRequired("user")
	completeCmd.MarkFlagRequired("habit")
	rootCmd.AddCommand(completeCmd)
}

var (
	completeUser  string
	completeHabit string
	completeDate  string
	completeNote  string
)

var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "Record a habit completion directly against the local store",
	RunE:  runComplete,
}

func runComplete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	req := engagement.CompletionRequest{UserID: completeUser, HabitID: completeHabit, Note: completeNote}
	if completeDate != "" {
		d, err := civil.ParseDate(completeDate)
		if err != nil {
			return fmt.Errorf("--date: expected YYYY-MM-DD: %w", err)
		}
		req.Date = &d
	}

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

	res, err := eng.CompleteHabit(ctx, req)
	if err != nil {
		return err
	}
	printCompletion(cmd.OutOrStdout(), res)
	return nil
}

func printCompletion(w io.Writer, res *engagement.CompletionResult) {
	fmt.Fprintf(w, "%s %s on %s\n", goodStyle.Render("Completed"), res.Habit.Name, res.Record.CompletedDate)
	fmt.Fprintf(w, "  +%d exp · streak %d (%s) · %s +%d\n",
		res.ExpGained, res.NewStreak, res.StreakKind, res.StatType, res.ExpGained)
	if res.LevelUp {
		fmt.Fprintf(w, "  %s Lv %d\n", goldStyle.Render("LEVEL UP"), res.NewLevel)
	}
	if res.StatLevelUp {
		fmt.Fprintf(w, "  %s %s Lv %d\n", goldStyle.Render("STAT UP"), res.StatType, res.NewStatLevel)
	}
	if res.Unlocks == nil {
		return
	}
	for _, a := range res.Unlocks.Achievements {
		fmt.Fprintf(w, "  %s %s (+%d exp)\n", unlockedMark(true), a.Name, a.ExpReward)
	}
	for _, j := range res.Unlocks.Jobs {
		fmt.Fprintf(w, "  %s job unlocked: %s\n", unlockedMark(true), j.Name)
	}
}
