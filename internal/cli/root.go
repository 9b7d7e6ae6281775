// Package cli implements the LevelHabit command-line interface using Cobra.
// serve runs the API; the other commands act on the local store directly.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/levelhabit/levelhabit/internal/daemon"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "levelhabit",
	Short: "LevelHabit — turn daily habits into RPG progress",
	Long: `LevelHabit is a habit tracker with an RPG progression engine.
Completing habits earns experience, raises stats and streaks, and unlocks
achievements and jobs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnv(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with LEVELHABIT_* overrides")
}

// loadEnv reads a dotenv file. A missing file is not an error; variables
// already set in the environment win.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version
	daemon.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, badStyle.Render("Error:"), err)
		os.Exit(1)
	}
}
