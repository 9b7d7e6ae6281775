package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/levelhabit/levelhabit/internal/daemon"
)

func init() {
	rootCmd.AddCommand(seedCmd)
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the database and write the catalog into it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := daemon.LoadConfig()
		if err != nil {
			return err
		}
		d, err := daemon.OpenStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		jobs, err := d.DB.ListJobs(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded catalog %s into %s (%d achievements, %d jobs)\n",
			d.Catalog.Version, daemon.Home(), len(d.Catalog.Achievements), len(jobs))
		return nil
	},
}
