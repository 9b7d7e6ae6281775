package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/levelhabit/levelhabit/internal/domain"
	"github.com/levelhabit/levelhabit/internal/infra/catalog"
)

func init() {
	catalogCmd.PersistentFlags().StringVar(&catalogFile, "file", "", "catalog TOML file (default: embedded catalog)")
	catalogCmd.AddCommand(catalogValidateCmd, catalogJobsCmd, catalogAchievementsCmd)
	rootCmd.AddCommand(catalogCmd)
}

var catalogFile string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect or validate the achievement and job catalog",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check ids, references and the job dependency graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := openCatalog()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s catalog %s: %d achievements, %d jobs, no cycles\n",
			goodStyle.Render("ok"), cat.Version, len(cat.Achievements), len(cat.Jobs))
		return nil
	},
}

var catalogJobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs in unlock order",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := openCatalog()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTIER\tREQUIRES")
		for _, j := range cat.JobOrder() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", j.ID, j.Name, j.Tier, describeRequirements(j.Requirements))
		}
		return w.Flush()
	},
}

var catalogAchievementsCmd = &cobra.Command{
	Use:   "achievements",
	Short: "List achievements",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := openCatalog()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tTARGET\tRARITY\tEXP")
		for _, a := range cat.Achievements {
			target := fmt.Sprint(a.TargetValue)
			if a.TargetStat != "" {
				target = fmt.Sprintf("%s %d", a.TargetStat, a.TargetValue)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", a.ID, a.Type, target, a.Rarity, a.ExpReward)
		}
		return w.Flush()
	},
}

func openCatalog() (*catalog.Catalog, error) {
	if catalogFile != "" {
		return catalog.Load(catalogFile)
	}
	return catalog.Default()
}

// describeRequirements renders requirements in evaluation order.
func describeRequirements(req domain.Requirements) string {
	if req.IsEmpty() {
		return "-"
	}
	var parts []string
	if req.Level > 0 {
		parts = append(parts, fmt.Sprintf("Lv %d", req.Level))
	}
	for _, s := range domain.AllStats {
		if n := req.Stats[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", s, n))
		}
	}
	parts = append(parts, req.Jobs...)
	for _, a := range req.Achievements {
		parts = append(parts, "★"+a)
	}
	return strings.Join(parts, ", ")
}
