package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tamperdetect/database"
	"tamperdetect/types"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded comparisons",
		Args:  cobra.NoArgs,
		RunE:  a.runHistory,
	}

	cmd.Flags().IntP("limit", "n", 20, "Number of comparisons to list")
	cmd.Flags().String("reference", "", "Restrict statistics to this reference SHA-256")
	cmd.Flags().BoolP("json", "j", false, "Output in JSON format")

	return cmd
}

func (a *app) runHistory(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}
	refSHA, _ := cmd.Flags().GetString("reference")
	asJSON, _ := cmd.Flags().GetBool("json")

	db, err := database.InitDatabase(a.cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	records, err := database.RecentComparisons(db, limit)
	if err != nil {
		return err
	}
	stats, err := database.GetComparisonStats(db, refSHA)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Comparisons []types.ComparisonRecord  `json:"comparisons"`
			Stats       *database.ComparisonStats `json:"stats"`
		}{records, stats})
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No comparisons recorded")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tID\tCANDIDATE\tSIMILARITY\tREGIONS")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f%%\t%d\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"), r.ComparisonID, r.CandidateName, r.Score, len(r.Regions))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d comparisons, %d with differences, average %.2f%%, lowest %.2f%%\n",
		stats.TotalComparisons, stats.TamperedCount, stats.AverageScore, stats.LowestScore)
	return nil
}
