package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/coverstats/internal/database"
	"github.com/cloo-solutions/coverstats/internal/domain"
	"github.com/cloo-solutions/coverstats/internal/extraction"
)

func ExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract statistics for every day after the last watermark",
		Long:  "Run one extraction pass into the database, from the day after the last extracted day up to today",
		Args:  cobra.NoArgs,
		RunE:  runExtract,
	}

	cmd.Flags().Bool("migrate", false, "Apply database migrations before extracting")
	cmd.Flags().String("migrations", database.DefaultMigrationsSource, "Migration source URL")
	cmd.Flags().String("types", "", "Only store these outcome kinds (comma separated hit,nohit,undetermined)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runExtract(cmd *cobra.Command, args []string) error {
	typesRaw, _ := cmd.Flags().GetString("types")
	kinds, err := domain.ParseOutcomeKinds(typesRaw)
	if err != nil {
		return err
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := cmd.Context()

	if migrate, _ := cmd.Flags().GetBool("migrate"); migrate {
		source, _ := cmd.Flags().GetString("migrations")
		if err := database.Migrate(e.cfg.DatabaseURL, source, e.logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	svc, newTarget, err := e.extraction(ctx)
	if err != nil {
		return err
	}
	t := newTarget()
	t.SetAllowedKinds(kinds)

	result, err := svc.ExtractLatest(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to extract statistics: %w", err)
	}

	outputFormat, _ := cmd.Flags().GetString("output")
	return printResult(cmd, outputFormat, result)
}

func printResult(cmd *cobra.Command, outputFormat string, result extraction.Result) error {
	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		days := make([]map[string]interface{}, len(result.Days))
		for i, d := range result.Days {
			days[i] = map[string]interface{}{
				"day":           d.Day.Format(domain.DayFormat),
				"records":       d.Records,
				"entries_added": d.EntriesAdded,
				"duplicates":    d.Duplicates,
				"filtered":      d.Filtered,
				"malformed":     d.Malformed,
			}
		}
		jsonBytes, _ := json.MarshalIndent(map[string]interface{}{
			"entries_added": result.EntriesAdded,
			"days":          days,
		}, "", "  ")
		fmt.Fprintln(out, string(jsonBytes))
		return nil
	}

	if len(result.Days) == 0 {
		fmt.Fprintln(out, "Nothing to extract")
		return nil
	}
	for _, d := range result.Days {
		fmt.Fprintf(out, "%s: %d records, %d entries added, %d duplicates, %d filtered, %d malformed\n",
			d.Day.Format(domain.DayFormat), d.Records, d.EntriesAdded, d.Duplicates, d.Filtered, d.Malformed)
	}
	fmt.Fprintf(out, "Extracted %d days, %d entries added\n", len(result.Days), result.EntriesAdded)
	return nil
}
