package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func CleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup [days]",
		Short: "Remove delivered entries",
		Long: "Delete entries that were delivered more than a day before now minus [days]. " +
			"Without an argument the cutoff is now.",
		Args: cobra.MaximumNArgs(1),
		RunE: runCleanup,
	}
}

func runCleanup(cmd *cobra.Command, args []string) error {
	compareDate, err := retentionCompareDate(args, time.Now())
	if err != nil {
		return err
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	svc, _, err := e.extraction(cmd.Context())
	if err != nil {
		return err
	}

	removed, err := svc.RemoveExtractedEntries(cmd.Context(), compareDate)
	if err != nil {
		return fmt.Errorf("failed to remove extracted entries: %w", err)
	}
	e.logger.Info("retention sweep finished", zap.Time("compare_date", compareDate), zap.Int64("removed", removed))
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", removed)
	return nil
}
