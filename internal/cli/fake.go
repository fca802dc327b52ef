package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/coverstats/internal/domain"
	"github.com/cloo-solutions/coverstats/internal/search"
)

func FakeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fake [date]",
		Short: "Seed fake log records into the search engine",
		Long: "Create the stats index for [date] (dd-mm-yyyy, default today) and index the canonical " +
			"sample records into it. Refused in production.",
		Args: cobra.MaximumNArgs(1),
		RunE: runFake,
	}
}

func runFake(cmd *cobra.Command, args []string) error {
	day, err := fakeDay(args, time.Now())
	if err != nil {
		return err
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if e.cfg.IsProduction() {
		return domain.ErrFakeDataProduction
	}

	n, err := search.NewFaker(e.search, e.logger).Seed(cmd.Context(), day)
	if err != nil {
		return fmt.Errorf("failed to seed fake data: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d records into %s\n", n, search.IndexName(day))
	return nil
}
