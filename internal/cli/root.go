package cli

import "github.com/spf13/cobra"

// NewRootCmd assembles the coverstatsd command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "coverstatsd",
		Short:         "Cover image statistics extraction",
		Long:          "coverstatsd extracts cover image lookup statistics from the search engine logs and serves them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(ExtractCmd())
	rootCmd.AddCommand(ExportCmd())
	rootCmd.AddCommand(CleanupCmd())
	rootCmd.AddCommand(FakeCmd())

	return rootCmd
}
