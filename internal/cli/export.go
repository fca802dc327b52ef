package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/coverstats/internal/domain"
	"github.com/cloo-solutions/coverstats/internal/storage"
	"github.com/cloo-solutions/coverstats/internal/target"
)

func ExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export statistics for a day or day range to a CSV file",
		Long: "Extract the inclusive day range --from..--to (dd-mm-yyyy) straight from the search engine " +
			"into a CSV file. The database is neither read nor written.",
		Example: "  coverstatsd export --from 07-12-2019\n" +
			"  coverstatsd export --from 01-12-2019 --to 07-12-2019 --file december.csv --types hit,nohit",
		Args: cobra.NoArgs,
		RunE: runExport,
	}

	cmd.Flags().String("from", "", "First day to export (dd-mm-yyyy)")
	cmd.Flags().String("to", "", "Last day to export (dd-mm-yyyy), defaults to --from")
	cmd.Flags().StringP("file", "f", "", "Output file, defaults to a name derived from the dates")
	cmd.Flags().String("types", "", "Only export these outcome kinds (comma separated hit,nohit,undetermined)")
	cmd.Flags().Bool("upload", false, "Upload the export to S3 and print a download URL")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	fromRaw, _ := cmd.Flags().GetString("from")
	toRaw, _ := cmd.Flags().GetString("to")
	from, to, err := parseDayRange(fromRaw, toRaw)
	if err != nil {
		return err
	}

	typesRaw, _ := cmd.Flags().GetString("types")
	kinds, err := domain.ParseOutcomeKinds(typesRaw)
	if err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = defaultExportName(from, to, time.Now())
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := cmd.Context()

	upload, _ := cmd.Flags().GetBool("upload")
	var s3Client *storage.S3Client
	if upload {
		if !e.cfg.HasS3() {
			return fmt.Errorf("--upload requires COVERSTATS_S3_ENDPOINT and S3 credentials")
		}
		s3Client, err = storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        e.cfg.S3Endpoint,
			Region:          e.cfg.S3Region,
			AccessKeyID:     e.cfg.S3AccessKey,
			SecretAccessKey: e.cfg.S3SecretKey,
			Bucket:          e.cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
	}

	svc, err := e.exporter(ctx)
	if err != nil {
		return err
	}

	t := target.NewFileTarget(path)
	t.SetAllowedKinds(kinds)
	result, err := svc.ExtractRange(ctx, from, to, t)
	if err != nil {
		return fmt.Errorf("failed to export statistics: %w", err)
	}

	out := cmd.OutOrStdout()
	abs, _ := filepath.Abs(t.Path())
	fmt.Fprintf(out, "Exported %d rows for %d days to %s\n", t.Rows(), len(result.Days), abs)

	if s3Client == nil {
		return nil
	}
	published, err := s3Client.Publish(ctx, storage.Export{Path: t.Path(), From: from, To: to, Rows: t.Rows()})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Uploaded to %s (%d bytes)\nDownload URL (valid until %s): %s\n",
		published.Key, published.Size, published.ExpiresAt.Format("02-01-2006 15:04"), published.DownloadURL)
	return nil
}
