package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloo-solutions/coverstats/internal/api/handlers"
	"github.com/cloo-solutions/coverstats/internal/api/middleware"
	"github.com/cloo-solutions/coverstats/internal/database"
	"github.com/cloo-solutions/coverstats/internal/jobs"
	"github.com/cloo-solutions/coverstats/internal/repository"
	"github.com/cloo-solutions/coverstats/internal/server"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read API and the extraction scheduler",
		Long: "Start the read API and run extraction followed by the retention sweep " +
			"on the configured schedule",
		RunE: runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides COVERSTATS_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-worker", false, "Serve the API without the extraction scheduler")
	cmd.Flags().String("migrations", database.DefaultMigrationsSource, "Migration source URL")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	logger := e.logger

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		e.cfg.Port = port
	}

	pool, err := e.db(ctx)
	if err != nil {
		return err
	}

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate {
		source, _ := cmd.Flags().GetString("migrations")
		if err := database.Migrate(e.cfg.DatabaseURL, source, logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	var worker *jobs.Worker
	if noWorker, _ := cmd.Flags().GetBool("no-worker"); !noWorker {
		schedule, err := jobs.ParseSchedule(e.cfg.ExtractSchedule)
		if err != nil {
			return err
		}
		svc, newTarget, err := e.extraction(ctx)
		if err != nil {
			return err
		}
		job := jobs.NewExtractionJob(svc, newTarget, e.cfg.RetentionDays, logger)
		worker = jobs.NewWorker(job, schedule, logger)
		go worker.Start(ctx)
		logger.Info("extraction worker started", zap.String("schedule", e.cfg.ExtractSchedule))
	}

	var validator middleware.AuthValidator
	if len(e.cfg.APITokens) > 0 {
		validator = middleware.StaticTokens(e.cfg.APITokens)
	} else {
		logger.Warn("no API tokens configured, read API is unauthenticated")
	}

	entryHandler := handlers.NewEntryHandler(repository.NewEntryRepository(pool), logger)
	router := server.NewRouter(server.RouterConfig{
		AuthValidator:    validator,
		EntryHandler:     entryHandler,
		WatermarkHandler: handlers.NewWatermarkHandler(repository.NewWatermarkRepository(pool)),
		Logger:           logger,
	})

	srv := &http.Server{
		Addr:              ":" + e.cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("port", e.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case <-quit:
		logger.Info("shutting down")
	case runErr = <-serverErr:
		logger.Error("server failed", zap.Error(runErr))
	}

	// an extraction in flight is abandoned; its day is rescanned on the next run
	cancel()
	if worker != nil {
		worker.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	entryHandler.Wait()

	if runErr != nil {
		return fmt.Errorf("server failed: %w", runErr)
	}
	logger.Info("server exited")
	return nil
}
