package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"vipctl/internal/api"
	"vipctl/internal/app"
	"vipctl/internal/checkpoint"
	"vipctl/internal/config"
	"vipctl/internal/filter"
	"vipctl/internal/logger"
	"vipctl/internal/metrics"
	"vipctl/internal/progress"
	"vipctl/internal/storage"
	"vipctl/internal/worker"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// forceFastImportLimit is the remote file count below which existence probes are skipped
const forceFastImportLimit = 100

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

func newFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files <site> <directory>",
		Short: "Import files to a VIP Go site",
		Long: `Import a local WordPress uploads directory into a site's files service.

Files are counted first, then uploaded with bounded concurrency. Files with
unsupported extensions, unsafe names, intermediate image sizes or over 1GB are
skipped and listed in the import log.`,
		Args: cobra.ExactArgs(2),
		RunE: runFiles,
	}

	flags := cmd.Flags()
	flags.StringSliceP("types", "t", filter.DefaultTypes, "Types of files to import")
	flags.StringSliceP("extra-types", "e", nil, "Additional file types to allow that are not included in WordPress defaults")
	flags.IntP("parallel", "p", worker.DefaultPoolSize, "Number of parallel uploads")
	flags.BoolP("intermediate", "i", false, "Upload intermediate images")
	flags.BoolP("fast", "f", false, "Skip existing file check")
	flags.BoolP("dry-run", "d", false, "Check and list invalid files")
	flags.BoolP("skip-confirm", "y", false, "Skip the site confirmation prompt")
	flags.Int("retries", 3, "Maximum upload attempts per file")
	flags.Int("retry-backoff-ms", 500, "Initial retry backoff in milliseconds")
	flags.Bool("resume", false, "Skip files recorded as imported in the checkpoint")
	flags.String("checkpoint", "./import-checkpoint.db", "Checkpoint database file")
	flags.String("log-dir", os.TempDir(), "Directory for the import log")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.Bool("show-progress", true, "Show progress display")
	flags.String("backend", config.BackendFiles, "Upload backend (files/s3)")

	return cmd
}

func runFiles(cmd *cobra.Command, args []string) error {
	siteQuery, directory := args[0], args[1]

	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Reject a bad directory before any API call or prompt.
	if _, err := app.ValidateDir(directory, cfg.Import.UploadsRoot); err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			log.Info("Received shutdown signal, gracefully stopping...")
			cancel()
		case <-ctx.Done():
		}
	}()

	apiClient, err := api.NewClient(api.Config{
		URL:     cfg.API.URL,
		Token:   cfg.API.Token,
		Timeout: cfg.API.Timeout,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}

	site, err := apiClient.FindSite(ctx, siteQuery)
	if err != nil {
		return err
	}

	if !cfg.Import.SkipConfirm && !cfg.Import.DryRun {
		ok, err := confirmSite(site)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Import cancelled")
			return nil
		}
	}

	fast := cfg.Import.Fast
	if !fast {
		total, err := apiClient.FileCount(ctx, site)
		if err != nil {
			return err
		}
		if total < forceFastImportLimit {
			log.Info("Site has few files, skipping existence checks", zap.Int64("remote_files", total))
			fast = true
		}
	}

	metricsCollector := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metricsCollector.StartServer(ctx, cfg.MetricsAddr); err != nil {
				log.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	client, err := newStorageClient(ctx, cfg, apiClient, site, log)
	if err != nil {
		return err
	}

	var store checkpoint.Store
	if !cfg.Import.DryRun && cfg.Import.Checkpoint != "" {
		sqliteStore, err := checkpoint.NewSQLiteStore(cfg.Import.Checkpoint)
		if err != nil {
			return fmt.Errorf("failed to create checkpoint store: %w", err)
		}
		defer func() {
			if closeErr := sqliteStore.Close(); closeErr != nil {
				log.Error("Error closing checkpoint store", zap.Error(closeErr))
			}
		}()
		store = sqliteStore
	}

	importer := app.New(app.Options{
		SiteID: site.ID,
		Rules: filter.Rules{
			Types:             cfg.Import.Types,
			ExtraTypes:        cfg.Import.ExtraTypes,
			AllowIntermediate: cfg.Import.Intermediate,
			UploadsRoot:       cfg.Import.UploadsRoot,
		},
		Parallel: cfg.Import.Parallel,
		DryRun:   cfg.Import.DryRun,
		Worker: worker.Config{
			Fast:           fast,
			Retries:        cfg.Import.Retries,
			RetryBackoffMs: cfg.Import.RetryBackoffMs,
			Resume:         cfg.Import.Resume,
		},
		LogDir:       cfg.Import.LogDir,
		ShowProgress: cfg.Import.ShowProgress && progress.IsTerminalSupported(),
	}, client, store, metricsCollector, log)

	summary, err := importer.Run(ctx, directory)
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), summary)

	if store != nil && summary.Failed > 0 {
		if err := printFailures(cmd.OutOrStdout(), store, site.ID, cfg.Import.Checkpoint); err != nil {
			log.Warn("Failed to read failed files from checkpoint", zap.Error(err))
		}
	}
	return nil
}

// maxListedFailures caps how many failed paths are printed after a run
const maxListedFailures = 20

// printFailures lists files the checkpoint holds as failed for the site
func printFailures(out io.Writer, store checkpoint.Store, siteID int, checkpointPath string) error {
	total, err := store.CountByStatus(siteID, checkpoint.StatusFailed)
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}
	records, err := store.ListFailedFiles(siteID)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf(
		"%d files failed and are recorded in %s; rerun with --resume to retry only what is missing", total, checkpointPath)))
	for i, r := range records {
		if i == maxListedFailures {
			fmt.Fprintf(out, "  ... and %d more\n", len(records)-maxListedFailures)
			break
		}
		fmt.Fprintf(out, "  %s (%d attempts): %s\n", r.Path, r.Attempts, r.LastError)
	}
	return nil
}

// newStorageClient builds the upload target. The files backend needs the
// site's access token, so a failure to fetch it ends the run here.
func newStorageClient(ctx context.Context, cfg *config.Config, apiClient *api.Client, site *api.Site, log *zap.Logger) (storage.Client, error) {
	switch cfg.Files.Backend {
	case config.BackendS3:
		client, err := storage.NewMinIOClient(storage.S3Config(cfg.Files.S3))
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 client: %w", err)
		}
		return client, nil
	default:
		token, err := apiClient.FilesAccessToken(ctx, site)
		if err != nil {
			return nil, err
		}
		client, err := storage.NewFilesClient(storage.Config{
			Endpoint: cfg.Files.Endpoint,
			Secure:   cfg.Files.Secure,
		}, storage.Site{ID: site.ID, AccessToken: token}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create files client: %w", err)
		}
		return client, nil
	}
}

func confirmSite(site *api.Site) (bool, error) {
	var proceed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Importing files for site:").
				Description(site.String()).
				Affirmative("Import").
				Negative("Cancel").
				Value(&proceed),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	return proceed, nil
}

func printSummary(out io.Writer, summary *app.Summary) {
	fmt.Fprintln(out, headerStyle.Render("Skipped files"))
	labels := []struct {
		decision filter.Decision
		label    string
	}{
		{filter.SkippedExtension, "Unsupported extension"},
		{filter.SkippedIntermediate, "Intermediate images"},
		{filter.SkippedInvalidName, "Invalid filenames"},
		{filter.SkippedOversize, "Large files"},
		{filter.SkippedOutsideUploadsRoot, "Outside uploads"},
	}
	for _, l := range labels {
		fmt.Fprintf(out, "  %-22s %d\n", l.label+":", summary.Skipped[l.decision])
	}

	if summary.DryRun {
		fmt.Fprintf(out, "%d files would be imported (%s)\n", summary.Eligible, progress.FormatBytes(summary.EligibleBytes))
	} else if summary.Resumed > 0 {
		fmt.Fprintf(out, "Skipped %d files imported by an earlier run\n", summary.Resumed)
	}
	if summary.Errors > 0 {
		fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("%d entries could not be read, see the log output", summary.Errors)))
	}
	fmt.Fprintf(out, "Import log: %s\n", summary.LogPath)
}
