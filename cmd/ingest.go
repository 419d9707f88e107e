package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/jobradar/lmi/internal/app"
	"github.com/jobradar/lmi/internal/config"
)

var (
	ingestLocation string
	ingestMaxJobs  int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [search terms...]",
	Short: "Fetch and index job postings from configured boards",
	Long: `Fetch job postings matching the given search terms, deduplicate
them, and index them for retrieval. Embeddings are generated during
ingestion, so runs are paced to respect API rate limits.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runIngest(args)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestLocation, "location", "", "location filter (Adzuna country code)")
	ingestCmd.Flags().IntVar(&ingestMaxJobs, "max-jobs", 50, "maximum postings per source per term")
}

func runIngest(searchTerms []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	// Serialize ingestion runs across processes so a cron overlap cannot
	// double-fetch the boards.
	lockPath := filepath.Join(os.TempDir(), "lmi-ingest.lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring ingest lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another ingestion run is in progress (lock: %s)", lockPath)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	stats, err := a.Ingest.Run(ctx, searchTerms, ingestLocation, ingestMaxJobs)
	if err != nil {
		return fmt.Errorf("ingestion run: %w", err)
	}

	fmt.Printf("Fetched:  %d\n", stats.JobsFetched)
	fmt.Printf("New:      %d\n", stats.JobsNew)
	fmt.Printf("Updated:  %d\n", stats.JobsUpdated)
	fmt.Printf("Skipped:  %d\n", stats.JobsSkipped)
	fmt.Printf("Chunks:   %d\n", stats.ChunksCreated)
	fmt.Printf("Errors:   %d\n", stats.Errors)
	return nil
}
