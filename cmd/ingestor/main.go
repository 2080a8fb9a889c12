package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/samirrijal/parkpass/internal/adapters/httpsource"
	"github.com/samirrijal/parkpass/internal/adapters/postgres"
	"github.com/samirrijal/parkpass/internal/core/domain"
	"github.com/samirrijal/parkpass/internal/core/usecases"
	"github.com/samirrijal/parkpass/internal/pkg/config"
	"github.com/samirrijal/parkpass/internal/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "ingestor",
	Short: "Load the park catalog into Postgres",
	Long: `ingestor copies the park datasets (park list, amenity and facility
lookups, park and trail topologies, per-park detail geometry) from the
static park data host into the database read by the Postgres source.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch every dataset and replace the stored copy",
	RunE:  runIngest,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print stored row counts",
	RunE:  runStatus,
}

func init() {
	runCmd.Flags().String("base-url", "", "park data host (defaults to source.base_url)")
	runCmd.Flags().Bool("geometry", true, "also fetch per-park detail geometry")
	runCmd.Flags().Int("concurrency", 4, "parallel geometry downloads")
	runCmd.Flags().StringSlice("categories", nil, "geometry categories to fetch (default all)")
	runCmd.Flags().Duration("timeout", 30*time.Minute, "overall deadline")

	rootCmd.AddCommand(runCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(ctx context.Context) (*config.Config, *postgres.DB, error) {
	cfg, err := config.Load("parkpass-ingestor")
	if err != nil {
		return nil, nil, err
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("db: %w", err)
	}
	return cfg, db, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cfg, db, err := setup(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	baseURL, _ := cmd.Flags().GetString("base-url")
	if baseURL == "" {
		baseURL = cfg.Source.BaseURL
	}
	opts := usecases.IngestOptions{}
	opts.Geometry, _ = cmd.Flags().GetBool("geometry")
	opts.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	names, _ := cmd.Flags().GetStringSlice("categories")
	for _, n := range names {
		cat, err := domain.ParseCategory(n)
		if err != nil {
			return err
		}
		opts.Categories = append(opts.Categories, cat)
	}

	slog.Info("ingestion starting", "base_url", baseURL, "geometry", opts.Geometry)
	start := time.Now()

	src := httpsource.New(baseURL, cfg.Source.TimeoutDuration())
	report, err := usecases.Ingest(ctx, src, postgres.NewParkRepo(db), opts, slog.Default())
	if err != nil {
		return err
	}

	slog.Info("ingestion complete",
		"parks", report.Parks,
		"topologies", report.Topologies,
		"geometries", report.Geometries,
		"geometry_missing", report.GeometryMissing,
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, db, err := setup(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	counts, err := postgres.NewParkRepo(db).Counts(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d\n", k, counts[k])
	}
	return nil
}
