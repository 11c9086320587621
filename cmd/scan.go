package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/lasstat-go/internal/catalog"
	"github.com/wegman-software/lasstat-go/internal/export"
	"github.com/wegman-software/lasstat-go/internal/metrics"
	"github.com/wegman-software/lasstat-go/internal/pipeline"
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir|file.las>...",
	Short: "Extract statistics from a batch of LAS files",
	Long: `Process a batch of LAS files in parallel and write per-file statistics.

Directories are scanned for *.las and *.LAS files (not recursively). The
worker count is planned from available RAM unless --workers is given.

Outputs (relative to --output-dir):
  - results.parquet  per-file statistics, footprint as WKB
  - summary.yaml     plan, aggregate statistics, per-file listing

Press Ctrl+C to cancel; files already finished are still written.`,
	Args: cobra.MinimumNArgs(1),
	Run:  withLogger(runScan),
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().BoolVarP(&cfg.DetailedGeometry, "geometry", "g", false, "Compute convex hull footprints (reads every point)")
	scanCmd.Flags().BoolVar(&cfg.ExtractClassifications, "classes", false, "Count returns and classification codes")
	scanCmd.Flags().BoolVar(&cfg.LowRAM, "low-ram", false, "Always decimate points for footprints")

	scanCmd.Flags().StringVarP(&cfg.OutputDir, "output-dir", "o", cfg.OutputDir, "Directory for output files")
	scanCmd.Flags().StringVar(&cfg.ParquetFile, "parquet", cfg.ParquetFile, "Parquet output file name (empty to skip)")
	scanCmd.Flags().StringVar(&cfg.SummaryFile, "summary", cfg.SummaryFile, "YAML summary file name (empty to skip)")
	scanCmd.Flags().StringVar(&cfg.MetricsFile, "metrics-file", "", "Write batch metrics in node_exporter textfile format")

	// Catalog flags
	scanCmd.Flags().BoolVar(&cfg.LoadCatalog, "load-catalog", false, "Load results into a PostGIS catalog table")
	scanCmd.Flags().StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	scanCmd.Flags().IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	scanCmd.Flags().StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	scanCmd.Flags().StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	scanCmd.Flags().StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	scanCmd.Flags().StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema")
	scanCmd.Flags().StringVar(&cfg.DBTable, "db-table", cfg.DBTable, "Catalog table name")
}

func runScan(log *zap.Logger, cmd *cobra.Command, args []string) {
	if err := cfg.Validate(); err != nil {
		exitWithError(log, "invalid configuration", err)
	}

	files, err := collectFiles(args)
	if err != nil {
		exitWithError(log, "no input", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var collector *metrics.Collector
	if cfg.MetricsInterval > 0 {
		collector = metrics.NewCollector(cfg.MetricsInterval, log)
		go collector.Start(ctx)
		log.Info("System metrics collection started",
			zap.Duration("interval", cfg.MetricsInterval))
	}

	batchMetrics := metrics.NewBatchMetrics()

	ecfg := pipeline.EngineConfigFrom(cfg)
	ecfg.Logger = log
	ecfg.Metrics = batchMetrics
	ecfg.Progress = progressLogger(log, collector)
	engine := pipeline.NewEngine(ecfg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info("Received signal, cancelling batch", zap.String("signal", sig.String()))
			engine.Cancel()
		case <-ctx.Done():
		}
	}()

	log.Info("Starting batch",
		zap.Int("files", len(files)),
		zap.Bool("geometry", cfg.DetailedGeometry),
		zap.Bool("classes", cfg.ExtractClassifications))

	report, err := engine.Run(ctx, files)
	if errors.Is(err, pipeline.ErrValidation) {
		for _, r := range report.Results {
			if !errors.Is(r.Err, pipeline.ErrValidation) {
				fmt.Printf("  %-40s %v\n", r.Name, r.Err)
			}
		}
		exitWithError(log, "batch rejected", err)
	}
	if err != nil {
		exitWithError(log, "batch failed", err)
	}

	printReport(report)

	if err := writeOutputs(log, report); err != nil {
		exitWithError(log, "failed to write outputs", err)
	}

	if cfg.MetricsFile != "" {
		if err := batchMetrics.WriteTextfile(cfg.MetricsFile); err != nil {
			exitWithError(log, "failed to write metrics", err)
		}
	}

	if cfg.LoadCatalog {
		if err := loadCatalog(log, report); err != nil {
			exitWithError(log, "failed to load catalog", err)
		}
	}

	if report.State == pipeline.StateCancelled {
		_ = log.Sync()
		os.Exit(130)
	}
}

// progressLogger logs finished files at info level and sub-steps at debug
func progressLogger(log *zap.Logger, collector *metrics.Collector) pipeline.ProgressFunc {
	return func(p pipeline.Progress) {
		if p.Kind == pipeline.ProgressStep {
			log.Debug(p.Message, zap.String("file", p.File))
			return
		}

		fields := []zap.Field{
			zap.String("file", p.File),
			zap.String("progress", fmt.Sprintf("%d/%d", p.Completed, p.Total)),
			zap.String("pct", fmt.Sprintf("%.1f%%", p.Percentage())),
			zap.String("data", pipeline.FormatBytes(p.BytesDone)+" / "+pipeline.FormatBytes(p.BytesTotal)),
			zap.String("eta", pipeline.FormatETA(p.ETA)),
		}
		if collector != nil {
			fields = append(fields, zap.Float64("read_mbps", collector.ReadRate()))
		}
		log.Info("File finished", fields...)
	}
}

func printReport(report *pipeline.Report) {
	st := report.Stats

	fmt.Printf("\nBatch %s %s in %s\n", report.BatchID, report.State, report.Elapsed.Round(time.Millisecond))
	fmt.Printf("  Workers:        %d (%.1f GB available)\n", report.Plan.Workers, report.Plan.AvailableRAMGB)
	fmt.Printf("  Files:          %d valid, %d failed, %d total\n", st.ValidFiles, st.FailedFiles, st.TotalFiles)
	fmt.Printf("  Points:         %s\n", pipeline.FormatCount(st.TotalPoints))
	fmt.Printf("  Data:           %.1f MB\n", st.TotalSizeMB)
	fmt.Printf("  Avg density:    %.2f pts/m²\n", st.AvgDensity)
	if st.TotalFootprintAcres > 0 {
		fmt.Printf("  Footprint:      %.2f acres\n", st.TotalFootprintAcres)
	}
	if st.ValidFiles > 0 {
		fmt.Printf("  Bounds:         (%.2f, %.2f) - (%.2f, %.2f)\n", st.Min[0], st.Min[1], st.Max[0], st.Max[1])
	}

	for i := range report.Results {
		r := &report.Results[i]
		if !r.OK() {
			fmt.Printf("  FAILED %-33s %v\n", r.Name, r.Err)
		}
	}
}

func writeOutputs(log *zap.Logger, report *pipeline.Report) error {
	out := export.Outputs{
		Parquet: cfg.OutputPath(cfg.ParquetFile),
		Summary: cfg.OutputPath(cfg.SummaryFile),
	}
	if out.Parquet == "" && out.Summary == "" {
		return nil
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// the batch context may already be cancelled; outputs are still written
	if err := export.WriteAll(context.Background(), out, report); err != nil {
		return err
	}

	log.Info("Outputs written",
		zap.String("parquet", out.Parquet),
		zap.String("summary", out.Summary))
	return nil
}

func loadCatalog(log *zap.Logger, report *pipeline.Report) error {
	ctx := context.Background()

	store, err := catalog.NewStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureTable(ctx); err != nil {
		return err
	}
	_, err = store.Load(ctx, report.BatchID, report.Results)
	return err
}
