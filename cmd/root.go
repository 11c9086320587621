package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wegman-software/lasstat-go/internal/config"
	"github.com/wegman-software/lasstat-go/internal/logger"
)

var (
	cfg        = config.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "lasstat",
	Short: "Resource-aware batch statistics for LAS point clouds",
	Long: `lasstat extracts per-file statistics from batches of LAS point cloud files.

Features:
  - Worker count planned from available RAM and file sizes
  - CRS and linear unit detection from GeoTIFF keys, WKT and coordinates
  - Optional convex hull footprints with memory-safe decimation
  - Return and classification histograms
  - Parquet and YAML outputs, optional PostGIS catalog`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile == "" {
			return nil
		}
		return applyConfigFile(cmd.Flags(), configFile)
	},
}

// withLogger builds the logger from the resolved configuration and hands
// it to the command body
func withLogger(fn func(log *zap.Logger, cmd *cobra.Command, args []string)) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		log, err := logger.New(cfg.Verbose, cfg.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = log.Sync() }()
		fn(log, cmd, args)
	}
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (flags given on the command line take precedence)")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel workers (0 = plan from available RAM)")
	rootCmd.PersistentFlags().Float64Var(&cfg.MaxFileSizeGB, "max-file-size-gb", cfg.MaxFileSizeGB, "Reject batches containing a file larger than this")

	// Logging and metrics flags
	rootCmd.PersistentFlags().StringVar(&cfg.LogFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval for system metrics logging (0 disables)")
}

// applyConfigFile overlays a YAML file onto cfg, then restores every flag
// set explicitly on the command line
func applyConfigFile(flags *pflag.FlagSet, path string) error {
	explicit := make(map[*pflag.Flag]string)
	flags.Visit(func(f *pflag.Flag) {
		explicit[f] = f.Value.String()
	})

	if err := cfg.LoadFile(path); err != nil {
		return err
	}

	for f, v := range explicit {
		if err := f.Value.Set(v); err != nil {
			return fmt.Errorf("failed to restore --%s: %w", f.Name, err)
		}
	}
	return nil
}

func exitWithError(log *zap.Logger, msg string, err error) {
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	_ = log.Sync()
	os.Exit(1)
}
