package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/lasstat-go/internal/budget"
	"github.com/wegman-software/lasstat-go/internal/pipeline"
)

var planCmd = &cobra.Command{
	Use:   "plan <dir|file.las>...",
	Short: "Show the worker plan for a batch without processing it",
	Long: `Validate a batch and print the resource plan scan would use: average file
size, estimated RAM, available RAM and worker count. Files over
--max-file-size-gb are listed and the command exits non-zero.`,
	Args: cobra.MinimumNArgs(1),
	Run:  withLogger(runPlan),
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().BoolVarP(&cfg.DetailedGeometry, "geometry", "g", false, "Plan for footprint computation")
	planCmd.Flags().BoolVar(&cfg.LowRAM, "low-ram", false, "Plan for low-RAM mode")
}

func runPlan(log *zap.Logger, cmd *cobra.Command, args []string) {
	if err := cfg.Validate(); err != nil {
		exitWithError(log, "invalid configuration", err)
	}

	files, err := collectFiles(args)
	if err != nil {
		exitWithError(log, "no input", err)
	}

	ecfg := pipeline.EngineConfigFrom(cfg)
	ecfg.Logger = log
	plan, failures, err := pipeline.NewEngine(ecfg).Preflight(files)

	printPlan(plan)

	if err != nil {
		fmt.Println("\nRejected files:")
		for _, f := range failures {
			fmt.Printf("  %-40s %v\n", f.Name, f.Err)
		}
		exitWithError(log, "batch would be rejected", err)
	}
}

func printPlan(p budget.Plan) {
	fmt.Printf("Files:            %d\n", p.Files)
	fmt.Printf("Avg file size:    %.1f MB\n", p.AvgFileSizeMB)
	fmt.Printf("Estimated RAM:    %.2f GB\n", p.TotalRAMGB)
	fmt.Printf("Available RAM:    %.2f GB\n", p.AvailableRAMGB)

	mode := "statistics"
	if p.Geometry {
		mode = "statistics + footprints"
	}
	fmt.Printf("Mode:             %s (ceiling %d workers)\n", mode, budget.Ceiling(p.Geometry))

	if p.Override {
		fmt.Printf("Workers:          %d (override)\n", p.Workers)
	} else {
		fmt.Printf("Workers:          %d\n", p.Workers)
	}

	if p.Geometry && p.AvgFileSizeMB > 0 {
		d := budget.SafeDecimation(p.AvgFileSizeMB, p.AvailableRAMGB)
		if cfg.LowRAM {
			d = budget.MinDecimation
		}
		fmt.Printf("Footprint sample: %.1f%% of points\n", d*100)
	}
}
