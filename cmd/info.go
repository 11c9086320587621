package cmd

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/lasstat-go/internal/crs"
	"github.com/wegman-software/lasstat-go/internal/las"
	"github.com/wegman-software/lasstat-go/internal/pipeline"
)

var infoCmd = &cobra.Command{
	Use:   "info <file.las>",
	Short: "Print header, CRS and statistics for one LAS file",
	Args:  cobra.ExactArgs(1),
	Run:   withLogger(runInfo),
}

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().BoolVarP(&cfg.DetailedGeometry, "geometry", "g", false, "Compute the footprint and print it as WKT")
	infoCmd.Flags().BoolVar(&cfg.ExtractClassifications, "classes", false, "Count returns and classification codes")
	infoCmd.Flags().BoolVar(&cfg.LowRAM, "low-ram", false, "Always decimate points for the footprint")
}

func runInfo(log *zap.Logger, cmd *cobra.Command, args []string) {
	path := args[0]

	f, err := las.Open(path)
	if err != nil {
		exitWithError(log, "failed to open file", err)
	}
	h := f.Header
	vlrs := f.VLRs
	f.Close()

	ecfg := pipeline.EngineConfigFrom(cfg)
	ecfg.Logger = log
	ecfg.Workers = 1
	report, err := pipeline.NewEngine(ecfg).Run(context.Background(), []string{path})
	if err != nil {
		exitWithError(log, "failed to process file", err)
	}
	r := &report.Results[0]
	if !r.OK() {
		exitWithError(log, "failed to process file", r.Err)
	}

	fmt.Printf("File:             %s\n", r.Name)
	fmt.Printf("LAS version:      %s (point format %d, %d bytes/point)\n", r.Version, h.PointFormat, h.RecordLength)
	fmt.Printf("Generated by:     %s / %s\n", h.Software, h.SystemID)
	if h.CreationYear > 0 {
		fmt.Printf("Created:          day %d of %d\n", h.CreationDay, h.CreationYear)
	}
	fmt.Printf("Points:           %d (%s)\n", r.PointCount, pipeline.FormatCount(r.PointCount))
	fmt.Printf("File size:        %s\n", pipeline.FormatBytes(r.FileSize))
	fmt.Printf("Scale:            %g %g %g\n", r.Scale[0], r.Scale[1], r.Scale[2])
	fmt.Printf("Offset:           %g %g %g\n", r.Offset[0], r.Offset[1], r.Offset[2])
	fmt.Printf("Min:              %.3f %.3f %.3f\n", r.Min[0], r.Min[1], r.Min[2])
	fmt.Printf("Max:              %.3f %.3f %.3f\n", r.Max[0], r.Max[1], r.Max[2])

	if r.CRS != "" {
		fmt.Printf("CRS:              %s (from %s)\n", crs.HorizontalName(r.CRS), r.CRSSource)
	} else {
		fmt.Printf("CRS:              not detected\n")
	}
	if r.VerticalDatum != "" {
		fmt.Printf("Vertical datum:   %s\n", r.VerticalDatum)
	}
	if r.EPSG > 0 {
		fmt.Printf("EPSG:             %d\n", r.EPSG)
	}
	fmt.Printf("Units:            %s\n", r.Unit)
	fmt.Printf("Density:          %.2f pts/m²\n", r.Density)

	if len(vlrs) > 0 {
		fmt.Printf("Records:\n")
		for _, v := range vlrs {
			fmt.Printf("  %-16s %6d  %s\n", v.UserID, v.RecordID, v.Description)
		}
	}

	if r.Returns != nil {
		fmt.Printf("Returns:\n")
		for i, n := range r.Returns {
			fmt.Printf("  %d: %d\n", i+1, n)
		}
	}
	if r.Classes != nil {
		fmt.Printf("Classes:\n")
		for i, n := range r.Classes {
			if n > 0 {
				fmt.Printf("  %d %-26s %d\n", i, pipeline.ClassNames[i], n)
			}
		}
	}

	if r.FootprintAcres != nil {
		fmt.Printf("Footprint:        %.2f acres (%.1f%% of points)\n", *r.FootprintAcres, r.Decimation*100)
		fmt.Println(wkt.MarshalString(orb.Polygon{closeRing(r.Footprint)}))
	} else if cfg.DetailedGeometry {
		fmt.Printf("Footprint:        not computed\n")
	}
}

func closeRing(r orb.Ring) orb.Ring {
	if len(r) == 0 || r.Closed() {
		return r
	}
	return append(r[:len(r):len(r)], r[0])
}
