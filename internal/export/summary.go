package export

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/wegman-software/lasstat-go/internal/pipeline"
)

// Summary is the YAML document written after a batch
type Summary struct {
	BatchID string        `yaml:"batch_id"`
	State   string        `yaml:"state"`
	Elapsed string        `yaml:"elapsed"`
	Plan    SummaryPlan   `yaml:"plan"`
	Stats   SummaryStats  `yaml:"stats"`
	Files   []SummaryFile `yaml:"files"`
}

// SummaryPlan mirrors budget.Plan
type SummaryPlan struct {
	Files          int     `yaml:"files"`
	AvgFileSizeMB  float64 `yaml:"avg_file_size_mb"`
	EstimatedRAMGB float64 `yaml:"estimated_ram_gb"`
	AvailableRAMGB float64 `yaml:"available_ram_gb"`
	Workers        int     `yaml:"workers"`
	Geometry       bool    `yaml:"geometry"`
	Override       bool    `yaml:"override,omitempty"`
}

// SummaryStats mirrors pipeline.AggregateStats
type SummaryStats struct {
	TotalFiles          int              `yaml:"total_files"`
	ValidFiles          int              `yaml:"valid_files"`
	FailedFiles         int              `yaml:"failed_files"`
	TotalPoints         int64            `yaml:"total_points"`
	AvgDensity          float64          `yaml:"avg_density"`
	TotalSizeMB         float64          `yaml:"total_size_mb"`
	TotalFootprintAcres float64          `yaml:"total_footprint_acres"`
	Min                 [3]float64       `yaml:"min,flow"`
	Max                 [3]float64       `yaml:"max,flow"`
	Returns             map[int]int64    `yaml:"returns,omitempty"`
	Classes             map[string]int64 `yaml:"classes,omitempty"`
}

// SummaryFile is one line of the per-file listing
type SummaryFile struct {
	Name           string   `yaml:"name"`
	Points         int64    `yaml:"points"`
	Density        float64  `yaml:"density"`
	FootprintAcres *float64 `yaml:"footprint_acres,omitempty"`
	CRS            string   `yaml:"crs,omitempty"`
	EPSG           int      `yaml:"epsg,omitempty"`
	Unit           string   `yaml:"unit"`
	Error          string   `yaml:"error,omitempty"`
}

// NewSummary builds the summary document for a report
func NewSummary(report *pipeline.Report) Summary {
	p := report.Plan
	st := report.Stats

	s := Summary{
		BatchID: report.BatchID.String(),
		State:   report.State.String(),
		Elapsed: report.Elapsed.Round(time.Millisecond).String(),
		Plan: SummaryPlan{
			Files:          p.Files,
			AvgFileSizeMB:  round(p.AvgFileSizeMB, 2),
			EstimatedRAMGB: round(p.TotalRAMGB, 2),
			AvailableRAMGB: round(p.AvailableRAMGB, 2),
			Workers:        p.Workers,
			Geometry:       p.Geometry,
			Override:       p.Override,
		},
		Stats: SummaryStats{
			TotalFiles:          st.TotalFiles,
			ValidFiles:          st.ValidFiles,
			FailedFiles:         st.FailedFiles,
			TotalPoints:         st.TotalPoints,
			AvgDensity:          round(st.AvgDensity, 2),
			TotalSizeMB:         round(st.TotalSizeMB, 2),
			TotalFootprintAcres: round(st.TotalFootprintAcres, 2),
			Min:                 st.Min,
			Max:                 st.Max,
		},
		Files: make([]SummaryFile, 0, len(report.Results)),
	}

	for i, n := range st.Returns {
		if n > 0 {
			if s.Stats.Returns == nil {
				s.Stats.Returns = make(map[int]int64)
			}
			s.Stats.Returns[i+1] = n
		}
	}
	for i, n := range st.Classes {
		if n > 0 {
			if s.Stats.Classes == nil {
				s.Stats.Classes = make(map[string]int64)
			}
			s.Stats.Classes[pipeline.ClassNames[i]] = n
		}
	}

	for i := range report.Results {
		r := &report.Results[i]
		f := SummaryFile{
			Name:           r.Name,
			Points:         r.PointCount,
			Density:        round(r.Density, 2),
			FootprintAcres: r.FootprintAcres,
			CRS:            r.CRS,
			EPSG:           r.EPSG,
			Unit:           r.Unit.String(),
		}
		if r.Err != nil {
			f = SummaryFile{Name: r.Name, Unit: r.Unit.String(), Error: r.Err.Error()}
		}
		s.Files = append(s.Files, f)
	}

	return s
}

// WriteSummary writes the YAML summary of a report to path
func WriteSummary(path string, report *pipeline.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary: %w", err)
	}

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(NewSummary(report)); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Outputs names the files written after a batch. Empty paths are skipped.
type Outputs struct {
	Parquet string
	Summary string
}

// WriteAll writes the configured outputs concurrently
func WriteAll(ctx context.Context, out Outputs, report *pipeline.Report) error {
	g, ctx := errgroup.WithContext(ctx)

	if out.Parquet != "" {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return WriteParquet(out.Parquet, report.Results)
		})
	}
	if out.Summary != "" {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return WriteSummary(out.Summary, report)
		})
	}

	return g.Wait()
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
