package pipeline

import (
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/wegman-software/lasstat-go/internal/budget"
	"github.com/wegman-software/lasstat-go/internal/crs"
	"github.com/wegman-software/lasstat-go/internal/units"
)

// FileTask is one file submitted to a batch
type FileTask struct {
	Path string
	Size int64
}

// ReturnCounts holds point counts for return numbers 1..5
type ReturnCounts [5]int64

// ClassCounts holds point counts for classification codes 0..9
type ClassCounts [10]int64

// ClassNames are the standard ASPRS names for codes 0..9
var ClassNames = [10]string{
	"Created, never classified",
	"Unclassified",
	"Ground",
	"Low Vegetation",
	"Medium Vegetation",
	"High Vegetation",
	"Building",
	"Low Point (noise)",
	"Model Key-point",
	"Water",
}

// Result is the outcome of processing one file. When Err is set the
// numeric fields carry no meaning.
type Result struct {
	Path string
	Name string

	PointCount int64
	Density    float64 // points per m²

	FootprintAcres *float64 // nil when no footprint was computed
	Footprint      orb.Ring
	Decimation     float64 // fraction of points used for the footprint

	Min    [3]float64
	Max    [3]float64
	Scale  [3]float64
	Offset [3]float64

	Version     string
	PointFormat uint8

	CRS           string
	CRSSource     crs.Source
	VerticalDatum string
	EPSG          int
	Unit          units.Unit

	Returns *ReturnCounts
	Classes *ClassCounts

	FileSize int64
	Elapsed  time.Duration
	Err      error
}

// OK reports whether the file was processed without error
func (r *Result) OK() bool {
	return r.Err == nil
}

// FileSizeMB returns the file size in MiB
func (r *Result) FileSizeMB() float64 {
	return budget.BytesToMB(r.FileSize)
}

// Bound returns the XY bounds of the file
func (r *Result) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{r.Min[0], r.Min[1]},
		Max: orb.Point{r.Max[0], r.Max[1]},
	}
}

// State is the lifecycle state of a batch
type State int32

const (
	StateIdle State = iota
	StatePlanning
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlanning:
		return "planning"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a batch
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// AggregateStats summarizes a batch
type AggregateStats struct {
	TotalFiles  int
	ValidFiles  int
	FailedFiles int

	TotalPoints         int64
	AvgDensity          float64
	TotalSizeMB         float64 // valid files only
	TotalFootprintAcres float64

	// Global bounds over valid results, zero when there are none
	Min [3]float64
	Max [3]float64

	Returns ReturnCounts
	Classes ClassCounts
}

// Report is the outcome of one Run
type Report struct {
	BatchID uuid.UUID
	State   State
	Plan    budget.Plan
	Results []Result
	Stats   AggregateStats
	Elapsed time.Duration
}
