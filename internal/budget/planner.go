package budget

import "math"

// Worker ceilings per processing mode. Geometry mode holds a full file's
// coordinate arrays per running worker, metadata mode only touches headers.
const (
	LightweightCeiling = 12
	GeometryCeiling    = 4
)

const (
	batchRAMShare   = 0.5 // share of available RAM the whole batch may claim
	perFileRAMShare = 0.9 // share of available RAM for concurrently loaded files
)

// Plan is the resource plan for one batch submission
type Plan struct {
	Files          int
	AvgFileSizeMB  float64
	TotalRAMGB     float64 // estimate for the whole batch
	AvailableRAMGB float64
	Workers        int
	Geometry       bool
	Override       bool // worker count came from the user, clamped to the ceiling
}

// Ceiling returns the maximum worker count for a processing mode
func Ceiling(geometry bool) int {
	if geometry {
		return GeometryCeiling
	}
	return LightweightCeiling
}

func clamp(n, ceiling int) int {
	if n < 1 {
		return 1
	}
	if n > ceiling {
		return ceiling
	}
	return n
}

// ThreadsForBatchTotal scales the mode ceiling down when the whole batch's
// estimate exceeds half of the available RAM
func ThreadsForBatchTotal(totalRAMGB, availableGB float64, geometry bool) int {
	ceiling := Ceiling(geometry)
	budget := availableGB * batchRAMShare

	if totalRAMGB <= budget {
		return ceiling
	}
	if budget <= 0 {
		return 1
	}

	ratio := budget / totalRAMGB
	return clamp(int(math.Floor(float64(ceiling)*ratio)), ceiling)
}

// ThreadsPerFile derives the worker count from the average file cost: how many
// average files fit into 90% of the available RAM at the same time
func ThreadsPerFile(sizes []int64, availableGB float64, geometry bool) int {
	if len(sizes) == 0 {
		return 1
	}
	ceiling := Ceiling(geometry)

	perFile := EstimateRAMGB(averageMB(sizes))
	if perFile <= 0 {
		return ceiling
	}

	byRAM := int(math.Floor(availableGB * perFileRAMShare / perFile))
	return clamp(byRAM, ceiling)
}

// NewPlan builds the batch plan. A positive override replaces the computed
// worker count but is still clamped to the mode ceiling.
func NewPlan(sizes []int64, availableGB float64, geometry bool, override int) Plan {
	p := Plan{
		Files:          len(sizes),
		AvgFileSizeMB:  averageMB(sizes),
		TotalRAMGB:     EstimateBatchRAMGB(sizes),
		AvailableRAMGB: availableGB,
		Geometry:       geometry,
	}

	if override > 0 {
		p.Workers = clamp(override, Ceiling(geometry))
		p.Override = true
		return p
	}

	p.Workers = ThreadsPerFile(sizes, availableGB, geometry)
	return p
}

func averageMB(sizes []int64) float64 {
	if len(sizes) == 0 {
		return 0
	}
	var total int64
	for _, s := range sizes {
		if s > 0 {
			total += s
		}
	}
	return BytesToMB(total) / float64(len(sizes))
}
