package budget

import (
	"errors"
	"fmt"
	"math"
)

const (
	// RAMFactor is the peak RAM per byte of input: the loaded records plus the
	// X/Y arrays extracted for hull computation (about half the record size).
	RAMFactor = 1.5

	// DefaultMaxFileSizeGB is the hard per-file cap applied before a batch starts
	DefaultMaxFileSizeGB = 20.0

	// MinDecimation is the smallest fraction of points ever loaded, also
	// used for every file in low-RAM mode
	MinDecimation = 0.01

	// fraction of available RAM a single file may use before decimation kicks in
	decimationBudget = 0.5
)

// ErrFileTooLarge is returned when a file exceeds the per-file size cap
var ErrFileTooLarge = errors.New("file exceeds size limit")

// BytesToMB converts a byte count to MiB
func BytesToMB(n int64) float64 {
	return float64(n) / (1024 * 1024)
}

// BytesToGB converts a byte count to GiB
func BytesToGB(n int64) float64 {
	return float64(n) / (1024 * 1024 * 1024)
}

// EstimateRAMGB estimates peak RAM in GB needed to process a file of the given size
func EstimateRAMGB(fileSizeMB float64) float64 {
	if fileSizeMB <= 0 || math.IsNaN(fileSizeMB) {
		return 0
	}
	return fileSizeMB / 1024 * RAMFactor
}

// EstimateBatchRAMGB sums the per-file estimates for a whole batch
func EstimateBatchRAMGB(sizes []int64) float64 {
	var total float64
	for _, s := range sizes {
		total += EstimateRAMGB(BytesToMB(s))
	}
	return total
}

// SafeDecimation returns the fraction of points (0.01 to 1.0) that can be
// loaded while keeping the estimate under half of the available RAM
func SafeDecimation(fileSizeMB, availableGB float64) float64 {
	need := EstimateRAMGB(fileSizeMB)
	budget := availableGB * decimationBudget

	if need <= budget {
		return 1.0
	}
	if budget <= 0 {
		return MinDecimation
	}

	d := budget / need
	return math.Max(MinDecimation, math.Min(1.0, d))
}

// DecimationStride converts a decimation fraction into a read stride
// (1 = every point, 4 = every fourth point)
func DecimationStride(decimation float64) int {
	if decimation >= 1 || decimation <= 0 {
		return 1
	}
	return int(math.Ceil(1 / decimation))
}

// ValidateFileSize checks a file against the hard per-file cap
func ValidateFileSize(name string, size int64, maxGB float64) error {
	if maxGB <= 0 {
		maxGB = DefaultMaxFileSizeGB
	}
	gb := BytesToGB(size)
	if gb > maxGB {
		return fmt.Errorf("%w: %s is %.1fGB, exceeds %.0fGB limit", ErrFileTooLarge, name, gb, maxGB)
	}
	return nil
}
