package budget

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const gb = int64(1024 * 1024 * 1024)

func TestEstimateRAMGB(t *testing.T) {
	assert.Equal(t, 0.0, EstimateRAMGB(0))
	assert.Equal(t, 0.0, EstimateRAMGB(-5))
	assert.Equal(t, 0.0, EstimateRAMGB(math.NaN()))
	assert.InDelta(t, 1.5, EstimateRAMGB(1024), 1e-12)

	prev := 0.0
	for mb := 0.0; mb <= 50000; mb += 137.5 {
		got := EstimateRAMGB(mb)
		if got < prev {
			t.Fatalf("estimate decreased at %v MB: %v < %v", mb, got, prev)
		}
		prev = got
	}
}

func TestEstimateBatchRAMGB(t *testing.T) {
	got := EstimateBatchRAMGB([]int64{gb, 2 * gb, 0})
	assert.InDelta(t, 4.5, got, 1e-9)
}

func TestThreadsForBatchTotal(t *testing.T) {
	tests := []struct {
		name      string
		total     float64
		available float64
		geometry  bool
		want      int
	}{
		{"fits lightweight", 4, 16, false, 12},
		{"fits geometry", 8, 16, true, 4},
		{"half pressure", 16, 16, false, 6},
		{"heavy pressure", 1000, 16, false, 1},
		{"geometry scaled", 16, 16, true, 2},
		{"no ram", 10, 0, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ThreadsForBatchTotal(tt.total, tt.available, tt.geometry)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestThreadsPerFile(t *testing.T) {
	tests := []struct {
		name      string
		sizes     []int64
		available float64
		geometry  bool
		want      int
	}{
		{"empty batch", nil, 64, false, 1},
		{"small files", []int64{100 << 20, 200 << 20}, 32, false, 12},
		{"small files geometry", []int64{100 << 20}, 32, true, 4},
		// 2GB files cost 3GB each, 90% of 10GB fits 3
		{"large files", []int64{2 * gb, 2 * gb}, 10, false, 3},
		{"huge file tiny ram", []int64{20 * gb}, 1, false, 1},
		{"zero byte files", []int64{0, 0}, 8, true, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ThreadsPerFile(tt.sizes, tt.available, tt.geometry))
		})
	}
}

func TestPlannerAlwaysWithinCeiling(t *testing.T) {
	sizes := []int64{0, 1 << 20, 500 << 20, gb, 5 * gb, 19 * gb}
	rams := []float64{0, 0.25, 1, 4, 16, 64, 512}

	for _, geometry := range []bool{false, true} {
		ceiling := Ceiling(geometry)
		for _, s := range sizes {
			for _, ram := range rams {
				n := ThreadsPerFile([]int64{s, s / 2}, ram, geometry)
				if n < 1 || n > ceiling {
					t.Errorf("ThreadsPerFile(%d, %v, %v) = %d outside [1,%d]", s, ram, geometry, n, ceiling)
				}
				m := ThreadsForBatchTotal(EstimateRAMGB(BytesToMB(s))*10, ram, geometry)
				if m < 1 || m > ceiling {
					t.Errorf("ThreadsForBatchTotal(%d, %v, %v) = %d outside [1,%d]", s, ram, geometry, m, ceiling)
				}
			}
		}
	}
}

func TestNewPlan(t *testing.T) {
	p := NewPlan([]int64{gb, gb}, 16, true, 0)
	assert.Equal(t, 2, p.Files)
	assert.InDelta(t, 1024, p.AvgFileSizeMB, 1e-9)
	assert.InDelta(t, 3.0, p.TotalRAMGB, 1e-9)
	assert.Equal(t, 4, p.Workers)
	assert.False(t, p.Override)

	over := NewPlan([]int64{gb}, 16, true, 32)
	assert.Equal(t, GeometryCeiling, over.Workers)
	assert.True(t, over.Override)

	one := NewPlan([]int64{gb}, 16, false, 1)
	assert.Equal(t, 1, one.Workers)
}

func TestSafeDecimation(t *testing.T) {
	assert.Equal(t, 1.0, SafeDecimation(1024, 16))
	// 10GB file needs 15GB, budget is 4GB
	assert.InDelta(t, 4.0/15.0, SafeDecimation(10*1024, 8), 1e-9)
	assert.Equal(t, 0.01, SafeDecimation(1e7, 1))
	assert.Equal(t, 0.01, SafeDecimation(1024, 0))
}

func TestDecimationStride(t *testing.T) {
	assert.Equal(t, 1, DecimationStride(1))
	assert.Equal(t, 1, DecimationStride(0))
	assert.Equal(t, 2, DecimationStride(0.5))
	assert.Equal(t, 4, DecimationStride(4.0/15.0))
	assert.Equal(t, 100, DecimationStride(0.01))
}

func TestValidateFileSize(t *testing.T) {
	assert.NoError(t, ValidateFileSize("a.las", 19*gb, 20))
	assert.NoError(t, ValidateFileSize("a.las", 20*gb, 20))

	err := ValidateFileSize("big.las", 21*gb, 20)
	assert.True(t, errors.Is(err, ErrFileTooLarge))
	assert.Contains(t, err.Error(), "big.las")

	// zero cap falls back to the default
	assert.NoError(t, ValidateFileSize("a.las", 19*gb, 0))
}
