package pipeline

import "math"

// Aggregate reduces per-file results into batch statistics. Failed files
// count toward TotalFiles and FailedFiles only; a batch with no valid file
// has every numeric field zero.
func Aggregate(results []Result) AggregateStats {
	stats := AggregateStats{TotalFiles: len(results)}

	minV := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	maxV := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	var densitySum float64

	for i := range results {
		r := &results[i]
		if !r.OK() {
			stats.FailedFiles++
			continue
		}

		stats.ValidFiles++
		stats.TotalSizeMB += r.FileSizeMB()
		stats.TotalPoints += r.PointCount
		densitySum += r.Density
		if r.FootprintAcres != nil {
			stats.TotalFootprintAcres += *r.FootprintAcres
		}

		for k := 0; k < 3; k++ {
			minV[k] = math.Min(minV[k], r.Min[k])
			maxV[k] = math.Max(maxV[k], r.Max[k])
		}

		if r.Returns != nil {
			for k, n := range r.Returns {
				stats.Returns[k] += n
			}
		}
		if r.Classes != nil {
			for k, n := range r.Classes {
				stats.Classes[k] += n
			}
		}
	}

	if stats.ValidFiles > 0 {
		stats.AvgDensity = densitySum / float64(stats.ValidFiles)
		stats.Min = minV
		stats.Max = maxV
	}

	return stats
}
