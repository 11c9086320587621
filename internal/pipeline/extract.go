package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/lasstat-go/internal/budget"
	"github.com/wegman-software/lasstat-go/internal/crs"
	"github.com/wegman-software/lasstat-go/internal/geometry"
)

// process extracts one file. It always returns a result; errors and panics
// are captured in Result.Err.
func (e *Engine) process(ctx context.Context, task FileTask, plan budget.Plan, em *emitter, log *zap.Logger) (res Result) {
	start := time.Now()
	name := filepath.Base(task.Path)
	res = Result{Path: task.Path, Name: name, FileSize: task.Size}

	defer func() {
		if p := recover(); p != nil {
			log.Error("Worker panicked",
				zap.String("file", name),
				zap.Any("panic", p),
				zap.Stack("stack"))
			res = Result{Path: task.Path, Name: name, FileSize: task.Size, Err: fmt.Errorf("%w: %v", ErrPanic, p)}
		}
		res.Elapsed = time.Since(start)
	}()

	src, err := e.cfg.Open(task.Path)
	if err != nil {
		res.Err = fmt.Errorf("failed to open: %w", err)
		log.Warn("Failed to read file", zap.String("file", name), zap.Error(err))
		return res
	}
	defer src.Close()

	h := src.Header()
	res.Version = h.Version
	res.PointFormat = h.PointFormat
	res.PointCount = h.PointCount
	res.Scale = h.Scale
	res.Offset = h.Offset
	res.Min = h.Min
	res.Max = h.Max

	det := e.cfg.Resolver.Resolve(src.Records(), h.Bound())
	res.CRS = det.Label
	res.CRSSource = det.LabelSource
	res.EPSG = det.EPSG
	res.Unit = det.Unit
	res.VerticalDatum = crs.VerticalDatum(det.Label)
	res.Density = geometry.BoundsDensity(h.PointCount, h.Bound(), det.Unit)

	if det.Label == "" {
		log.Debug("CRS not detected", zap.String("file", name))
	}

	if e.cfg.ExtractClassifications {
		em.step(name, "Counting returns and classes")
		returns, classes, err := src.Histograms(ctx)
		if err != nil {
			log.Warn("Failed to count classes", zap.String("file", name), zap.Error(err))
			return Result{Path: task.Path, Name: name, FileSize: task.Size, Err: fmt.Errorf("failed to count classes: %w", err)}
		}
		rc, cc := ReturnCounts(returns), ClassCounts(classes)
		res.Returns, res.Classes = &rc, &cc
	}

	if e.cfg.DetailedGeometry {
		e.footprint(ctx, src, &res, plan, em, log)
	}

	log.Debug("File processed",
		zap.String("file", name),
		zap.Int64("points", res.PointCount),
		zap.String("crs", res.CRS),
		zap.Stringer("unit", res.Unit),
		zap.Duration("elapsed", time.Since(start)))

	return res
}

// footprint computes the convex-hull footprint, decimating the points when
// the file would not fit in half of the available RAM. Failures leave the
// result without a footprint.
func (e *Engine) footprint(ctx context.Context, src Source, res *Result, plan budget.Plan, em *emitter, log *zap.Logger) {
	available, err := e.cfg.Memory()
	if err != nil {
		available = plan.AvailableRAMGB
	}

	decimation := budget.SafeDecimation(res.FileSizeMB(), available)
	if e.cfg.LowRAM {
		decimation = budget.MinDecimation
	}
	stride := budget.DecimationStride(decimation)

	if stride > 1 {
		log.Info("Decimating points for footprint",
			zap.String("file", res.Name),
			zap.Float64("file_mb", res.FileSizeMB()),
			zap.Float64("avail_ram_gb", available),
			zap.Int("stride", stride))
	}

	em.step(res.Name, fmt.Sprintf("Reading points (%.0f%%)", 100/float64(stride)))
	points, err := src.XY(ctx, stride)
	if err != nil {
		log.Warn("Failed to read points for footprint", zap.String("file", res.Name), zap.Error(err))
		return
	}

	em.step(res.Name, "Computing convex hull")
	fp, err := geometry.ComputeFootprint(points, res.Unit)
	if err != nil {
		log.Warn("Footprint not computed", zap.String("file", res.Name), zap.Error(err))
		return
	}

	acres := fp.Acres
	res.FootprintAcres = &acres
	res.Footprint = fp.Hull
	res.Decimation = 1 / float64(stride)
	res.Density = fp.Density(res.PointCount)
}
