package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/lasstat-go/internal/budget"
	"github.com/wegman-software/lasstat-go/internal/config"
	"github.com/wegman-software/lasstat-go/internal/crs"
	"github.com/wegman-software/lasstat-go/internal/logger"
	"github.com/wegman-software/lasstat-go/internal/metrics"
)

var (
	// ErrBusy is returned by Run while another batch is in progress
	ErrBusy = errors.New("engine is already running a batch")
	// ErrValidation marks a batch rejected before any work started
	ErrValidation = errors.New("batch failed validation")
	// ErrPanic marks a result whose worker panicked
	ErrPanic = errors.New("panic while processing file")
)

// MemoryFunc reports available RAM in GB
type MemoryFunc func() (float64, error)

// EngineConfig holds the options and collaborators of an Engine
type EngineConfig struct {
	Workers                int // 0 = derive from available RAM
	DetailedGeometry       bool
	ExtractClassifications bool
	LowRAM                 bool
	MaxFileSizeGB          float64

	Open     Opener     // defaults to OpenLAS
	Memory   MemoryFunc // defaults to metrics.AvailableRAMGB
	Resolver *crs.Resolver
	Logger   *zap.Logger
	Metrics  *metrics.BatchMetrics // optional
	Progress ProgressFunc          // optional
}

// EngineConfigFrom maps the run configuration onto engine options
func EngineConfigFrom(cfg *config.Config) EngineConfig {
	return EngineConfig{
		Workers:                cfg.Workers,
		DetailedGeometry:       cfg.DetailedGeometry,
		ExtractClassifications: cfg.ExtractClassifications,
		LowRAM:                 cfg.LowRAM,
		MaxFileSizeGB:          cfg.MaxFileSizeGB,
	}
}

// Engine runs batches of files through a bounded worker pool sized from
// the available RAM. One Engine runs one batch at a time.
type Engine struct {
	cfg EngineConfig

	state     atomic.Int32
	running   atomic.Bool
	cancelled atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewEngine creates an engine, filling unset collaborators with defaults
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Open == nil {
		cfg.Open = OpenLAS
	}
	if cfg.Memory == nil {
		cfg.Memory = metrics.AvailableRAMGB
	}
	if cfg.Resolver == nil {
		cfg.Resolver = crs.NewResolver()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.MaxFileSizeGB <= 0 {
		cfg.MaxFileSizeGB = budget.DefaultMaxFileSizeGB
	}
	return &Engine{cfg: cfg}
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Cancel stops the running batch. Files not yet started are skipped and
// files in flight are abandoned. Safe to call at any time, more than once.
func (e *Engine) Cancel() {
	e.cancelled.Store(true)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// Preflight validates and plans a batch without running it. Failures holds
// one error result per rejected file.
func (e *Engine) Preflight(paths []string) (budget.Plan, []Result, error) {
	tasks, failures := e.validate(paths)
	plan := e.plan(tasks, e.cfg.Logger)
	if len(failures) > 0 {
		return plan, failures, fmt.Errorf("%w: %d of %d files", ErrValidation, len(failures), len(paths))
	}
	return plan, nil, nil
}

// Run processes every path and returns the batch report. A batch that
// fails validation returns a Failed report together with an error wrapping
// ErrValidation; cancellation is reported through the Cancelled state.
func (e *Engine) Run(ctx context.Context, paths []string) (*Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.running.Store(false)

	start := time.Now()
	e.cancelled.Store(false)

	report := &Report{BatchID: uuid.New()}
	log := e.cfg.Logger.With(zap.String("batch", report.BatchID.String()))
	em := &emitter{fn: e.cfg.Progress}
	defer em.close()

	finish := func(state State) {
		sortResults(report.Results)
		report.Stats = Aggregate(report.Results)
		report.State = state
		report.Elapsed = time.Since(start)
		if e.cfg.Metrics != nil {
			e.cfg.Metrics.ObserveBatch(state.String())
		}
		e.setState(state)

		log.Info("Batch finished",
			zap.Stringer("state", state),
			zap.Int("files", report.Stats.TotalFiles),
			zap.Int("valid", report.Stats.ValidFiles),
			zap.Int("failed", report.Stats.FailedFiles),
			zap.Int64("points", report.Stats.TotalPoints),
			zap.Duration("elapsed", report.Elapsed.Round(time.Millisecond)))
	}

	e.setState(StatePlanning)
	tasks, failures := e.validate(paths)
	if len(failures) > 0 {
		report.Results = rejectAll(tasks, failures)
		for _, f := range failures {
			log.Error("File failed validation", zap.String("file", f.Name), zap.Error(f.Err))
		}
		finish(StateFailed)
		return report, fmt.Errorf("%w: %d of %d files", ErrValidation, len(failures), len(paths))
	}

	report.Plan = e.plan(tasks, log)
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.SetWorkers(report.Plan.Workers)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.cancel = nil
		e.mu.Unlock()
	}()

	e.setState(StateRunning)
	results, cancelled := e.execute(ctx, tasks, report.Plan, em, log)
	report.Results = results

	if cancelled {
		if e.cfg.Metrics != nil {
			for range len(tasks) - len(results) {
				e.cfg.Metrics.ObserveFile(metrics.OutcomeSkipped, 0, 0)
			}
		}
		log.Warn("Batch cancelled",
			zap.Int("completed", len(results)),
			zap.Int("total", len(tasks)))
		finish(StateCancelled)
		return report, nil
	}

	finish(StateCompleted)
	return report, nil
}

// validate stats every path against the per-file cap
func (e *Engine) validate(paths []string) ([]FileTask, []Result) {
	tasks := make([]FileTask, 0, len(paths))
	var failures []Result

	for _, path := range paths {
		name := filepath.Base(path)
		info, err := os.Stat(path)
		switch {
		case err != nil:
			err = fmt.Errorf("failed to stat file: %w", err)
		case info.IsDir():
			err = fmt.Errorf("%s is a directory", name)
		default:
			err = budget.ValidateFileSize(name, info.Size(), e.cfg.MaxFileSizeGB)
		}

		if err != nil {
			r := Result{Path: path, Name: name, Err: err}
			if info != nil {
				r.FileSize = info.Size()
			}
			failures = append(failures, r)
			continue
		}
		tasks = append(tasks, FileTask{Path: path, Size: info.Size()})
	}

	return tasks, failures
}

// rejectAll returns one error result per file of a rejected batch
func rejectAll(tasks []FileTask, failures []Result) []Result {
	results := make([]Result, 0, len(tasks)+len(failures))
	results = append(results, failures...)
	for _, t := range tasks {
		results = append(results, Result{
			Path:     t.Path,
			Name:     filepath.Base(t.Path),
			FileSize: t.Size,
			Err:      fmt.Errorf("%w: not started", ErrValidation),
		})
	}
	return results
}

func (e *Engine) plan(tasks []FileTask, log *zap.Logger) budget.Plan {
	sizes := make([]int64, len(tasks))
	for i, t := range tasks {
		sizes[i] = t.Size
	}

	available, err := e.cfg.Memory()
	if err != nil {
		log.Warn("Could not read available RAM, planning for a single worker", zap.Error(err))
		available = 0
	}

	plan := budget.NewPlan(sizes, available, e.cfg.DetailedGeometry, e.cfg.Workers)
	log.Info("Batch planned",
		zap.Int("files", plan.Files),
		zap.Float64("avg_file_mb", plan.AvgFileSizeMB),
		zap.Float64("est_ram_gb", plan.TotalRAMGB),
		zap.Float64("avail_ram_gb", plan.AvailableRAMGB),
		zap.Int("workers", plan.Workers),
		zap.Bool("geometry", plan.Geometry),
		zap.Bool("override", plan.Override))
	return plan
}

// execute dispatches one task per file and collects results until every
// task has reported or the batch is cancelled. The returned flag reports
// cancellation. Results are sent over a channel buffered for every task,
// so abandoned workers never block.
func (e *Engine) execute(ctx context.Context, tasks []FileTask, plan budget.Plan, em *emitter, log *zap.Logger) ([]Result, bool) {
	out := make(chan Result, len(tasks))
	stopped := func() bool {
		return e.cancelled.Load() || ctx.Err() != nil
	}

	var g errgroup.Group
	g.SetLimit(plan.Workers)

	go func() {
		defer close(out)
		for _, task := range tasks {
			if stopped() {
				break
			}
			g.Go(func() error {
				if stopped() {
					return nil
				}
				out <- e.process(ctx, task, plan, em, log)
				return nil
			})
		}
		_ = g.Wait()
	}()

	var totalBytes, bytesDone int64
	for _, t := range tasks {
		totalBytes += t.Size
	}
	tracker := NewProgressTracker(totalBytes)

	results := make([]Result, 0, len(tasks))
	for len(results) < len(tasks) {
		select {
		case r, ok := <-out:
			if !ok {
				return results, stopped()
			}
			results = append(results, r)
			e.observe(&r)

			bytesDone += r.FileSize
			elapsed, eta := tracker.Calculate(bytesDone)
			em.emit(Progress{
				Kind:       ProgressFile,
				Completed:  len(results),
				Total:      len(tasks),
				File:       r.Name,
				BytesDone:  bytesDone,
				BytesTotal: totalBytes,
				Elapsed:    elapsed,
				ETA:        eta,
			})

			if e.cancelled.Load() {
				return results, true
			}
		case <-ctx.Done():
			return results, true
		}
	}

	return results, false
}

func (e *Engine) observe(r *Result) {
	if e.cfg.Metrics == nil {
		return
	}
	outcome := metrics.OutcomeOK
	if !r.OK() {
		outcome = metrics.OutcomeError
	}
	e.cfg.Metrics.ObserveFile(outcome, r.Elapsed, r.PointCount)
}

// sortResults orders by file name, then path
func sortResults(results []Result) {
	slices.SortFunc(results, func(a, b Result) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
}
