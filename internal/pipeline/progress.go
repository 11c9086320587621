package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// ProgressKind tags a progress event
type ProgressKind int

const (
	// ProgressFile is sent once per finished file and advances the counter
	ProgressFile ProgressKind = iota
	// ProgressStep is an informational sub-step inside one file
	ProgressStep
)

// Progress is a batch progress event
type Progress struct {
	Kind      ProgressKind
	Completed int
	Total     int
	File      string
	Message   string

	BytesDone  int64
	BytesTotal int64
	Elapsed    time.Duration
	ETA        time.Duration
}

// Percentage returns completed files as a percentage
func (p Progress) Percentage() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total) * 100
}

// ProgressFunc receives progress events. Calls are serialized.
type ProgressFunc func(Progress)

// ProgressTracker estimates time remaining from bytes processed
type ProgressTracker struct {
	totalBytes int64
	startTime  time.Time
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(totalBytes int64) *ProgressTracker {
	return &ProgressTracker{
		totalBytes: totalBytes,
		startTime:  time.Now(),
	}
}

// Calculate returns elapsed time and ETA given the bytes processed so far
func (p *ProgressTracker) Calculate(bytesDone int64) (elapsed, eta time.Duration) {
	elapsed = time.Since(p.startTime)

	if p.totalBytes > 0 && bytesDone > 0 && bytesDone < p.totalBytes {
		bytesPerSecond := float64(bytesDone) / elapsed.Seconds()
		if bytesPerSecond > 0 {
			eta = time.Duration(float64(p.totalBytes-bytesDone) / bytesPerSecond * float64(time.Second))
		}
	}

	return elapsed.Round(time.Second), eta.Round(time.Second)
}

// emitter serializes progress callbacks and drops events once the batch
// has finished, so late steps from abandoned workers never reach the caller
type emitter struct {
	mu     sync.Mutex
	fn     ProgressFunc
	closed bool
}

func (e *emitter) emit(p Progress) {
	if e == nil || e.fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.fn(p)
}

func (e *emitter) step(file, message string) {
	e.emit(Progress{Kind: ProgressStep, File: file, Message: message})
}

func (e *emitter) close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// FormatETA formats the ETA duration in a human-readable format
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "calculating..."
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatCount formats a point count as 1.2M, 3.4K or 512
func FormatCount(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// FormatBytes formats bytes in a human-readable format
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
