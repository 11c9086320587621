package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMonitorRollingAverage(t *testing.T) {
	m := NewReadMonitor(nil, 3)
	start := time.Unix(1_700_000_000, 0)
	mb := uint64(1024 * 1024)

	assert.Equal(t, 0.0, m.Observe(0, start))
	assert.Equal(t, 10.0, m.Observe(10*mb, start.Add(time.Second)))
	assert.Equal(t, 15.0, m.Observe(30*mb, start.Add(2*time.Second)))
	assert.Equal(t, 20.0, m.Observe(60*mb, start.Add(3*time.Second)))

	// window of 3 drops the first rate
	assert.InDelta(t, (20.0+30.0+40.0)/3, m.Observe(100*mb, start.Add(4*time.Second)), 1e-9)
}

func TestReadMonitorIgnoresResets(t *testing.T) {
	m := NewReadMonitor(nil, 10)
	start := time.Unix(1_700_000_000, 0)

	m.Observe(5000, start)
	m.Observe(100, start.Add(time.Second))
	assert.Equal(t, 0.0, m.Average())
}

func TestReadMonitorCounterError(t *testing.T) {
	m := NewReadMonitor(func() (uint64, error) { return 0, errors.New("no io stats") }, 0)
	assert.Equal(t, DefaultReadWindow, m.window)
	assert.Equal(t, 0.0, m.Sample())
}

func TestBatchMetrics(t *testing.T) {
	m := NewBatchMetrics()

	m.SetWorkers(4)
	m.ObserveFile(OutcomeOK, 2*time.Second, 1000)
	m.ObserveFile(OutcomeOK, time.Second, 500)
	m.ObserveFile(OutcomeError, time.Second, 0)
	m.ObserveBatch("completed")

	assert.Equal(t, 4.0, testutil.ToFloat64(m.workers))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.files.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.files.WithLabelValues(OutcomeError)))
	assert.Equal(t, 1500.0, testutil.ToFloat64(m.points))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batches.WithLabelValues("completed")))

	path := filepath.Join(t.TempDir(), "lasstat.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `lasstat_files_total{outcome="ok"} 2`)
	assert.Contains(t, string(data), "lasstat_file_duration_seconds_count 2")
}
