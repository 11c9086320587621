package metrics

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// DefaultReadWindow is the number of samples averaged by a ReadMonitor
const DefaultReadWindow = 10

// ByteCounter reports a cumulative byte count
type ByteCounter func() (uint64, error)

// ProcessReadBytes returns the bytes this process has read from storage
func ProcessReadBytes() (uint64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	io, err := proc.IOCounters()
	if err != nil {
		return 0, err
	}
	return io.ReadBytes, nil
}

// ReadMonitor turns a cumulative read counter into a rolling MB/s average
type ReadMonitor struct {
	counter ByteCounter
	window  int

	mu        sync.Mutex
	lastBytes uint64
	lastTime  time.Time
	rates     []float64
}

// NewReadMonitor returns a monitor averaging the last window samples
func NewReadMonitor(counter ByteCounter, window int) *ReadMonitor {
	if window < 1 {
		window = DefaultReadWindow
	}
	return &ReadMonitor{counter: counter, window: window}
}

// Sample reads the counter and returns the updated rolling average.
// Counter errors leave the average unchanged.
func (m *ReadMonitor) Sample() float64 {
	n, err := m.counter()
	if err != nil {
		return m.Average()
	}
	return m.Observe(n, time.Now())
}

// Observe records a counter value taken at the given time
func (m *ReadMonitor) Observe(bytes uint64, at time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lastTime.IsZero() {
		elapsed := at.Sub(m.lastTime).Seconds()
		if elapsed > 0 && bytes >= m.lastBytes {
			rate := float64(bytes-m.lastBytes) / elapsed / (1024 * 1024)
			m.rates = append(m.rates, rate)
			if len(m.rates) > m.window {
				m.rates = m.rates[len(m.rates)-m.window:]
			}
		}
	}
	m.lastBytes = bytes
	m.lastTime = at

	return m.average()
}

// Average returns the rolling average in MB/s, 0 before two samples
func (m *ReadMonitor) Average() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.average()
}

func (m *ReadMonitor) average() float64 {
	if len(m.rates) == 0 {
		return 0
	}
	var sum float64
	for _, r := range m.rates {
		sum += r
	}
	return sum / float64(len(m.rates))
}
