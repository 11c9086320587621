package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

const bytesPerGB = 1024 * 1024 * 1024

// SystemMetrics holds a system snapshot taken while a batch runs
type SystemMetrics struct {
	CPUPercent        float64 // System-wide CPU usage (0-100%)
	ProcessCPUPercent float64 // Can exceed 100% with several workers busy
	IOWaitPercent     float64
	MemoryUsedGB      float64
	MemoryAvailableGB float64
	MemoryTotalGB     float64
	MemoryPercent     float64
	DiskReadMBps      float64
	DiskBusyPercent   float64
	ProcessReadMBps   float64 // rolling average over the read monitor window
	Timestamp         time.Time
}

// Collector periodically samples and logs system metrics during a batch
type Collector struct {
	interval      time.Duration
	logger        *zap.Logger
	proc          *process.Process
	reads         *ReadMonitor
	lastDiskStats map[string]disk.IOCountersStat
	lastDiskTime  time.Time
	lastCPUTimes  cpu.TimesStat
	hasCPUTimes   bool
	mu            sync.RWMutex
	last          *SystemMetrics
}

// NewCollector creates a collector. Intervals under a second fall back to 30s.
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}

	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
		reads:    NewReadMonitor(ProcessReadBytes, DefaultReadWindow),
	}
}

// Start samples until ctx is cancelled
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// first sample sets the disk and CPU baselines
	c.collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// Last returns the most recent snapshot, nil before the first sample
func (c *Collector) Last() *SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// ReadRate returns the rolling process read rate in MB/s
func (c *Collector) ReadRate() float64 {
	return c.reads.Average()
}

func (c *Collector) collect() {
	m := &SystemMetrics{Timestamp: time.Now()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.CPUPercent = pct[0]
	}
	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			m.ProcessCPUPercent = pct
		}
	}
	m.IOWaitPercent = c.ioWait()

	if vmem, err := mem.VirtualMemory(); err == nil {
		m.MemoryPercent = vmem.UsedPercent
		m.MemoryUsedGB = float64(vmem.Used) / bytesPerGB
		m.MemoryAvailableGB = float64(vmem.Available) / bytesPerGB
		m.MemoryTotalGB = float64(vmem.Total) / bytesPerGB
	}

	m.DiskReadMBps, m.DiskBusyPercent = c.diskRates()
	m.ProcessReadMBps = c.reads.Sample()

	c.mu.Lock()
	c.last = m
	c.mu.Unlock()

	c.logger.Info("System metrics",
		zap.Float64("sys_cpu", m.CPUPercent),
		zap.Float64("proc_cpu", m.ProcessCPUPercent),
		zap.Float64("iowait", m.IOWaitPercent),
		zap.Float64("mem_pct", m.MemoryPercent),
		zap.String("mem_avail", fmt.Sprintf("%.1f GB", m.MemoryAvailableGB)),
		zap.String("disk_r", fmt.Sprintf("%.1f MB/s", m.DiskReadMBps)),
		zap.String("proc_r", fmt.Sprintf("%.1f MB/s", m.ProcessReadMBps)),
		zap.Float64("disk_busy", m.DiskBusyPercent),
	)
}

// ioWait returns the iowait share of CPU time since the previous call
func (c *Collector) ioWait() float64 {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return 0
	}

	current := times[0]
	if !c.hasCPUTimes {
		c.lastCPUTimes = current
		c.hasCPUTimes = true
		return 0
	}

	last := c.lastCPUTimes
	total := (current.User - last.User) +
		(current.System - last.System) +
		(current.Idle - last.Idle) +
		(current.Iowait - last.Iowait) +
		(current.Irq - last.Irq) +
		(current.Softirq - last.Softirq) +
		(current.Steal - last.Steal)
	iowait := current.Iowait - last.Iowait

	c.lastCPUTimes = current

	if total <= 0 {
		return 0
	}
	return iowait / total * 100
}

// diskRates returns system-wide read MB/s and busy percentage since the previous call
func (c *Collector) diskRates() (readMBps, busyPct float64) {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0, 0
	}

	now := time.Now()
	defer func() {
		c.lastDiskStats = counters
		c.lastDiskTime = now
	}()

	if c.lastDiskStats == nil {
		return 0, 0
	}

	elapsed := now.Sub(c.lastDiskTime).Seconds()
	if elapsed < 0.1 {
		return 0, 0
	}

	var readDelta, ioTimeDelta uint64
	for name, counter := range counters {
		last, ok := c.lastDiskStats[name]
		if !ok {
			continue
		}
		// counters can wrap
		if counter.ReadBytes >= last.ReadBytes {
			readDelta += counter.ReadBytes - last.ReadBytes
		}
		// IoTime is cumulative milliseconds
		if counter.IoTime >= last.IoTime {
			ioTimeDelta += counter.IoTime - last.IoTime
		}
	}

	readMBps = float64(readDelta) / elapsed / (1024 * 1024)
	busyPct = min(float64(ioTimeDelta)/(elapsed*1000)*100, 100)
	return readMBps, busyPct
}
