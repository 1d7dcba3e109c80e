// Package resourcemonitor samples process memory and goroutine counts
// during an index rebuild (spec §5: "Memory peak is bounded by the
// largest single DSX file plus the full metadata map") so an operator can
// confirm that bound holds for their corpus instead of trusting it
// blindly. Adapted from the teacher's pkg/leakdetection/resource_monitor.go,
// trimmed from a long-running FD/goroutine leak detector to a one-shot
// sampler scoped to a single rebuild pass.
package resourcemonitor

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
)

// Config configures a Monitor.
type Config struct {
	SampleInterval  time.Duration `yaml:"sample_interval"`
	WarnMemoryFrac  float64       `yaml:"warn_memory_fraction"` // fraction of total system RAM
}

// Sample is a single point-in-time reading.
type Sample struct {
	At         time.Time
	RSSBytes   uint64
	Goroutines int
}

// Monitor samples resource usage for the duration of one rebuild.
type Monitor struct {
	config Config
	logger *logrus.Logger
	proc   *process.Process

	mu      sync.Mutex
	samples []Sample
	peakRSS uint64
}

// New constructs a Monitor for the current process.
func New(config Config, logger *logrus.Logger) (*Monitor, error) {
	if config.SampleInterval <= 0 {
		config.SampleInterval = 5 * time.Second
	}
	if config.WarnMemoryFrac <= 0 {
		config.WarnMemoryFrac = 0.75
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	return &Monitor{config: config, logger: logger, proc: proc}, nil
}

// Run samples resource usage every SampleInterval until ctx is done. It is
// intended to be run in a goroutine alongside a build_index rebuild and
// stopped by cancelling ctx once the rebuild completes.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	memInfo, err := m.proc.MemoryInfo()
	if err != nil {
		return
	}

	s := Sample{At: time.Now(), RSSBytes: memInfo.RSS, Goroutines: runtime.NumGoroutine()}

	m.mu.Lock()
	m.samples = append(m.samples, s)
	if s.RSSBytes > m.peakRSS {
		m.peakRSS = s.RSSBytes
	}
	m.mu.Unlock()

	if total, err := mem.VirtualMemory(); err == nil && total.Total > 0 {
		frac := float64(s.RSSBytes) / float64(total.Total)
		if frac >= m.config.WarnMemoryFrac {
			m.logger.WithFields(logrus.Fields{
				"rss_bytes":   s.RSSBytes,
				"total_bytes": total.Total,
				"fraction":    frac,
			}).Warn("rebuild memory usage approaching system limit")
		}
	}
}

// PeakRSS returns the highest RSS sample observed so far.
func (m *Monitor) PeakRSS() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakRSS
}

// Samples returns a copy of all samples collected so far.
func (m *Monitor) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sample, len(m.samples))
	copy(out, m.samples)
	return out
}
