package metrics

import (
	"sync"
	"time"

	"github.com/objectfs/cloudpath/pkg/types"
)

// DirectionMetrics tracks the transfers of one scheme in one direction
type DirectionMetrics struct {
	Count          int64         `json:"count"`
	Bytes          int64         `json:"bytes"`
	TotalLatency   time.Duration `json:"total_latency"`
	MinLatency     time.Duration `json:"min_latency"`
	MaxLatency     time.Duration `json:"max_latency"`
	AverageLatency time.Duration `json:"average_latency"`
	AvgBytesPerOp  float64       `json:"avg_bytes_per_op"`
	ThroughputMBps float64       `json:"throughput_mbps"`
	PeakMBps       float64       `json:"peak_mbps"`
	LastTransfer   time.Time     `json:"last_transfer"`
}

// TransferStats aggregates transfer volume and throughput per scheme and direction
type TransferStats struct {
	mu        sync.RWMutex
	schemes   map[string]map[types.Direction]*DirectionMetrics
	startTime time.Time
}

// NewTransferStats creates empty transfer statistics
func NewTransferStats() *TransferStats {
	return &TransferStats{
		schemes:   make(map[string]map[types.Direction]*DirectionMetrics),
		startTime: time.Now(),
	}
}

// Record adds one transfer of bytes that took latency
func (ts *TransferStats) Record(scheme string, dir types.Direction, bytes int64, latency time.Duration) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	dirs, ok := ts.schemes[scheme]
	if !ok {
		dirs = make(map[types.Direction]*DirectionMetrics)
		ts.schemes[scheme] = dirs
	}
	m, ok := dirs[dir]
	if !ok {
		m = &DirectionMetrics{MinLatency: latency}
		dirs[dir] = m
	}

	m.Count++
	m.Bytes += bytes
	m.TotalLatency += latency
	m.LastTransfer = time.Now()
	if latency < m.MinLatency {
		m.MinLatency = latency
	}
	if latency > m.MaxLatency {
		m.MaxLatency = latency
	}
	m.AverageLatency = time.Duration(int64(m.TotalLatency) / m.Count)
	m.AvgBytesPerOp = float64(m.Bytes) / float64(m.Count)

	if m.TotalLatency > 0 {
		m.ThroughputMBps = (float64(m.Bytes) / (1024 * 1024)) / m.TotalLatency.Seconds()
	}
	if latency > 0 {
		if rate := (float64(bytes) / (1024 * 1024)) / latency.Seconds(); rate > m.PeakMBps {
			m.PeakMBps = rate
		}
	}
}

// Get returns a copy of the metrics of one scheme and direction
func (ts *TransferStats) Get(scheme string, dir types.Direction) (DirectionMetrics, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	m, ok := ts.schemes[scheme][dir]
	if !ok {
		return DirectionMetrics{}, false
	}
	return *m, true
}

// Snapshot returns a copy of every tracked scheme
func (ts *TransferStats) Snapshot() map[string]map[types.Direction]DirectionMetrics {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	out := make(map[string]map[types.Direction]DirectionMetrics, len(ts.schemes))
	for scheme, dirs := range ts.schemes {
		copied := make(map[types.Direction]DirectionMetrics, len(dirs))
		for dir, m := range dirs {
			copied[dir] = *m
		}
		out[scheme] = copied
	}
	return out
}

// Summary returns totals across every scheme
func (ts *TransferStats) Summary() map[string]interface{} {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	var count, bytes int64
	for _, dirs := range ts.schemes {
		for _, m := range dirs {
			count += m.Count
			bytes += m.Bytes
		}
	}
	uptime := time.Since(ts.startTime)
	return map[string]interface{}{
		"uptime_seconds":        uptime.Seconds(),
		"total_transfers":       count,
		"total_bytes":           bytes,
		"transfers_per_second":  float64(count) / uptime.Seconds(),
		"average_throughput_mb": (float64(bytes) / (1024 * 1024)) / uptime.Seconds(),
	}
}

// Reset drops all statistics
func (ts *TransferStats) Reset() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.schemes = make(map[string]map[types.Direction]*DirectionMetrics)
	ts.startTime = time.Now()
}
