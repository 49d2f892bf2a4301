package s3

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"

	cperrors "github.com/objectfs/cloudpath/pkg/errors"
)

// BackendMetrics is a point-in-time view of one S3-family backend.
type BackendMetrics struct {
	Requests        int64         `json:"requests"`
	Errors          int64         `json:"errors"`
	BytesUploaded   int64         `json:"bytes_uploaded"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	AverageLatency  time.Duration `json:"average_latency"`
	LastError       string        `json:"last_error,omitempty"`
	LastErrorTime   time.Time     `json:"last_error_time,omitempty"`

	// ErrorsByCode counts failed requests by taxonomy code; untranslated errors count as "".
	ErrorsByCode map[cperrors.ErrorCode]int64 `json:"errors_by_code,omitempty"`

	ManagerUploads   int64 `json:"manager_uploads"`
	CargoShipUploads int64 `json:"cargoship_uploads"`
	// FallbackEvents counts CargoShip uploads that were redone on the SDK uploader.
	FallbackEvents int64 `json:"fallback_events"`
}

// MetricsCollector aggregates the request counters of one backend. Byte and transfer counters
// are lock-free; the latency average and the error breakdown share a mutex.
type MetricsCollector struct {
	requests        atomic.Int64
	bytesUploaded   atomic.Int64
	bytesDownloaded atomic.Int64
	managerUploads  atomic.Int64
	cargoship       atomic.Int64
	fallbacks       atomic.Int64

	mu        sync.Mutex
	errors    int64
	byCode    map[cperrors.ErrorCode]int64
	latency   time.Duration
	lastErr   string
	lastErrAt time.Time
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{byCode: map[cperrors.ErrorCode]int64{}}
}

// RecordMetrics records one request with its duration and outcome. The latency is an
// exponentially weighted average giving the newest request a weight of 1/10.
func (mc *MetricsCollector) RecordMetrics(duration time.Duration, err error) {
	n := mc.requests.Add(1)

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if n == 1 {
		mc.latency = duration
	} else {
		mc.latency = (mc.latency*9 + duration) / 10
	}
	if err != nil {
		mc.errors++
		mc.byCode[cperrors.CodeOf(err)]++
		mc.lastErr = err.Error()
		mc.lastErrAt = time.Now()
	}
}

// RecordBytesUploaded adds bytes written by a put, a part upload or a copy.
func (mc *MetricsCollector) RecordBytesUploaded(bytes int64) { mc.bytesUploaded.Add(bytes) }

// RecordBytesDownloaded adds bytes read from an object body.
func (mc *MetricsCollector) RecordBytesDownloaded(bytes int64) { mc.bytesDownloaded.Add(bytes) }

// RecordManagerUpload records one object handed to the transfer manager.
func (mc *MetricsCollector) RecordManagerUpload(bytes int64, cargoship bool) {
	mc.managerUploads.Add(1)
	mc.bytesUploaded.Add(bytes)
	if cargoship {
		mc.cargoship.Add(1)
	}
}

// RecordFallbackEvent records a CargoShip upload that failed over to the SDK uploader.
func (mc *MetricsCollector) RecordFallbackEvent() { mc.fallbacks.Add(1) }

// GetMetrics returns a snapshot of the counters.
func (mc *MetricsCollector) GetMetrics() BackendMetrics {
	m := BackendMetrics{
		Requests:         mc.requests.Load(),
		BytesUploaded:    mc.bytesUploaded.Load(),
		BytesDownloaded:  mc.bytesDownloaded.Load(),
		ManagerUploads:   mc.managerUploads.Load(),
		CargoShipUploads: mc.cargoship.Load(),
		FallbackEvents:   mc.fallbacks.Load(),
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	m.Errors = mc.errors
	m.AverageLatency = mc.latency
	m.LastError = mc.lastErr
	m.LastErrorTime = mc.lastErrAt
	if len(mc.byCode) > 0 {
		m.ErrorsByCode = maps.Clone(mc.byCode)
	}
	return m
}

// Reset zeroes every counter.
func (mc *MetricsCollector) Reset() {
	for _, c := range []*atomic.Int64{&mc.requests, &mc.bytesUploaded, &mc.bytesDownloaded,
		&mc.managerUploads, &mc.cargoship, &mc.fallbacks} {
		c.Store(0)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.errors = 0
	mc.byCode = map[cperrors.ErrorCode]int64{}
	mc.latency = 0
	mc.lastErr = ""
	mc.lastErrAt = time.Time{}
}

// GetErrorRate returns failed requests over all requests.
func (mc *MetricsCollector) GetErrorRate() float64 {
	m := mc.GetMetrics()
	if m.Requests == 0 {
		return 0
	}
	return float64(m.Errors) / float64(m.Requests)
}
