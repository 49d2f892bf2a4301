package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/objectfs/cloudpath/internal/chunk"
	"github.com/objectfs/cloudpath/internal/multipart"
	"github.com/objectfs/cloudpath/pkg/errors"
	"github.com/objectfs/cloudpath/pkg/types"
)

// Collector records cloudpath activity on a private Prometheus registry
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *slog.Logger

	// Prometheus metrics
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorCounter      *prometheus.CounterVec
	transferBytes     *prometheus.CounterVec
	transferSize      *prometheus.HistogramVec
	planCounter       *prometheus.CounterVec
	partCounter       *prometheus.CounterVec
	partSize          *prometheus.HistogramVec
	commitCounter     *prometheus.CounterVec
	fallbackCounter   *prometheus.CounterVec
	bundleBuilds      *prometheus.CounterVec
	bundleDuration    prometheus.Histogram

	// Internal tracking
	operations map[string]*OperationMetrics
	transfers  *TransferStats
	lastReset  time.Time

	// HTTP server for metrics endpoint
	server   *http.Server
	listener net.Listener
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Addr      string            `yaml:"addr"`
	Path      string            `yaml:"path"`
	Labels    map[string]string `yaml:"labels"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
}

// DefaultConfig returns an enabled configuration serving /metrics on :9464.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Addr:      ":9464",
		Path:      "/metrics",
		Namespace: "cloudpath",
		Labels:    make(map[string]string),
	}
}

// OperationMetrics tracks metrics for one scheme and operation
type OperationMetrics struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	Errors        int64         `json:"errors"`
	LastOperation time.Time     `json:"last_operation"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// NewCollector creates a new metrics collector. A nil config means DefaultConfig.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}

	c := &Collector{
		config: config,
		logger: slog.Default().With("component", "metrics"),
	}
	if !config.Enabled {
		return c, nil
	}

	c.registry = prometheus.NewRegistry()
	c.operations = make(map[string]*OperationMetrics)
	c.transfers = NewTransferStats()
	c.lastReset = time.Now()

	c.initMetrics()
	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return c, nil
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool { return c.config.Enabled }

// Registry returns the private registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the metrics endpoint and the debug pages.
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	if !c.config.Enabled {
		mux.HandleFunc("/health", c.healthHandler)
		return mux
	}
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/operations", c.debugOperationsHandler)
	mux.HandleFunc("/debug/transfers", c.debugTransfersHandler)
	return mux
}

// Start serves Handler on config.Addr until Stop or ctx is done.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	ln, err := net.Listen("tcp", c.config.Addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	c.mu.Lock()
	c.listener = ln
	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	server := c.server
	c.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			c.logger.Error("Metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()

	c.logger.Info("Metrics server started", "addr", ln.Addr().String(), "path", c.config.Path)
	return nil
}

// Addr returns the listening address once started.
func (c *Collector) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Stop stops the metrics server
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	server := c.server
	c.server = nil
	c.mu.Unlock()
	if server != nil {
		return server.Shutdown(ctx)
	}
	return nil
}

// ObserveOperation records one dispatched catalog operation.
func (c *Collector) ObserveOperation(scheme, op string, duration time.Duration, err error) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	key := scheme + ":" + op
	m, ok := c.operations[key]
	if !ok {
		m = &OperationMetrics{}
		c.operations[key] = m
	}
	m.Count++
	m.TotalDuration += duration
	if err != nil {
		m.Errors++
	}
	m.LastOperation = time.Now()
	m.AvgDuration = time.Duration(int64(m.TotalDuration) / m.Count)
	c.mu.Unlock()

	status := "success"
	if err != nil {
		status = "error"
		c.errorCounter.With(prometheus.Labels{"operation": op, "type": classifyError(err)}).Inc()
	}
	c.operationCounter.With(prometheus.Labels{"scheme": scheme, "operation": op, "status": status}).Inc()
	c.operationDuration.With(prometheus.Labels{"scheme": scheme, "operation": op}).Observe(duration.Seconds())
}

// RecordTransfer records bytes moved in one read or write.
func (c *Collector) RecordTransfer(scheme string, dir types.Direction, bytes int64, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.transferBytes.With(prometheus.Labels{"scheme": scheme, "direction": string(dir)}).Add(float64(bytes))
	c.transferSize.With(prometheus.Labels{"direction": string(dir)}).Observe(float64(bytes))
	c.transfers.Record(scheme, dir, bytes, duration)
}

// ObservePlan records a chunk policy decision.
func (c *Collector) ObservePlan(plan chunk.Plan) {
	if !c.config.Enabled {
		return
	}
	c.planCounter.With(prometheus.Labels{
		"direction": string(plan.Direction),
		"tier":      plan.Tier,
		"strategy":  string(plan.Strategy),
	}).Inc()
}

// ObservePart implements multipart.Observer.
func (c *Collector) ObservePart(scheme string, size int64) {
	if !c.config.Enabled {
		return
	}
	c.partCounter.With(prometheus.Labels{"scheme": scheme}).Inc()
	c.partSize.With(prometheus.Labels{"scheme": scheme}).Observe(float64(size))
}

// ObserveCommit implements multipart.Observer.
func (c *Collector) ObserveCommit(scheme string, strategy multipart.State) {
	if !c.config.Enabled {
		return
	}
	c.commitCounter.With(prometheus.Labels{"scheme": scheme, "strategy": strategy.String()}).Inc()
}

// ObserveFallback implements multipart.Observer.
func (c *Collector) ObserveFallback(scheme, reason string) {
	if !c.config.Enabled {
		return
	}
	c.fallbackCounter.With(prometheus.Labels{"scheme": scheme, "reason": reason}).Inc()
}

// ObserveBundleBuild records one bundle construction.
func (c *Collector) ObserveBundleBuild(scheme string, duration time.Duration, err error) {
	if !c.config.Enabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.bundleBuilds.With(prometheus.Labels{"scheme": scheme, "status": status}).Inc()
	c.bundleDuration.Observe(duration.Seconds())
}

// GetMetrics returns a snapshot of the internal tracking.
func (c *Collector) GetMetrics() map[string]interface{} {
	out := make(map[string]interface{})
	if !c.config.Enabled {
		return out
	}

	c.mu.RLock()
	operations := make(map[string]OperationMetrics, len(c.operations))
	for k, v := range c.operations {
		operations[k] = *v
	}
	lastReset := c.lastReset
	c.mu.RUnlock()

	out["operations"] = operations
	out["transfers"] = c.transfers.Snapshot()
	out["last_reset"] = lastReset
	out["uptime"] = time.Since(lastReset)
	return out
}

// ResetMetrics resets the internal tracking. Prometheus counters are never reset.
func (c *Collector) ResetMetrics() {
	if !c.config.Enabled {
		return
	}
	c.mu.Lock()
	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
	c.mu.Unlock()
	c.transfers.Reset()
}

// Helper methods

func (c *Collector) initMetrics() {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: c.config.Labels,
		}
	}
	hist := func(name, help string, buckets []float64) prometheus.HistogramOpts {
		o := opts(name, help)
		return prometheus.HistogramOpts{
			Namespace: o.Namespace, Subsystem: o.Subsystem, Name: o.Name, Help: o.Help,
			ConstLabels: o.ConstLabels, Buckets: buckets,
		}
	}
	sizeBuckets := prometheus.ExponentialBuckets(1024, 4, 12) // 1KB to 4GB

	c.operationCounter = prometheus.NewCounterVec(prometheus.CounterOpts(opts("operations_total",
		"Total number of dispatched operations")), []string{"scheme", "operation", "status"})
	c.operationDuration = prometheus.NewHistogramVec(hist("operation_duration_seconds",
		"Duration of dispatched operations in seconds",
		prometheus.ExponentialBuckets(0.001, 2, 15)), // 1ms to ~32s
		[]string{"scheme", "operation"})
	c.errorCounter = prometheus.NewCounterVec(prometheus.CounterOpts(opts("errors_total",
		"Total number of failed operations by error type")), []string{"operation", "type"})
	c.transferBytes = prometheus.NewCounterVec(prometheus.CounterOpts(opts("transfer_bytes_total",
		"Bytes moved by reads and writes")), []string{"scheme", "direction"})
	c.transferSize = prometheus.NewHistogramVec(hist("transfer_size_bytes",
		"Size of individual transfers in bytes", sizeBuckets), []string{"direction"})
	c.planCounter = prometheus.NewCounterVec(prometheus.CounterOpts(opts("chunk_plans_total",
		"Chunk policy decisions")), []string{"direction", "tier", "strategy"})
	c.partCounter = prometheus.NewCounterVec(prometheus.CounterOpts(opts("multipart_parts_total",
		"Multipart parts uploaded")), []string{"scheme"})
	c.partSize = prometheus.NewHistogramVec(hist("multipart_part_size_bytes",
		"Size of uploaded multipart parts", sizeBuckets), []string{"scheme"})
	c.commitCounter = prometheus.NewCounterVec(prometheus.CounterOpts(opts("multipart_commits_total",
		"Committed write handles by strategy")), []string{"scheme", "strategy"})
	c.fallbackCounter = prometheus.NewCounterVec(prometheus.CounterOpts(opts("multipart_fallbacks_total",
		"Switches to large transfer")), []string{"scheme", "reason"})
	c.bundleBuilds = prometheus.NewCounterVec(prometheus.CounterOpts(opts("bundle_builds_total",
		"Bundle constructions")), []string{"scheme", "status"})
	c.bundleDuration = prometheus.NewHistogram(hist("bundle_build_duration_seconds",
		"Duration of bundle constructions", prometheus.DefBuckets))
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.errorCounter,
		c.transferBytes,
		c.transferSize,
		c.planCounter,
		c.partCounter,
		c.partSize,
		c.commitCounter,
		c.fallbackCounter,
		c.bundleBuilds,
		c.bundleDuration,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

// classifyError labels err by its structured code, falling back to message heuristics.
func classifyError(err error) string {
	if code := errors.CodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "connection"):
		return "connection"
	case strings.Contains(msg, "not found"):
		return "not_found"
	case strings.Contains(msg, "permission"), strings.Contains(msg, "denied"):
		return "permission"
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "slow down"):
		return "throttling"
	default:
		return "other"
	}
}

// HTTP handlers

func (c *Collector) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"cloudpath-metrics"}`)) // Ignore write error for health check
}

func (c *Collector) debugOperationsHandler(w http.ResponseWriter, _ *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain")
	writef := func(format string, args ...interface{}) { _, _ = fmt.Fprintf(w, format, args...) }

	writef("cloudpath operations summary\n")
	writef("============================\n\n")
	writef("Uptime: %v\n", time.Since(c.lastReset).Round(time.Second))
	writef("Last Reset: %v\n\n", c.lastReset.Format(time.RFC3339))

	if len(c.operations) == 0 {
		writef("No operations recorded.\n")
		return
	}

	names := make([]string, 0, len(c.operations))
	for name := range c.operations {
		names = append(names, name)
	}
	sort.Strings(names)

	writef("%-28s %10s %10s %14s %10s\n", "Operation", "Count", "Errors", "Avg Duration", "Last Op")
	writef("%-28s %10s %10s %14s %10s\n", "---------", "-----", "------", "------------", "-------")
	for _, name := range names {
		op := c.operations[name]
		writef("%-28s %10d %10d %14v %10s\n",
			name, op.Count, op.Errors, op.AvgDuration, op.LastOperation.Format("15:04:05"))
	}
}

func (c *Collector) debugTransfersHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(c.transfers.Snapshot())
}

var _ multipart.Observer = (*Collector)(nil)
