// Package retry provides retry logic with exponential backoff for callers of cloudpath.
//
// The cloudpath core never retries on its own. Command-line tools and embedders wrap whole
// operations with a Retryer instead, so a retried CopyTo restarts from the first byte.
package retry

import (
	"context"
	stderr "errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/objectfs/cloudpath/pkg/errors"
)

// Config controls how many times and how patiently a failed backend call is repeated.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first one
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// InitialDelay is the wait between the first failure and the second attempt
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`

	// MaxDelay caps the delay between retries
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`

	// Multiplier is the factor by which the delay grows after each retry
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`

	// Jitter spreads each delay by up to 20% in either direction
	Jitter bool `yaml:"jitter" json:"jitter"`

	// RetryableErrors lists the error codes retried even when the error is not flagged
	RetryableErrors []errors.ErrorCode `yaml:"retryable_errors" json:"retryable_errors"`

	// OnRetry runs after a failed attempt, before the backoff wait
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-" json:"-"`

	// Stats receives one record per finished call when set
	Stats *StatsCollector `yaml:"-" json:"-"`
}

// DefaultConfig returns the configuration used by the command-line tool.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryableErrors: []errors.ErrorCode{
			errors.ErrCodeTransferFailure,
			errors.ErrCodeInternal,
		},
	}
}

// Retryer runs operations until they succeed, fail permanently or run out of attempts.
type Retryer struct {
	config Config
}

// New creates a Retryer. Zero values fall back to DefaultConfig.
func New(config Config) *Retryer {
	def := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = def.Multiplier
	}
	return &Retryer{config: config}
}

// Config returns a copy of the configuration of r.
func (r *Retryer) Config() Config {
	return r.config
}

// Do executes fn with retry logic
func (r *Retryer) Do(fn func() error) error {
	return r.DoWithContext(context.Background(), func(context.Context) error {
		return fn()
	})
}

// DoWithContext executes fn until it succeeds or returns a permanent error. The context is
// checked before every attempt and interrupts the wait between attempts.
func (r *Retryer) DoWithContext(ctx context.Context, fn func(context.Context) error) error {
	var (
		lastErr error
		waited  time.Duration
		attempt int
	)
	defer func() {
		if r.config.Stats != nil {
			r.config.Stats.RecordAttempt(attempt, lastErr == nil, waited)
		}
	}()

	for attempt = 1; attempt <= r.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = fmt.Errorf("operation canceled: %w", err)
			return lastErr
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !r.Retryable(lastErr) {
			return lastErr
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		delay := r.calculateDelay(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			lastErr = fmt.Errorf("operation canceled after %d attempts: %w", attempt, ctx.Err())
			return lastErr
		case <-timer.C:
			waited += delay
		}
	}

	lastErr = fmt.Errorf("max retry attempts (%d) exceeded: %w", r.config.MaxAttempts, lastErr)
	return lastErr
}

// Retryable reports whether err is worth another attempt. Cancellation never is; coded
// errors are retried when flagged or when their code is listed in the configuration.
func (r *Retryer) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if stderr.Is(err, context.Canceled) || stderr.Is(err, context.DeadlineExceeded) {
		return false
	}

	var e *errors.Error
	if !stderr.As(err, &e) {
		return false
	}
	if e.Retryable {
		return true
	}
	for _, code := range r.config.RetryableErrors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// calculateDelay returns initialDelay * multiplier^(attempt-1), capped and jittered.
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		delay += delay * 0.2 * (rand.Float64()*2 - 1)
	}
	return time.Duration(delay)
}

// WithMaxAttempts returns a copy with a different attempt budget.
func (r *Retryer) WithMaxAttempts(attempts int) *Retryer {
	cfg := r.config
	cfg.MaxAttempts = attempts
	return New(cfg)
}

// WithInitialDelay returns a copy with a different first backoff.
func (r *Retryer) WithInitialDelay(delay time.Duration) *Retryer {
	cfg := r.config
	cfg.InitialDelay = delay
	return New(cfg)
}

// WithMaxDelay returns a copy with a different backoff ceiling.
func (r *Retryer) WithMaxDelay(delay time.Duration) *Retryer {
	cfg := r.config
	cfg.MaxDelay = delay
	return New(cfg)
}

// WithOnRetry returns a copy that invokes callback on every retry.
func (r *Retryer) WithOnRetry(callback func(attempt int, err error, delay time.Duration)) *Retryer {
	cfg := r.config
	cfg.OnRetry = callback
	return New(cfg)
}

// WithStats returns a new Retryer that records into sc.
func (r *Retryer) WithStats(sc *StatsCollector) *Retryer {
	cfg := r.config
	cfg.Stats = sc
	return New(cfg)
}

// LogRetries returns an OnRetry callback that logs each retry of op at warn level.
func LogRetries(logger *slog.Logger, op string) func(int, error, time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		logger.Warn("Retrying operation",
			"operation", op,
			"attempt", attempt,
			"delay", delay,
			"code", errors.CodeOf(err),
			"error", err)
	}
}

// RetryWithBackoff retries fn under the default policy with a custom attempt budget.
func RetryWithBackoff(ctx context.Context, maxAttempts int, fn func() error) error {
	return New(DefaultConfig()).WithMaxAttempts(maxAttempts).DoWithContext(ctx,
		func(context.Context) error { return fn() })
}

// Stats summarizes the calls made through a Retryer.
type Stats struct {
	Calls           int           `json:"calls"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	TotalAttempts   int           `json:"total_attempts"`
	AverageAttempts float64       `json:"average_attempts"`
	TotalDelay      time.Duration `json:"total_delay"`
	MaxAttemptsUsed int           `json:"max_attempts_used"`
}

// StatsCollector collects retry statistics. It is safe for concurrent use.
type StatsCollector struct {
	mu    sync.Mutex
	stats Stats
}

// NewStatsCollector returns an empty collector.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{}
}

// RecordAttempt records one finished call that took attempts tries and waited delay in total.
func (sc *StatsCollector) RecordAttempt(attempts int, success bool, delay time.Duration) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.stats.Calls++
	if success {
		sc.stats.Succeeded++
	} else {
		sc.stats.Failed++
	}
	sc.stats.TotalAttempts += attempts
	sc.stats.TotalDelay += delay
	if attempts > sc.stats.MaxAttemptsUsed {
		sc.stats.MaxAttemptsUsed = attempts
	}
	sc.stats.AverageAttempts = float64(sc.stats.TotalAttempts) / float64(sc.stats.Calls)
}

// GetStats returns a copy of the running totals.
func (sc *StatsCollector) GetStats() Stats {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.stats
}

// Reset clears the totals.
func (sc *StatsCollector) Reset() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.stats = Stats{}
}
