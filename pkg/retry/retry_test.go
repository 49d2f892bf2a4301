package retry

import (
	"context"
	stderr "errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/cloudpath/pkg/errors"
)

func fastConfig(attempts int) Config {
	config := DefaultConfig()
	config.MaxAttempts = attempts
	config.InitialDelay = time.Millisecond
	config.MaxDelay = 5 * time.Millisecond
	config.Jitter = false
	return config
}

func TestRetryer_Success(t *testing.T) {
	retryer := New(fastConfig(3))

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryer_RetryableError(t *testing.T) {
	retryer := New(fastConfig(3))

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		if attempts < 3 {
			return errors.TransferFailure("s3", "bucket/key", "write", io.ErrUnexpectedEOF)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryer_NonRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", errors.NotFound("s3", "bucket/key", nil)},
		{"destination exists", errors.DestinationExists("s3", "bucket/key")},
		{"configuration", errors.ConfigurationError("r2", "missing account", nil)},
		{"plain error", fmt.Errorf("boom")},
		{"canceled", context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryer := New(fastConfig(5))
			attempts := 0
			err := retryer.Do(func() error {
				attempts++
				return tt.err
			})
			require.Error(t, err)
			assert.Equal(t, 1, attempts)
			assert.True(t, stderr.Is(err, tt.err))
		})
	}
}

func TestRetryer_MaxAttemptsExceeded(t *testing.T) {
	retryer := New(fastConfig(3))

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		return errors.NewError(errors.ErrCodeInternal, "flaky")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "max retry attempts (3) exceeded")
	assert.Equal(t, errors.ErrCodeInternal, errors.CodeOf(err))
}

func TestRetryer_ConfiguredCodes(t *testing.T) {
	config := fastConfig(3)
	config.RetryableErrors = []errors.ErrorCode{errors.ErrCodeBackendUnavailable}
	retryer := New(config)

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		if attempts == 1 {
			return errors.BackendUnavailable("s3", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	flagged := errors.NewError(errors.ErrCodeAccessDenied, "denied")
	flagged.Retryable = true
	assert.True(t, retryer.Retryable(flagged))
	assert.True(t, retryer.Retryable(fmt.Errorf("wrapped: %w", errors.BackendUnavailable("gs", nil))))
	assert.False(t, retryer.Retryable(errors.NotFound("gs", "b/k", nil)))
	assert.False(t, retryer.Retryable(nil))
}

func TestRetryer_ContextCancellation(t *testing.T) {
	config := fastConfig(10)
	config.InitialDelay = time.Second
	config.MaxDelay = time.Second
	retryer := New(config)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	start := time.Now()
	err := retryer.DoWithContext(ctx, func(ctx context.Context) error {
		attempts++
		return errors.TransferFailure("s3", "bucket/key", "read", io.ErrUnexpectedEOF)
	})

	require.Error(t, err)
	assert.True(t, stderr.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestRetryer_CanceledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := New(fastConfig(3)).DoWithContext(ctx, func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, stderr.Is(err, context.Canceled))
	assert.False(t, called)
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	var seen []int
	retryer := New(fastConfig(3)).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		seen = append(seen, attempt)
		assert.Equal(t, errors.ErrCodeTransferFailure, errors.CodeOf(err))
	})

	attempts := 0
	_ = retryer.Do(func() error {
		attempts++
		if attempts < 3 {
			return errors.TransferFailure("mem", "b/k", "write", nil)
		}
		return nil
	})

	assert.Equal(t, []int{1, 2}, seen)
}

func TestRetryer_CalculateDelay(t *testing.T) {
	config := DefaultConfig()
	config.InitialDelay = 100 * time.Millisecond
	config.MaxDelay = time.Second
	config.Multiplier = 2.0
	config.Jitter = false
	retryer := New(config)

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{6, time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.expected, retryer.calculateDelay(tt.attempt))
		})
	}
}

func TestRetryer_CalculateDelayWithJitter(t *testing.T) {
	config := DefaultConfig()
	config.InitialDelay = 100 * time.Millisecond
	config.Jitter = true
	retryer := New(config)

	for i := 0; i < 50; i++ {
		delay := retryer.calculateDelay(1)
		assert.GreaterOrEqual(t, delay, 80*time.Millisecond)
		assert.LessOrEqual(t, delay, 120*time.Millisecond)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	retryer := New(Config{})
	def := DefaultConfig()
	cfg := retryer.Config()

	assert.Equal(t, def.MaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, def.InitialDelay, cfg.InitialDelay)
	assert.Equal(t, def.MaxDelay, cfg.MaxDelay)
	assert.Equal(t, def.Multiplier, cfg.Multiplier)
}

func TestRetryer_Builders(t *testing.T) {
	base := New(DefaultConfig())
	modified := base.WithMaxAttempts(7).WithInitialDelay(time.Millisecond).WithMaxDelay(time.Minute)

	assert.Equal(t, 7, modified.Config().MaxAttempts)
	assert.Equal(t, time.Millisecond, modified.Config().InitialDelay)
	assert.Equal(t, time.Minute, modified.Config().MaxDelay)
	assert.Equal(t, DefaultConfig().MaxAttempts, base.Config().MaxAttempts)
}

func TestRetryWithBackoff(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), 2, func() error {
		attempts++
		return errors.NotFound("mem", "b/k", nil)
	})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, 1, attempts)
}

func TestStatsCollector(t *testing.T) {
	sc := NewStatsCollector()
	retryer := New(fastConfig(3)).WithStats(sc)

	attempts := 0
	require.NoError(t, retryer.Do(func() error {
		attempts++
		if attempts < 2 {
			return errors.TransferFailure("mem", "b/k", "read", nil)
		}
		return nil
	}))
	require.Error(t, retryer.Do(func() error {
		return errors.TransferFailure("mem", "b/k", "read", nil)
	}))

	stats := sc.GetStats()
	assert.Equal(t, 2, stats.Calls)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 5, stats.TotalAttempts)
	assert.Equal(t, 3, stats.MaxAttemptsUsed)
	assert.InDelta(t, 2.5, stats.AverageAttempts, 0.001)
	assert.Greater(t, stats.TotalDelay, time.Duration(0))

	sc.Reset()
	assert.Equal(t, Stats{}, sc.GetStats())
}

func TestLogRetries(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	retryer := New(fastConfig(2)).WithOnRetry(LogRetries(logger, "copy"))

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		if attempts == 1 {
			return errors.TransferFailure("mem", "b/k", "copy", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}
