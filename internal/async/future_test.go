package async

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoResolves(t *testing.T) {
	f := Go(context.Background(), func(context.Context) (int, error) { return 42, nil })
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	select {
	case <-f.Done():
	default:
		t.Fatal("Done should be closed after Await returns")
	}
}

func TestOffloadError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Offload(context.Background(), func() (string, error) { return "", boom }).Get()
	assert.ErrorIs(t, err, boom)
}

func TestAwaitContextCanceled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f := Offload(context.Background(), func() (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolvedAndFailed(t *testing.T) {
	v, err := Resolved("x", nil).Get()
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	boom := errors.New("nope")
	n, err := Failed[int](boom).Get()
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, n)
}

func TestThenAndAll(t *testing.T) {
	ctx := context.Background()
	doubled := Then(ctx, Resolved(21, nil), func(_ context.Context, v int) (int, error) { return v * 2, nil })

	values, err := All(ctx, doubled, Resolved(1, nil))
	require.NoError(t, err)
	assert.Equal(t, []int{42, 1}, values)

	boom := errors.New("first")
	skipped := Then(ctx, Failed[int](boom), func(context.Context, int) (int, error) {
		t.Error("continuation must not run after failure")
		return 0, nil
	})
	_, err = All(ctx, Resolved(1, nil), skipped)
	assert.ErrorIs(t, err, boom)
}
