package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/cloudpath/internal/config"
	"github.com/objectfs/cloudpath/pkg/types"
	"github.com/objectfs/cloudpath/pkg/utils"
)

func TestSelectTiers(t *testing.T) {
	p := DefaultPolicy()
	noManager := Env{}

	tests := []struct {
		name        string
		size        int64
		tier        string
		chunk       int64
		buffer      int64
		concurrency int
		strategy    Strategy
	}{
		{"empty file", 0, "small", 8 * utils.KiB, 64 * utils.KiB, 2, StrategyPlain},
		{"just under 1MB", utils.MiB - 1, "small", 8 * utils.KiB, 64 * utils.KiB, 2, StrategyPlain},
		{"exactly 1MB", utils.MiB, "medium", 64 * utils.KiB, 256 * utils.KiB, 2, StrategyConcurrent},
		{"5MB", 5 * utils.MiB, "medium", 64 * utils.KiB, 256 * utils.KiB, 2, StrategyConcurrent},
		{"10MB", 10 * utils.MiB, "large", 256 * utils.KiB, utils.MiB, 4, StrategyConcurrent},
		{"just under 50MB", 50*utils.MiB - 1, "large", 256 * utils.KiB, utils.MiB, 4, StrategyConcurrent},
		{"50MB", 50 * utils.MiB, "xlarge", utils.MiB, 4 * utils.MiB, 8, StrategyConcurrent},
		{"5GB", 5 * utils.GiB, "xlarge", utils.MiB, 4 * utils.MiB, 8, StrategyConcurrent},
		{"unknown size", types.UnknownSize, "medium", 64 * utils.KiB, 256 * utils.KiB, 2, StrategyConcurrent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := p.Select(tt.size, types.DirectionRead, noManager)
			assert.Equal(t, tt.tier, plan.Tier)
			assert.Equal(t, tt.chunk, plan.ChunkSize)
			assert.Equal(t, tt.buffer, plan.BufferSize)
			assert.Equal(t, tt.concurrency, plan.Concurrency)
			assert.Equal(t, tt.strategy, plan.Strategy)
			assert.False(t, plan.UseManager)
		})
	}
}

func TestSelectManager(t *testing.T) {
	p := DefaultPolicy()
	big := 50 * utils.MiB

	tests := []struct {
		name string
		size int64
		env  Env
		want bool
	}{
		{"manager available and preferred", big, Env{HasManager: true, PreferManager: true}, true},
		{"not preferred", big, Env{HasManager: true}, false},
		{"no manager", big, Env{PreferManager: true}, false},
		{"below threshold", big - 1, Env{HasManager: true, PreferManager: true}, false},
		{"unknown size", types.UnknownSize, Env{HasManager: true, PreferManager: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := p.Select(tt.size, types.DirectionWrite, tt.env)
			assert.Equal(t, tt.want, plan.UseManager)
			if tt.want {
				assert.Equal(t, StrategyManager, plan.Strategy)
			}
		})
	}
}

func TestSelectMonotonic(t *testing.T) {
	p := DefaultPolicy()
	var prev Plan
	for size := int64(0); size <= 200*utils.MiB; size += 512 * utils.KiB {
		plan := p.Select(size, types.DirectionCopy, Env{})
		if size > 0 {
			assert.GreaterOrEqual(t, plan.ChunkSize, prev.ChunkSize)
			assert.GreaterOrEqual(t, plan.BufferSize, prev.BufferSize)
			assert.GreaterOrEqual(t, plan.Concurrency, prev.Concurrency)
		}
		assert.Equal(t, plan, p.Select(size, types.DirectionCopy, Env{}), "Select must be deterministic")
		prev = plan
	}
}

func TestNewPolicyCustomTiers(t *testing.T) {
	perf := config.NewDefault().Performance
	perf.MaxConcurrentChunks = 3
	perf.Tiers = []config.TierConfig{
		{Name: "only", ChunkSize: utils.ByteSize(utils.MiB), BufferSize: utils.ByteSize(utils.MiB), Concurrency: 16},
	}

	p, err := NewPolicy(perf)
	require.NoError(t, err)
	assert.Equal(t, 3, p.MaxConcurrent())

	plan := p.Select(types.UnknownSize, types.DirectionRead, Env{})
	assert.Equal(t, "only", plan.Tier)
	assert.Equal(t, 3, plan.Concurrency, "tier concurrency is capped by max_concurrent_chunks")

	perf.Tiers = nil
	_, err = NewPolicy(perf)
	assert.Error(t, err)
}
