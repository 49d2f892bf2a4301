// Package chunk selects transfer strategies by object size and runs bounded
// producer/consumer chunk pipelines.
package chunk

import (
	"fmt"

	"github.com/objectfs/cloudpath/internal/config"
	"github.com/objectfs/cloudpath/pkg/types"
)

// Strategy is how a transfer moves its bytes.
type Strategy string

const (
	// StrategyPlain reads or writes the whole payload in one call.
	StrategyPlain Strategy = "plain"
	// StrategyConcurrent runs the chunk engine.
	StrategyConcurrent Strategy = "concurrent"
	// StrategyManager hands the transfer to the provider transfer manager.
	StrategyManager Strategy = "manager"
)

// Tier is one size band of the policy.
type Tier struct {
	Name        string
	UpTo        int64 // exclusive upper bound, 0 for unbounded
	ChunkSize   int64
	BufferSize  int64
	Concurrency int
}

// Env describes what the target backend offers for one direction.
type Env struct {
	HasManager    bool
	PreferManager bool
}

// Plan is the outcome of Select.
type Plan struct {
	Direction   types.Direction
	Size        int64
	Tier        string
	ChunkSize   int64
	BufferSize  int64
	Concurrency int
	UseManager  bool
	Strategy    Strategy
}

// Policy maps object sizes to transfer plans. It is immutable and safe for concurrent use.
type Policy struct {
	tiers              []Tier
	maxConcurrent      int
	multipartThreshold int64
	multipartChunkSize int64
}

// NewPolicy builds a policy from the performance section.
func NewPolicy(perf config.PerformanceConfig) (*Policy, error) {
	if err := config.ValidateTiers(perf.Tiers); err != nil {
		return nil, err
	}
	if perf.MaxConcurrentChunks <= 0 {
		return nil, fmt.Errorf("max_concurrent_chunks must be greater than 0")
	}

	p := &Policy{
		tiers:              make([]Tier, len(perf.Tiers)),
		maxConcurrent:      perf.MaxConcurrentChunks,
		multipartThreshold: perf.MultipartThreshold.Int64(),
		multipartChunkSize: perf.MultipartChunkSize.Int64(),
	}
	for i, t := range perf.Tiers {
		concurrency := t.Concurrency
		if concurrency == 0 || concurrency > perf.MaxConcurrentChunks {
			concurrency = perf.MaxConcurrentChunks
		}
		p.tiers[i] = Tier{
			Name:        t.Name,
			UpTo:        t.UpTo.Int64(),
			ChunkSize:   t.ChunkSize.Int64(),
			BufferSize:  t.BufferSize.Int64(),
			Concurrency: concurrency,
		}
	}
	return p, nil
}

// DefaultPolicy returns the policy of config.NewDefault.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(config.NewDefault().Performance)
	if err != nil {
		panic(err)
	}
	return p
}

// Tiers returns a copy of the configured tiers.
func (p *Policy) Tiers() []Tier { return append([]Tier(nil), p.tiers...) }

// MaxConcurrent is the concurrency ceiling of the engine.
func (p *Policy) MaxConcurrent() int { return p.maxConcurrent }

// MultipartThreshold is the size from which the transfer manager may take over.
func (p *Policy) MultipartThreshold() int64 { return p.multipartThreshold }

// MultipartChunkSize is the part size handed to transfer managers.
func (p *Policy) MultipartChunkSize() int64 { return p.multipartChunkSize }

// Select picks the plan for moving size bytes. size is types.UnknownSize when the length
// is not known, in which case the medium tier applies. Select performs no I/O.
func (p *Policy) Select(size int64, dir types.Direction, env Env) Plan {
	tier := p.tierFor(size)
	plan := Plan{
		Direction:   dir,
		Size:        size,
		Tier:        tier.Name,
		ChunkSize:   tier.ChunkSize,
		BufferSize:  tier.BufferSize,
		Concurrency: tier.Concurrency,
		UseManager:  size >= 0 && size >= p.multipartThreshold && env.HasManager && env.PreferManager,
	}

	switch {
	case plan.UseManager:
		plan.Strategy = StrategyManager
	case size >= 0 && len(p.tiers) > 1 && size < p.tiers[0].UpTo:
		plan.Strategy = StrategyPlain
	default:
		plan.Strategy = StrategyConcurrent
	}
	return plan
}

func (p *Policy) tierFor(size int64) Tier {
	if size < 0 {
		return p.tiers[p.mediumIndex()]
	}
	for _, t := range p.tiers {
		if t.UpTo == 0 || size < t.UpTo {
			return t
		}
	}
	return p.tiers[len(p.tiers)-1]
}

func (p *Policy) mediumIndex() int {
	if len(p.tiers) > 1 {
		return 1
	}
	return 0
}
