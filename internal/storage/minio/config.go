package minio

import (
	"time"

	"github.com/objectfs/cloudpath/internal/config"
	"github.com/objectfs/cloudpath/internal/storage/dircache"
)

// DefaultManagerThreads is the part parallelism of transfer manager uploads
const DefaultManagerThreads = 4

// Config represents MinIO backend configuration
type Config struct {
	config.DriverConfig

	PartSize       int64 // transfer manager part size
	ManagerThreads uint  // transfer manager upload threads

	ListingCacheSize int
	ListingCacheTTL  time.Duration
}

// NewConfig derives the backend configuration from a provider record
func NewConfig(p *config.ProviderConfig) *Config {
	return &Config{
		DriverConfig:     p.BuildDriverConfig(),
		PartSize:         p.WriteChunkSize(),
		ManagerThreads:   DefaultManagerThreads,
		ListingCacheSize: dircache.DefaultSize,
		ListingCacheTTL:  dircache.DefaultTTL,
	}
}
