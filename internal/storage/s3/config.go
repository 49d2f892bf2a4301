package s3

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"

	"github.com/objectfs/cloudpath/internal/config"
	"github.com/objectfs/cloudpath/internal/storage/dircache"
)

// Config represents S3 backend configuration
type Config struct {
	config.DriverConfig

	// Transfer settings
	PartSize           int64 // transfer manager part size
	Concurrency        int   // transfer manager goroutines per object
	MultipartThreshold int64 // cargoship multipart threshold

	// Listing cache settings
	ListingCacheSize int
	ListingCacheTTL  time.Duration
}

// NewConfig derives the backend configuration from a provider record
func NewConfig(p *config.ProviderConfig) *Config {
	return &Config{
		DriverConfig:       p.BuildDriverConfig(),
		PartSize:           p.WriteChunkSize(),
		Concurrency:        manager.DefaultUploadConcurrency,
		MultipartThreshold: p.MultipartThreshold(),
		ListingCacheSize:   dircache.DefaultSize,
		ListingCacheTTL:    dircache.DefaultTTL,
	}
}
