package minio

import (
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	cpconfig "github.com/objectfs/cloudpath/internal/config"
)

// newClient builds the minio-go client and its low-level Core view
func newClient(cfg *Config) (*minio.Client, *minio.Core, error) {
	host := cfg.Host()
	if host == "" {
		return nil, nil, fmt.Errorf("minio endpoint cannot be empty")
	}

	transport, err := minio.DefaultTransport(cfg.Secure)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create transport: %w", err)
	}
	if cfg.MaxPoolConnections > 0 {
		transport.MaxIdleConns = cfg.MaxPoolConnections
		transport.MaxIdleConnsPerHost = cfg.MaxPoolConnections
	}

	region := cfg.Region
	if region == "" {
		region = cpconfig.DefaultRegion
	}
	lookup := minio.BucketLookupAuto
	if cfg.UsePathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		Secure:       cfg.Secure,
		Region:       region,
		BucketLookup: lookup,
		Transport:    transport,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create minio client: %w", err)
	}
	return client, &minio.Core{Client: client}, nil
}
