package s3

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	awsconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	cpconfig "github.com/objectfs/cloudpath/internal/config"
)

// ClientManager handles S3 client creation and management
type ClientManager struct {
	client  *s3.Client
	presign *s3.PresignClient
	config  *Config
	logger  *slog.Logger
}

// NewClientManager creates a new S3 client manager
func NewClientManager(ctx context.Context, cfg *Config, logger *slog.Logger) (*ClientManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("s3 configuration cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(regionOrDefault(cfg.Region)),
		config.WithHTTPClient(awshttp.NewBuildableClient().WithTransportOptions(func(t *http.Transport) {
			t.MaxIdleConns = cfg.MaxPoolConnections
			t.MaxIdleConnsPerHost = cfg.MaxPoolConnections
		})),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken)))
	}

	// Load AWS configuration
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client with custom options
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
		o.UseAccelerate = cfg.Accelerate
		if cfg.Kind != cpconfig.KindAWS {
			// S3-compatible services reject the default trailing checksums
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	})

	logger.Debug("S3 client created",
		"kind", cfg.Kind,
		"endpoint", cfg.Endpoint,
		"region", cfg.Region,
		"path_style", cfg.UsePathStyle,
		"accelerate", cfg.Accelerate)

	return &ClientManager{
		client:  client,
		presign: s3.NewPresignClient(client),
		config:  cfg,
		logger:  logger,
	}, nil
}

func regionOrDefault(region string) string {
	if region == "" {
		return cpconfig.DefaultRegion
	}
	return region
}

// GetClient returns the main S3 client
func (cm *ClientManager) GetClient() *s3.Client {
	return cm.client
}

// GetPresignClient returns the presigning client
func (cm *ClientManager) GetPresignClient() *s3.PresignClient {
	return cm.presign
}

// NewTransporter returns a CargoShip transporter bound to bucket, or nil when CargoShip
// optimization is disabled
func (cm *ClientManager) NewTransporter(bucket string) *cargoships3.Transporter {
	if !cm.config.UseCargoship {
		return nil
	}

	cargoConfig := awsconfig.S3Config{
		Bucket:             bucket,
		StorageClass:       cargoStorageClass(cm.config.StorageClass),
		MultipartThreshold: cm.config.MultipartThreshold,
		MultipartChunkSize: cm.config.PartSize,
		Concurrency:        cm.config.Concurrency,
	}
	cm.logger.Info("CargoShip S3 optimization enabled",
		"bucket", bucket,
		"chunk_size", cm.config.PartSize,
		"concurrency", cm.config.Concurrency)
	return cargoships3.NewTransporter(cm.client, cargoConfig)
}

// HealthCheck verifies the client connection
func (cm *ClientManager) HealthCheck(ctx context.Context, bucket string) error {
	_, err := cm.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		return fmt.Errorf("S3 health check failed: %w", err)
	}
	return nil
}

func storageClass(class string) s3types.StorageClass {
	return s3types.StorageClass(class)
}

func cargoStorageClass(class string) awsconfig.StorageClass {
	switch s3types.StorageClass(class) {
	case s3types.StorageClassStandardIa:
		return awsconfig.StorageClassStandardIA
	case s3types.StorageClassOnezoneIa:
		return awsconfig.StorageClassOneZoneIA
	case s3types.StorageClassGlacier:
		return awsconfig.StorageClassGlacier
	case s3types.StorageClassDeepArchive:
		return awsconfig.StorageClassDeepArchive
	case s3types.StorageClassIntelligentTiering:
		return awsconfig.StorageClassIntelligentTiering
	default:
		return awsconfig.StorageClassStandard
	}
}
