/*
Package config provides the provider configuration registry and the YAML application
configuration for cloudpath.

# Configuration Architecture

Multi-source configuration hierarchy with precedence:

	┌─────────────────────────────────────────────┐
	│          Runtime Updates                    │ ← Highest Priority
	│     (Registry.Update / UpdateAuth)          │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Environment Variables                │
	│  (CLOUDPATH_*, AWS_*, MINIO_*, S3C_*, R2_*) │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration Files                 │
	│            (YAML format)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│      Provider Defaults (per Kind)           │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Providers and Schemes

Each backend family is a Kind. Schemes are aliases resolving to a kind:

	s3, aws          → aws
	mc, mio, minio   → minio
	s3c, s3compat    → s3c
	r2               → r2
	mem, memory      → memory
	file             → local (never stored in the registry)

The Registry stores one ProviderConfig per kind. Records are validated lazily, the first
time a bundle is built for them, so registering an incomplete record is not an error.
UpdateAuth mirrors credentials into the provider's native environment variables and
notifies listeners; the bundle cache uses this to drop stale clients.

# Usage Example

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile("cloudpath.yaml"); err != nil {
		return err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}

	registry, err := config.NewRegistryFromConfig(cfg)
	if err != nil {
		return err
	}

	err = registry.UpdateAuth("s3", map[string]interface{}{
		"access_key": "AKIA...",
		"secret_key": "...",
	})

# YAML Example

	global:
	  log_level: INFO
	  log_format: json
	performance:
	  max_concurrent_chunks: 8
	  multipart_threshold: 50MB
	providers:
	  minio:
	    endpoint: localhost:9000
	    secure: false
	    access_key: minioadmin
	    secret_key: minioadmin
	  r2:
	    account_id: 0123456789abcdef
*/
package config
