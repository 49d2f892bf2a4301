package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/objectfs/cloudpath/pkg/utils"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global      GlobalConfig               `yaml:"global"`
	Performance PerformanceConfig          `yaml:"performance"`
	Providers   map[string]*ProviderConfig `yaml:"providers"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	LogFile     string `yaml:"log_file"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// PerformanceConfig represents transfer tuning shared by every provider
type PerformanceConfig struct {
	Tiers               []TierConfig   `yaml:"tiers"`
	MaxConcurrentChunks int            `yaml:"max_concurrent_chunks"`
	MultipartThreshold  utils.ByteSize `yaml:"multipart_threshold"`
	MultipartChunkSize  utils.ByteSize `yaml:"multipart_chunk_size"`
	ListingCacheTTL     time.Duration  `yaml:"listing_cache_ttl"`
	ListingCacheSize    int            `yaml:"listing_cache_size"`
	ShutdownTimeout     time.Duration  `yaml:"shutdown_timeout"`
}

// TierConfig is one size tier of the chunk policy. UpTo is exclusive; zero means unbounded.
// A zero Concurrency uses MaxConcurrentChunks.
type TierConfig struct {
	Name        string         `yaml:"name"`
	UpTo        utils.ByteSize `yaml:"up_to"`
	ChunkSize   utils.ByteSize `yaml:"chunk_size"`
	BufferSize  utils.ByteSize `yaml:"buffer_size"`
	Concurrency int            `yaml:"concurrency"`
}

// DefaultTiers returns the four standard size tiers.
func DefaultTiers() []TierConfig {
	return []TierConfig{
		{Name: "small", UpTo: utils.ByteSize(utils.MiB), ChunkSize: utils.ByteSize(8 * utils.KiB), BufferSize: utils.ByteSize(64 * utils.KiB), Concurrency: 2},
		{Name: "medium", UpTo: utils.ByteSize(10 * utils.MiB), ChunkSize: utils.ByteSize(64 * utils.KiB), BufferSize: utils.ByteSize(256 * utils.KiB), Concurrency: 2},
		{Name: "large", UpTo: utils.ByteSize(50 * utils.MiB), ChunkSize: utils.ByteSize(256 * utils.KiB), BufferSize: utils.ByteSize(utils.MiB), Concurrency: 4},
		{Name: "xlarge", ChunkSize: utils.ByteSize(utils.MiB), BufferSize: utils.ByteSize(4 * utils.MiB)},
	}
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "text",
		},
		Performance: PerformanceConfig{
			Tiers:               DefaultTiers(),
			MaxConcurrentChunks: 8,
			MultipartThreshold:  utils.ByteSize(50 * utils.MiB),
			MultipartChunkSize:  utils.ByteSize(8 * utils.MiB),
			ListingCacheTTL:     5 * time.Minute,
			ListingCacheSize:    1024,
			ShutdownTimeout:     30 * time.Second,
		},
		Providers: map[string]*ProviderConfig{},
	}
}

// UnmarshalYAML decodes providers onto the defaults of their kind, so that a provider
// section only needs the fields it changes.
func (c *Configuration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		Global      GlobalConfig                      `yaml:"global"`
		Performance PerformanceConfig                 `yaml:"performance"`
		Providers   map[string]map[string]interface{} `yaml:"providers"`
	}
	raw.Global = c.Global
	raw.Performance = c.Performance
	if err := unmarshal(&raw); err != nil {
		return err
	}

	c.Global = raw.Global
	c.Performance = raw.Performance
	if c.Providers == nil {
		c.Providers = map[string]*ProviderConfig{}
	}

	for scheme, fields := range raw.Providers {
		kind, ok := DefaultSchemes[strings.ToLower(scheme)]
		if v, set := fields["kind"]; set {
			kind, ok = Kind(fmt.Sprint(v)), true
		}
		if !ok {
			return fmt.Errorf("provider %q: unknown scheme and no kind given", scheme)
		}

		base, exists := c.Providers[scheme]
		if !exists || base.Kind != kind {
			base = DefaultProvider(kind)
		}
		p := base.Clone()
		if err := p.Apply(fields); err != nil {
			return fmt.Errorf("provider %q: %w", scheme, err)
		}
		c.Providers[scheme] = p
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	return c.loadFromLookup(os.LookupEnv)
}

func (c *Configuration) loadFromLookup(lookup func(string) (string, bool)) error {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}

	// Global settings
	if val := get("CLOUDPATH_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = strings.ToUpper(val)
	}
	if val := get("CLOUDPATH_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = strings.ToLower(val)
	}
	if val := get("CLOUDPATH_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := get("CLOUDPATH_METRICS_ADDR"); val != "" {
		c.Global.MetricsAddr = val
	}

	// Performance settings
	if val := get("CLOUDPATH_MAX_CONCURRENT_CHUNKS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid CLOUDPATH_MAX_CONCURRENT_CHUNKS: %w", err)
		}
		c.Performance.MaxConcurrentChunks = n
	}
	if val := get("CLOUDPATH_MULTIPART_THRESHOLD"); val != "" {
		n, err := utils.ParseBytes(val)
		if err != nil {
			return fmt.Errorf("invalid CLOUDPATH_MULTIPART_THRESHOLD: %w", err)
		}
		c.Performance.MultipartThreshold = utils.ByteSize(n)
	}
	if val := get("CLOUDPATH_MULTIPART_CHUNK_SIZE"); val != "" {
		n, err := utils.ParseBytes(val)
		if err != nil {
			return fmt.Errorf("invalid CLOUDPATH_MULTIPART_CHUNK_SIZE: %w", err)
		}
		c.Performance.MultipartChunkSize = utils.ByteSize(n)
	}
	if val := get("CLOUDPATH_LISTING_CACHE_TTL"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid CLOUDPATH_LISTING_CACHE_TTL: %w", err)
		}
		c.Performance.ListingCacheTTL = d
	}

	// Provider native variables
	if c.Providers == nil {
		c.Providers = map[string]*ProviderConfig{}
	}
	for _, kind := range []Kind{KindAWS, KindMinio, KindS3C, KindR2} {
		if c.providerFor(kind) != nil {
			continue
		}
		p, found, err := ProviderFromEnv(kind, lookup)
		if err != nil {
			return err
		}
		if found {
			c.Providers[string(kind)] = p
		}
	}

	return nil
}

// providerFor returns the configured provider of kind, if any.
func (c *Configuration) providerFor(kind Kind) *ProviderConfig {
	schemes := make([]string, 0, len(c.Providers))
	for s := range c.Providers {
		schemes = append(schemes, s)
	}
	sort.Strings(schemes)
	for _, s := range schemes {
		if p := c.Providers[s]; p != nil && p.Kind == kind {
			return p
		}
	}
	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration. Provider records are validated lazily on first use.
func (c *Configuration) Validate() error {
	if c.Performance.MaxConcurrentChunks <= 0 {
		return fmt.Errorf("max_concurrent_chunks must be greater than 0")
	}
	if c.Performance.MultipartThreshold <= 0 {
		return fmt.Errorf("multipart_threshold must be greater than 0")
	}
	if c.Performance.MultipartChunkSize <= 0 {
		return fmt.Errorf("multipart_chunk_size must be greater than 0")
	}
	if err := ValidateTiers(c.Performance.Tiers); err != nil {
		return err
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.EqualFold(c.Global.LogLevel, level) {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	switch strings.ToLower(c.Global.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log_format: %s (must be text or json)", c.Global.LogFormat)
	}

	return nil
}

// ValidateTiers checks that tiers are ordered and grow monotonically.
func ValidateTiers(tiers []TierConfig) error {
	if len(tiers) == 0 {
		return fmt.Errorf("at least one chunk tier is required")
	}
	for i, t := range tiers {
		if t.ChunkSize <= 0 || t.BufferSize <= 0 {
			return fmt.Errorf("tier %d: chunk_size and buffer_size must be greater than 0", i)
		}
		if t.Concurrency < 0 {
			return fmt.Errorf("tier %d: concurrency cannot be negative", i)
		}
		last := i == len(tiers)-1
		if !last && t.UpTo <= 0 {
			return fmt.Errorf("tier %d: only the last tier may be unbounded", i)
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if !last && t.UpTo <= prev.UpTo {
			return fmt.Errorf("tier %d: up_to must increase", i)
		}
		if last && t.UpTo > 0 && t.UpTo <= prev.UpTo {
			return fmt.Errorf("tier %d: up_to must increase", i)
		}
		if t.ChunkSize < prev.ChunkSize || t.BufferSize < prev.BufferSize {
			return fmt.Errorf("tier %d: chunk and buffer sizes must not decrease", i)
		}
	}
	return nil
}
