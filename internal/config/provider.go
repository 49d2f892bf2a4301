package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/objectfs/cloudpath/pkg/utils"
)

// Kind identifies a backend family.
type Kind string

const (
	KindAWS    Kind = "aws"
	KindMinio  Kind = "minio"
	KindS3C    Kind = "s3c"
	KindR2     Kind = "r2"
	KindMemory Kind = "memory"
	// KindLocal is handled by the local driver and never appears in the registry.
	KindLocal Kind = "local"
)

// Family groups kinds that share a driver implementation.
type Family string

const (
	FamilyS3     Family = "s3"
	FamilyMinio  Family = "minio"
	FamilyMemory Family = "memory"
	FamilyLocal  Family = "local"
)

// Family returns the driver family serving k.
func (k Kind) Family() Family {
	switch k {
	case KindAWS, KindS3C, KindR2:
		return FamilyS3
	case KindMinio:
		return FamilyMinio
	case KindMemory:
		return FamilyMemory
	case KindLocal:
		return FamilyLocal
	default:
		return ""
	}
}

// Valid reports whether k is a registry-backed kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAWS, KindMinio, KindS3C, KindR2, KindMemory:
		return true
	}
	return false
}

// DefaultSchemes maps URI schemes to the kind serving them.
var DefaultSchemes = map[string]Kind{
	"s3":       KindAWS,
	"aws":      KindAWS,
	"mc":       KindMinio,
	"mio":      KindMinio,
	"minio":    KindMinio,
	"s3c":      KindS3C,
	"s3compat": KindS3C,
	"r2":       KindR2,
	"mem":      KindMemory,
	"memory":   KindMemory,
	"file":     KindLocal,
}

// AddressingStyle selects path-style or virtual-host bucket addressing.
type AddressingStyle string

const (
	AddressingAuto    AddressingStyle = "auto"
	AddressingPath    AddressingStyle = "path"
	AddressingVirtual AddressingStyle = "virtual"
)

// Size defaults shared by every object-store family.
const (
	DefaultChunkingSize       = 10 * utils.MiB
	DefaultChunkingLargeSize  = 50 * utils.MiB
	DefaultPartMax            = 5 * utils.GiB
	DefaultLargeFileThreshold = 500 * utils.MiB
	DefaultMaxPoolConnections = 100
	DefaultRegion             = "us-east-1"

	r2WriteChunkingSize = 150 * utils.MiB
)

// ProviderConfig is the per-provider record of connection and tuning parameters.
type ProviderConfig struct {
	Kind             Kind              `yaml:"kind"`
	Endpoint         string            `yaml:"endpoint,omitempty"`
	AccountID        string            `yaml:"account_id,omitempty"`
	AccessKey        string            `yaml:"access_key,omitempty"`
	SecretKey        string            `yaml:"secret_key,omitempty"`
	SessionToken     string            `yaml:"session_token,omitempty"`
	Region           string            `yaml:"region,omitempty"`
	Addressing       AddressingStyle   `yaml:"addressing_style"`
	Secure           bool              `yaml:"secure"`
	SignatureVersion string            `yaml:"signature_version,omitempty"`
	Accelerate       bool              `yaml:"accelerate"`
	UseCargoship     bool              `yaml:"use_cargoship"`
	StorageClass     string            `yaml:"storage_class,omitempty"`
	MaxPoolConns     int               `yaml:"max_pool_connections"`
	Read             ChunkingConfig    `yaml:"read"`
	Write            ChunkingConfig    `yaml:"write"`
	PartMax          utils.ByteSize    `yaml:"part_max"`
	LargeFileSize    utils.ByteSize    `yaml:"large_file_threshold"`
	FixedUploadSize  bool              `yaml:"fixed_upload_size"`
	Extra            map[string]string `yaml:"extra,omitempty"`
}

// ChunkingConfig holds the per-direction chunking parameters.
type ChunkingConfig struct {
	Enabled        bool           `yaml:"chunking_enabled"`
	Size           utils.ByteSize `yaml:"chunking_size"`
	LargeSize      utils.ByteSize `yaml:"chunking_large_size"`
	ManagerDefault bool           `yaml:"chunking_manager_default"`
}

// DriverConfig is the connection parameter set handed to driver factories.
type DriverConfig struct {
	Kind               Kind
	Endpoint           string
	Region             string
	AccessKey          string
	SecretKey          string
	SessionToken       string
	Secure             bool
	UsePathStyle       bool
	Accelerate         bool
	SignatureVersion   string
	MaxPoolConnections int
	UseCargoship       bool
	StorageClass       string
	Extra              map[string]string
}

// Host returns the endpoint without its scheme, as host[:port].
func (d DriverConfig) Host() string {
	_, host, found := strings.Cut(d.Endpoint, "://")
	if !found {
		host = d.Endpoint
	}
	return strings.TrimSuffix(host, "/")
}

// DefaultProvider returns the defaults for kind.
func DefaultProvider(kind Kind) *ProviderConfig {
	p := &ProviderConfig{
		Kind:         kind,
		Addressing:   AddressingAuto,
		MaxPoolConns: DefaultMaxPoolConnections,
		Read: ChunkingConfig{
			Size:           utils.ByteSize(DefaultChunkingSize),
			LargeSize:      utils.ByteSize(DefaultChunkingLargeSize),
			ManagerDefault: true,
		},
		Write: ChunkingConfig{
			Size:           utils.ByteSize(DefaultChunkingSize),
			LargeSize:      utils.ByteSize(DefaultChunkingLargeSize),
			ManagerDefault: true,
		},
		PartMax:       utils.ByteSize(DefaultPartMax),
		LargeFileSize: utils.ByteSize(DefaultLargeFileThreshold),
		Extra:         map[string]string{},
	}

	switch kind {
	case KindAWS:
		p.Region = DefaultRegion
		p.Secure = true
	case KindMinio:
		p.Region = DefaultRegion
		p.Secure = true
		p.SignatureVersion = "s3v4"
		p.Read.Enabled = true
		p.Write.Enabled = true
	case KindS3C:
		p.Secure = true
		p.SignatureVersion = "s3v4"
	case KindR2:
		p.Region = "auto"
		p.Secure = true
		p.FixedUploadSize = true
		p.Read.Enabled = true
		p.Write.Enabled = true
		p.Write.Size = utils.ByteSize(r2WriteChunkingSize)
	case KindMemory:
		p.Read.ManagerDefault = false
		p.Write.ManagerDefault = false
	}
	return p
}

// Clone returns a deep copy.
func (p *ProviderConfig) Clone() *ProviderConfig {
	c := *p
	c.Extra = make(map[string]string, len(p.Extra))
	for k, v := range p.Extra {
		c.Extra[k] = v
	}
	return &c
}

// Apply overlays fields, keyed by their YAML names, onto p. Unknown fields are rejected.
func (p *ProviderConfig) Apply(fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	data, err := yaml.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode provider fields: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, p); err != nil {
		return fmt.Errorf("invalid provider fields: %w", err)
	}
	return nil
}

// Normalized returns a copy with endpoint rules applied.
func (p *ProviderConfig) Normalized() *ProviderConfig {
	c := p.Clone()
	c.Endpoint = strings.TrimSpace(c.Endpoint)

	switch c.Kind {
	case KindAWS:
		if c.Region == "" {
			c.Region = DefaultRegion
		}
		if c.Endpoint == "" {
			c.Endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", c.Region)
		} else if !strings.Contains(c.Endpoint, "://") {
			c.Endpoint = schemeForPort(c.Endpoint) + c.Endpoint
		}
	case KindR2:
		if c.Endpoint == "" && c.AccountID != "" {
			c.Endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
		} else if c.Endpoint != "" && !strings.Contains(c.Endpoint, "://") {
			c.Endpoint = "https://" + c.Endpoint
		}
	case KindMinio, KindS3C:
		if c.Endpoint != "" && !strings.Contains(c.Endpoint, "://") {
			if c.Secure {
				c.Endpoint = "https://" + c.Endpoint
			} else {
				c.Endpoint = "http://" + c.Endpoint
			}
		}
	}

	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	if strings.HasPrefix(c.Endpoint, "http://") {
		c.Secure = false
	} else if strings.HasPrefix(c.Endpoint, "https://") {
		c.Secure = true
	}
	return c
}

// schemeForPort picks http for explicit non-443 ports and https otherwise.
func schemeForPort(endpoint string) string {
	if _, port, err := net.SplitHostPort(endpoint); err == nil && port != "" && port != "443" {
		return "http://"
	}
	return "https://"
}

// Validate checks the record. It is called lazily when a bundle is first built.
func (p *ProviderConfig) Validate() error {
	if !p.Kind.Valid() {
		return fmt.Errorf("unknown provider kind: %q", p.Kind)
	}

	n := p.Normalized()
	switch p.Kind {
	case KindMinio, KindS3C:
		if n.Endpoint == "" {
			return fmt.Errorf("%s provider requires an endpoint", p.Kind)
		}
	case KindR2:
		if n.Endpoint == "" {
			return fmt.Errorf("r2 provider requires an endpoint or account_id")
		}
	}

	if (p.AccessKey == "") != (p.SecretKey == "") {
		return fmt.Errorf("access_key and secret_key must be set together")
	}

	switch p.Addressing {
	case AddressingAuto, AddressingPath, AddressingVirtual, "":
	default:
		return fmt.Errorf("invalid addressing_style: %s (must be one of: auto, path, virtual)", p.Addressing)
	}

	if p.MaxPoolConns <= 0 {
		return fmt.Errorf("max_pool_connections must be greater than 0")
	}
	if p.Read.Size <= 0 || p.Write.Size <= 0 {
		return fmt.Errorf("chunking_size must be greater than 0")
	}
	if p.Write.Size > p.PartMax {
		return fmt.Errorf("write chunking_size %s exceeds part_max %s",
			utils.FormatBytes(p.Write.Size.Int64()), utils.FormatBytes(p.PartMax.Int64()))
	}
	if p.LargeFileSize > 0 && p.LargeFileSize < p.Write.Size {
		return fmt.Errorf("large_file_threshold must not be smaller than write chunking_size")
	}
	return nil
}

// BuildDriverConfig derives the connection parameters for driver construction.
func (p *ProviderConfig) BuildDriverConfig() DriverConfig {
	n := p.Normalized()

	pathStyle := false
	switch n.Addressing {
	case AddressingPath:
		pathStyle = true
	case AddressingAuto, "":
		pathStyle = n.Kind == KindMinio || n.Kind == KindS3C
	}

	extra := make(map[string]string, len(n.Extra))
	for k, v := range n.Extra {
		extra[k] = v
	}

	return DriverConfig{
		Kind:               n.Kind,
		Endpoint:           n.Endpoint,
		Region:             n.Region,
		AccessKey:          n.AccessKey,
		SecretKey:          n.SecretKey,
		SessionToken:       n.SessionToken,
		Secure:             n.Secure,
		UsePathStyle:       pathStyle,
		Accelerate:         n.Accelerate,
		SignatureVersion:   n.SignatureVersion,
		MaxPoolConnections: n.MaxPoolConns,
		UseCargoship:       n.UseCargoship,
		StorageClass:       n.StorageClass,
		Extra:              extra,
	}
}

// MultipartThreshold is the size from which whole-object writes prefer the transfer manager.
func (p *ProviderConfig) MultipartThreshold() int64 { return p.Write.LargeSize.Int64() }

// LargeObjectThreshold is the buffered size at which an open handle switches to LargeTransfer.
// Zero disables the switch.
func (p *ProviderConfig) LargeObjectThreshold() int64 { return p.LargeFileSize.Int64() }

// ReadChunkSize is the block size of ranged reads.
func (p *ProviderConfig) ReadChunkSize() int64 { return p.Read.Size.Int64() }

// WriteChunkSize is the multipart part size.
func (p *ProviderConfig) WriteChunkSize() int64 { return p.Write.Size.Int64() }

// PartMaxSize is the largest part the provider accepts.
func (p *ProviderConfig) PartMaxSize() int64 { return p.PartMax.Int64() }

// envBinding ties a provider field to the environment variables mirroring it.
// The first variable is the primary one; later ones are legacy spellings.
type envBinding struct {
	field string
	vars  []string
}

var envBindings = map[Kind][]envBinding{
	KindAWS: {
		{"endpoint", []string{"S3_ENDPOINT"}},
		{"access_key", []string{"AWS_ACCESS_KEY_ID"}},
		{"secret_key", []string{"AWS_SECRET_ACCESS_KEY"}},
		{"session_token", []string{"AWS_SESSION_TOKEN"}},
		{"region", []string{"AWS_REGION", "AWS_DEFAULT_REGION"}},
	},
	KindMinio: {
		{"endpoint", []string{"MINIO_ENDPOINT"}},
		{"access_key", []string{"MINIO_ACCESS_KEY"}},
		{"secret_key", []string{"MINIO_SECRET_KEY"}},
		{"secure", []string{"MINIO_SECURE"}},
		{"region", []string{"MINIO_REGION"}},
		{"signature_version", []string{"MINIO_SIGNATURE_VER"}},
	},
	KindS3C: {
		{"endpoint", []string{"S3C_ENDPOINT", "S3_COMPAT_ENDPOINT"}},
		{"access_key", []string{"S3C_ACCESS_KEY", "S3_COMPAT_ACCESS_KEY"}},
		{"secret_key", []string{"S3C_SECRET_KEY", "S3_COMPAT_SECRET_KEY"}},
		{"secure", []string{"S3C_SECURE", "S3_COMPAT_SECURE"}},
		{"region", []string{"S3C_REGION", "S3_COMPAT_REGION"}},
		{"signature_version", []string{"S3C_SIGNATURE_VER", "S3_COMPAT_SIGNATURE_VER"}},
	},
	KindR2: {
		{"endpoint", []string{"R2_ENDPOINT"}},
		{"account_id", []string{"R2_ACCOUNT_ID"}},
		{"access_key", []string{"R2_ACCESS_KEY_ID"}},
		{"secret_key", []string{"R2_SECRET_ACCESS_KEY"}},
		{"session_token", []string{"R2_ACCESS_TOKEN"}},
	},
}

func (p *ProviderConfig) field(name string) string {
	switch name {
	case "endpoint":
		return p.Endpoint
	case "account_id":
		return p.AccountID
	case "access_key":
		return p.AccessKey
	case "secret_key":
		return p.SecretKey
	case "session_token":
		return p.SessionToken
	case "region":
		return p.Region
	case "secure":
		return strconv.FormatBool(p.Secure)
	case "signature_version":
		return p.SignatureVersion
	}
	return ""
}

func (p *ProviderConfig) setField(name, value string) error {
	switch name {
	case "endpoint":
		p.Endpoint = value
	case "account_id":
		p.AccountID = value
	case "access_key":
		p.AccessKey = value
	case "secret_key":
		p.SecretKey = value
	case "session_token":
		p.SessionToken = value
	case "region":
		p.Region = value
	case "secure":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid secure flag %q: %w", value, err)
		}
		p.Secure = b
	case "signature_version":
		p.SignatureVersion = value
	}
	return nil
}

// SetEnv mirrors the credentials of p into the provider's environment variables.
// Legacy variable spellings are written alongside the primary ones.
func (p *ProviderConfig) SetEnv(setenv func(key, value string) error) error {
	for _, b := range envBindings[p.Kind] {
		value := p.field(b.field)
		if value == "" {
			continue
		}
		for _, v := range b.vars {
			if err := setenv(v, value); err != nil {
				return fmt.Errorf("failed to set %s: %w", v, err)
			}
		}
	}
	return nil
}

// EnvVars lists every environment variable mirrored for kind.
func EnvVars(kind Kind) []string {
	var out []string
	for _, b := range envBindings[kind] {
		out = append(out, b.vars...)
	}
	return out
}

// ProviderFromEnv builds a provider of kind from its native environment variables. The bool
// result is false when none of the identifying variables (endpoint, account or access key)
// is present.
func ProviderFromEnv(kind Kind, lookup func(string) (string, bool)) (*ProviderConfig, bool, error) {
	bindings, ok := envBindings[kind]
	if !ok {
		return nil, false, nil
	}

	p := DefaultProvider(kind)
	found := false
	for _, b := range bindings {
		for _, v := range b.vars {
			value, ok := lookup(v)
			if !ok || value == "" {
				continue
			}
			if err := p.setField(b.field, value); err != nil {
				return nil, false, fmt.Errorf("%s: %w", v, err)
			}
			switch b.field {
			case "endpoint", "account_id", "access_key":
				found = true
			}
			break
		}
	}
	return p, found, nil
}
