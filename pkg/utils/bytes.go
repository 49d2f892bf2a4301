package utils

import (
	"fmt"
	"strings"
)

// Binary size units.
const (
	KiB int64 = 1 << 10
	MiB int64 = 1 << 20
	GiB int64 = 1 << 30
	TiB int64 = 1 << 40
)

// FormatBytes formats bytes as human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < 0 {
		return "unknown"
	}
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// ParseBytes parses a human-readable byte string such as "8KB", "10MiB" or "5G".
// Units are binary regardless of the "i" infix.
func ParseBytes(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	s = strings.TrimSuffix(s, "B")
	s = strings.TrimSuffix(s, "I")

	var multiplier int64 = 1
	numStr := s
	if len(s) > 0 {
		switch s[len(s)-1] {
		case 'K':
			multiplier = KiB
		case 'M':
			multiplier = MiB
		case 'G':
			multiplier = GiB
		case 'T':
			multiplier = TiB
		}
		if multiplier != 1 {
			numStr = strings.TrimSpace(s[:len(s)-1])
		}
	}

	var num float64
	if _, err := fmt.Sscanf(numStr, "%f", &num); err != nil {
		return 0, fmt.Errorf("invalid size format: %q", s)
	}
	if num < 0 {
		return 0, fmt.Errorf("size cannot be negative: %q", s)
	}

	return int64(num * float64(multiplier)), nil
}

// ByteSize is an int64 that unmarshals from either a number or a human-readable string in YAML.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler (gopkg.in/yaml.v2 signature).
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n int64
	if err := unmarshal(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}

	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParseBytes(s)
	if err != nil {
		return err
	}
	*b = ByteSize(v)
	return nil
}

// MarshalYAML writes the size in its human-readable form when it is an exact unit multiple.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	v := int64(b)
	for _, u := range []struct {
		size   int64
		suffix string
	}{{TiB, "TB"}, {GiB, "GB"}, {MiB, "MB"}, {KiB, "KB"}} {
		if v >= u.size && v%u.size == 0 {
			return fmt.Sprintf("%d%s", v/u.size, u.suffix), nil
		}
	}
	return v, nil
}

// Int64 returns the size as int64.
func (b ByteSize) Int64() int64 { return int64(b) }
