package utils

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
		wantErr  bool
	}{
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"WARNING", slog.LevelWarn, false},
		{"warn", slog.LevelWarn, false},
		{"ERROR", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler(&buf, slog.LevelInfo, "json")
	require.NoError(t, err)

	slog.New(h).Info("hello", "component", "test")
	assert.Contains(t, buf.String(), `"component":"test"`)

	_, err = NewHandler(&buf, slog.LevelInfo, "xml")
	assert.Error(t, err)
}

func TestSetupLoggingToFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	logFile := filepath.Join(t.TempDir(), "cloudpath.log")
	closer, err := SetupLogging("debug", "text", logFile)
	require.NoError(t, err)

	slog.Debug("written to file", "component", "utils")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{-1, "unknown"},
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{10 * MiB, "10.0 MB"},
		{5 * GiB, "5.0 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatBytes(tt.input))
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{"1024", 1024, false},
		{"8KB", 8 * KiB, false},
		{"10MB", 10 * MiB, false},
		{"10MiB", 10 * MiB, false},
		{"150M", 150 * MiB, false},
		{"5GB", 5 * GiB, false},
		{"1.5K", 1536, false},
		{" 64kb ", 64 * KiB, false},
		{"", 0, true},
		{"abc", 0, true},
		{"-5MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBytes(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestByteSizeYAML(t *testing.T) {
	var cfg struct {
		Chunk ByteSize `yaml:"chunk"`
		Block ByteSize `yaml:"block"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("chunk: 10MB\nblock: 4096\n"), &cfg))
	assert.Equal(t, 10*MiB, cfg.Chunk.Int64())
	assert.Equal(t, int64(4096), cfg.Block.Int64())

	out, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "chunk: 10MB")
	assert.Contains(t, string(out), "block: 4KB")
}

func TestLocalTarget(t *testing.T) {
	base := t.TempDir()

	got, err := LocalTarget(base, "reports/q1.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "reports", "q1.csv"), got)

	for _, bad := range []string{"", "../escape", "a/../../b", "."} {
		_, err := LocalTarget(base, bad)
		assert.Error(t, err, bad)
	}

	_, err = LocalTarget("", "x")
	assert.Error(t, err)
}
