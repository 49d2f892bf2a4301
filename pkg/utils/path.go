package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// LocalTarget resolves where an object named name lands when localized into dir.
// Object keys may contain "/" separators, which become nested local directories; a key
// that would escape dir is rejected.
//
// Example usage:
//
//	dst, err := LocalTarget("/var/cache/cloudpath", "reports/2024/q1.csv")
//	if err != nil {
//		return fmt.Errorf("cannot localize: %w", err)
//	}
func LocalTarget(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("target directory cannot be empty")
	}
	if name == "" {
		return "", fmt.Errorf("object name cannot be empty")
	}

	cleanBase := filepath.Clean(dir)
	fullPath := filepath.Join(cleanBase, filepath.FromSlash(name))

	if fullPath == cleanBase || !strings.HasPrefix(fullPath, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("object name %q escapes target directory", name)
	}

	return fullPath, nil
}
