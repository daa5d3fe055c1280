package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseChunkSize parses human-friendly chunk sizes like "4KB", "64K" or
// "1MB" into bytes. Units are binary (1024-based); a bare number is taken
// as bytes. An empty string returns 0, which callers treat as "use the
// default".
func ParseChunkSize(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	multiplier := uint64(1)
	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "MB"), strings.HasSuffix(upper, "MIB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(strings.TrimSuffix(upper, "MIB"), "MB")
	case strings.HasSuffix(upper, "KB"), strings.HasSuffix(upper, "KIB"):
		multiplier = 1024
		upper = strings.TrimSuffix(strings.TrimSuffix(upper, "KIB"), "KB")
	case strings.HasSuffix(upper, "M"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "M")
	case strings.HasSuffix(upper, "K"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "K")
	case strings.HasSuffix(upper, "B"):
		upper = strings.TrimSuffix(upper, "B")
	}

	value, err := strconv.ParseUint(strings.TrimSpace(upper), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid chunk size %q", s)
	}

	bytes := value * multiplier
	if bytes > 4*1024*1024 {
		return 0, fmt.Errorf("chunk size %q exceeds 4MiB limit", s)
	}
	return uint32(bytes), nil
}
