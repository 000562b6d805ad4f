// Package env reads process settings that must be available before the
// envconfig-backed config is loaded, such as the log format.
package env

import (
	"os"
	"strings"
)

// First returns the first non-blank value among keys, in order. It lets a
// LEARNBILL_ prefixed name take precedence over a shared unprefixed one.
func First(fallback string, keys ...string) string {
	for _, key := range keys {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			return val
		}
	}
	return fallback
}
