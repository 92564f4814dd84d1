package env

import (
	"os"
	"strings"
)

// Prefix namespaces every furnishly environment variable.
const Prefix = "FURNISHLY"

// Get returns FURNISHLY_<key> when set, then the bare key, then fallback.
func Get(key, fallback string) string {
	if val, ok := Lookup(key); ok {
		return val
	}
	return fallback
}

// Lookup resolves key with the service prefix taking precedence over the bare name.
// Blank values count as unset.
func Lookup(key string) (string, bool) {
	for _, name := range []string{Prefix + "_" + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val, true
		}
	}
	return "", false
}
