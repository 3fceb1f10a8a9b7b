package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix starts every cache key.
const KeyPrefix = "astro"

// CacheKey represents a unique identifier for a cached upstream result.
type CacheKey struct {
	// Namespace groups keys by producer (e.g. "search", "feed").
	Namespace string

	// Endpoint is the upstream path.
	Endpoint string

	// Params are request parameters that select the result.
	Params url.Values

	// Fingerprint is the filter fingerprint of the originating request.
	Fingerprint string
}

// String generates a deterministic cache key string.
// Format: astro:namespace:endpoint:param1=val1:fp=fingerprint
//
// Example:
//
//	astro:search:sbdb_query.api:sstr=ceres:fp=3f2a9c0d1e4b5a67
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if k.Namespace != "" {
		parts = append(parts, k.Namespace)
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Params.Get(key)))
		}
	}

	if k.Fingerprint != "" {
		parts = append(parts, "fp="+k.Fingerprint)
	}

	return strings.Join(parts, ":")
}

func (k CacheKey) namespace() string {
	if k.Namespace == "" {
		return "default"
	}
	return k.Namespace
}
