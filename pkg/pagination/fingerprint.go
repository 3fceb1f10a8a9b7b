package pagination

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// FingerprintLength is the number of hex characters kept from the digest.
const FingerprintLength = 16

// Reserved query parameters. They select a window of a result set and never
// change which rows belong to it, so they are excluded from fingerprints.
const (
	ParamPage       = "page"
	ParamLimit      = "limit"
	ParamCursor     = "cursor"
	ParamSort       = "sort"
	ParamOrder      = "order"
	ParamPagination = "pagination"
)

var reservedParams = map[string]struct{}{
	ParamPage:       {},
	ParamLimit:      {},
	ParamCursor:     {},
	ParamSort:       {},
	ParamOrder:      {},
	ParamPagination: {},
}

// IsReservedParam reports whether name is a pagination or sort parameter.
func IsReservedParam(name string) bool {
	_, ok := reservedParams[name]
	return ok
}

// Fingerprint canonicalizes the filter parameters of a request into a short
// deterministic hash.
//
// Reserved parameters and empty values are dropped, the remaining values are
// stringified, entries are sorted by key and joined as key=value pairs with
// '&' before hashing. Parameter order and absent defaults therefore never
// change the result.
func Fingerprint(filters map[string]any) string {
	keys := make([]string, 0, len(filters))
	values := make(map[string]string, len(filters))
	for key, raw := range filters {
		if IsReservedParam(key) {
			continue
		}
		value, ok := canonicalValue(raw)
		if !ok {
			continue
		}
		keys = append(keys, key)
		values[key] = value
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(values[key])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}

// FiltersFromQuery turns query parameters into a filter map, keeping the first
// value of every non-reserved parameter.
func FiltersFromQuery(query url.Values) map[string]any {
	filters := make(map[string]any, len(query))
	for key, vals := range query {
		if IsReservedParam(key) || len(vals) == 0 {
			continue
		}
		filters[key] = vals[0]
	}
	return filters
}

// canonicalValue returns the stringified form of v and false when v counts
// as absent.
func canonicalValue(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		if val == "" {
			return "", false
		}
		return val, true
	case *string:
		if val == nil || *val == "" {
			return "", false
		}
		return *val, true
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.Itoa(val), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint:
		return strconv.FormatUint(uint64(val), 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case []string:
		if len(val) == 0 {
			return "", false
		}
		return canonicalValue(val[0])
	case fmt.Stringer:
		s := val.String()
		return s, s != ""
	default:
		s := fmt.Sprint(val)
		return s, s != ""
	}
}
