// Package attrs turns arbitrary Go values into OTel attribute.KeyValue
// slices, enforcing size, depth, and redaction policy in one place so every
// instrumentor encodes attributes the same way.
package attrs

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultMaxStringLen is the default cap on encoded string length.
	DefaultMaxStringLen = 32 * 1024
	// DefaultMaxDepth is the default cap on nested-object flattening depth.
	DefaultMaxDepth = 6

	truncatedSuffix = "..."
	depthLimited    = "<depth-limited>"
)

// sensitiveKeys is the default redaction table applied when a caller
// doesn't supply its own Redact hook.
var sensitiveKeys = map[string]struct{}{
	"api_key": {}, "apikey": {}, "authorization": {}, "token": {},
	"password": {}, "secret": {}, "access_token": {}, "refresh_token": {},
	"client_secret": {}, "private_key": {}, "session_token": {}, "bearer": {},
	"x-api-key": {},
}

func isSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// RedactFunc inspects a name/value pair before encoding. Returning ok=false
// drops the pair entirely; otherwise the returned value is encoded in place
// of the original.
type RedactFunc func(name string, value any) (redacted any, ok bool)

// DefaultRedact replaces values whose key matches the built-in sensitive-key
// table with a fixed placeholder, and passes everything else through.
func DefaultRedact(name string, value any) (any, bool) {
	if isSensitiveKey(name) {
		return "[redacted]", true
	}
	return value, true
}

// Encoder converts values to attribute.KeyValue, enforcing string length,
// nesting depth, and a redaction policy.
type Encoder struct {
	MaxStringLen int
	MaxDepth     int
	Redact       RedactFunc
}

// NewEncoder builds an Encoder with the package defaults.
func NewEncoder() *Encoder {
	return &Encoder{
		MaxStringLen: DefaultMaxStringLen,
		MaxDepth:     DefaultMaxDepth,
		Redact:       DefaultRedact,
	}
}

// Encode converts one name/value pair into zero or more attribute.KeyValue,
// per the contract: scalars pass through, []byte becomes base64, homogeneous
// slices become typed array attributes, slices of mixed scalars become string
// arrays, slices holding nested objects and maps/structs are flattened into
// indexed names, and depth overflow (including a
// self-referential map or slice) degrades to a literal marker once MaxDepth
// is reached. Any panic while encoding degrades to a string on the offending
// attribute rather than propagating to the caller.
func (e *Encoder) Encode(name string, value any) (out []attribute.KeyValue) {
	defer func() {
		if r := recover(); r != nil {
			out = []attribute.KeyValue{attribute.String(name, fmt.Sprintf("<encoding-error: %v>", r))}
		}
	}()

	if e.Redact != nil {
		redacted, ok := e.Redact(name, value)
		if !ok {
			return nil
		}
		value = redacted
	}

	maxDepth := e.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return e.encode(name, value, 0, maxDepth)
}

func (e *Encoder) encode(name string, value any, depth, maxDepth int) []attribute.KeyValue {
	if depth > maxDepth {
		return []attribute.KeyValue{attribute.String(name, depthLimited)}
	}

	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return e.encodeString(name, v)
	case bool:
		return []attribute.KeyValue{attribute.Bool(name, v)}
	case int:
		return []attribute.KeyValue{attribute.Int64(name, int64(v))}
	case int32:
		return []attribute.KeyValue{attribute.Int64(name, int64(v))}
	case int64:
		return []attribute.KeyValue{attribute.Int64(name, v)}
	case float32:
		return []attribute.KeyValue{attribute.Float64(name, float64(v))}
	case float64:
		return []attribute.KeyValue{attribute.Float64(name, v)}
	case []byte:
		return e.encodeString(name, base64.StdEncoding.EncodeToString(v))
	case []string:
		return []attribute.KeyValue{attribute.StringSlice(name, v)}
	case []bool:
		return []attribute.KeyValue{attribute.BoolSlice(name, v)}
	case []int64:
		return []attribute.KeyValue{attribute.Int64Slice(name, v)}
	case []float64:
		return []attribute.KeyValue{attribute.Float64Slice(name, v)}
	case []any:
		return e.encodeHeterogeneousOrFlatten(name, v, depth, maxDepth)
	case map[string]any:
		return e.encodeMap(name, v, depth, maxDepth)
	default:
		return e.encodeViaJSON(name, value, depth, maxDepth)
	}
}

// encodeHeterogeneousOrFlatten handles []any: all-string elements are
// promoted to a typed array attribute, mixed scalars are coerced
// element-wise to a string array, and anything containing nested objects is
// flattened to indexed attribute names.
func (e *Encoder) encodeHeterogeneousOrFlatten(name string, items []any, depth, maxDepth int) []attribute.KeyValue {
	if len(items) == 0 {
		return []attribute.KeyValue{attribute.StringSlice(name, nil)}
	}
	if strs, ok := allStrings(items); ok {
		return []attribute.KeyValue{attribute.StringSlice(name, strs)}
	}
	if allScalars(items) {
		strs := make([]string, len(items))
		for i, item := range items {
			strs[i] = fmt.Sprint(item)
		}
		return []attribute.KeyValue{attribute.StringSlice(name, strs)}
	}

	var out []attribute.KeyValue
	for i, item := range items {
		out = append(out, e.encode(fmt.Sprintf("%s.%d", name, i), item, depth+1, maxDepth)...)
	}
	return out
}

func allScalars(items []any) bool {
	for _, item := range items {
		switch item.(type) {
		case string, bool, int, int32, int64, float32, float64:
		default:
			return false
		}
	}
	return true
}

func allStrings(items []any) ([]string, bool) {
	strs := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		strs = append(strs, s)
	}
	return strs, true
}

func (e *Encoder) encodeMap(name string, m map[string]any, depth, maxDepth int) []attribute.KeyValue {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []attribute.KeyValue
	for _, k := range keys {
		out = append(out, e.encode(fmt.Sprintf("%s.%s", name, k), m[k], depth+1, maxDepth)...)
	}
	return out
}

// encodeViaJSON handles structs and any other type not matched above by
// round-tripping through encoding/json into map[string]any to get a
// JSON-safe value before marshaling.
func (e *Encoder) encodeViaJSON(name string, value any, depth, maxDepth int) []attribute.KeyValue {
	data, err := json.Marshal(value)
	if err != nil {
		return []attribute.KeyValue{attribute.String(name, fmt.Sprintf("%v", value))}
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return []attribute.KeyValue{attribute.String(name, string(data))}
	}

	switch d := decoded.(type) {
	case map[string]any:
		return e.encodeMap(name, d, depth, maxDepth)
	case []any:
		return e.encodeHeterogeneousOrFlatten(name, d, depth, maxDepth)
	default:
		return e.encode(name, d, depth, maxDepth)
	}
}

// encodeString applies the truncation cap and, only when it actually cuts
// the value, appends a "name_truncated=true" sibling attribute (a string at
// exactly the cap is left untouched).
func (e *Encoder) encodeString(name, s string) []attribute.KeyValue {
	truncated, didTruncate := e.truncate(s)
	out := []attribute.KeyValue{attribute.String(name, truncated)}
	if didTruncate {
		out = append(out, attribute.Bool(name+"_truncated", true))
	}
	return out
}

func (e *Encoder) truncate(s string) (string, bool) {
	limit := e.MaxStringLen
	if limit <= 0 {
		limit = DefaultMaxStringLen
	}
	if len(s) <= limit {
		return s, false
	}
	cut := limit - len(truncatedSuffix)
	if cut < 0 {
		cut = 0
	}
	return s[:cut] + truncatedSuffix, true
}
