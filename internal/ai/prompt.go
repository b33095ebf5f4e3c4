package ai

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// PromptSpec is a normalized generation request. Task names the call site,
// Prompt carries the assembled text, Facts holds structured values that feed
// the cache key (amounts, sizes, ids). Two logically identical requests from
// anywhere in the system normalize to the same key.
type PromptSpec struct {
	Task   string
	System string
	Prompt string
	Facts  map[string]interface{}
}

// CacheKey returns a stable content hash of the normalized request: fields in
// canonical order, money and size values rounded before hashing.
func (s PromptSpec) CacheKey() string {
	var b strings.Builder
	b.WriteString("task=")
	b.WriteString(strings.TrimSpace(s.Task))
	b.WriteString("\nsystem=")
	b.WriteString(strings.TrimSpace(s.System))
	b.WriteString("\nprompt=")
	b.WriteString(strings.TrimSpace(s.Prompt))
	b.WriteString("\nfacts=")
	b.WriteString(canonicalize(s.Facts))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// canonicalize renders a value deterministically: map keys sorted, floats
// rounded to two decimals so cent-level noise in money amounts does not split
// the cache.
func canonicalize(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return strings.TrimSpace(val)
	case bool:
		return fmt.Sprintf("%t", val)
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float32:
		return fmt.Sprintf("%.2f", val)
	case float64:
		return fmt.Sprintf("%.2f", val)
	case []string:
		parts := make([]string, len(val))
		copy(parts, val)
		return "[" + strings.Join(parts, ",") + "]"
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = canonicalize(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + canonicalize(val[k])
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return fmt.Sprintf("%v", val)
	}
}
