package llm

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"sort"
)

// SeedFrom derives a deterministic completion seed from the prompt context.
// Identical context always produces the same seed, so repeated runs over
// unchanged inputs reproduce identical model output (and hit the cache).
// The context is canonicalized with sorted keys before hashing.
func SeedFrom(context map[string]any) int64 {
	sum := sha256.Sum256(canonicalJSON(context))
	// Take the first 8 bytes; mask the sign bit so the seed is non-negative,
	// which every provider accepts.
	seed := int64(binary.BigEndian.Uint64(sum[:8]) &^ (1 << 63))
	return seed
}

// canonicalJSON renders a map with deterministic key ordering. Nested maps
// are ordered recursively; encoding/json already sorts map keys, but values
// of type map[string]any inside slices need explicit handling, so the whole
// structure is normalized first.
func canonicalJSON(v any) []byte {
	normalized := normalize(v)
	b, err := json.Marshal(normalized)
	if err != nil {
		// Context objects are plain data assembled by domain services;
		// a marshal failure here is a programming error.
		panic(err)
	}
	return b
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys)*2)
		for _, k := range keys {
			out = append(out, k, normalize(t[k]))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
