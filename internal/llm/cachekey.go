package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Sentinels distinguish absent fields from present-but-empty ones in cache
// keys. Without them, {"a": nil} and {"a": 0} would collapse into the same
// key material.
const (
	nilSentinel  = "@nil"
	zeroSentinel = "@zero"
)

// CacheKey produces a stable, collision-resistant key for an operation's
// prompt context. Fields are serialized in sorted order with explicit
// null/zero sentinels, the seed is folded in, and the digest is prefixed
// with the operation name for readability in the cache table.
func CacheKey(operation string, context map[string]any, seed int64) string {
	parts := make([]string, 0, len(context)+1)
	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		parts = append(parts, k+"="+encodeValue(context[k]))
	}
	parts = append(parts, "seed="+strconv.FormatInt(seed, 10))

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return operation + ":" + hex.EncodeToString(sum[:])
}

func encodeValue(v any) string {
	if v == nil {
		return nilSentinel
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nilSentinel
		}
		return encodeValue(rv.Elem().Interface())
	case reflect.String:
		if rv.Len() == 0 {
			return zeroSentinel
		}
		return rv.String()
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return zeroSentinel
		}
		items := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = encodeValue(rv.Index(i).Interface())
		}
		return "[" + strings.Join(items, ",") + "]"
	case reflect.Map:
		if rv.Len() == 0 {
			return zeroSentinel
		}
		items := make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			items = append(items, fmt.Sprint(iter.Key().Interface())+":"+encodeValue(iter.Value().Interface()))
		}
		sort.Strings(items)
		return "{" + strings.Join(items, ",") + "}"
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f == 0 {
			return zeroSentinel
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n == 0 {
			return zeroSentinel
		}
		return strconv.FormatInt(n, 10)
	case reflect.Bool:
		if !rv.Bool() {
			return zeroSentinel
		}
		return "true"
	default:
		return fmt.Sprint(v)
	}
}
