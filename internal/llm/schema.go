package llm

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// Kind enumerates the value kinds a schema field accepts.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindInteger
	KindBool
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindInteger:
		return "integer"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Field declares one expected field of a JSON object.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	// Min/Max bound numeric fields inclusively when set.
	Min *float64
	Max *float64
	// Items validates each element of an array field when set.
	Items *Schema
	// Object validates a nested object field when set.
	Object *Schema
}

// Schema declares the expected shape of a model response object.
type Schema struct {
	Fields []Field
}

// Bound is a convenience for Min/Max pointers.
func Bound(v float64) *float64 { return &v }

// ExtractJSON locates the first JSON object embedded in model output.
// Models occasionally wrap JSON in prose or code fences despite
// instructions, so the text between the first '{' and the matching
// last '}' is taken.
func ExtractJSON(text string) ([]byte, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < 0 || end <= start {
		return nil, eris.Errorf("llm: no JSON object in response: %.120s", text)
	}
	return []byte(text[start : end+1]), nil
}

// Validate checks data against the schema. The top level must be a JSON
// object. Unknown fields are ignored; models are allowed to volunteer
// extra detail.
func (s *Schema) Validate(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return eris.Wrap(err, "llm: response is not a JSON object")
	}
	return s.validateObject(obj, "")
}

func (s *Schema) validateObject(obj map[string]any, path string) error {
	for _, f := range s.Fields {
		fieldPath := f.Name
		if path != "" {
			fieldPath = path + "." + f.Name
		}

		val, present := obj[f.Name]
		if !present || val == nil {
			if f.Required {
				return eris.Errorf("llm: missing required field %q", fieldPath)
			}
			continue
		}

		if err := validateValue(val, f, fieldPath); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(val any, f Field, path string) error {
	switch f.Kind {
	case KindString:
		if _, ok := val.(string); !ok {
			return typeErr(path, f.Kind, val)
		}

	case KindNumber, KindInteger:
		n, ok := val.(float64)
		if !ok {
			return typeErr(path, f.Kind, val)
		}
		if f.Kind == KindInteger && n != math.Trunc(n) {
			return eris.Errorf("llm: field %q: expected integer, got %v", path, n)
		}
		if f.Min != nil && n < *f.Min {
			return eris.Errorf("llm: field %q: %v below minimum %v", path, n, *f.Min)
		}
		if f.Max != nil && n > *f.Max {
			return eris.Errorf("llm: field %q: %v above maximum %v", path, n, *f.Max)
		}

	case KindBool:
		if _, ok := val.(bool); !ok {
			return typeErr(path, f.Kind, val)
		}

	case KindArray:
		arr, ok := val.([]any)
		if !ok {
			return typeErr(path, f.Kind, val)
		}
		if f.Items != nil {
			for i, item := range arr {
				elem, ok := item.(map[string]any)
				if !ok {
					return eris.Errorf("llm: field %q[%d]: expected object", path, i)
				}
				if err := f.Items.validateObject(elem, path); err != nil {
					return err
				}
			}
		}

	case KindObject:
		obj, ok := val.(map[string]any)
		if !ok {
			return typeErr(path, f.Kind, val)
		}
		if f.Object != nil {
			return f.Object.validateObject(obj, path)
		}
	}
	return nil
}

func typeErr(path string, want Kind, got any) error {
	return eris.Errorf("llm: field %q: expected %s, got %T", path, want, got)
}

// Clamp bounds v to [0, 1]. Model-produced scores and confidences pass
// through this before they reach domain objects.
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
