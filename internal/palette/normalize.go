package palette

import (
	"encoding/json"
	"reflect"

	"palette/internal/domain"
)

// Kind is the closed set of shapes a tool result can take.
type Kind int

const (
	KindScalar Kind = iota
	KindKeyedRecord
	KindOrderedCollection
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindKeyedRecord:
		return "keyed_record"
	case KindOrderedCollection:
		return "ordered_collection"
	default:
		return "opaque"
	}
}

// KindOf classifies v.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return KindScalar
	case *domain.Document:
		if v.(*domain.Document) == nil {
			return KindScalar
		}
		return KindKeyedRecord
	case domain.Document, map[string]any:
		return KindKeyedRecord
	case []byte:
		return KindScalar
	case []any:
		return KindOrderedCollection
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return KindScalar
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindScalar
	case reflect.Struct:
		return KindKeyedRecord
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return KindKeyedRecord
		}
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return KindScalar
		}
		return KindOrderedCollection
	}
	return KindOpaque
}

// Normalize flattens a tool result into plain values: records become
// map[string]any, collections become []any, and documents carry a "type"
// of "Document". Scalars and unknown shapes pass through unchanged.
// Normalize(Normalize(v)) equals Normalize(v). Values nested deeper than
// maxNormalizeDepth, including self-referencing ones, are left as they are.
func Normalize(v any) any {
	return normalize(v, 0)
}

const maxNormalizeDepth = 64

func normalize(v any, depth int) any {
	if depth > maxNormalizeDepth {
		return v
	}
	switch KindOf(v) {
	case KindKeyedRecord:
		return normalizeRecord(v, depth+1)
	case KindOrderedCollection:
		return normalizeCollection(v, depth+1)
	case KindScalar:
		if rv := reflect.ValueOf(v); rv.IsValid() && rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return nil
			}
			return normalize(rv.Elem().Interface(), depth+1)
		}
		return v
	default:
		return v
	}
}

// NormalizeSteps returns steps with every result normalized, order kept.
func NormalizeSteps(steps []domain.Step) []domain.Step {
	if len(steps) == 0 {
		return nil
	}
	out := make([]domain.Step, len(steps))
	for i, s := range steps {
		out[i] = domain.Step{Action: s.Action, Result: Normalize(s.Result)}
	}
	return out
}

func normalizeRecord(v any, depth int) any {
	switch r := v.(type) {
	case domain.Document:
		return documentRecord(r, depth)
	case *domain.Document:
		if r == nil {
			return nil
		}
		return documentRecord(*r, depth)
	case map[string]any:
		out := make(map[string]any, len(r))
		for k, val := range r {
			out[k] = normalize(val, depth)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Map {
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalize(iter.Value().Interface(), depth)
		}
		return out
	}

	// Structs take their JSON field names.
	data, err := json.Marshal(rv.Interface())
	if err != nil {
		return v
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return v
	}
	if _, ok := decoded.(map[string]any); !ok {
		return v
	}
	return normalize(decoded, depth)
}

func normalizeCollection(v any, depth int) any {
	if s, ok := v.([]any); ok {
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = normalize(e, depth)
		}
		return out
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = normalize(rv.Index(i).Interface(), depth)
	}
	return out
}

func documentRecord(d domain.Document, depth int) map[string]any {
	md := map[string]any{}
	for k, v := range d.Metadata {
		md[k] = normalize(v, depth)
	}
	return map[string]any{
		"page_content": d.PageContent,
		"metadata":     md,
		"type":         "Document",
	}
}
