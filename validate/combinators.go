package validate

import (
	"fmt"
	"reflect"
)

// All pipes the input through every schema in order; the output of one node is
// the input of the next.
func All(schemas ...Schema) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		value := input
		var err error
		for _, s := range schemas {
			value, err = s.validate(value, path)
			if err != nil {
				return nil, err
			}
		}
		return value, nil
	})
}

// Any yields the result of the first schema that validates. When every branch
// fails, the last branch's error is reported.
func Any(schemas ...Schema) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		if len(schemas) == 0 {
			return input, nil
		}
		var lastErr error
		for _, s := range schemas {
			out, err := s.validate(input, path)
			if err == nil {
				return out, nil
			}
			lastErr = err
		}
		return nil, lastErr
	})
}

// NoneOrAll yields nil for nil input; otherwise it behaves like All.
func NoneOrAll(schemas ...Schema) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		if input == nil {
			return nil, nil
		}
		return All(schemas...).validate(input, path)
	})
}

// Get indexes into a map, slice, or regex-match result. An out-of-range index
// or missing key yields the first default (or nil).
func Get(keyOrIndex any, defaults ...any) Schema {
	var fallback any
	if len(defaults) > 0 {
		fallback = defaults[0]
	}
	return schemaFunc(func(input any, path string) (any, error) {
		out, ok := index(input, keyOrIndex)
		if !ok {
			return fallback, nil
		}
		return out, nil
	})
}

func index(input, keyOrIndex any) (any, bool) {
	switch in := input.(type) {
	case map[string]any:
		k, ok := keyOrIndex.(string)
		if !ok {
			return nil, false
		}
		v, ok := in[k]
		return v, ok
	case map[string]string:
		k, ok := keyOrIndex.(string)
		if !ok {
			return nil, false
		}
		v, ok := in[k]
		return v, ok
	case []any:
		i, ok := keyOrIndex.(int)
		if !ok || i < 0 || i >= len(in) {
			return nil, false
		}
		return in[i], true
	case []string:
		i, ok := keyOrIndex.(int)
		if !ok || i < 0 || i >= len(in) {
			return nil, false
		}
		return in[i], true
	default:
		rv := reflect.ValueOf(input)
		if rv.Kind() == reflect.Map {
			v := rv.MapIndex(reflect.ValueOf(keyOrIndex))
			if !v.IsValid() {
				return nil, false
			}
			return v.Interface(), true
		}
		return nil, false
	}
}

// Union applies every schema to the same input and yields the slice of
// results.
func Union(schemas ...Schema) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		out := make([]any, 0, len(schemas))
		for i, s := range schemas {
			v, err := s.validate(input, fmt.Sprintf("%s|%d", path, i))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	})
}

// UnionGet indexes the same input with every key and yields the slice of
// values, preserving key order.
func UnionGet(keys ...any) Schema {
	schemas := make([]Schema, len(keys))
	for i, k := range keys {
		schemas[i] = Get(k)
	}
	return Union(schemas...)
}

// optionalKey marks a mapping key as optional inside a SchemaMap.
type optionalKey struct {
	key any
}

// Optional marks a SchemaMap key as optional: a missing key is not an error
// and produces no output entry.
func Optional(key any) any {
	return optionalKey{key: key}
}

// SchemaMap validates each recognized key of a mapping input against its
// schema. Unknown input keys are preserved unchanged. Keys wrapped with
// Optional may be absent.
type SchemaMap map[any]Schema

func (m SchemaMap) validate(input any, path string) (any, error) {
	in, ok := input.(map[string]any)
	if !ok {
		return nil, errAt(path, "expected mapping, got %T", input)
	}

	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}

	for rawKey, schema := range m {
		key, optional := unwrapKey(rawKey)
		name, ok := key.(string)
		if !ok {
			return nil, errAt(path, "mapping schema key %#v is not a string", key)
		}

		value, present := in[name]
		if !present {
			if optional {
				continue
			}
			return nil, errAt(path+"."+name, "missing key %q", name)
		}

		validated, err := schema.validate(value, path+"."+name)
		if err != nil {
			return nil, err
		}
		out[name] = validated
	}

	return out, nil
}

func unwrapKey(k any) (any, bool) {
	if opt, ok := k.(optionalKey); ok {
		return opt.key, true
	}
	return k, false
}

// ListOf performs a positional tuple match: the input sequence must have
// exactly as many elements as there are schemas.
func ListOf(schemas ...Schema) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		in, err := toSlice(input, path)
		if err != nil {
			return nil, err
		}
		if len(in) != len(schemas) {
			return nil, errAt(path, "expected %d elements, got %d", len(schemas), len(in))
		}
		out := make([]any, len(in))
		for i, s := range schemas {
			v, err := s.validate(in[i], fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	})
}

// Filter keeps the elements of a sequence for which fn returns true.
func Filter(fn func(any) bool) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		in, err := toSlice(input, path)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(in))
		for _, v := range in {
			if fn(v) {
				out = append(out, v)
			}
		}
		return out, nil
	})
}

// Map applies a schema to every element of a sequence.
func Map(s Schema) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		in, err := toSlice(input, path)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(in))
		for i, v := range in {
			mapped, err := s.validate(v, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = mapped
		}
		return out, nil
	})
}

func toSlice(input any, path string) ([]any, error) {
	switch in := input.(type) {
	case []any:
		return in, nil
	case []string:
		out := make([]any, len(in))
		for i, s := range in {
			out[i] = s
		}
		return out, nil
	default:
		return nil, errAt(path, "expected sequence, got %T", input)
	}
}
