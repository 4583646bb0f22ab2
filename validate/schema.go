// Package validate implements a small, composable schema DSL used by plugins
// to extract typed values from JSON, HTML, XML, and query-string payloads.
//
// A schema is a tree of nodes interpreted by a single evaluator. Every node is
// referentially transparent: the same input always yields the same output and
// no node mutates its input. Failing leaves report a breadcrumb path such as
// ".sources[0].url" so plugin authors can locate the offending value.
package validate

import (
	"fmt"
	"reflect"
)

// Schema is a single validator node. Nodes are produced by the package's
// constructor functions and evaluated with Apply.
type Schema interface {
	validate(input any, path string) (any, error)
}

// Error is the failure produced by a schema node. Path is a breadcrumb into
// the input value, e.g. ".sources[0].url".
type Error struct {
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	p := e.Path
	if p == "" {
		p = "."
	}
	if e.Cause != nil {
		return fmt.Sprintf("validation failed at %s: %s: %s", p, e.Message, e.Cause)
	}
	return fmt.Sprintf("validation failed at %s: %s", p, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func errAt(path, format string, args ...any) error {
	return &Error{Path: path, Message: fmt.Sprintf(format, args...)}
}

func wrapAt(path string, cause error, format string, args ...any) error {
	if ve, ok := cause.(*Error); ok {
		return ve
	}
	return &Error{Path: path, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Apply evaluates a schema against an input value.
func Apply(s Schema, input any) (any, error) {
	return s.validate(input, "")
}

// schemaFunc adapts a plain function into a Schema.
type schemaFunc func(input any, path string) (any, error)

func (f schemaFunc) validate(input any, path string) (any, error) {
	return f(input, path)
}

// Type validates that the input is assignable to the Go type T and yields it
// unchanged. This is the ground "type match" node.
func Type[T any]() Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		if _, ok := input.(T); !ok {
			var zero T
			return nil, errAt(path, "expected type %T, got %T", zero, input)
		}
		return input, nil
	})
}

// Equals validates that the input equals the given literal.
func Equals(want any) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		if !reflect.DeepEqual(input, want) {
			return nil, errAt(path, "expected %#v, got %#v", want, input)
		}
		return input, nil
	})
}

// Check validates the input with a boolean predicate.
func Check(pred func(any) bool) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		if !pred(input) {
			return nil, errAt(path, "predicate rejected %#v", input)
		}
		return input, nil
	})
}

// Transform applies fn to the input and yields its result.
func Transform(fn func(any) (any, error)) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		out, err := fn(input)
		if err != nil {
			return nil, wrapAt(path, err, "transform")
		}
		return out, nil
	})
}
