package validate

import (
	"net/url"
	"regexp"
	"strings"
)

// StartsWith validates that the textual input begins with the prefix.
func StartsWith(prefix string) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		text, err := asText(input, path)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(text, prefix) {
			return nil, errAt(path, "%q does not start with %q", truncate(text), prefix)
		}
		return input, nil
	})
}

// EndsWith validates that the textual input ends with the suffix.
func EndsWith(suffix string) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		text, err := asText(input, path)
		if err != nil {
			return nil, err
		}
		if !strings.HasSuffix(text, suffix) {
			return nil, errAt(path, "%q does not end with %q", truncate(text), suffix)
		}
		return input, nil
	})
}

// Contains validates that the textual input contains the substring.
func Contains(substr string) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		text, err := asText(input, path)
		if err != nil {
			return nil, err
		}
		if !strings.Contains(text, substr) {
			return nil, errAt(path, "%q does not contain %q", truncate(text), substr)
		}
		return input, nil
	})
}

// Length validates that the input sequence or string has at least n elements.
func Length(n int) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		var length int
		switch in := input.(type) {
		case string:
			length = len(in)
		case []byte:
			length = len(in)
		case []any:
			length = len(in)
		case []string:
			length = len(in)
		case map[string]any:
			length = len(in)
		default:
			return nil, errAt(path, "cannot measure length of %T", input)
		}
		if length < n {
			return nil, errAt(path, "length %d is less than %d", length, n)
		}
		return input, nil
	})
}

// RegexMatch validates the textual input against the pattern and yields the
// named capture groups as a map. A non-matching input is an error.
func RegexMatch(pattern *regexp.Regexp) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		text, err := asText(input, path)
		if err != nil {
			return nil, err
		}
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			return nil, errAt(path, "%q does not match %q", truncate(text), pattern.String())
		}
		groups := make(map[string]any)
		for i, name := range pattern.SubexpNames() {
			if i > 0 && name != "" {
				groups[name] = match[i]
			}
		}
		// Positional access to the whole match for schemas without named groups.
		groups["0"] = match[0]
		return groups, nil
	})
}

// URLExpr performs a structural URL assertion: the input must parse as a URL
// and each given attribute must validate. Recognized attributes: scheme,
// host, path, query, fragment.
func URLExpr(attributes map[string]Schema) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		text, err := asText(input, path)
		if err != nil {
			return nil, err
		}
		parsed, err := url.Parse(text)
		if err != nil {
			return nil, wrapAt(path, err, "parse url")
		}

		parts := map[string]any{
			"scheme":   parsed.Scheme,
			"host":     parsed.Host,
			"path":     parsed.Path,
			"query":    parsed.RawQuery,
			"fragment": parsed.Fragment,
		}

		for attr, schema := range attributes {
			value, ok := parts[attr]
			if !ok {
				return nil, errAt(path, "unknown url attribute %q", attr)
			}
			if _, err := schema.validate(value, path+"."+attr); err != nil {
				return nil, err
			}
		}
		return input, nil
	})
}

func truncate(s string) string {
	const max = 40
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}
