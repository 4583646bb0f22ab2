package validate

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	xmlpath "gopkg.in/xmlpath.v2"
)

// asText coerces bytes or string input into a string.
func asText(input any, path string) (string, error) {
	switch in := input.(type) {
	case string:
		return in, nil
	case []byte:
		return string(in), nil
	default:
		return "", errAt(path, "expected text, got %T", input)
	}
}

// ParseJSON parses the textual input as JSON into generic Go values
// (map[string]any, []any, string, float64, bool, nil).
func ParseJSON() Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		text, err := asText(input, path)
		if err != nil {
			return nil, err
		}
		var out any
		if err := json.Unmarshal([]byte(text), &out); err != nil {
			return nil, wrapAt(path, err, "parse json")
		}
		return out, nil
	})
}

// ParseHTML parses the textual input into an HTML document traversable with
// the HTML selector nodes.
func ParseHTML() Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		text, err := asText(input, path)
		if err != nil {
			return nil, err
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
		if err != nil {
			return nil, wrapAt(path, err, "parse html")
		}
		return doc, nil
	})
}

// ParseXML parses the textual input into an XML node traversable with the
// XPath nodes.
func ParseXML() Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		text, err := asText(input, path)
		if err != nil {
			return nil, err
		}
		root, err := xmlpath.Parse(bytes.NewReader([]byte(text)))
		if err != nil {
			return nil, wrapAt(path, err, "parse xml")
		}
		return root, nil
	})
}

// ParseQSD parses the textual input as a URL query string into a
// map[string]string of first values.
func ParseQSD() Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		text, err := asText(input, path)
		if err != nil {
			return nil, err
		}
		values, err := url.ParseQuery(text)
		if err != nil {
			return nil, wrapAt(path, err, "parse query string")
		}
		out := make(map[string]any, len(values))
		for k := range values {
			out[k] = values.Get(k)
		}
		return out, nil
	})
}
