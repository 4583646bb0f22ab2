package validate

import (
	"github.com/PuerkitoBio/goquery"
)

func asSelection(input any, path string) (*goquery.Selection, error) {
	switch in := input.(type) {
	case *goquery.Document:
		return in.Selection, nil
	case *goquery.Selection:
		return in, nil
	default:
		return nil, errAt(path, "expected html document or selection, got %T", input)
	}
}

// HTMLFind yields the first element matching the CSS selector; no match is an
// error.
func HTMLFind(selector string) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		sel, err := asSelection(input, path)
		if err != nil {
			return nil, err
		}
		found := sel.Find(selector)
		if found.Length() == 0 {
			return nil, errAt(path, "no element matching %q", selector)
		}
		return found.First(), nil
	})
}

// HTMLFindAll yields every element matching the CSS selector.
func HTMLFindAll(selector string) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		sel, err := asSelection(input, path)
		if err != nil {
			return nil, err
		}
		var out []any
		sel.Find(selector).Each(func(_ int, s *goquery.Selection) {
			out = append(out, s)
		})
		return out, nil
	})
}

// HTMLText yields the combined text of an HTML selection.
func HTMLText() Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		sel, err := asSelection(input, path)
		if err != nil {
			return nil, err
		}
		return sel.Text(), nil
	})
}

// HTMLAttr yields the value of an attribute on the first element of a
// selection; a missing attribute is an error.
func HTMLAttr(name string) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		sel, err := asSelection(input, path)
		if err != nil {
			return nil, err
		}
		value, ok := sel.Attr(name)
		if !ok {
			return nil, errAt(path, "missing attribute %q", name)
		}
		return value, nil
	})
}
