package validate

import (
	xmlpath "gopkg.in/xmlpath.v2"
)

func asXMLNode(input any, path string) (*xmlpath.Node, error) {
	node, ok := input.(*xmlpath.Node)
	if !ok {
		return nil, errAt(path, "expected xml node, got %T", input)
	}
	return node, nil
}

func compileXPath(expr, path string) (*xmlpath.Path, error) {
	compiled, err := xmlpath.Compile(expr)
	if err != nil {
		return nil, wrapAt(path, err, "compile xpath %q", expr)
	}
	return compiled, nil
}

// XMLFind yields the first node matching the XPath expression; no match is an
// error.
func XMLFind(expr string) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		node, err := asXMLNode(input, path)
		if err != nil {
			return nil, err
		}
		compiled, err := compileXPath(expr, path)
		if err != nil {
			return nil, err
		}
		iter := compiled.Iter(node)
		if !iter.Next() {
			return nil, errAt(path, "no element matching %q", expr)
		}
		return iter.Node(), nil
	})
}

// XMLFindAll yields every node matching the XPath expression.
func XMLFindAll(expr string) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		node, err := asXMLNode(input, path)
		if err != nil {
			return nil, err
		}
		compiled, err := compileXPath(expr, path)
		if err != nil {
			return nil, err
		}
		var out []any
		iter := compiled.Iter(node)
		for iter.Next() {
			out = append(out, iter.Node())
		}
		return out, nil
	})
}

// XMLFindText yields the text of the first node matching the XPath
// expression.
func XMLFindText(expr string) Schema {
	return All(XMLFind(expr), XMLText())
}

// XMLText yields the string value of an XML node.
func XMLText() Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		node, err := asXMLNode(input, path)
		if err != nil {
			return nil, err
		}
		return node.String(), nil
	})
}

// XMLXPath evaluates the XPath expression and yields the matching nodes, or
// nil when nothing matches.
func XMLXPath(expr string) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		node, err := asXMLNode(input, path)
		if err != nil {
			return nil, err
		}
		compiled, err := compileXPath(expr, path)
		if err != nil {
			return nil, err
		}
		var out []any
		iter := compiled.Iter(node)
		for iter.Next() {
			out = append(out, iter.Node())
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	})
}

// XMLXPathString evaluates the XPath expression and yields the string value
// of the first match, or nil when nothing matches.
func XMLXPathString(expr string) Schema {
	return schemaFunc(func(input any, path string) (any, error) {
		node, err := asXMLNode(input, path)
		if err != nil {
			return nil, err
		}
		compiled, err := compileXPath(expr, path)
		if err != nil {
			return nil, err
		}
		value, ok := compiled.String(node)
		if !ok {
			return nil, nil
		}
		return value, nil
	})
}
