// Package inline implements the non-interactive, machine-readable output mode:
// JSON documents describing resolved streams, suitable for scripting.
package inline

import (
	"bytes"
	"encoding/json"

	"github.com/strelay-cli/strelay/stream"
)

// Document is the machine-readable result of resolving a URL: the winning
// plugin and its decorated stream map.
type Document struct {
	Plugin  string
	Streams *stream.Map
}

// entry is the JSON shape of one concrete stream.
type entry struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// MarshalJSON renders the document with stream names in insertion order.
// Aliases (best, worst, synonyms) point at a stream already emitted under
// another name and are rendered as string references instead of objects.
func (d *Document) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(`{"plugin":`)
	if err := encode(&b, d.Plugin); err != nil {
		return nil, err
	}

	b.WriteString(`,"streams":{`)
	seen := make(map[stream.Stream]string)
	for i, name := range d.Streams.Names() {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := encode(&b, name); err != nil {
			return nil, err
		}
		b.WriteByte(':')

		s, _ := d.Streams.Get(name)
		if first, ok := seen[s]; ok {
			if err := encode(&b, first); err != nil {
				return nil, err
			}
			continue
		}
		seen[s] = name

		e := entry{Type: s.Shortname()}
		if u, ok := s.(stream.URLer); ok {
			if url, err := u.ToURL(); err == nil {
				e.URL = url
			}
		}
		if err := encode(&b, e); err != nil {
			return nil, err
		}
	}
	b.WriteString("}}")

	return b.Bytes(), nil
}

// ErrorDocument is the JSON shape of a failed resolution.
type ErrorDocument struct {
	Error string `json:"error"`
}

func encode(b *bytes.Buffer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.Write(raw)
	return nil
}
