package stream

// Map is an insertion-ordered mapping from quality label to Stream. Plugins
// produce one per URL; the session decorates it with best/worst aliases.
type Map struct {
	names   []string
	streams map[string]Stream
}

// NewMap returns an empty stream map.
func NewMap() *Map {
	return &Map{streams: make(map[string]Stream)}
}

// Set stores a stream under a name. Setting an existing name replaces the
// stream but keeps its original position.
func (m *Map) Set(name string, s Stream) {
	if _, ok := m.streams[name]; !ok {
		m.names = append(m.names, name)
	}
	m.streams[name] = s
}

// Get returns the stream stored under name.
func (m *Map) Get(name string) (Stream, bool) {
	s, ok := m.streams[name]
	return s, ok
}

// Names returns the labels in insertion order.
func (m *Map) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.names)
}
