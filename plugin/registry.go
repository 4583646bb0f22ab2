package plugin

import (
	"github.com/strelay-cli/strelay/util"
)

// Registry holds the registered plugins in registration order. It is
// populated during session construction and read-only afterwards.
type Registry struct {
	entries []Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends an entry. Registration order is the tie-break between
// matches of equal priority, so the order of calls is meaningful.
func (r *Registry) Register(e Entry) {
	r.entries = append(r.entries, e)
}

// Entries returns the registered plugins in registration order.
func (r *Registry) Entries() []Entry {
	return r.entries
}

// Match is a resolved URL: the winning entry, the priority it claimed, and
// the named capture groups of its pattern.
type Match struct {
	Entry    Entry
	Priority Priority
	Groups   map[string]string
	URL      string
}

// Resolve scans the registry and picks the highest-priority non-broken match
// for the URL. Within equal priority the first registered entry wins. A URL
// nothing matches yields NoPluginError.
func (r *Registry) Resolve(url string) (Match, error) {
	var (
		best  Match
		found bool
	)

	for _, e := range r.entries {
		if e.Broken {
			continue
		}

		// Entries without static matchers (sideloaded scripts) are
		// consulted through their priority function alone.
		if len(e.Matchers) == 0 && e.PriorityFunc != nil {
			if priority := e.PriorityFunc(url); priority != NoPriority {
				if !found || priority > best.Priority {
					best = Match{Entry: e, Priority: priority, URL: url}
					found = true
				}
			}
			continue
		}

		for _, m := range e.Matchers {
			if !m.Pattern.MatchString(url) {
				continue
			}

			priority := m.Priority
			if e.PriorityFunc != nil {
				priority = e.PriorityFunc(url)
			}
			if priority == NoPriority {
				continue
			}

			// Strictly greater keeps the first registrant on ties.
			if !found || priority > best.Priority {
				best = Match{
					Entry:    e,
					Priority: priority,
					Groups:   util.ReGroups(m.Pattern, url),
					URL:      url,
				}
				found = true
			}
			break
		}
	}

	if !found {
		return Match{}, &NoPluginError{URL: url}
	}
	return best, nil
}
