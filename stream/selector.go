package stream

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"
)

// FilterFunc reports whether a stream name should be excluded from
// best/worst resolution.
type FilterFunc func(name string) bool

// Alias names synthesized by Decorate.
const (
	NameBest            = "best"
	NameWorst           = "worst"
	NameBestUnfiltered  = "best-unfiltered"
	NameWorstUnfiltered = "worst-unfiltered"
)

var reFilterTerm = regexp.MustCompile(`^(?P<op>>=|<=|>|<)?(?P<label>\S+)$`)

// ParseFilter compiles a sorting-excludes expression into a FilterFunc.
// The expression is a comma-separated list of terms; each term is either an
// operator comparison against a quality label (">=720p", "<high") or, when
// the term carries no operator and is not a known label form, a regular
// expression matched against the whole name.
func ParseFilter(expr string) (FilterFunc, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return func(string) bool { return false }, nil
	}

	type term struct {
		op     string
		weight float64
		group  string
		re     *regexp.Regexp
	}

	var terms []term
	for _, raw := range strings.Split(expr, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		m := reFilterTerm.FindStringSubmatch(raw)
		if m == nil {
			return nil, fmt.Errorf("invalid filter term %q", raw)
		}
		op, label := m[1], m[2]

		weight, group := Weight(label)
		if group == GroupNone {
			if op != "" {
				return nil, fmt.Errorf("cannot compare against unweighted label %q", label)
			}
			re, err := regexp.Compile(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid filter term %q: %w", raw, err)
			}
			terms = append(terms, term{re: re})
			continue
		}
		if op == "" {
			op = "=="
		}
		terms = append(terms, term{op: op, weight: weight, group: group})
	}

	return func(name string) bool {
		w, g := Weight(name)
		for _, t := range terms {
			if t.re != nil {
				if t.re.MatchString(name) {
					return true
				}
				continue
			}
			if g != t.group {
				continue
			}
			switch t.op {
			case ">":
				if w > t.weight {
					return true
				}
			case ">=":
				if w >= t.weight {
					return true
				}
			case "<":
				if w < t.weight {
					return true
				}
			case "<=":
				if w <= t.weight {
					return true
				}
			case "==":
				if w == t.weight {
					return true
				}
			}
		}
		return false
	}, nil
}

// Decorate inserts the derived aliases into a plugin-produced stream map:
// "worst"/"best" over the names surviving the exclude filter,
// "worst-unfiltered"/"best-unfiltered" over all names, and any configured
// synonyms. Aliases share the Stream values they point at.
func Decorate(m *Map, exclude FilterFunc, synonyms map[string]string) {
	if exclude == nil {
		exclude = func(string) bool { return false }
	}

	original := m.Names()

	filtered := lo.Filter(original, func(name string, _ int) bool {
		return !exclude(name)
	})

	if worst, best, ok := extremes(m, filtered); ok {
		m.Set(NameWorst, worst)
		m.Set(NameBest, best)
	}
	if worst, best, ok := extremes(m, original); ok {
		m.Set(NameWorstUnfiltered, worst)
		m.Set(NameBestUnfiltered, best)
	}

	for alias, target := range synonyms {
		if s, ok := m.Get(target); ok {
			m.Set(alias, s)
		}
	}
}

// extremes picks the lowest- and highest-weight streams among names, within
// the dominant weight group. Equal weights keep the earlier insertion.
func extremes(m *Map, names []string) (worst, best Stream, ok bool) {
	group := dominantGroup(names)

	var (
		worstName, bestName     string
		worstWeight, bestWeight float64
		found                   bool
	)

	for _, name := range names {
		w, g := Weight(name)
		if g != group {
			continue
		}
		if !found {
			worstName, bestName = name, name
			worstWeight, bestWeight = w, w
			found = true
			continue
		}
		if w < worstWeight {
			worstName, worstWeight = name, w
		}
		if w > bestWeight {
			bestName, bestWeight = name, w
		}
	}

	if !found {
		return nil, nil, false
	}
	worst, _ = m.Get(worstName)
	best, _ = m.Get(bestName)
	return worst, best, true
}

// dominantGroup returns the weight group holding the most names. Groups never
// compare across each other, so best/worst are resolved inside one group
// only. Ties prefer pixels, then named buckets, then bitrate.
func dominantGroup(names []string) string {
	counts := map[string]int{}
	for _, name := range names {
		if _, g := Weight(name); g != GroupNone {
			counts[g]++
		}
	}

	best := GroupNone
	for _, g := range []string{GroupPixels, GroupNamed, GroupBitrate} {
		if counts[g] > counts[best] || best == GroupNone && counts[g] > 0 {
			best = g
		}
	}
	return best
}

// NoMatchError reports a quality selection that resolved to nothing; it is
// surfaced to the user as a no-streams failure.
type NoMatchError struct {
	Name      string
	Available []string
}

func (e *NoMatchError) Error() string {
	msg := fmt.Sprintf("no stream with quality %q", e.Name)
	if suggestion := fuzzy.RankFindFold(e.Name, e.Available); len(suggestion) > 0 {
		msg += fmt.Sprintf(" (did you mean %q?)", suggestion[0].Target)
	}
	return msg
}

// Select resolves a user quality selection against a decorated stream map:
// a literal key wins outright, otherwise the selection fails with the list of
// available names.
func Select(m *Map, name string) (Stream, error) {
	if s, ok := m.Get(name); ok {
		return s, nil
	}
	return nil, &NoMatchError{Name: name, Available: m.Names()}
}
