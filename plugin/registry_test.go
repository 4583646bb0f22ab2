package plugin

import (
	"context"
	"regexp"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/strelay-cli/strelay/stream"
)

type nopPlugin struct{ name string }

func (p *nopPlugin) Name() string                                 { return p.name }
func (p *nopPlugin) Streams(context.Context) (*stream.Map, error) { return stream.NewMap(), nil }

func entry(name string, priority Priority, pattern string) Entry {
	return Entry{
		Name: name,
		Matchers: []Matcher{{
			Pattern:  regexp.MustCompile(pattern),
			Priority: priority,
		}},
		New: func(Environment, string, map[string]string) Plugin {
			return &nopPlugin{name: name}
		},
	}
}

func TestRegistry(t *testing.T) {
	Convey("Registry.Resolve", t, func() {
		r := NewRegistry()

		Convey("Should fail when nothing matches", func() {
			_, err := r.Resolve("https://example.tld/live")
			So(err, ShouldHaveSameTypeAs, &NoPluginError{})
		})

		Convey("Should pick the highest priority match", func() {
			r.Register(entry("catchall", Low, `\.m3u8`))
			r.Register(entry("site", Normal, `example\.tld`))

			m, err := r.Resolve("https://example.tld/live.m3u8")
			So(err, ShouldBeNil)
			So(m.Entry.Name, ShouldEqual, "site")
		})

		Convey("Should break ties by registration order", func() {
			r.Register(entry("first", Normal, `example\.tld`))
			r.Register(entry("second", Normal, `example\.tld`))

			m, err := r.Resolve("https://example.tld/video")
			So(err, ShouldBeNil)
			So(m.Entry.Name, ShouldEqual, "first")
		})

		Convey("Should skip broken entries", func() {
			broken := entry("broken", High, `example\.tld`)
			broken.Broken = true
			r.Register(broken)
			r.Register(entry("working", Low, `example\.tld`))

			m, err := r.Resolve("https://example.tld/video")
			So(err, ShouldBeNil)
			So(m.Entry.Name, ShouldEqual, "working")
		})

		Convey("Should honor PriorityFunc overrides", func() {
			dynamic := entry("dynamic", Low, `.*`)
			dynamic.PriorityFunc = func(url string) Priority {
				if url == "https://claimed.tld/" {
					return High
				}
				return NoPriority
			}
			r.Register(dynamic)
			r.Register(entry("fallback", Low, `.*`))

			m, err := r.Resolve("https://claimed.tld/")
			So(err, ShouldBeNil)
			So(m.Entry.Name, ShouldEqual, "dynamic")

			m, err = r.Resolve("https://other.tld/")
			So(err, ShouldBeNil)
			So(m.Entry.Name, ShouldEqual, "fallback")
		})

		Convey("Should expose named capture groups", func() {
			r.Register(entry("groups", Normal, `https://example\.tld/(?P<channel>\w+)`))

			m, err := r.Resolve("https://example.tld/speedruns")
			So(err, ShouldBeNil)
			So(m.Groups["channel"], ShouldEqual, "speedruns")
		})

		Convey("At most one plugin is selected for any URL", func() {
			r.Register(entry("a", Normal, `.*`))
			r.Register(entry("b", High, `.*`))

			m, err := r.Resolve("https://anything.tld/")
			So(err, ShouldBeNil)
			So(m.Entry.Name, ShouldEqual, "b")
		})
	})
}
