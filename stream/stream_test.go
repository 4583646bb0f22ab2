package stream

import (
	"context"
	"io"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type fakeStream struct{ name string }

func (f *fakeStream) Shortname() string { return f.name }
func (f *fakeStream) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(nil), nil
}

func TestMap(t *testing.T) {
	Convey("Given a stream map", t, func() {
		m := NewMap()
		m.Set("720p", &fakeStream{"a"})
		m.Set("1080p", &fakeStream{"b"})
		m.Set("360p", &fakeStream{"c"})

		Convey("Names preserves insertion order", func() {
			So(m.Names(), ShouldResemble, []string{"720p", "1080p", "360p"})
		})

		Convey("Replacing an entry keeps its position", func() {
			m.Set("1080p", &fakeStream{"d"})
			So(m.Names(), ShouldResemble, []string{"720p", "1080p", "360p"})
			s, ok := m.Get("1080p")
			So(ok, ShouldBeTrue)
			So(s.Shortname(), ShouldEqual, "d")
		})
	})
}

func TestWeight(t *testing.T) {
	Convey("Resolution labels weigh their height", t, func() {
		w, g := Weight("720p")
		So(g, ShouldEqual, GroupPixels)
		So(w, ShouldEqual, 720)
	})

	Convey("Frame rate breaks ties between equal heights", t, func() {
		w60, _ := Weight("1080p60")
		w30, _ := Weight("1080p30")
		So(w60, ShouldBeGreaterThan, w30)
	})

	Convey("A trailing plus outranks the plain label", t, func() {
		plus, _ := Weight("720p+")
		plain, _ := Weight("720p")
		So(plus, ShouldBeGreaterThan, plain)
	})

	Convey("Audio bitrate labels weigh their rate", t, func() {
		w, g := Weight("audio_128k")
		So(g, ShouldEqual, GroupBitrate)
		So(w, ShouldEqual, 128)

		w2, g2 := Weight("a256k")
		So(g2, ShouldEqual, GroupBitrate)
		So(w2, ShouldBeGreaterThan, w)
	})

	Convey("Named buckets order source above mobile", t, func() {
		src, g := Weight("source")
		So(g, ShouldEqual, GroupNamed)
		mob, _ := Weight("mobile")
		So(src, ShouldBeGreaterThan, mob)
	})

	Convey("Unknown labels carry no weight", t, func() {
		w, g := Weight("chunked_alt")
		So(g, ShouldEqual, GroupNone)
		So(w, ShouldEqual, 0)
	})

	Convey("Duplicate-variant suffixes weigh like their base label", t, func() {
		base, _ := Weight("720p")
		alt, g := Weight("720p_alt")
		So(g, ShouldEqual, GroupPixels)
		So(alt, ShouldEqual, base)

		alt2, _ := Weight("720p_alt2")
		So(alt2, ShouldEqual, base)
	})
}

func TestDecorate(t *testing.T) {
	build := func(names ...string) *Map {
		m := NewMap()
		for _, n := range names {
			m.Set(n, &fakeStream{n})
		}
		return m
	}

	Convey("Given a plugin-produced map", t, func() {
		m := build("360p", "720p", "1080p")
		Decorate(m, nil, nil)

		Convey("best and worst point at the extremes", func() {
			best, _ := m.Get(NameBest)
			So(best.Shortname(), ShouldEqual, "1080p")
			worst, _ := m.Get(NameWorst)
			So(worst.Shortname(), ShouldEqual, "360p")
		})
	})

	Convey("An exclude filter narrows best but not best-unfiltered", t, func() {
		m := build("360p", "720p", "1080p")
		f, err := ParseFilter(">=1080p")
		So(err, ShouldBeNil)
		Decorate(m, f, nil)

		best, _ := m.Get(NameBest)
		So(best.Shortname(), ShouldEqual, "720p")
		unfiltered, _ := m.Get(NameBestUnfiltered)
		So(unfiltered.Shortname(), ShouldEqual, "1080p")
	})

	Convey("Equal weights resolve to the earlier insertion", t, func() {
		m := build("live", "source")
		Decorate(m, nil, nil)

		best, _ := m.Get(NameBest)
		So(best.Shortname(), ShouldEqual, "live")
	})

	Convey("Pixels dominate a mixed map", t, func() {
		m := build("audio_128k", "360p", "720p")
		Decorate(m, nil, nil)

		best, _ := m.Get(NameBest)
		So(best.Shortname(), ShouldEqual, "720p")
		worst, _ := m.Get(NameWorst)
		So(worst.Shortname(), ShouldEqual, "360p")
	})

	Convey("Synonyms alias existing entries", t, func() {
		m := build("1080p")
		Decorate(m, nil, map[string]string{"fhd": "1080p"})

		s, ok := m.Get("fhd")
		So(ok, ShouldBeTrue)
		So(s.Shortname(), ShouldEqual, "1080p")
	})
}

func TestParseFilter(t *testing.T) {
	Convey("Operator terms compare within their group", t, func() {
		f, err := ParseFilter(">720p")
		So(err, ShouldBeNil)
		So(f("1080p"), ShouldBeTrue)
		So(f("720p"), ShouldBeFalse)
		So(f("audio_512k"), ShouldBeFalse)
	})

	Convey("Multiple terms combine as a union", t, func() {
		f, err := ParseFilter("<480p, >=1080p")
		So(err, ShouldBeNil)
		So(f("360p"), ShouldBeTrue)
		So(f("720p"), ShouldBeFalse)
		So(f("1080p"), ShouldBeTrue)
	})

	Convey("Unweighted terms without operator match as regex", t, func() {
		f, err := ParseFilter("chunked.*")
		So(err, ShouldBeNil)
		So(f("chunked_alt"), ShouldBeTrue)
		So(f("720p"), ShouldBeFalse)
	})

	Convey("Comparing against an unweighted label fails", t, func() {
		_, err := ParseFilter(">=chunked")
		So(err, ShouldNotBeNil)
	})
}

func TestSelect(t *testing.T) {
	Convey("Given a decorated map", t, func() {
		m := NewMap()
		m.Set("720p", &fakeStream{"a"})
		Decorate(m, nil, nil)

		Convey("A literal key resolves", func() {
			s, err := Select(m, "720p")
			So(err, ShouldBeNil)
			So(s.Shortname(), ShouldEqual, "a")
		})

		Convey("A missing key fails with the available names", func() {
			_, err := Select(m, "1080p")
			So(err, ShouldNotBeNil)
			var nm *NoMatchError
			So(err, ShouldHaveSameTypeAs, nm)
			So(err.(*NoMatchError).Available, ShouldContain, "720p")
		})
	})
}

func TestParseRTMPURL(t *testing.T) {
	Convey("An rtmp URL splits into host, app and playpath", t, func() {
		u, err := ParseRTMPURL("rtmp://media.example.com:1935/live/stream_1")
		So(err, ShouldBeNil)
		So(u.Host, ShouldEqual, "media.example.com")
		So(u.Port, ShouldEqual, "1935")
		So(u.App, ShouldEqual, "live")
		So(u.Playpath, ShouldEqual, "stream_1")
	})

	Convey("String reassembles what ParseRTMPURL accepted", t, func() {
		for _, raw := range []string{
			"rtmp://media.example.com/live/stream_1",
			"rtmp://media.example.com:1935/live/stream_1",
			"rtmpe://media.example.com/app",
		} {
			u, err := ParseRTMPURL(raw)
			So(err, ShouldBeNil)
			So(u.String(), ShouldEqual, raw)
		}
	})

	Convey("Non-rtmp schemes are rejected", t, func() {
		_, err := ParseRTMPURL("https://example.com/a")
		So(err, ShouldNotBeNil)
	})
}
