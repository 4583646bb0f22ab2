package dash

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/strelay-cli/strelay/network"
)

func newTestClient(t *testing.T) *network.Client {
	t.Helper()
	client, err := network.New(network.Config{})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestStaticPresentation(t *testing.T) {
	Convey("A static MPD plays every segment of one representation", t, func() {
		mux := http.NewServeMux()
		srv := httptest.NewServer(mux)
		defer srv.Close()

		mux.HandleFunc("/manifest.mpd", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `<?xml version="1.0"?>
<MPD type="static" mediaPresentationDuration="PT8S">
  <Period>
    <AdaptationSet mimeType="video/mp4">
      <SegmentTemplate media="$RepresentationID$/seg-$Number$.m4s" initialization="$RepresentationID$/init.mp4" duration="4" startNumber="1"/>
      <Representation id="v720" bandwidth="3000000" width="1280" height="720"/>
    </AdaptationSet>
  </Period>
</MPD>`)
		})
		mux.HandleFunc("/v720/init.mp4", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "INIT|")
		})
		for i := 1; i <= 2; i++ {
			i := i
			mux.HandleFunc(fmt.Sprintf("/v720/seg-%d.m4s", i), func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprintf(w, "S%d|", i)
			})
		}

		s := NewStream(newTestClient(t), srv.URL+"/manifest.mpd", "v720", Options{})
		r, err := s.Open(context.Background())
		So(err, ShouldBeNil)
		defer r.Close()

		out, err := io.ReadAll(r)
		So(err, ShouldBeNil)
		So(string(out), ShouldEqual, "INIT|S1|S2|")
	})
}

func TestTimelineRenumbering(t *testing.T) {
	Convey("Timeline slots keep their numbers across reloads", t, func() {
		s := NewStream(nil, "https://example.com/m.mpd", "v1", Options{})

		render := func(entries string) *MPD {
			raw := fmt.Sprintf(`<?xml version="1.0"?>
<MPD type="dynamic" availabilityStartTime="2026-01-01T00:00:00Z" minimumUpdatePeriod="PT2S">
  <Period>
    <AdaptationSet mimeType="video/mp4">
      <SegmentTemplate media="seg-$Time$.m4s" timescale="90000">
        <SegmentTimeline>%s</SegmentTimeline>
      </SegmentTemplate>
      <Representation id="v1" bandwidth="1000"/>
    </AdaptationSet>
  </Period>
</MPD>`, entries)
			mpd, err := ParseMPD([]byte(raw))
			So(err, ShouldBeNil)
			return mpd
		}

		first, err := s.render(render(`<S t="0" d="90000" r="2"/>`))
		So(err, ShouldBeNil)
		So(len(first.Segments), ShouldEqual, 3)
		So(first.Segments[0].Num, ShouldEqual, 0)
		So(first.Segments[2].Num, ShouldEqual, 2)
		So(first.Complete, ShouldBeFalse)

		// window slid by one slot: the overlap keeps its numbers, the
		// new slot gets the next one
		second, err := s.render(render(`<S t="90000" d="90000" r="2"/>`))
		So(err, ShouldBeNil)
		So(len(second.Segments), ShouldEqual, 3)
		So(second.Segments[0].Num, ShouldEqual, 1)
		So(second.Segments[2].Num, ShouldEqual, 3)

		Convey("segment durations honor the timescale", func() {
			So(first.Segments[0].Duration, ShouldEqual, time.Second)
		})

		Convey("availability derives from the presentation epoch", func() {
			epoch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			So(first.Segments[0].AvailableAt, ShouldEqual, epoch.Add(time.Second))
		})
	})
}

func TestFutureAvailability(t *testing.T) {
	Convey("A future availabilityStartTime pushes segments past now", t, func() {
		s := NewStream(nil, "https://example.com/m.mpd", "v1", Options{})

		start := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		raw := fmt.Sprintf(`<?xml version="1.0"?>
<MPD type="dynamic" availabilityStartTime="%s" minimumUpdatePeriod="PT2S">
  <Period>
    <AdaptationSet mimeType="video/mp4">
      <SegmentTemplate media="seg-$Time$.m4s" timescale="1">
        <SegmentTimeline><S t="0" d="2"/></SegmentTimeline>
      </SegmentTemplate>
      <Representation id="v1" bandwidth="1000"/>
    </AdaptationSet>
  </Period>
</MPD>`, start)
		mpd, err := ParseMPD([]byte(raw))
		So(err, ShouldBeNil)

		playlist, err := s.render(mpd)
		So(err, ShouldBeNil)
		So(playlist.Segments[0].AvailableAt.After(time.Now()), ShouldBeTrue)
	})
}

func TestNewStreams(t *testing.T) {
	Convey("Video representations mux with the best audio", t, func() {
		mux := http.NewServeMux()
		srv := httptest.NewServer(mux)
		defer srv.Close()

		mux.HandleFunc("/manifest.mpd", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `<?xml version="1.0"?>
<MPD type="static" mediaPresentationDuration="PT8S">
  <Period>
    <AdaptationSet mimeType="video/mp4">
      <SegmentTemplate media="$RepresentationID$/$Number$.m4s" duration="4"/>
      <Representation id="v720" bandwidth="3000000" width="1280" height="720"/>
      <Representation id="v480" bandwidth="1200000" width="842" height="480"/>
    </AdaptationSet>
    <AdaptationSet mimeType="audio/mp4">
      <SegmentTemplate media="$RepresentationID$/$Number$.m4s" duration="4"/>
      <Representation id="a-low" bandwidth="64000"/>
      <Representation id="a-high" bandwidth="128000"/>
    </AdaptationSet>
  </Period>
</MPD>`)
		})

		streams, err := NewStreams(context.Background(), newTestClient(t), srv.URL+"/manifest.mpd", Options{})
		So(err, ShouldBeNil)
		So(streams.Names(), ShouldResemble, []string{"720p", "480p", "a128k", "a64k"})

		v, _ := streams.Get("720p")
		So(v.Shortname(), ShouldEqual, "muxed-stream")

		a, _ := streams.Get("a64k")
		So(a.Shortname(), ShouldEqual, "dash")
	})
}
