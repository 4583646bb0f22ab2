package plugins

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/strelay-cli/strelay/plugin"
)

func TestRegister(t *testing.T) {
	Convey("Given a registry with the builtin plugins", t, func() {
		reg := plugin.NewRegistry()
		Register(reg)

		Convey("All builtins are present in order", func() {
			var names []string
			for _, e := range reg.Entries() {
				names = append(names, e.Name)
			}
			So(names, ShouldResemble, []string{"hls", "dash", "hds", "http", "rtmp", "file"})
		})

		Convey("Forcing prefixes win over extension matches", func() {
			match, err := reg.Resolve("hls://https://cdn.tld/playlist")
			So(err, ShouldBeNil)
			So(match.Entry.Name, ShouldEqual, "hls")
			So(match.Priority, ShouldEqual, plugin.Normal)
		})

		Convey("Playlist extensions match at low priority", func() {
			match, err := reg.Resolve("https://cdn.tld/master.m3u8")
			So(err, ShouldBeNil)
			So(match.Entry.Name, ShouldEqual, "hls")
			So(match.Priority, ShouldEqual, plugin.Low)

			match, err = reg.Resolve("https://cdn.tld/manifest.mpd?cb=1")
			So(err, ShouldBeNil)
			So(match.Entry.Name, ShouldEqual, "dash")

			match, err = reg.Resolve("https://cdn.tld/manifest.f4m")
			So(err, ShouldBeNil)
			So(match.Entry.Name, ShouldEqual, "hds")
		})

		Convey("Media extensions route to the progressive http plugin", func() {
			match, err := reg.Resolve("https://cdn.tld/video.mp4")
			So(err, ShouldBeNil)
			So(match.Entry.Name, ShouldEqual, "http")
		})

		Convey("RTMP schemes route to the rtmp plugin", func() {
			for _, url := range []string{"rtmp://host/app", "rtmpe://host/app", "rtmps://host/app"} {
				match, err := reg.Resolve(url)
				So(err, ShouldBeNil)
				So(match.Entry.Name, ShouldEqual, "rtmp")
			}
		})

		Convey("An unclaimed URL resolves to nothing", func() {
			_, err := reg.Resolve("https://example.tld/article.html")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestTargetURL(t *testing.T) {
	Convey("Given forced URLs", t, func() {
		Convey("The forcing prefix is stripped", func() {
			So(targetURL("hls://https://cdn.tld/x.m3u8", "hls"), ShouldEqual, "https://cdn.tld/x.m3u8")
		})

		Convey("Bare hosts default to https", func() {
			So(targetURL("hls://cdn.tld/x.m3u8", "hls"), ShouldEqual, "https://cdn.tld/x.m3u8")
		})

		Convey("Unforced URLs pass through", func() {
			So(targetURL("https://cdn.tld/x.m3u8", "hls"), ShouldEqual, "https://cdn.tld/x.m3u8")
		})
	})
}
