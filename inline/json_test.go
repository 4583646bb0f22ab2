package inline

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/strelay-cli/strelay/stream"
)

type fakeStream struct {
	kind string
	url  string
}

func (f *fakeStream) Shortname() string { return f.kind }

func (f *fakeStream) Open(context.Context) (io.ReadCloser, error) {
	return nil, io.ErrUnexpectedEOF
}

func (f *fakeStream) ToURL() (string, error) { return f.url, nil }

func TestDocumentMarshal(t *testing.T) {
	Convey("Given a decorated stream map", t, func() {
		low := &fakeStream{kind: "hls", url: "https://cdn.tld/480p.m3u8"}
		high := &fakeStream{kind: "hls", url: "https://cdn.tld/720p.m3u8"}

		m := stream.NewMap()
		m.Set("480p", low)
		m.Set("720p", high)
		m.Set("worst", low)
		m.Set("best", high)

		doc := &Document{Plugin: "hls", Streams: m}
		raw, err := json.Marshal(doc)
		So(err, ShouldBeNil)

		Convey("Aliases render as string references", func() {
			So(string(raw), ShouldEqual, `{"plugin":"hls","streams":{`+
				`"480p":{"type":"hls","url":"https://cdn.tld/480p.m3u8"},`+
				`"720p":{"type":"hls","url":"https://cdn.tld/720p.m3u8"},`+
				`"worst":"480p","best":"720p"}}`)
		})

		Convey("The document round-trips as valid JSON", func() {
			var decoded map[string]any
			So(json.Unmarshal(raw, &decoded), ShouldBeNil)
			So(decoded["plugin"], ShouldEqual, "hls")
		})
	})

	Convey("Given a stream without a direct URL", t, func() {
		m := stream.NewMap()
		m.Set("live", &muxedOnly{})

		raw, err := json.Marshal(&Document{Plugin: "dash", Streams: m})
		So(err, ShouldBeNil)
		So(string(raw), ShouldEqual, `{"plugin":"dash","streams":{"live":{"type":"muxed-stream"}}}`)
	})
}

type muxedOnly struct{}

func (*muxedOnly) Shortname() string { return "muxed-stream" }

func (*muxedOnly) Open(context.Context) (io.ReadCloser, error) {
	return nil, io.ErrUnexpectedEOF
}
