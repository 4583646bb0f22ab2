package hds

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/strelay-cli/strelay/network"
)

func box(typ string, payload []byte) []byte {
	out := binary.BigEndian.AppendUint32(nil, uint32(len(payload)+8))
	out = append(out, typ...)
	return append(out, payload...)
}

// buildBootstrap assembles a minimal abst box: one segment run of 100
// fragments per segment and one fragment run of 4s fragments starting at 1.
func buildBootstrap(live bool, fragments int) []byte {
	var asrt bytes.Buffer
	asrt.Write([]byte{0, 0, 0, 0}) // version, flags
	asrt.WriteByte(0)              // quality entries
	binary.Write(&asrt, binary.BigEndian, uint32(1))
	binary.Write(&asrt, binary.BigEndian, uint32(1))   // first segment
	binary.Write(&asrt, binary.BigEndian, uint32(100)) // fragments per segment

	var afrt bytes.Buffer
	afrt.Write([]byte{0, 0, 0, 0})
	binary.Write(&afrt, binary.BigEndian, uint32(1000)) // timescale
	afrt.WriteByte(0)
	binary.Write(&afrt, binary.BigEndian, uint32(1))
	binary.Write(&afrt, binary.BigEndian, uint32(1))    // first fragment
	binary.Write(&afrt, binary.BigEndian, uint64(0))    // timestamp
	binary.Write(&afrt, binary.BigEndian, uint32(4000)) // duration

	var body bytes.Buffer
	body.Write([]byte{0, 0, 0, 0})                   // version, flags
	binary.Write(&body, binary.BigEndian, uint32(1)) // bootstrap info version
	if live {
		body.WriteByte(0x20)
	} else {
		body.WriteByte(0)
	}
	binary.Write(&body, binary.BigEndian, uint32(1000))           // timescale
	binary.Write(&body, binary.BigEndian, uint64(fragments)*4000) // current media time
	binary.Write(&body, binary.BigEndian, uint64(0))              // smpte offset
	body.Write([]byte{0, 0, 0, 0, 0})                             // movie id, servers, qualities, drm, metadata
	body.WriteByte(1)
	body.Write(box("asrt", asrt.Bytes()))
	body.WriteByte(1)
	body.Write(box("afrt", afrt.Bytes()))

	return box("abst", body.Bytes())
}

func fragment(payload string) []byte {
	// A skippable box ahead of mdat, as real fragments carry.
	out := box("afra", []byte{0, 0, 0, 0})
	return append(out, box("mdat", []byte(payload))...)
}

func newTestClient(t *testing.T) *network.Client {
	t.Helper()
	client, err := network.New(network.Config{})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestParseBootstrap(t *testing.T) {
	Convey("A recorded bootstrap enumerates its fragments", t, func() {
		b, err := ParseBootstrap(buildBootstrap(false, 3))
		So(err, ShouldBeNil)
		So(b.Live, ShouldBeFalse)

		frags := b.Fragments()
		So(frags, ShouldHaveLength, 3)
		So(frags[0].Num, ShouldEqual, 1)
		So(frags[2].Num, ShouldEqual, 3)
		So(frags[0].Duration, ShouldEqual, 4*time.Second)

		Convey("and fragments map onto their segment", func() {
			So(b.Segment(1), ShouldEqual, 1)
			So(b.Segment(100), ShouldEqual, 1)
			So(b.Segment(101), ShouldEqual, 2)
		})
	})

	Convey("The live flag is carried through", t, func() {
		b, err := ParseBootstrap(buildBootstrap(true, 5))
		So(err, ShouldBeNil)
		So(b.Live, ShouldBeTrue)
	})

	Convey("Garbage is rejected", t, func() {
		_, err := ParseBootstrap([]byte("not a bootstrap"))
		So(err, ShouldNotBeNil)
	})
}

func TestStream(t *testing.T) {
	Convey("A recorded F4M presentation plays every fragment as FLV", t, func() {
		mux := http.NewServeMux()
		srv := httptest.NewServer(mux)
		defer srv.Close()

		bootstrap := base64.StdEncoding.EncodeToString(buildBootstrap(false, 2))
		mux.HandleFunc("/manifest.f4m", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, `<?xml version="1.0"?>
<manifest xmlns="http://ns.adobe.com/f4m/1.0">
  <id>show</id>
  <streamType>recorded</streamType>
  <bootstrapInfo profile="named" id="boot1">%s</bootstrapInfo>
  <media url="show-1500" bitrate="1500" width="1280" height="720" bootstrapInfoId="boot1"/>
</manifest>`, bootstrap)
		})
		for i := 1; i <= 2; i++ {
			i := i
			mux.HandleFunc(fmt.Sprintf("/show-1500Seg1-Frag%d", i), func(w http.ResponseWriter, _ *http.Request) {
				w.Write(fragment(fmt.Sprintf("frag%d|", i)))
			})
		}

		client := newTestClient(t)

		streams, err := NewStreams(context.Background(), client, srv.URL+"/manifest.f4m", Options{})
		So(err, ShouldBeNil)
		So(streams.Names(), ShouldResemble, []string{"720p"})

		s, _ := streams.Get("720p")
		So(s.Shortname(), ShouldEqual, "hds")

		r, err := s.Open(context.Background())
		So(err, ShouldBeNil)
		defer r.Close()

		out, err := io.ReadAll(r)
		So(err, ShouldBeNil)
		So(out[:len(flvHeader)], ShouldResemble, flvHeader)
		So(string(out[len(flvHeader):]), ShouldEqual, "frag1|frag2|")
	})

	Convey("A fragment without an mdat box fails the fetch", t, func() {
		_, err := mdatPayload(bytes.NewReader(box("afra", []byte{1, 2, 3})))
		So(err, ShouldNotBeNil)
	})
}
