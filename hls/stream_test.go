package hls

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matryer/is"

	"github.com/strelay-cli/strelay/network"
)

func testServer(t *testing.T) (*httptest.Server, *network.Client) {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/live.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1000000,RESOLUTION=842x480
480p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=3000000,RESOLUTION=1280x720
720p.m3u8
`)
	})
	mux.HandleFunc("/dup.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1000000,RESOLUTION=1280x720
480p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=3000000,RESOLUTION=1280x720
720p.m3u8
`)
	})
	media := `#EXTM3U
#EXT-X-TARGETDURATION:4
#EXTINF:4.0,
%s/seg0.ts
#EXTINF:4.0,
%s/seg1.ts
#EXT-X-ENDLIST
`
	mux.HandleFunc("/480p.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, media, "480", "480")
	})
	mux.HandleFunc("/720p.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, media, "720", "720")
	})
	for _, q := range []string{"480", "720"} {
		q := q
		for i := 0; i < 2; i++ {
			i := i
			mux.HandleFunc(fmt.Sprintf("/%s/seg%d.ts", q, i), func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprintf(w, "%s-%d|", q, i)
			})
		}
	}

	client, err := network.New(network.Config{})
	if err != nil {
		t.Fatal(err)
	}
	return srv, client
}

func TestNewStreamsFromMaster(t *testing.T) {
	is := is.New(t)
	srv, client := testServer(t)

	streams, err := NewStreams(context.Background(), client, srv.URL+"/live.m3u8", Options{})
	is.NoErr(err)
	is.Equal(streams.Names(), []string{"480p", "720p"})

	s, ok := streams.Get("720p")
	is.True(ok)
	is.Equal(s.Shortname(), "hls")
}

func TestNewStreamsKeepsDuplicateVariants(t *testing.T) {
	is := is.New(t)
	srv, client := testServer(t)

	streams, err := NewStreams(context.Background(), client, srv.URL+"/dup.m3u8", Options{})
	is.NoErr(err)
	is.Equal(streams.Names(), []string{"720p", "720p_alt"})
}

func TestNewStreamsFromMediaPlaylist(t *testing.T) {
	is := is.New(t)
	srv, client := testServer(t)

	streams, err := NewStreams(context.Background(), client, srv.URL+"/480p.m3u8", Options{})
	is.NoErr(err)
	is.Equal(streams.Names(), []string{"live"})
}

func TestStreamDeliversSegmentsInOrder(t *testing.T) {
	is := is.New(t)
	srv, client := testServer(t)

	s := NewStream(client, srv.URL+"/720p.m3u8", Options{SegmentThreads: 2})
	r, err := s.Open(context.Background())
	is.NoErr(err)
	defer r.Close()

	out, err := io.ReadAll(r)
	is.NoErr(err)
	is.Equal(string(out), "720-0|720-1|")
}

func TestStreamToURL(t *testing.T) {
	is := is.New(t)

	s := NewStream(nil, "https://example.com/x.m3u8", Options{})
	u, err := s.ToURL()
	is.NoErr(err)
	is.Equal(u, "https://example.com/x.m3u8")
}
