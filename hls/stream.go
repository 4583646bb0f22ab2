package hls

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/strelay-cli/strelay/log"
	"github.com/strelay-cli/strelay/network"
	"github.com/strelay-cli/strelay/segment"
	"github.com/strelay-cli/strelay/stream"
)

// Options tunes HLS playback.
type Options struct {
	LiveEdge        int
	SegmentAttempts int
	SegmentThreads  int
	SegmentTimeout  time.Duration
	ReloadAttempts  int
	StartOffset     time.Duration
	MaxDuration     time.Duration
	FilterAds       bool
	BufferSize      int
}

// Stream is one HLS media rendition. It doubles as the pipeline's manifest
// source and segment fetcher.
type Stream struct {
	client *network.Client
	url    string
	opts   Options
}

func NewStream(client *network.Client, url string, opts Options) *Stream {
	return &Stream{client: client, url: url, opts: opts}
}

func (s *Stream) Shortname() string { return "hls" }

func (s *Stream) ToURL() (string, error) { return s.url, nil }

func (s *Stream) Open(ctx context.Context) (io.ReadCloser, error) {
	var filter segment.FilterFunc
	if s.opts.FilterAds {
		filter = IsAdSegment
	}

	return segment.Open(ctx, s, s, segment.Config{
		Worker: segment.WorkerConfig{
			LiveEdge:       s.opts.LiveEdge,
			ReloadAttempts: s.opts.ReloadAttempts,
			StartOffset:    s.opts.StartOffset,
			MaxDuration:    s.opts.MaxDuration,
		},
		Writer: segment.WriterConfig{
			Pool:     s.opts.SegmentThreads,
			Attempts: s.opts.SegmentAttempts,
			Filter:   filter,
		},
		BufferSize: s.opts.BufferSize,
	}), nil
}

// Reload fetches and parses the media playlist.
func (s *Stream) Reload(ctx context.Context) (*segment.Playlist, error) {
	resp, err := s.client.Get(ctx, s.url, &network.Options{RaiseForStatus: true})
	if err != nil {
		return nil, err
	}

	media, err := ParseMedia(bytes.NewReader(resp.Body), s.url)
	if err != nil {
		return nil, fmt.Errorf("parsing media playlist: %w", err)
	}
	log.Tracef("reloaded playlist: %d segments, endlist=%v", len(media.Segments), media.EndList)

	return &segment.Playlist{
		Segments:       media.Segments,
		Complete:       media.EndList,
		TargetDuration: media.TargetDuration,
	}, nil
}

// Fetch retrieves one segment's bytes, ranged when the playlist addressed a
// slice of the resource.
func (s *Stream) Fetch(ctx context.Context, seg segment.Segment) (io.ReadCloser, error) {
	headers := make(map[string]string, 1)
	if br := seg.ByteRange; br != nil {
		headers["Range"] = fmt.Sprintf("bytes=%d-%d", br.Offset, br.Offset+br.Length-1)
	}

	fetchCtx := ctx
	var cancel context.CancelFunc
	if s.opts.SegmentTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, s.opts.SegmentTimeout)
	}

	resp, err := s.client.Stream(fetchCtx, http.MethodGet, seg.URI, &network.Options{
		Headers:        headers,
		RaiseForStatus: true,
	})
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, err
	}

	if cancel == nil {
		return resp.Body, nil
	}
	return &deadlineBody{ReadCloser: resp.Body, cancel: cancel}, nil
}

// deadlineBody ties the per-segment timeout context to the body's lifetime.
type deadlineBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *deadlineBody) Close() error {
	b.cancel()
	return b.ReadCloser.Close()
}

// FetchKey retrieves AES key bytes.
func (s *Stream) FetchKey(ctx context.Context, uri string) ([]byte, error) {
	resp, err := s.client.Get(ctx, uri, &network.Options{RaiseForStatus: true})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// adMarkers are EXTINF title fragments used by SSAI-stitched playlists to
// label ad breaks.
var adMarkers = []string{"stitched-ad", "advertisement", "commercial"}

// IsAdSegment classifies a segment as stitched ad content by its title.
func IsAdSegment(s segment.Segment) bool {
	title := strings.ToLower(s.Title)
	if title == "ad" {
		return true
	}
	for _, marker := range adMarkers {
		if strings.Contains(title, marker) {
			return true
		}
	}
	return false
}

// NewStreams fetches and resolves an HLS URL into a stream map: one entry per
// master-playlist variant, or a single "live" entry for a bare media
// playlist.
func NewStreams(ctx context.Context, client *network.Client, url string, opts Options) (*stream.Map, error) {
	resp, err := client.Get(ctx, url, &network.Options{RaiseForStatus: true})
	if err != nil {
		return nil, err
	}

	streams := stream.NewMap()

	if !IsMaster(resp.Body) {
		if _, err := ParseMedia(bytes.NewReader(resp.Body), url); err != nil {
			return nil, fmt.Errorf("parsing media playlist: %w", err)
		}
		streams.Set("live", NewStream(client, url, opts))
		return streams, nil
	}

	master, err := ParseMaster(bytes.NewReader(resp.Body), url)
	if err != nil {
		return nil, fmt.Errorf("parsing master playlist: %w", err)
	}
	for _, v := range master.Variants {
		streams.Set(uniqueName(streams, v.Name()), NewStream(client, v.URI, opts))
	}
	return streams, nil
}

// uniqueName suffixes a variant name that is already taken, so no variant of
// the master playlist is silently lost.
func uniqueName(m *stream.Map, name string) string {
	if _, ok := m.Get(name); !ok {
		return name
	}
	base := name + "_alt"
	name = base
	for n := 2; ; n++ {
		if _, ok := m.Get(name); !ok {
			return name
		}
		name = fmt.Sprintf("%s%d", base, n)
	}
}
