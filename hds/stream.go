package hds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/strelay-cli/strelay/log"
	"github.com/strelay-cli/strelay/network"
	"github.com/strelay-cli/strelay/segment"
	"github.com/strelay-cli/strelay/stream"
	"github.com/strelay-cli/strelay/util"
)

// Options tunes HDS playback.
type Options struct {
	LiveEdge        int
	SegmentThreads  int
	SegmentAttempts int
	ReloadAttempts  int
	BufferSize      int
}

// flvHeader precedes the first fragment payload so the relayed bytes form a
// playable FLV file.
var flvHeader = []byte{'F', 'L', 'V', 0x01, 0x05, 0, 0, 0, 9, 0, 0, 0, 0}

// Stream plays one rendition of an F4M presentation. It is the pipeline's
// manifest source and fragment fetcher: Reload re-polls the manifest and
// bootstrap, and Fetch unwraps a fragment's media payload.
type Stream struct {
	client      *network.Client
	manifestURL string

	// mediaRef selects the rendition by its manifest url attribute; empty
	// takes the first one.
	mediaRef string

	opts Options
}

func NewStream(client *network.Client, manifestURL, mediaRef string, opts Options) *Stream {
	return &Stream{
		client:      client,
		manifestURL: manifestURL,
		mediaRef:    mediaRef,
		opts:        opts,
	}
}

func (s *Stream) Shortname() string { return "hds" }

func (s *Stream) Open(ctx context.Context) (io.ReadCloser, error) {
	pool := s.opts.SegmentThreads
	if pool <= 0 {
		pool = 1
	}

	r := segment.Open(ctx, s, s, segment.Config{
		Worker: segment.WorkerConfig{
			LiveEdge:       s.opts.LiveEdge,
			ReloadAttempts: s.opts.ReloadAttempts,
		},
		Writer: segment.WriterConfig{
			Pool:     pool,
			Attempts: s.opts.SegmentAttempts,
		},
		BufferSize: s.opts.BufferSize,
	})
	return &headerReader{
		Reader: io.MultiReader(bytes.NewReader(flvHeader), r),
		closer: r,
	}, nil
}

type headerReader struct {
	io.Reader
	closer io.Closer
}

func (h *headerReader) Close() error { return h.closer.Close() }

// Reload re-fetches the manifest and the rendition's bootstrap, rendering
// the currently advertised fragment window. Fragment numbers are absolute,
// so snapshots diff cleanly across reloads.
func (s *Stream) Reload(ctx context.Context) (*segment.Playlist, error) {
	resp, err := s.client.Get(ctx, s.manifestURL, &network.Options{RaiseForStatus: true})
	if err != nil {
		return nil, err
	}
	man, err := ParseManifest(resp.Body)
	if err != nil {
		return nil, err
	}

	media, err := s.findMedia(man)
	if err != nil {
		return nil, err
	}
	bootstrap, err := s.loadBootstrap(ctx, man, media)
	if err != nil {
		return nil, err
	}

	prefix, err := fragmentPrefix(s.manifestURL, man.BaseURL, media.URL)
	if err != nil {
		return nil, err
	}
	return render(bootstrap, prefix), nil
}

func (s *Stream) findMedia(man *Manifest) (*Media, error) {
	if s.mediaRef == "" {
		return &man.Media[0], nil
	}
	for i := range man.Media {
		if man.Media[i].URL == s.mediaRef {
			return &man.Media[i], nil
		}
	}
	return nil, fmt.Errorf("media %q not found in manifest", s.mediaRef)
}

// loadBootstrap resolves the media's bootstrap, inline or by reference.
func (s *Stream) loadBootstrap(ctx context.Context, man *Manifest, media *Media) (*Bootstrap, error) {
	info, err := man.BootstrapInfo(media.BootstrapInfoID)
	if err != nil {
		return nil, err
	}

	var data []byte
	if info.URL != "" {
		uri, err := util.AbsoluteURL(s.manifestURL, info.URL)
		if err != nil {
			return nil, err
		}
		resp, err := s.client.Get(ctx, uri, &network.Options{RaiseForStatus: true})
		if err != nil {
			return nil, err
		}
		data = resp.Body
	} else if data, err = info.Data(); err != nil {
		return nil, err
	}
	return ParseBootstrap(data)
}

func render(b *Bootstrap, prefix string) *segment.Playlist {
	playlist := &segment.Playlist{Complete: !b.Live}

	for _, f := range b.Fragments() {
		playlist.Segments = append(playlist.Segments, segment.Segment{
			Num:      int(f.Num),
			URI:      fmt.Sprintf("%sSeg%d-Frag%d", prefix, b.Segment(f.Num), f.Num),
			Duration: f.Duration,
		})
	}
	if b.Live && len(playlist.Segments) > 0 {
		playlist.TargetDuration = playlist.Segments[len(playlist.Segments)-1].Duration
	}
	return playlist
}

// fragmentPrefix resolves the absolute URL prefix fragment names append to.
func fragmentPrefix(manifestURL, baseURL, mediaURL string) (string, error) {
	prefix := manifestURL
	for _, part := range []string{baseURL, mediaURL} {
		if part == "" {
			continue
		}
		abs, err := util.AbsoluteURL(prefix, part)
		if err != nil {
			return "", err
		}
		prefix = abs
	}
	return prefix, nil
}

// Fetch retrieves one fragment and unwraps its mdat payload: the FLV tags
// the relayed byte stream is made of.
func (s *Stream) Fetch(ctx context.Context, seg segment.Segment) (io.ReadCloser, error) {
	resp, err := s.client.Stream(ctx, http.MethodGet, seg.URI, &network.Options{RaiseForStatus: true})
	if err != nil {
		return nil, err
	}

	payload, err := mdatPayload(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("fragment %d: %w", seg.Num, err)
	}
	return &fragmentBody{Reader: payload, body: resp.Body}, nil
}

// FetchKey is unused: HDS encryption is DRM and out of scope.
func (s *Stream) FetchKey(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("hds key fetching not supported")
}

type fragmentBody struct {
	io.Reader
	body io.ReadCloser
}

func (f *fragmentBody) Close() error { return f.body.Close() }

// mdatPayload scans the fragment's box structure and positions the reader at
// the mdat payload.
func mdatPayload(r io.Reader) (io.Reader, error) {
	head := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, head); err != nil {
			return nil, fmt.Errorf("no mdat box found: %w", err)
		}

		size := int64(uint32(head[0])<<24 | uint32(head[1])<<16 | uint32(head[2])<<8 | uint32(head[3]))
		typ := string(head[4:8])
		payload := size - 8

		if size == 1 {
			ext := make([]byte, 8)
			if _, err := io.ReadFull(r, ext); err != nil {
				return nil, err
			}
			payload = 0
			for _, b := range ext {
				payload = payload<<8 | int64(b)
			}
			payload -= 16
		}

		if typ == "mdat" {
			if size == 0 {
				return r, nil
			}
			return io.LimitReader(r, payload), nil
		}
		if size == 0 {
			return nil, fmt.Errorf("no mdat box found")
		}
		if _, err := io.CopyN(io.Discard, r, payload); err != nil {
			return nil, fmt.Errorf("skipping %s box: %w", typ, err)
		}
	}
}

// NewStreams fetches an F4M manifest and resolves it into a stream map: one
// entry per media rendition.
func NewStreams(ctx context.Context, client *network.Client, url string, opts Options) (*stream.Map, error) {
	resp, err := client.Get(ctx, url, &network.Options{RaiseForStatus: true})
	if err != nil {
		return nil, err
	}
	man, err := ParseManifest(resp.Body)
	if err != nil {
		return nil, err
	}

	streams := stream.NewMap()
	for _, media := range man.Media {
		name := media.Name()
		if _, taken := streams.Get(name); taken && media.Bitrate > 0 {
			name = fmt.Sprintf("%dk", media.Bitrate)
		}
		streams.Set(name, NewStream(client, url, media.URL, opts))
	}
	if streams.Len() == 0 {
		log.Debugf("f4m manifest at %s has no playable media", url)
	}
	return streams, nil
}
