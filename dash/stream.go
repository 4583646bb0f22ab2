package dash

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/strelay-cli/strelay/log"
	"github.com/strelay-cli/strelay/network"
	"github.com/strelay-cli/strelay/segment"
	"github.com/strelay-cli/strelay/stream"
	"github.com/strelay-cli/strelay/util"
)

// Options tunes DASH playback.
type Options struct {
	LiveEdge        int
	SegmentThreads  int
	SegmentAttempts int
	ReloadAttempts  int
	StartOffset     time.Duration
	MaxDuration     time.Duration
	BufferSize      int

	// MuxCommand combines video and audio representations; empty keeps
	// the default muxer.
	MuxCommand string
}

// Stream plays one representation of a DASH presentation. It is the
// pipeline's manifest source and segment fetcher: Reload re-polls the MPD and
// renumbers timeline slots monotonically so the worker can diff snapshots.
type Stream struct {
	client      *network.Client
	manifestURL string
	repID       string
	opts        Options

	now func() time.Time

	numbering map[int64]int
	nextNum   int
	initNum   *int
}

func NewStream(client *network.Client, manifestURL, repID string, opts Options) *Stream {
	return &Stream{
		client:      client,
		manifestURL: manifestURL,
		repID:       repID,
		opts:        opts,
		now:         time.Now,
		numbering:   make(map[int64]int),
	}
}

func (s *Stream) Shortname() string { return "dash" }

func (s *Stream) ToURL() (string, error) { return s.manifestURL, nil }

func (s *Stream) Open(ctx context.Context) (io.ReadCloser, error) {
	pool := s.opts.SegmentThreads
	if pool <= 0 {
		pool = 2
	}

	return segment.Open(ctx, s, s, segment.Config{
		Worker: segment.WorkerConfig{
			LiveEdge:       s.opts.LiveEdge,
			ReloadAttempts: s.opts.ReloadAttempts,
			StartOffset:    s.opts.StartOffset,
			MaxDuration:    s.opts.MaxDuration,
		},
		Writer: segment.WriterConfig{
			Pool:     pool,
			Attempts: s.opts.SegmentAttempts,
		},
		BufferSize: s.opts.BufferSize,
	}), nil
}

// Reload fetches the MPD and renders this representation's current segment
// window.
func (s *Stream) Reload(ctx context.Context) (*segment.Playlist, error) {
	resp, err := s.client.Get(ctx, s.manifestURL, &network.Options{RaiseForStatus: true})
	if err != nil {
		return nil, err
	}
	mpd, err := ParseMPD(resp.Body)
	if err != nil {
		return nil, err
	}
	return s.render(mpd)
}

func (s *Stream) render(mpd *MPD) (*segment.Playlist, error) {
	if len(mpd.Periods) == 0 {
		return nil, fmt.Errorf("mpd has no periods")
	}
	period := &mpd.Periods[0]

	set, rep, err := findRepresentation(period, s.repID)
	if err != nil {
		return nil, err
	}
	tmpl := rep.Template(set)
	if tmpl == nil {
		return nil, fmt.Errorf("representation %s has no segment template", s.repID)
	}

	base, err := resolveBase(s.manifestURL, mpd.BaseURL, period.BaseURL, rep.BaseURL)
	if err != nil {
		return nil, err
	}

	playlist := &segment.Playlist{Complete: !mpd.Dynamic()}
	if mpd.Dynamic() {
		playlist.TargetDuration = mpd.UpdatePeriod()
	}

	if init := tmpl.Initialization; init != "" && s.initNum == nil {
		uri, err := util.AbsoluteURL(base, ExpandTemplate(init, rep.ID, rep.Bandwidth, 0, 0))
		if err != nil {
			return nil, err
		}
		n := s.nextNum
		s.initNum = &n
		playlist.Segments = append(playlist.Segments, segment.Segment{
			Num:  n,
			Init: true,
			URI:  uri,
		})
	}

	var segs []segment.Segment
	if tmpl.SegmentTimeline != nil {
		segs, err = s.timelineSegments(mpd, period, rep, tmpl, base)
	} else {
		segs, err = s.numberedSegments(mpd, period, rep, tmpl, base)
	}
	if err != nil {
		return nil, err
	}
	playlist.Segments = append(playlist.Segments, segs...)
	return playlist, nil
}

// timelineSegments renders an unrolled SegmentTimeline. Slots are identified
// by their presentation time; each new time gets the next monotonic number so
// snapshots diff cleanly across reloads.
func (s *Stream) timelineSegments(mpd *MPD, period *Period, rep *Representation, tmpl *SegmentTemplate, base string) ([]segment.Segment, error) {
	timescale := tmpl.timescale()
	epoch := mpd.AvailabilityStart().Add(period.StartOffset())

	var out []segment.Segment
	for _, slot := range tmpl.SegmentTimeline.Unroll() {
		num, ok := s.numbering[slot.Time]
		if !ok {
			num = s.nextNum
			s.numbering[slot.Time] = num
			s.nextNum++
		}

		uri, err := util.AbsoluteURL(base,
			ExpandTemplate(tmpl.Media, rep.ID, rep.Bandwidth, tmpl.startNumber()+num, slot.Time))
		if err != nil {
			return nil, err
		}

		seg := segment.Segment{
			Num:      num,
			URI:      uri,
			Duration: scaled(slot.Duration, timescale),
		}
		if mpd.Dynamic() && !epoch.IsZero() {
			seg.AvailableAt = epoch.Add(scaled(slot.Time-tmpl.timeOffset()+slot.Duration, timescale))
		}
		out = append(out, seg)
	}
	return out, nil
}

// numberedSegments renders a plain duration-based template. Static
// presentations enumerate the whole duration; dynamic ones render a window
// ending at the segment currently available on the wall clock.
func (s *Stream) numberedSegments(mpd *MPD, period *Period, rep *Representation, tmpl *SegmentTemplate, base string) ([]segment.Segment, error) {
	if tmpl.Duration == nil || *tmpl.Duration <= 0 {
		return nil, fmt.Errorf("segment template has neither timeline nor duration")
	}
	timescale := tmpl.timescale()
	segDur := scaled(*tmpl.Duration, timescale)

	first, count := 0, 0
	if mpd.Dynamic() {
		epoch := mpd.AvailabilityStart().Add(period.StartOffset())
		if epoch.IsZero() {
			return nil, fmt.Errorf("dynamic mpd without availabilityStartTime")
		}
		elapsed := s.now().Sub(epoch)
		current := int(elapsed / segDur)
		if current < 0 {
			current = 0
		}
		window := s.opts.LiveEdge
		if window <= 0 {
			window = 3
		}
		first = current - window + 1
		if first < 0 {
			first = 0
		}
		count = current - first + 1
	} else {
		total, err := ParseDuration(mpd.MediaPresentationDuration)
		if err != nil {
			return nil, fmt.Errorf("static mpd without usable duration: %w", err)
		}
		count = int((total + segDur - 1) / segDur)
	}

	epoch := mpd.AvailabilityStart().Add(period.StartOffset())
	var out []segment.Segment
	for i := first; i < first+count; i++ {
		number := tmpl.startNumber() + i
		uri, err := util.AbsoluteURL(base,
			ExpandTemplate(tmpl.Media, rep.ID, rep.Bandwidth, number, 0))
		if err != nil {
			return nil, err
		}

		seg := segment.Segment{Num: i, URI: uri, Duration: segDur}
		if mpd.Dynamic() {
			seg.AvailableAt = epoch.Add(time.Duration(i+1) * segDur).Add(-scaled(tmpl.timeOffset(), timescale))
		}
		out = append(out, seg)
	}
	if len(out) > 0 {
		s.nextNum = out[len(out)-1].Num + 1
	}
	return out, nil
}

// Fetch retrieves one segment.
func (s *Stream) Fetch(ctx context.Context, seg segment.Segment) (io.ReadCloser, error) {
	resp, err := s.client.Stream(ctx, http.MethodGet, seg.URI, &network.Options{RaiseForStatus: true})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// FetchKey is unused: MPD-level encryption is DRM and out of scope.
func (s *Stream) FetchKey(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("dash key fetching not supported")
}

func scaled(units, timescale int64) time.Duration {
	return time.Duration(float64(units) / float64(timescale) * float64(time.Second))
}

func findRepresentation(period *Period, id string) (*AdaptationSet, *Representation, error) {
	for i := range period.AdaptationSets {
		set := &period.AdaptationSets[i]
		for j := range set.Representations {
			if set.Representations[j].ID == id {
				return set, &set.Representations[j], nil
			}
		}
	}
	return nil, nil, fmt.Errorf("representation %s not found", id)
}

func resolveBase(parts ...string) (string, error) {
	base := parts[0]
	for _, part := range parts[1:] {
		if part == "" {
			continue
		}
		abs, err := util.AbsoluteURL(base, part)
		if err != nil {
			return "", err
		}
		base = abs
	}
	return base, nil
}

// NewStreams fetches an MPD and resolves it into a stream map: one entry per
// video representation, muxed with the best audio representation when the
// presentation carries separate audio, plus audio-only entries.
func NewStreams(ctx context.Context, client *network.Client, url string, opts Options) (*stream.Map, error) {
	resp, err := client.Get(ctx, url, &network.Options{RaiseForStatus: true})
	if err != nil {
		return nil, err
	}
	mpd, err := ParseMPD(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(mpd.Periods) == 0 {
		return nil, fmt.Errorf("mpd has no periods")
	}
	period := &mpd.Periods[0]

	type entry struct {
		name string
		rep  *Representation
		set  *AdaptationSet
	}
	var videos, audios []entry
	for i := range period.AdaptationSets {
		set := &period.AdaptationSets[i]
		for j := range set.Representations {
			rep := &set.Representations[j]
			e := entry{name: rep.Name(set), rep: rep, set: set}
			switch {
			case rep.video(set):
				videos = append(videos, e)
			case rep.audio(set):
				audios = append(audios, e)
			}
		}
	}
	sort.SliceStable(audios, func(i, j int) bool {
		return audios[i].rep.Bandwidth > audios[j].rep.Bandwidth
	})

	streams := stream.NewMap()
	for _, v := range videos {
		video := NewStream(client, url, v.rep.ID, opts)
		if len(audios) > 0 {
			audio := NewStream(client, url, audios[0].rep.ID, opts)
			streams.Set(v.name, stream.NewMuxed(opts.MuxCommand, video, audio))
			continue
		}
		streams.Set(v.name, video)
	}
	for _, a := range audios {
		streams.Set(a.name, NewStream(client, url, a.rep.ID, opts))
	}
	if streams.Len() == 0 {
		log.Debugf("mpd at %s has no playable representations", url)
	}
	return streams, nil
}
