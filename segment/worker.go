package segment

import (
	"context"
	"time"

	"github.com/strelay-cli/strelay/log"
)

// Playlist is one snapshot of a media manifest, normalized across formats.
type Playlist struct {
	// Segments carries the currently advertised segments with absolute
	// numbering.
	Segments []Segment

	// Complete marks a VOD presentation; the worker emits once and stops.
	Complete bool

	// TargetDuration hints the reload cadence for live presentations.
	TargetDuration time.Duration
}

// Source produces playlist snapshots for one media rendition.
type Source interface {
	Reload(ctx context.Context) (*Playlist, error)
}

// WorkerConfig tunes the manifest polling loop.
type WorkerConfig struct {
	// LiveEdge is how many segments behind the newest one live playback
	// starts.
	LiveEdge int

	// ReloadAttempts is how many stale polls are tolerated before the
	// stream is treated as ended.
	ReloadAttempts int

	// StartOffset skips this much media time from the start (VOD only).
	StartOffset time.Duration

	// MaxDuration truncates playback after this much media time.
	MaxDuration time.Duration

	// MinReload bounds the reload cadence from below.
	MinReload time.Duration
}

func (c *WorkerConfig) withDefaults() WorkerConfig {
	out := *c
	if out.LiveEdge <= 0 {
		out.LiveEdge = 3
	}
	if out.ReloadAttempts <= 0 {
		out.ReloadAttempts = 3
	}
	if out.MinReload <= 0 {
		out.MinReload = time.Second
	}
	return out
}

// Worker polls a Source and pushes new segments onto a bounded queue. It is
// the producer half of the pipeline; the Writer consumes the queue.
type Worker struct {
	src Source
	cfg WorkerConfig
	out chan<- Segment

	nextNum int
	elapsed time.Duration
}

func newWorker(src Source, cfg WorkerConfig, out chan<- Segment) *Worker {
	return &Worker{src: src, cfg: cfg.withDefaults(), out: out}
}

// run polls until the presentation completes, the playlist stalls, or ctx is
// cancelled. It closes the queue on return.
func (w *Worker) run(ctx context.Context) {
	defer close(w.out)

	playlist, err := w.src.Reload(ctx)
	if err != nil {
		log.Errorf("initial playlist load failed: %v", err)
		return
	}

	segments := w.clip(playlist)
	if !w.emit(ctx, segments) {
		return
	}
	if playlist.Complete {
		return
	}

	stale := 0
	for {
		if !w.sleep(ctx, w.cadence(playlist)) {
			return
		}

		playlist, err = w.src.Reload(ctx)
		if err != nil {
			log.Warnf("playlist reload failed: %v", err)
			stale++
			if stale >= w.cfg.ReloadAttempts {
				log.Warnf("playlist stalled after %d reloads, ending stream", stale)
				return
			}
			continue
		}

		fresh := w.diff(playlist.Segments)
		if len(fresh) == 0 {
			stale++
			if stale >= w.cfg.ReloadAttempts {
				log.Warnf("no new segments after %d reloads, ending stream", stale)
				return
			}
			continue
		}
		stale = 0

		if !w.emit(ctx, fresh) {
			return
		}
		if playlist.Complete {
			return
		}
	}
}

// clip applies the live-edge / start-offset window to the first snapshot.
func (w *Worker) clip(p *Playlist) []Segment {
	segments := p.Segments

	if !p.Complete {
		var inits, media []Segment
		for _, s := range segments {
			if s.Init {
				inits = append(inits, s)
			} else {
				media = append(media, s)
			}
		}
		if edge := len(media) - w.cfg.LiveEdge; edge > 0 {
			media = media[edge:]
		}
		return append(inits, media...)
	}

	if w.cfg.StartOffset > 0 {
		var skipped time.Duration
		for len(segments) > 0 && skipped+segments[0].Duration <= w.cfg.StartOffset {
			skipped += segments[0].Duration
			segments = segments[1:]
		}
	}
	return segments
}

// diff keeps only segments newer than the last emitted one. A playlist that
// went backwards is ignored and the previous state retained.
func (w *Worker) diff(segments []Segment) []Segment {
	fresh := segments[:0:0]
	for _, s := range segments {
		if s.Num >= w.nextNum {
			fresh = append(fresh, s)
		}
	}
	if len(fresh) == 0 && len(segments) > 0 && segments[len(segments)-1].Num < w.nextNum-1 {
		log.Warnf("playlist went backwards (had num %d, saw %d), keeping position",
			w.nextNum-1, segments[len(segments)-1].Num)
	}
	return fresh
}

// emit pushes segments onto the queue, waiting out availability windows and
// honoring the configured duration cap. It reports false when the stream
// should end.
func (w *Worker) emit(ctx context.Context, segments []Segment) bool {
	for _, s := range segments {
		if !s.AvailableAt.IsZero() {
			if wait := time.Until(s.AvailableAt); wait > 0 && !w.sleep(ctx, wait) {
				return false
			}
		}

		select {
		case w.out <- s:
		case <-ctx.Done():
			return false
		}

		// Init segments share the num of the media segment they precede
		// and must not advance the sequence counter.
		if !s.Init {
			w.nextNum = s.Num + 1
			w.elapsed += s.Duration
			if w.cfg.MaxDuration > 0 && w.elapsed >= w.cfg.MaxDuration {
				log.Debugf("duration cap %s reached", w.cfg.MaxDuration)
				return false
			}
		}
	}
	return true
}

func (w *Worker) cadence(p *Playlist) time.Duration {
	d := p.TargetDuration
	if d < w.cfg.MinReload {
		d = w.cfg.MinReload
	}
	return d
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
