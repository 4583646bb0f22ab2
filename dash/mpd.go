// Package dash parses MPEG-DASH MPD manifests and exposes dynamic and static
// presentations as segmented streams.
package dash

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MPD is the manifest root.
type MPD struct {
	XMLName                   xml.Name `xml:"MPD"`
	Type                      string   `xml:"type,attr"`
	AvailabilityStartTime     string   `xml:"availabilityStartTime,attr"`
	MediaPresentationDuration string   `xml:"mediaPresentationDuration,attr"`
	MinimumUpdatePeriod       string   `xml:"minimumUpdatePeriod,attr"`
	BaseURL                   string   `xml:"BaseURL"`
	Periods                   []Period `xml:"Period"`
}

// Dynamic reports a live presentation that must be re-polled.
func (m *MPD) Dynamic() bool { return m.Type == "dynamic" }

// UpdatePeriod returns the manifest reload cadence, bounded below by one
// second.
func (m *MPD) UpdatePeriod() time.Duration {
	d, err := ParseDuration(m.MinimumUpdatePeriod)
	if err != nil || d < time.Second {
		return time.Second
	}
	return d
}

// AvailabilityStart returns the wall-clock epoch of the presentation.
func (m *MPD) AvailabilityStart() time.Time {
	t, err := time.Parse(time.RFC3339, m.AvailabilityStartTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

type Period struct {
	ID             string          `xml:"id,attr"`
	Start          string          `xml:"start,attr"`
	BaseURL        string          `xml:"BaseURL"`
	AdaptationSets []AdaptationSet `xml:"AdaptationSet"`
}

func (p *Period) StartOffset() time.Duration {
	d, err := ParseDuration(p.Start)
	if err != nil {
		return 0
	}
	return d
}

type AdaptationSet struct {
	MimeType        string           `xml:"mimeType,attr"`
	ContentType     string           `xml:"contentType,attr"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate"`
	Representations []Representation `xml:"Representation"`
}

type Representation struct {
	ID              string           `xml:"id,attr"`
	Bandwidth       int              `xml:"bandwidth,attr"`
	Width           int              `xml:"width,attr"`
	Height          int              `xml:"height,attr"`
	FrameRate       string           `xml:"frameRate,attr"`
	MimeType        string           `xml:"mimeType,attr"`
	Codecs          string           `xml:"codecs,attr"`
	BaseURL         string           `xml:"BaseURL"`
	SegmentTemplate *SegmentTemplate `xml:"SegmentTemplate"`
}

// Video reports whether the representation carries video, judged from its own
// mime type or the surrounding adaptation set's.
func (r *Representation) video(set *AdaptationSet) bool {
	for _, mt := range []string{r.MimeType, set.MimeType, set.ContentType} {
		if strings.HasPrefix(mt, "video") {
			return true
		}
	}
	return false
}

func (r *Representation) audio(set *AdaptationSet) bool {
	for _, mt := range []string{r.MimeType, set.MimeType, set.ContentType} {
		if strings.HasPrefix(mt, "audio") {
			return true
		}
	}
	return false
}

// Name derives the quality label: video by pixel height ("720p"), audio by
// bitrate ("a128k"), anything else by its id.
func (r *Representation) Name(set *AdaptationSet) string {
	switch {
	case r.video(set) && r.Height > 0:
		return fmt.Sprintf("%dp", r.Height)
	case r.audio(set) && r.Bandwidth > 0:
		return fmt.Sprintf("a%dk", r.Bandwidth/1000)
	default:
		return r.ID
	}
}

// Template resolves the effective segment template: the representation's own
// wins over the adaptation set's.
func (r *Representation) Template(set *AdaptationSet) *SegmentTemplate {
	if r.SegmentTemplate != nil {
		return r.SegmentTemplate
	}
	return set.SegmentTemplate
}

type SegmentTemplate struct {
	Media                  string           `xml:"media,attr"`
	Initialization         string           `xml:"initialization,attr"`
	StartNumber            *int             `xml:"startNumber,attr"`
	Timescale              *int64           `xml:"timescale,attr"`
	Duration               *int64           `xml:"duration,attr"`
	PresentationTimeOffset *int64           `xml:"presentationTimeOffset,attr"`
	SegmentTimeline        *SegmentTimeline `xml:"SegmentTimeline"`
}

func (t *SegmentTemplate) startNumber() int {
	if t.StartNumber != nil {
		return *t.StartNumber
	}
	return 1
}

func (t *SegmentTemplate) timescale() int64 {
	if t.Timescale != nil && *t.Timescale > 0 {
		return *t.Timescale
	}
	return 1
}

func (t *SegmentTemplate) timeOffset() int64 {
	if t.PresentationTimeOffset != nil {
		return *t.PresentationTimeOffset
	}
	return 0
}

type SegmentTimeline struct {
	S []TimelineEntry `xml:"S"`
}

type TimelineEntry struct {
	T *int64 `xml:"t,attr"`
	D int64  `xml:"d,attr"`
	R int    `xml:"r,attr"`
}

// TimeSlot is one concrete (t, d) pair unrolled from a segment timeline.
type TimeSlot struct {
	Time     int64
	Duration int64
}

// Unroll expands <S t d r> entries into concrete time slots: a missing t
// continues where the previous entry ended, r repeats the entry r more times.
func (tl *SegmentTimeline) Unroll() []TimeSlot {
	var slots []TimeSlot
	var next int64
	for _, s := range tl.S {
		t := next
		if s.T != nil {
			t = *s.T
		}
		for i := 0; i <= s.R; i++ {
			slots = append(slots, TimeSlot{Time: t, Duration: s.D})
			t += s.D
		}
		next = t
	}
	return slots
}

// ParseMPD decodes an MPD document.
func ParseMPD(raw []byte) (*MPD, error) {
	var mpd MPD
	if err := xml.Unmarshal(raw, &mpd); err != nil {
		return nil, fmt.Errorf("parsing mpd: %w", err)
	}
	return &mpd, nil
}

var reTemplateVar = regexp.MustCompile(`\$(RepresentationID|Bandwidth|Number|Time)(%0\d+d)?\$`)

// ExpandTemplate substitutes $RepresentationID$, $Bandwidth$, $Number$ and
// $Time$ (with optional %0Nd width formats) in a segment template string.
// $$ escapes a literal dollar sign.
func ExpandTemplate(tmpl, repID string, bandwidth int, number int, t int64) string {
	out := reTemplateVar.ReplaceAllStringFunc(tmpl, func(match string) string {
		parts := reTemplateVar.FindStringSubmatch(match)
		name, format := parts[1], parts[2]

		switch name {
		case "RepresentationID":
			return repID
		case "Bandwidth":
			return formatVar(int64(bandwidth), format)
		case "Number":
			return formatVar(int64(number), format)
		case "Time":
			return formatVar(t, format)
		}
		return match
	})
	return strings.ReplaceAll(out, "$$", "$")
}

func formatVar(v int64, format string) string {
	if format == "" {
		return strconv.FormatInt(v, 10)
	}
	return fmt.Sprintf(format, v)
}

var reDuration = regexp.MustCompile(
	`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// ParseDuration parses an ISO 8601 duration ("PT6.5S", "PT1H30M"). Years and
// months are rejected since they have no fixed length.
func ParseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("empty duration")
	}
	m := reDuration.FindStringSubmatch(value)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	if m[1] != "" || m[2] != "" {
		return 0, fmt.Errorf("calendar durations not supported: %q", value)
	}

	var d time.Duration
	if m[3] != "" {
		days, _ := strconv.Atoi(m[3])
		d += time.Duration(days) * 24 * time.Hour
	}
	if m[4] != "" {
		hours, _ := strconv.Atoi(m[4])
		d += time.Duration(hours) * time.Hour
	}
	if m[5] != "" {
		mins, _ := strconv.Atoi(m[5])
		d += time.Duration(mins) * time.Minute
	}
	if m[6] != "" {
		secs, _ := strconv.ParseFloat(m[6], 64)
		d += time.Duration(secs * float64(time.Second))
	}
	return d, nil
}
