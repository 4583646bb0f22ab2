package stream

import (
	"regexp"
	"strconv"
	"strings"
)

// Weight groups. Weights only compare within one group; best/worst pick from
// the dominant group of a stream map.
const (
	GroupPixels  = "pixels"
	GroupBitrate = "bitrate"
	GroupNamed   = "named"
	GroupNone    = ""
)

var (
	reResolution = regexp.MustCompile(`^(?P<height>\d+)p(?P<fps>\d+(?:\.\d+)?)?(?P<extra>\+?)$`)
	reBitrate    = regexp.MustCompile(`^(?:a|audio_?)(?P<rate>\d+)k$`)
	reAlt        = regexp.MustCompile(`_alt\d*$`)
)

// namedBuckets orders the conventional non-numeric quality labels.
var namedBuckets = map[string]float64{
	"mobile": 1,
	"low":    2,
	"medium": 3,
	"high":   4,
	"source": 5,
	"live":   5,
}

// Weight maps a quality label to a sortable weight and its comparison group.
// Pixel-height labels ("720p", "1080p60") weigh their height, with frame rate
// as a fractional bonus. Audio bitrates ("a128k", "audio_128k") weigh their
// rate. Named buckets order source > high > medium > low > mobile. Unknown
// labels weigh zero in no group.
// An "_alt" suffix, as produced for duplicate playlist variants, is ignored.
func Weight(name string) (weight float64, group string) {
	name = strings.ToLower(strings.TrimSpace(name))
	name = reAlt.ReplaceAllString(name, "")

	if m := reResolution.FindStringSubmatch(name); m != nil {
		height, _ := strconv.ParseFloat(m[1], 64)
		weight = height
		if m[2] != "" {
			fps, _ := strconv.ParseFloat(m[2], 64)
			weight += fps / 1000
		}
		if m[3] == "+" {
			weight += 0.5
		}
		return weight, GroupPixels
	}

	if m := reBitrate.FindStringSubmatch(name); m != nil {
		rate, _ := strconv.ParseFloat(m[1], 64)
		return rate, GroupBitrate
	}

	if w, ok := namedBuckets[name]; ok {
		return w, GroupNamed
	}

	return 0, GroupNone
}
