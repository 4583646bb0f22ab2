// Package hls parses M3U8 playlists and exposes HLS presentations as
// segmented streams.
package hls

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/strelay-cli/strelay/segment"
	"github.com/strelay-cli/strelay/util"
)

var ErrExtM3UAbsent = errors.New("#EXTM3U absent")

var reKeyValue = regexp.MustCompile(`([a-zA-Z0-9_-]+)=("[^"]+"|[^",]+)`)

// Master is a variant playlist: one entry per quality rendition.
type Master struct {
	Variants []Variant
}

// Variant is one EXT-X-STREAM-INF entry of a master playlist.
type Variant struct {
	URI       string
	Bandwidth int
	Width     int
	Height    int
	FrameRate float64
	Codecs    string
	NameAttr  string
}

// Name derives the quality label: the NAME attribute when present, otherwise
// "<height>p" with the integer frame rate appended when it exceeds 30
// ("720p60"), otherwise the bandwidth in kbps.
func (v Variant) Name() string {
	if v.NameAttr != "" {
		return v.NameAttr
	}
	if v.Height > 0 {
		name := fmt.Sprintf("%dp", v.Height)
		if v.FrameRate > 30 {
			name += strconv.Itoa(int(math.Round(v.FrameRate)))
		}
		return name
	}
	if v.Bandwidth > 0 {
		return fmt.Sprintf("%dk", v.Bandwidth/1000)
	}
	return "live"
}

// Media is a media playlist snapshot normalized into pipeline segments.
type Media struct {
	TargetDuration time.Duration
	MediaSequence  int
	EndList        bool
	Segments       []segment.Segment
}

// IsMaster reports whether raw is a master playlist rather than a media one.
func IsMaster(raw []byte) bool {
	return bytes.Contains(raw, []byte("#EXT-X-STREAM-INF"))
}

// ParseMaster decodes a master playlist line by line. Variant URIs are
// resolved against base. Unknown tags are ignored.
func ParseMaster(r io.Reader, base string) (*Master, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	master := &Master{}
	var sawM3U bool
	var pending *Variant

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		switch {
		case line == "#EXTM3U":
			sawM3U = true

		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			v := Variant{}
			for k, val := range decodeAttributes(line[len("#EXT-X-STREAM-INF:"):]) {
				switch k {
				case "BANDWIDTH":
					v.Bandwidth, _ = strconv.Atoi(val)
				case "RESOLUTION":
					if w, h, ok := strings.Cut(val, "x"); ok {
						v.Width, _ = strconv.Atoi(w)
						v.Height, _ = strconv.Atoi(h)
					}
				case "FRAME-RATE":
					v.FrameRate, _ = strconv.ParseFloat(val, 64)
				case "CODECS":
					v.Codecs = val
				case "NAME":
					v.NameAttr = val
				}
			}
			pending = &v

		case strings.HasPrefix(line, "#"):
			// unknown tag

		default:
			if pending == nil {
				continue
			}
			uri, err := util.AbsoluteURL(base, line)
			if err != nil {
				return nil, fmt.Errorf("variant uri: %w", err)
			}
			pending.URI = uri
			master.Variants = append(master.Variants, *pending)
			pending = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !sawM3U {
		return nil, ErrExtM3UAbsent
	}
	return master, nil
}

// mediaState carries the sticky decoding state of a media playlist: the
// current key and init map apply to every following segment until overridden.
type mediaState struct {
	duration      time.Duration
	title         string
	discontinuity bool
	date          time.Time
	byteRange     *segment.ByteRange
	key           *segment.Key
	initURI       string
	initRange     *segment.ByteRange
	initEmitted   bool
	rangeEnd      map[string]int64
}

// ParseMedia decodes a media playlist into an ordered segment list. Segment
// numbering starts at EXT-X-MEDIA-SEQUENCE; an EXT-X-MAP init segment shares
// the number of the media segment it precedes.
func ParseMedia(r io.Reader, base string) (*Media, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	media := &Media{}
	state := &mediaState{rangeEnd: make(map[string]int64)}
	var sawM3U bool
	num := 0

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		switch {
		case line == "#EXTM3U":
			sawM3U = true

		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			if secs, err := strconv.ParseFloat(line[len("#EXT-X-TARGETDURATION:"):], 64); err == nil {
				media.TargetDuration = time.Duration(secs * float64(time.Second))
			}

		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			if n, err := strconv.Atoi(line[len("#EXT-X-MEDIA-SEQUENCE:"):]); err == nil {
				media.MediaSequence = n
				num = n
			}

		case strings.HasPrefix(line, "#EXTINF:"):
			value := line[len("#EXTINF:"):]
			durStr, title, _ := strings.Cut(value, ",")
			if secs, err := strconv.ParseFloat(durStr, 64); err == nil {
				state.duration = time.Duration(secs * float64(time.Second))
			}
			state.title = strings.TrimSpace(title)

		case strings.HasPrefix(line, "#EXT-X-BYTERANGE:"):
			state.byteRange = parseByteRange(line[len("#EXT-X-BYTERANGE:"):])

		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			key, err := parseKey(decodeAttributes(line[len("#EXT-X-KEY:"):]), base)
			if err != nil {
				return nil, err
			}
			state.key = key

		case strings.HasPrefix(line, "#EXT-X-MAP:"):
			attrs := decodeAttributes(line[len("#EXT-X-MAP:"):])
			uri, err := util.AbsoluteURL(base, attrs["URI"])
			if err != nil {
				return nil, fmt.Errorf("map uri: %w", err)
			}
			state.initURI = uri
			if br, ok := attrs["BYTERANGE"]; ok {
				state.initRange = parseByteRange(br)
				if state.initRange.Offset < 0 {
					state.initRange.Offset = 0
				}
			} else {
				state.initRange = nil
			}
			state.initEmitted = false

		case line == "#EXT-X-DISCONTINUITY":
			state.discontinuity = true

		case strings.HasPrefix(line, "#EXT-X-PROGRAM-DATE-TIME:"):
			if t, err := time.Parse(time.RFC3339Nano, line[len("#EXT-X-PROGRAM-DATE-TIME:"):]); err == nil {
				state.date = t
			}

		case line == "#EXT-X-ENDLIST":
			media.EndList = true

		case strings.HasPrefix(line, "#"):
			// unknown tag

		default:
			uri, err := util.AbsoluteURL(base, line)
			if err != nil {
				return nil, fmt.Errorf("segment uri: %w", err)
			}

			if state.initURI != "" && !state.initEmitted {
				media.Segments = append(media.Segments, segment.Segment{
					Num:       num,
					Init:      true,
					URI:       state.initURI,
					ByteRange: state.initRange,
					Key:       state.key,
				})
				state.initEmitted = true
			}

			media.Segments = append(media.Segments, segment.Segment{
				Num:           num,
				Discontinuity: state.discontinuity,
				URI:           uri,
				Duration:      state.duration,
				Title:         state.title,
				ByteRange:     state.resolveRange(uri),
				Key:           state.key,
				Date:          state.date,
			})
			num++

			state.duration = 0
			state.title = ""
			state.discontinuity = false
			state.date = time.Time{}
			state.byteRange = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !sawM3U {
		return nil, ErrExtM3UAbsent
	}
	return media, nil
}

// resolveRange turns a possibly offset-less byte range into an absolute one
// by continuing where the previous range for the same URI ended.
func (s *mediaState) resolveRange(uri string) *segment.ByteRange {
	br := s.byteRange
	if br == nil {
		return nil
	}
	if br.Offset < 0 {
		br.Offset = s.rangeEnd[uri]
	}
	s.rangeEnd[uri] = br.Offset + br.Length
	return br
}

func parseByteRange(value string) *segment.ByteRange {
	length, offset, hasOffset := strings.Cut(value, "@")
	br := &segment.ByteRange{Offset: -1}
	br.Length, _ = strconv.ParseInt(length, 10, 64)
	if hasOffset {
		br.Offset, _ = strconv.ParseInt(offset, 10, 64)
	}
	return br
}

func parseKey(attrs map[string]string, base string) (*segment.Key, error) {
	method := attrs["METHOD"]
	if method == "NONE" {
		return nil, nil
	}

	key := &segment.Key{Method: method}
	if uri := attrs["URI"]; uri != "" {
		abs, err := util.AbsoluteURL(base, uri)
		if err != nil {
			return nil, fmt.Errorf("key uri: %w", err)
		}
		key.URI = abs
	}
	if iv := attrs["IV"]; iv != "" {
		raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(iv, "0x"), "0X"))
		if err != nil {
			return nil, fmt.Errorf("key iv: %w", err)
		}
		key.IV = raw
	}
	return key, nil
}

// decodeAttributes splits a tag's attribute list into a map, unquoting
// quoted values.
func decodeAttributes(value string) map[string]string {
	out := make(map[string]string)
	for _, kv := range reKeyValue.FindAllStringSubmatch(value, -1) {
		out[kv[1]] = strings.Trim(kv[2], `"`)
	}
	return out
}
