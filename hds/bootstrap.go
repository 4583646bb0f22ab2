package hds

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Bootstrap is a decoded abst box: the run tables that enumerate the
// fragments of one rendition.
type Bootstrap struct {
	Live             bool
	TimeScale        uint32
	CurrentMediaTime uint64
	SegmentRuns      []SegmentRun
	FragmentRuns     []FragmentRun
}

// SegmentRun declares how many fragments each segment holds, starting at
// FirstSegment and lasting until the next run.
type SegmentRun struct {
	FirstSegment        uint32
	FragmentsPerSegment uint32
}

// FragmentRun starts a run of equally long fragments. Duration zero marks a
// discontinuity or end-of-table entry.
type FragmentRun struct {
	FirstFragment uint32
	Timestamp     uint64
	Duration      uint32
}

// Fragment is one enumerated fragment of the presentation.
type Fragment struct {
	Num      uint32
	Duration time.Duration
}

// ParseBootstrap decodes the binary abst box of an HDS bootstrap.
func ParseBootstrap(data []byte) (*Bootstrap, error) {
	r := bytes.NewReader(data)
	if _, err := expectBox(r, "abst"); err != nil {
		return nil, err
	}

	var head struct {
		VersionFlags uint32
		InfoVersion  uint32
		Profile      uint8
		TimeScale    uint32
		MediaTime    uint64
		SMPTEOffset  uint64
	}
	if err := binary.Read(r, binary.BigEndian, &head); err != nil {
		return nil, fmt.Errorf("reading abst header: %w", err)
	}

	out := &Bootstrap{
		// Profile byte packs profile(2), live(1), update(1).
		Live:             head.Profile&0x20 != 0,
		TimeScale:        head.TimeScale,
		CurrentMediaTime: head.MediaTime,
	}

	if _, err := cstring(r); err != nil { // movie identifier
		return nil, err
	}
	if err := skipStrings(r); err != nil { // server entries
		return nil, err
	}
	if err := skipStrings(r); err != nil { // quality entries
		return nil, err
	}
	for i := 0; i < 2; i++ { // drm data, metadata
		if _, err := cstring(r); err != nil {
			return nil, err
		}
	}

	tableCount, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("reading segment run table count: %w", err)
	}
	for i := 0; i < int(tableCount); i++ {
		runs, err := parseSegmentRunTable(r)
		if err != nil {
			return nil, err
		}
		out.SegmentRuns = append(out.SegmentRuns, runs...)
	}

	if tableCount, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("reading fragment run table count: %w", err)
	}
	for i := 0; i < int(tableCount); i++ {
		runs, err := parseFragmentRunTable(r)
		if err != nil {
			return nil, err
		}
		out.FragmentRuns = append(out.FragmentRuns, runs...)
	}

	if len(out.FragmentRuns) == 0 {
		return nil, fmt.Errorf("bootstrap has no fragment runs")
	}
	return out, nil
}

func parseSegmentRunTable(r *bytes.Reader) ([]SegmentRun, error) {
	if _, err := expectBox(r, "asrt"); err != nil {
		return nil, err
	}
	var versionFlags uint32
	if err := binary.Read(r, binary.BigEndian, &versionFlags); err != nil {
		return nil, err
	}
	if err := skipStrings(r); err != nil {
		return nil, err
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	runs := make([]SegmentRun, count)
	for i := range runs {
		if err := binary.Read(r, binary.BigEndian, &runs[i]); err != nil {
			return nil, fmt.Errorf("reading segment run entry: %w", err)
		}
	}
	return runs, nil
}

func parseFragmentRunTable(r *bytes.Reader) ([]FragmentRun, error) {
	if _, err := expectBox(r, "afrt"); err != nil {
		return nil, err
	}
	var head struct {
		VersionFlags uint32
		TimeScale    uint32
	}
	if err := binary.Read(r, binary.BigEndian, &head); err != nil {
		return nil, err
	}
	if err := skipStrings(r); err != nil {
		return nil, err
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	runs := make([]FragmentRun, count)
	for i := range runs {
		if err := binary.Read(r, binary.BigEndian, &runs[i]); err != nil {
			return nil, fmt.Errorf("reading fragment run entry: %w", err)
		}
		if runs[i].Duration == 0 {
			// Zero-duration entries carry a discontinuity indicator byte.
			if _, err := r.ReadByte(); err != nil {
				return nil, err
			}
		}
	}
	return runs, nil
}

// Fragments enumerates the advertised fragments in order.
func (b *Bootstrap) Fragments() []Fragment {
	var out []Fragment
	for i, run := range b.FragmentRuns {
		if run.Duration == 0 {
			continue
		}
		for n := run.FirstFragment; n < b.runEnd(i); n++ {
			out = append(out, Fragment{Num: n, Duration: b.scaled(run.Duration)})
		}
	}
	return out
}

// runEnd returns the first fragment number past run i. The last run extends
// to the bootstrap's current media time.
func (b *Bootstrap) runEnd(i int) uint32 {
	run := b.FragmentRuns[i]
	for _, next := range b.FragmentRuns[i+1:] {
		if next.FirstFragment > run.FirstFragment {
			return next.FirstFragment
		}
	}
	if b.CurrentMediaTime > run.Timestamp {
		return run.FirstFragment + uint32((b.CurrentMediaTime-run.Timestamp)/uint64(run.Duration))
	}
	return run.FirstFragment + 1
}

// Segment maps a fragment number onto the segment number fragment URLs carry.
func (b *Bootstrap) Segment(frag uint32) uint32 {
	var count uint32
	for i, run := range b.SegmentRuns {
		if run.FragmentsPerSegment == 0 {
			return run.FirstSegment
		}
		if i+1 < len(b.SegmentRuns) {
			span := (b.SegmentRuns[i+1].FirstSegment - run.FirstSegment) * run.FragmentsPerSegment
			if frag > count+span {
				count += span
				continue
			}
		}
		return run.FirstSegment + (frag-count-1)/run.FragmentsPerSegment
	}
	return 1
}

func (b *Bootstrap) scaled(units uint32) time.Duration {
	timescale := b.TimeScale
	if timescale == 0 {
		timescale = 1000
	}
	return time.Duration(float64(units) / float64(timescale) * float64(time.Second))
}

// expectBox consumes a box header and verifies its type, returning the
// payload size.
func expectBox(r *bytes.Reader, boxType string) (int64, error) {
	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return 0, fmt.Errorf("reading box header: %w", err)
	}
	typ := make([]byte, 4)
	if _, err := io.ReadFull(r, typ); err != nil {
		return 0, fmt.Errorf("reading box type: %w", err)
	}
	if string(typ) != boxType {
		return 0, fmt.Errorf("expected %s box, found %q", boxType, typ)
	}

	payload := int64(size) - 8
	if size == 1 {
		var ext uint64
		if err := binary.Read(r, binary.BigEndian, &ext); err != nil {
			return 0, err
		}
		payload = int64(ext) - 16
	}
	return payload, nil
}

// cstring reads a null-terminated string.
func cstring(r *bytes.Reader) (string, error) {
	var b []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			return "", fmt.Errorf("reading string: %w", err)
		}
		if c == 0 {
			return string(b), nil
		}
		b = append(b, c)
	}
}

// skipStrings consumes a counted list of null-terminated strings.
func skipStrings(r *bytes.Reader) error {
	count, err := r.ReadByte()
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		if _, err := cstring(r); err != nil {
			return err
		}
	}
	return nil
}
