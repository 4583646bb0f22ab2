// Package segment implements the transport pipeline shared by segmented
// stream formats: a Worker polling a manifest source, a Writer pool fetching
// and decrypting segments concurrently, and a bounded ring Buffer exposing the
// ordered byte stream to the reader.
package segment

import "time"

// Segment is one addressable media chunk of a segmented presentation.
type Segment struct {
	// Num is the absolute segment number; strictly monotonic within one
	// worker run.
	Num int

	// Init marks an initialization segment (HLS EXT-X-MAP, DASH init).
	Init bool

	// Discontinuity marks a decode discontinuity before this segment.
	Discontinuity bool

	URI      string
	Duration time.Duration

	// Title is the optional segment title (HLS EXTINF); content filters
	// key off it.
	Title string

	// ByteRange is set when only a slice of the resource is wanted.
	ByteRange *ByteRange

	// Key carries AES-128 parameters when the payload is encrypted.
	Key *Key

	// Date is the wall-clock time of the segment when the playlist
	// carries program-date-time information.
	Date time.Time

	// AvailableAt delays the fetch until the segment exists on the
	// server (dynamic presentations).
	AvailableAt time.Time
}

// ByteRange addresses a slice of a resource. Offset below zero means the
// range starts where the previous one for the same URI ended.
type ByteRange struct {
	Offset int64
	Length int64
}

// Key holds the encryption parameters of a segment.
type Key struct {
	// Method is the declared cipher, e.g. "AES-128" or "NONE".
	Method string

	// URI locates the key bytes.
	URI string

	// IV is the explicit initialization vector; when empty the segment
	// number is used as a big-endian 128-bit IV.
	IV []byte
}

// Encrypted reports whether the key actually requires decryption.
func (k *Key) Encrypted() bool {
	return k != nil && k.Method != "" && k.Method != "NONE"
}
