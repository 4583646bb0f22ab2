// Package stream defines the uniform abstraction over playable streams: the
// Stream interface, the insertion-ordered stream map produced by plugins, the
// quality weighting rules, and the selector that resolves a user's quality
// choice into a concrete stream.
package stream

import (
	"context"
	"fmt"
	"io"
)

// Stream is an openable media source. Implementations carry their own
// parameters (playlist URI, RTMP params, HTTP URL and headers).
type Stream interface {
	// Shortname identifies the transport, e.g. "hls", "http", "rtmp".
	Shortname() string

	// Open starts the byte transport and returns a blocking reader. Closing
	// the reader is the single cancellation primitive for the stream.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// URLer is implemented by streams that can hand off a direct URL instead of
// opening a transport (used by --stream-url).
type URLer interface {
	ToURL() (string, error)
}

// Error is an irrecoverable byte-transport failure after a successful open.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("stream error: %s", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
