package plugin

import "fmt"

// NoPluginError reports that no registered pattern matched the URL.
type NoPluginError struct {
	URL string
}

func (e *NoPluginError) Error() string {
	return fmt.Sprintf("no plugin can handle URL: %s", e.URL)
}

// NoStreamsError reports that a plugin ran but produced zero streams.
type NoStreamsError struct {
	URL string
}

func (e *NoStreamsError) Error() string {
	return fmt.Sprintf("no playable streams found on this URL: %s", e.URL)
}

// Error is a plugin-level extraction failure: the plugin ran but could not
// resolve the page into streams.
type Error struct {
	Plugin string
	Err    error
}

func (e *Error) Error() string {
	if e.Plugin == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Plugin, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// DeferralDepthError reports that plugin-to-plugin deferral recursed past the
// configured bound, which usually means two plugins hand the same URL back
// and forth.
type DeferralDepthError struct {
	URL   string
	Depth int
}

func (e *DeferralDepthError) Error() string {
	return fmt.Sprintf("plugin deferral exceeded depth %d at %s", e.Depth, e.URL)
}
