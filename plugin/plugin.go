// Package plugin implements the URL dispatch core: a registry of pattern
// matchers that maps a URL to the extractor responsible for it, with
// priorities, deferral, and broken flags.
package plugin

import (
	"context"
	"regexp"

	"github.com/samber/mo"
	"github.com/strelay-cli/strelay/network"
	"github.com/strelay-cli/strelay/stream"
)

// Priority orders competing matchers. The highest-priority non-broken match
// wins; ties are broken by registration order.
type Priority int

const (
	NoPriority Priority = 0
	Low        Priority = 10
	Normal     Priority = 20
	High       Priority = 30
)

// Metadata is optional descriptive information a plugin may populate during
// resolution.
type Metadata struct {
	ID       mo.Option[string]
	Author   mo.Option[string]
	Category mo.Option[string]
	Title    mo.Option[string]
}

// Environment is the view of the session a plugin is given: the shared HTTP
// client, option access, credential lookup, and re-entry for deferral.
type Environment interface {
	// HTTP returns the session's shared HTTP client.
	HTTP() *network.Client

	// GetOption reads a session option by key.
	GetOption(key string) any

	// Credentials looks up stored credentials for a site, if any.
	Credentials(site string) (user, password string, err error)

	// Defer re-enters URL resolution for another URL. The session bounds the
	// recursion depth; exceeding it is an error.
	Defer(ctx context.Context, url string) (*stream.Map, error)
}

// Plugin is an extractor constructed for a single URL. Plugins are ephemeral:
// constructed per URL and discarded after Streams returns.
type Plugin interface {
	// Name identifies the plugin, e.g. "hls".
	Name() string

	// Streams resolves the bound URL into a map of named quality variants.
	Streams(ctx context.Context) (*stream.Map, error)
}

// MetadataProvider is implemented by plugins that populate stream metadata
// during resolution.
type MetadataProvider interface {
	Metadata() Metadata
}

// Constructor builds a plugin bound to a URL. groups holds the named capture
// groups of the winning pattern.
type Constructor func(env Environment, url string, groups map[string]string) Plugin

// Matcher pairs a compiled URL pattern with its static priority.
type Matcher struct {
	Pattern  *regexp.Regexp
	Priority Priority
}

// Entry is one registered plugin: its matchers, constructor, and flags.
type Entry struct {
	Name     string
	Matchers []Matcher

	// PriorityFunc, when set, overrides the matcher's static priority for a
	// given URL. Catch-alls register at Low and use this to bow out entirely.
	PriorityFunc func(url string) Priority

	New Constructor

	// Broken entries never match; kept registered so they can be listed.
	Broken bool
}
