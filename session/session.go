// Package session owns the per-invocation state: options, the shared HTTP
// client, and the plugin registry. Session.Streams is the single entry point
// from a URL to a decorated stream map.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/strelay-cli/strelay/auth"
	"github.com/strelay-cli/strelay/key"
	"github.com/strelay-cli/strelay/log"
	"github.com/strelay-cli/strelay/network"
	"github.com/strelay-cli/strelay/plugin"
	"github.com/strelay-cli/strelay/plugin/custom"
	"github.com/strelay-cli/strelay/plugins"
	"github.com/strelay-cli/strelay/stream"
	"github.com/strelay-cli/strelay/where"
)

// DefaultDeferralDepth bounds plugin-to-plugin deferral when the option is
// unset.
const DefaultDeferralDepth = 5

// Session holds options, the HTTP client and the registry. Options live in a
// private viper instance seeded from the global configuration, so concurrent
// sessions never observe each other's changes.
type Session struct {
	mu      sync.Mutex
	options *viper.Viper
	client  *network.Client

	registry *plugin.Registry
	metadata plugin.Metadata
}

// New constructs a session seeded from the global configuration, with the
// builtin plugins plus any sideloaded scripts registered.
func New() (*Session, error) {
	options := viper.New()
	if err := options.MergeConfigMap(viper.AllSettings()); err != nil {
		return nil, fmt.Errorf("seeding session options: %w", err)
	}

	registry := plugin.NewRegistry()
	plugins.Register(registry)
	for _, entry := range custom.LoadDir(where.Plugins()) {
		registry.Register(entry)
	}

	return &Session{options: options, registry: registry}, nil
}

// Registry exposes the plugin registry; read-only after construction.
func (s *Session) Registry() *plugin.Registry {
	return s.registry
}

// HTTP returns the session's HTTP client, building it from the current
// options on first use.
func (s *Session) HTTP() *network.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpLocked()
}

func (s *Session) httpLocked() *network.Client {
	if s.client != nil {
		return s.client
	}

	client, err := network.New(network.Config{
		ConnectTimeout: secondsOption(s.options, key.HTTPConnectTimeout),
		ReadTimeout:    secondsOption(s.options, key.HTTPTimeout),
		Retries:        s.options.GetInt(key.HTTPRetries),
		Backoff:        secondsOption(s.options, key.HTTPRetryBackoff),
		Proxy:          s.options.GetString(key.HTTPProxy),
		UserAgent:      s.options.GetString(key.HTTPUserAgent),
		Headers:        s.options.GetStringMapString(key.HTTPHeaders),
		Cookies:        s.options.GetStringMapString(key.HTTPCookies),
		TLSImpersonate: s.options.GetBool(key.HTTPTLSImpersonate),
	})
	if err != nil {
		// Construction only fails on malformed proxy URLs; fall back to
		// a default client rather than leaving callers without one.
		log.Errorf("building http client: %v", err)
		client, _ = network.New(network.Config{})
	}

	s.client = client
	return client
}

func secondsOption(v *viper.Viper, k string) time.Duration {
	return time.Duration(v.GetFloat64(k) * float64(time.Second))
}

// GetOption reads an option by key.
func (s *Session) GetOption(k string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options.Get(k)
}

// SetOption stores an option and runs its side effect, if any. Setting an
// HTTP key after the client exists rebuilds the client for subsequently
// opened streams; already open streams keep the client they were spawned
// with.
func (s *Session) SetOption(k string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.options.Set(k, value)

	if hook, ok := optionHooks[k]; ok {
		return hook(s, value)
	}
	return nil
}

// optionHooks are the side effects of specific option keys.
var optionHooks = map[string]func(s *Session, value any) error{
	key.HTTPCookiesFile: (*Session).loadCookiesFile,

	key.HTTPTimeout:        (*Session).invalidateClient,
	key.HTTPConnectTimeout: (*Session).invalidateClient,
	key.HTTPRetries:        (*Session).invalidateClient,
	key.HTTPRetryBackoff:   (*Session).invalidateClient,
	key.HTTPProxy:          (*Session).invalidateClient,
	key.HTTPUserAgent:      (*Session).invalidateClient,
	key.HTTPHeaders:        (*Session).invalidateClient,
	key.HTTPCookies:        (*Session).invalidateClient,
	key.HTTPTLSImpersonate: (*Session).invalidateClient,
}

func (s *Session) invalidateClient(any) error {
	s.client = nil
	return nil
}

// loadCookiesFile loads a Netscape cookie jar into the client immediately.
// Failure is fatal to the invocation, with a message naming the absolute
// path.
func (s *Session) loadCookiesFile(value any) error {
	path := cast.ToString(value)
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	if err := s.httpLocked().LoadCookiesFile(abs); err != nil {
		log.Debugf("cookie file rejected: %v", err)
		return fmt.Errorf("Error while loading cookies from file: '%s' is not a valid cookies file path", abs)
	}
	return nil
}

// Credentials looks up stored credentials for a site.
func (s *Session) Credentials(site string) (string, string, error) {
	return auth.Get(site)
}

// ResolveURL returns the winning plugin match for a URL without extracting.
func (s *Session) ResolveURL(url string) (plugin.Match, error) {
	return s.registry.Resolve(url)
}

// Streams resolves a URL into its decorated stream map: the plugin's output
// plus the worst/best aliases, their unfiltered variants, and any configured
// synonyms.
func (s *Session) Streams(ctx context.Context, url string) (*stream.Map, error) {
	m, err := s.streams(ctx, url, 0)
	if err != nil {
		return nil, err
	}

	exclude, err := stream.ParseFilter(cast.ToString(s.GetOption(key.StreamSortingExcludes)))
	if err != nil {
		return nil, fmt.Errorf("invalid stream sorting excludes: %w", err)
	}
	synonyms := cast.ToStringMapString(s.GetOption(key.StreamSynonyms))

	stream.Decorate(m, exclude, synonyms)
	return m, nil
}

// streams is the recursion point shared with plugin deferral.
func (s *Session) streams(ctx context.Context, url string, depth int) (*stream.Map, error) {
	maxDepth := cast.ToInt(s.GetOption(key.PluginDeferralDepth))
	if maxDepth <= 0 {
		maxDepth = DefaultDeferralDepth
	}
	if depth > maxDepth {
		return nil, &plugin.DeferralDepthError{URL: url, Depth: maxDepth}
	}

	match, err := s.registry.Resolve(url)
	if err != nil {
		return nil, err
	}
	log.Debugf("resolved %s to plugin %s (priority %d)", url, match.Entry.Name, match.Priority)

	p := match.Entry.New(&environment{session: s, depth: depth}, match.URL, match.Groups)
	m, err := p.Streams(ctx)
	if err != nil {
		var perr *plugin.Error
		var derr *plugin.DeferralDepthError
		var nerr *plugin.NoStreamsError
		if errors.As(err, &perr) || errors.As(err, &derr) || errors.As(err, &nerr) {
			return nil, err
		}
		return nil, &plugin.Error{Plugin: p.Name(), Err: err}
	}
	if m == nil || m.Len() == 0 {
		return nil, &plugin.NoStreamsError{URL: url}
	}

	// Metadata of the outermost plugin describes the resolved page; deferred
	// plugins only contribute streams.
	if mp, ok := p.(plugin.MetadataProvider); ok && depth == 0 {
		s.mu.Lock()
		s.metadata = mp.Metadata()
		s.mu.Unlock()
	}
	return m, nil
}

// Metadata returns what the winning plugin reported about the last resolved
// URL. Empty until Streams succeeds.
func (s *Session) Metadata() plugin.Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata
}

// environment is the session view handed to a constructed plugin; it carries
// the deferral depth of the call that created the plugin.
type environment struct {
	session *Session
	depth   int
}

func (e *environment) HTTP() *network.Client { return e.session.HTTP() }

func (e *environment) GetOption(k string) any { return e.session.GetOption(k) }

func (e *environment) Credentials(site string) (string, string, error) {
	return e.session.Credentials(site)
}

func (e *environment) Defer(ctx context.Context, url string) (*stream.Map, error) {
	return e.session.streams(ctx, url, e.depth+1)
}
