package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/samber/mo"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
	"github.com/strelay-cli/strelay/key"
	"github.com/strelay-cli/strelay/plugin"
	"github.com/strelay-cli/strelay/stream"
	"github.com/strelay-cli/strelay/where"
)

type staticPlugin struct {
	name    string
	title   string
	streams *stream.Map
	err     error
}

func (p *staticPlugin) Name() string { return p.name }

func (p *staticPlugin) Streams(context.Context) (*stream.Map, error) {
	return p.streams, p.err
}

func (p *staticPlugin) Metadata() plugin.Metadata {
	if p.title == "" {
		return plugin.Metadata{}
	}
	return plugin.Metadata{Title: mo.Some(p.title)}
}

type deferringPlugin struct {
	env plugin.Environment
	url string
}

func (p *deferringPlugin) Name() string { return "deferring" }

func (p *deferringPlugin) Streams(ctx context.Context) (*stream.Map, error) {
	return p.env.Defer(ctx, p.url)
}

type nopStream struct{ name string }

func (s *nopStream) Shortname() string { return "test" }

func (s *nopStream) Open(context.Context) (io.ReadCloser, error) {
	return nil, errors.New("not openable")
}

func newTestSession(t *testing.T) *Session {
	t.Setenv(where.EnvConfigPath, t.TempDir())

	sess, err := New()
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

func TestOptions(t *testing.T) {
	Convey("Given a fresh session", t, func() {
		viper.Set(key.HTTPRetries, 7)
		sess := newTestSession(t)

		Convey("It inherits the global configuration", func() {
			So(sess.GetOption(key.HTTPRetries), ShouldEqual, 7)
		})

		Convey("Setting an option is local to the session", func() {
			So(sess.SetOption(key.HTTPRetries, 2), ShouldBeNil)
			So(sess.GetOption(key.HTTPRetries), ShouldEqual, 2)
			So(viper.GetInt(key.HTTPRetries), ShouldEqual, 7)
		})

		Convey("Changing an HTTP option rebuilds the client", func() {
			before := sess.HTTP()
			So(sess.SetOption(key.HTTPUserAgent, "custom-agent"), ShouldBeNil)
			So(sess.HTTP(), ShouldNotEqual, before)
		})

		Convey("Unrelated options keep the client", func() {
			before := sess.HTTP()
			So(sess.SetOption(key.HLSLiveEdge, 5), ShouldBeNil)
			So(sess.HTTP(), ShouldEqual, before)
		})

		Convey("Explicit cookies reach the server", func() {
			var cookie string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if c, err := r.Cookie("session"); err == nil {
					cookie = c.Value
				}
			}))
			defer srv.Close()

			So(sess.SetOption(key.HTTPCookies, map[string]string{"session": "token"}), ShouldBeNil)
			_, err := sess.HTTP().Get(context.Background(), srv.URL, nil)
			So(err, ShouldBeNil)
			So(cookie, ShouldEqual, "token")
		})
	})
}

func TestCookiesFileOption(t *testing.T) {
	Convey("Given a session and a missing cookies file", t, func() {
		sess := newTestSession(t)
		path := filepath.Join(t.TempDir(), "absent")

		err := sess.SetOption(key.HTTPCookiesFile, path)

		Convey("The failure names the absolute path", func() {
			So(err, ShouldNotBeNil)
			abs, _ := filepath.Abs(path)
			So(err.Error(), ShouldEqual, "Error while loading cookies from file: '"+abs+"' is not a valid cookies file path")
		})
	})

	Convey("Given a valid Netscape cookies file", t, func() {
		sess := newTestSession(t)
		path := filepath.Join(t.TempDir(), "cookies.txt")
		jar := "# Netscape HTTP Cookie File\n" +
			"example.tld\tFALSE\t/\tFALSE\t0\tsession\tabc123\n"
		So(os.WriteFile(path, []byte(jar), 0o644), ShouldBeNil)

		Convey("Loading succeeds", func() {
			So(sess.SetOption(key.HTTPCookiesFile, path), ShouldBeNil)
		})
	})
}

func TestStreams(t *testing.T) {
	Convey("Given a session with a test plugin", t, func() {
		sess := newTestSession(t)

		variants := stream.NewMap()
		variants.Set("480p", &nopStream{name: "480p"})
		variants.Set("720p", &nopStream{name: "720p"})

		sess.Registry().Register(plugin.Entry{
			Name: "static",
			Matchers: []plugin.Matcher{
				{Pattern: regexp.MustCompile(`^test://`), Priority: plugin.High},
			},
			New: func(env plugin.Environment, url string, groups map[string]string) plugin.Plugin {
				return &staticPlugin{name: "static", title: "Static Show", streams: variants}
			},
		})

		Convey("Streams returns the decorated map", func() {
			m, err := sess.Streams(context.Background(), "test://whatever")
			So(err, ShouldBeNil)

			worst, _ := m.Get(stream.NameWorst)
			best, _ := m.Get(stream.NameBest)
			So(worst.(*nopStream).name, ShouldEqual, "480p")
			So(best.(*nopStream).name, ShouldEqual, "720p")
		})

		Convey("Plugin metadata is retained for the resolved URL", func() {
			So(sess.Metadata().Title.IsAbsent(), ShouldBeTrue)

			_, err := sess.Streams(context.Background(), "test://whatever")
			So(err, ShouldBeNil)
			So(sess.Metadata().Title.OrElse(""), ShouldEqual, "Static Show")
		})

		Convey("A URL nothing matches yields NoPluginError", func() {
			_, err := sess.Streams(context.Background(), "nonsense://nothing")

			var noPlugin *plugin.NoPluginError
			So(errors.As(err, &noPlugin), ShouldBeTrue)
		})
	})

	Convey("Given a plugin that produces no streams", t, func() {
		sess := newTestSession(t)
		sess.Registry().Register(plugin.Entry{
			Name: "empty",
			Matchers: []plugin.Matcher{
				{Pattern: regexp.MustCompile(`^test://`), Priority: plugin.High},
			},
			New: func(env plugin.Environment, url string, groups map[string]string) plugin.Plugin {
				return &staticPlugin{name: "empty", streams: stream.NewMap()}
			},
		})

		_, err := sess.Streams(context.Background(), "test://empty")

		var noStreams *plugin.NoStreamsError
		So(errors.As(err, &noStreams), ShouldBeTrue)
	})

	Convey("Given a plugin failure", t, func() {
		sess := newTestSession(t)
		sess.Registry().Register(plugin.Entry{
			Name: "failing",
			Matchers: []plugin.Matcher{
				{Pattern: regexp.MustCompile(`^test://`), Priority: plugin.High},
			},
			New: func(env plugin.Environment, url string, groups map[string]string) plugin.Plugin {
				return &staticPlugin{name: "failing", err: errors.New("site changed its layout")}
			},
		})

		_, err := sess.Streams(context.Background(), "test://fail")

		Convey("The error is wrapped with the plugin name", func() {
			var perr *plugin.Error
			So(errors.As(err, &perr), ShouldBeTrue)
			So(perr.Plugin, ShouldEqual, "failing")
		})
	})
}

func TestDeferralDepth(t *testing.T) {
	Convey("Given a plugin that defers to its own URL", t, func() {
		sess := newTestSession(t)
		sess.Registry().Register(plugin.Entry{
			Name: "self-deferring",
			Matchers: []plugin.Matcher{
				{Pattern: regexp.MustCompile(`^test://`), Priority: plugin.High},
			},
			New: func(env plugin.Environment, url string, groups map[string]string) plugin.Plugin {
				return &deferringPlugin{env: env, url: url}
			},
		})

		_, err := sess.Streams(context.Background(), "test://loop")

		Convey("Resolution fails with a deferral depth error", func() {
			var depthErr *plugin.DeferralDepthError
			So(errors.As(err, &depthErr), ShouldBeTrue)
		})
	})
}
