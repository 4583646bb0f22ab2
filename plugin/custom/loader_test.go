package custom

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/strelay-cli/strelay/network"
	"github.com/strelay-cli/strelay/plugin"
	"github.com/strelay-cli/strelay/stream"
)

const goodScript = `
function CanHandleURL(url)
	return string.find(url, "example%.tld") ~= nil
end

function Streams(url)
	return {
		["720p"] = { type = "hls", url = "https://cdn.example.tld/720p.m3u8" },
		["480p"] = { type = "hls", url = "https://cdn.example.tld/480p.m3u8" },
	}
end
`

type fakeEnv struct {
	client *network.Client
}

func (e *fakeEnv) HTTP() *network.Client { return e.client }
func (e *fakeEnv) GetOption(string) any  { return nil }
func (e *fakeEnv) Credentials(string) (string, string, error) {
	return "", "", nil
}
func (e *fakeEnv) Defer(context.Context, string) (*stream.Map, error) {
	return nil, nil
}

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	Convey("A well-formed script loads into a registry entry", t, func() {
		path := writeScript(t, "examplesite.lua", goodScript)

		entry, err := Load(path)
		So(err, ShouldBeNil)
		So(entry.Name, ShouldEqual, "examplesite")
		So(entry.Matchers, ShouldBeEmpty)

		Convey("and claims only its URLs", func() {
			So(entry.PriorityFunc("https://example.tld/watch/1"), ShouldEqual, plugin.Normal)
			So(entry.PriorityFunc("https://other.site/x"), ShouldEqual, plugin.NoPriority)
		})

		Convey("and resolves claimed URLs into streams", func() {
			client, err := network.New(network.Config{})
			So(err, ShouldBeNil)

			p := entry.New(&fakeEnv{client: client}, "https://example.tld/watch/1", nil)
			streams, err := p.Streams(context.Background())
			So(err, ShouldBeNil)
			So(streams.Len(), ShouldEqual, 2)

			s, ok := streams.Get("720p")
			So(ok, ShouldBeTrue)
			So(s.Shortname(), ShouldEqual, "hls")
		})

		Convey("and reports empty metadata without a Title function", func() {
			p := entry.New(&fakeEnv{}, "https://example.tld/watch/1", nil)
			mp, ok := p.(plugin.MetadataProvider)
			So(ok, ShouldBeTrue)
			So(mp.Metadata().Title.IsAbsent(), ShouldBeTrue)
		})
	})

	Convey("A script with a Title function provides the page title", t, func() {
		path := writeScript(t, "titled.lua", goodScript+`
function Title(url)
	return "Example Live"
end
`)
		entry, err := Load(path)
		So(err, ShouldBeNil)

		p := entry.New(&fakeEnv{}, "https://example.tld/watch/1", nil)
		mp, ok := p.(plugin.MetadataProvider)
		So(ok, ShouldBeTrue)
		So(mp.Metadata().Title.OrElse(""), ShouldEqual, "Example Live")
	})

	Convey("A script missing a required function is rejected", t, func() {
		path := writeScript(t, "broken.lua", `function CanHandleURL(url) return true end`)

		_, err := Load(path)
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "Streams")
	})

	Convey("A script with a syntax error is rejected", t, func() {
		path := writeScript(t, "bad.lua", `function (`)

		_, err := Load(path)
		So(err, ShouldNotBeNil)
	})
}

func TestLoadDir(t *testing.T) {
	Convey("LoadDir loads every script and skips broken ones", t, func() {
		dir := t.TempDir()
		for name, body := range map[string]string{
			"one.lua": goodScript,
			"two.lua": goodScript,
			"bad.lua": `function (`,
		} {
			if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
		}

		entries := LoadDir(dir)
		So(len(entries), ShouldEqual, 2)
		So(entries[0].Name, ShouldEqual, "one")
		So(entries[1].Name, ShouldEqual, "two")
	})

	Convey("A missing directory yields no entries", t, func() {
		So(LoadDir("/nonexistent/plugins"), ShouldBeEmpty)
	})
}
