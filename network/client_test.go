package network

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/strelay-cli/strelay/validate"
)

func TestClient(t *testing.T) {
	Convey("Client", t, func() {
		Convey("Should send default and per-request headers", func() {
			var got http.Header
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Clone()
			}))
			defer srv.Close()

			client, err := New(Config{
				UserAgent: "strelay-test",
				Headers:   map[string]string{"X-Session": "yes"},
			})
			So(err, ShouldBeNil)

			_, err = client.Get(context.Background(), srv.URL, &Options{
				Headers: map[string]string{"X-Request": "also"},
			})
			So(err, ShouldBeNil)
			So(got.Get("User-Agent"), ShouldEqual, "strelay-test")
			So(got.Get("X-Session"), ShouldEqual, "yes")
			So(got.Get("X-Request"), ShouldEqual, "also")
		})

		Convey("Should attach configured cookies to every request", func() {
			var cookies []*http.Cookie
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				cookies = r.Cookies()
			}))
			defer srv.Close()

			client, err := New(Config{
				Cookies: map[string]string{"session": "token"},
			})
			So(err, ShouldBeNil)

			_, err = client.Get(context.Background(), srv.URL, nil)
			So(err, ShouldBeNil)
			So(cookies, ShouldHaveLength, 1)
			So(cookies[0].Name, ShouldEqual, "session")
			So(cookies[0].Value, ShouldEqual, "token")
		})

		Convey("Should not error on HTTP status codes by default", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))
			defer srv.Close()

			client, err := New(Config{})
			So(err, ShouldBeNil)

			resp, err := client.Get(context.Background(), srv.URL, nil)
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)

			_, err = client.Get(context.Background(), srv.URL, &Options{RaiseForStatus: true})
			So(err, ShouldNotBeNil)
		})

		Convey("Should return the schema-validated value", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"streams":[{"url":"https://cdn.tld/720p.m3u8"}]}`)
			}))
			defer srv.Close()

			client, err := New(Config{})
			So(err, ShouldBeNil)

			resp, err := client.Get(context.Background(), srv.URL, &Options{
				Schema: validate.All(
					validate.ParseJSON(),
					validate.Get("streams"),
					validate.Get(0),
					validate.Get("url"),
					validate.Type[string](),
				),
			})
			So(err, ShouldBeNil)
			So(resp.Value, ShouldEqual, "https://cdn.tld/720p.m3u8")
		})

		Convey("Should retry transient failures", func() {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) < 3 {
					if hj, ok := w.(http.Hijacker); ok {
						conn, _, _ := hj.Hijack()
						conn.Close()
					}
					return
				}
				fmt.Fprint(w, "ok")
			}))
			defer srv.Close()

			client, err := New(Config{Retries: 3, Backoff: time.Millisecond})
			So(err, ShouldBeNil)

			resp, err := client.Get(context.Background(), srv.URL, nil)
			So(err, ShouldBeNil)
			So(resp.Text(), ShouldEqual, "ok")
			So(calls.Load(), ShouldEqual, 3)
		})

		Convey("Should honor cancellation between attempts", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if hj, ok := w.(http.Hijacker); ok {
					conn, _, _ := hj.Hijack()
					conn.Close()
				}
			}))
			defer srv.Close()

			client, err := New(Config{Retries: 5, Backoff: time.Second})
			So(err, ShouldBeNil)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			start := time.Now()
			_, err = client.Get(ctx, srv.URL, nil)
			So(err, ShouldNotBeNil)
			So(time.Since(start), ShouldBeLessThan, time.Second)
		})

		Convey("Should share cookies across requests", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if _, err := r.Cookie("session"); err != nil {
					http.SetCookie(w, &http.Cookie{Name: "session", Value: "token"})
					return
				}
				fmt.Fprint(w, "authed")
			}))
			defer srv.Close()

			client, err := New(Config{})
			So(err, ShouldBeNil)

			_, err = client.Get(context.Background(), srv.URL, nil)
			So(err, ShouldBeNil)

			resp, err := client.Get(context.Background(), srv.URL, nil)
			So(err, ShouldBeNil)
			So(resp.Text(), ShouldEqual, "authed")
		})
	})
}

func TestLoadCookiesFile(t *testing.T) {
	Convey("LoadCookiesFile", t, func() {
		Convey("Should reject a missing file", func() {
			client, err := New(Config{})
			So(err, ShouldBeNil)
			So(client.LoadCookiesFile("/does/not/exist"), ShouldNotBeNil)
		})

		Convey("Should load a Netscape jar into the cookie jar", func() {
			dir := t.TempDir()
			path := dir + "/cookies.txt"
			content := "# Netscape HTTP Cookie File\n" +
				"example.tld\tFALSE\t/\tFALSE\t0\tsession\ttoken\n" +
				"#HttpOnly_example.tld\tFALSE\t/\tFALSE\t0\tsecret\thidden\n"
			So(writeFile(path, content), ShouldBeNil)

			client, err := New(Config{})
			So(err, ShouldBeNil)
			So(client.LoadCookiesFile(path), ShouldBeNil)

			cookies := client.Jar().Cookies(&url.URL{Scheme: "http", Host: "example.tld", Path: "/"})
			names := make([]string, 0, len(cookies))
			for _, c := range cookies {
				names = append(names, c.Name)
			}
			So(names, ShouldContain, "session")
			So(names, ShouldContain, "secret")
		})

		Convey("Should reject malformed lines", func() {
			dir := t.TempDir()
			path := dir + "/bad.txt"
			So(writeFile(path, "not a cookie line\n"), ShouldBeNil)

			client, err := New(Config{})
			So(err, ShouldBeNil)
			So(client.LoadCookiesFile(path), ShouldNotBeNil)
		})
	})
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}
