package segment

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// fakeSource serves a fixed sequence of playlist snapshots, repeating the
// last one forever.
type fakeSource struct {
	mu        sync.Mutex
	snapshots []*Playlist
	calls     int
}

func (f *fakeSource) Reload(context.Context) (*Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.snapshots) {
		i = len(f.snapshots) - 1
	}
	f.calls++
	return f.snapshots[i], nil
}

// fakeFetcher serves segment payloads from a map, with optional per-URI
// failure counts.
type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[string][]byte
	keys     map[string][]byte
	failures map[string]int
	delays   map[string]time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context, s Segment) (io.ReadCloser, error) {
	f.mu.Lock()
	if n := f.failures[s.URI]; n > 0 {
		f.failures[s.URI] = n - 1
		f.mu.Unlock()
		return nil, fmt.Errorf("synthetic failure for %s", s.URI)
	}
	delay := f.delays[s.URI]
	payload, ok := f.payloads[s.URI]
	f.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no payload for %s", s.URI)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (f *fakeFetcher) FetchKey(_ context.Context, uri string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.keys[uri]
	if !ok {
		return nil, fmt.Errorf("no key at %s", uri)
	}
	return key, nil
}

func vod(segments ...Segment) *fakeSource {
	return &fakeSource{snapshots: []*Playlist{{Segments: segments, Complete: true}}}
}

func seg(num int, uri string) Segment {
	return Segment{Num: num, URI: uri, Duration: time.Second}
}

func TestPipeline(t *testing.T) {
	Convey("A VOD presentation delivers every segment in order", t, func() {
		src := vod(seg(0, "a"), seg(1, "b"), seg(2, "c"))
		fetcher := &fakeFetcher{payloads: map[string][]byte{
			"a": []byte("AAA"), "b": []byte("BBB"), "c": []byte("CCC"),
		}}

		r := Open(context.Background(), src, fetcher, Config{})
		defer r.Close()

		out, err := io.ReadAll(r)
		So(err, ShouldBeNil)
		So(string(out), ShouldEqual, "AAABBBCCC")
		So(r.State(), ShouldEqual, StateClosed)
	})

	Convey("Ordering is strict even when earlier segments fetch slower", t, func() {
		src := vod(seg(0, "slow"), seg(1, "fast"), seg(2, "faster"))
		fetcher := &fakeFetcher{
			payloads: map[string][]byte{
				"slow": []byte("111"), "fast": []byte("222"), "faster": []byte("333"),
			},
			delays: map[string]time.Duration{"slow": 80 * time.Millisecond},
		}

		r := Open(context.Background(), src, fetcher, Config{Writer: WriterConfig{Pool: 3}})
		defer r.Close()

		out, err := io.ReadAll(r)
		So(err, ShouldBeNil)
		So(string(out), ShouldEqual, "111222333")
	})

	Convey("A segment that keeps failing is skipped and playback continues", t, func() {
		src := vod(seg(0, "bad"), seg(1, "good"))
		fetcher := &fakeFetcher{
			payloads: map[string][]byte{"good": []byte("OK")},
			failures: map[string]int{"bad": 99},
		}

		r := Open(context.Background(), src, fetcher, Config{Writer: WriterConfig{Attempts: 2}})
		defer r.Close()

		out, err := io.ReadAll(r)
		So(err, ShouldBeNil)
		So(string(out), ShouldEqual, "OK")
	})

	Convey("A transient failure is retried within the attempt budget", t, func() {
		src := vod(seg(0, "flaky"))
		fetcher := &fakeFetcher{
			payloads: map[string][]byte{"flaky": []byte("DATA")},
			failures: map[string]int{"flaky": 2},
		}

		r := Open(context.Background(), src, fetcher, Config{Writer: WriterConfig{Attempts: 3}})
		defer r.Close()

		out, err := io.ReadAll(r)
		So(err, ShouldBeNil)
		So(string(out), ShouldEqual, "DATA")
	})

	Convey("An empty complete playlist reads straight to EOF", t, func() {
		src := vod()
		fetcher := &fakeFetcher{payloads: map[string][]byte{}}

		r := Open(context.Background(), src, fetcher, Config{})
		defer r.Close()

		n, err := r.Read(make([]byte, 16))
		So(n, ShouldEqual, 0)
		So(err, ShouldEqual, io.EOF)
	})

	Convey("Close is idempotent and stops a live pipeline", t, func() {
		live := &fakeSource{snapshots: []*Playlist{{
			Segments:       []Segment{seg(0, "a"), seg(1, "a"), seg(2, "a"), seg(3, "a")},
			TargetDuration: time.Second,
		}}}
		fetcher := &fakeFetcher{payloads: map[string][]byte{"a": []byte("x")}}

		r := Open(context.Background(), live, fetcher, Config{})
		So(r.Close(), ShouldBeNil)
		So(r.Close(), ShouldBeNil)
		So(r.State(), ShouldEqual, StateClosed)
	})
}

func TestPipelineLiveEdge(t *testing.T) {
	Convey("Live playback starts behind the newest segment", t, func() {
		live := &fakeSource{snapshots: []*Playlist{
			{
				Segments: []Segment{
					seg(0, "s0"), seg(1, "s1"), seg(2, "s2"),
					seg(3, "s3"), seg(4, "s4"),
				},
				TargetDuration: 10 * time.Millisecond,
			},
			{
				Segments: []Segment{
					seg(3, "s3"), seg(4, "s4"), seg(5, "s5"),
				},
				Complete:       true,
				TargetDuration: 10 * time.Millisecond,
			},
		}}
		fetcher := &fakeFetcher{payloads: map[string][]byte{
			"s0": []byte("0"), "s1": []byte("1"), "s2": []byte("2"),
			"s3": []byte("3"), "s4": []byte("4"), "s5": []byte("5"),
		}}

		r := Open(context.Background(), live, fetcher, Config{
			Worker: WorkerConfig{LiveEdge: 3, MinReload: 10 * time.Millisecond},
		})
		defer r.Close()

		out, err := io.ReadAll(r)
		So(err, ShouldBeNil)
		So(string(out), ShouldEqual, "2345")
	})

	Convey("A stalled playlist ends the stream instead of erroring", t, func() {
		live := &fakeSource{snapshots: []*Playlist{{
			Segments:       []Segment{seg(0, "s0")},
			TargetDuration: 5 * time.Millisecond,
		}}}
		fetcher := &fakeFetcher{payloads: map[string][]byte{"s0": []byte("0")}}

		r := Open(context.Background(), live, fetcher, Config{
			Worker: WorkerConfig{ReloadAttempts: 2, MinReload: 5 * time.Millisecond},
		})
		defer r.Close()

		out, err := io.ReadAll(r)
		So(err, ShouldBeNil)
		So(string(out), ShouldEqual, "0")
	})
}

func TestPipelineDecryption(t *testing.T) {
	encrypt := func(key, iv, plaintext []byte) []byte {
		block, _ := aes.NewCipher(key)
		pad := aes.BlockSize - len(plaintext)%aes.BlockSize
		padded := append(append([]byte{}, plaintext...), bytes.Repeat([]byte{byte(pad)}, pad)...)
		out := make([]byte, len(padded))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
		return out
	}

	key := []byte("0123456789abcdef")

	Convey("An explicit IV decrypts the payload", t, func() {
		iv := bytes.Repeat([]byte{7}, aes.BlockSize)
		src := vod(Segment{
			Num: 0, URI: "enc", Duration: time.Second,
			Key: &Key{Method: "AES-128", URI: "key", IV: iv},
		})
		fetcher := &fakeFetcher{
			payloads: map[string][]byte{"enc": encrypt(key, iv, []byte("secret media"))},
			keys:     map[string][]byte{"key": key},
		}

		r := Open(context.Background(), src, fetcher, Config{})
		defer r.Close()

		out, err := io.ReadAll(r)
		So(err, ShouldBeNil)
		So(string(out), ShouldEqual, "secret media")
	})

	Convey("A missing IV falls back to the big-endian segment number", t, func() {
		iv := make([]byte, aes.BlockSize)
		binary.BigEndian.PutUint64(iv[8:], 42)
		src := vod(Segment{
			Num: 42, URI: "enc", Duration: time.Second,
			Key: &Key{Method: "AES-128", URI: "key"},
		})
		fetcher := &fakeFetcher{
			payloads: map[string][]byte{"enc": encrypt(key, iv, []byte("implicit iv"))},
			keys:     map[string][]byte{"key": key},
		}

		r := Open(context.Background(), src, fetcher, Config{})
		defer r.Close()

		out, err := io.ReadAll(r)
		So(err, ShouldBeNil)
		So(string(out), ShouldEqual, "implicit iv")
	})
}

func TestPipelineFilterGate(t *testing.T) {
	Convey("Filtered segments are discarded and delivery pauses around them", t, func() {
		src := vod(seg(0, "c0"), seg(1, "ad"), seg(2, "c1"))
		fetcher := &fakeFetcher{payloads: map[string][]byte{
			"c0": []byte("AA"), "ad": []byte("XX"), "c1": []byte("BB"),
		}}

		r := Open(context.Background(), src, fetcher, Config{
			Writer: WriterConfig{Filter: func(s Segment) bool { return s.URI == "ad" }},
		})
		defer r.Close()

		out, err := io.ReadAll(r)
		So(err, ShouldBeNil)
		So(string(out), ShouldEqual, "AABB")
	})
}
