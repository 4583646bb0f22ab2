// Package plugins registers the builtin scheme catch-alls: extractors for
// direct HLS, DASH, progressive HTTP, RTMP and local file URLs. They sit at
// low priority so site-specific plugins always win.
package plugins

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/strelay-cli/strelay/dash"
	"github.com/strelay-cli/strelay/hds"
	"github.com/strelay-cli/strelay/hls"
	"github.com/strelay-cli/strelay/key"
	"github.com/strelay-cli/strelay/plugin"
	"github.com/strelay-cli/strelay/stream"
)

// Register adds the builtin entries to a registry in their canonical order.
func Register(reg *plugin.Registry) {
	reg.Register(plugin.Entry{
		Name: "hls",
		Matchers: []plugin.Matcher{
			{Pattern: regexp.MustCompile(`^hls://`), Priority: plugin.Normal},
			{Pattern: regexp.MustCompile(`^https?://.+\.m3u8(?:\?.*)?$`), Priority: plugin.Low},
		},
		New: func(env plugin.Environment, url string, _ map[string]string) plugin.Plugin {
			return &hlsPlugin{env: env, url: targetURL(url, "hls")}
		},
	})

	reg.Register(plugin.Entry{
		Name: "dash",
		Matchers: []plugin.Matcher{
			{Pattern: regexp.MustCompile(`^dash://`), Priority: plugin.Normal},
			{Pattern: regexp.MustCompile(`^https?://.+\.mpd(?:\?.*)?$`), Priority: plugin.Low},
		},
		New: func(env plugin.Environment, url string, _ map[string]string) plugin.Plugin {
			return &dashPlugin{env: env, url: targetURL(url, "dash")}
		},
	})

	reg.Register(plugin.Entry{
		Name: "hds",
		Matchers: []plugin.Matcher{
			{Pattern: regexp.MustCompile(`^hds://`), Priority: plugin.Normal},
			{Pattern: regexp.MustCompile(`^https?://.+\.f4m(?:\?.*)?$`), Priority: plugin.Low},
		},
		New: func(env plugin.Environment, url string, _ map[string]string) plugin.Plugin {
			return &hdsPlugin{env: env, url: targetURL(url, "hds")}
		},
	})

	reg.Register(plugin.Entry{
		Name: "http",
		Matchers: []plugin.Matcher{
			{Pattern: regexp.MustCompile(`^httpstream://`), Priority: plugin.Normal},
			{Pattern: regexp.MustCompile(`^https?://.+\.(?:ts|mp4|flv|mkv|webm|aac|mp3)(?:\?.*)?$`), Priority: plugin.Low},
		},
		New: func(env plugin.Environment, url string, _ map[string]string) plugin.Plugin {
			return &httpPlugin{env: env, url: targetURL(url, "httpstream")}
		},
	})

	reg.Register(plugin.Entry{
		Name: "rtmp",
		Matchers: []plugin.Matcher{
			{Pattern: regexp.MustCompile(`^rtmp(?:e|s|t|te)?://`), Priority: plugin.Low},
		},
		New: func(env plugin.Environment, url string, _ map[string]string) plugin.Plugin {
			return &rtmpPlugin{env: env, url: url}
		},
	})

	reg.Register(plugin.Entry{
		Name: "file",
		Matchers: []plugin.Matcher{
			{Pattern: regexp.MustCompile(`^file://`), Priority: plugin.Low},
		},
		New: func(env plugin.Environment, url string, _ map[string]string) plugin.Plugin {
			return &filePlugin{url: url}
		},
	})
}

// targetURL strips a forcing scheme prefix ("hls://https://host/x") and
// defaults bare hosts to https.
func targetURL(url, scheme string) string {
	rest, found := strings.CutPrefix(url, scheme+"://")
	if !found {
		return url
	}
	if !strings.Contains(rest, "://") {
		rest = "https://" + rest
	}
	return rest
}

// HLSOptions assembles pipeline options from session configuration.
func HLSOptions(env plugin.Environment) hls.Options {
	return hls.Options{
		LiveEdge:        cast.ToInt(env.GetOption(key.HLSLiveEdge)),
		SegmentAttempts: cast.ToInt(env.GetOption(key.HLSSegmentAttempts)),
		SegmentThreads:  cast.ToInt(env.GetOption(key.HLSSegmentThreads)),
		SegmentTimeout:  time.Duration(cast.ToFloat64(env.GetOption(key.HLSTimeout)) * float64(time.Second)),
		ReloadAttempts:  cast.ToInt(env.GetOption(key.HLSPlaylistReloadAttempts)),
		StartOffset:     time.Duration(cast.ToFloat64(env.GetOption(key.HLSStartOffset)) * float64(time.Second)),
		MaxDuration:     time.Duration(cast.ToFloat64(env.GetOption(key.HLSDuration)) * float64(time.Second)),
		FilterAds:       cast.ToBool(env.GetOption(key.HLSFilterAds)),
		BufferSize:      cast.ToInt(env.GetOption(key.StreamRingbufferSize)),
	}
}

// DASHOptions assembles pipeline options from session configuration.
func DASHOptions(env plugin.Environment) dash.Options {
	return dash.Options{
		LiveEdge:        cast.ToInt(env.GetOption(key.HLSLiveEdge)),
		SegmentAttempts: cast.ToInt(env.GetOption(key.DASHSegmentAttempts)),
		SegmentThreads:  cast.ToInt(env.GetOption(key.DASHSegmentThreads)),
		ReloadAttempts:  cast.ToInt(env.GetOption(key.HLSPlaylistReloadAttempts)),
		BufferSize:      cast.ToInt(env.GetOption(key.StreamRingbufferSize)),
		MuxCommand:      cast.ToString(env.GetOption(key.MuxCommand)),
	}
}

// HDSOptions assembles pipeline options from session configuration.
func HDSOptions(env plugin.Environment) hds.Options {
	return hds.Options{
		LiveEdge:        cast.ToInt(env.GetOption(key.HDSLiveEdge)),
		SegmentAttempts: cast.ToInt(env.GetOption(key.HDSSegmentAttempts)),
		SegmentThreads:  cast.ToInt(env.GetOption(key.HDSSegmentThreads)),
		ReloadAttempts:  cast.ToInt(env.GetOption(key.HLSPlaylistReloadAttempts)),
		BufferSize:      cast.ToInt(env.GetOption(key.StreamRingbufferSize)),
	}
}

type hlsPlugin struct {
	env plugin.Environment
	url string
}

func (p *hlsPlugin) Name() string { return "hls" }

func (p *hlsPlugin) Streams(ctx context.Context) (*stream.Map, error) {
	return hls.NewStreams(ctx, p.env.HTTP(), p.url, HLSOptions(p.env))
}

type dashPlugin struct {
	env plugin.Environment
	url string
}

func (p *dashPlugin) Name() string { return "dash" }

func (p *dashPlugin) Streams(ctx context.Context) (*stream.Map, error) {
	return dash.NewStreams(ctx, p.env.HTTP(), p.url, DASHOptions(p.env))
}

type hdsPlugin struct {
	env plugin.Environment
	url string
}

func (p *hdsPlugin) Name() string { return "hds" }

func (p *hdsPlugin) Streams(ctx context.Context) (*stream.Map, error) {
	return hds.NewStreams(ctx, p.env.HTTP(), p.url, HDSOptions(p.env))
}

type httpPlugin struct {
	env plugin.Environment
	url string
}

func (p *httpPlugin) Name() string { return "http" }

func (p *httpPlugin) Streams(_ context.Context) (*stream.Map, error) {
	streams := stream.NewMap()
	streams.Set("live", stream.NewHTTP(p.env.HTTP(), p.url, nil))
	return streams, nil
}

type rtmpPlugin struct {
	env plugin.Environment
	url string
}

func (p *rtmpPlugin) Name() string { return "rtmp" }

func (p *rtmpPlugin) Streams(_ context.Context) (*stream.Map, error) {
	if _, err := stream.ParseRTMPURL(p.url); err != nil {
		return nil, fmt.Errorf("invalid rtmp url: %w", err)
	}

	command := cast.ToString(p.env.GetOption(key.RTMPCommand))
	streams := stream.NewMap()
	streams.Set("live", stream.NewRTMP(command, map[string]string{"rtmp": p.url}))
	return streams, nil
}

type filePlugin struct {
	url string
}

func (p *filePlugin) Name() string { return "file" }

func (p *filePlugin) Streams(_ context.Context) (*stream.Map, error) {
	streams := stream.NewMap()
	streams.Set("file", stream.NewFile(p.url))
	return streams, nil
}

// StreamFromSpec turns a (type, url) pair, as produced by sideloaded plugins,
// into a concrete stream.
func StreamFromSpec(env plugin.Environment, kind, url string) (stream.Stream, error) {
	switch kind {
	case "hls":
		return hls.NewStream(env.HTTP(), url, HLSOptions(env)), nil
	case "hds":
		return hds.NewStream(env.HTTP(), url, "", HDSOptions(env)), nil
	case "http":
		return stream.NewHTTP(env.HTTP(), url, nil), nil
	case "rtmp":
		command := cast.ToString(env.GetOption(key.RTMPCommand))
		return stream.NewRTMP(command, map[string]string{"rtmp": url}), nil
	case "file":
		return stream.NewFile(url), nil
	default:
		return nil, fmt.Errorf("unknown stream type %q", kind)
	}
}
