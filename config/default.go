// Package config provides centralized management for application settings, defaults, and the Viper-based configuration engine.
package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"text/template"

	"github.com/samber/lo"
	"github.com/spf13/viper"
	"github.com/strelay-cli/strelay/color"
	"github.com/strelay-cli/strelay/constant"
	"github.com/strelay-cli/strelay/key"
	"github.com/strelay-cli/strelay/style"
)

// Field represents a configuration field definition.
type Field struct {
	Key         string
	Value       any
	Description string
}

// Pretty returns a colored string representation of the field for display.
func (f *Field) Pretty() string {
	var b strings.Builder
	lo.Must0(prettyTemplate.Execute(&b, f))
	return b.String()
}

// Env returns the environment variable name for this field.
func (f *Field) Env() string {
	env := strings.ToUpper(EnvKeyReplacer.Replace(f.Key))
	prefix := strings.ToUpper(constant.Strelay + "_")
	if strings.HasPrefix(env, prefix) {
		return env
	}
	return prefix + env
}

// MarshalJSON customizes JSON output to include current and default values.
func (f *Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key         string `json:"key"`
		Value       any    `json:"value"`
		Default     any    `json:"default"`
		Description string `json:"description"`
		Type        string `json:"type"`
	}{
		Key:         f.Key,
		Value:       viper.Get(f.Key),
		Default:     f.Value,
		Description: f.Description,
		Type:        f.typeName(),
	})
}

// typeName returns the string representation of the field's underlying value type.
func (f *Field) typeName() string {
	switch f.Value.(type) {
	case string:
		return "string"
	case int:
		return "int"
	case float64:
		return "float"
	case bool:
		return "bool"
	case []string:
		return "[]string"
	case map[string]string:
		return "map[string]string"
	default:
		return "unknown"
	}
}

// Default holds the map of all configuration fields.
var Default = make(map[string]Field)

// EnvExposed holds keys that are bound to environment variables.
var EnvExposed []string

func init() {
	// register validates and adds a new configuration field to the global registry.
	register := func(k string, v any, desc string) {
		if _, exists := Default[k]; exists {
			panic("Duplicate config key: " + k)
		}
		f := Field{Key: k, Value: v, Description: desc}
		Default[k] = f
		EnvExposed = append(EnvExposed, k)
	}

	register(key.HTTPTimeout, 60, "Read timeout in seconds for every HTTP request")
	register(key.HTTPConnectTimeout, 30, "Connect timeout in seconds for every HTTP request")
	register(key.HTTPRetries, 3, "Automatic retries on transient network errors")
	register(key.HTTPRetryBackoff, 1, "Base backoff in seconds between HTTP retries, doubled per attempt")
	register(key.HTTPProxy, "", "Proxy URL for all HTTP(S) requests.\nHTTP(S)_PROXY environment variables are honored when unset")
	register(key.HTTPHeaders, map[string]string{}, "Additional headers sent with every request")
	register(key.HTTPCookies, map[string]string{}, "Additional cookies sent with every request")
	register(key.HTTPCookiesFile, "", "Path to a Netscape-format cookie jar loaded at startup.\nA missing or malformed file is a fatal error")
	register(key.HTTPUserAgent, constant.UserAgent, "Default User-Agent header")
	register(key.HTTPTLSImpersonate, false, "Perform TLS handshakes with a Chrome ClientHello fingerprint.\nHelps with sites behind aggressive anti-bot protection")

	register(key.HLSLiveEdge, 3, "Number of segments from the live edge to begin playback at")
	register(key.HLSSegmentAttempts, 3, "Fetch attempts per HLS segment before it is skipped")
	register(key.HLSSegmentThreads, 1, "Concurrent segment fetchers per HLS stream")
	register(key.HLSPlaylistReloadAttempts, 3, "Playlist reloads without progress before the stream is considered ended")
	register(key.HLSTimeout, 60, "Per-segment fetch timeout in seconds")
	register(key.HLSStartOffset, 0, "Seconds to skip from the beginning of a VOD stream")
	register(key.HLSDuration, 0, "Limit playback to this many seconds; 0 plays to the end")
	register(key.HLSFilterAds, true, "Discard segments classified as advertising")

	register(key.DASHSegmentAttempts, 3, "Fetch attempts per DASH segment before it is skipped")
	register(key.DASHSegmentThreads, 2, "Concurrent segment fetchers per DASH stream (audio+video)")

	register(key.HDSLiveEdge, 3, "Number of fragments from the live edge to begin playback at")
	register(key.HDSSegmentAttempts, 3, "Fetch attempts per HDS fragment before it is skipped")
	register(key.HDSSegmentThreads, 1, "Concurrent fragment fetchers per HDS stream")

	register(key.StreamDefault, []string{"best"}, "Ordered fallback list of stream names to open when no quality is given")
	register(key.StreamSortingExcludes, "", "Expression filtering stream names out of best/worst resolution,\ne.g. \">=720p\" or a regular expression")
	register(key.StreamSynonyms, map[string]string{}, "Additional quality aliases, e.g. 1080p60 = \"source\"")
	register(key.StreamRetryStreams, 0, "Seconds to wait between stream open retries; 0 disables waiting")
	register(key.StreamRetryOpen, 1, "Attempts to open the selected stream before giving up")
	register(key.StreamRingbufferSize, 16*1024*1024, "Ring buffer capacity in bytes for segmented streams")

	register(key.PlayerCommand, "mpv", "Media player command the stream is piped into")
	register(key.PlayerArgs, "", "Extra arguments appended to the player invocation")

	register(key.PluginDeferralDepth, 5, "Maximum depth of plugin-to-plugin URL deferral")

	register(key.RTMPCommand, "rtmpdump", "External helper used to open RTMP streams")
	register(key.MuxCommand, "ffmpeg", "External muxer used to combine sub-streams of a muxed stream")

	register(key.LogsWrite, false, "Additionally write logs to a dated file")
	register(key.LogsLevel, "warning", "Available options are: (from less to most verbose)\npanic, fatal, error, warn, info, debug, trace")
	register(key.LogsJson, false, "Use json format for logs")

	register(key.IconsVariant, "plain", "Icons variant.\nAvailable options are: emoji, nerd (nerd-font required), plain, kaomoji, squares")

	register(key.CliColored, true, "Enable colored CLI output")
	register(key.CliVersionCheck, true, "Enable automatic version check")
	register(key.CliInteractive, true, "Prompt for a quality when several streams are found and stdout is a terminal")
}

var prettyTemplate = lo.Must(template.New("pretty").Funcs(template.FuncMap{
	"faint":    style.Faint,
	"bold":     style.Bold,
	"purple":   style.Fg(color.Purple),
	"blue":     style.Fg(color.Blue),
	"cyan":     style.Fg(color.Cyan),
	"value":    func(k string) any { return viper.Get(k) },
	"typename": func(v any) string { return reflect.TypeOf(v).String() },
	"hl": func(v any) string {
		switch value := v.(type) {
		case bool:
			b := strconv.FormatBool(value)
			if value {
				return style.Fg(color.Green)(b)
			}
			return style.Fg(color.Red)(b)
		case string:
			return style.Fg(color.Yellow)(value)
		default:
			return fmt.Sprint(value)
		}
	},
}).Parse(`{{ faint .Description }}
{{ blue "Key:" }}     {{ purple .Key }}
{{ blue "Env:" }}     {{ .Env }}
{{ blue "Value:" }}   {{ hl (value .Key) }}
{{ blue "Default:" }} {{ hl (.Value) }}
{{ blue "Type:" }}    {{ typename .Value }}`))
