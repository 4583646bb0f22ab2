// Package key defines the canonical set of configuration identifiers used for centralized settings management.
package key

// HTTP Session - these keys configure the shared HTTP client owned by the session.
const (
	HTTPTimeout        = "http.timeout"
	HTTPConnectTimeout = "http.connect_timeout"
	HTTPRetries        = "http.retries"
	HTTPRetryBackoff   = "http.retry_backoff"
	HTTPProxy          = "http.proxy"
	HTTPHeaders        = "http.headers"
	HTTPCookies        = "http.cookies"
	HTTPCookiesFile    = "http.cookies_file"
	HTTPUserAgent      = "http.user_agent"
	HTTPTLSImpersonate = "http.tls_impersonate"
)

// HLS Transport - these keys tune the segmented HLS pipeline.
const (
	HLSLiveEdge               = "hls.live_edge"
	HLSSegmentAttempts        = "hls.segment_attempts"
	HLSSegmentThreads         = "hls.segment_threads"
	HLSPlaylistReloadAttempts = "hls.playlist_reload_attempts"
	HLSTimeout                = "hls.timeout"
	HLSStartOffset            = "hls.start_offset"
	HLSDuration               = "hls.duration"
	HLSFilterAds              = "hls.filter_ads"
)

// DASH Transport - these keys tune the segmented DASH pipeline.
const (
	DASHSegmentAttempts = "dash.segment_attempts"
	DASHSegmentThreads  = "dash.segment_threads"
)

// HDS Transport - these keys tune the segmented HDS pipeline.
const (
	HDSLiveEdge        = "hds.live_edge"
	HDSSegmentAttempts = "hds.segment_attempts"
	HDSSegmentThreads  = "hds.segment_threads"
)

// Stream Selection - these keys govern quality resolution and retry behavior.
const (
	StreamDefault         = "stream.default"
	StreamSortingExcludes = "stream.sorting_excludes"
	StreamSynonyms        = "stream.synonyms"
	StreamRetryStreams    = "stream.retry_streams"
	StreamRetryOpen       = "stream.retry_open"
	StreamRingbufferSize  = "stream.ringbuffer_size"
)

// Media Playback - these keys configure the external player process.
const (
	PlayerCommand = "player.command"
	PlayerArgs    = "player.args"
)

// Plugin Dispatch - these keys govern URL resolution across the plugin registry.
const (
	PluginDeferralDepth = "plugin.deferral_depth"
)

// External Helpers - these keys locate helper binaries for non-HTTP transports.
const (
	RTMPCommand = "rtmp.command"
	MuxCommand  = "mux.command"
)

// Logging Infrastructure - these keys manage the application's internal diagnostics.
const (
	LogsWrite = "logs.write"
	LogsLevel = "logs.level"
	LogsJson  = "logs.json"
)

// CLI Execution Environment - these settings govern non-stream application behavior.
const (
	CliColored      = "cli.colored"
	CliVersionCheck = "cli.version_check"
	CliInteractive  = "cli.interactive"
)

// Icons - visual variant used for terminal feedback symbols.
const (
	IconsVariant = "icons.variant"
)
