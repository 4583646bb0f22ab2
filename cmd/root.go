// Package cmd implements the command-line interface for strelay.
package cmd

import (
	"fmt"
	"os"
	"strings"

	cc "github.com/ivanpirog/coloredcobra"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/strelay-cli/strelay/constant"
	"github.com/strelay-cli/strelay/icon"
	"github.com/strelay-cli/strelay/key"
	"github.com/strelay-cli/strelay/log"
	"github.com/strelay-cli/strelay/util"
	"github.com/strelay-cli/strelay/version"
	"github.com/strelay-cli/strelay/where"
)

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print the application version")
	rootCmd.Flags().Bool("version-check", false, "Check for a newer release now and exit")

	rootCmd.Flags().Bool("json", false, "Print the resolved stream map as a JSON document and exit")
	rootCmd.Flags().Bool("stream-url", false, "Print the direct URL of the selected stream instead of opening it")
	rootCmd.Flags().StringP("output", "o", "", "Write the stream to a file instead of the player; '-' writes raw bytes to stdout")
	rootCmd.Flags().BoolP("force", "f", false, "Overwrite the output file if it already exists")
	rootCmd.Flags().StringP("record", "r", "", "Additionally write the stream to a file while it plays")

	rootCmd.Flags().StringP("player", "p", "", "Media player command the stream is piped into")
	lo.Must0(viper.BindPFlag(key.PlayerCommand, rootCmd.Flags().Lookup("player")))
	rootCmd.Flags().StringP("player-args", "a", "", "Extra arguments appended to the player invocation")
	lo.Must0(viper.BindPFlag(key.PlayerArgs, rootCmd.Flags().Lookup("player-args")))

	rootCmd.Flags().String("default-stream", "", "Comma-separated fallback list of stream names to open when no quality is given")
	rootCmd.Flags().String("stream-sorting-excludes", "", "Expression filtering stream names out of best/worst resolution")
	lo.Must0(viper.BindPFlag(key.StreamSortingExcludes, rootCmd.Flags().Lookup("stream-sorting-excludes")))
	rootCmd.Flags().Float64("retry-streams", 0, "Seconds to wait between attempts when no streams are found")
	lo.Must0(viper.BindPFlag(key.StreamRetryStreams, rootCmd.Flags().Lookup("retry-streams")))
	rootCmd.Flags().Int("retry-open", 1, "Attempts to open the selected stream before giving up")
	lo.Must0(viper.BindPFlag(key.StreamRetryOpen, rootCmd.Flags().Lookup("retry-open")))
	rootCmd.Flags().Int("ringbuffer-size", 0, "Ring buffer capacity in bytes for segmented streams")
	lo.Must0(viper.BindPFlag(key.StreamRingbufferSize, rootCmd.Flags().Lookup("ringbuffer-size")))

	rootCmd.Flags().String("http-proxy", "", "Proxy URL for all HTTP(S) requests")
	lo.Must0(viper.BindPFlag(key.HTTPProxy, rootCmd.Flags().Lookup("http-proxy")))
	rootCmd.Flags().StringToString("http-header", nil, "Additional header sent with every request, e.g. Referer=https://site.tld")
	lo.Must0(viper.BindPFlag(key.HTTPHeaders, rootCmd.Flags().Lookup("http-header")))
	rootCmd.Flags().StringToString("http-cookie", nil, "Additional cookie sent with every request")
	lo.Must0(viper.BindPFlag(key.HTTPCookies, rootCmd.Flags().Lookup("http-cookie")))
	rootCmd.Flags().String("http-cookies-file", "", "Path to a Netscape-format cookie jar loaded at startup")
	lo.Must0(viper.BindPFlag(key.HTTPCookiesFile, rootCmd.Flags().Lookup("http-cookies-file")))
	rootCmd.Flags().Float64("http-timeout", 60, "Read timeout in seconds for every HTTP request")
	lo.Must0(viper.BindPFlag(key.HTTPTimeout, rootCmd.Flags().Lookup("http-timeout")))
	rootCmd.Flags().String("http-user-agent", "", "Override the default User-Agent header")
	lo.Must0(viper.BindPFlag(key.HTTPUserAgent, rootCmd.Flags().Lookup("http-user-agent")))
	rootCmd.Flags().Bool("http-tls-impersonate", false, "Perform TLS handshakes with a browser ClientHello fingerprint")
	lo.Must0(viper.BindPFlag(key.HTTPTLSImpersonate, rootCmd.Flags().Lookup("http-tls-impersonate")))

	rootCmd.Flags().Int("hls-live-edge", 3, "Number of segments from the live edge to begin playback at")
	lo.Must0(viper.BindPFlag(key.HLSLiveEdge, rootCmd.Flags().Lookup("hls-live-edge")))
	rootCmd.Flags().Int("hls-segment-threads", 1, "Concurrent segment fetchers per HLS stream")
	lo.Must0(viper.BindPFlag(key.HLSSegmentThreads, rootCmd.Flags().Lookup("hls-segment-threads")))
	rootCmd.Flags().Int("hls-segment-attempts", 3, "Fetch attempts per HLS segment before it is skipped")
	lo.Must0(viper.BindPFlag(key.HLSSegmentAttempts, rootCmd.Flags().Lookup("hls-segment-attempts")))
	rootCmd.Flags().Int("hls-playlist-reload-attempts", 3, "Playlist reloads without progress before the stream is considered ended")
	lo.Must0(viper.BindPFlag(key.HLSPlaylistReloadAttempts, rootCmd.Flags().Lookup("hls-playlist-reload-attempts")))
	rootCmd.Flags().Float64("hls-start-offset", 0, "Seconds to skip from the beginning of a VOD stream")
	lo.Must0(viper.BindPFlag(key.HLSStartOffset, rootCmd.Flags().Lookup("hls-start-offset")))
	rootCmd.Flags().Float64("hls-duration", 0, "Limit playback to this many seconds")
	lo.Must0(viper.BindPFlag(key.HLSDuration, rootCmd.Flags().Lookup("hls-duration")))
	rootCmd.Flags().Bool("hls-filter-ads", true, "Discard segments classified as advertising")
	lo.Must0(viper.BindPFlag(key.HLSFilterAds, rootCmd.Flags().Lookup("hls-filter-ads")))
	rootCmd.Flags().Float64("hls-timeout", 60, "Fetch timeout in seconds for a single HLS segment")
	lo.Must0(viper.BindPFlag(key.HLSTimeout, rootCmd.Flags().Lookup("hls-timeout")))

	rootCmd.Flags().Int("hds-live-edge", 3, "Number of fragments from the live edge to begin playback at")
	lo.Must0(viper.BindPFlag(key.HDSLiveEdge, rootCmd.Flags().Lookup("hds-live-edge")))
	rootCmd.Flags().Int("hds-segment-threads", 1, "Concurrent fragment fetchers per HDS stream")
	lo.Must0(viper.BindPFlag(key.HDSSegmentThreads, rootCmd.Flags().Lookup("hds-segment-threads")))
	rootCmd.Flags().Int("hds-segment-attempts", 3, "Fetch attempts per HDS fragment before it is skipped")
	lo.Must0(viper.BindPFlag(key.HDSSegmentAttempts, rootCmd.Flags().Lookup("hds-segment-attempts")))

	rootCmd.PersistentFlags().String("loglevel", "", "Log severity: panic, fatal, error, warn, info, debug, trace")
	lo.Must0(viper.BindPFlag(key.LogsLevel, rootCmd.PersistentFlags().Lookup("loglevel")))
	rootCmd.PersistentFlags().Bool("interactive", true, "Prompt for a quality when several streams are found and the terminal allows it")
	lo.Must0(viper.BindPFlag(key.CliInteractive, rootCmd.PersistentFlags().Lookup("interactive")))
	rootCmd.PersistentFlags().Bool("auto-version-check", true, "Check for a newer release when displaying help or version output")
	lo.Must0(viper.BindPFlag(key.CliVersionCheck, rootCmd.PersistentFlags().Lookup("auto-version-check")))
	rootCmd.PersistentFlags().StringP("icons", "I", "", "Set the visual icon variant (e.g., nerd, emoji, plain)")
	lo.Must0(rootCmd.RegisterFlagCompletionFunc("icons", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return icon.AvailableVariants(), cobra.ShellCompDirectiveDefault
	}))
	lo.Must0(viper.BindPFlag(key.IconsVariant, rootCmd.PersistentFlags().Lookup("icons")))

	helpFunc := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		helpFunc(cmd, args)
		version.Notify()
	})

	// Initialize cleanup of localized temporary files on application startup.
	go func() {
		_ = util.Delete(where.Temp())
	}()
}

// rootCmd defines the entry point for the strelay application.
var rootCmd = &cobra.Command{
	Use:   constant.Strelay + " [URL] [STREAM]",
	Short: "Extract streams from various services and pipe them into a video player",
	Long: `strelay resolves a page URL into its underlying media streams and relays
the bytes into a media player, a file, or stdout.

The STREAM argument picks a quality by name (e.g. 720p, best, worst). When
omitted, the configured default list is consulted.`,
	Example: "  strelay https://example.tld/live best\n" +
		"  strelay --json hls://https://cdn.tld/master.m3u8\n" +
		"  strelay -o recording.ts https://example.tld/vod 1080p",
	Args: cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("version") {
			versionCmd.Run(versionCmd, nil)
			return
		}

		if cmd.Flags().Changed("version-check") {
			handleErr(checkLatestVersion(cmd))
			return
		}

		if len(args) == 0 {
			handleErr(cmd.Help())
			return
		}

		relay(cmd, args)
	},
}

// Execute initializes child command routing and processes the CLI entry point.
func Execute() {
	if viper.GetBool(key.CliColored) {
		cc.Init(&cc.Config{
			RootCmd:       rootCmd,
			Headings:      cc.HiCyan + cc.Bold + cc.Underline,
			Commands:      cc.HiYellow + cc.Bold,
			Example:       cc.Italic,
			ExecName:      cc.Bold,
			Flags:         cc.Bold,
			FlagsDataType: cc.Italic + cc.HiBlue,
		})
	}

	if err := rootCmd.Execute(); err != nil {
		handleErr(err)
	}
}

// handleErr reports a fatal error on stderr and exits with status 1.
func handleErr(err error) {
	if err != nil {
		log.Error(err)
		_, _ = fmt.Fprintf(os.Stderr, "error: %s\n", strings.Trim(err.Error(), " \n"))
		os.Exit(1)
	}
}
