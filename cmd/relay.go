// Package cmd implements the command-line interface for strelay.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/strelay-cli/strelay/filesystem"
	"github.com/strelay-cli/strelay/inline"
	"github.com/strelay-cli/strelay/key"
	"github.com/strelay-cli/strelay/log"
	"github.com/strelay-cli/strelay/player"
	"github.com/strelay-cli/strelay/plugin"
	"github.com/strelay-cli/strelay/session"
	"github.com/strelay-cli/strelay/stream"
	"github.com/strelay-cli/strelay/util"
)

// exitInterrupted is the conventional exit status for termination by SIGINT.
const exitInterrupted = 130

// relay is the main playback flow: resolve the URL, pick a stream, open it,
// and pump bytes into the selected sink until the stream ends or a signal
// arrives.
func relay(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := session.New()
	handleErr(err)

	if file := viper.GetString(key.HTTPCookiesFile); file != "" {
		handleErr(sess.SetOption(key.HTTPCookiesFile, file))
	}

	url := args[0]
	asJson := lo.Must(cmd.Flags().GetBool("json"))

	match, err := sess.ResolveURL(url)
	if err != nil {
		exitIfInterrupted(ctx, err)
		failResolution(asJson, err)
	}

	streams, err := resolveStreams(ctx, sess, url)
	if err != nil {
		exitIfInterrupted(ctx, err)
		failResolution(asJson, err)
	}

	if asJson {
		doc := &inline.Document{Plugin: match.Entry.Name, Streams: streams}
		encoder := json.NewEncoder(os.Stdout)
		handleErr(encoder.Encode(doc))
		return
	}

	quality := ""
	if len(args) == 2 {
		quality = args[1]
	}
	name, selected, err := chooseStream(cmd, streams, quality)
	if err != nil {
		exitIfInterrupted(ctx, err)
		handleErr(err)
	}
	log.Infof("opening stream: %s (%s)", name, selected.Shortname())

	if lo.Must(cmd.Flags().GetBool("stream-url")) {
		u, ok := selected.(stream.URLer)
		if !ok {
			handleErr(fmt.Errorf("the selected stream cannot be translated to a URL"))
		}
		direct, err := u.ToURL()
		handleErr(err)
		fmt.Println(direct)
		return
	}

	reader, err := openStream(ctx, selected)
	if err != nil {
		exitIfInterrupted(ctx, err)
		handleErr(err)
	}

	// The plugin may know the page title; the URL is the fallback the player
	// window shows otherwise.
	title := sess.Metadata().Title.OrElse(url)

	sink, finish, err := buildSink(cmd, title)
	if err != nil {
		_ = reader.Close()
		handleErr(err)
	}

	pumpErr := pump(ctx, reader, sink)
	_ = reader.Close()
	finishErr := finish()

	if ctx.Err() != nil {
		// Interrupted: the partial relay is intentional, not an error.
		fmt.Fprintln(os.Stderr, "Interrupted! Exiting...")
		os.Exit(exitInterrupted)
	}

	handleErr(pumpErr)
	handleErr(finishErr)
}

// interrupted reports whether a failure was caused by the user's interrupt
// rather than by the site or the stream.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

// exitIfInterrupted converts an interrupt observed before playback into the
// conventional SIGINT exit status instead of a failure report.
func exitIfInterrupted(ctx context.Context, err error) {
	if interrupted(ctx, err) {
		fmt.Fprintln(os.Stderr, "Interrupted! Exiting...")
		os.Exit(exitInterrupted)
	}
}

// failResolution reports a resolution failure, as JSON when requested.
func failResolution(asJson bool, err error) {
	if asJson {
		raw := lo.Must(json.Marshal(&inline.ErrorDocument{Error: err.Error()}))
		fmt.Println(string(raw))
		os.Exit(1)
	}
	handleErr(err)
}

// resolveStreams fetches the stream map, retrying while the URL yields no
// streams if a retry delay is configured.
func resolveStreams(ctx context.Context, sess *session.Session, url string) (*stream.Map, error) {
	delay := time.Duration(viper.GetFloat64(key.StreamRetryStreams) * float64(time.Second))

	for {
		streams, err := sess.Streams(ctx, url)
		if err == nil {
			return streams, nil
		}

		var noStreams *plugin.NoStreamsError
		if delay <= 0 || !errors.As(err, &noStreams) {
			return nil, err
		}

		log.Warnf("no streams found, retrying in %s", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// chooseStream resolves the requested quality into a concrete stream. With no
// explicit quality the configured default list is consulted; on an
// interactive terminal the user is prompted instead.
func chooseStream(cmd *cobra.Command, streams *stream.Map, quality string) (string, stream.Stream, error) {
	candidates := strings.Split(quality, ",")
	if quality == "" {
		candidates = viper.GetStringSlice(key.StreamDefault)
		if cmd.Flags().Changed("default-stream") {
			candidates = strings.Split(lo.Must(cmd.Flags().GetString("default-stream")), ",")
		}

		if viper.GetBool(key.CliInteractive) && util.IsTerminal(os.Stdin) && util.IsTerminal(os.Stdout) && streams.Len() > 1 {
			return promptStream(streams)
		}
	}

	var lastErr error
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}

		s, err := stream.Select(streams, candidate)
		if err == nil {
			return candidate, s, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no stream could be selected from: %s", strings.Join(streams.Names(), ", "))
	}
	return "", nil, lastErr
}

// promptStream asks the user to pick a quality from the available names.
func promptStream(streams *stream.Map) (string, stream.Stream, error) {
	names := streams.Names()

	defaultName := names[0]
	if _, ok := streams.Get(stream.NameBest); ok {
		defaultName = stream.NameBest
	}

	var choice string
	prompt := &survey.Select{
		Message: "Several streams were found, pick one",
		Options: names,
		Default: defaultName,
	}
	if err := survey.AskOne(prompt, &choice, survey.WithStdio(os.Stdin, os.Stderr, os.Stderr)); err != nil {
		return "", nil, err
	}

	selected, err := stream.Select(streams, choice)
	return choice, selected, err
}

// openStream opens the stream, retrying up to the configured attempt count.
func openStream(ctx context.Context, s stream.Stream) (io.ReadCloser, error) {
	attempts := viper.GetInt(key.StreamRetryOpen)
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		reader, err := s.Open(ctx)
		if err == nil {
			return reader, nil
		}

		lastErr = err
		log.Warnf("could not open stream (attempt %d/%d): %v", attempt, attempts, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
	return nil, fmt.Errorf("could not open stream: %w", lastErr)
}

// buildSink assembles the byte destination: a player process, an output file,
// or stdout, optionally teed into a recording file. The returned finish
// function flushes and closes everything the sink owns.
func buildSink(cmd *cobra.Command, title string) (io.Writer, func() error, error) {
	var (
		output = lo.Must(cmd.Flags().GetString("output"))
		record = lo.Must(cmd.Flags().GetString("record"))
		force  = lo.Must(cmd.Flags().GetBool("force"))

		sink    io.Writer
		closers []func() error
	)

	switch output {
	case "-":
		sink = os.Stdout
	case "":
		command := viper.GetString(key.PlayerCommand)
		checkPlayer(command)

		proc, err := player.New(command, viper.GetString(key.PlayerArgs), title)
		if err != nil {
			return nil, nil, err
		}
		if err := proc.Start(); err != nil {
			return nil, nil, err
		}

		sink = proc.Stdin()
		closers = append(closers, func() error {
			_ = proc.Stdin().Close()
			select {
			case <-proc.Done():
			case <-time.After(time.Second):
				_ = proc.Close()
			}
			return nil
		})
	default:
		f, err := createOutputFile(output, force)
		if err != nil {
			return nil, nil, err
		}
		sink = f
		closers = append(closers, f.Close)
	}

	if record != "" {
		f, err := createOutputFile(record, force)
		if err != nil {
			return nil, nil, err
		}
		sink = io.MultiWriter(sink, f)
		closers = append(closers, f.Close)
	}

	finish := func() error {
		var firstErr error
		for _, close := range closers {
			if err := close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	return sink, finish, nil
}

// createOutputFile creates a destination file, refusing to overwrite an
// existing one unless forced.
func createOutputFile(path string, force bool) (io.WriteCloser, error) {
	fs := filesystem.API()

	if !force {
		exists, err := fs.Exists(path)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("file %s already exists, use --force to overwrite it", path)
		}
	}

	return fs.Create(path)
}

// pump copies stream bytes into the sink until the stream ends or the context
// is cancelled. Cancellation closes the reader to unblock the copy.
func pump(ctx context.Context, reader io.ReadCloser, sink io.Writer) error {
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(sink, reader)
		done <- err
	}()

	select {
	case <-ctx.Done():
		_ = reader.Close()
		<-done
		return nil
	case err := <-done:
		if err != nil && !errors.Is(err, syscall.EPIPE) {
			return &stream.Error{Err: err}
		}
		return nil
	}
}
