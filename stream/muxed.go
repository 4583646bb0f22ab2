package stream

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/samber/lo"

	"github.com/strelay-cli/strelay/log"
)

// Muxed combines separate elementary streams (typically video plus audio)
// into one MPEG-TS output by piping each substream into an ffmpeg process
// through an inherited file descriptor.
type Muxed struct {
	command    string
	substreams []Stream
}

func NewMuxed(command string, substreams ...Stream) *Muxed {
	if command == "" {
		command = "ffmpeg"
	}
	return &Muxed{command: command, substreams: substreams}
}

func (s *Muxed) Shortname() string { return "muxed-stream" }

func (s *Muxed) Open(ctx context.Context) (io.ReadCloser, error) {
	readers := make([]io.ReadCloser, 0, len(s.substreams))
	closeAll := func() {
		for _, r := range readers {
			r.Close()
		}
	}

	for _, sub := range s.substreams {
		r, err := sub.Open(ctx)
		if err != nil {
			closeAll()
			return nil, err
		}
		readers = append(readers, r)
	}

	args := []string{"-nostats", "-y"}
	pipes := make([]*os.File, 0, len(readers))
	// fd 3 is the first inherited descriptor after stdio.
	for i := range readers {
		args = append(args, "-i", fmt.Sprintf("pipe:%d", 3+i))
	}
	args = append(args,
		"-c:v", "copy",
		"-c:a", "copy",
		"-f", "mpegts",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, s.command, args...)
	for _, r := range readers {
		pr, pw, err := os.Pipe()
		if err != nil {
			closeAll()
			lo.ForEach(pipes, func(p *os.File, _ int) { p.Close() })
			return nil, &Error{Err: err}
		}
		pipes = append(pipes, pr)
		cmd.ExtraFiles = append(cmd.ExtraFiles, pr)

		go func(src io.ReadCloser, dst *os.File) {
			defer dst.Close()
			if _, err := io.Copy(dst, src); err != nil {
				log.Debugf("substream copy ended: %v", err)
			}
		}(r, pw)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		closeAll()
		return nil, &Error{Err: err}
	}
	if err := cmd.Start(); err != nil {
		closeAll()
		return nil, &Error{Err: fmt.Errorf("starting %s: %w", s.command, err)}
	}
	// The parent's copies of the read ends must close so ffmpeg sees EOF
	// when the writers finish.
	lo.ForEach(pipes, func(p *os.File, _ int) { p.Close() })

	return &muxedReader{
		processReader: processReader{ReadCloser: stdout, cmd: cmd},
		substreams:    readers,
	}, nil
}

type muxedReader struct {
	processReader
	substreams []io.ReadCloser
}

func (r *muxedReader) Close() error {
	for _, s := range r.substreams {
		s.Close()
	}
	return r.processReader.Close()
}
