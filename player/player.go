// Package player spawns the external media player process and feeds it stream
// bytes over stdin.
package player

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/strelay-cli/strelay/log"
)

// Process is a running player invocation. Stream bytes are written to Stdin;
// Done is closed when the player exits.
type Process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}
	err   error
}

// New builds a player invocation from the configured command and extra
// arguments. extraArgs is split shell-style, so quoted arguments survive.
// A trailing "-" tells the player to read from stdin.
func New(command, extraArgs, title string) (*Process, error) {
	if command == "" {
		return nil, fmt.Errorf("player command is empty")
	}

	args, err := shellquote.Split(extraArgs)
	if err != nil {
		return nil, fmt.Errorf("splitting player arguments: %w", err)
	}

	args = append(args, titleArgs(command, title)...)
	args = append(args, "-")

	cmd := exec.Command(command, args...)
	// The player's own chatter must not mix with stream bytes on stdout.
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = sysProcAttr()

	return &Process{cmd: cmd, done: make(chan struct{})}, nil
}

// titleArgs returns the player-specific flag that sets the window title, for
// the players that have one.
func titleArgs(command, title string) []string {
	if title == "" {
		return nil
	}

	base := strings.TrimSuffix(filepath.Base(command), ".exe")
	switch base {
	case "mpv":
		return []string{"--force-media-title=" + title}
	case "iina":
		return []string{"--mpv-force-media-title=" + title}
	case "vlc":
		return []string{"--input-title-format", title}
	default:
		return nil
	}
}

// Start launches the player. The returned process must be closed.
func (p *Process) Start() error {
	stdin, err := p.cmd.StdinPipe()
	if err != nil {
		return err
	}
	p.stdin = stdin

	log.Debugf("starting player: %s", strings.Join(p.cmd.Args, " "))
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("starting player %s: %w", p.cmd.Path, err)
	}

	go func() {
		p.err = p.cmd.Wait()
		close(p.done)
	}()
	return nil
}

// Stdin is the pipe stream bytes are written into. Closing it signals
// end-of-stream to the player.
func (p *Process) Stdin() io.WriteCloser {
	return p.stdin
}

// Done is closed when the player process exits, however it exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Err reports the player's exit error; valid once Done is closed.
func (p *Process) Err() error {
	return p.err
}

// Close kills the player process group and reaps it. Closing an already
// exited player is a no-op.
func (p *Process) Close() error {
	if p.stdin != nil {
		_ = p.stdin.Close()
	}

	select {
	case <-p.done:
		return nil
	default:
		return killProcess(p.cmd)
	}
}
