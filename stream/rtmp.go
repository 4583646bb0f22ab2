package stream

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"strings"

	"github.com/strelay-cli/strelay/log"
)

// RTMP shells out to an rtmpdump-compatible tool and relays its stdout.
type RTMP struct {
	command string
	params  map[string]string
}

// NewRTMP builds an RTMP stream. params holds rtmpdump options keyed by their
// long flag names ("rtmp", "playpath", "swfVfy", "live", ...); the "rtmp" key
// is mandatory.
func NewRTMP(command string, params map[string]string) *RTMP {
	if command == "" {
		command = "rtmpdump"
	}
	return &RTMP{command: command, params: params}
}

func (s *RTMP) Shortname() string { return "rtmp" }

func (s *RTMP) ToURL() (string, error) {
	u, ok := s.params["rtmp"]
	if !ok {
		return "", fmt.Errorf("rtmp stream carries no url")
	}
	return u, nil
}

func (s *RTMP) Open(ctx context.Context) (io.ReadCloser, error) {
	args := []string{"--flv", "-"}
	for k, v := range s.params {
		if v == "" {
			args = append(args, "--"+k)
		} else {
			args = append(args, "--"+k, v)
		}
	}

	cmd := exec.CommandContext(ctx, s.command, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &Error{Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &Error{Err: fmt.Errorf("starting %s: %w", s.command, err)}
	}
	log.Debugf("spawned %s (pid %d)", s.command, cmd.Process.Pid)

	return &processReader{ReadCloser: stdout, cmd: cmd}, nil
}

// processReader reaps the child on Close so no zombie survives the stream.
type processReader struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (r *processReader) Close() error {
	err := r.ReadCloser.Close()
	if r.cmd.Process != nil {
		r.cmd.Process.Kill()
	}
	r.cmd.Wait()
	return err
}

// RTMPURL is the decomposition of an rtmp:// URL into the parts rtmpdump
// takes separately.
type RTMPURL struct {
	Scheme   string
	Host     string
	Port     string
	App      string
	Playpath string
}

// String reassembles the URL; ParseRTMPURL(u).String() == u for any URL
// ParseRTMPURL accepts.
func (u RTMPURL) String() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(u.Host)
	if u.Port != "" {
		b.WriteString(":")
		b.WriteString(u.Port)
	}
	b.WriteString("/")
	b.WriteString(u.App)
	if u.Playpath != "" {
		b.WriteString("/")
		b.WriteString(u.Playpath)
	}
	return b.String()
}

// ParseRTMPURL splits an rtmp URL into host, app and playpath. The app is the
// first path segment; everything after it is the playpath.
func ParseRTMPURL(raw string) (RTMPURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return RTMPURL{}, err
	}
	switch u.Scheme {
	case "rtmp", "rtmpe", "rtmps", "rtmpt", "rtmpte":
	default:
		return RTMPURL{}, fmt.Errorf("not an rtmp url: %s", raw)
	}

	path := strings.TrimPrefix(u.Path, "/")
	app, playpath, _ := strings.Cut(path, "/")
	if u.RawQuery != "" {
		playpath += "?" + u.RawQuery
	}

	return RTMPURL{
		Scheme:   u.Scheme,
		Host:     u.Hostname(),
		Port:     u.Port(),
		App:      app,
		Playpath: playpath,
	}, nil
}
