package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/strelay-cli/strelay/log"
	"github.com/strelay-cli/strelay/network"
)

// HTTP is a progressive stream read straight off a single URL.
type HTTP struct {
	client  *network.Client
	url     string
	headers map[string]string
}

func NewHTTP(client *network.Client, url string, headers map[string]string) *HTTP {
	return &HTTP{client: client, url: url, headers: headers}
}

func (s *HTTP) Shortname() string { return "http" }

func (s *HTTP) ToURL() (string, error) { return s.url, nil }

func (s *HTTP) Open(ctx context.Context) (io.ReadCloser, error) {
	body, resp, err := s.open(ctx, 0)
	if err != nil {
		return nil, err
	}
	return &httpReader{
		stream:  s,
		ctx:     ctx,
		body:    body,
		canSeek: resp.Header.Get("Accept-Ranges") == "bytes",
	}, nil
}

func (s *HTTP) open(ctx context.Context, offset int64) (io.ReadCloser, *http.Response, error) {
	headers := make(map[string]string, len(s.headers)+1)
	for k, v := range s.headers {
		headers[k] = v
	}
	if offset > 0 {
		headers["Range"] = fmt.Sprintf("bytes=%d-", offset)
	}

	resp, err := s.client.Stream(ctx, http.MethodGet, s.url, &network.Options{Headers: headers, RaiseForStatus: true})
	if err != nil {
		return nil, nil, &Error{Err: err}
	}
	if offset > 0 && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, nil, &Error{Err: fmt.Errorf("server ignored range request (status %d)", resp.StatusCode)}
	}
	return resp.Body, resp, nil
}

// httpReader resumes a dropped connection with a Range request when the
// server advertised byte-range support; otherwise a mid-stream error is
// surfaced as-is.
type httpReader struct {
	stream  *HTTP
	ctx     context.Context
	body    io.ReadCloser
	offset  int64
	canSeek bool
}

func (r *httpReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	r.offset += int64(n)

	if err != nil && err != io.EOF && r.canSeek {
		log.Warnf("connection dropped at byte %d, resuming: %v", r.offset, err)
		r.body.Close()

		body, _, openErr := r.stream.open(r.ctx, r.offset)
		if openErr != nil {
			return n, err
		}
		r.body = body
		return n, nil
	}
	return n, err
}

func (r *httpReader) Close() error { return r.body.Close() }
