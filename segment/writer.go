package segment

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/strelay-cli/strelay/log"
)

// Fetcher retrieves segment payloads and, for encrypted presentations, key
// material. Implementations are format-specific; the Writer never builds
// URLs itself.
type Fetcher interface {
	Fetch(ctx context.Context, s Segment) (io.ReadCloser, error)
	FetchKey(ctx context.Context, uri string) ([]byte, error)
}

// FilterFunc classifies a segment's content as skippable (ads). Filtered
// segments are discarded and the buffer pauses instead of delivering them.
type FilterFunc func(s Segment) bool

// WriterConfig tunes the concurrent fetch half of the pipeline.
type WriterConfig struct {
	// Pool is the number of concurrent segment fetches.
	Pool int

	// Attempts is how many times one segment is tried before being
	// skipped with a warning.
	Attempts int

	// Filter marks segments to drop through the pause latch.
	Filter FilterFunc
}

func (c *WriterConfig) withDefaults() WriterConfig {
	out := *c
	if out.Pool <= 0 {
		out.Pool = 1
	}
	if out.Attempts <= 0 {
		out.Attempts = 3
	}
	return out
}

// Writer drains the segment queue through a bounded fetch pool and commits
// payloads into the buffer in strictly increasing segment order, even though
// fetches run in parallel. A segment that exhausts its retries releases its
// slot so later segments are never blocked behind it.
type Writer struct {
	in  <-chan Segment
	buf *Buffer
	cfg WriterConfig

	fetcher Fetcher

	keyMu  sync.Mutex
	keys   map[string][]byte
	paused bool
}

func newWriter(in <-chan Segment, buf *Buffer, fetcher Fetcher, cfg WriterConfig) *Writer {
	return &Writer{in: in, buf: buf, cfg: cfg.withDefaults(), fetcher: fetcher, keys: make(map[string][]byte)}
}

type fetchJob struct {
	seg  Segment
	data []byte
	done chan struct{}
}

// run owns both halves: a dispatcher feeding the fetch pool and an in-order
// commit loop. The queue is bounded at 3x the pool size so a slow reader
// cannot grow memory without bound. run closes the buffer on return.
func (wr *Writer) run(ctx context.Context) {
	defer wr.buf.Close()

	queue := make(chan *fetchJob, 3*wr.cfg.Pool)
	sem := make(chan struct{}, wr.cfg.Pool)

	var pool sync.WaitGroup
	go func() {
		defer close(queue)
		for seg := range wr.in {
			job := &fetchJob{seg: seg, done: make(chan struct{})}

			select {
			case queue <- job:
			case <-ctx.Done():
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				close(job.done)
				return
			}

			pool.Add(1)
			go func() {
				defer pool.Done()
				defer func() { <-sem }()
				defer close(job.done)
				job.data = wr.fetch(ctx, job.seg)
			}()
		}
	}()
	defer pool.Wait()

	for job := range queue {
		select {
		case <-job.done:
		case <-ctx.Done():
			return
		}
		if job.data == nil {
			continue
		}
		if !wr.commit(job.seg, job.data) {
			return
		}
	}
}

// fetch retrieves and decrypts one segment, retrying up to the configured
// attempt count. nil means the segment is skipped.
func (wr *Writer) fetch(ctx context.Context, s Segment) []byte {
	var lastErr error
	for attempt := 1; attempt <= wr.cfg.Attempts; attempt++ {
		if ctx.Err() != nil {
			return nil
		}

		data, err := wr.fetchOnce(ctx, s)
		if err == nil {
			return data
		}
		lastErr = err
		log.Debugf("segment %d attempt %d/%d failed: %v", s.Num, attempt, wr.cfg.Attempts, err)
	}
	log.Warnf("skipping segment %d after %d attempts: %v", s.Num, wr.cfg.Attempts, lastErr)
	return nil
}

func (wr *Writer) fetchOnce(ctx context.Context, s Segment) ([]byte, error) {
	body, err := wr.fetcher.Fetch(ctx, s)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	if s.Key.Encrypted() {
		data, err = wr.decrypt(ctx, s, data)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

// decrypt applies AES-128-CBC with the segment's key. The IV is the key tag's
// explicit value or, absent that, the segment number as a big-endian 128-bit
// integer.
func (wr *Writer) decrypt(ctx context.Context, s Segment, data []byte) ([]byte, error) {
	if s.Key.Method != "AES-128" {
		return nil, fmt.Errorf("unsupported encryption method %q", s.Key.Method)
	}

	key, err := wr.key(ctx, s.Key.URI)
	if err != nil {
		return nil, fmt.Errorf("fetching key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv := s.Key.IV
	if len(iv) == 0 {
		iv = make([]byte, aes.BlockSize)
		binary.BigEndian.PutUint64(iv[8:], uint64(s.Num))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("bad iv length %d", len(iv))
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d not block-aligned", len(data))
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return unpadPKCS7(out)
}

func (wr *Writer) key(ctx context.Context, uri string) ([]byte, error) {
	wr.keyMu.Lock()
	cached, ok := wr.keys[uri]
	wr.keyMu.Unlock()
	if ok {
		return cached, nil
	}

	key, err := wr.fetcher.FetchKey(ctx, uri)
	if err != nil {
		return nil, err
	}
	if len(key) != 16 {
		return nil, fmt.Errorf("bad key length %d", len(key))
	}

	wr.keyMu.Lock()
	wr.keys[uri] = key
	wr.keyMu.Unlock()
	return key, nil
}

func unpadPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	pad := int(data[len(data)-1])
	if pad < 1 || pad > aes.BlockSize || pad > len(data) {
		return nil, fmt.Errorf("bad pkcs7 padding %d", pad)
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			// Not actually padded; TS payloads are often exact
			// multiples of the block size.
			return data, nil
		}
	}
	return data[:len(data)-pad], nil
}

// commit pushes one segment's bytes through the filter gate into the buffer.
// It reports false when the buffer is closed.
func (wr *Writer) commit(s Segment, data []byte) bool {
	if s.Discontinuity {
		wr.keyMu.Lock()
		wr.keys = make(map[string][]byte)
		wr.keyMu.Unlock()
	}

	if !s.Init && wr.cfg.Filter != nil && wr.cfg.Filter(s) {
		if !wr.paused {
			log.Debugf("filtered content at segment %d, pausing output", s.Num)
			wr.buf.Pause()
			wr.paused = true
		}
		return true
	}
	if wr.paused {
		log.Debugf("filtered content ended at segment %d, resuming output", s.Num)
		wr.buf.Resume()
		wr.paused = false
	}

	if _, err := wr.buf.Write(data); err != nil {
		return false
	}
	log.Tracef("wrote segment %d (%d bytes)", s.Num, len(data))
	return true
}
