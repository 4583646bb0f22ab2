package segment

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strelay-cli/strelay/log"
)

// State of an open segmented stream. Transitions are one-way.
type State int32

const (
	StateInit State = iota
	StateRunning
	StateDraining
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// DefaultJoinTimeout bounds how long Close waits for the pipeline goroutines
// before detaching.
const DefaultJoinTimeout = 30 * time.Second

// Config assembles the tuning of one pipeline run.
type Config struct {
	Worker      WorkerConfig
	Writer      WriterConfig
	BufferSize  int
	JoinTimeout time.Duration
}

// Reader is the byte stream of an open segmented presentation. Closing it is
// the single cancellation primitive: it closes the buffer, stops the worker,
// aborts in-flight fetches and joins the goroutines within a bounded timeout.
type Reader struct {
	buf    *Buffer
	cancel context.CancelFunc
	done   chan struct{}

	state       atomic.Int32
	closeOnce   sync.Once
	joinTimeout time.Duration
}

// Open spawns the Worker, Writer pool and Buffer for one segmented stream and
// returns the reading end. The returned Reader is in the running state; end
// of input moves it to draining, Close to closing, and a drained or closed
// buffer to closed.
func Open(ctx context.Context, src Source, fetcher Fetcher, cfg Config) *Reader {
	ctx, cancel := context.WithCancel(ctx)

	buf := NewBuffer(cfg.BufferSize)
	writerCfg := cfg.Writer.withDefaults()
	queue := make(chan Segment, 3*writerCfg.Pool)

	r := &Reader{
		buf:         buf,
		cancel:      cancel,
		done:        make(chan struct{}),
		joinTimeout: cfg.JoinTimeout,
	}
	if r.joinTimeout <= 0 {
		r.joinTimeout = DefaultJoinTimeout
	}
	r.state.Store(int32(StateRunning))

	worker := newWorker(src, cfg.Worker, queue)
	writer := newWriter(queue, buf, fetcher, writerCfg)

	go func() {
		defer close(r.done)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			worker.run(ctx)
		}()
		go func() {
			defer wg.Done()
			writer.run(ctx)
		}()
		wg.Wait()

		r.transition(StateRunning, StateDraining)
	}()

	return r
}

// Read blocks until bytes are available, the pipeline ends, or the reader is
// closed. After end of input it drains the buffer and then returns io.EOF.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.buf.Read(p)
	if err == io.EOF {
		r.state.Store(int32(StateClosed))
	}
	return n, err
}

// Close shuts the pipeline down: buffer first so blocked reads and writes
// wake, then the polling and fetching goroutines. It is idempotent and safe
// from any state.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.state.Store(int32(StateClosing))
		r.buf.Close()
		r.cancel()

		select {
		case <-r.done:
		case <-time.After(r.joinTimeout):
			log.Warnf("pipeline did not stop within %s, detaching", r.joinTimeout)
		}
		r.state.Store(int32(StateClosed))
	})
	return nil
}

// State returns the current pipeline state.
func (r *Reader) State() State {
	return State(r.state.Load())
}

func (r *Reader) transition(from, to State) {
	if r.state.CompareAndSwap(int32(from), int32(to)) {
		log.Tracef("pipeline %s -> %s", from, to)
	}
}
