package segment

import (
	"io"
	"sync"
)

// DefaultBufferSize is the ring capacity used when none is configured.
const DefaultBufferSize = 16 * 1024 * 1024

// Buffer is a bounded byte ring with blocking reads and writes. Writes into a
// full ring block until the reader catches up; reads from an empty ring block
// until data arrives or the ring is closed. A paused ring blocks readers
// without delivering EOF, which is how filtered content is skipped silently.
type Buffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	data   []byte
	head   int
	length int

	closed bool
	paused bool
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	b := &Buffer{data: make([]byte, capacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// Cap returns the ring capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Read copies up to len(p) buffered bytes. It blocks while the ring is empty
// or paused; once the ring is closed it drains the remainder and then
// returns io.EOF.
func (b *Buffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for (b.length == 0 || b.paused) && !b.closed {
		b.cond.Wait()
	}
	if b.length == 0 {
		return 0, io.EOF
	}

	n := min(len(p), b.length)
	tail := min(n, len(b.data)-b.head)
	copy(p[:tail], b.data[b.head:b.head+tail])
	copy(p[tail:n], b.data[:n-tail])

	b.head = (b.head + n) % len(b.data)
	b.length -= n
	b.cond.Broadcast()
	return n, nil
}

// Write copies p into the ring, blocking while it is full. Writes after Close
// are dropped and report io.ErrClosedPipe.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	written := 0
	for written < len(p) {
		for b.length == len(b.data) && !b.closed {
			b.cond.Wait()
		}
		if b.closed {
			return written, io.ErrClosedPipe
		}

		n := min(len(p)-written, len(b.data)-b.length)
		pos := (b.head + b.length) % len(b.data)
		tail := min(n, len(b.data)-pos)
		copy(b.data[pos:pos+tail], p[written:written+tail])
		copy(b.data[:n-tail], p[written+tail:written+n])

		b.length += n
		written += n
		b.cond.Broadcast()
	}
	return written, nil
}

// Pause latches the ring into the paused state: readers block without EOF.
func (b *Buffer) Pause() {
	b.mu.Lock()
	b.paused = true
	b.mu.Unlock()
}

// Resume releases the pause latch.
func (b *Buffer) Resume() {
	b.mu.Lock()
	b.paused = false
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Close wakes every blocked reader and writer. It is idempotent. Buffered
// bytes stay readable until drained.
func (b *Buffer) Close() error {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
