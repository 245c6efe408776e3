package audio

import (
	"sync"
	"time"
)

// pcmBuffer is a bounded ring of PCM bytes shared between a writer that may
// block and a device-side reader that never does.
type pcmBuffer struct {
	data     []byte
	size     int
	readPos  int
	writePos int
	count    int
	closed   bool

	mu   sync.Mutex
	cond *sync.Cond
}

func newPCMBuffer(size int) *pcmBuffer {
	b := &pcmBuffer{
		data: make([]byte, size),
		size: size,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Write copies p into the ring, waiting for space as needed.
func (b *pcmBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	written := 0
	for written < len(p) {
		for b.count == b.size && !b.closed {
			b.cond.Wait()
		}
		if b.closed {
			return written, ErrSinkClosed
		}

		n := min(len(p)-written, b.size-b.count)
		for i := 0; i < n; i++ {
			b.data[b.writePos] = p[written+i]
			b.writePos = (b.writePos + 1) % b.size
		}
		b.count += n
		written += n
		b.cond.Broadcast()
	}
	return written, nil
}

// readAvailable copies up to len(p) buffered bytes. eof reports that the
// writer has closed and nothing is left.
func (b *pcmBuffer) readAvailable(p []byte) (n int, eof bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n = min(len(p), b.count)
	for i := 0; i < n; i++ {
		p[i] = b.data[b.readPos]
		b.readPos = (b.readPos + 1) % b.size
	}
	b.count -= n
	if n > 0 {
		b.cond.Broadcast()
	}
	return n, b.closed && b.count == 0
}

// closeWrite stops further writes. Buffered bytes remain readable.
func (b *pcmBuffer) closeWrite() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

// waitDrained blocks until every buffered byte has been read or timeout
// passes, and reports whether the buffer drained.
func (b *pcmBuffer) waitDrained(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer timer.Stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for b.count > 0 && time.Now().Before(deadline) {
		b.cond.Wait()
	}
	return b.count == 0
}

// Len returns the number of buffered bytes.
func (b *pcmBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
