package audio

import (
	"errors"
	"testing"
	"time"
)

func TestPCMBufferReadWrite(t *testing.T) {
	buf := newPCMBuffer(8)

	if _, err := buf.Write([]byte{1, 2, 3, 4, 5}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if buf.Len() != 5 {
		t.Errorf("Len = %d, want 5", buf.Len())
	}

	p := make([]byte, 3)
	n, eof := buf.readAvailable(p)
	if n != 3 || eof {
		t.Fatalf("readAvailable = (%d, %v), want (3, false)", n, eof)
	}
	if p[0] != 1 || p[2] != 3 {
		t.Errorf("unexpected bytes %v", p)
	}

	// Wraps around the end of the ring.
	if _, err := buf.Write([]byte{6, 7, 8, 9, 10}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	p = make([]byte, 16)
	n, _ = buf.readAvailable(p)
	want := []byte{4, 5, 6, 7, 8, 9, 10}
	if n != len(want) {
		t.Fatalf("read %d bytes, want %d", n, len(want))
	}
	for i, b := range want {
		if p[i] != b {
			t.Errorf("byte %d = %d, want %d", i, p[i], b)
		}
	}
}

func TestPCMBufferWriteBlocksUntilRead(t *testing.T) {
	buf := newPCMBuffer(4)
	done := make(chan struct{})

	go func() {
		defer close(done)
		if _, err := buf.Write([]byte{1, 2, 3, 4, 5, 6}); err != nil {
			t.Errorf("Write failed: %v", err)
		}
	}()

	select {
	case <-done:
		t.Fatal("Write should block while the ring is full")
	case <-time.After(50 * time.Millisecond):
	}

	p := make([]byte, 4)
	buf.readAvailable(p)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Write did not resume after space was freed")
	}
}

func TestPCMBufferCloseWrite(t *testing.T) {
	buf := newPCMBuffer(4)
	if _, err := buf.Write([]byte{1, 2}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	buf.closeWrite()

	if _, err := buf.Write([]byte{3}); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Write after close = %v, want ErrSinkClosed", err)
	}

	p := make([]byte, 4)
	n, eof := buf.readAvailable(p)
	if n != 2 || !eof {
		t.Errorf("readAvailable = (%d, %v), want (2, true)", n, eof)
	}

	drained := make(chan struct{})
	go func() {
		if !buf.waitDrained(time.Second) {
			t.Error("waitDrained reported leftover bytes")
		}
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("waitDrained blocked on an empty buffer")
	}
}

func TestPCMBufferWaitDrainedGivesUp(t *testing.T) {
	buf := newPCMBuffer(8)
	if _, err := buf.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	buf.closeWrite()

	// Nothing reads, as with a stalled device callback.
	start := time.Now()
	if buf.waitDrained(30 * time.Millisecond) {
		t.Error("waitDrained reported drained with bytes still buffered")
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond || elapsed > time.Second {
		t.Errorf("waitDrained returned after %v, want about 30ms", elapsed)
	}
	if buf.Len() != 3 {
		t.Errorf("Len = %d, want 3", buf.Len())
	}
}
