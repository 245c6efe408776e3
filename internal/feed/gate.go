package feed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Gate turns bytes written to a named pipe into wake-ups. Each byte read is
// one wake.
type Gate struct {
	path string
	f    *os.File
	buf  [1]byte
}

// OpenGate creates the FIFO if needed and opens it. The FIFO is opened
// read-write so the open does not wait for a producer and a restarting
// producer never delivers end-of-file.
func OpenGate(path string) (*Gate, error) {
	if err := ensureFIFO(path); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open fifo: %w", err)
	}
	return &Gate{path: path, f: f}, nil
}

func ensureFIFO(path string) error {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.Mode()&fs.ModeNamedPipe == 0 {
			return fmt.Errorf("%s exists and is not a FIFO", path)
		}
		return nil
	case errors.Is(err, fs.ErrNotExist):
		if err := unix.Mkfifo(path, 0o666); err != nil && !errors.Is(err, unix.EEXIST) {
			return fmt.Errorf("mkfifo %s: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("stat fifo: %w", err)
	}
}

// Path returns the FIFO path.
func (g *Gate) Path() string { return g.path }

// Wait blocks until the producer writes a byte or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	if err := g.f.SetReadDeadline(time.Time{}); err != nil {
		return fmt.Errorf("reset fifo deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = g.f.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		n, err := g.f.Read(g.buf[:])
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return fmt.Errorf("read fifo: %w", err)
		}
		if n == 1 {
			return nil
		}
	}
}

// Close releases the FIFO. The file on disk is left for the producer.
func (g *Gate) Close() error {
	return g.f.Close()
}
