package feed

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/sys/unix"
)

// Defaults shared with the producer.
const (
	DefaultShmPath    = "/dev/shm/eth_price_shm"
	DefaultFIFOPath   = "/tmp/eth_price_pipe"
	DefaultRegionSize = 32
)

// Common errors for feed operations
var (
	// ErrRegionMissing is returned when the shared-memory file does not exist
	ErrRegionMissing = errors.New("shared memory region not found")

	// ErrRegionTooSmall is returned when the file is shorter than the mapping
	ErrRegionTooSmall = errors.New("shared memory region too small")

	// ErrBadSample is returned when the region does not hold a price
	ErrBadSample = errors.New("invalid price sample")
)

// Region is a read-only memory mapping of the producer's price buffer.
type Region struct {
	path string
	data []byte
}

// OpenRegion maps the first size bytes of path. The producer must have
// created the file already.
func OpenRegion(path string, size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid region size: %d", size)
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRegionMissing, path)
		}
		return nil, fmt.Errorf("open shared memory: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat shared memory: %w", err)
	}
	if info.Size() < int64(size) {
		return nil, fmt.Errorf("%w: %s is %d bytes, need %d", ErrRegionTooSmall, path, info.Size(), size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	return &Region{path: path, data: data}, nil
}

// Path returns the mapped file.
func (r *Region) Path() string { return r.path }

// Snapshot copies the current contents of the region.
func (r *Region) Snapshot() []byte {
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out
}

// Close unmaps the region.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}

// ParsePrice decodes a null-padded decimal price such as "1500.00\x00\x00".
func ParsePrice(raw []byte) (float64, error) {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	if !utf8.Valid(raw) {
		return 0, fmt.Errorf("%w: not UTF-8", ErrBadSample)
	}

	text := strings.TrimSpace(string(raw))
	price, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadSample, text)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrBadSample, text)
	}
	// Checkpoints are rounded to int64.
	if math.Abs(price) >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q is out of range", ErrBadSample, text)
	}
	return price, nil
}
