package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheClosed is returned after Close
	ErrCacheClosed = errors.New("cache closed")
)

// Stats holds cache counters.
type Stats struct {
	Capacity  int64 // Maximum size on disk in bytes
	Size      int64 // Current size on disk in bytes
	ItemCount int64
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64

	LastAccess time.Time
	LastEvict  time.Time
}

// String renders the stats for humans.
func (s Stats) String() string {
	return fmt.Sprintf("%d entries, %s of %s, %d hits, %d misses",
		s.ItemCount,
		humanize.Bytes(uint64(max(s.Size, 0))),
		humanize.Bytes(uint64(max(s.Capacity, 0))),
		s.Hits, s.Misses)
}

// Config holds disk cache settings.
type Config struct {
	Path             string
	Capacity         int64 // Bytes
	CompressionLevel int   // Zstd level, 0 disables compression
}

// DefaultConfig returns defaults sized for a handful of short clips.
func DefaultConfig(path string) Config {
	return Config{
		Path:             path,
		Capacity:         16 * 1024 * 1024, // 16MB
		CompressionLevel: 3,
	}
}

// Key derives a stable cache key from its parts.
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(hash[:])
}
