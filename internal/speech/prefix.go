package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/text/cases"

	"github.com/dgnsrekt/tickspeak/internal/audio"
	"github.com/dgnsrekt/tickspeak/internal/cache"
	"github.com/dgnsrekt/tickspeak/internal/synth"
)

// DefaultPhrases are the lead-ins every alert starts with.
var DefaultPhrases = []string{"Starting price checkpoint", "up to", "down to"}

// DefaultPrefixSamples is the clip length kept per phrase.
const DefaultPrefixSamples = 2400

// ClipStore persists lead-in clips between runs.
type ClipStore interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
}

// PrefixOptions configures BuildPrefixCache.
type PrefixOptions struct {
	Phrases    []string
	Voice      string
	SampleRate int
	MaxSamples int
	// Store is optional.
	Store  ClipStore
	Logger *log.Logger
}

// PrefixCache maps lead-in phrases to short pre-rendered clips. It is
// immutable after construction and safe for concurrent lookups.
type PrefixCache struct {
	entries []prefixEntry
}

type prefixEntry struct {
	phrase string
	folded string
	clip   audio.Chunk
}

// fold normalizes case for prefix comparison.
func fold(s string) string {
	return cases.Fold().String(s)
}

// BuildPrefixCache renders the first chunk of every phrase. A phrase that
// fails to render is logged and left out.
func BuildPrefixCache(ctx context.Context, provider synth.Provider, opts PrefixOptions) *PrefixCache {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = DefaultPrefixSamples
	}

	pc := &PrefixCache{}
	seen := make(map[string]bool)

	for _, phrase := range opts.Phrases {
		folded := fold(phrase)
		if strings.TrimSpace(phrase) == "" || seen[folded] {
			continue
		}
		seen[folded] = true

		key := cache.Key(provider.Name(), opts.Voice,
			strconv.Itoa(opts.SampleRate), strconv.Itoa(opts.MaxSamples), phrase)

		clip, fromStore := loadClip(opts.Store, key, logger)
		if !fromStore {
			var err error
			clip, err = renderLeadIn(ctx, provider, phrase, opts.Voice, opts.MaxSamples)
			if err != nil {
				logger.Warn("Failed to render lead-in", "phrase", phrase, "err", err)
				continue
			}
			if opts.Store != nil {
				if err := opts.Store.Put(key, clip.Bytes()); err != nil {
					logger.Warn("Failed to persist lead-in", "phrase", phrase, "err", err)
				}
			}
		}

		logger.Debug("Lead-in ready",
			"phrase", phrase,
			"samples", len(clip),
			"cached", fromStore)
		pc.entries = append(pc.entries, prefixEntry{phrase: phrase, folded: folded, clip: clip})
	}

	return pc
}

// loadClip returns a stored clip. Unreadable entries are deleted so the
// re-rendered clip replaces them.
func loadClip(store ClipStore, key string, logger *log.Logger) (audio.Chunk, bool) {
	if store == nil {
		return nil, false
	}
	data, ok := store.Get(key)
	if !ok {
		return nil, false
	}
	clip, err := audio.ChunkFromBytes(data)
	if err == nil && len(clip) > 0 {
		return clip, true
	}

	logger.Warn("Discarding unreadable lead-in clip", "key", key, "bytes", len(data), "err", err)
	if err := store.Delete(key); err != nil {
		logger.Warn("Failed to delete lead-in clip", "key", key, "err", err)
	}
	return nil, false
}

// renderLeadIn synthesizes phrase and keeps its first chunk, truncated to
// maxSamples. An empty first chunk means the phrase gets no lead-in.
func renderLeadIn(ctx context.Context, provider synth.Provider, phrase, voice string, maxSamples int) (audio.Chunk, error) {
	stream, err := provider.Synthesize(ctx, phrase, voice)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	chunk, err := stream.Next()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("no audio produced for %q", phrase)
	}
	if err != nil {
		return nil, err
	}
	if len(chunk) == 0 {
		return nil, fmt.Errorf("first chunk for %q is empty", phrase)
	}
	return chunk.Truncate(maxSamples), nil
}

// Lookup returns the clip of the first phrase, in configured order, that the
// text starts with, ignoring case. The clip must not be modified.
func (p *PrefixCache) Lookup(text string) (phrase string, clip audio.Chunk, ok bool) {
	if p == nil || len(p.entries) == 0 {
		return "", nil, false
	}
	folded := fold(text)
	for _, e := range p.entries {
		if strings.HasPrefix(folded, e.folded) {
			return e.phrase, e.clip, true
		}
	}
	return "", nil, false
}

// Len returns the number of cached clips.
func (p *PrefixCache) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// Phrases returns the cached phrases in match order.
func (p *PrefixCache) Phrases() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.phrase
	}
	return out
}
