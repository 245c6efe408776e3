package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Default stream parameters.
const (
	// DefaultSampleRate is the playback rate in Hz.
	DefaultSampleRate = 24000
	// DefaultBlockSize is the number of frames handed to the device per period.
	DefaultBlockSize = 4096
	// Channels is fixed to mono.
	Channels = 1
	// BytesPerSample is the size of one float32 little-endian sample.
	BytesPerSample = 4
)

// Chunk is a contiguous run of mono float32 samples in [-1, 1].
type Chunk []float32

// Duration returns how long the chunk plays at the given sample rate.
func (c Chunk) Duration(sampleRate int) time.Duration {
	return SamplesDuration(len(c), sampleRate)
}

// SamplesDuration converts a sample count to wall time.
func SamplesDuration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// Clone returns a copy of the chunk that shares no memory with c.
func (c Chunk) Clone() Chunk {
	if c == nil {
		return nil
	}
	out := make(Chunk, len(c))
	copy(out, c)
	return out
}

// Truncate returns a copy of at most n leading samples.
func (c Chunk) Truncate(n int) Chunk {
	if n < 0 {
		n = 0
	}
	if len(c) > n {
		c = c[:n]
	}
	return c.Clone()
}

// Bytes encodes the chunk as float32 little-endian PCM.
func (c Chunk) Bytes() []byte {
	out := make([]byte, len(c)*BytesPerSample)
	for i, s := range c {
		binary.LittleEndian.PutUint32(out[i*BytesPerSample:], math.Float32bits(s))
	}
	return out
}

// ChunkFromBytes decodes float32 little-endian PCM.
func ChunkFromBytes(data []byte) (Chunk, error) {
	if len(data)%BytesPerSample != 0 {
		return nil, fmt.Errorf("PCM data length %d is not aligned to %d-byte samples",
			len(data), BytesPerSample)
	}
	out := make(Chunk, len(data)/BytesPerSample)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*BytesPerSample:]))
	}
	return out, nil
}

// FadeSamples returns the length of a fade-out ramp of the given duration in
// milliseconds at sampleRate, before clamping to a chunk.
func FadeSamples(sampleRate, fadeOutMs int) int {
	if sampleRate <= 0 || fadeOutMs <= 0 {
		return 0
	}
	return sampleRate * fadeOutMs / 1000
}

// FadeOut applies a linear ramp from 1 down to 0 over the first
// min(len(c), n) samples, in place, and returns c. Samples past the ramp are
// left untouched. A one-sample ramp keeps its sample at full gain.
func (c Chunk) FadeOut(n int) Chunk {
	fade := min(len(c), n)
	if fade <= 1 {
		return c
	}
	last := float32(fade - 1)
	for i := 0; i < fade; i++ {
		c[i] *= 1 - float32(i)/last
	}
	return c
}
