package synth

import (
	"encoding/binary"

	"github.com/dgnsrekt/tickspeak/internal/audio"
)

// decodeS16LE converts signed 16-bit little-endian PCM to float32 samples.
// A trailing odd byte is ignored.
func decodeS16LE(data []byte) audio.Chunk {
	out := make(audio.Chunk, len(data)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(s) / 32768
	}
	return out
}

// Resample performs simple linear resampling of a chunk from one rate to
// another. It is applied per chunk, which is good enough for speech.
func Resample(in audio.Chunk, from, to int) audio.Chunk {
	if from <= 0 || to <= 0 || from == to || len(in) == 0 {
		return in
	}

	ratio := float64(to) / float64(from)
	outLen := int(float64(len(in)) * ratio)
	out := make(audio.Chunk, outLen)

	for i := range out {
		pos := float64(i) / ratio
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx]*(1-frac) + in[idx+1]*frac
	}
	return out
}
