package synth

import (
	"context"
	"hash/fnv"
	"io"
	"math"
	"strings"

	"github.com/dgnsrekt/tickspeak/internal/audio"
)

const (
	toneWordDuration = 0.12 // seconds per word
	toneGapDuration  = 0.04 // silence between words
	toneAmplitude    = 0.2
	toneRampSamples  = 64
)

// ToneProvider renders one short tone per word. Pitch depends on the word and
// the voice, so the same phrase always sounds the same.
type ToneProvider struct {
	sampleRate int
	blockSize  int
}

// NewToneProvider creates a tone provider.
func NewToneProvider(sampleRate, blockSize int) *ToneProvider {
	return &ToneProvider{sampleRate: sampleRate, blockSize: blockSize}
}

// Name returns the engine name.
func (p *ToneProvider) Name() string { return EngineTone }

// Synthesize renders the whole phrase up front and streams it in blocks.
func (p *ToneProvider) Synthesize(ctx context.Context, text, voice string) (Stream, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, ErrEmptyText
	}

	var pcm audio.Chunk
	gap := int(toneGapDuration * float64(p.sampleRate))
	for _, w := range words {
		pcm = append(pcm, p.tone(toneFrequency(voice, w))...)
		pcm = append(pcm, make(audio.Chunk, gap)...)
	}

	return &toneStream{ctx: ctx, pcm: pcm, block: p.blockSize}, nil
}

// toneFrequency picks a pitch on a pentatonic-ish ladder above 220 Hz.
func toneFrequency(voice, word string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(voice))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strings.ToLower(word)))
	step := float64(h.Sum32() % 12)
	return 220 * math.Pow(2, step/12)
}

func (p *ToneProvider) tone(freq float64) audio.Chunk {
	n := int(toneWordDuration * float64(p.sampleRate))
	out := make(audio.Chunk, n)
	for i := range out {
		gain := 1.0
		if i < toneRampSamples {
			gain = float64(i) / toneRampSamples
		} else if n-i <= toneRampSamples {
			gain = float64(n-i-1) / toneRampSamples
		}
		out[i] = float32(toneAmplitude * gain * math.Sin(2*math.Pi*freq*float64(i)/float64(p.sampleRate)))
	}
	return out
}

type toneStream struct {
	ctx   context.Context
	pcm   audio.Chunk
	pos   int
	block int
}

func (s *toneStream) Next() (audio.Chunk, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.pcm) {
		return nil, io.EOF
	}
	end := min(s.pos+s.block, len(s.pcm))
	chunk := s.pcm[s.pos:end].Clone()
	s.pos = end
	return chunk, nil
}

func (s *toneStream) Close() error {
	s.pos = len(s.pcm)
	return nil
}
