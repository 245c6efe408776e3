// Package synth turns text into a stream of float32 audio chunks. The piper
// provider streams raw PCM from a piper subprocess; the tone provider renders
// a deterministic beep pattern for machines without a voice model.
package synth
