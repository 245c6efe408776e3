// Package audio provides mono float32 playback sinks backed by oto/v3 or
// miniaudio (malgo), plus an in-memory mock device for tests. A Device opens
// one Sink per utterance; the Sink accepts chunks in order and blocks while
// the output is backed up.
package audio
