// Package speech coordinates spoken alerts. A Coordinator owns a single
// playback slot: every accepted phrase replaces the one before it, which fades
// out at its next chunk boundary, and at most one stream holds the audio
// device at a time. A PrefixCache keeps the first chunk of frequent lead-in
// phrases so a new alert is audible before synthesis produces anything.
package speech
