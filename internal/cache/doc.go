// Package cache keeps synthesized lead-in clips on disk between runs. Entries
// are zstd-compressed and indexed by a gob file next to them.
package cache
