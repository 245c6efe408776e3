// Package feed reads the latest price from a shared-memory region each time
// the producer signals a FIFO, and turns price moves past a threshold into
// spoken alerts.
package feed
