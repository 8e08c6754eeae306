// Package channel owns the framed byte stream between two peers.
//
// Ownership boundary:
// - read buffering and frame extraction
// - per-direction frame counters
// - stream subscription and rebind
package channel
