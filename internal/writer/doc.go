// Package writer persists derived book snapshots to per-market, per-side
// append-only CSV logs.
//
// One log file exists per (market, side) pair, created with a fixed header
// on first use. Rows are appended in arrival order and never rewritten. The
// writer consumes snapshots from a FIFO buffer on a single goroutine, so
// appends are fire-and-forget for the producer while per-log ordering is
// preserved.
package writer
