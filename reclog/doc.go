// Package reclog implements the durable record log backing an embedding
// store: a single append-only file of (key, vector) records behind a fixed
// header, with an optional index snapshot section at the tail.
//
// File layout:
//
//	[64-byte header][record ...][index snapshot]
//
// Each record is [4-byte key length][key bytes][dimension × 4-byte
// little-endian float32]. Records are immutable; an update appends a new
// record and the superseded bytes remain as unreachable garbage (the log
// never compacts).
//
// The index snapshot is written on clean close only. Opening the log for
// writing drops the snapshot and zeroes its header offset before the first
// append, so a crash always leaves the file marked dirty and the next open
// falls back to a full replay.
package reclog
