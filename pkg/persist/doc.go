// Package persist implements the best-effort persistence layer behind the
// data layer: timestamped JSON entries with TTL expiry stored on a
// byte-string key-value Backend.
//
// Responsibilities:
//   - Backend only gets/sets/deletes raw bytes for a key.
//   - Adapter owns serialisation, the write timestamp stored next to each
//     value, TTL eviction and namespacing.
//
// Key layout:
//
//	<namespace>.<key>            JSON value
//	<namespace>.<key>_timestamp  epoch milliseconds of the last write
//
// Value and timestamp are always removed in a single Backend.Delete call so a
// timestamp is never left behind without its value.
//
// Failures never escape as panics. Save logs and returns the error so callers
// can keep working from memory when storage is full or disabled; Load treats
// every failure as a cache miss.
package persist
