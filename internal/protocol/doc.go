// Package protocol implements the line-framed message codec spoken between
// the coordinator and a worker process: one JSON object per line of a text
// stream, with a "type" discriminator selecting the variant.
//
// # Overview
//
// Every message is one of a small set of variants (discover, run, cancel
// from coordinator to worker; discovered, started, passed, failed, skipped,
// output, completed, error from worker to coordinator). Encode writes a
// single line without a trailing newline; the caller appends the newline
// and flushes. Decode never panics on malformed input — it reports failure
// so the caller can skip the line and keep reading.
//
// # Compatibility
//
// The "type" field is the compatibility pivot: Decode returns an Unknown
// message (rather than failing) for any well-formed JSON object carrying a
// type it doesn't recognise, so a coordinator built against an older
// protocol version tolerates new worker event types.
package protocol
