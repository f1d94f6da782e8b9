// Package workerclient owns one worker process's lifetime from the
// coordinator side: it spawns the child, speaks the line protocol defined
// by internal/protocol over its stdio, and exposes discover/run as plain
// Go calls and channels.
//
// # Overview
//
// Spawn launches the worker binary with inherited environment and
// redirected stdio, and starts background goroutines that scan stdout
// line by line, decoding each into a protocol.Message. Decoded failures
// (stray output from an assembly's module initialisers, partial lines,
// ...) are logged and skipped — they never abort the stream, mirroring
// how internal/executor treats a benchmark command's stdout as opaque
// bytes to be parsed best-effort.
//
// # Liveness
//
// The worker is expected to exit when its stdin closes (parent-death
// liveness). Handle.RequestCancel sends a cancel message and closes stdin;
// Handle.Close closes stdin and then force-terminates the process if it
// is still alive after a grace period.
// If the worker exits mid-operation without sending a terminal event, the
// in-flight Discover/Run call synthesizes an ErrorEvent rather than
// hanging the caller.
package workerclient
