// Package engine adapts a concrete test-running toolchain to the worker
// process's stdio protocol. It is the worker-side mirror of
// internal/parser's language-pluggable Parser: where a Parser turns raw
// benchmark output into a BenchmarkSuite, an Adapter turns an assembly
// path into the protocol.Message stream internal/workerclient expects on
// the coordinator side.
//
// # Adapters
//
// An Adapter declares which assembly paths it can handle and knows how to
// discover and run tests within them. GoTestAdapter, the only adapter
// shipped today, drives `go test -list` for discovery and `go test -json`
// for execution, translating each TestEvent into the matching
// protocol.Message.
//
// # Registry
//
// Registry resolves an assembly path to the first registered Adapter
// willing to handle it, the same linear-scan-under-a-mutex shape as
// internal/executor's ParserRegistry, generalized from an exact-match
// language key to a predicate.
package engine
