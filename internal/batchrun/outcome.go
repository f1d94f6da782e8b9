package batchrun

import (
	"strings"
	"time"
)

// idSet is a case-insensitive set of test identifiers that preserves the
// original casing of whichever occurrence was added first, matching the
// prefix tree's case-insensitive-key/original-casing-display convention.
type idSet map[string]string

func newIDSet() idSet {
	return make(idSet)
}

func (s idSet) add(id string) {
	key := strings.ToLower(id)
	if _, ok := s[key]; !ok {
		s[key] = id
	}
}

func (s idSet) has(id string) bool {
	_, ok := s[strings.ToLower(id)]
	return ok
}

func (s idSet) remove(id string) {
	delete(s, strings.ToLower(id))
}

func (s idSet) slice() []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	return out
}

// Outcome is a batch's classified result, the Batch Outcome of §3.
type Outcome struct {
	Label      string
	Attempted  int
	Passed     []string
	Failed     []string
	Skipped    []string
	TimedOut   []string
	ExitCode   int
	Hung       bool
	HadResults bool
	Reason     string
	Filter     string
	StartedAt  time.Time
	Duration   time.Duration

	// Durations holds each identifier's own reported duration in
	// milliseconds, keyed case-insensitively. Populated from the
	// worker's passed/failed events when available. In the aggregator's
	// merge a passed or failed identifier with no entry here falls back
	// to the batch's own Duration as its proxy; skipped and timed-out
	// identifiers carry 0.
	Durations map[string]int64
}

// Succeeded reports the derived success predicate from §3.
func (o *Outcome) Succeeded() bool {
	return !o.Hung &&
		len(o.Failed) == 0 &&
		len(o.TimedOut) == 0 &&
		(o.HadResults || o.ExitCode == 0) &&
		(len(o.Passed) != 0 || o.HadResults)
}

// durationFor returns id's own reported duration in milliseconds, or the
// whole batch's duration as a proxy when no per-test figure was recorded.
func (o *Outcome) durationFor(id string) int64 {
	if o.Durations != nil {
		if ms, ok := o.Durations[strings.ToLower(id)]; ok {
			return ms
		}
	}
	return o.Duration.Milliseconds()
}

func (o *Outcome) recordDuration(id string, ms int64) {
	if o.Durations == nil {
		o.Durations = make(map[string]int64)
	}
	o.Durations[strings.ToLower(id)] = ms
}
