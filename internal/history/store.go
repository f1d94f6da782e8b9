package history

import (
	"time"

	"github.com/jpequegn/testguard/internal/aggregator"
)

// RunStore is the external history store collaborator named in
// spec.md §1/§3/§9: a durable record of every Run Result, and the
// per-identifier history needed to spot a test that flips between
// passing and hanging across runs.
type RunStore interface {
	// Save persists result as one run row plus one identifier row per
	// test named in any of its outcome sets.
	Save(result *aggregator.RunResult) error

	// GetLatest returns the most recently started run, or nil if the
	// store is empty.
	GetLatest() (*aggregator.RunResult, error)

	// GetHistory returns every recorded outcome for a single test
	// identifier, most recent first, across every run in the store.
	// limit <= 0 means unbounded.
	GetHistory(identifier string, limit int) ([]*IdentifierOutcome, error)

	Close() error
}

// IdentifierOutcome is one test identifier's classification within one
// run, as recorded by GetHistory.
type IdentifierOutcome struct {
	RunID          string
	Identifier     string
	Classification string // passed, failed, skipped, timedOut, isolatedHanging
	StartedAt      time.Time
}
