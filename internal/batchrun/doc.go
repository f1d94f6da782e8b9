// Package batchrun drives one batch through a fresh worker process and
// classifies the result, per §4.E. It owns the dual wall-clock/idle
// guards that force-terminate a worker that stops making progress, and
// applies the decision table that turns accumulated events, exit state,
// and hang artefacts into a single Outcome.
package batchrun
