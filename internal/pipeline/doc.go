// Package pipeline runs the fixed, ordered stage list of one sequencer run.
//
// Stages run strictly one after another; the first error stops the run and
// is returned wrapped in a *StageError. Nothing is retried.
package pipeline
