// Package committer decides when processed offsets are flushed to the broker.
package committer

// Committer gates offset commits. TryCommit reports whether a commit is due and, when
// it is, holds the gate until UnlockCommit reports the outcome.
type Committer interface {
	RecordProcessed(count int)
	TryCommit() bool
	UnlockCommit(committed bool)
}
