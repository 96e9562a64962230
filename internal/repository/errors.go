// Package repository holds the vote and show stores. Sentinel errors let the
// service layer tell validation outcomes apart from infrastructure failures.
package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a vote, setlist song or show does not
	// exist, or does not match the ids supplied with it.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateVote is returned when (user, setlist song) already has a
	// committed vote.
	ErrDuplicateVote = errors.New("duplicate vote")
)

// QuotaError is returned from inside the cast transaction when the
// re-validated quota is already used up.
type QuotaError struct {
	Scope string // "daily" or "show"
	Used  int
	Limit int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exhausted (%d/%d)", e.Scope, e.Used, e.Limit)
}
