package domain

import "errors"

var (
	// ErrValidation marks input that was rejected before any record was touched.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups that matched no record.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks operations rejected because of the record's current state.
	ErrConflict = errors.New("conflict")
	// ErrNoCommunities marks a rollout whose state discovery yielded zero communities.
	ErrNoCommunities = errors.New("no communities found")
	// ErrNotPaused marks a resume attempt on a rollout that is not paused.
	ErrNotPaused = errors.New("rollout is not paused")
)
