package queue

import "errors"

var (
	// ErrSinkRequired is returned when a write sink is not provided.
	ErrSinkRequired = errors.New("write sink required")
)
