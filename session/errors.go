package session

import "errors"

var (
	// ErrRepositoryRequired is returned when a session repository is not provided.
	ErrRepositoryRequired = errors.New("session repository required")

	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")

	// ErrQueueRequired is returned when a write queue is not provided.
	ErrQueueRequired = errors.New("write queue required")

	// ErrNilChunk is returned when a nil chunk is passed to a save operation.
	ErrNilChunk = errors.New("chunk is nil")

	// ErrNegativeChunkIndex is returned for chunk indexes below zero.
	ErrNegativeChunkIndex = errors.New("chunk index must not be negative")

	// ErrEmptyArtifactName is returned when an artifact is saved without a name.
	ErrEmptyArtifactName = errors.New("artifact name must not be empty")
)
