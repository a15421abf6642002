package blobstore

import "errors"

var (
	// ErrRepositoryRequired is returned when a blob repository is not provided.
	ErrRepositoryRequired = errors.New("blob repository required")

	// ErrReferenceInvariant indicates a record whose RefCount disagrees with
	// its reference list. This should never happen through the public API.
	ErrReferenceInvariant = errors.New("reference count invariant violated")
)
