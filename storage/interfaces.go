package storage

import (
	"context"

	"github.com/poiesic/sessionvault/core"
)

// KVWriter is the durable write surface consumed by the write queue. A
// queued item is either a Put or a Delete of one raw key; the queue carries
// serialized values and never interprets them.
type KVWriter interface {
	// Put durably stores value under key.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// BlobRepository provides persistence for content-addressed blobs and their
// metadata records. Implementations must be thread-safe; the per-hash
// serialization of reference mutations is the blob store's responsibility,
// not the repository's.
type BlobRepository interface {
	// PutBlob stores a blob payload together with its metadata record in
	// one transaction. Saving an existing hash overwrites both entries
	// with identical content, so the operation is idempotent.
	PutBlob(ctx context.Context, record *core.BlobRecord, data []byte) error

	// GetBlob retrieves the payload and MIME metadata for a hash.
	// Returns ErrNotFound if the hash is unknown.
	GetBlob(ctx context.Context, hash core.Hash) (*core.Blob, error)

	// GetBlobRecord retrieves the metadata record for a hash.
	// Returns ErrNotFound if the hash is unknown.
	GetBlobRecord(ctx context.Context, hash core.Hash) (*core.BlobRecord, error)

	// PutBlobRecord overwrites the metadata record for an existing blob.
	// Used by the reference API; the payload is untouched.
	PutBlobRecord(ctx context.Context, record *core.BlobRecord) error

	// DeleteBlob removes both the payload and the metadata record.
	// Returns ErrNotFound if the hash is unknown.
	DeleteBlob(ctx context.Context, hash core.Hash) error

	// HasBlob reports whether a record exists for the hash.
	HasBlob(ctx context.Context, hash core.Hash) (bool, error)

	// ForEachBlobRecord invokes fn for every stored blob record. Iteration
	// stops on the first error returned by fn.
	ForEachBlobRecord(ctx context.Context, fn func(*core.BlobRecord) error) error

	// Close releases repository resources.
	Close() error
}

// SessionRepository provides the read path for session records. Writes flow
// through the write queue against KVWriter, so this interface is read-mostly;
// only deletes that must not linger bypass the queue.
type SessionRepository interface {
	// GetMeta retrieves session metadata by ID.
	// Returns ErrNotFound if the session doesn't exist.
	GetMeta(ctx context.Context, sessionID string) (*core.SessionMeta, error)

	// ListMetas retrieves metadata for every stored session.
	ListMetas(ctx context.Context) ([]*core.SessionMeta, error)

	// GetScreenshotChunk retrieves one screenshot chunk.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetScreenshotChunk(ctx context.Context, sessionID string, index int) (*core.ScreenshotChunk, error)

	// GetAudioChunk retrieves one audio chunk.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetAudioChunk(ctx context.Context, sessionID string, index int) (*core.AudioChunk, error)

	// GetArtifact retrieves a named large object (summary, transcript).
	// Returns ErrNotFound if the artifact doesn't exist.
	GetArtifact(ctx context.Context, sessionID, name string) ([]byte, error)

	// ListSessionKeys returns every chunk and artifact key belonging to a
	// session, used to enqueue deletions for the whole record.
	ListSessionKeys(ctx context.Context, sessionID string) ([]string, error)

	// Close releases repository resources.
	Close() error
}
