package blobstore

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/sessionvault/cache"
	"github.com/poiesic/sessionvault/core"
	"github.com/poiesic/sessionvault/storage"
)

// lockStripes is the number of mutexes guarding reference mutations.
// Mutations on distinct hashes proceed in parallel unless they collide on a
// stripe; collisions only cost contention, never correctness.
const lockStripes = 64

// recordCacheMaxBytes bounds the in-store metadata cache. Blob records are
// small; this mostly bounds pathological reference lists.
const recordCacheMaxBytes = 4 * 1024 * 1024

// Store is a content-addressed, deduplicating blob store with
// reference-counted garbage collection.
//
// Saving identical bytes twice stores them once: the content hash is the
// storage key, so deduplication is structural. Owners are tracked through
// the reference API; a blob is only reclaimable once no references remain.
//
// Hash collisions are assumed not to occur. BLAKE2b-256 collision
// probability is negligible for any realistic corpus and the store does not
// defend against it.
type Store struct {
	repo   storage.BlobRepository
	cache  *cache.Cache[string, *core.BlobRecord]
	locks  [lockStripes]sync.Mutex
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a blob store over the given repository.
func NewStore(repo storage.BlobRepository, opts ...Option) (*Store, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}

	s := &Store{
		repo: repo,
		cache: cache.New[string, *core.BlobRecord](cache.Options[*core.BlobRecord]{
			MaxBytes: recordCacheMaxBytes,
			Sizer: func(r *core.BlobRecord) (int64, error) {
				return int64(core.BlobRecordMUS.Size(*r)), nil
			},
		}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save stores a blob and returns its content hash. If a blob with the same
// bytes already exists nothing is written; the existing hash is returned.
// Identical bytes always produce the identical hash, regardless of how many
// times or in what order they are saved.
func (s *Store) Save(ctx context.Context, blob *core.Blob) (core.Hash, error) {
	if err := core.ValidateBlob(blob); err != nil {
		return "", err
	}

	hash := core.HashBlob(blob.Data)

	lock := s.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	exists, err := s.repo.HasBlob(ctx, hash)
	if err != nil {
		return "", err
	}
	if exists {
		return hash, nil
	}

	record := &core.BlobRecord{
		Hash:     hash,
		Size:     int64(len(blob.Data)),
		MimeType: blob.MimeType,
	}
	if err := s.repo.PutBlob(ctx, record, blob.Data); err != nil {
		return "", err
	}
	s.cache.Set(string(hash), record)

	s.logger.Debug("blob stored", "hash", hash, "size", record.Size, "mime", record.MimeType)
	return hash, nil
}

// Load retrieves a blob by hash. An unknown hash is a normal outcome, not
// an error: Load returns (nil, nil).
func (s *Store) Load(ctx context.Context, hash core.Hash) (*core.Blob, error) {
	blob, err := s.repo.GetBlob(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return blob, nil
}

// Exists reports whether a blob with the given hash is stored.
func (s *Store) Exists(ctx context.Context, hash core.Hash) (bool, error) {
	if _, ok := s.cache.Get(string(hash)); ok {
		return true, nil
	}
	return s.repo.HasBlob(ctx, hash)
}

// Delete removes a blob, but only if nothing references it. Returns false
// when the blob is still referenced (a refusal, not an error) or when the
// hash is unknown.
func (s *Store) Delete(ctx context.Context, hash core.Hash) (bool, error) {
	lock := s.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.getRecord(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if record.RefCount > 0 {
		s.logger.Debug("delete refused, blob still referenced", "hash", hash, "refs", record.RefCount)
		return false, nil
	}

	if err := s.repo.DeleteBlob(ctx, hash); err != nil {
		return false, err
	}
	s.cache.Delete(string(hash))
	return true, nil
}

// AddReference records that (ownerID, attachmentID) uses the blob. Adding
// an identical pair twice is a no-op, so reference counts never inflate.
func (s *Store) AddReference(ctx context.Context, hash core.Hash, ownerID, attachmentID string) error {
	ref := &core.Reference{OwnerID: ownerID, AttachmentID: attachmentID}
	if err := core.ValidateReference(ref); err != nil {
		return err
	}

	lock := s.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.getRecord(ctx, hash)
	if err != nil {
		return err
	}
	if record.HasReference(ownerID, attachmentID) {
		return nil
	}

	record.References = append(record.References, core.Reference{
		OwnerID:      ownerID,
		AttachmentID: attachmentID,
		AddedAt:      time.Now().UTC(),
	})
	record.RefCount = len(record.References)

	return s.putRecord(ctx, record)
}

// RemoveReference removes every reference held by ownerID on the blob. The
// blob itself is never deleted here, even at refcount zero; reclamation is
// explicit via Delete or CollectGarbage.
func (s *Store) RemoveReference(ctx context.Context, hash core.Hash, ownerID string) error {
	lock := s.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.getRecord(ctx, hash)
	if err != nil {
		return err
	}

	kept := record.References[:0]
	for _, ref := range record.References {
		if ref.OwnerID != ownerID {
			kept = append(kept, ref)
		}
	}
	if len(kept) == len(record.References) {
		return nil
	}
	record.References = kept
	record.RefCount = len(record.References)

	return s.putRecord(ctx, record)
}

// ReferenceCount returns the number of references held on the blob.
func (s *Store) ReferenceCount(ctx context.Context, hash core.Hash) (int, error) {
	lock := s.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.getRecord(ctx, hash)
	if err != nil {
		return 0, err
	}
	return record.RefCount, nil
}

// References returns the owner IDs referencing the blob, in insertion
// order, with duplicates (one owner, several attachments) preserved once.
func (s *Store) References(ctx context.Context, hash core.Hash) ([]string, error) {
	lock := s.lockFor(hash)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.getRecord(ctx, hash)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(record.References))
	owners := make([]string, 0, len(record.References))
	for _, ref := range record.References {
		if !seen[ref.OwnerID] {
			seen[ref.OwnerID] = true
			owners = append(owners, ref.OwnerID)
		}
	}
	return owners, nil
}

func (s *Store) lockFor(hash core.Hash) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(hash))
	return &s.locks[h.Sum32()%lockStripes]
}

// getRecord reads a blob record through the metadata cache.
func (s *Store) getRecord(ctx context.Context, hash core.Hash) (*core.BlobRecord, error) {
	if record, ok := s.cache.Get(string(hash)); ok {
		return record, nil
	}
	record, err := s.repo.GetBlobRecord(ctx, hash)
	if err != nil {
		return nil, err
	}
	s.cache.Set(string(hash), record)
	return record, nil
}

// putRecord persists a mutated record and refreshes the cache.
func (s *Store) putRecord(ctx context.Context, record *core.BlobRecord) error {
	if record.RefCount != len(record.References) {
		return fmt.Errorf("%w: refCount=%d references=%d",
			ErrReferenceInvariant, record.RefCount, len(record.References))
	}
	if err := s.repo.PutBlobRecord(ctx, record); err != nil {
		s.cache.Delete(string(record.Hash))
		return err
	}
	s.cache.Set(string(record.Hash), record)
	return nil
}
