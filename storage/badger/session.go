package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/sessionvault/core"
	"github.com/poiesic/sessionvault/storage"
)

// SessionRepository implements storage.SessionRepository for BadgerDB.
type SessionRepository struct {
	backend *Backend
}

var _ storage.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(backend *Backend) *SessionRepository {
	return &SessionRepository{
		backend: backend,
	}
}

// Close releases repository resources. The backend is owned by the caller.
func (r *SessionRepository) Close() error {
	return nil
}

// GetMeta retrieves session metadata by ID.
func (r *SessionRepository) GetMeta(ctx context.Context, sessionID string) (*core.SessionMeta, error) {
	var meta *core.SessionMeta
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(storage.SessionMetaKey(sessionID)))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			meta, unmarshalErr = storage.UnmarshalSessionMeta(val)
			return unmarshalErr
		})
	}, false)
	return meta, err
}

// ListMetas retrieves metadata for every stored session.
func (r *SessionRepository) ListMetas(ctx context.Context) ([]*core.SessionMeta, error) {
	var metas []*core.SessionMeta
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(storage.SessionMetaPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var meta *core.SessionMeta
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				meta, unmarshalErr = storage.UnmarshalSessionMeta(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			metas = append(metas, meta)
		}
		return nil
	}, false)
	return metas, err
}

// GetScreenshotChunk retrieves one screenshot chunk.
func (r *SessionRepository) GetScreenshotChunk(ctx context.Context, sessionID string, index int) (*core.ScreenshotChunk, error) {
	var chunk *core.ScreenshotChunk
	key := storage.ChunkKey(sessionID, storage.ChunkTypeScreenshot, index)
	err := r.readValue(key, func(val []byte) error {
		var unmarshalErr error
		chunk, unmarshalErr = storage.UnmarshalScreenshotChunk(val)
		return unmarshalErr
	})
	return chunk, err
}

// GetAudioChunk retrieves one audio chunk.
func (r *SessionRepository) GetAudioChunk(ctx context.Context, sessionID string, index int) (*core.AudioChunk, error) {
	var chunk *core.AudioChunk
	key := storage.ChunkKey(sessionID, storage.ChunkTypeAudio, index)
	err := r.readValue(key, func(val []byte) error {
		var unmarshalErr error
		chunk, unmarshalErr = storage.UnmarshalAudioChunk(val)
		return unmarshalErr
	})
	return chunk, err
}

// GetArtifact retrieves a named large object belonging to a session.
func (r *SessionRepository) GetArtifact(ctx context.Context, sessionID, name string) ([]byte, error) {
	var data []byte
	err := r.readValue(storage.ArtifactKey(sessionID, name), func(val []byte) error {
		data = append([]byte(nil), val...)
		return nil
	})
	return data, err
}

// ListSessionKeys returns every chunk and artifact key belonging to a session.
func (r *SessionRepository) ListSessionKeys(ctx context.Context, sessionID string) ([]string, error) {
	var keys []string
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefixes := []string{
			storage.SessionChunkScanPrefix(sessionID),
			storage.SessionArtifactScanPrefix(sessionID),
		}
		for _, prefix := range prefixes {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(prefix)
			opts.PrefetchValues = false
			iter := tx.NewIterator(opts)

			for iter.Rewind(); iter.Valid(); iter.Next() {
				keys = append(keys, string(iter.Item().KeyCopy(nil)))
			}
			iter.Close()
		}
		return nil
	}, false)
	return keys, err
}

// readValue reads one key and hands the value to fn.
// Maps badger's key-not-found to storage.ErrNotFound.
func (r *SessionRepository) readValue(key string, fn func([]byte) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(fn)
	}, false)
}
