package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/sessionvault/core"
	"github.com/poiesic/sessionvault/storage"
)

// BlobRepository implements storage.BlobRepository for BadgerDB.
type BlobRepository struct {
	backend *Backend
}

var _ storage.BlobRepository = (*BlobRepository)(nil)

// NewBlobRepository creates a new BlobRepository.
func NewBlobRepository(backend *Backend) *BlobRepository {
	return &BlobRepository{
		backend: backend,
	}
}

// Close releases repository resources. The backend is owned by the caller.
func (r *BlobRepository) Close() error {
	return nil
}

// PutBlob stores the payload and its metadata record in one transaction.
func (r *BlobRepository) PutBlob(ctx context.Context, record *core.BlobRecord, data []byte) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		dataKey := []byte(storage.BlobDataKey(string(record.Hash)))
		if err := tx.Set(dataKey, data); err != nil {
			return err
		}

		recordKey := []byte(storage.BlobRecordKey(string(record.Hash)))
		if err := tx.Set(recordKey, storage.MarshalBlobRecord(record)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetBlob retrieves the payload and MIME metadata for a hash.
func (r *BlobRepository) GetBlob(ctx context.Context, hash core.Hash) (*core.Blob, error) {
	var blob *core.Blob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		record, err := readBlobRecord(tx, hash)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}

		item, err := tx.Get([]byte(storage.BlobDataKey(string(hash))))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		blob = &core.Blob{
			Data:     data,
			MimeType: record.MimeType,
			Size:     record.Size,
		}
		return nil
	}, false)
	return blob, err
}

// GetBlobRecord retrieves the metadata record for a hash.
func (r *BlobRepository) GetBlobRecord(ctx context.Context, hash core.Hash) (*core.BlobRecord, error) {
	var record *core.BlobRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		record, err = readBlobRecord(tx, hash)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return record, err
}

// PutBlobRecord overwrites the metadata record for an existing blob.
func (r *BlobRepository) PutBlobRecord(ctx context.Context, record *core.BlobRecord) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := []byte(storage.BlobRecordKey(string(record.Hash)))
		if err := tx.Set(key, storage.MarshalBlobRecord(record)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// DeleteBlob removes both the payload and the metadata record.
func (r *BlobRepository) DeleteBlob(ctx context.Context, hash core.Hash) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		record, err := readBlobRecord(tx, hash)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}

		if err := tx.Delete([]byte(storage.BlobDataKey(string(hash)))); err != nil {
			return err
		}
		if err := tx.Delete([]byte(storage.BlobRecordKey(string(hash)))); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// HasBlob reports whether a record exists for the hash.
func (r *BlobRepository) HasBlob(ctx context.Context, hash core.Hash) (bool, error) {
	var found bool
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get([]byte(storage.BlobRecordKey(string(hash))))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		found = true
		return nil
	}, false)
	return found, err
}

// ForEachBlobRecord invokes fn for every stored blob record.
func (r *BlobRepository) ForEachBlobRecord(ctx context.Context, fn func(*core.BlobRecord) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(storage.BlobRecordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var record *core.BlobRecord
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				record, unmarshalErr = storage.UnmarshalBlobRecord(val)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			if err := fn(record); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// readBlobRecord reads a blob record from the transaction.
// Returns nil, nil if the record doesn't exist.
func readBlobRecord(tx *badger.Txn, hash core.Hash) (*core.BlobRecord, error) {
	item, err := tx.Get([]byte(storage.BlobRecordKey(string(hash))))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var record *core.BlobRecord
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalBlobRecord(val)
		return unmarshalErr
	})
	return record, err
}
