package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/sessionvault/core"
	"github.com/poiesic/sessionvault/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBlobRepo(t *testing.T) (storage.BlobRepository, *Backend) {
	t.Helper()
	blobRepo, _, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		blobRepo.Close()
		backend.Close()
	})
	return blobRepo, backend
}

func testBlobRecord(data []byte, mimeType string) (*core.BlobRecord, []byte) {
	return &core.BlobRecord{
		Hash:     core.HashBlob(data),
		Size:     int64(len(data)),
		MimeType: mimeType,
	}, data
}

func TestPutGetBlob(t *testing.T) {
	repo, _ := newTestBlobRepo(t)
	ctx := context.Background()

	record, data := testBlobRecord([]byte("screenshot png bytes"), "image/png")
	require.NoError(t, repo.PutBlob(ctx, record, data))

	blob, err := repo.GetBlob(ctx, record.Hash)
	require.NoError(t, err)
	assert.Equal(t, data, blob.Data)
	assert.Equal(t, "image/png", blob.MimeType)
	assert.Equal(t, int64(len(data)), blob.Size)
}

func TestGetBlob_NotFound(t *testing.T) {
	repo, _ := newTestBlobRepo(t)

	_, err := repo.GetBlob(context.Background(), core.HashBlob([]byte("never stored")))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPutBlobRecord_UpdatesReferences(t *testing.T) {
	repo, _ := newTestBlobRepo(t)
	ctx := context.Background()

	record, data := testBlobRecord([]byte("audio bytes"), "audio/wav")
	require.NoError(t, repo.PutBlob(ctx, record, data))

	record.References = []core.Reference{
		{OwnerID: "session-1", AttachmentID: "seg-1", AddedAt: time.Now().UTC()},
	}
	record.RefCount = 1
	require.NoError(t, repo.PutBlobRecord(ctx, record))

	loaded, err := repo.GetBlobRecord(ctx, record.Hash)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.RefCount)
	require.Len(t, loaded.References, 1)
	assert.Equal(t, "session-1", loaded.References[0].OwnerID)

	// Payload untouched by the record update.
	blob, err := repo.GetBlob(ctx, record.Hash)
	require.NoError(t, err)
	assert.Equal(t, data, blob.Data)
}

func TestDeleteBlob(t *testing.T) {
	repo, _ := newTestBlobRepo(t)
	ctx := context.Background()

	record, data := testBlobRecord([]byte("to delete"), "image/png")
	require.NoError(t, repo.PutBlob(ctx, record, data))

	require.NoError(t, repo.DeleteBlob(ctx, record.Hash))

	_, err := repo.GetBlob(ctx, record.Hash)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repo.GetBlobRecord(ctx, record.Hash)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteBlob_NotFound(t *testing.T) {
	repo, _ := newTestBlobRepo(t)

	err := repo.DeleteBlob(context.Background(), core.HashBlob([]byte("absent")))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHasBlob(t *testing.T) {
	repo, _ := newTestBlobRepo(t)
	ctx := context.Background()

	record, data := testBlobRecord([]byte("exists"), "image/png")

	found, err := repo.HasBlob(ctx, record.Hash)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.PutBlob(ctx, record, data))

	found, err = repo.HasBlob(ctx, record.Hash)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestForEachBlobRecord(t *testing.T) {
	repo, _ := newTestBlobRepo(t)
	ctx := context.Background()

	for _, payload := range []string{"one", "two", "three"} {
		record, data := testBlobRecord([]byte(payload), "text/plain")
		require.NoError(t, repo.PutBlob(ctx, record, data))
	}

	seen := map[core.Hash]bool{}
	err := repo.ForEachBlobRecord(ctx, func(record *core.BlobRecord) error {
		seen[record.Hash] = true
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 3)
}
