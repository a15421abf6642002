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

func newTestSessionRepo(t *testing.T) (storage.SessionRepository, *Backend) {
	t.Helper()
	_, sessionRepo, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		sessionRepo.Close()
		backend.Close()
	})
	return sessionRepo, backend
}

func putMeta(t *testing.T, backend *Backend, meta *core.SessionMeta) {
	t.Helper()
	key := storage.SessionMetaKey(meta.ID)
	require.NoError(t, backend.Put(context.Background(), key, storage.MarshalSessionMeta(meta)))
}

func TestGetMeta(t *testing.T) {
	repo, backend := newTestSessionRepo(t)

	meta := &core.SessionMeta{
		ID:        "s1",
		Name:      "morning recording",
		StartTime: time.Now().UTC().Truncate(time.Microsecond),
		Category:  "work",
	}
	putMeta(t, backend, meta)

	loaded, err := repo.GetMeta(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "morning recording", loaded.Name)
	assert.True(t, meta.StartTime.Equal(loaded.StartTime))
}

func TestGetMeta_NotFound(t *testing.T) {
	repo, _ := newTestSessionRepo(t)

	_, err := repo.GetMeta(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListMetas(t *testing.T) {
	repo, backend := newTestSessionRepo(t)

	for _, id := range []string{"s1", "s2", "s3"} {
		putMeta(t, backend, &core.SessionMeta{ID: id, Name: "session " + id, StartTime: time.Now().UTC()})
	}

	metas, err := repo.ListMetas(context.Background())
	require.NoError(t, err)
	assert.Len(t, metas, 3)
}

func TestGetChunks(t *testing.T) {
	repo, backend := newTestSessionRepo(t)
	ctx := context.Background()

	shotChunk := &core.ScreenshotChunk{
		SessionID: "s1",
		Index:     0,
		Screenshots: []core.Screenshot{
			{ID: "shot-1", AttachmentHash: core.HashBlob([]byte("img")), Timestamp: time.Now().UTC().Truncate(time.Microsecond)},
		},
	}
	key := storage.ChunkKey("s1", storage.ChunkTypeScreenshot, 0)
	require.NoError(t, backend.Put(ctx, key, storage.MarshalScreenshotChunk(shotChunk)))

	audioChunk := &core.AudioChunk{
		SessionID: "s1",
		Index:     2,
		Segments: []core.AudioSegment{
			{ID: "seg-1", AttachmentHash: core.HashBlob([]byte("wav")), DurationMs: 30000},
		},
	}
	key = storage.ChunkKey("s1", storage.ChunkTypeAudio, 2)
	require.NoError(t, backend.Put(ctx, key, storage.MarshalAudioChunk(audioChunk)))

	gotShots, err := repo.GetScreenshotChunk(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, gotShots.Screenshots, 1)
	assert.Equal(t, "shot-1", gotShots.Screenshots[0].ID)

	gotAudio, err := repo.GetAudioChunk(ctx, "s1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, gotAudio.Index)
	require.Len(t, gotAudio.Segments, 1)
	assert.Equal(t, int64(30000), gotAudio.Segments[0].DurationMs)

	_, err = repo.GetScreenshotChunk(ctx, "s1", 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetArtifact(t *testing.T) {
	repo, backend := newTestSessionRepo(t)
	ctx := context.Background()

	summary := []byte("the user debugged a cache for two hours")
	require.NoError(t, backend.Put(ctx, storage.ArtifactKey("s1", "summary"), summary))

	got, err := repo.GetArtifact(ctx, "s1", "summary")
	require.NoError(t, err)
	assert.Equal(t, summary, got)

	_, err = repo.GetArtifact(ctx, "s1", "transcript")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListSessionKeys(t *testing.T) {
	repo, backend := newTestSessionRepo(t)
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, storage.ChunkKey("s1", storage.ChunkTypeScreenshot, 0), []byte("a")))
	require.NoError(t, backend.Put(ctx, storage.ChunkKey("s1", storage.ChunkTypeAudio, 0), []byte("b")))
	require.NoError(t, backend.Put(ctx, storage.ArtifactKey("s1", "summary"), []byte("c")))
	// Another session's data must not be picked up.
	require.NoError(t, backend.Put(ctx, storage.ChunkKey("s2", storage.ChunkTypeScreenshot, 0), []byte("d")))

	keys, err := repo.ListSessionKeys(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, keys, 3)
	for _, key := range keys {
		assert.NotContains(t, key, ":s2:")
	}
}
