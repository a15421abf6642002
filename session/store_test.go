package session

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/sessionvault/blobstore"
	"github.com/poiesic/sessionvault/core"
	"github.com/poiesic/sessionvault/queue"
	"github.com/poiesic/sessionvault/storage"
	badgerstore "github.com/poiesic/sessionvault/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store *Store
	blobs *blobstore.Store
	queue *queue.Queue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	blobRepo, sessRepo, backend, err := badgerstore.NewMemoryRepositories()
	require.NoError(t, err)

	q, err := queue.New(backend, queue.Options{
		BatchInterval:  5 * time.Millisecond,
		IdleInterval:   10 * time.Millisecond,
		BaseRetryDelay: time.Millisecond,
	})
	require.NoError(t, err)

	blobs, err := blobstore.NewStore(blobRepo)
	require.NoError(t, err)

	store, err := NewStore(sessRepo, blobs, q)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		q.Shutdown(ctx)
		blobRepo.Close()
		sessRepo.Close()
		backend.Close()
	})
	return &testEnv{store: store, blobs: blobs, queue: q}
}

func (e *testEnv) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.store.Flush(ctx))
}

func testMeta(id, name string) *core.SessionMeta {
	return &core.SessionMeta{
		ID:        id,
		Name:      name,
		StartTime: time.Now().UTC().Truncate(time.Microsecond),
		Category:  "work",
	}
}

func TestSaveMetadata_ReadYourWrites(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.SaveMetadata(ctx, testMeta("s1", "morning standup")))

	// Visible immediately, before any durable write lands.
	meta, err := env.store.LoadMetadata(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "morning standup", meta.Name)
	assert.False(t, meta.InsertedAt.IsZero())
}

func TestSaveMetadata_SurvivesCacheClear(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.SaveMetadata(ctx, testMeta("s1", "design review")))
	env.flush(t)
	env.store.ClearSessionCache("s1")

	meta, err := env.store.LoadMetadata(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "design review", meta.Name)
	assert.Equal(t, "work", meta.Category)
}

func TestSaveMetadata_Invalid(t *testing.T) {
	env := newTestEnv(t)

	err := env.store.SaveMetadata(context.Background(), &core.SessionMeta{ID: "s1"})
	assert.ErrorIs(t, err, core.ErrInvalidSessionMeta)
}

func TestLoadMetadata_Unknown(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.store.LoadMetadata(context.Background(), "absent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScreenshotChunk_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.SaveMetadata(ctx, testMeta("s1", "recording")))

	chunk := &core.ScreenshotChunk{
		SessionID: "s1",
		Index:     0,
		Screenshots: []core.Screenshot{
			{ID: "shot-1", AttachmentHash: core.HashBlob([]byte("frame")), RelativeTimeMs: 1500},
		},
	}
	require.NoError(t, env.store.SaveScreenshotChunk(ctx, chunk))
	env.flush(t)
	env.store.ClearSessionCache("s1")

	loaded, err := env.store.LoadScreenshotChunk(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, loaded.Screenshots, 1)
	assert.Equal(t, "shot-1", loaded.Screenshots[0].ID)
	assert.Equal(t, int64(1500), loaded.Screenshots[0].RelativeTimeMs)
}

func TestSaveChunk_AdvancesCounters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.SaveMetadata(ctx, testMeta("s1", "recording")))

	for i := 0; i < 2; i++ {
		require.NoError(t, env.store.SaveScreenshotChunk(ctx, &core.ScreenshotChunk{SessionID: "s1", Index: i}))
	}
	require.NoError(t, env.store.SaveAudioChunk(ctx, &core.AudioChunk{SessionID: "s1", Index: 0}))

	meta, err := env.store.LoadMetadata(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, meta.ScreenshotChunks)
	assert.Equal(t, 1, meta.AudioChunks)

	// Re-saving an existing index does not inflate the counter.
	require.NoError(t, env.store.SaveScreenshotChunk(ctx, &core.ScreenshotChunk{SessionID: "s1", Index: 1}))
	meta, err = env.store.LoadMetadata(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, meta.ScreenshotChunks)
}

func TestSaveChunk_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.ErrorIs(t, env.store.SaveScreenshotChunk(ctx, nil), ErrNilChunk)
	assert.ErrorIs(t, env.store.SaveScreenshotChunk(ctx, &core.ScreenshotChunk{Index: 0}), core.ErrEmptySessionID)
	assert.ErrorIs(t, env.store.SaveAudioChunk(ctx, &core.AudioChunk{SessionID: "s1", Index: -1}), ErrNegativeChunkIndex)
}

func TestAppendScreenshot_RollsOverAtCapacity(t *testing.T) {
	ctx := context.Background()

	// Small capacity to exercise rollover.
	blobRepo, sessRepo, backend, err := badgerstore.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { blobRepo.Close(); sessRepo.Close(); backend.Close() })

	q, err := queue.New(backend, queue.Options{
		BatchInterval:  5 * time.Millisecond,
		IdleInterval:   10 * time.Millisecond,
		BaseRetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { q.Shutdown(context.Background()) })

	blobs, err := blobstore.NewStore(blobRepo)
	require.NoError(t, err)
	store, err := NewStore(sessRepo, blobs, q, WithChunkCapacity(3))
	require.NoError(t, err)

	require.NoError(t, store.SaveMetadata(ctx, testMeta("s1", "long recording")))

	for i := 0; i < 7; i++ {
		require.NoError(t, store.AppendScreenshot(ctx, "s1", core.Screenshot{
			ID:             fmt.Sprintf("shot-%d", i),
			RelativeTimeMs: int64(i) * 1000,
		}))
	}

	meta, err := store.LoadMetadata(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, meta.ScreenshotChunks)

	first, err := store.LoadScreenshotChunk(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, first.Screenshots, 3)
	assert.Equal(t, "shot-0", first.Screenshots[0].ID)

	last, err := store.LoadScreenshotChunk(ctx, "s1", 2)
	require.NoError(t, err)
	assert.Len(t, last.Screenshots, 1)
	assert.Equal(t, "shot-6", last.Screenshots[0].ID)
}

func TestAppendScreenshot_RequiresMetadata(t *testing.T) {
	env := newTestEnv(t)

	err := env.store.AppendScreenshot(context.Background(), "absent", core.Screenshot{ID: "shot-1"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAppendAudioSegment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.SaveMetadata(ctx, testMeta("s1", "recording")))

	require.NoError(t, env.store.AppendAudioSegment(ctx, "s1", core.AudioSegment{ID: "seg-1", DurationMs: 30000}))
	require.NoError(t, env.store.AppendAudioSegment(ctx, "s1", core.AudioSegment{ID: "seg-2", DurationMs: 30000, StartOffsetMs: 30000}))

	meta, err := env.store.LoadMetadata(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, meta.AudioChunks)

	chunk, err := env.store.LoadAudioChunk(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, chunk.Segments, 2)
	assert.Equal(t, "seg-2", chunk.Segments[1].ID)
}

func TestAudioChunk_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	chunk := &core.AudioChunk{
		SessionID: "s1",
		Index:     0,
		Segments: []core.AudioSegment{
			{ID: "seg-1", AttachmentHash: core.HashBlob([]byte("pcm")), DurationMs: 30000, StartOffsetMs: 60000},
		},
	}
	require.NoError(t, env.store.SaveAudioChunk(ctx, chunk))
	env.flush(t)
	env.store.ClearSessionCache("s1")

	loaded, err := env.store.LoadAudioChunk(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, loaded.Segments, 1)
	assert.Equal(t, int64(30000), loaded.Segments[0].DurationMs)
	assert.Equal(t, int64(60000), loaded.Segments[0].StartOffsetMs)
}

func TestArtifact_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	transcript := []byte("Speaker 1: let's get started.")
	require.NoError(t, env.store.SaveArtifact(ctx, "s1", "transcript", transcript))
	env.flush(t)
	env.store.ClearSessionCache("s1")

	data, err := env.store.LoadArtifact(ctx, "s1", "transcript")
	require.NoError(t, err)
	assert.Equal(t, transcript, data)
}

func TestSaveArtifact_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.ErrorIs(t, env.store.SaveArtifact(ctx, "", "transcript", []byte("x")), core.ErrEmptySessionID)
	assert.ErrorIs(t, env.store.SaveArtifact(ctx, "s1", "", []byte("x")), ErrEmptyArtifactName)
}

func TestSaveAttachment_DeduplicatesAcrossSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	frame := &core.Blob{Data: bytes.Repeat([]byte("px"), 25*1024), MimeType: "image/png"}

	h1, err := env.store.SaveAttachment(ctx, "s1", "shot-1", frame)
	require.NoError(t, err)
	h2, err := env.store.SaveAttachment(ctx, "s2", "shot-1", frame)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	count, err := env.blobs.ReferenceCount(ctx, h1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	stats, err := env.blobs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalBlobs)
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.SaveMetadata(ctx, testMeta("s1", "to be removed")))

	frame := &core.Blob{Data: []byte("unique frame"), MimeType: "image/png"}
	hash, err := env.store.SaveAttachment(ctx, "s1", "shot-1", frame)
	require.NoError(t, err)

	require.NoError(t, env.store.SaveScreenshotChunk(ctx, &core.ScreenshotChunk{
		SessionID:   "s1",
		Index:       0,
		Screenshots: []core.Screenshot{{ID: "shot-1", AttachmentHash: hash}},
	}))
	require.NoError(t, env.store.SaveArtifact(ctx, "s1", "summary", []byte("short meeting")))
	env.flush(t)

	require.NoError(t, env.store.DeleteSession(ctx, "s1"))
	env.flush(t)

	_, err = env.store.LoadMetadata(ctx, "s1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = env.store.LoadScreenshotChunk(ctx, "s1", 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = env.store.LoadArtifact(ctx, "s1", "summary")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// References were released; the blob survives until garbage collection.
	count, err := env.blobs.ReferenceCount(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	result, err := env.blobs.CollectGarbage(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
}

func TestDeleteSession_PendingWritesDoNotSurvive(t *testing.T) {
	ctx := context.Background()

	blobRepo, sessRepo, backend, err := badgerstore.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { blobRepo.Close(); sessRepo.Close(); backend.Close() })

	// A long batch interval keeps every normal and low write queued, so the
	// session's records have not landed when the delete runs.
	q, err := queue.New(backend, queue.Options{
		BatchInterval:  time.Hour,
		IdleInterval:   time.Hour,
		BaseRetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		q.Shutdown(sctx)
	})

	blobs, err := blobstore.NewStore(blobRepo)
	require.NoError(t, err)
	store, err := NewStore(sessRepo, blobs, q)
	require.NoError(t, err)

	require.NoError(t, store.SaveMetadata(ctx, testMeta("s1", "short lived")))
	require.NoError(t, store.SaveScreenshotChunk(ctx, &core.ScreenshotChunk{SessionID: "s1", Index: 0}))
	require.NoError(t, store.SaveArtifact(ctx, "s1", "summary", []byte("x")))

	require.NoError(t, store.DeleteSession(ctx, "s1"))

	fctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, store.Flush(fctx))

	_, err = store.LoadMetadata(ctx, "s1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.LoadScreenshotChunk(ctx, "s1", 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.LoadArtifact(ctx, "s1", "summary")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The queued chunk put must not have reached the backend.
	_, err = backend.Get(ctx, storage.ChunkKey("s1", storage.ChunkTypeScreenshot, 0))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = backend.Get(ctx, storage.SessionMetaKey("s1"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListSessions_MostRecentFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	older := testMeta("s1", "yesterday")
	older.StartTime = older.StartTime.Add(-24 * time.Hour)
	require.NoError(t, env.store.SaveMetadata(ctx, older))
	require.NoError(t, env.store.SaveMetadata(ctx, testMeta("s2", "today")))
	env.flush(t)

	metas, err := env.store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "s2", metas[0].ID)
	assert.Equal(t, "s1", metas[1].ID)
}

func TestListSummaries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	meta := testMeta("s1", "retro")
	meta.Notes = "action items captured"
	require.NoError(t, env.store.SaveMetadata(ctx, meta))
	require.NoError(t, env.store.SaveScreenshotChunk(ctx, &core.ScreenshotChunk{SessionID: "s1", Index: 0}))
	env.flush(t)

	summaries, err := env.store.ListSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "retro", summaries[0].Name)
	assert.True(t, summaries[0].HasNotes)
	assert.Equal(t, 1, summaries[0].ScreenshotChunks)
}

func TestSearchSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	standup := testMeta("s1", "Morning Standup")
	require.NoError(t, env.store.SaveMetadata(ctx, standup))

	review := testMeta("s2", "code review")
	review.Notes = "discussed the standup format"
	require.NoError(t, env.store.SaveMetadata(ctx, review))

	interview := testMeta("s3", "interview")
	interview.Category = "hiring"
	require.NoError(t, env.store.SaveMetadata(ctx, interview))
	env.flush(t)

	matches, err := env.store.SearchSessions(ctx, "standup")
	require.NoError(t, err)
	assert.Len(t, matches, 2) // name match and notes match

	matches, err = env.store.SearchSessions(ctx, "hiring")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "s3", matches[0].ID)

	matches, err = env.store.SearchSessions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestSessionCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	count, err := env.store.SessionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, env.store.SaveMetadata(ctx, testMeta("s1", "one")))
	require.NoError(t, env.store.SaveMetadata(ctx, testMeta("s2", "two")))
	env.flush(t)

	count, err = env.store.SessionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestClearSessionCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.SaveMetadata(ctx, testMeta("s1", "cached")))
	require.NoError(t, env.store.SaveScreenshotChunk(ctx, &core.ScreenshotChunk{SessionID: "s1", Index: 0}))
	require.NoError(t, env.store.SaveArtifact(ctx, "s1", "summary", []byte("x")))

	removed := env.store.ClearSessionCache("s1")
	assert.Equal(t, 3, removed)
	assert.Equal(t, 0, env.store.ClearSessionCache("s1"))
}

func TestEndedSessionMetadata_CriticalPriority(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	meta := testMeta("s1", "finished")
	meta.EndTime = meta.StartTime.Add(time.Hour)
	meta.DurationMs = time.Hour.Milliseconds()
	require.NoError(t, env.store.SaveMetadata(ctx, meta))
	env.flush(t)
	env.store.ClearSessionCache("s1")

	loaded, err := env.store.LoadMetadata(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, loaded.Ended())
	assert.Equal(t, time.Hour.Milliseconds(), loaded.DurationMs)
}
