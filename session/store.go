// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/sessionvault/blobstore"
	"github.com/poiesic/sessionvault/cache"
	"github.com/poiesic/sessionvault/core"
	"github.com/poiesic/sessionvault/queue"
	"github.com/poiesic/sessionvault/storage"
)

// DefaultCacheMaxBytes bounds the session read cache.
const DefaultCacheMaxBytes = 100 * 1024 * 1024

// DefaultCacheTTL expires cached session records after five minutes.
const DefaultCacheTTL = 5 * time.Minute

// DefaultChunkCapacity is how many screenshots or audio segments one chunk
// holds before the append APIs roll over to a new chunk.
const DefaultChunkCapacity = 50

// Store coordinates session records across the read repository, the blob
// store and the write queue. Reads are served cache-first; mutations update
// the cache synchronously and enqueue the durable write, so a reader always
// observes its own writes even before they land on disk.
//
// Metadata, chunks and artifacts are independently addressable: saving a
// chunk never rewrites metadata beyond its chunk counters, and loading a
// session list touches no chunk at all.
type Store struct {
	repo     storage.SessionRepository
	blobs    *blobstore.Store
	queue    *queue.Queue
	cache    *cache.Cache[string, any]
	capacity int
	logger   *slog.Logger

	appendMu sync.Mutex
}

// Option configures a Store.
type Option func(*options)

type options struct {
	cacheMaxBytes int64
	cacheTTL      time.Duration
	capacity      int
	logger        *slog.Logger
}

// WithCacheMaxBytes overrides the read cache size budget.
func WithCacheMaxBytes(maxBytes int64) Option {
	return func(o *options) {
		if maxBytes > 0 {
			o.cacheMaxBytes = maxBytes
		}
	}
}

// WithCacheTTL overrides the read cache entry lifetime. Zero disables expiry.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.cacheTTL = ttl
	}
}

// WithChunkCapacity overrides how many entries the append APIs pack into
// one chunk before rolling over.
func WithChunkCapacity(capacity int) Option {
	return func(o *options) {
		if capacity > 0 {
			o.capacity = capacity
		}
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewStore creates a session store over the given repository, blob store and
// write queue.
func NewStore(repo storage.SessionRepository, blobs *blobstore.Store, q *queue.Queue, opts ...Option) (*Store, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if blobs == nil {
		return nil, ErrBlobStoreRequired
	}
	if q == nil {
		return nil, ErrQueueRequired
	}

	o := options{
		cacheMaxBytes: DefaultCacheMaxBytes,
		cacheTTL:      DefaultCacheTTL,
		capacity:      DefaultChunkCapacity,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Store{
		repo:     repo,
		blobs:    blobs,
		queue:    q,
		capacity: o.capacity,
		cache: cache.New[string, any](cache.Options[any]{
			MaxBytes: o.cacheMaxBytes,
			TTL:      o.cacheTTL,
			Sizer:    sizeCached,
			Logger:   o.logger,
		}),
		logger: o.logger,
	}, nil
}

// AppendScreenshot adds one screenshot to the session's newest chunk,
// rolling over to a fresh chunk at the capacity boundary. Requires the
// session metadata to exist.
func (s *Store) AppendScreenshot(ctx context.Context, sessionID string, shot core.Screenshot) error {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	meta, err := s.LoadMetadata(ctx, sessionID)
	if err != nil {
		return err
	}

	chunk := &core.ScreenshotChunk{SessionID: sessionID}
	if meta.ScreenshotChunks > 0 {
		last, err := s.LoadScreenshotChunk(ctx, sessionID, meta.ScreenshotChunks-1)
		if err != nil {
			return err
		}
		if len(last.Screenshots) < s.capacity {
			chunk = &core.ScreenshotChunk{
				SessionID:   sessionID,
				Index:       last.Index,
				Screenshots: append(append([]core.Screenshot(nil), last.Screenshots...), shot),
			}
			return s.SaveScreenshotChunk(ctx, chunk)
		}
		chunk.Index = meta.ScreenshotChunks
	}
	chunk.Screenshots = []core.Screenshot{shot}
	return s.SaveScreenshotChunk(ctx, chunk)
}

// AppendAudioSegment adds one audio segment to the session's newest chunk,
// rolling over at the capacity boundary. Requires the session metadata to
// exist.
func (s *Store) AppendAudioSegment(ctx context.Context, sessionID string, seg core.AudioSegment) error {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	meta, err := s.LoadMetadata(ctx, sessionID)
	if err != nil {
		return err
	}

	chunk := &core.AudioChunk{SessionID: sessionID}
	if meta.AudioChunks > 0 {
		last, err := s.LoadAudioChunk(ctx, sessionID, meta.AudioChunks-1)
		if err != nil {
			return err
		}
		if len(last.Segments) < s.capacity {
			chunk = &core.AudioChunk{
				SessionID: sessionID,
				Index:     last.Index,
				Segments:  append(append([]core.AudioSegment(nil), last.Segments...), seg),
			}
			return s.SaveAudioChunk(ctx, chunk)
		}
		chunk.Index = meta.AudioChunks
	}
	chunk.Segments = []core.AudioSegment{seg}
	return s.SaveAudioChunk(ctx, chunk)
}

// sizeCached measures session records by their serialized size, which tracks
// the in-memory footprint closely enough for eviction purposes.
func sizeCached(v any) (int64, error) {
	switch t := v.(type) {
	case *core.SessionMeta:
		return int64(core.SessionMetaMUS.Size(*t)), nil
	case *core.ScreenshotChunk:
		return int64(core.ScreenshotChunkMUS.Size(*t)), nil
	case *core.AudioChunk:
		return int64(core.AudioChunkMUS.Size(*t)), nil
	case []byte:
		return int64(len(t)), nil
	}
	return 0, cache.ErrUnsizable
}

// Cache keys are namespaced separately from storage keys so a session's
// records can be invalidated by prefix without touching other sessions.

func metaCacheKey(sessionID string) string {
	return "metadata:" + sessionID
}

func chunkCacheKey(sessionID string, chunkType storage.ChunkType, index int) string {
	return fmt.Sprintf("chunk:%s:%s:%d", sessionID, chunkType, index)
}

func artifactCacheKey(sessionID, name string) string {
	return fmt.Sprintf("artifact:%s:%s", sessionID, name)
}

// SaveMetadata persists session metadata. The cache is updated immediately;
// the durable write is asynchronous. Metadata for an ended session is
// enqueued at critical priority so a finalized record is never left waiting
// behind routine traffic.
func (s *Store) SaveMetadata(ctx context.Context, meta *core.SessionMeta) error {
	if err := core.ValidateSessionMeta(meta); err != nil {
		return err
	}

	now := time.Now().UTC()
	if meta.InsertedAt.IsZero() {
		meta.InsertedAt = now
	}
	meta.UpdatedAt = now

	s.cache.Set(metaCacheKey(meta.ID), meta)

	priority := queue.PriorityNormal
	if meta.Ended() {
		priority = queue.PriorityCritical
	}
	s.queue.Enqueue(storage.SessionMetaKey(meta.ID), storage.MarshalSessionMeta(meta), priority)

	s.logger.Debug("session metadata saved", "session", meta.ID, "ended", meta.Ended(), "priority", priority)
	return nil
}

// LoadMetadata retrieves session metadata, cache-first. Returns
// storage.ErrNotFound for an unknown session.
func (s *Store) LoadMetadata(ctx context.Context, sessionID string) (*core.SessionMeta, error) {
	if v, ok := s.cache.Get(metaCacheKey(sessionID)); ok {
		if meta, ok := v.(*core.SessionMeta); ok {
			return meta, nil
		}
	}

	meta, err := s.repo.GetMeta(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(metaCacheKey(sessionID), meta)
	return meta, nil
}

// SaveScreenshotChunk persists one screenshot chunk and advances the
// session's screenshot chunk counter when the chunk extends the collection.
func (s *Store) SaveScreenshotChunk(ctx context.Context, chunk *core.ScreenshotChunk) error {
	if chunk == nil {
		return ErrNilChunk
	}
	if chunk.SessionID == "" {
		return core.ErrEmptySessionID
	}
	if chunk.Index < 0 {
		return ErrNegativeChunkIndex
	}

	s.cache.Set(chunkCacheKey(chunk.SessionID, storage.ChunkTypeScreenshot, chunk.Index), chunk)
	s.queue.Enqueue(
		storage.ChunkKey(chunk.SessionID, storage.ChunkTypeScreenshot, chunk.Index),
		storage.MarshalScreenshotChunk(chunk),
		queue.PriorityNormal,
	)

	s.bumpChunkCount(ctx, chunk.SessionID, storage.ChunkTypeScreenshot, chunk.Index)
	return nil
}

// LoadScreenshotChunk retrieves one screenshot chunk, cache-first. Returns
// storage.ErrNotFound if the chunk doesn't exist.
func (s *Store) LoadScreenshotChunk(ctx context.Context, sessionID string, index int) (*core.ScreenshotChunk, error) {
	key := chunkCacheKey(sessionID, storage.ChunkTypeScreenshot, index)
	if v, ok := s.cache.Get(key); ok {
		if chunk, ok := v.(*core.ScreenshotChunk); ok {
			return chunk, nil
		}
	}

	chunk, err := s.repo.GetScreenshotChunk(ctx, sessionID, index)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, chunk)
	return chunk, nil
}

// SaveAudioChunk persists one audio chunk and advances the session's audio
// chunk counter when the chunk extends the collection.
func (s *Store) SaveAudioChunk(ctx context.Context, chunk *core.AudioChunk) error {
	if chunk == nil {
		return ErrNilChunk
	}
	if chunk.SessionID == "" {
		return core.ErrEmptySessionID
	}
	if chunk.Index < 0 {
		return ErrNegativeChunkIndex
	}

	s.cache.Set(chunkCacheKey(chunk.SessionID, storage.ChunkTypeAudio, chunk.Index), chunk)
	s.queue.Enqueue(
		storage.ChunkKey(chunk.SessionID, storage.ChunkTypeAudio, chunk.Index),
		storage.MarshalAudioChunk(chunk),
		queue.PriorityNormal,
	)

	s.bumpChunkCount(ctx, chunk.SessionID, storage.ChunkTypeAudio, chunk.Index)
	return nil
}

// LoadAudioChunk retrieves one audio chunk, cache-first. Returns
// storage.ErrNotFound if the chunk doesn't exist.
func (s *Store) LoadAudioChunk(ctx context.Context, sessionID string, index int) (*core.AudioChunk, error) {
	key := chunkCacheKey(sessionID, storage.ChunkTypeAudio, index)
	if v, ok := s.cache.Get(key); ok {
		if chunk, ok := v.(*core.AudioChunk); ok {
			return chunk, nil
		}
	}

	chunk, err := s.repo.GetAudioChunk(ctx, sessionID, index)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, chunk)
	return chunk, nil
}

// bumpChunkCount extends the metadata chunk counter to cover index. A
// missing metadata record is tolerated: chunks may arrive before metadata
// during recovery, and the counter catches up on the next metadata save.
func (s *Store) bumpChunkCount(ctx context.Context, sessionID string, chunkType storage.ChunkType, index int) {
	meta, err := s.LoadMetadata(ctx, sessionID)
	if err != nil {
		s.logger.Debug("chunk saved without session metadata", "session", sessionID, "type", chunkType)
		return
	}

	updated := *meta
	switch chunkType {
	case storage.ChunkTypeScreenshot:
		if index+1 <= updated.ScreenshotChunks {
			return
		}
		updated.ScreenshotChunks = index + 1
	case storage.ChunkTypeAudio:
		if index+1 <= updated.AudioChunks {
			return
		}
		updated.AudioChunks = index + 1
	}

	if err := s.SaveMetadata(ctx, &updated); err != nil {
		s.logger.Warn("chunk counter update failed", "session", sessionID, "err", err)
	}
}

// SaveArtifact persists a named large object belonging to a session, such as
// a summary or transcript. Artifacts are derived data, so their durable
// writes run at low priority.
func (s *Store) SaveArtifact(ctx context.Context, sessionID, name string, data []byte) error {
	if sessionID == "" {
		return core.ErrEmptySessionID
	}
	if name == "" {
		return ErrEmptyArtifactName
	}

	s.cache.Set(artifactCacheKey(sessionID, name), data)
	s.queue.Enqueue(storage.ArtifactKey(sessionID, name), data, queue.PriorityLow)
	return nil
}

// LoadArtifact retrieves a named artifact, cache-first. Returns
// storage.ErrNotFound if the artifact doesn't exist.
func (s *Store) LoadArtifact(ctx context.Context, sessionID, name string) ([]byte, error) {
	key := artifactCacheKey(sessionID, name)
	if v, ok := s.cache.Get(key); ok {
		if data, ok := v.([]byte); ok {
			return data, nil
		}
	}

	data, err := s.repo.GetArtifact(ctx, sessionID, name)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, data)
	return data, nil
}

// SaveAttachment stores a binary payload in the blob store and records the
// session's reference to it. Identical payloads across sessions share one
// stored blob. Returns the content hash to embed in the session's chunks.
func (s *Store) SaveAttachment(ctx context.Context, sessionID, attachmentID string, blob *core.Blob) (core.Hash, error) {
	hash, err := s.blobs.Save(ctx, blob)
	if err != nil {
		return "", err
	}
	if err := s.blobs.AddReference(ctx, hash, sessionID, attachmentID); err != nil {
		return "", err
	}
	return hash, nil
}

// LoadAttachment retrieves an attachment payload by content hash. An
// unknown hash returns (nil, nil).
func (s *Store) LoadAttachment(ctx context.Context, hash core.Hash) (*core.Blob, error) {
	return s.blobs.Load(ctx, hash)
}

// DeleteSession removes a session record: its blob references are released,
// its cache entries are dropped, and deletes for every stored key are
// enqueued at critical priority. Blob payloads are reclaimed later by
// garbage collection, not here.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return core.ErrEmptySessionID
	}

	meta, metaErr := s.LoadMetadata(ctx, sessionID)

	s.releaseReferences(ctx, sessionID)

	// Discard queued writes for the session first, so a put still waiting
	// in the queue cannot land after the deletes and resurrect a key.
	metaKey := storage.SessionMetaKey(sessionID)
	chunkPrefix := storage.SessionChunkScanPrefix(sessionID)
	artifactPrefix := storage.SessionArtifactScanPrefix(sessionID)
	s.queue.CancelPending(func(key string) bool {
		return key == metaKey ||
			strings.HasPrefix(key, chunkPrefix) ||
			strings.HasPrefix(key, artifactPrefix)
	})

	keys, err := s.repo.ListSessionKeys(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("listing session keys: %w", err)
	}

	// The repo scan only sees keys whose writes already landed. Chunk keys
	// are also derived from the metadata counters to cover chunks whose
	// puts were still queued.
	keySet := make(map[string]bool, len(keys)+1)
	for _, key := range keys {
		keySet[key] = true
	}
	if metaErr == nil {
		for i := 0; i < meta.ScreenshotChunks; i++ {
			keySet[storage.ChunkKey(sessionID, storage.ChunkTypeScreenshot, i)] = true
		}
		for i := 0; i < meta.AudioChunks; i++ {
			keySet[storage.ChunkKey(sessionID, storage.ChunkTypeAudio, i)] = true
		}
	}
	keySet[metaKey] = true

	s.ClearSessionCache(sessionID)
	for key := range keySet {
		s.queue.EnqueueDelete(key, queue.PriorityCritical)
	}

	s.logger.Info("session deleted", "session", sessionID, "keys", len(keySet))
	return nil
}

// releaseReferences walks the session's chunks and drops every blob
// reference it holds. Best effort: a failed removal leaves an unreclaimable
// blob, never an incorrect one.
func (s *Store) releaseReferences(ctx context.Context, sessionID string) {
	meta, err := s.LoadMetadata(ctx, sessionID)
	if err != nil {
		return
	}

	hashes := make(map[core.Hash]bool)
	if meta.HasVideo && meta.VideoHash != "" {
		hashes[meta.VideoHash] = true
	}
	for i := 0; i < meta.ScreenshotChunks; i++ {
		chunk, err := s.LoadScreenshotChunk(ctx, sessionID, i)
		if err != nil {
			continue
		}
		for _, shot := range chunk.Screenshots {
			hashes[shot.AttachmentHash] = true
		}
	}
	for i := 0; i < meta.AudioChunks; i++ {
		chunk, err := s.LoadAudioChunk(ctx, sessionID, i)
		if err != nil {
			continue
		}
		for _, seg := range chunk.Segments {
			hashes[seg.AttachmentHash] = true
		}
	}

	for hash := range hashes {
		if hash == "" {
			continue
		}
		if err := s.blobs.RemoveReference(ctx, hash, sessionID); err != nil {
			s.logger.Warn("reference release failed", "session", sessionID, "hash", hash, "err", err)
		}
	}
}

// ClearSessionCache drops every cached record belonging to a session and
// returns the number of entries removed. Persistent state is untouched.
func (s *Store) ClearSessionCache(sessionID string) int {
	count := 0
	if s.cache.Delete(metaCacheKey(sessionID)) {
		count++
	}
	count += s.cache.InvalidatePrefix(fmt.Sprintf("chunk:%s:", sessionID))
	count += s.cache.InvalidatePrefix(fmt.Sprintf("artifact:%s:", sessionID))
	return count
}

// ListSessions returns metadata for every stored session, most recently
// started first.
func (s *Store) ListSessions(ctx context.Context) ([]*core.SessionMeta, error) {
	metas, err := s.repo.ListMetas(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].StartTime.After(metas[j].StartTime)
	})
	return metas, nil
}

// ListSummaries returns the listing view of every stored session, most
// recently started first.
func (s *Store) ListSummaries(ctx context.Context) ([]*core.SessionSummary, error) {
	metas, err := s.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]*core.SessionSummary, len(metas))
	for i, meta := range metas {
		summaries[i] = meta.Summarize()
	}
	return summaries, nil
}

// SearchSessions returns sessions whose name, category or notes contain the
// query, case-insensitively. An empty query matches everything.
func (s *Store) SearchSessions(ctx context.Context, query string) ([]*core.SessionMeta, error) {
	metas, err := s.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return metas, nil
	}

	needle := strings.ToLower(query)
	matched := metas[:0]
	for _, meta := range metas {
		if strings.Contains(strings.ToLower(meta.Name), needle) ||
			strings.Contains(strings.ToLower(meta.Category), needle) ||
			strings.Contains(strings.ToLower(meta.Notes), needle) {
			matched = append(matched, meta)
		}
	}
	return matched, nil
}

// SessionCount returns the number of stored sessions.
func (s *Store) SessionCount(ctx context.Context) (int, error) {
	metas, err := s.repo.ListMetas(ctx)
	if err != nil {
		return 0, err
	}
	return len(metas), nil
}

// Flush blocks until every enqueued write has reached a terminal state.
func (s *Store) Flush(ctx context.Context) error {
	return s.queue.Flush(ctx)
}

// CacheStats returns the read cache counters.
func (s *Store) CacheStats() cache.Stats {
	return s.cache.GetStats()
}

// QueueStats returns the write queue counters.
func (s *Store) QueueStats() queue.Stats {
	return s.queue.GetStats()
}
