package core

import (
	"encoding/hex"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// Hash is the content address of a stored blob: the lowercase hex encoding
// of the BLAKE2b-256 digest of its bytes. Identical bytes always produce the
// identical Hash, which is what makes deduplication structural.
type Hash string

// HashBlob computes the content hash for a byte payload.
func HashBlob(data []byte) Hash {
	h, _ := blake2b.New(32, nil) // 32 bytes = 256 bits
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// Blob is a raw binary payload with its MIME type. Blobs are immutable once
// stored; transforms produce new blobs with new hashes.
type Blob struct {
	Data     []byte
	MimeType string
	Size     int64
}

// Reference identifies one (owning session, logical attachment) pair that
// uses a blob. The same blob may be referenced by many owners.
type Reference struct {
	OwnerID      string
	AttachmentID string
	AddedAt      time.Time
}

// BlobRecord is the persisted metadata for one unique blob.
//
// Invariant: RefCount == len(References) at all times. Both fields are
// mutated only through the blobstore reference API, never directly.
type BlobRecord struct {
	Hash       Hash
	Size       int64
	MimeType   string
	References []Reference
	RefCount   int
}

// HasReference reports whether the record already carries a reference for
// the given (owner, attachment) pair.
func (r *BlobRecord) HasReference(ownerID, attachmentID string) bool {
	for _, ref := range r.References {
		if ref.OwnerID == ownerID && ref.AttachmentID == attachmentID {
			return true
		}
	}
	return false
}

// SessionMeta is the lightweight metadata object for a recording session.
// Heavy collections (screenshots, audio segments) live in separate chunks
// so that small metadata mutations never rewrite the full record.
type SessionMeta struct {
	ID               string
	Name             string
	StartTime        time.Time
	EndTime          time.Time // zero while the session is still recording
	DurationMs       int64
	Category         string
	Notes            string
	ScreenshotChunks int // number of persisted screenshot chunks
	AudioChunks      int // number of persisted audio chunks
	HasVideo         bool
	VideoHash        Hash // content hash of the full session video, if any
	InsertedAt       time.Time
	UpdatedAt        time.Time
}

// Ended reports whether the session has been finalized.
func (m *SessionMeta) Ended() bool {
	return !m.EndTime.IsZero()
}

// Screenshot is one captured frame. The image bytes themselves live in the
// blob store; AttachmentHash points at them.
type Screenshot struct {
	ID             string
	AttachmentHash Hash
	Timestamp      time.Time
	RelativeTimeMs int64
}

// AudioSegment is one recorded audio span, addressed the same way.
type AudioSegment struct {
	ID             string
	AttachmentHash Hash
	Timestamp      time.Time
	DurationMs     int64
	StartOffsetMs  int64
}

// ScreenshotChunk is one fixed-size batch of a session's screenshots,
// independently addressable by (SessionID, Index).
type ScreenshotChunk struct {
	SessionID   string
	Index       int
	Screenshots []Screenshot
}

// AudioChunk is one fixed-size batch of a session's audio segments.
type AudioChunk struct {
	SessionID string
	Index     int
	Segments  []AudioSegment
}

// SessionSummary is a listing-friendly view of a session: everything needed
// to render a session list without touching any chunk.
type SessionSummary struct {
	ID               string
	Name             string
	StartTime        time.Time
	EndTime          time.Time
	DurationMs       int64
	Category         string
	ScreenshotChunks int
	AudioChunks      int
	HasVideo         bool
	HasNotes         bool
}

// Summarize derives the summary view from session metadata.
func (m *SessionMeta) Summarize() *SessionSummary {
	return &SessionSummary{
		ID:               m.ID,
		Name:             m.Name,
		StartTime:        m.StartTime,
		EndTime:          m.EndTime,
		DurationMs:       m.DurationMs,
		Category:         m.Category,
		ScreenshotChunks: m.ScreenshotChunks,
		AudioChunks:      m.AudioChunks,
		HasVideo:         m.HasVideo,
		HasNotes:         m.Notes != "",
	}
}
