package storage

import "fmt"

// Key prefixes for different data types. Blob payloads and blob records are
// keyed by content hash; session data is keyed by session ID plus chunk
// coordinates. Prefixes are distinct so prefix scans never cross types.
const (
	BlobDataPrefix    = "blodat"
	BlobRecordPrefix  = "blorec"
	SessionMetaPrefix = "sesmet"
	ChunkPrefix       = "seschk"
	ArtifactPrefix    = "sesart"
)

// ChunkType distinguishes the independently addressable chunk collections
// that make up one session record.
type ChunkType string

const (
	ChunkTypeScreenshot ChunkType = "shot"
	ChunkTypeAudio      ChunkType = "audio"
)

// BlobDataKey returns the key holding a blob's raw payload.
func BlobDataKey(hash string) string {
	return fmt.Sprintf("%s:%s", BlobDataPrefix, hash)
}

// BlobRecordKey returns the key holding a blob's metadata record.
func BlobRecordKey(hash string) string {
	return fmt.Sprintf("%s:%s", BlobRecordPrefix, hash)
}

// SessionMetaKey returns the key holding a session's metadata object.
func SessionMetaKey(sessionID string) string {
	return fmt.Sprintf("%s:%s", SessionMetaPrefix, sessionID)
}

// ChunkKey returns the key for one (session, chunk type, index) collection.
func ChunkKey(sessionID string, chunkType ChunkType, index int) string {
	return fmt.Sprintf("%s:%s:%s:%08d", ChunkPrefix, sessionID, chunkType, index)
}

// SessionChunkScanPrefix returns the prefix covering every chunk of a session.
func SessionChunkScanPrefix(sessionID string) string {
	return fmt.Sprintf("%s:%s:", ChunkPrefix, sessionID)
}

// ArtifactKey returns the key for a named large object belonging to a
// session, such as a summary or transcript.
func ArtifactKey(sessionID, name string) string {
	return fmt.Sprintf("%s:%s:%s", ArtifactPrefix, sessionID, name)
}

// SessionArtifactScanPrefix returns the prefix covering every artifact of a
// session.
func SessionArtifactScanPrefix(sessionID string) string {
	return fmt.Sprintf("%s:%s:", ArtifactPrefix, sessionID)
}
