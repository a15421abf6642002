package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// Hand-written MUS serializers for the persisted record types. Timestamps
// are stored as Unix microseconds, matching the precision of the date keys.

var (
	// ReferenceMUS serializes Reference values.
	ReferenceMUS = referenceMUS{}
	// BlobRecordMUS serializes BlobRecord values.
	BlobRecordMUS = blobRecordMUS{}
	// SessionMetaMUS serializes SessionMeta values.
	SessionMetaMUS = sessionMetaMUS{}
	// ScreenshotMUS serializes Screenshot values.
	ScreenshotMUS = screenshotMUS{}
	// AudioSegmentMUS serializes AudioSegment values.
	AudioSegmentMUS = audioSegmentMUS{}
	// ScreenshotChunkMUS serializes ScreenshotChunk values.
	ScreenshotChunkMUS = screenshotChunkMUS{}
	// AudioChunkMUS serializes AudioChunk values.
	AudioChunkMUS = audioChunkMUS{}
)

var (
	referenceSliceMUS    = ord.NewSliceSer[Reference](ReferenceMUS)
	screenshotSliceMUS   = ord.NewSliceSer[Screenshot](ScreenshotMUS)
	audioSegmentSliceMUS = ord.NewSliceSer[AudioSegment](AudioSegmentMUS)
)

func marshalTime(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	v, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(v).UTC(), n, nil
}

func sizeTime(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

type referenceMUS struct{}

func (referenceMUS) Marshal(r Reference, bs []byte) (n int) {
	n = ord.String.Marshal(r.OwnerID, bs)
	n += ord.String.Marshal(r.AttachmentID, bs[n:])
	n += marshalTime(r.AddedAt, bs[n:])
	return n
}

func (referenceMUS) Unmarshal(bs []byte) (r Reference, n int, err error) {
	var n1 int
	if r.OwnerID, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if r.AttachmentID, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	if r.AddedAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	return r, n, nil
}

func (referenceMUS) Size(r Reference) (size int) {
	size = ord.String.Size(r.OwnerID)
	size += ord.String.Size(r.AttachmentID)
	size += sizeTime(r.AddedAt)
	return size
}

func (referenceMUS) Skip(bs []byte) (n int, err error) {
	var n1 int
	if n, err = ord.String.Skip(bs); err != nil {
		return
	}
	if n1, err = ord.String.Skip(bs[n:]); err != nil {
		return n + n1, err
	}
	n += n1
	if n1, err = varint.Int64.Skip(bs[n:]); err != nil {
		return n + n1, err
	}
	return n + n1, nil
}

type blobRecordMUS struct{}

func (blobRecordMUS) Marshal(r BlobRecord, bs []byte) (n int) {
	n = ord.String.Marshal(string(r.Hash), bs)
	n += varint.Int64.Marshal(r.Size, bs[n:])
	n += ord.String.Marshal(r.MimeType, bs[n:])
	n += referenceSliceMUS.Marshal(r.References, bs[n:])
	n += varint.Int.Marshal(r.RefCount, bs[n:])
	return n
}

func (blobRecordMUS) Unmarshal(bs []byte) (r BlobRecord, n int, err error) {
	var (
		n1   int
		hash string
	)
	if hash, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	r.Hash = Hash(hash)
	if r.Size, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	if r.MimeType, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	if r.References, n1, err = referenceSliceMUS.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	if r.RefCount, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return r, n + n1, err
	}
	n += n1
	return r, n, nil
}

func (blobRecordMUS) Size(r BlobRecord) (size int) {
	size = ord.String.Size(string(r.Hash))
	size += varint.Int64.Size(r.Size)
	size += ord.String.Size(r.MimeType)
	size += referenceSliceMUS.Size(r.References)
	size += varint.Int.Size(r.RefCount)
	return size
}

func (blobRecordMUS) Skip(bs []byte) (n int, err error) {
	var n1 int
	if n, err = ord.String.Skip(bs); err != nil {
		return
	}
	if n1, err = varint.Int64.Skip(bs[n:]); err != nil {
		return n + n1, err
	}
	n += n1
	if n1, err = ord.String.Skip(bs[n:]); err != nil {
		return n + n1, err
	}
	n += n1
	if n1, err = referenceSliceMUS.Skip(bs[n:]); err != nil {
		return n + n1, err
	}
	n += n1
	if n1, err = varint.Int.Skip(bs[n:]); err != nil {
		return n + n1, err
	}
	return n + n1, nil
}

type sessionMetaMUS struct{}

func (sessionMetaMUS) Marshal(m SessionMeta, bs []byte) (n int) {
	n = ord.String.Marshal(m.ID, bs)
	n += ord.String.Marshal(m.Name, bs[n:])
	n += marshalTime(m.StartTime, bs[n:])
	n += marshalTime(m.EndTime, bs[n:])
	n += varint.Int64.Marshal(m.DurationMs, bs[n:])
	n += ord.String.Marshal(m.Category, bs[n:])
	n += ord.String.Marshal(m.Notes, bs[n:])
	n += varint.Int.Marshal(m.ScreenshotChunks, bs[n:])
	n += varint.Int.Marshal(m.AudioChunks, bs[n:])
	n += ord.Bool.Marshal(m.HasVideo, bs[n:])
	n += ord.String.Marshal(string(m.VideoHash), bs[n:])
	n += marshalTime(m.InsertedAt, bs[n:])
	n += marshalTime(m.UpdatedAt, bs[n:])
	return n
}

func (sessionMetaMUS) Unmarshal(bs []byte) (m SessionMeta, n int, err error) {
	var (
		n1   int
		hash string
	)
	if m.ID, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if m.Name, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return m, n + n1, err
	}
	n += n1
	if m.StartTime, n1, err = unmarshalTime(bs[n:]); err != nil {
		return m, n + n1, err
	}
	n += n1
	if m.EndTime, n1, err = unmarshalTime(bs[n:]); err != nil {
		return m, n + n1, err
	}
	n += n1
	if m.DurationMs, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return m, n + n1, err
	}
	n += n1
	if m.Category, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return m, n + n1, err
	}
	n += n1
	if m.Notes, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return m, n + n1, err
	}
	n += n1
	if m.ScreenshotChunks, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return m, n + n1, err
	}
	n += n1
	if m.AudioChunks, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return m, n + n1, err
	}
	n += n1
	if m.HasVideo, n1, err = ord.Bool.Unmarshal(bs[n:]); err != nil {
		return m, n + n1, err
	}
	n += n1
	if hash, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return m, n + n1, err
	}
	n += n1
	m.VideoHash = Hash(hash)
	if m.InsertedAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return m, n + n1, err
	}
	n += n1
	if m.UpdatedAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return m, n + n1, err
	}
	n += n1
	return m, n, nil
}

func (sessionMetaMUS) Size(m SessionMeta) (size int) {
	size = ord.String.Size(m.ID)
	size += ord.String.Size(m.Name)
	size += sizeTime(m.StartTime)
	size += sizeTime(m.EndTime)
	size += varint.Int64.Size(m.DurationMs)
	size += ord.String.Size(m.Category)
	size += ord.String.Size(m.Notes)
	size += varint.Int.Size(m.ScreenshotChunks)
	size += varint.Int.Size(m.AudioChunks)
	size += ord.Bool.Size(m.HasVideo)
	size += ord.String.Size(string(m.VideoHash))
	size += sizeTime(m.InsertedAt)
	size += sizeTime(m.UpdatedAt)
	return size
}

func (s sessionMetaMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}

type screenshotMUS struct{}

func (screenshotMUS) Marshal(s Screenshot, bs []byte) (n int) {
	n = ord.String.Marshal(s.ID, bs)
	n += ord.String.Marshal(string(s.AttachmentHash), bs[n:])
	n += marshalTime(s.Timestamp, bs[n:])
	n += varint.Int64.Marshal(s.RelativeTimeMs, bs[n:])
	return n
}

func (screenshotMUS) Unmarshal(bs []byte) (s Screenshot, n int, err error) {
	var (
		n1   int
		hash string
	)
	if s.ID, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if hash, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return s, n + n1, err
	}
	n += n1
	s.AttachmentHash = Hash(hash)
	if s.Timestamp, n1, err = unmarshalTime(bs[n:]); err != nil {
		return s, n + n1, err
	}
	n += n1
	if s.RelativeTimeMs, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return s, n + n1, err
	}
	n += n1
	return s, n, nil
}

func (screenshotMUS) Size(s Screenshot) (size int) {
	size = ord.String.Size(s.ID)
	size += ord.String.Size(string(s.AttachmentHash))
	size += sizeTime(s.Timestamp)
	size += varint.Int64.Size(s.RelativeTimeMs)
	return size
}

func (m screenshotMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = m.Unmarshal(bs)
	return n, err
}

type audioSegmentMUS struct{}

func (audioSegmentMUS) Marshal(s AudioSegment, bs []byte) (n int) {
	n = ord.String.Marshal(s.ID, bs)
	n += ord.String.Marshal(string(s.AttachmentHash), bs[n:])
	n += marshalTime(s.Timestamp, bs[n:])
	n += varint.Int64.Marshal(s.DurationMs, bs[n:])
	n += varint.Int64.Marshal(s.StartOffsetMs, bs[n:])
	return n
}

func (audioSegmentMUS) Unmarshal(bs []byte) (s AudioSegment, n int, err error) {
	var (
		n1   int
		hash string
	)
	if s.ID, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if hash, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return s, n + n1, err
	}
	n += n1
	s.AttachmentHash = Hash(hash)
	if s.Timestamp, n1, err = unmarshalTime(bs[n:]); err != nil {
		return s, n + n1, err
	}
	n += n1
	if s.DurationMs, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return s, n + n1, err
	}
	n += n1
	if s.StartOffsetMs, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return s, n + n1, err
	}
	n += n1
	return s, n, nil
}

func (audioSegmentMUS) Size(s AudioSegment) (size int) {
	size = ord.String.Size(s.ID)
	size += ord.String.Size(string(s.AttachmentHash))
	size += sizeTime(s.Timestamp)
	size += varint.Int64.Size(s.DurationMs)
	size += varint.Int64.Size(s.StartOffsetMs)
	return size
}

func (m audioSegmentMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = m.Unmarshal(bs)
	return n, err
}

type screenshotChunkMUS struct{}

func (screenshotChunkMUS) Marshal(c ScreenshotChunk, bs []byte) (n int) {
	n = ord.String.Marshal(c.SessionID, bs)
	n += varint.Int.Marshal(c.Index, bs[n:])
	n += screenshotSliceMUS.Marshal(c.Screenshots, bs[n:])
	return n
}

func (screenshotChunkMUS) Unmarshal(bs []byte) (c ScreenshotChunk, n int, err error) {
	var n1 int
	if c.SessionID, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if c.Index, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.Screenshots, n1, err = screenshotSliceMUS.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	return c, n, nil
}

func (screenshotChunkMUS) Size(c ScreenshotChunk) (size int) {
	size = ord.String.Size(c.SessionID)
	size += varint.Int.Size(c.Index)
	size += screenshotSliceMUS.Size(c.Screenshots)
	return size
}

func (m screenshotChunkMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = m.Unmarshal(bs)
	return n, err
}

type audioChunkMUS struct{}

func (audioChunkMUS) Marshal(c AudioChunk, bs []byte) (n int) {
	n = ord.String.Marshal(c.SessionID, bs)
	n += varint.Int.Marshal(c.Index, bs[n:])
	n += audioSegmentSliceMUS.Marshal(c.Segments, bs[n:])
	return n
}

func (audioChunkMUS) Unmarshal(bs []byte) (c AudioChunk, n int, err error) {
	var n1 int
	if c.SessionID, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if c.Index, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.Segments, n1, err = audioSegmentSliceMUS.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	return c, n, nil
}

func (audioChunkMUS) Size(c AudioChunk) (size int) {
	size = ord.String.Size(c.SessionID)
	size += varint.Int.Size(c.Index)
	size += audioSegmentSliceMUS.Size(c.Segments)
	return size
}

func (m audioChunkMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = m.Unmarshal(bs)
	return n, err
}
