package blobstore

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/sessionvault/core"
)

// progressEvery controls how often the GC progress callback fires.
const progressEvery = 100

// GCProgress is invoked periodically during a garbage collection scan.
type GCProgress func(scanned, deleted int)

// GCResult summarizes one garbage collection pass.
type GCResult struct {
	Scanned    int
	Deleted    int
	FreedBytes int64
	Errs       []error
	Duration   time.Duration
}

// CollectGarbage deletes every blob whose reference count is zero.
//
// The sweep is best-effort: a failure deleting one blob is recorded in the
// result and the scan continues. onProgress may be nil.
func (s *Store) CollectGarbage(ctx context.Context, onProgress GCProgress) (*GCResult, error) {
	start := time.Now()
	result := &GCResult{}

	// Collect candidates first so the delete pass doesn't mutate the
	// keyspace under the iterator.
	var candidates []*core.BlobRecord
	err := s.repo.ForEachBlobRecord(ctx, func(record *core.BlobRecord) error {
		result.Scanned++
		if record.RefCount == 0 {
			candidates = append(candidates, record)
		}
		if onProgress != nil && result.Scanned%progressEvery == 0 {
			onProgress(result.Scanned, result.Deleted)
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	for _, record := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		// Re-check under the hash lock: a reference may have been added
		// between the scan and this delete.
		deleted, err := s.Delete(ctx, record.Hash)
		if err != nil {
			s.logger.Error("gc failed to delete blob", "hash", record.Hash, "err", err)
			result.Errs = append(result.Errs, fmt.Errorf("delete %s: %w", record.Hash, err))
			continue
		}
		if deleted {
			result.Deleted++
			result.FreedBytes += record.Size
			if onProgress != nil && result.Deleted%progressEvery == 0 {
				onProgress(result.Scanned, result.Deleted)
			}
		}
	}

	result.Duration = time.Since(start)
	s.logger.Info("garbage collection finished",
		"scanned", result.Scanned,
		"deleted", result.Deleted,
		"freed_bytes", result.FreedBytes,
		"errors", len(result.Errs),
		"duration", result.Duration)
	return result, nil
}

// Stats describes the stored corpus and how much deduplication saved.
type Stats struct {
	TotalBlobs               int
	TotalBytes               int64
	DedupSavingsBytes        int64
	AverageReferencesPerBlob float64
}

// Stats scans all blob records and reports corpus totals. Savings count the
// bytes that additional references would have duplicated in a store without
// content addressing.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	totalRefs := 0

	err := s.repo.ForEachBlobRecord(ctx, func(record *core.BlobRecord) error {
		stats.TotalBlobs++
		stats.TotalBytes += record.Size
		totalRefs += record.RefCount
		if record.RefCount > 1 {
			stats.DedupSavingsBytes += int64(record.RefCount-1) * record.Size
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if stats.TotalBlobs > 0 {
		stats.AverageReferencesPerBlob = float64(totalRefs) / float64(stats.TotalBlobs)
	}
	return stats, nil
}
