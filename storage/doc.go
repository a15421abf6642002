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


// Package storage provides the storage abstraction layer for sessionvault.
//
// This package defines repository interfaces that decouple the storage
// implementation from the blob store, write queue and session store. It
// allows different backends (BadgerDB, in-memory, etc.) to be used
// interchangeably.
//
// # Key Layout
//
// All persisted data lives in one keyspace, partitioned by prefix:
//
//   - blodat:{hash}                     blob payload bytes
//   - blorec:{hash}                     blob metadata record (MUS encoded)
//   - sesmet:{sessionID}                session metadata (MUS encoded)
//   - seschk:{sessionID}:{type}:{idx}   chunk collection (MUS encoded)
//   - sesart:{sessionID}:{name}         named large object (raw bytes)
//
// Chunk indices are zero-padded so lexicographic key order matches numeric
// chunk order under prefix scans.
//
// # Interfaces
//
//   - KVWriter: raw Put/Delete surface drained by the write queue
//   - BlobRepository: content-addressed payloads plus metadata records
//   - SessionRepository: read path for session metadata, chunks, artifacts
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support concurrent
// access from multiple goroutines. Serializing read-modify-write cycles on
// one blob's reference list is the blob store's job, not the repository's.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation and
// timeout support. Pass context.Background() for operations without
// specific timeout requirements.
package storage
