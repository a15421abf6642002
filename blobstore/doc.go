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


// Package blobstore provides content-addressed, deduplicating blob storage
// with reference-counted reclamation.
//
// Every blob is stored under the BLAKE2b-256 hash of its bytes, so saving
// the same content from any number of sessions stores it exactly once.
// Owners register interest through references; a blob becomes reclaimable
// only when its reference count reaches zero, and actual reclamation is an
// explicit, best-effort garbage collection sweep.
//
// Reference mutations on one hash are serialized through striped locks to
// keep the refCount == len(references) invariant under concurrency;
// mutations on different hashes proceed in parallel.
package blobstore
