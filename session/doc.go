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


// Package session coordinates multimedia session records across the
// subsystems underneath it: the read repository, the content-addressed blob
// store and the asynchronous write queue.
//
// A session record is split into independently addressable pieces so small
// mutations stay small: one metadata object, fixed-size screenshot and audio
// chunks, and named artifacts for heavy derived text. Binary payloads never
// live in the record itself; they are saved as blob attachments and the
// record carries content hashes.
//
// Mutations update the read cache synchronously and enqueue the durable
// write, so callers observe their own writes immediately. Ended-session
// metadata and whole-session deletes bypass batching at critical priority.
package session
