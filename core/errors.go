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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidBlob indicates a Blob failed validation.
	ErrInvalidBlob = errors.New("invalid blob")

	// ErrEmptyBlobData indicates the blob payload is empty.
	ErrEmptyBlobData = errors.New("blob data cannot be empty")

	// ErrEmptyMimeType indicates the blob MIME type is missing.
	ErrEmptyMimeType = errors.New("mime type cannot be empty")

	// ErrInvalidSessionMeta indicates SessionMeta failed validation.
	ErrInvalidSessionMeta = errors.New("invalid session metadata")

	// ErrEmptySessionID indicates the session ID field is empty.
	ErrEmptySessionID = errors.New("session id cannot be empty")

	// ErrEmptySessionName indicates the session Name field is empty.
	ErrEmptySessionName = errors.New("session name cannot be empty")

	// ErrInvalidTimeRange indicates EndTime precedes StartTime.
	ErrInvalidTimeRange = errors.New("end time cannot precede start time")

	// ErrInvalidReference indicates a Reference failed validation.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrEmptyOwnerID indicates the reference OwnerID field is empty.
	ErrEmptyOwnerID = errors.New("owner id cannot be empty")

	// ErrInvalidHash indicates a malformed content hash.
	ErrInvalidHash = errors.New("invalid content hash")
)
