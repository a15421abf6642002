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

import (
	"encoding/hex"
	"fmt"
)

// hashHexLen is the length of a hex-encoded BLAKE2b-256 digest.
const hashHexLen = 64

// ValidateBlob validates a Blob according to domain rules.
//
// Validation rules:
//   - Data must not be empty
//   - MimeType must not be empty
//
// NOT validated:
//   - Size (derived from len(Data) on save, caller value is advisory)
func ValidateBlob(blob *Blob) error {
	if blob == nil {
		return fmt.Errorf("%w: blob is nil", ErrInvalidBlob)
	}

	if len(blob.Data) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidBlob, ErrEmptyBlobData)
	}

	if blob.MimeType == "" {
		return fmt.Errorf("%w: %w", ErrInvalidBlob, ErrEmptyMimeType)
	}

	return nil
}

// ValidateSessionMeta validates session metadata according to domain rules.
//
// Validation rules:
//   - ID must not be empty
//   - Name must not be empty
//   - EndTime, when set, must not precede StartTime
//
// NOT validated (populated by the session store):
//   - InsertedAt / UpdatedAt
//   - Chunk counts (maintained as chunks are saved)
func ValidateSessionMeta(meta *SessionMeta) error {
	if meta == nil {
		return fmt.Errorf("%w: metadata is nil", ErrInvalidSessionMeta)
	}

	if meta.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidSessionMeta, ErrEmptySessionID)
	}

	if meta.Name == "" {
		return fmt.Errorf("%w: %w", ErrInvalidSessionMeta, ErrEmptySessionName)
	}

	if meta.Ended() && meta.EndTime.Before(meta.StartTime) {
		return fmt.Errorf("%w: %w", ErrInvalidSessionMeta, ErrInvalidTimeRange)
	}

	return nil
}

// ValidateReference validates a blob reference.
func ValidateReference(ref *Reference) error {
	if ref == nil {
		return fmt.Errorf("%w: reference is nil", ErrInvalidReference)
	}

	if ref.OwnerID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidReference, ErrEmptyOwnerID)
	}

	return nil
}

// ValidateHash checks that a hash has the shape of a hex BLAKE2b-256 digest.
func ValidateHash(hash Hash) error {
	if len(hash) != hashHexLen {
		return fmt.Errorf("%w: length %d", ErrInvalidHash, len(hash))
	}
	if _, err := hex.DecodeString(string(hash)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	return nil
}
