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


package storage

import (
	"github.com/poiesic/sessionvault/core"
)

// MarshalBlobRecord serializes a BlobRecord to bytes.
func MarshalBlobRecord(record *core.BlobRecord) []byte {
	buf := make([]byte, core.BlobRecordMUS.Size(*record))
	core.BlobRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalBlobRecord deserializes a BlobRecord from bytes.
func UnmarshalBlobRecord(data []byte) (*core.BlobRecord, error) {
	record, _, err := core.BlobRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// MarshalSessionMeta serializes session metadata to bytes.
func MarshalSessionMeta(meta *core.SessionMeta) []byte {
	buf := make([]byte, core.SessionMetaMUS.Size(*meta))
	core.SessionMetaMUS.Marshal(*meta, buf)
	return buf
}

// UnmarshalSessionMeta deserializes session metadata from bytes.
func UnmarshalSessionMeta(data []byte) (*core.SessionMeta, error) {
	meta, _, err := core.SessionMetaMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// MarshalScreenshotChunk serializes a ScreenshotChunk to bytes.
func MarshalScreenshotChunk(chunk *core.ScreenshotChunk) []byte {
	buf := make([]byte, core.ScreenshotChunkMUS.Size(*chunk))
	core.ScreenshotChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalScreenshotChunk deserializes a ScreenshotChunk from bytes.
func UnmarshalScreenshotChunk(data []byte) (*core.ScreenshotChunk, error) {
	chunk, _, err := core.ScreenshotChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// MarshalAudioChunk serializes an AudioChunk to bytes.
func MarshalAudioChunk(chunk *core.AudioChunk) []byte {
	buf := make([]byte, core.AudioChunkMUS.Size(*chunk))
	core.AudioChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalAudioChunk deserializes an AudioChunk from bytes.
func UnmarshalAudioChunk(data []byte) (*core.AudioChunk, error) {
	chunk, _, err := core.AudioChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}
