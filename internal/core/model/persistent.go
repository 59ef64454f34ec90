// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package model defines the data structures for the application. This file,
// `persistent.go`, holds the records that are written to the relational store:
// clips, script segments, matches and the per-user usage counter.
//
// Embeddings and tags are JSON columns (datatypes.JSONSlice) in the relational
// store. The BigQuery store maps these structs to its own row types.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ClipStatus is the lifecycle state of a clip.
type ClipStatus string

const (
	ClipStatusUploading  ClipStatus = "uploading"
	ClipStatusProcessing ClipStatus = "processing"
	ClipStatusReady      ClipStatus = "ready"
	ClipStatusError      ClipStatus = "error"
)

// Clip is an uploaded video asset and its derived metadata and state.
//
// A clip in the `ready` state always has a duration and a frame count. A clip
// in the `error` state always has an error message.
type Clip struct {
	ID              string                       `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectID       string                       `gorm:"index;type:varchar(64);not null" json:"project_id"`
	UserID          string                       `gorm:"index;type:varchar(64);not null" json:"user_id"`
	FileName        string                       `json:"file_name"`
	StoragePath     string                       `json:"storage_path"`
	ThumbnailPath   *string                      `json:"thumbnail_path,omitempty"`
	DurationSeconds *float64                     `json:"duration_seconds,omitempty"`
	Status          ClipStatus                   `gorm:"index;type:varchar(16);not null" json:"status"`
	Description     *string                      `json:"description,omitempty"`
	Tags            datatypes.JSONSlice[string]  `json:"tags"`
	FrameCount      int                          `json:"frame_count"`
	ErrorMessage    *string                      `json:"error_message,omitempty"`
	Embedding       datatypes.JSONSlice[float32] `json:"-"`
	CreatedAt       time.Time                    `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time                    `json:"updated_at"`
}

// NewClip creates a clip in the `processing` state with a fresh identifier.
func NewClip(projectID, userID, fileName, storagePath string) *Clip {
	now := time.Now().UTC()
	return &Clip{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		UserID:      userID,
		FileName:    fileName,
		StoragePath: storagePath,
		Status:      ClipStatusProcessing,
		Tags:        datatypes.JSONSlice[string]{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// HasEmbedding reports whether an embedding has been computed for the clip.
func (c *Clip) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// ScriptSegment is one paragraph of a project's script.
type ScriptSegment struct {
	ID        string                       `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectID string                       `gorm:"index;type:varchar(64);not null" json:"project_id"`
	UserID    string                       `gorm:"type:varchar(64)" json:"user_id"`
	Content   string                       `json:"content"`
	Position  int                          `gorm:"index" json:"position"`
	Embedding datatypes.JSONSlice[float32] `json:"-"`
	CreatedAt time.Time                    `json:"created_at"`
}

// NewScriptSegment creates a segment at the given zero-based position.
func NewScriptSegment(projectID, userID, content string, position int) *ScriptSegment {
	return &ScriptSegment{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		UserID:    userID,
		Content:   content,
		Position:  position,
		CreatedAt: time.Now().UTC(),
	}
}

// HasEmbedding reports whether an embedding has been computed for the segment.
func (s *ScriptSegment) HasEmbedding() bool {
	return len(s.Embedding) > 0
}

// Match is a ranked association between a segment and a clip. Rank 1 is the
// best match for the segment.
type Match struct {
	ID              string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	SegmentID       string    `gorm:"index;type:varchar(64);not null" json:"segment_id"`
	ClipID          string    `gorm:"index;type:varchar(64);not null" json:"clip_id"`
	SimilarityScore float64   `json:"similarity_score"`
	Rank            int       `json:"rank"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewMatch creates a match row with a fresh identifier.
func NewMatch(segmentID, clipID string, score float64, rank int) *Match {
	return &Match{
		ID:              uuid.NewString(),
		SegmentID:       segmentID,
		ClipID:          clipID,
		SimilarityScore: score,
		Rank:            rank,
		CreatedAt:       time.Now().UTC(),
	}
}

// UsageCounter tracks the cumulative seconds of video processed for a user.
type UsageCounter struct {
	UserID           string    `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	ProcessedSeconds float64   `json:"processed_seconds"`
	UpdatedAt        time.Time `json:"updated_at"`
}
