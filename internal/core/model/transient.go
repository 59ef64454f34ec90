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

// Package model defines the core data structures for the application.
// This file, `transient.go`, contains struct definitions for data that only
// lives in memory while a workflow runs. These values are passed between the
// commands of a chain and are folded into the persistent records at the end.
package model

// Frame is one extracted still image. Frames are returned by the extractor as
// an ordered list; consumers never rebuild paths from indices.
type Frame struct {
	Index         int     // Zero-based position in the extracted sequence.
	Path          string  // Local path of the image file.
	OffsetSeconds float64 // Position of the frame in the source video.
}

// TagResult is the validated output of the vision model for one clip.
type TagResult struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// ClipReadyUpdate carries everything written to a clip when it becomes ready.
type ClipReadyUpdate struct {
	DurationSeconds float64
	FrameCount      int
	ThumbnailPath   string
	Description     string
	Tags            []string
}

// MatchRequest is the payload used to ask for a project's matches to be rebuilt.
// It is the body of POST /match and of the Pub/Sub match messages.
type MatchRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
}

// MatchSummary reports what a single matching pass did.
type MatchSummary struct {
	ProjectID         string `json:"project_id"`
	Segments          int    `json:"segments"`
	Clips             int    `json:"clips"`
	EmbeddingsCreated int    `json:"embeddings_created"`
	MatchesWritten    int    `json:"matches_written"`
}

// SegmentMatches is one segment of a script with its ranked clips, best first.
type SegmentMatches struct {
	SegmentID string   `json:"segment_id"`
	Position  int      `json:"position"`
	Content   string   `json:"content"`
	Matches   []*Match `json:"matches"`
}
