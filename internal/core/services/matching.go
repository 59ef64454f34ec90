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

// Package services contains the business logic that sits on top of the store.
// This file, `matching.go`, defines the MatchingEngine, which ranks a project's
// ready clips against each of its script segments by cosine similarity of
// their text embeddings.
//
// A run rebuilds the project's matches from scratch:
//  1. Load the segments (by position) and the ready clips.
//  2. Embed whatever lacks an embedding, persist it and read it back.
//  3. Score every segment against every clip and keep the best topK.
//  4. Replace the stored matches of the scored segments in one call.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTopK is the number of matches kept per segment.
const DefaultTopK = 5

// ErrLengthMismatch is the cause of the validation error raised when two
// embeddings of different lengths are compared.
var ErrLengthMismatch = errors.New("embedding lengths differ")

// MatchingEngine computes and stores segment to clip matches.
type MatchingEngine struct {
	store    store.Store
	embedder Embedder
	topK     int
	tracer   trace.Tracer
}

// NewMatchingEngine creates an engine. topK <= 0 selects DefaultTopK.
func NewMatchingEngine(s store.Store, embedder Embedder, topK int) *MatchingEngine {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &MatchingEngine{store: s, embedder: embedder, topK: topK, tracer: otel.Tracer("matching-engine")}
}

// Cosine returns dot(a,b)/(|a|*|b|). A zero vector scores 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, model.NewError(model.KindValidation, "cosine", fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(a), len(b)))
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// ClipEmbeddingText is the text a clip is embedded from: its description
// followed by its comma separated tags.
func ClipEmbeddingText(clip *model.Clip) string {
	description := ""
	if clip.Description != nil {
		description = *clip.Description
	}
	return strings.TrimSpace(description + " " + strings.Join(clip.Tags, ", "))
}

// MatchProject rebuilds the matches of a project. topK <= 0 uses the engine
// default.
func (e *MatchingEngine) MatchProject(ctx context.Context, projectID string, topK int) (*model.MatchSummary, error) {
	ctx, span := e.tracer.Start(ctx, "match-project")
	defer span.End()
	span.SetAttributes(attribute.String("project_id", projectID))

	if topK <= 0 {
		topK = e.topK
	}
	summary := &model.MatchSummary{ProjectID: projectID}

	segments, err := e.store.ListSegments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	clips, err := e.store.ListReadyClips(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 || len(clips) == 0 {
		slog.InfoContext(ctx, "nothing to match", "project_id", projectID, "segments", len(segments), "clips", len(clips))
		return summary, nil
	}

	// Every segment's old matches are replaced, including segments that end
	// up excluded below, so no match row outlives a segment turning blank.
	segmentIDs := make([]string, 0, len(segments))
	validSegments := make([]*model.ScriptSegment, 0, len(segments))
	for _, segment := range segments {
		segmentIDs = append(segmentIDs, segment.ID)
		if strings.TrimSpace(segment.Content) == "" {
			continue
		}
		if !segment.HasEmbedding() {
			vector, err := e.provision(ctx, segment.Content, func(v []float32) error {
				return e.store.SetSegmentEmbedding(ctx, segment.ID, v)
			}, func() ([]float32, error) {
				return e.store.GetSegmentEmbedding(ctx, segment.ID)
			})
			if err != nil {
				return nil, err
			}
			if vector != nil {
				segment.Embedding = vector
				summary.EmbeddingsCreated++
			}
		}
		if segment.HasEmbedding() {
			validSegments = append(validSegments, segment)
		}
	}

	validClips := make([]*model.Clip, 0, len(clips))
	for _, clip := range clips {
		if ClipEmbeddingText(clip) == "" {
			continue
		}
		if !clip.HasEmbedding() {
			vector, err := e.provision(ctx, ClipEmbeddingText(clip), func(v []float32) error {
				return e.store.SetClipEmbedding(ctx, clip.ID, v)
			}, func() ([]float32, error) {
				return e.store.GetClipEmbedding(ctx, clip.ID)
			})
			if err != nil {
				return nil, err
			}
			if vector != nil {
				clip.Embedding = vector
				summary.EmbeddingsCreated++
			}
		}
		if clip.HasEmbedding() {
			validClips = append(validClips, clip)
		}
	}
	summary.Segments = len(validSegments)
	summary.Clips = len(validClips)

	matches := make([]*model.Match, 0, len(validSegments)*min(topK, len(validClips)))
	for _, segment := range validSegments {
		ranked, err := rankClips(segment.Embedding, validClips, topK)
		if err != nil {
			return nil, err
		}
		for i, candidate := range ranked {
			matches = append(matches, model.NewMatch(segment.ID, candidate.clip.ID, candidate.score, i+1))
		}
	}

	if len(segmentIDs) > 0 {
		if err := e.store.ReplaceMatches(ctx, segmentIDs, matches); err != nil {
			return nil, err
		}
	}
	summary.MatchesWritten = len(matches)

	span.SetAttributes(attribute.Int("matches_written", summary.MatchesWritten))
	slog.InfoContext(ctx, "project matched",
		"project_id", projectID,
		"segments", summary.Segments,
		"clips", summary.Clips,
		"embeddings_created", summary.EmbeddingsCreated,
		"matches", summary.MatchesWritten)
	return summary, nil
}

// provision embeds text, stores the vector and returns the stored copy. Blank
// text is skipped and yields a nil vector without calling the model.
func (e *MatchingEngine) provision(
	ctx context.Context,
	text string,
	save func([]float32) error,
	load func() ([]float32, error)) ([]float32, error) {

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	vector, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := save(vector); err != nil {
		return nil, err
	}
	return load()
}

type scoredClip struct {
	clip  *model.Clip
	score float64
}

// rankClips scores every clip against the segment vector and returns the best
// topK, highest score first. Ties go to the older clip, then the lower id.
func rankClips(segment []float32, clips []*model.Clip, topK int) ([]scoredClip, error) {
	scored := make([]scoredClip, 0, len(clips))
	for _, clip := range clips {
		score, err := Cosine(segment, clip.Embedding)
		if err != nil {
			return nil, err
		}
		scored = append(scored, scoredClip{clip: clip, score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.clip.CreatedAt.Equal(b.clip.CreatedAt) {
			return a.clip.CreatedAt.Before(b.clip.CreatedAt)
		}
		return a.clip.ID < b.clip.ID
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}
