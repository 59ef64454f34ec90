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

package services_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/services"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/store"
	test "github.com/jaycherian/gcp-go-clip-match/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	zassert "github.com/zeebo/assert"
)

const projectID = "project-1"

func TestCosineProperties(t *testing.T) {
	a := []float32{0.3, -1.2, 4, 0.5}
	b := []float32{2, 0.1, -0.7, 3}

	ab, err := services.Cosine(a, b)
	zassert.NoError(t, err)
	ba, err := services.Cosine(b, a)
	zassert.NoError(t, err)
	zassert.Equal(t, ab, ba)

	same, err := services.Cosine(a, a)
	zassert.NoError(t, err)
	assert.InDelta(t, 1.0, same, 1e-9)

	orthogonal, err := services.Cosine([]float32{1, 0}, []float32{0, 3})
	zassert.NoError(t, err)
	zassert.Equal(t, 0.0, orthogonal)

	zero, err := services.Cosine([]float32{0, 0, 0}, []float32{1, 2, 3})
	zassert.NoError(t, err)
	zassert.Equal(t, 0.0, zero)
	assert.False(t, math.IsNaN(zero))

	_, err = services.Cosine([]float32{1, 2}, []float32{1, 2, 3})
	zassert.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindValidation))
	assert.ErrorIs(t, err, services.ErrLengthMismatch)
}

func TestClipEmbeddingText(t *testing.T) {
	description := "  Waves on a beach."
	clip := &model.Clip{Description: &description, Tags: []string{"beach", "ocean"}}
	assert.Equal(t, "Waves on a beach. beach, ocean", services.ClipEmbeddingText(clip))

	assert.Equal(t, "", services.ClipEmbeddingText(&model.Clip{}))
	assert.Equal(t, "dog", services.ClipEmbeddingText(&model.Clip{Tags: []string{"dog"}}))
}

// readyClip creates a clip and marks it ready with the given description.
func readyClip(t *testing.T, s store.Store, description string, createdAt time.Time) *model.Clip {
	t.Helper()
	ctx := context.Background()
	clip := model.NewClip(projectID, "user-1", "clip.mp4", "user-1/"+projectID+"/clip.mp4")
	clip.CreatedAt = createdAt
	require.NoError(t, s.CreateClip(ctx, clip))
	require.NoError(t, s.MarkClipReady(ctx, clip.ID, model.ClipReadyUpdate{
		DurationSeconds: 10,
		FrameCount:      5,
		Description:     description,
		Tags:            []string{},
	}))
	return clip
}

func matchesBySegment(matches []*model.Match) map[string][]*model.Match {
	out := make(map[string][]*model.Match)
	for _, m := range matches {
		out[m.SegmentID] = append(out[m.SegmentID], m)
	}
	return out
}

func TestMatchProjectTopKAndRerun(t *testing.T) {
	s := test.NewSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	segments, err := s.ReplaceSegments(ctx, projectID, "user-1", []string{"s0", "s1", "s2"})
	require.NoError(t, err)
	for i, d := range []string{"c0", "c1", "c2", "c3"} {
		readyClip(t, s, d, base.Add(time.Duration(i)*time.Minute))
	}

	embedder := &test.MapEmbedder{Vectors: map[string][]float32{
		"s0": {1, 0, 0},
		"s1": {0, 1, 0},
		"s2": {0, 0, 1},
		"c0": {1, 0.1, 0},
		"c1": {0.9, 0.5, 0.1},
		"c2": {0, 1, 0.2},
		"c3": {0.1, 0.2, 1},
	}}
	engine := services.NewMatchingEngine(s, embedder, 5)

	summary, err := engine.MatchProject(ctx, projectID, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Segments)
	assert.Equal(t, 4, summary.Clips)
	assert.Equal(t, 7, summary.EmbeddingsCreated)
	assert.Equal(t, 6, summary.MatchesWritten)

	stored, err := s.ListMatches(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, stored, 6)
	grouped := matchesBySegment(stored)
	for _, segment := range segments {
		rows := grouped[segment.ID]
		require.Len(t, rows, 2)
		assert.Equal(t, 1, rows[0].Rank)
		assert.Equal(t, 2, rows[1].Rank)
		assert.GreaterOrEqual(t, rows[0].SimilarityScore, rows[1].SimilarityScore)
	}

	summary, err = engine.MatchProject(ctx, projectID, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.EmbeddingsCreated, "stored embeddings are reused")
	assert.Len(t, embedder.Calls, 7)

	stored, err = s.ListMatches(ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, stored, 6)
}

func TestMatchProjectExcludesBlankSegments(t *testing.T) {
	s := test.NewSQLiteStore(t)
	ctx := context.Background()

	segments, err := s.ReplaceSegments(ctx, projectID, "user-1", []string{"waves", "   "})
	require.NoError(t, err)
	readyClip(t, s, "beach", time.Now())

	embedder := &test.MapEmbedder{Vectors: map[string][]float32{
		"waves": {1, 1},
		"beach": {1, 0.5},
	}}
	summary, err := services.NewMatchingEngine(s, embedder, 0).MatchProject(ctx, projectID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Segments)
	assert.NotContains(t, embedder.Calls, "   ")

	stored, err := s.ListMatches(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, segments[0].ID, stored[0].SegmentID)
	for _, m := range stored {
		assert.NotEqual(t, segments[1].ID, m.SegmentID)
	}
}

func TestMatchProjectExcludesBlankItemsWithStoredEmbeddings(t *testing.T) {
	s := test.NewSQLiteStore(t)
	ctx := context.Background()

	segments, err := s.ReplaceSegments(ctx, projectID, "user-1", []string{"   ", "a dog"})
	require.NoError(t, err)
	blankSegment := segments[0]
	require.NoError(t, s.SetSegmentEmbedding(ctx, blankSegment.ID, []float32{1, 0, 0}))

	dog := readyClip(t, s, "dog", time.Now())
	blankClip := readyClip(t, s, "", time.Now())
	require.NoError(t, s.SetClipEmbedding(ctx, blankClip.ID, []float32{1, 0, 0}))

	// A match left over from when the segment still had text.
	require.NoError(t, s.ReplaceMatches(ctx, []string{blankSegment.ID}, []*model.Match{
		model.NewMatch(blankSegment.ID, dog.ID, 0.8, 1),
	}))

	embedder := &test.MapEmbedder{Vectors: map[string][]float32{
		"a dog": {1, 0, 0},
		"dog":   {1, 0.2, 0},
	}}
	summary, err := services.NewMatchingEngine(s, embedder, 5).MatchProject(ctx, projectID, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Segments)
	assert.Equal(t, 1, summary.Clips)

	stored, err := s.ListMatches(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, segments[1].ID, stored[0].SegmentID)
	assert.Equal(t, dog.ID, stored[0].ClipID)
}

func TestMatchProjectNoOpWithoutClipsOrSegments(t *testing.T) {
	s := test.NewSQLiteStore(t)
	ctx := context.Background()
	embedder := &test.MapEmbedder{}

	_, err := s.ReplaceSegments(ctx, projectID, "user-1", []string{"only a segment"})
	require.NoError(t, err)

	summary, err := services.NewMatchingEngine(s, embedder, 5).MatchProject(ctx, projectID, 5)
	require.NoError(t, err)
	assert.Zero(t, summary.MatchesWritten)
	assert.Empty(t, embedder.Calls)
}

func TestMatchProjectPropagatesEmbeddingFailure(t *testing.T) {
	s := test.NewSQLiteStore(t)
	ctx := context.Background()
	_, err := s.ReplaceSegments(ctx, projectID, "user-1", []string{"s0"})
	require.NoError(t, err)
	readyClip(t, s, "c0", time.Now())

	embedder := &test.MapEmbedder{Err: model.NewError(model.KindAuth, "embed", errors.New("permission denied"))}
	_, err = services.NewMatchingEngine(s, embedder, 5).MatchProject(ctx, projectID, 5)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindAuth))
}

func TestMatchProjectFailsOnDimensionMismatch(t *testing.T) {
	s := test.NewSQLiteStore(t)
	ctx := context.Background()
	_, err := s.ReplaceSegments(ctx, projectID, "user-1", []string{"s0"})
	require.NoError(t, err)
	readyClip(t, s, "c0", time.Now())

	embedder := &test.MapEmbedder{Vectors: map[string][]float32{"s0": {1, 0, 0}, "c0": {1, 0}}}
	_, err = services.NewMatchingEngine(s, embedder, 5).MatchProject(ctx, projectID, 5)
	assert.True(t, model.IsKind(err, model.KindValidation))
}

func TestMatchProjectBreaksTiesByClipAge(t *testing.T) {
	s := test.NewSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.ReplaceSegments(ctx, projectID, "user-1", []string{"s0"})
	require.NoError(t, err)
	newer := readyClip(t, s, "newer", base.Add(time.Hour))
	older := readyClip(t, s, "older", base)

	embedder := &test.MapEmbedder{Vectors: map[string][]float32{"s0": {1, 1}, "newer": {2, 2}, "older": {2, 2}}}
	_, err = services.NewMatchingEngine(s, embedder, 5).MatchProject(ctx, projectID, 5)
	require.NoError(t, err)

	stored, err := s.ListMatches(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, older.ID, stored[0].ClipID)
	assert.Equal(t, newer.ID, stored[1].ClipID)
}

// bagEmbedder maps words onto a handful of concept axes, enough to give the
// beach example a meaningful geometry.
type bagEmbedder struct{}

var concepts = []map[string]bool{
	{"dog": true, "retriever": true},
	{"runs": true, "running": true, "playing": true, "fetch": true},
	{"beach": true, "coastline": true},
	{"beach": true, "coastline": true, "sunny": true, "park": true},
	{"office": true, "meeting": true, "indoors": true},
}

func (bagEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vector := make([]float32, len(concepts))
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == ' ' || r == ','
	}) {
		for axis, words := range concepts {
			if words[word] {
				vector[axis]++
			}
		}
	}
	return vector, nil
}

func TestMatchProjectBeachExample(t *testing.T) {
	s := test.NewSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.ReplaceSegments(ctx, projectID, "user-1", []string{"A dog runs on the beach"})
	require.NoError(t, err)
	a := readyClip(t, s, "golden retriever running, coastline, sunny", base)
	b := readyClip(t, s, "office meeting, indoors", base.Add(time.Minute))
	c := readyClip(t, s, "dog playing fetch at the park", base.Add(2*time.Minute))

	_, err = services.NewMatchingEngine(s, bagEmbedder{}, 5).MatchProject(ctx, projectID, 5)
	require.NoError(t, err)

	stored, err := s.ListMatches(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, []string{a.ID, c.ID, b.ID}, []string{stored[0].ClipID, stored[1].ClipID, stored[2].ClipID})
	assert.Less(t, stored[2].SimilarityScore, stored[1].SimilarityScore)
	assert.Less(t, stored[2].SimilarityScore, stored[0].SimilarityScore)
}
