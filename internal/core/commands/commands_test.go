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

package commands_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/commands"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	test "github.com/jaycherian/gcp-go-clip-match/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bucket = "clips"

func newClipContext(t *testing.T, clip *model.Clip) cor.Context {
	t.Helper()
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.Background())
	chCtx.Add(commands.ParamClip, clip)
	chCtx.Add(commands.ParamWorkDir, t.TempDir())
	return chCtx
}

func TestClipDownloadWritesSourceWithSniffedExtension(t *testing.T) {
	objects := test.NewMemoryObjectStore()
	clip := model.NewClip("p1", "u1", "beach.mp4", "u1/p1/beach.mp4")
	objects.Put(bucket, clip.StoragePath, test.MP4Bytes)

	chCtx := newClipContext(t, clip)
	cmd := commands.NewClipDownload("clip-download", objects, bucket)
	require.True(t, cmd.IsExecutable(chCtx))
	cmd.Execute(chCtx)

	require.NoError(t, chCtx.Err())
	path := chCtx.Get(commands.ParamSourcePath).(string)
	assert.Equal(t, ".mp4", filepath.Ext(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, test.MP4Bytes, data)
}

func TestClipDownloadMissingObjectIsInfrastructure(t *testing.T) {
	chCtx := newClipContext(t, model.NewClip("p1", "u1", "gone.mp4", "gs://other/gone.mp4"))
	commands.NewClipDownload("clip-download", test.NewMemoryObjectStore(), bucket).Execute(chCtx)

	err := chCtx.Err()
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindInfrastructure))
	assert.Nil(t, chCtx.Get(commands.ParamSourcePath))
}

func TestClipProbeRejectsBadDuration(t *testing.T) {
	chCtx := newClipContext(t, model.NewClip("p1", "u1", "a.mp4", "a.mp4"))
	chCtx.Add(commands.ParamSourcePath, "/tmp/a.mp4")
	tool := &test.FakeVideoTool{ProbeErr: model.NewError(model.KindValidation, "probe", errors.New("N/A"))}

	commands.NewClipProbe("clip-probe", tool).Execute(chCtx)
	assert.True(t, model.IsKind(chCtx.Err(), model.KindValidation))
	assert.Nil(t, chCtx.Get(commands.ParamDuration))
}

func TestUsageCapCheck(t *testing.T) {
	s := test.NewSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, s.IncrementUsage(ctx, "u1", 17000))

	cases := []struct {
		name     string
		duration float64
		wantErr  bool
	}{
		{"fits", 500, false},
		{"exactly at cap", 1000, false},
		{"over cap", 1000.5, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chCtx := newClipContext(t, model.NewClip("p1", "u1", "a.mp4", "a.mp4"))
			chCtx.Add(commands.ParamDuration, tc.duration)
			commands.NewUsageCapCheck("usage-cap-check", s, 18000).Execute(chCtx)
			if !tc.wantErr {
				assert.NoError(t, chCtx.Err())
				return
			}
			err := chCtx.Err()
			assert.True(t, model.IsKind(err, model.KindResource))
			assert.ErrorIs(t, err, model.ErrUsageCapExceeded)
		})
	}
}

func TestFrameAndThumbnailExtract(t *testing.T) {
	chCtx := newClipContext(t, model.NewClip("p1", "u1", "a.mp4", "a.mp4"))
	chCtx.Add(commands.ParamSourcePath, "/tmp/a.mp4")
	chCtx.Add(commands.ParamDuration, 30.0)
	tool := &test.FakeVideoTool{FrameCount: 4}

	commands.NewFrameExtract("frame-extract", tool).Execute(chCtx)
	commands.NewThumbnailExtract("thumbnail-extract", tool, 0.1).Execute(chCtx)

	require.NoError(t, chCtx.Err())
	frames := commands.FramesFrom(chCtx)
	require.Len(t, frames, 4)
	assert.Equal(t, 6.0, frames[3].OffsetSeconds)
	require.Len(t, tool.ThumbnailAt, 1)
	assert.InDelta(t, 3.0, tool.ThumbnailAt[0], 1e-9)
	assert.FileExists(t, chCtx.Get(commands.ParamThumbnailPath).(string))
}

func TestAssetUploadSkipsMissingFrames(t *testing.T) {
	clip := model.NewClip("p1", "u1", "a.mp4", "a.mp4")
	chCtx := newClipContext(t, clip)
	chCtx.Add(commands.ParamSourcePath, "/tmp/a.mp4")
	chCtx.Add(commands.ParamDuration, 10.0)
	tool := &test.FakeVideoTool{FrameCount: 3}
	commands.NewFrameExtract("frame-extract", tool).Execute(chCtx)
	commands.NewThumbnailExtract("thumbnail-extract", tool, 0.1).Execute(chCtx)
	require.NoError(t, chCtx.Err())

	frames := commands.FramesFrom(chCtx)
	require.NoError(t, os.Remove(frames[1].Path))

	objects := test.NewMemoryObjectStore()
	commands.NewAssetUpload("asset-upload", objects, bucket).Execute(chCtx)
	require.NoError(t, chCtx.Err())

	assert.True(t, objects.Has(bucket, cloud.FrameObjectPath("u1", "p1", clip.ID, 0)))
	assert.False(t, objects.Has(bucket, cloud.FrameObjectPath("u1", "p1", clip.ID, 1)))
	assert.True(t, objects.Has(bucket, cloud.FrameObjectPath("u1", "p1", clip.ID, 2)))

	thumbnail := cloud.ThumbnailObjectPath("u1", "p1", clip.ID)
	assert.Equal(t, "gs://"+bucket+"/"+thumbnail, chCtx.Get(commands.ParamThumbnailURI))
	assert.Equal(t, commands.ImageContentType, objects.ContentType[bucket+"/"+thumbnail])
}

func TestClipTaggingAndPersist(t *testing.T) {
	s := test.NewSQLiteStore(t)
	ctx := context.Background()
	clip := model.NewClip("p1", "u1", "a.mp4", "a.mp4")
	require.NoError(t, s.CreateClip(ctx, clip))

	chCtx := newClipContext(t, clip)
	chCtx.Add(commands.ParamDuration, 12.5)
	chCtx.Add(commands.ParamFrames, []model.Frame{{Index: 0, Path: "f1.jpg"}, {Index: 1, Path: "f2.jpg", OffsetSeconds: 2}})
	chCtx.Add(commands.ParamThumbnailURI, "gs://clips/u1/p1/x/thumbnail.jpg")

	tagger := &test.StaticTagger{Result: &model.TagResult{Description: "A dog.", Tags: []string{"dog"}}}
	commands.NewClipTagging("clip-tagging", tagger).Execute(chCtx)
	commands.NewClipPersist("clip-persist", s).Execute(chCtx)
	require.NoError(t, chCtx.Err())

	stored, err := s.GetClip(ctx, clip.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ClipStatusReady, stored.Status)
	assert.Equal(t, 2, stored.FrameCount)
	require.NotNil(t, stored.DurationSeconds)
	assert.Equal(t, 12.5, *stored.DurationSeconds)
	require.NotNil(t, stored.Description)
	assert.Equal(t, "A dog.", *stored.Description)
	assert.Equal(t, []string{"dog"}, []string(stored.Tags))
}

func TestClipTaggingFailureStopsBeforePersist(t *testing.T) {
	chCtx := newClipContext(t, model.NewClip("p1", "u1", "a.mp4", "a.mp4"))
	chCtx.Add(commands.ParamFrames, []model.Frame{{Index: 0, Path: "f1.jpg"}})
	tagger := &test.StaticTagger{Err: model.NewError(model.KindAuth, "tag", errors.New("denied"))}

	commands.NewClipTagging("clip-tagging", tagger).Execute(chCtx)
	assert.True(t, model.IsKind(chCtx.Err(), model.KindAuth))
	assert.False(t, commands.NewClipPersist("clip-persist", nil).IsExecutable(chCtx))
}

func TestParseMatchRequest(t *testing.T) {
	request, err := commands.ParseMatchRequest([]byte(`{"project_id":" p-42 "}`))
	require.NoError(t, err)
	assert.Equal(t, "p-42", request.ProjectID)

	for _, body := range []string{`{}`, `{"project_id":"  "}`, `not json`, `[]`} {
		_, err := commands.ParseMatchRequest([]byte(body))
		assert.True(t, model.IsKind(err, model.KindValidation), body)
	}
}

func TestMatchRequestReaderPipesRequest(t *testing.T) {
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.Background())
	chCtx.Add(cor.CtxIn, `{"project_id":"p1"}`)

	commands.NewMatchRequestReader("match-request-reader").Execute(chCtx)
	require.NoError(t, chCtx.Err())
	assert.Equal(t, "p1", chCtx.Get(cor.CtxOut).(*model.MatchRequest).ProjectID)
}
