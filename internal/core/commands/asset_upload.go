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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// command that persists the extracted frames and the thumbnail to object
// storage.
//
// Logic Flow:
//  1. Walk the reconciled frame list. A frame whose file has disappeared from
//     disk is skipped rather than failing the clip.
//  2. Upload each frame to "{user}/{project}/{clip}/frames/frame_NNNNNN.jpg".
//     The object number is the frame index plus one, matching the extractor's
//     own file numbering.
//  3. Upload the thumbnail to "{user}/{project}/{clip}/thumbnail.jpg" and
//     publish its locator under ParamThumbnailURI.
package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-clip-match/internal/cloud"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/cor"
	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"go.opentelemetry.io/otel/metric"
)

// ImageContentType is the content type of every uploaded still.
const ImageContentType = "image/jpeg"

// AssetUpload writes the frames and the thumbnail of a clip to the bucket.
type AssetUpload struct {
	cor.BaseCommand
	objects        cloud.ObjectStore
	bucket         string
	skippedCounter metric.Int64Counter
}

// NewAssetUpload creates the upload step. Frames and the thumbnail are
// written to bucket.
func NewAssetUpload(name string, objects cloud.ObjectStore, bucket string) *AssetUpload {
	out := &AssetUpload{BaseCommand: *cor.NewBaseCommand(name), objects: objects, bucket: bucket}
	out.skippedCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.counter.skipped", name))
	return out
}

func (c *AssetUpload) IsExecutable(context cor.Context) bool {
	return hasParams(context, ParamClip, ParamFrames)
}

func (c *AssetUpload) Execute(context cor.Context) {
	ctx := context.GetContext()
	clip := ClipFrom(context)

	uploaded := 0
	for _, frame := range FramesFrom(context) {
		data, err := os.ReadFile(frame.Path)
		if errors.Is(err, fs.ErrNotExist) {
			slog.WarnContext(ctx, "frame missing from disk, skipping upload", "clip_id", clip.ID, "index", frame.Index)
			if c.skippedCounter != nil {
				c.skippedCounter.Add(ctx, 1)
			}
			continue
		}
		if err != nil {
			c.Fail(context, model.NewError(model.KindInfrastructure, "read frame", err))
			return
		}
		name := cloud.FrameObjectPath(clip.UserID, clip.ProjectID, clip.ID, frame.Index)
		if _, err := c.objects.Upload(ctx, c.bucket, name, data, ImageContentType); err != nil {
			c.Fail(context, model.NewError(model.KindInfrastructure, "upload frame", err))
			return
		}
		uploaded++
	}

	if thumbnailPath, ok := context.Get(ParamThumbnailPath).(string); ok {
		data, err := os.ReadFile(thumbnailPath)
		if err != nil {
			c.Fail(context, model.NewError(model.KindInfrastructure, "read thumbnail", err))
			return
		}
		uri, err := c.objects.Upload(ctx, c.bucket, cloud.ThumbnailObjectPath(clip.UserID, clip.ProjectID, clip.ID), data, ImageContentType)
		if err != nil {
			c.Fail(context, model.NewError(model.KindInfrastructure, "upload thumbnail", err))
			return
		}
		context.Add(ParamThumbnailURI, uri)
	}

	slog.DebugContext(ctx, "uploaded clip assets", "clip_id", clip.ID, "frames", uploaded)
	c.Succeed(context)
}
